// Package peer adapts an external peer-to-peer messaging capability into
// the transport the verification flow needs: open an encrypted pairing,
// dispatch a request over it, and await the response.
package peer

import (
	"context"
	"encoding/json"
)

// Pairing is a transport-level handshake awaiting out-of-band approval.
// URI encodes the pairing for display as a scannable code or deep link.
// Approval blocks until the remote identity device accepts the pairing,
// yielding the connection identifier (topic). It is cancelled only through
// its context; pairing approval has no timeout of its own.
type Pairing struct {
	URI      string
	Approval func(ctx context.Context) (connectionID string, err error)
}

// Client is the capability interface over the underlying peer-to-peer
// messaging library. Implementations are external; this package only
// manages their lifecycle and failure behavior.
type Client interface {
	// Connect opens a fresh pairing proposal.
	Connect(ctx context.Context) (*Pairing, error)

	// Request dispatches a payload over an established pairing and waits
	// for the peer's response.
	Request(ctx context.Context, connectionID string, payload any) (json.RawMessage, error)

	// ActiveTopics lists pairings and sessions left over in the client's
	// persisted state, including ones from earlier runs.
	ActiveTopics() []string

	// Disconnect tears down a single pairing or session by topic.
	Disconnect(ctx context.Context, topic string) error

	// Connected reports whether the relay link is currently up.
	Connected() bool
}

// ClientFactory creates and initializes a Client. Called lazily, at most
// once per adapter generation.
type ClientFactory func(ctx context.Context) (Client, error)

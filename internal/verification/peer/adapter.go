package peer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

const (
	// relayWait bounds the pre-send health poll on background-suspending
	// platforms. If the relay has not recovered by then, the send proceeds
	// best-effort.
	relayWait         = 3 * time.Second
	relayPollInterval = 100 * time.Millisecond
)

var errRelayDown = errors.New("relay not connected")

// Adapter owns a lazily-initialized singleton peer client. Concurrent
// initialization is collapsed to a single in-flight attempt; a fresh
// initialization proactively tears down stale pairings left over from
// earlier runs so the identity device cannot reconnect to a dead session.
type Adapter struct {
	factory ClientFactory
	hints   models.PlatformHints
	scheme  string
	logger  *slog.Logger

	group  singleflight.Group
	mu     sync.Mutex
	client Client
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithLogger sets the logger for the adapter.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithHints sets the platform hints governing the pre-send relay wait.
func WithHints(hints models.PlatformHints) Option {
	return func(a *Adapter) {
		a.hints = hints
	}
}

// NewAdapter creates an adapter around the given client factory.
// scheme is the identity-app deep link scheme for this network.
func NewAdapter(factory ClientFactory, scheme string, opts ...Option) *Adapter {
	if factory == nil {
		panic("peer.NewAdapter: factory is required")
	}
	a := &Adapter{
		factory: factory,
		scheme:  scheme,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OpenPairing initializes the client if needed and opens a fresh pairing
// proposal for out-of-band approval.
func (a *Adapter) OpenPairing(ctx context.Context) (*Pairing, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}
	pairing, err := client.Connect(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to open pairing")
	}
	if pairing.URI == "" {
		return nil, dErrors.New(dErrors.CodeUnavailable, "transport did not return a pairing URI")
	}
	return pairing, nil
}

// Send dispatches a payload over the established pairing and awaits the
// peer's response. On background-suspending platforms the relay link may
// still be recovering from a suspension, so Send polls connection health
// for a bounded window first and proceeds best-effort on timeout.
func (a *Adapter) Send(ctx context.Context, connectionID string, payload any) (json.RawMessage, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}

	if a.hints.BackgroundSuspending {
		if err := a.waitForRelay(ctx, client); err != nil {
			a.log().WarnContext(ctx, "relay not connected after wait, sending anyway",
				"connection_id", connectionID,
			)
		}
	}

	response, err := client.Request(ctx, connectionID, payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "peer request failed")
	}
	return response, nil
}

// DeepLink transforms a pairing URI into the identity-app deep link.
func (a *Adapter) DeepLink(pairingURI string) string {
	return a.scheme + "://wc?uri=" + url.QueryEscape(pairingURI)
}

// Reset discards the client singleton so the next OpenPairing performs a
// clean initialization. Used before user-initiated retries.
func (a *Adapter) Reset() {
	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()
	a.group.Forget("init")
	a.log().Info("peer transport reset")
}

// Connected reports relay health, or false when no client is initialized.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	return client != nil && client.Connected()
}

func (a *Adapter) getClient(ctx context.Context) (Client, error) {
	a.mu.Lock()
	if a.client != nil {
		client := a.client
		a.mu.Unlock()
		return client, nil
	}
	a.mu.Unlock()

	// Collapse concurrent initializations: a second caller awaits the
	// first attempt instead of starting a redundant one.
	v, err, _ := a.group.Do("init", func() (any, error) {
		client, err := a.factory(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "peer client initialization failed")
		}

		a.cleanupStale(ctx, client)

		a.mu.Lock()
		a.client = client
		a.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

// cleanupStale disconnects pairings and sessions persisted by earlier runs.
// Failures are logged and ignored; a leftover topic is not worth failing
// initialization over.
func (a *Adapter) cleanupStale(ctx context.Context, client Client) {
	topics := client.ActiveTopics()
	if len(topics) == 0 {
		return
	}
	a.log().InfoContext(ctx, "disconnecting stale peer topics", "count", len(topics))
	for _, topic := range topics {
		if err := client.Disconnect(ctx, topic); err != nil {
			a.log().WarnContext(ctx, "failed to disconnect stale topic",
				"topic", topic,
				"error", err,
			)
		}
	}
}

func (a *Adapter) waitForRelay(ctx context.Context, client Client) error {
	return retry.Do(
		func() error {
			if client.Connected() {
				return nil
			}
			return errRelayDown
		},
		retry.Context(ctx),
		retry.Attempts(uint(relayWait/relayPollInterval)),
		retry.Delay(relayPollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (a *Adapter) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

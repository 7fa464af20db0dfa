package flow

import (
	"context"
	"encoding/json"

	"agegate/internal/verification/models"
	"agegate/internal/verification/peer"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports.go -package=mocks

// Transport is the peer-to-peer messaging capability the machine drives.
// Implemented by peer.Adapter.
type Transport interface {
	OpenPairing(ctx context.Context) (*peer.Pairing, error)
	Send(ctx context.Context, connectionID string, payload any) (json.RawMessage, error)
	DeepLink(pairingURI string) string
	Reset()
}

// Gateway exposes the server-side session operations the machine calls:
// session creation (which anchors a presentation request) and proof
// submission (which verifies and finalizes the session).
type Gateway interface {
	CreateSession(ctx context.Context, connectionID string) (*CreatedSession, error)
	SessionStatus(ctx context.Context, sessionID string) (*Receipt, error)
	SubmitProof(ctx context.Context, sessionID string, presentation json.RawMessage, request *models.PresentationRequest) (*Receipt, error)
}

// CreatedSession is the gateway's answer to session creation.
type CreatedSession struct {
	SessionID string                      `json:"sessionId"`
	Request   *models.PresentationRequest `json:"request"`
}

// Receipt reports a session's server-side standing.
type Receipt struct {
	Status     models.SessionStatus `json:"status"`
	AnchorHash string               `json:"anchorHash,omitempty"`
	Reason     string               `json:"error,omitempty"`
}

// Package gateway is the client-side HTTP adapter for the age-gate server's
// session endpoints. The flow machine drives one of these instead of the
// verifier backend directly, so the server stays the single owner of the
// session store and credential issuance.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agegate/internal/verification/flow"
	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the gateway client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// Client talks to the age-gate server.
type Client struct {
	baseURL string
	client  HTTPDoer
}

// New creates a gateway client for the given server base URL.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		panic("gateway.New: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	return c
}

type createSessionBody struct {
	ConnectionID string `json:"connectionId"`
}

type submitProofBody struct {
	SessionID           string                      `json:"sessionId"`
	Presentation        json.RawMessage             `json:"presentation"`
	VerificationRequest *models.PresentationRequest `json:"verificationRequest,omitempty"`
}

type errorBody struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// CreateSession starts a verification session for an approved pairing.
func (c *Client) CreateSession(ctx context.Context, connectionID string) (*flow.CreatedSession, error) {
	var created flow.CreatedSession
	err := c.do(ctx, http.MethodPost, "/verification/sessions", createSessionBody{ConnectionID: connectionID}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// SessionStatus polls the session's server-side standing.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*flow.Receipt, error) {
	var receipt flow.Receipt
	err := c.do(ctx, http.MethodGet, "/verification/sessions/"+sessionID, nil, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SubmitProof submits the presentation for verification and finalization.
// A rejected proof comes back as a CodeRejected domain error carrying the
// backend's reason.
func (c *Client) SubmitProof(ctx context.Context, sessionID string, presentation json.RawMessage, request *models.PresentationRequest) (*flow.Receipt, error) {
	body := submitProofBody{
		SessionID:           sessionID,
		Presentation:        presentation,
		VerificationRequest: request,
	}
	var receipt flow.Receipt
	if err := c.do(ctx, http.MethodPost, "/verification/verify", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// PlatformHints asks the server to classify this client's platform.
func (c *Client) PlatformHints(ctx context.Context) (models.PlatformHints, error) {
	var hints models.PlatformHints
	if err := c.do(ctx, http.MethodGet, "/verification/hints", nil, &hints); err != nil {
		return models.PlatformHints{}, err
	}
	return hints, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "age-gate server unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "unparseable server response")
		}
	}
	return nil
}

// decodeError reconstructs the server's domain error so flow-level checks
// (conflict, rejected, not found) work the same on both sides of the wire.
func decodeError(status int, data []byte) error {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" {
		msg := body.Description
		if msg == "" {
			msg = body.Code
		}
		return dErrors.New(dErrors.Code(body.Code), msg)
	}
	return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("server returned status %d", status))
}

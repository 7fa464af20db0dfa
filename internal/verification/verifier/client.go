// Package verifier is the HTTP client for the remote verification backend.
//
// The backend exposes two operations: creating a verifiable-presentation
// request (which anchors a request record on the ledger) and verifying a
// submitted presentation (which anchors an audit record). Both are treated
// as black boxes beyond their request/response contract.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agegate/internal/verification/models"
	"agegate/internal/verification/tracer"
	dErrors "agegate/pkg/domain-errors"
)

// dobLower is the earliest plausible birth date in any age-range claim.
const dobLower = "19000101"

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DOBBoundFunc computes the latest birth date satisfying the minimum age
// at the given time, formatted YYYYMMDD.
type DOBBoundFunc func(now time.Time) string

// Config configures the verifier client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Issuers    []string
	DOBUpper   DOBBoundFunc
	Tracer     tracer.Tracer
}

// Client talks to the verifier backend.
type Client struct {
	baseURL  string
	client   HTTPDoer
	issuers  []string
	dobUpper DOBBoundFunc
	tracer   tracer.Tracer
}

// New creates a verifier client. Panics if the DOB bound function is
// missing - the age-range claim cannot be built without it.
func New(cfg Config) *Client {
	if cfg.DOBUpper == nil {
		panic("verifier.New: DOBUpper is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:  cfg.BaseURL,
		client:   cfg.HTTPClient,
		issuers:  cfg.Issuers,
		dobUpper: cfg.DOBUpper,
		tracer:   cfg.Tracer,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	if c.tracer == nil {
		c.tracer = tracer.NewNoop()
	}
	return c
}

type createRequestBody struct {
	ConnectionID    string                  `json:"connectionId"`
	ResourceID      string                  `json:"resourceId"`
	ContextString   string                  `json:"contextString"`
	RequestedClaims []models.RequestedClaim `json:"requestedClaims"`
}

type verifyBody struct {
	AuditRecordID       string                      `json:"auditRecordId"`
	Presentation        json.RawMessage             `json:"presentation"`
	VerificationRequest *models.PresentationRequest `json:"verificationRequest"`
}

// CreateRequest asks the backend to create a presentation request for the
// given pairing. The request encodes the age-range claim computed from the
// current date and the static trusted-issuer set, and the backend anchors
// a request record on the ledger as a side effect.
func (c *Client) CreateRequest(ctx context.Context, connectionID, resourceID, contextString string) (*models.PresentationRequest, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanCreateRequest,
		tracer.String(tracer.AttrConnectionID, connectionID),
	)
	request, err := c.createRequest(ctx, connectionID, resourceID, contextString)
	span.End(err)
	return request, err
}

func (c *Client) createRequest(ctx context.Context, connectionID, resourceID, contextString string) (*models.PresentationRequest, error) {
	body := createRequestBody{
		ConnectionID:  connectionID,
		ResourceID:    resourceID,
		ContextString: contextString,
		RequestedClaims: []models.RequestedClaim{
			{
				Type:    "identity",
				Source:  []string{"identityCredential"},
				Issuers: c.issuers,
				Statements: []models.Statement{
					{
						Type:         "AttributeInRange",
						AttributeTag: "dob",
						Lower:        dobLower,
						Upper:        c.dobUpper(time.Now()),
					},
				},
			},
		},
	}

	respBody, err := c.post(ctx, "/verifiable-presentations/create-verification-request", body)
	if err != nil {
		return nil, err
	}

	var request models.PresentationRequest
	if err := json.Unmarshal(respBody, &request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to parse create-verification-request response")
	}
	return &request, nil
}

// Verify submits a presentation and its originating request for
// verification. The backend anchors an audit record on the ledger as a
// side effect. A "failed" result is a valid response, not an error; only
// transport and HTTP failures return an error.
func (c *Client) Verify(ctx context.Context, auditRecordID string, presentation json.RawMessage, request *models.PresentationRequest) (models.VerifyResult, error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanVerify)
	result, err := c.verify(ctx, auditRecordID, presentation, request)
	if err == nil {
		span.SetAttributes(tracer.String(tracer.AttrResult, result.Result))
	}
	span.End(err)
	return result, err
}

func (c *Client) verify(ctx context.Context, auditRecordID string, presentation json.RawMessage, request *models.PresentationRequest) (models.VerifyResult, error) {
	// Identity apps may wrap the presentation in a delivery envelope;
	// the backend accepts only the unwrapped form.
	body := verifyBody{
		AuditRecordID:       auditRecordID,
		Presentation:        models.UnwrapPresentation(presentation),
		VerificationRequest: request,
	}

	respBody, err := c.post(ctx, "/verifiable-presentations/verify", body)
	if err != nil {
		return models.VerifyResult{}, err
	}

	var result models.VerifyResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return models.VerifyResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to parse verify response")
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "verifier service unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read verifier response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("verifier service returned %d: %s", resp.StatusCode, truncate(respBody, 200)))
	}

	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

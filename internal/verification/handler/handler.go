package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"agegate/internal/platform/middleware"
	"agegate/internal/verification/metrics"
	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/httputil"
)

// Service defines the session operations exposed over HTTP.
type Service interface {
	CreateSession(ctx context.Context, connectionID string) (*models.VerificationSession, error)
	Status(ctx context.Context, sessionID string) (*models.VerificationSession, error)
	SubmitProof(ctx context.Context, sessionID string, presentation json.RawMessage, request *models.PresentationRequest) (*models.VerificationSession, error)
	ClearSessions(ctx context.Context) int
}

// CredentialIssuer attaches age credentials to responses and supports
// operator-wide invalidation.
type CredentialIssuer interface {
	Issue(w http.ResponseWriter, anchorHash string) error
	InvalidateAll() uint64
}

// Handler handles the verification endpoints.
type Handler struct {
	service Service
	gate    CredentialIssuer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a new verification Handler.
func New(service Service, gate CredentialIssuer, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if service == nil {
		panic("handler.New: service is required")
	}
	if gate == nil {
		panic("handler.New: credential issuer is required")
	}
	return &Handler{
		service: service,
		gate:    gate,
		logger:  logger,
		metrics: m,
	}
}

// Register registers the verification routes with the chi router.
// Admin routes are expected to be mounted behind the admin-token middleware
// by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verification/sessions", h.handleCreateSession)
	r.Get("/verification/sessions/{sessionID}", h.handleSessionStatus)
	r.Post("/verification/verify", h.handleSubmitProof)
	r.Get("/verification/hints", h.handlePlatformHints)
}

// RegisterAdmin registers the operator routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/invalidate", h.handleInvalidateAll)
}

// CreateSessionRequest starts a verification session for an approved pairing.
type CreateSessionRequest struct {
	ConnectionID string `json:"connectionId"`
}

func (r *CreateSessionRequest) Normalize() {
	r.ConnectionID = strings.TrimSpace(r.ConnectionID)
}

func (r *CreateSessionRequest) Validate() error {
	if r.ConnectionID == "" {
		return dErrors.New(dErrors.CodeValidation, "connectionId is required")
	}
	return nil
}

// CreateSessionResponse carries the new session and its presentation request.
type CreateSessionResponse struct {
	SessionID string                      `json:"sessionId"`
	Request   *models.PresentationRequest `json:"request"`
}

// SubmitProofRequest submits a presentation for verification.
type SubmitProofRequest struct {
	SessionID           string                      `json:"sessionId"`
	Presentation        json.RawMessage             `json:"presentation"`
	VerificationRequest *models.PresentationRequest `json:"verificationRequest,omitempty"`
}

func (r *SubmitProofRequest) Normalize() {
	r.SessionID = strings.TrimSpace(r.SessionID)
}

func (r *SubmitProofRequest) Validate() error {
	if r.SessionID == "" {
		return dErrors.New(dErrors.CodeValidation, "sessionId is required")
	}
	if len(r.Presentation) == 0 {
		return dErrors.New(dErrors.CodeValidation, "presentation is required")
	}
	return nil
}

// StatusResponse reports a session's standing to the polling UI.
type StatusResponse struct {
	Status     models.SessionStatus `json:"status"`
	AnchorHash string               `json:"anchorHash,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func statusResponse(session *models.VerificationSession) StatusResponse {
	return StatusResponse{
		Status:     session.Status,
		AnchorHash: session.AnchorHash,
		Error:      session.Error,
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.CreateSession(ctx, req.ConnectionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create verification session",
			"request_id", requestID,
			"connection_id", req.ConnectionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: session.SessionID,
		Request:   session.Request,
	})
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.service.Status(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, statusResponse(session))
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitProofRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.SubmitProof(ctx, req.SessionID, req.Presentation, req.VerificationRequest)
	if err != nil {
		h.logger.WarnContext(ctx, "proof submission did not verify",
			"request_id", requestID,
			"session_id", req.SessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if err := h.gate.Issue(w, session.AnchorHash); err != nil {
		h.logger.ErrorContext(ctx, "failed to issue age credential",
			"request_id", requestID,
			"session_id", req.SessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.IncrementCredentialsIssued()
	}

	httputil.WriteJSON(w, http.StatusOK, statusResponse(session))
}

// handlePlatformHints derives transport capability hints from the caller's
// User-Agent so the client flow can tune its backgrounding recovery.
func (h *Handler) handlePlatformHints(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, DetectHints(r.UserAgent()))
}

func (h *Handler) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	version := h.gate.InvalidateAll()
	cleared := h.service.ClearSessions(ctx)
	if h.metrics != nil {
		h.metrics.IncrementGlobalInvalidation()
	}

	h.logger.InfoContext(ctx, "global invalidation executed",
		"request_id", requestID,
		"session_version", version,
		"sessions_cleared", cleared,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"sessionVersion":  version,
		"sessionsCleared": cleared,
	})
}

// DetectHints classifies a User-Agent. iOS suspends a backgrounded page's
// sockets, which is what the one-shot resend recovery compensates for.
func DetectHints(uaString string) models.PlatformHints {
	ua := useragent.New(uaString)
	platform := ua.Platform()
	isIOS := platform == "iPhone" || platform == "iPad" || platform == "iPod"
	return models.PlatformHints{
		BackgroundSuspending:     isIOS,
		SupportsPushNotification: ua.Mobile(),
	}
}

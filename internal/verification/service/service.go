package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"agegate/internal/verification/metrics"
	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

//go:generate mockgen -source=service.go -destination=mocks/service.go -package=mocks

// Verifier is the remote verification backend.
// Error contract: both methods return CodeUnavailable domain errors on
// transport or HTTP failure; a failed verification result is data, not an
// error.
type Verifier interface {
	CreateRequest(ctx context.Context, connectionID, resourceID, contextString string) (*models.PresentationRequest, error)
	Verify(ctx context.Context, auditRecordID string, presentation json.RawMessage, request *models.PresentationRequest) (models.VerifyResult, error)
}

// Store is the session persistence interface.
// Error contract: Get and Mutate return CodeNotFound domain errors for
// unknown or evicted sessions; Mutate applies its closure under the store
// lock so finalization and eviction are mutually exclusive.
type Store interface {
	Put(ctx context.Context, session *models.VerificationSession) error
	Get(ctx context.Context, sessionID string) (*models.VerificationSession, error)
	Mutate(ctx context.Context, sessionID string, fn func(*models.VerificationSession) error) error
	Clear(ctx context.Context) int
}

type Option func(*Service)

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service owns the server-side session lifecycle: it creates sessions
// against the verifier backend, accepts submitted proofs, and enforces the
// status transition rules.
type Service struct {
	store         Store
	verifier      Verifier
	resourceID    string
	contextString string
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates the verification service.
func NewService(store Store, verifier Verifier, resourceID, contextString string, opts ...Option) *Service {
	if store == nil {
		panic("service.NewService: store is required")
	}
	if verifier == nil {
		panic("service.NewService: verifier is required")
	}
	svc := &Service{
		store:         store,
		verifier:      verifier,
		resourceID:    resourceID,
		contextString: contextString,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateSession obtains an anchored presentation request for the given
// pairing and records a pending session for it.
func (s *Service) CreateSession(ctx context.Context, connectionID string) (*models.VerificationSession, error) {
	if connectionID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "connectionId is required")
	}

	start := s.now()
	request, err := s.verifier.CreateRequest(ctx, connectionID, s.resourceID, s.contextString)
	s.observeVerifierCall("create_request", start)
	if err != nil {
		return nil, err
	}

	session := models.NewSession(uuid.NewString(), connectionID, request, s.now())
	if err := s.store.Put(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session")
	}

	if s.metrics != nil {
		s.metrics.IncrementSessionsCreated()
	}
	s.log().InfoContext(ctx, "verification session created",
		"session_id", session.SessionID,
		"connection_id", connectionID,
		"transaction_ref", session.TransactionRef,
	)
	return session, nil
}

// Status returns the live session record.
func (s *Service) Status(ctx context.Context, sessionID string) (*models.VerificationSession, error) {
	return s.store.Get(ctx, sessionID)
}

// SubmitProof verifies a presentation against a session's request and
// finalizes the session. A failed session is reopened exactly once for a
// late-arriving proof; verified or retry-exhausted sessions yield a
// conflict. The verify call itself runs outside the store lock; the
// finalizing transition re-checks status under the lock.
func (s *Service) SubmitProof(ctx context.Context, sessionID string, presentation json.RawMessage, request *models.PresentationRequest) (*models.VerificationSession, error) {
	if len(presentation) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "presentation is required")
	}

	var (
		verifyReq = request
		reopened  bool
	)
	err := s.store.Mutate(ctx, sessionID, func(session *models.VerificationSession) error {
		switch session.Status {
		case models.StatusPending:
		case models.StatusFailed:
			if err := session.Reopen(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "session retry already consumed")
			}
			reopened = true
		default:
			return dErrors.New(dErrors.CodeConflict, "session is already "+string(session.Status))
		}
		if verifyReq == nil {
			verifyReq = session.Request
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reopened {
		if s.metrics != nil {
			s.metrics.IncrementSessionsReopened()
		}
		s.log().InfoContext(ctx, "failed session reopened for late proof", "session_id", sessionID)
	}

	// Every submission gets its own audit record ID, so a reopened
	// session's second verify is anchored separately from its first.
	auditRef := uuid.NewString()

	start := s.now()
	result, err := s.verifier.Verify(ctx, auditRef, presentation, verifyReq)
	s.observeVerifierCall("verify", start)
	if err != nil {
		s.finalizeFailed(ctx, sessionID, dErrors.Message(err))
		return nil, err
	}

	if !result.Verified() {
		reason := result.Reason
		if reason == "" {
			reason = "verification was rejected"
		}
		session := s.finalizeFailed(ctx, sessionID, reason)
		if s.metrics != nil {
			s.metrics.IncrementVerifyOutcome(models.ResultFailed)
		}
		if session == nil {
			return nil, dErrors.New(dErrors.CodeRejected, reason)
		}
		return session, dErrors.New(dErrors.CodeRejected, reason)
	}

	var updated *models.VerificationSession
	err = s.store.Mutate(ctx, sessionID, func(session *models.VerificationSession) error {
		if err := session.MarkVerified(result.AuditRecord, result.AnchorHash); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConflict, "session was finalized concurrently")
		}
		copied := *session
		updated = &copied
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementVerifyOutcome(models.ResultVerified)
	}
	s.log().InfoContext(ctx, "session verified",
		"session_id", sessionID,
		"anchor_hash", result.AnchorHash,
	)
	return updated, nil
}

// ClearSessions drops every live session. Invoked as part of the operator's
// global invalidation.
func (s *Service) ClearSessions(ctx context.Context) int {
	n := s.store.Clear(ctx)
	if s.metrics != nil && n > 0 {
		s.metrics.DecrementActiveSessions(n)
	}
	s.log().InfoContext(ctx, "all verification sessions cleared", "count", n)
	return n
}

// finalizeFailed best-effort marks the session failed with the given
// reason. A missing or concurrently finalized session is logged, not
// surfaced; the caller already owns the primary error.
func (s *Service) finalizeFailed(ctx context.Context, sessionID, reason string) *models.VerificationSession {
	var updated *models.VerificationSession
	err := s.store.Mutate(ctx, sessionID, func(session *models.VerificationSession) error {
		if err := session.MarkFailed(reason); err != nil {
			return err
		}
		copied := *session
		updated = &copied
		return nil
	})
	if err != nil {
		s.log().WarnContext(ctx, "could not record session failure",
			"session_id", sessionID,
			"error", err,
		)
		return nil
	}
	return updated
}

func (s *Service) observeVerifierCall(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveVerifierCall(operation, start)
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

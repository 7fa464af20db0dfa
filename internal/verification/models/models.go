package models

import (
	"encoding/json"
	"errors"
	"time"
)

// SessionStatus is the lifecycle state of a verification session.
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusVerified SessionStatus = "verified"
	StatusFailed   SessionStatus = "failed"
	StatusExpired  SessionStatus = "expired"
)

// Transition errors returned by session lifecycle methods. Stores and
// services translate these into domain errors at their boundary.
var (
	ErrNotPending      = errors.New("session is not pending")
	ErrNotReopenable   = errors.New("session cannot be reopened")
	ErrAlreadyReopened = errors.New("session retry already consumed")
)

// VerificationSession is the server-side, ephemeral record of one
// verification attempt. At most one live record exists per SessionID.
//
// Status transitions: pending -> {verified, failed}; failed -> pending is
// permitted exactly once (late-arriving proof); any status is force-evicted
// to expired after TTL.
type VerificationSession struct {
	SessionID      string
	Status         SessionStatus
	CreatedAt      time.Time
	ConnectionID   string
	Request        *PresentationRequest
	TransactionRef string

	// Populated only on terminal transition.
	AuditRecord json.RawMessage
	AnchorHash  string
	Error       string

	// Reopened records that the one permitted failed -> pending
	// transition has been consumed.
	Reopened bool
}

// NewSession creates a pending session for an approved pairing.
func NewSession(sessionID, connectionID string, request *PresentationRequest, now time.Time) *VerificationSession {
	s := &VerificationSession{
		SessionID:    sessionID,
		Status:       StatusPending,
		CreatedAt:    now,
		ConnectionID: connectionID,
		Request:      request,
	}
	if request != nil {
		s.TransactionRef = request.TransactionRef
	}
	return s
}

// MarkVerified finalizes the session as verified with its anchored audit record.
func (s *VerificationSession) MarkVerified(auditRecord json.RawMessage, anchorHash string) error {
	if s.Status != StatusPending {
		return ErrNotPending
	}
	s.Status = StatusVerified
	s.AuditRecord = auditRecord
	s.AnchorHash = anchorHash
	s.Error = ""
	return nil
}

// MarkFailed finalizes the session as failed with a human-readable reason.
func (s *VerificationSession) MarkFailed(reason string) error {
	if s.Status != StatusPending {
		return ErrNotPending
	}
	s.Status = StatusFailed
	s.Error = reason
	return nil
}

// Reopen moves a failed session back to pending to accept a late-arriving
// proof. Permitted exactly once per session; verified and expired sessions
// are never reopenable.
func (s *VerificationSession) Reopen() error {
	if s.Status != StatusFailed {
		return ErrNotReopenable
	}
	if s.Reopened {
		return ErrAlreadyReopened
	}
	s.Status = StatusPending
	s.Reopened = true
	s.Error = ""
	return nil
}

// Expire force-transitions the session regardless of status. Used only by
// the eviction sweep, where the record is removed in the same pass.
func (s *VerificationSession) Expire() {
	s.Status = StatusExpired
}

// ExpiredBy reports whether the session is older than ttl at the given time.
func (s *VerificationSession) ExpiredBy(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

package models

import "encoding/json"

// Wire types for the verifiable-presentation exchange. The request and
// presentation bodies are treated as opaque beyond the few fields the
// orchestrator needs; they are produced and consumed by the verifier
// backend and the identity app, not by this service.

// Statement is a single claim constraint inside a presentation request.
type Statement struct {
	Type           string   `json:"type"`
	AttributeTag   string   `json:"attributeTag"`
	Lower          string   `json:"lower,omitempty"`
	Upper          string   `json:"upper,omitempty"`
	Set            []string `json:"set,omitempty"`
	AttributeValue string   `json:"attributeValue,omitempty"`
}

// RequestedClaim describes one credential requirement sent to the verifier
// backend when creating a presentation request.
type RequestedClaim struct {
	Type       string      `json:"type"`
	Source     []string    `json:"source"`
	Issuers    []string    `json:"issuers"`
	Statements []Statement `json:"statements"`
}

// PresentationRequest is the request object issued by the verifier backend
// (a VPR). It is immutable once created and retained verbatim for resend;
// only TransactionRef is ever inspected.
type PresentationRequest struct {
	Type           string          `json:"type"`
	Context        json.RawMessage `json:"context,omitempty"`
	SubjectClaims  json.RawMessage `json:"subjectClaims,omitempty"`
	TransactionRef string          `json:"transactionRef"`
}

// presentationEnvelope is the wrapping some identity apps put around the
// raw presentation object when returning it over the pairing.
type presentationEnvelope struct {
	VerifiablePresentationJSON json.RawMessage `json:"verifiablePresentationJson"`
}

// UnwrapPresentation strips the delivery envelope from a presentation if
// present. The verifier backend accepts only the raw presentation object.
func UnwrapPresentation(presentation json.RawMessage) json.RawMessage {
	var env presentationEnvelope
	if err := json.Unmarshal(presentation, &env); err == nil && len(env.VerifiablePresentationJSON) > 0 {
		return env.VerifiablePresentationJSON
	}
	return presentation
}

// VerifyResult is the verifier backend's answer to a verify call.
// A "failed" result is a valid, non-error response.
type VerifyResult struct {
	Result      string          `json:"result"`
	AuditRecord json.RawMessage `json:"verificationAuditRecord,omitempty"`
	AnchorHash  string          `json:"anchorTransactionHash,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

const (
	ResultVerified = "verified"
	ResultFailed   = "failed"
)

// Verified reports whether the backend accepted the presentation.
func (r VerifyResult) Verified() bool {
	return r.Result == ResultVerified
}

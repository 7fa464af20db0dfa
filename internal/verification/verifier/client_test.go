package verifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/verification/models"
	dErrors "agegate/pkg/domain-errors"
)

var testIssuers = []string{"did:ccd:testnet:idp:0", "did:ccd:testnet:idp:1"}

func fixedDOBUpper(time.Time) string { return "20080831" }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:  srv.URL,
		Issuers:  testIssuers,
		DOBUpper: fixedDOBUpper,
	})
}

func TestCreateRequest(t *testing.T) {
	t.Run("builds the age-range claim and decodes the request", func(t *testing.T) {
		var got createRequestBody
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/verifiable-presentations/create-verification-request", r.URL.Path)
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &got))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"type":"ConcordiumVerificationRequestV1","transactionRef":"tx-1"}`))
		})

		request, err := c.CreateRequest(context.Background(), "topic-1", "/news", "Age verification")
		require.NoError(t, err)
		assert.Equal(t, "tx-1", request.TransactionRef)

		assert.Equal(t, "topic-1", got.ConnectionID)
		require.Len(t, got.RequestedClaims, 1)
		claim := got.RequestedClaims[0]
		assert.Equal(t, "identity", claim.Type)
		assert.Equal(t, testIssuers, claim.Issuers)
		require.Len(t, claim.Statements, 1)
		assert.Equal(t, "AttributeInRange", claim.Statements[0].Type)
		assert.Equal(t, "dob", claim.Statements[0].AttributeTag)
		assert.Equal(t, "19000101", claim.Statements[0].Lower)
		assert.Equal(t, "20080831", claim.Statements[0].Upper)
	})

	t.Run("non-success status is backend unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		_, err := c.CreateRequest(context.Background(), "topic-1", "/news", "ctx")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("transport failure is backend unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close() // connection refused from here on
		c := New(Config{BaseURL: srv.URL, DOBUpper: fixedDOBUpper})

		_, err := c.CreateRequest(context.Background(), "topic-1", "/news", "ctx")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestVerify(t *testing.T) {
	t.Run("unwraps the presentation envelope before submission", func(t *testing.T) {
		var got verifyBody
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/verifiable-presentations/verify", r.URL.Path)
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &got))

			_, _ = w.Write([]byte(`{"result":"verified","anchorTransactionHash":"0xabc","verificationAuditRecord":{"id":"audit-1"}}`))
		})

		wrapped := json.RawMessage(`{"verifiablePresentationJson":{"type":["VerifiablePresentation"]}}`)
		request := &models.PresentationRequest{TransactionRef: "tx-1"}

		result, err := c.Verify(context.Background(), "audit-1", wrapped, request)
		require.NoError(t, err)
		assert.True(t, result.Verified())
		assert.Equal(t, "0xabc", result.AnchorHash)

		assert.Equal(t, "audit-1", got.AuditRecordID)
		assert.JSONEq(t, `{"type":["VerifiablePresentation"]}`, string(got.Presentation))
		assert.Equal(t, "tx-1", got.VerificationRequest.TransactionRef)
	})

	t.Run("failed result is data, not an error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"result":"failed","reason":"proof expired"}`))
		})

		result, err := c.Verify(context.Background(), "audit-1", json.RawMessage(`{}`), nil)
		require.NoError(t, err)
		assert.False(t, result.Verified())
		assert.Equal(t, "proof expired", result.Reason)
	})

	t.Run("unparseable response is backend unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>gateway error</html>`))
		})

		_, err := c.Verify(context.Background(), "audit-1", json.RawMessage(`{}`), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("http error status is backend unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		})

		_, err := c.Verify(context.Background(), "audit-1", json.RawMessage(`{}`), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestNewPanicsWithoutDOBBound(t *testing.T) {
	assert.Panics(t, func() {
		New(Config{BaseURL: "http://localhost"})
	})
}

package authgate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agegate/pkg/domain-errors"
)

const testKey = "test-signing-key-at-least-32-bytes!!"

func issueCookie(t *testing.T, g *Gate, anchorHash string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, g.Issue(rec, anchorHash))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestGate_IssueSetsCookieAttributes(t *testing.T) {
	g := New(testKey, WithSecureCookies(true))

	cookie := issueCookie(t, g, "0xabc")

	assert.Equal(t, CookieName, cookie.Name)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge)
}

func TestGate_ValidateRoundTrip(t *testing.T) {
	g := New(testKey)

	cookie := issueCookie(t, g, "0xabc")

	req := httptest.NewRequest(http.MethodGet, "/news", nil)
	req.AddCookie(cookie)

	claims, err := g.Validate(req)
	require.NoError(t, err)
	assert.True(t, claims.Verified)
	assert.Equal(t, "0xabc", claims.AnchorHash)
	assert.Equal(t, g.Version(), claims.SessionVersion)
}

func TestGate_ValidateMissingCookie(t *testing.T) {
	g := New(testKey)

	_, err := g.Validate(httptest.NewRequest(http.MethodGet, "/news", nil))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGate_ValidateRejectsForeignSignature(t *testing.T) {
	issuer := New("some-other-signing-key-entirely!!!!!")
	g := New(testKey)

	token, err := issuer.IssueToken("0xabc")
	require.NoError(t, err)

	_, err = g.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGate_ValidateRejectsExpiredCredential(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	g := New(testKey, WithClock(func() time.Time { return current }))

	token, err := g.IssueToken("0xabc")
	require.NoError(t, err)

	current = issuedAt.Add(23 * time.Hour)
	_, err = g.ValidateToken(token)
	require.NoError(t, err)

	current = issuedAt.Add(24*time.Hour + time.Minute)
	_, err = g.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestGate_GlobalInvalidation(t *testing.T) {
	g := New(testKey)

	token, err := g.IssueToken("0xabc")
	require.NoError(t, err)
	_, err = g.ValidateToken(token)
	require.NoError(t, err)

	// Operator bumps the global version; the unexpired credential is now
	// silently invalid.
	g.InvalidateAll()
	_, err = g.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	// Freshly issued credentials carry the new version and validate.
	token, err = g.IssueToken("0xdef")
	require.NoError(t, err)
	_, err = g.ValidateToken(token)
	assert.NoError(t, err)
}

func TestGate_RequireVerified(t *testing.T) {
	g := New(testKey)

	var gotClaims *Claims
	handler := g.RequireVerified(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Without a credential.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// With a valid credential.
	req := httptest.NewRequest(http.MethodGet, "/news", nil)
	req.AddCookie(issueCookie(t, g, "0xabc"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotClaims)
	assert.Equal(t, "0xabc", gotClaims.AnchorHash)
}

func TestGate_CredentialRoute(t *testing.T) {
	g := New(testKey)
	router := chi.NewRouter()
	g.Register(router)

	// Without a credential the route is rejected outright.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verification/credential", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// With one it reports the validated claims.
	req := httptest.NewRequest(http.MethodGet, "/verification/credential", nil)
	req.AddCookie(issueCookie(t, g, "0xabc"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body CredentialResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Verified)
	assert.Equal(t, "0xabc", body.AnchorHash)
	assert.NotZero(t, body.VerifiedAt)
}

func TestGate_PanicsWithoutSigningKey(t *testing.T) {
	assert.Panics(t, func() { New("") })
}

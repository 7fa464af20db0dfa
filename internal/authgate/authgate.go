// Package authgate turns a successful verification into a browser-held
// credential: a signed cookie carrying the verification outcome, revalidated
// on every protected request against its TTL and a process-wide invalidation
// counter. Bumping the counter invalidates every outstanding credential at
// once without enumerating them.
package authgate

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/atomic"

	dErrors "agegate/pkg/domain-errors"
)

// CookieName is the browser cookie holding the age credential.
const CookieName = "age-gate-session"

const defaultCredentialTTL = 24 * time.Hour

// Claims is the sealed content of the age credential.
type Claims struct {
	Verified       bool   `json:"verified"`
	VerifiedAt     int64  `json:"verified_at"`
	AnchorHash     string `json:"anchor_hash,omitempty"`
	SessionVersion uint64 `json:"session_version"`
	jwt.RegisteredClaims
}

// Gate issues and validates age credentials.
type Gate struct {
	signingKey []byte
	ttl        time.Duration
	secure     bool
	version    *atomic.Uint64
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Gate.
type Option func(*Gate)

// WithTTL overrides the credential lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithSecureCookies marks issued cookies Secure (HTTPS-only deployments).
func WithSecureCookies(secure bool) Option {
	return func(g *Gate) {
		g.secure = secure
	}
}

// WithLogger sets the logger for the gate.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New creates a gate sealing credentials with the given key.
func New(signingKey string, opts ...Option) *Gate {
	if signingKey == "" {
		panic("authgate.New: signing key is required")
	}
	g := &Gate{
		signingKey: []byte(signingKey),
		ttl:        defaultCredentialTTL,
		version:    atomic.NewUint64(1),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IssueToken seals a credential for a just-verified session.
func (g *Gate) IssueToken(anchorHash string) (string, error) {
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Verified:       true,
		VerifiedAt:     now.Unix(),
		AnchorHash:     anchorHash,
		SessionVersion: g.version.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	})
	signed, err := token.SignedString(g.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential")
	}
	return signed, nil
}

// Issue seals a credential and attaches it to the response as the age-gate
// cookie.
func (g *Gate) Issue(w http.ResponseWriter, anchorHash string) error {
	token, err := g.IssueToken(anchorHash)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ValidateToken checks a sealed credential. Valid iff the signature holds,
// the credential is marked verified, it is younger than the TTL, and its
// session version matches the current global version.
func (g *Gate) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return g.signingKey, nil
	}, jwt.WithTimeFunc(g.now))
	if err != nil || !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
	}

	if !claims.Verified {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "credential is not verified")
	}
	if g.now().Sub(time.Unix(claims.VerifiedAt, 0)) > g.ttl {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "credential has expired")
	}
	if claims.SessionVersion != g.version.Load() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "credential was invalidated")
	}
	return claims, nil
}

// Validate checks the age-gate cookie on a request.
func (g *Gate) Validate(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing credential")
	}
	return g.ValidateToken(cookie.Value)
}

// InvalidateAll bumps the global session version, silently invalidating
// every outstanding credential. Returns the new version.
func (g *Gate) InvalidateAll() uint64 {
	v := g.version.Inc()
	g.log().Info("all age credentials invalidated", "session_version", v)
	return v
}

// Version returns the current global session version.
func (g *Gate) Version() uint64 {
	return g.version.Load()
}

func (g *Gate) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}

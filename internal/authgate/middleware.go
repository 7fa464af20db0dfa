package authgate

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "agegate/pkg/domain-errors"
	"agegate/pkg/platform/httputil"
)

type contextKey string

const claimsKey contextKey = "age_gate_claims"

// RequireVerified rejects requests without a valid age credential and makes
// the claims available to downstream handlers.
func (g *Gate) RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := g.Validate(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the validated credential claims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// Register mounts the credential introspection route. The UI calls it on
// page load to decide whether the requester already holds a valid
// credential or has to start a verification flow.
func (g *Gate) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(g.RequireVerified)
		r.Get("/verification/credential", g.handleCredential)
	})
}

// CredentialResponse describes the requester's validated credential.
type CredentialResponse struct {
	Verified   bool   `json:"verified"`
	VerifiedAt int64  `json:"verifiedAt"`
	AnchorHash string `json:"anchorHash,omitempty"`
}

func (g *Gate) handleCredential(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no credential presented"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CredentialResponse{
		Verified:   claims.Verified,
		VerifiedAt: claims.VerifiedAt,
		AnchorHash: claims.AnchorHash,
	})
}

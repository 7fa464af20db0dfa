package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agegate/internal/authgate"
	"agegate/internal/news/models"
	"agegate/pkg/platform/httputil"
)

// Service provides the aggregated article list.
type Service interface {
	Headlines(ctx context.Context, category string) []models.Article
}

// CredentialValidator checks the requester's age credential.
// Implemented by authgate.Gate.
type CredentialValidator interface {
	Validate(r *http.Request) (*authgate.Claims, error)
}

// Handler serves the news feed, gating full article content behind a valid
// age credential.
type Handler struct {
	service Service
	gate    CredentialValidator
	logger  *slog.Logger
}

// New creates a news Handler.
func New(service Service, gate CredentialValidator, logger *slog.Logger) *Handler {
	if service == nil {
		panic("handler.New: service is required")
	}
	if gate == nil {
		panic("handler.New: credential validator is required")
	}
	return &Handler{
		service: service,
		gate:    gate,
		logger:  logger,
	}
}

// Register registers the news routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/news", h.handleHeadlines)
}

// FeedResponse is the news listing. Articles are always listed; their full
// content is included only for verified requesters.
type FeedResponse struct {
	Verified bool             `json:"verified"`
	Articles []models.Article `json:"articles"`
}

func (h *Handler) handleHeadlines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, err := h.gate.Validate(r)
	verified := err == nil

	articles := h.service.Headlines(ctx, r.URL.Query().Get("category"))
	if !verified {
		articles = stripContent(articles)
	}

	httputil.WriteJSON(w, http.StatusOK, FeedResponse{
		Verified: verified,
		Articles: articles,
	})
}

// stripContent removes the gated fields without mutating the cached slice.
func stripContent(articles []models.Article) []models.Article {
	out := make([]models.Article, len(articles))
	for i, a := range articles {
		a.Content = ""
		out[i] = a
	}
	return out
}

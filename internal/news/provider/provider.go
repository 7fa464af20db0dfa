// Package provider holds the upstream news API clients. Each client
// normalizes its provider's response shape into models.Article; failures
// are reported to the caller, which degrades to the remaining providers.
package provider

import (
	"context"
	"net/http"

	"agegate/internal/news/models"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Provider fetches headlines from one upstream news API. An empty
// category requests the provider's default front-page feed.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, category string) ([]models.Article, error)
}

const defaultPageSize = 10

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "agegate/pkg/domain-errors"
)

func TestGNews_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.URL.Query().Get("apikey"))
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		_, _ = w.Write([]byte(`{"articles":[{
			"title":"a story",
			"description":"teaser",
			"content":"full text",
			"url":"https://example.com/a",
			"image":"https://example.com/a.jpg",
			"publishedAt":"2026-08-31T10:00:00Z",
			"source":{"name":"Example Wire"}
		}]}`))
	}))
	defer server.Close()

	p := NewGNews("key-1", nil)
	p.baseURL = server.URL

	articles, err := p.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "a story", articles[0].Title)
	assert.Equal(t, "Example Wire", articles[0].Source)
	assert.Equal(t, "full text", articles[0].Content)
}

func TestGNews_FetchCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "technology", r.URL.Query().Get("category"))
		_, _ = w.Write([]byte(`{"articles":[]}`))
	}))
	defer server.Close()

	p := NewGNews("key-1", nil)
	p.baseURL = server.URL

	_, err := p.Fetch(context.Background(), "technology")
	require.NoError(t, err)
}

func TestGNews_FetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	p := NewGNews("key-1", nil)
	p.baseURL = server.URL

	_, err := p.Fetch(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestGuardian_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-2", r.URL.Query().Get("api-key"))
		assert.Equal(t, "trailText,bodyText,thumbnail", r.URL.Query().Get("show-fields"))
		_, _ = w.Write([]byte(`{"response":{"results":[{
			"webTitle":"another story",
			"webUrl":"https://example.com/b",
			"webPublicationDate":"2026-08-31T09:00:00Z",
			"fields":{"trailText":"teaser","bodyText":"full text","thumbnail":"https://example.com/b.jpg"}
		}]}}`))
	}))
	defer server.Close()

	p := NewGuardian("key-2", nil)
	p.baseURL = server.URL

	articles, err := p.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "another story", articles[0].Title)
	assert.Equal(t, "The Guardian", articles[0].Source)
	assert.Equal(t, "https://example.com/b.jpg", articles[0].ImageURL)
}

func TestGuardian_FetchCategoryMapsToSection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "technology", r.URL.Query().Get("section"))
		_, _ = w.Write([]byte(`{"response":{"results":[]}}`))
	}))
	defer server.Close()

	p := NewGuardian("key-2", nil)
	p.baseURL = server.URL

	_, err := p.Fetch(context.Background(), "technology")
	require.NoError(t, err)
}

func TestGuardian_FetchTransportError(t *testing.T) {
	p := NewGuardian("key-2", nil)
	p.baseURL = "http://127.0.0.1:1"

	_, err := p.Fetch(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agegate/internal/news/models"
	"agegate/internal/news/provider"
	dErrors "agegate/pkg/domain-errors"
)

type stubProvider struct {
	name     string
	articles []models.Article
	err      error

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(context.Context, string) ([]models.Article, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.articles, p.err
}

func (p *stubProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func article(title, source string, age time.Duration) models.Article {
	return models.Article{
		Title:       title,
		Source:      source,
		Content:     "full text of " + title,
		PublishedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestService_MergesAndSortsNewestFirst(t *testing.T) {
	a := &stubProvider{name: "a", articles: []models.Article{
		article("older story", "a", 2*time.Hour),
		article("newest story", "a", 0),
	}}
	b := &stubProvider{name: "b", articles: []models.Article{
		article("middle story", "b", time.Hour),
	}}

	svc := NewService([]provider.Provider{a, b})

	got := svc.Headlines(context.Background(), "")
	require.Len(t, got, 3)
	assert.Equal(t, "newest story", got[0].Title)
	assert.Equal(t, "middle story", got[1].Title)
	assert.Equal(t, "older story", got[2].Title)
}

func TestService_DeduplicatesSyndicatedHeadlines(t *testing.T) {
	a := &stubProvider{name: "a", articles: []models.Article{
		article("Breaking: the same story", "a", 0),
	}}
	b := &stubProvider{name: "b", articles: []models.Article{
		article("  breaking: THE SAME story ", "b", time.Hour),
		article("a different story", "b", time.Hour),
	}}

	svc := NewService([]provider.Provider{a, b})

	got := svc.Headlines(context.Background(), "")
	require.Len(t, got, 2)
	// The newer copy wins the dedupe.
	assert.Equal(t, "a", got[0].Source)
}

func TestService_DegradesWhenOneProviderFails(t *testing.T) {
	healthy := &stubProvider{name: "healthy", articles: []models.Article{
		article("surviving story", "healthy", 0),
	}}
	broken := &stubProvider{name: "broken", err: dErrors.New(dErrors.CodeUnavailable, "gnews returned status 403")}

	svc := NewService([]provider.Provider{healthy, broken})

	got := svc.Headlines(context.Background(), "")
	require.Len(t, got, 1)
	assert.Equal(t, "surviving story", got[0].Title)
}

func TestService_ServesFromCacheWithinTTL(t *testing.T) {
	current := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	p := &stubProvider{name: "a", articles: []models.Article{article("story", "a", 0)}}

	svc := NewService([]provider.Provider{p},
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)

	svc.Headlines(context.Background(), "")
	svc.Headlines(context.Background(), "")
	assert.Equal(t, 1, p.fetchCount())

	current = current.Add(2 * time.Minute)
	svc.Headlines(context.Background(), "")
	assert.Equal(t, 2, p.fetchCount())
}

func TestService_CachesPerCategory(t *testing.T) {
	current := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	p := &stubProvider{name: "a", articles: []models.Article{article("story", "a", 0)}}

	svc := NewService([]provider.Provider{p},
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)

	svc.Headlines(context.Background(), "")
	svc.Headlines(context.Background(), "technology")
	assert.Equal(t, 2, p.fetchCount())

	// Category values normalize before the cache lookup.
	svc.Headlines(context.Background(), " Technology ")
	assert.Equal(t, 2, p.fetchCount())
}

func TestService_OpenCircuitSkipsBrokenProvider(t *testing.T) {
	current := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	broken := &stubProvider{name: "broken", err: dErrors.New(dErrors.CodeUnavailable, "guardian returned status 500")}

	svc := NewService([]provider.Provider{broken},
		WithCacheTTL(time.Nanosecond),
		WithClock(func() time.Time { return current }),
	)

	// Three consecutive failing refreshes open the circuit.
	for i := 0; i < 3; i++ {
		svc.Headlines(context.Background(), "")
		current = current.Add(time.Second)
	}
	require.Equal(t, 3, broken.fetchCount())

	// While open, refreshes skip the provider entirely.
	svc.Headlines(context.Background(), "")
	assert.Equal(t, 3, broken.fetchCount())
}

func TestService_PanicsWithoutProviders(t *testing.T) {
	assert.Panics(t, func() { NewService(nil) })
}

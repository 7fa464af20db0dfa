package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"agegate/internal/news/models"
	"agegate/internal/news/provider"
	"agegate/pkg/platform/circuit"
)

const (
	defaultCacheTTL = 5 * time.Minute
	// titlePrefixLen bounds the normalized-title comparison used for
	// cross-provider deduplication.
	titlePrefixLen = 60
)

type Option func(*Service)

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCacheTTL overrides how long an aggregated result is served from cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service aggregates headlines across providers behind a read-through
// cache. Provider failures degrade the result instead of failing it; a
// provider that errors contributes nothing for that refresh.
type Service struct {
	providers []provider.Provider
	breakers  []*circuit.Breaker
	cacheTTL  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	articles  []models.Article
	fetchedAt time.Time
}

// NewService creates the news aggregation service.
func NewService(providers []provider.Provider, opts ...Option) *Service {
	if len(providers) == 0 {
		panic("service.NewService: at least one provider is required")
	}
	svc := &Service{
		providers: providers,
		cacheTTL:  defaultCacheTTL,
		now:       time.Now,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.breakers = make([]*circuit.Breaker, len(providers))
	for i, p := range providers {
		svc.breakers[i] = circuit.New(p.Name(), circuit.WithClock(svc.now))
	}
	return svc
}

// Headlines returns the aggregated article list for a category (empty for
// the front page), refreshing the cache when stale. Concurrent refreshes
// of the same category are collapsed to one upstream fan-out.
func (s *Service) Headlines(ctx context.Context, category string) []models.Article {
	category = strings.ToLower(strings.TrimSpace(category))

	s.mu.RLock()
	entry, ok := s.cache[category]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetchedAt) <= s.cacheTTL {
		return entry.articles
	}

	result, _, _ := s.group.Do("headlines:"+category, func() (any, error) {
		articles := s.refresh(ctx, category)
		s.mu.Lock()
		s.cache[category] = cacheEntry{articles: articles, fetchedAt: s.now()}
		s.mu.Unlock()
		return articles, nil
	})
	return result.([]models.Article)
}

// refresh fans out to every provider in parallel and merges the results.
func (s *Service) refresh(ctx context.Context, category string) []models.Article {
	results := make([][]models.Article, len(s.providers))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range s.providers {
		i, p := i, p
		breaker := s.breakers[i]
		g.Go(func() error {
			if !breaker.Allow() {
				s.log().DebugContext(ctx, "skipping news provider, circuit open", "provider", p.Name())
				return nil
			}
			articles, err := p.Fetch(ctx, category)
			if err != nil {
				if breaker.RecordFailure() {
					s.log().WarnContext(ctx, "news provider circuit opened", "provider", p.Name())
				}
				s.log().WarnContext(ctx, "news provider failed",
					"provider", p.Name(),
					"error", err,
				)
				return nil
			}
			breaker.RecordSuccess()
			results[i] = articles
			return nil
		})
	}
	_ = g.Wait()

	var merged []models.Article
	for _, articles := range results {
		merged = append(merged, articles...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})
	return dedupe(merged)
}

// dedupe drops articles whose normalized title prefix was already seen.
// Providers frequently syndicate the same story under near-identical
// headlines.
func dedupe(articles []models.Article) []models.Article {
	seen := make(map[string]struct{}, len(articles))
	out := articles[:0]
	for _, a := range articles {
		key := titleKey(a.Title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func titleKey(title string) string {
	key := strings.ToLower(strings.TrimSpace(title))
	if len(key) > titlePrefixLen {
		key = key[:titlePrefixLen]
	}
	return key
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

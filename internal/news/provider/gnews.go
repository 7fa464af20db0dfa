package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"agegate/internal/news/models"
	dErrors "agegate/pkg/domain-errors"
)

const gnewsBaseURL = "https://gnews.io/api/v4/top-headlines"

// GNews fetches top headlines from the GNews API.
type GNews struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
}

// NewGNews creates a GNews provider.
func NewGNews(apiKey string, client HTTPDoer) *GNews {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GNews{
		apiKey:  apiKey,
		baseURL: gnewsBaseURL,
		client:  client,
	}
}

func (g *GNews) Name() string {
	return "gnews"
}

type gnewsResponse struct {
	Articles []struct {
		Title       string    `json:"title"`
		Description string    `json:"description"`
		Content     string    `json:"content"`
		URL         string    `json:"url"`
		Image       string    `json:"image"`
		PublishedAt time.Time `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
	} `json:"articles"`
}

func (g *GNews) Fetch(ctx context.Context, category string) ([]models.Article, error) {
	query := url.Values{
		"lang":   {"en"},
		"max":    {fmt.Sprint(defaultPageSize)},
		"apikey": {g.apiKey},
	}
	if category != "" {
		query.Set("category", category)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build gnews request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "gnews unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("gnews returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read gnews response")
	}

	var parsed gnewsResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "unparseable gnews response")
	}

	articles := make([]models.Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		articles = append(articles, models.Article{
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			ImageURL:    a.Image,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

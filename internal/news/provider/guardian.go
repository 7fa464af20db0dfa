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

const guardianBaseURL = "https://content.guardianapis.com/search"

// Guardian fetches headlines from the Guardian content API.
type Guardian struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
}

// NewGuardian creates a Guardian provider.
func NewGuardian(apiKey string, client HTTPDoer) *Guardian {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Guardian{
		apiKey:  apiKey,
		baseURL: guardianBaseURL,
		client:  client,
	}
}

func (g *Guardian) Name() string {
	return "guardian"
}

type guardianResponse struct {
	Response struct {
		Results []struct {
			WebTitle           string    `json:"webTitle"`
			WebURL             string    `json:"webUrl"`
			WebPublicationDate time.Time `json:"webPublicationDate"`
			Fields             struct {
				TrailText string `json:"trailText"`
				BodyText  string `json:"bodyText"`
				Thumbnail string `json:"thumbnail"`
			} `json:"fields"`
		} `json:"results"`
	} `json:"response"`
}

func (g *Guardian) Fetch(ctx context.Context, category string) ([]models.Article, error) {
	query := url.Values{
		"api-key":     {g.apiKey},
		"show-fields": {"trailText,bodyText,thumbnail"},
		"page-size":   {fmt.Sprint(defaultPageSize)},
	}
	if category != "" {
		query.Set("section", category)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build guardian request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "guardian unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("guardian returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to read guardian response")
	}

	var parsed guardianResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "unparseable guardian response")
	}

	articles := make([]models.Article, 0, len(parsed.Response.Results))
	for _, r := range parsed.Response.Results {
		articles = append(articles, models.Article{
			Title:       r.WebTitle,
			Description: r.Fields.TrailText,
			Content:     r.Fields.BodyText,
			URL:         r.WebURL,
			ImageURL:    r.Fields.Thumbnail,
			Source:      "The Guardian",
			PublishedAt: r.WebPublicationDate,
		})
	}
	return articles, nil
}

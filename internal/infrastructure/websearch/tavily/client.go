package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api.tavily.com"

// DefaultDomains restricts historical fact lookups to encyclopedic sources.
var DefaultDomains = []string{"ko.wikipedia.org", "encykorea.aks.ac.kr"}

type Config struct {
	APIKey         string
	BaseURL        string
	IncludeDomains []string
	MaxResults     int
}

// Client answers historical questions with the Tavily search API.
type Client struct {
	apiKey     string
	baseURL    string
	domains    []string
	maxResults int
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	domains := cfg.IncludeDomains
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		domains:    domains,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) WithResilience(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	IncludeAnswer  string   `json:"include_answer"`
	IncludeDomains []string `json:"include_domains"`
	MaxResults     int      `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns the synthesized answer for query.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	payload := searchRequest{
		Query:          query,
		SearchDepth:    "advanced",
		IncludeAnswer:  "advanced",
		IncludeDomains: c.domains,
		MaxResults:     c.maxResults,
	}

	resp, err := resilience.Do(ctx, c.executor, "tavily.search", func(ctx context.Context) (searchResponse, error) {
		var out searchResponse
		err := c.postJSON(ctx, "/search", payload, &out)
		return out, err
	}, classifyError)
	if err != nil {
		return "", wrapTemporaryIfNeeded(err)
	}
	return resp.Answer, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tavily response: %w", err)
	}
	return nil
}

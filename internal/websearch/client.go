// Package websearch queries the Tavily search API for recent or external
// information the knowledge base does not cover.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/logging"
)

// ErrNoAPIKey is returned when no Tavily key is configured.
var ErrNoAPIKey = errors.New("web search: TAVILY_API_KEY not set")

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 3
	directAnswerTitle = "Resposta Direta"
)

// Result is one web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client searches the web through Tavily.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Tavily client.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		maxResults: opts.MaxResults,
		httpClient: opts.HTTPClient,
		logger:     logging.OrNop(opts.Logger).Named("websearch"),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.maxResults <= 0 {
		c.maxResults = defaultMaxResults
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

type searchRequest struct {
	APIKey            string   `json:"api_key"`
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeRawContent bool     `json:"include_raw_content"`
	MaxResults        int      `json:"max_results"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
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

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tavily returned status %d: %s", e.code, e.body)
}

// Search runs an optimised advanced search and returns at most MaxResults
// hits ordered by quality score, preceded by Tavily's direct answer when
// one is available. When the advanced search is rejected by the API a
// basic search with the raw query is tried once.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	optimized := Optimize(query)
	c.logger.Debug("web search", zap.String("query", query), zap.String("optimized", optimized))

	resp, err := c.do(ctx, searchRequest{
		APIKey:         c.apiKey,
		Query:          optimized,
		SearchDepth:    "advanced",
		IncludeAnswer:  true,
		MaxResults:     c.maxResults + 3,
		IncludeDomains: trustedDomains[:10],
		ExcludeDomains: blockedDomains,
	})
	var se *statusError
	if errors.As(err, &se) {
		c.logger.Warn("advanced search rejected, retrying basic search", zap.Error(err))
		resp, err = c.do(ctx, searchRequest{
			APIKey:      c.apiKey,
			Query:       query,
			SearchDepth: "basic",
			MaxResults:  c.maxResults,
		})
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Results)+1)
	for _, r := range resp.Results {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: CleanSnippet(r.Content, 400),
			Score:   score(r.Score, r.URL, r.Title, r.Content),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > c.maxResults {
		results = results[:c.maxResults]
	}

	if resp.Answer != "" {
		results = append([]Result{{
			Title:   directAnswerTitle,
			Snippet: CleanSnippet(resp.Answer, 500),
			Score:   1.0,
		}}, results...)
	}

	c.logger.Debug("web search done", zap.Int("results", len(results)))
	return results, nil
}

func (c *Client) do(ctx context.Context, body searchRequest) (*searchResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Format renders results as the text block handed to the generator.
func Format(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		snippet := r.Snippet
		if rs := []rune(snippet); len(rs) > 300 {
			snippet = string(rs[:300])
		}
		parts = append(parts, "- "+r.Title+"\n"+snippet)
	}
	return strings.Join(parts, "\n\n")
}

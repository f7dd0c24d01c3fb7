package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPExecutor talks to a Firecrawl-compatible execution API.
type HTTPExecutor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTP creates an HTTPExecutor for the given endpoint.
func NewHTTP(baseURL, apiKey string) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPExecutor) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (h *HTTPExecutor) Search(ctx context.Context, query string, topk int) ([]string, error) {
	var out struct {
		Results []string `json:"results"`
	}
	payload := map[string]any{"query": query, "limit": topk}
	if err := h.post(ctx, "/v1/search", payload, &out); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return out.Results, nil
}

func (h *HTTPExecutor) Scrape(ctx context.Context, url string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	payload := map[string]any{"url": url, "formats": []string{"markdown"}}
	if err := h.post(ctx, "/v1/scrape", payload, &out); err != nil {
		return "", fmt.Errorf("scrape: %w", err)
	}
	return out.Content, nil
}

func (h *HTTPExecutor) Crawl(ctx context.Context, url string, maxDepth, limit int) ([]string, error) {
	var out struct {
		Pages []string `json:"pages"`
	}
	payload := map[string]any{"url": url, "maxDepth": maxDepth, "limit": limit}
	if err := h.post(ctx, "/v1/crawl", payload, &out); err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}
	return out.Pages, nil
}

func (h *HTTPExecutor) DeepResearch(ctx context.Context, query string) (Research, error) {
	var out Research
	payload := map[string]any{"query": query}
	if err := h.post(ctx, "/v1/deep-research", payload, &out); err != nil {
		return Research{}, fmt.Errorf("deep research: %w", err)
	}
	return out, nil
}

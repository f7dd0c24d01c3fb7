package exec

import (
	"context"
	"fmt"
)

// Stub is a deterministic offline executor used when no provider is
// configured, and in tests. Results are placeholders derived from the input.
type Stub struct{}

// NewStub returns a Stub executor.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Search(_ context.Context, query string, topk int) ([]string, error) {
	if topk <= 0 {
		topk = 5
	}
	out := make([]string, 0, topk)
	for i := 1; i <= topk; i++ {
		out = append(out, fmt.Sprintf("result %d for %q", i, query))
	}
	return out, nil
}

func (s *Stub) Scrape(_ context.Context, url string) (string, error) {
	return fmt.Sprintf("stub content for %s", url), nil
}

func (s *Stub) Crawl(_ context.Context, url string, maxDepth, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	n := limit
	if n > 10 {
		n = 10
	}
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("%s/page-%d", url, i))
	}
	_ = maxDepth
	return out, nil
}

func (s *Stub) DeepResearch(_ context.Context, query string) (Research, error) {
	return Research{
		Steps:   []string{"collect sources", "cross-check claims", "summarize"},
		Summary: fmt.Sprintf("stub research summary for %q", query),
	}, nil
}

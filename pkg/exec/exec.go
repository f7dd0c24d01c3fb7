// Package exec defines the downstream execution boundary: the search,
// scrape, crawl, and deep-research operations the governor routes to after
// admission. Implementations do the network work; the governor owns caps,
// caching, and error containment.
package exec

import "context"

// Research is the outcome of a deep-research run.
type Research struct {
	Steps   []string `json:"steps"`
	Summary string   `json:"summary"`
}

// Executor runs routed queries. All methods are fallible; the governor
// converts failures into bounded user-safe strings, never panics or aborts.
type Executor interface {
	Search(ctx context.Context, query string, topk int) ([]string, error)
	Scrape(ctx context.Context, url string) (string, error)
	Crawl(ctx context.Context, url string, maxDepth, limit int) ([]string, error)
	DeepResearch(ctx context.Context, query string) (Research, error)
}

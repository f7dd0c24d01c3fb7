// Package classify maps a free-text query to the execution mode that serves
// it best: search, scrape, scrape_multi, crawl, or deep_research. It is a
// pure function of the input text; execution caps are re-applied by the
// caller regardless of what is proposed here.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Mode is the selected execution strategy.
type Mode string

const (
	ModeSearch       Mode = "search"
	ModeScrape       Mode = "scrape"
	ModeScrapeMulti  Mode = "scrape_multi"
	ModeCrawl        Mode = "crawl"
	ModeDeepResearch Mode = "deep_research"
)

// Params carry the mode-specific execution parameters.
type Params struct {
	URL      string   `json:"url,omitempty"`
	URLs     []string `json:"urls,omitempty"`
	Query    string   `json:"query,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	MaxDepth int      `json:"max_depth,omitempty"`
}

// Result is a classification outcome: the mode, its parameters, and ordered
// follow-up hints for the caller.
type Result struct {
	Mode      Mode     `json:"mode"`
	Params    Params   `json:"params"`
	Followups []string `json:"followups,omitempty"`
}

const (
	maxURLs          = 5
	searchQueryChars = 120
	deepQueryChars   = 180
	deepLengthGate   = 160

	defaultSearchLimit = 5
	listSearchLimit    = 8

	defaultCrawlDepth = 2
	minCrawlDepth     = 1
	maxCrawlDepth     = 3
	defaultCrawlLimit = 20
	minCrawlLimit     = 5
	maxCrawlLimit     = 50
)

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	domainPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9-]+\.)+[a-z]{2,}\b`)
	depthPattern  = regexp.MustCompile(`depth\s*(\d)`)
	limitPattern  = regexp.MustCompile(`limit\s*(\d{1,3})`)

	analyticalKeywords = []string{"versus", "vs", "compare", "comparison", "impact", "trend", "analysis", "pros and cons", "future", "strategy"}
	crawlKeywords      = []string{"crawl", "site", "all pages", "map", "discover"}
	listKeywords       = []string{"list", "top", "best", "alternatives"}
)

// Classify routes text to a mode. Precedence is fixed: explicit URLs first,
// then crawl intent, then deep-research intent, then default search.
func Classify(text string) Result {
	lowered := strings.ToLower(text)
	urls := ExtractURLs(text)

	if len(urls) == 1 {
		return Result{Mode: ModeScrape, Params: Params{URL: urls[0]}}
	}
	if len(urls) > 1 {
		if len(urls) > maxURLs {
			urls = urls[:maxURLs]
		}
		return Result{
			Mode:      ModeScrapeMulti,
			Params:    Params{URLs: urls},
			Followups: []string{"synthesize results"},
		}
	}

	if domain := domainPattern.FindString(text); domain != "" && containsAny(lowered, crawlKeywords) {
		depth := defaultCrawlDepth
		if m := depthPattern.FindStringSubmatch(lowered); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				depth = clamp(n, minCrawlDepth, maxCrawlDepth)
			}
		}
		limit := defaultCrawlLimit
		if m := limitPattern.FindStringSubmatch(lowered); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				limit = clamp(n, minCrawlLimit, maxCrawlLimit)
			}
		}
		return Result{
			Mode:      ModeCrawl,
			Params:    Params{URL: domain, MaxDepth: depth, Limit: limit},
			Followups: []string{"extract representative pages"},
		}
	}

	if utf8.RuneCountInString(text) > deepLengthGate || containsAny(lowered, analyticalKeywords) {
		return Result{
			Mode:      ModeDeepResearch,
			Params:    Params{Query: truncate(text, deepQueryChars)},
			Followups: []string{"may need multi-source synthesis"},
		}
	}

	limit := defaultSearchLimit
	if containsAny(lowered, listKeywords) {
		limit = listSearchLimit
	}
	return Result{
		Mode:      ModeSearch,
		Params:    Params{Query: truncate(text, searchQueryChars), Limit: limit},
		Followups: []string{"if single high-confidence result -> scrape"},
	}
}

// ExtractURLs pulls explicit http(s) URLs out of text, deduplicated
// case-insensitively in order of appearance, capped at 10. Bare domains are
// deliberately not extracted here so that crawl intent can claim them.
func ExtractURLs(text string) []string {
	found := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(found))
	var uniq []string
	for _, f := range found {
		c := strings.TrimRight(f, ".,;")
		if strings.Contains(c, " ") || !strings.Contains(c, ".") {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, c)
		if len(uniq) == 10 {
			break
		}
	}
	return uniq
}

func containsAny(lowered string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

// truncate counts and cuts in runes so a multi-byte character is never
// split.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

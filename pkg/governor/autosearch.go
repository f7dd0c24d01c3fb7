package governor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/guildgate/guildgate/pkg/cache"
	"github.com/guildgate/guildgate/pkg/classify"
	"github.com/guildgate/guildgate/pkg/models"
)

const (
	autosearchTool = "autosearch"

	multiScrapeMaxURLs  = 3
	multiScrapePerChars = 1200
	crawlListMax        = 10
	deepStepsMax        = 6
	deepSummaryChars    = 2000
	errDetailChars      = 120
)

// Autosearch classifies a free-text query and, when execute is set, admits
// and runs the chosen mode through the result cache. Execution faults come
// back as bounded text in the result, never as a Go error; the error return
// is reserved for store failures.
func (g *Governor) Autosearch(ctx context.Context, sub models.Subject, query string, execute bool) (string, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return "(empty query)", nil
	}

	res := classify.Classify(text)

	if !execute {
		if err := g.bumpAutosearch(sub.GuildID, res.Mode, false); err != nil {
			return "", err
		}
		return planText(res), nil
	}

	d, err := g.AdmitTool(ctx, sub, autosearchTool)
	if err != nil {
		return "", err
	}
	if !d.Allowed {
		return d.Reason, nil
	}

	start := g.now()
	out, ok := g.dispatch(ctx, sub.GuildID, res)
	latency := g.now().Sub(start)

	g.recordToolTelemetry(sub.GuildID, autosearchTool, latency, ok)
	g.auditExecution(ctx, sub, autosearchTool, string(res.Mode), latency, ok)
	if err := g.bumpAutosearch(sub.GuildID, res.Mode, true); err != nil {
		return "", err
	}
	return out, nil
}

func (g *Governor) bumpAutosearch(guildID string, mode classify.Mode, executed bool) error {
	return g.store.Update(guildID, func(rec *models.GuildRecord) error {
		rec.Usage.Autosearch.Classified++
		if executed {
			if rec.Usage.Autosearch.Executed == nil {
				rec.Usage.Autosearch.Executed = make(map[string]int64)
			}
			rec.Usage.Autosearch.Executed[string(mode)]++
		}
		return nil
	})
}

func planText(res classify.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode: %s\n", res.Mode)
	switch res.Mode {
	case classify.ModeScrape:
		fmt.Fprintf(&b, "url: %s\n", res.Params.URL)
	case classify.ModeScrapeMulti:
		fmt.Fprintf(&b, "urls: %s\n", strings.Join(res.Params.URLs, ", "))
	case classify.ModeCrawl:
		fmt.Fprintf(&b, "url: %s\ndepth: %d\nlimit: %d\n", res.Params.URL, res.Params.MaxDepth, res.Params.Limit)
	case classify.ModeDeepResearch:
		fmt.Fprintf(&b, "query: %s\n", res.Params.Query)
	default:
		fmt.Fprintf(&b, "query: %s\nlimit: %d\n", res.Params.Query, res.Params.Limit)
	}
	if len(res.Followups) > 0 {
		fmt.Fprintf(&b, "followups: %s\n", strings.Join(res.Followups, "; "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// dispatch runs one classified mode and reports whether execution succeeded.
func (g *Governor) dispatch(ctx context.Context, guildID string, res classify.Result) (string, bool) {
	switch res.Mode {
	case classify.ModeScrape:
		return g.runScrape(ctx, guildID, res.Params.URL)
	case classify.ModeScrapeMulti:
		return g.runScrapeMulti(ctx, guildID, res.Params.URLs)
	case classify.ModeCrawl:
		return g.runCrawl(ctx, guildID, res.Params)
	case classify.ModeDeepResearch:
		return g.runDeepResearch(ctx, guildID, res.Params.Query)
	default:
		return g.runSearch(ctx, guildID, res.Params)
	}
}

func (g *Governor) runSearch(ctx context.Context, guildID string, p classify.Params) (string, bool) {
	key := cache.Key(guildID, "search", p.Query, map[string]string{"limit": strconv.Itoa(p.Limit)})
	if hit, ok := g.cache.Get(key); ok {
		return hit, true
	}
	results, err := g.exec.Search(ctx, p.Query, p.Limit)
	if err != nil {
		return execErrText(err), false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "search: %s\n", p.Query)
	for i, r := range results {
		if i >= p.Limit {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(r, 200))
	}
	out := strings.TrimRight(b.String(), "\n")
	g.cache.Set(key, out, 0)
	return out, true
}

func (g *Governor) runScrape(ctx context.Context, guildID, url string) (string, bool) {
	key := cache.Key(guildID, "scrape", url, nil)
	if hit, ok := g.cache.Get(key); ok {
		return hit, true
	}
	content, err := g.exec.Scrape(ctx, url)
	if err != nil {
		return execErrText(err), false
	}
	out := fmt.Sprintf("scrape: %s\n---\n%s", url, clampContent(content, g.scrapeChars()))
	g.cache.Set(key, out, 0)
	return out, true
}

// runScrapeMulti fetches each URL independently so one bad page does not
// sink the batch. The overall call counts as failed only when every fetch
// failed.
func (g *Governor) runScrapeMulti(ctx context.Context, guildID string, urls []string) (string, bool) {
	if len(urls) > multiScrapeMaxURLs {
		urls = urls[:multiScrapeMaxURLs]
	}
	var b strings.Builder
	succeeded := 0
	for _, u := range urls {
		fmt.Fprintf(&b, "### %s\n", u)
		key := cache.Key(guildID, "scrape_multi", u, nil)
		if hit, ok := g.cache.Get(key); ok {
			b.WriteString(hit)
			b.WriteString("\n\n")
			succeeded++
			continue
		}
		content, err := g.exec.Scrape(ctx, u)
		if err != nil {
			fmt.Fprintf(&b, "%s\n\n", execErrText(err))
			continue
		}
		section := clampContent(content, multiScrapePerChars)
		g.cache.Set(key, section, 0)
		b.WriteString(section)
		b.WriteString("\n\n")
		succeeded++
	}
	return strings.TrimRight(b.String(), "\n"), succeeded > 0
}

func (g *Governor) runCrawl(ctx context.Context, guildID string, p classify.Params) (string, bool) {
	depth := clampInt(p.MaxDepth, 1, 3)
	limit := clampInt(p.Limit, 5, 50)
	key := cache.Key(guildID, "crawl", p.URL, map[string]string{
		"depth": strconv.Itoa(depth),
		"limit": strconv.Itoa(limit),
	})
	if hit, ok := g.cache.Get(key); ok {
		return hit, true
	}
	pages, err := g.exec.Crawl(ctx, p.URL, depth, limit)
	if err != nil {
		return execErrText(err), false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "crawl: %s (depth %d, limit %d)\nfound %d pages\n", p.URL, depth, limit, len(pages))
	for i, pg := range pages {
		if i >= crawlListMax {
			fmt.Fprintf(&b, "... and %d more\n", len(pages)-crawlListMax)
			break
		}
		fmt.Fprintf(&b, "- %s\n", pg)
	}
	out := strings.TrimRight(b.String(), "\n")
	g.cache.Set(key, out, 0)
	return out, true
}

func (g *Governor) runDeepResearch(ctx context.Context, guildID, query string) (string, bool) {
	key := cache.Key(guildID, "deep_research", query, nil)
	if hit, ok := g.cache.Get(key); ok {
		return hit, true
	}
	research, err := g.exec.DeepResearch(ctx, query)
	if err != nil {
		return execErrText(err), false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "deep research: %s\n", query)
	for i, step := range research.Steps {
		if i >= deepStepsMax {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(step, 200))
	}
	fmt.Fprintf(&b, "---\n%s", clampContent(research.Summary, deepSummaryChars))
	out := b.String()
	g.cache.Set(key, out, 0)
	return out, true
}

func (g *Governor) scrapeChars() int {
	if g.cfg.Autosearch.ScrapeChars > 0 {
		return g.cfg.Autosearch.ScrapeChars
	}
	return 4000
}

func execErrText(err error) string {
	return "autosearch error: " + truncate(err.Error(), errDetailChars)
}

// clampContent cuts content at max characters and appends an explicit
// omission marker so callers can tell a short page from a truncated one.
// Counting is in runes so a multi-byte character is never split.
func clampContent(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return fmt.Sprintf("%s\n[truncated, %d characters omitted]", string(r[:max]), len(r)-max)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package classify

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassifyModes(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Mode
	}{
		{"single url", "https://example.com/post", ModeScrape},
		{"two urls", "https://a.com/x and https://b.com/y", ModeScrapeMulti},
		{"crawl intent with domain", "crawl example.com for docs", ModeCrawl},
		{"site keyword with domain", "map the whole site docs.python.org", ModeCrawl},
		{"analytical keyword", "impact of rising interest rates on startups", ModeDeepResearch},
		{"comparison", "rust compared with go: compare performance", ModeDeepResearch},
		{"long query", strings.Repeat("details ", 25), ModeDeepResearch},
		{"plain search", "weather in tallinn", ModeSearch},
		{"list search", "best python tutorials", ModeSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.query)
			if got.Mode != tt.want {
				t.Errorf("Classify(%q).Mode = %s, want %s", tt.query, got.Mode, tt.want)
			}
		})
	}
}

func TestClassifySingleURL(t *testing.T) {
	res := Classify("summarize https://example.com/article.")
	if res.Mode != ModeScrape {
		t.Fatalf("Mode = %s, want scrape", res.Mode)
	}
	if res.Params.URL != "https://example.com/article" {
		t.Errorf("URL = %q, trailing punctuation should be stripped", res.Params.URL)
	}
}

func TestClassifyMultiURL(t *testing.T) {
	res := Classify("compare https://a.com/1 https://b.com/2 https://c.com/3")
	if res.Mode != ModeScrapeMulti {
		t.Fatalf("Mode = %s, want scrape_multi", res.Mode)
	}
	if len(res.Params.URLs) != 3 {
		t.Errorf("URLs = %v, want 3 entries", res.Params.URLs)
	}
	if !reflect.DeepEqual(res.Followups, []string{"synthesize results"}) {
		t.Errorf("Followups = %v", res.Followups)
	}
}

func TestClassifyMultiURLCap(t *testing.T) {
	var parts []string
	for i := 0; i < 7; i++ {
		parts = append(parts, "https://example.com/p"+string(rune('0'+i)))
	}
	res := Classify(strings.Join(parts, " "))
	if res.Mode != ModeScrapeMulti {
		t.Fatalf("Mode = %s, want scrape_multi", res.Mode)
	}
	if len(res.Params.URLs) != maxURLs {
		t.Errorf("URLs capped at %d, got %d", maxURLs, len(res.Params.URLs))
	}
}

func TestClassifyCrawlDefaults(t *testing.T) {
	res := Classify("crawl example.com for docs")
	if res.Mode != ModeCrawl {
		t.Fatalf("Mode = %s, want crawl", res.Mode)
	}
	if res.Params.URL != "example.com" {
		t.Errorf("URL = %q, want example.com", res.Params.URL)
	}
	if res.Params.MaxDepth != 2 || res.Params.Limit != 20 {
		t.Errorf("depth/limit = %d/%d, want 2/20", res.Params.MaxDepth, res.Params.Limit)
	}
}

func TestClassifyCrawlParamsClamped(t *testing.T) {
	res := Classify("crawl example.com depth 9 limit 500")
	if res.Mode != ModeCrawl {
		t.Fatalf("Mode = %s, want crawl", res.Mode)
	}
	if res.Params.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want clamp to 3", res.Params.MaxDepth)
	}
	if res.Params.Limit != 50 {
		t.Errorf("Limit = %d, want clamp to 50", res.Params.Limit)
	}

	res = Classify("crawl example.com depth 1 limit 2")
	if res.Params.MaxDepth != 1 || res.Params.Limit != 5 {
		t.Errorf("depth/limit = %d/%d, want 1/5", res.Params.MaxDepth, res.Params.Limit)
	}
}

func TestClassifyDeepResearchTruncates(t *testing.T) {
	long := strings.Repeat("microservice tradeoffs ", 12)
	res := Classify(long)
	if res.Mode != ModeDeepResearch {
		t.Fatalf("Mode = %s, want deep_research", res.Mode)
	}
	if len(res.Params.Query) > deepQueryChars {
		t.Errorf("query length %d exceeds %d", len(res.Params.Query), deepQueryChars)
	}
}

func TestClassifyCountsRunesNotBytes(t *testing.T) {
	// 100 runes but 200 bytes. A byte-length gate would misroute this to
	// deep_research.
	q := strings.Repeat("é", 100)
	res := Classify(q)
	if res.Mode != ModeSearch {
		t.Fatalf("Mode = %s, want search", res.Mode)
	}
	if res.Params.Query != q {
		t.Errorf("query mutated: %q", res.Params.Query)
	}

	long := strings.Repeat("é", 200)
	res = Classify(long)
	if res.Mode != ModeDeepResearch {
		t.Fatalf("Mode = %s, want deep_research", res.Mode)
	}
	if n := utf8.RuneCountInString(res.Params.Query); n != deepQueryChars {
		t.Errorf("query rune count = %d, want %d", n, deepQueryChars)
	}
	if !utf8.ValidString(res.Params.Query) {
		t.Error("truncated query is not valid UTF-8")
	}
}

func TestClassifySearchLimits(t *testing.T) {
	res := Classify("weather in tallinn")
	if res.Params.Limit != defaultSearchLimit {
		t.Errorf("Limit = %d, want %d", res.Params.Limit, defaultSearchLimit)
	}

	res = Classify("top alternatives to redis")
	if res.Params.Limit != listSearchLimit {
		t.Errorf("list query Limit = %d, want %d", res.Params.Limit, listSearchLimit)
	}

	long := strings.Repeat("go ", 50)
	res = Classify(long)
	if res.Mode == ModeSearch && len(res.Params.Query) > searchQueryChars {
		t.Errorf("search query length %d exceeds %d", len(res.Params.Query), searchQueryChars)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	q := "crawl example.com depth 3 limit 10"
	first := Classify(q)
	for i := 0; i < 5; i++ {
		if got := Classify(q); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differed: %+v vs %+v", i, got, first)
		}
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("see https://a.com/x, https://A.COM/X and https://b.com/y.")
	want := []string{"https://a.com/x", "https://b.com/y"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("ExtractURLs = %v, want %v", urls, want)
	}
}

func TestExtractURLsIgnoresBareDomains(t *testing.T) {
	if urls := ExtractURLs("visit example.com today"); urls != nil {
		t.Errorf("bare domains should not extract, got %v", urls)
	}
}

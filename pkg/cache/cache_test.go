package cache

import (
	"testing"
	"time"
)

func testCache(maxEntries int, ttl time.Duration) (*Cache, *time.Time) {
	c := New(maxEntries, ttl)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }
	return c, &current
}

func TestGetSet(t *testing.T) {
	c, _ := testCache(10, time.Hour)

	key := Key("g1", "search", "golang", nil)
	if _, ok := c.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(key, "results", 0)
	got, ok := c.Get(key)
	if !ok || got != "results" {
		t.Errorf("Get = (%q, %t), want (results, true)", got, ok)
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("g1", "search", "golang", map[string]string{"limit": "5", "lang": "en"})
	b := Key("g1", "search", "golang", map[string]string{"lang": "en", "limit": "5"})
	if a != b {
		t.Errorf("extra parameter order changed the key: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("key length = %d, want 16", len(a))
	}
}

func TestKeyScoping(t *testing.T) {
	base := Key("g1", "search", "golang", nil)
	if Key("g2", "search", "golang", nil) == base {
		t.Error("different guilds must not share keys")
	}
	if Key("g1", "scrape", "golang", nil) == base {
		t.Error("different providers must not share keys")
	}
	if Key("g1", "search", "golang", map[string]string{"limit": "8"}) == base {
		t.Error("extra parameters must change the key")
	}
}

func TestTTLExpiry(t *testing.T) {
	c, clock := testCache(10, time.Hour)

	c.Set("k", "v", 10*time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	*clock = clock.Add(11 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}

	// The expired entry is deleted on read.
	if got := c.Stats().Total; got != 0 {
		t.Errorf("Total = %d after lazy deletion, want 0", got)
	}
}

func TestLRUEviction(t *testing.T) {
	c, clock := testCache(2, time.Hour)

	c.Set("a", "1", 0)
	*clock = clock.Add(time.Second)
	c.Set("b", "2", 0)
	*clock = clock.Add(time.Second)

	// Touch "a" so "b" becomes the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	*clock = clock.Add(time.Second)

	c.Set("c", "3", 0)
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestLRUEvictionTieBreaksOnEarliestAccess(t *testing.T) {
	// The clock never advances, so wall-clock timestamps would tie. The
	// insertion-order victim must still be chosen every time.
	for i := 0; i < 20; i++ {
		c, _ := testCache(2, time.Hour)

		c.Set("a", "1", 0)
		c.Set("b", "2", 0)
		c.Set("c", "3", 0)

		if _, ok := c.Get("a"); ok {
			t.Fatal("a should have been evicted as the earliest access")
		}
		if _, ok := c.Get("b"); !ok {
			t.Error("b should have survived")
		}
		if _, ok := c.Get("c"); !ok {
			t.Error("c should be present")
		}
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c, _ := testCache(2, time.Hour)

	c.Set("a", "1", 0)
	c.Set("b", "2", 0)
	c.Set("a", "updated", 0)

	if _, ok := c.Get("b"); !ok {
		t.Error("overwriting an existing key must not evict others")
	}
	if got, _ := c.Get("a"); got != "updated" {
		t.Errorf("a = %q, want updated", got)
	}
}

func TestClearExpired(t *testing.T) {
	c, clock := testCache(10, time.Hour)

	c.Set("short", "v", time.Minute)
	c.Set("long", "v", 2*time.Hour)

	*clock = clock.Add(5 * time.Minute)
	if n := c.ClearExpired(); n != 1 {
		t.Errorf("ClearExpired = %d, want 1", n)
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("unexpired entry removed")
	}
}

func TestInvalidatePattern(t *testing.T) {
	c, _ := testCache(10, time.Hour)

	c.Set("abc123", "v", 0)
	c.Set("ABCdef", "v", 0)
	c.Set("xyz", "v", 0)

	if n := c.InvalidatePattern("abc"); n != 2 {
		t.Errorf("InvalidatePattern = %d, want 2 (case-insensitive)", n)
	}
	if _, ok := c.Get("xyz"); !ok {
		t.Error("unrelated entry removed")
	}
}

func TestStats(t *testing.T) {
	c, clock := testCache(4, time.Hour)

	c.Set("a", "v", time.Minute)
	c.Set("b", "v", 2*time.Hour)
	c.Get("a")
	c.Get("missing")

	*clock = clock.Add(5 * time.Minute)
	s := c.Stats()
	if s.Total != 2 || s.Active != 1 || s.Expired != 1 {
		t.Errorf("Stats = %+v, want 2 total / 1 active / 1 expired", s)
	}
	if s.Hits != 1 || s.Misses != 1 {
		t.Errorf("hit counters = %d/%d, want 1/1", s.Hits, s.Misses)
	}
	if s.UsagePercent != 50 {
		t.Errorf("UsagePercent = %v, want 50", s.UsagePercent)
	}
}

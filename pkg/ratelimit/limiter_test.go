package ratelimit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/guildgate/guildgate/pkg/config"
	"github.com/guildgate/guildgate/pkg/models"
	"github.com/guildgate/guildgate/pkg/store"
)

func setup(t *testing.T, defaults config.RateLimitDefaults) (*Limiter, *store.Store, *time.Time) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"), store.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	current := time.Unix(1_700_000_000, 0)
	l := New(st, defaults)
	l.now = func() time.Time { return current }
	return l, st, &current
}

func subject() models.Subject {
	return models.Subject{GuildID: "g1", ChannelID: "c1", UserID: "u1"}
}

func TestCooldownBlocksSecondRequest(t *testing.T) {
	l, _, clock := setup(t, config.RateLimitDefaults{
		CooldownSec: 10, PerUserPerMin: 6, PerChannelPerMin: 20,
	})

	d, err := l.CheckAndRecord(subject())
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("first request rejected: %s", d.Reason)
	}

	*clock = clock.Add(3 * time.Second)
	d, _ = l.CheckAndRecord(subject())
	if d.Allowed {
		t.Fatal("expected cooldown rejection")
	}
	if d.Reason != "Cooldown active. Try again in 7s." {
		t.Errorf("unexpected reason %q", d.Reason)
	}

	*clock = clock.Add(8 * time.Second)
	d, _ = l.CheckAndRecord(subject())
	if !d.Allowed {
		t.Errorf("expected acceptance after cooldown, got %q", d.Reason)
	}
}

func TestPerUserWindow(t *testing.T) {
	l, _, clock := setup(t, config.RateLimitDefaults{
		PerUserPerMin: 3, PerChannelPerMin: 20,
	})

	for i := 0; i < 3; i++ {
		d, err := l.CheckAndRecord(subject())
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected: %s", i+1, d.Reason)
		}
		*clock = clock.Add(time.Second)
	}

	d, _ := l.CheckAndRecord(subject())
	if d.Allowed {
		t.Fatal("expected per-user rejection on 4th request")
	}
	if d.Reason != "Per-user rate limit reached. Try again later." {
		t.Errorf("unexpected reason %q", d.Reason)
	}

	// Window rolls over lazily 60s after its start.
	*clock = clock.Add(61 * time.Second)
	d, _ = l.CheckAndRecord(subject())
	if !d.Allowed {
		t.Errorf("expected acceptance after window reset, got %q", d.Reason)
	}
}

func TestRejectionIncrementsNothing(t *testing.T) {
	l, st, clock := setup(t, config.RateLimitDefaults{
		PerUserPerMin: 1, PerChannelPerMin: 20,
	})

	if d, _ := l.CheckAndRecord(subject()); !d.Allowed {
		t.Fatalf("first request rejected: %s", d.Reason)
	}
	*clock = clock.Add(time.Second)
	if d, _ := l.CheckAndRecord(subject()); d.Allowed {
		t.Fatal("expected rejection")
	}

	st.View("g1", func(rec *models.GuildRecord) {
		if rec.Usage.ChatCount != 1 {
			t.Errorf("ChatCount = %d, want 1", rec.Usage.ChatCount)
		}
		u := rec.Usage.PerUser["u1"]
		if u.Count1m != 1 || u.Total != 1 {
			t.Errorf("user counters = (%d, %d), want (1, 1)", u.Count1m, u.Total)
		}
		c := rec.Usage.PerChannel["c1"]
		if c.Count1m != 1 {
			t.Errorf("channel Count1m = %d, want 1", c.Count1m)
		}
	})
}

func TestChannelCap(t *testing.T) {
	l, _, _ := setup(t, config.RateLimitDefaults{
		PerUserPerMin: 10, PerChannelPerMin: 2,
	})

	for i := 0; i < 2; i++ {
		sub := subject()
		sub.UserID = string(rune('a' + i))
		if d, _ := l.CheckAndRecord(sub); !d.Allowed {
			t.Fatalf("request %d rejected: %s", i+1, d.Reason)
		}
	}

	sub := subject()
	sub.UserID = "z"
	d, _ := l.CheckAndRecord(sub)
	if d.Allowed {
		t.Fatal("expected channel rejection")
	}
	if d.Reason != "Channel is busy. Try again later." {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestOwnerBypassStillRecords(t *testing.T) {
	l, st, _ := setup(t, config.RateLimitDefaults{
		CooldownSec: 10, PerUserPerMin: 1, PerChannelPerMin: 1,
	})

	sub := subject()
	sub.IsOwner = true
	for i := 0; i < 3; i++ {
		if d, _ := l.CheckAndRecord(sub); !d.Allowed {
			t.Fatalf("owner request %d rejected: %s", i+1, d.Reason)
		}
	}

	st.View("g1", func(rec *models.GuildRecord) {
		if rec.Usage.ChatCount != 3 {
			t.Errorf("ChatCount = %d, want 3", rec.Usage.ChatCount)
		}
	})
}

func TestBypassRoleSkipsChecks(t *testing.T) {
	l, st, _ := setup(t, config.RateLimitDefaults{
		CooldownSec: 10, PerUserPerMin: 1, PerChannelPerMin: 20,
	})

	err := st.Update("g1", func(rec *models.GuildRecord) error {
		rec.Governance.Bypass.CooldownRoles = []string{"mods"}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	sub := subject()
	sub.RoleIDs = []string{"mods"}
	for i := 0; i < 2; i++ {
		if d, _ := l.CheckAndRecord(sub); !d.Allowed {
			t.Fatalf("bypass request %d rejected: %s", i+1, d.Reason)
		}
	}
}

func TestGuildOverridesReplaceDefaults(t *testing.T) {
	l, st, clock := setup(t, config.RateLimitDefaults{
		PerUserPerMin: 10, PerChannelPerMin: 20,
	})

	one := 1
	err := st.Update("g1", func(rec *models.GuildRecord) error {
		rec.RateLimits.PerUserPerMin = &one
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if d, _ := l.CheckAndRecord(subject()); !d.Allowed {
		t.Fatalf("first request rejected: %s", d.Reason)
	}
	*clock = clock.Add(time.Second)
	if d, _ := l.CheckAndRecord(subject()); d.Allowed {
		t.Fatal("expected rejection under guild override")
	}
}

func TestToolCooldown(t *testing.T) {
	l, _, clock := setup(t, config.RateLimitDefaults{
		ToolsPerUserPerMin:  10,
		ToolsPerGuildPerMin: 30,
		ToolCooldowns:       map[string]int{"search": 30},
	})

	if d, _ := l.CheckAndRecordTool(subject(), "search"); !d.Allowed {
		t.Fatalf("first call rejected: %s", d.Reason)
	}

	*clock = clock.Add(10 * time.Second)
	d, _ := l.CheckAndRecordTool(subject(), "search")
	if d.Allowed {
		t.Fatal("expected tool cooldown rejection")
	}
	if d.Reason != "Cooldown for tool 'search' active. Try again in 20s." {
		t.Errorf("unexpected reason %q", d.Reason)
	}

	// A different tool has its own cooldown.
	if d, _ := l.CheckAndRecordTool(subject(), "scrape"); !d.Allowed {
		t.Errorf("other tool rejected: %s", d.Reason)
	}
}

func TestGuildToolCap(t *testing.T) {
	l, _, _ := setup(t, config.RateLimitDefaults{
		ToolsPerUserPerMin:  10,
		ToolsPerGuildPerMin: 2,
	})

	for i := 0; i < 2; i++ {
		sub := subject()
		sub.UserID = string(rune('a' + i))
		if d, _ := l.CheckAndRecordTool(sub, "search"); !d.Allowed {
			t.Fatalf("call %d rejected: %s", i+1, d.Reason)
		}
	}

	sub := subject()
	sub.UserID = "z"
	d, _ := l.CheckAndRecordTool(sub, "search")
	if d.Allowed {
		t.Fatal("expected guild tool rejection")
	}
	if d.Reason != "Guild tool rate limit reached. Try again later." {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestToolGovernanceGates(t *testing.T) {
	l, st, _ := setup(t, config.RateLimitDefaults{
		ToolsPerUserPerMin:  10,
		ToolsPerGuildPerMin: 30,
	})

	err := st.Update("g1", func(rec *models.GuildRecord) error {
		rec.Governance.Tools = models.ToolPolicy{
			Allow:        []string{"search"},
			Deny:         []string{"crawl"},
			DenyChannels: []string{"blocked"},
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if d, _ := l.CheckAndRecordTool(subject(), "search"); !d.Allowed {
		t.Errorf("allowed tool rejected: %s", d.Reason)
	}

	d, _ := l.CheckAndRecordTool(subject(), "crawl")
	if d.Allowed || d.Reason != "Tool 'crawl' is denied by governance policy." {
		t.Errorf("deny list not enforced, got (%t, %q)", d.Allowed, d.Reason)
	}

	d, _ = l.CheckAndRecordTool(subject(), "scrape")
	if d.Allowed || d.Reason != "Tool 'scrape' is not in the allowed tool list." {
		t.Errorf("allow list not enforced, got (%t, %q)", d.Allowed, d.Reason)
	}

	sub := subject()
	sub.ChannelID = "blocked"
	d, _ = l.CheckAndRecordTool(sub, "search")
	if d.Allowed || d.Reason != "Tool 'search' is denied in this channel by governance policy." {
		t.Errorf("channel gate not enforced, got (%t, %q)", d.Allowed, d.Reason)
	}
}

func TestPerUserMinuteOverride(t *testing.T) {
	l, st, clock := setup(t, config.RateLimitDefaults{
		ToolsPerUserPerMin:  1,
		ToolsPerGuildPerMin: 30,
	})

	err := st.Update("g1", func(rec *models.GuildRecord) error {
		rec.Governance.Tools.PerUserMinuteOverrides = map[string]int{"search": 3}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if d, _ := l.CheckAndRecordTool(subject(), "search"); !d.Allowed {
			t.Fatalf("call %d rejected: %s", i+1, d.Reason)
		}
		*clock = clock.Add(time.Second)
	}
	if d, _ := l.CheckAndRecordTool(subject(), "search"); d.Allowed {
		t.Fatal("expected rejection past the override cap")
	}
}

func TestDailyTokenCap(t *testing.T) {
	l, st, _ := setup(t, config.RateLimitDefaults{
		ToolsPerUserPerMin:  10,
		ToolsPerGuildPerMin: 30,
		PerUserDailyTokens:  500,
	})

	err := st.Update("g1", func(rec *models.GuildRecord) error {
		rec.Usage.PerUser = map[string]*models.UserUsage{}
		rec.Usage.PerUser["u1"] = &models.UserUsage{
			TokensDayStart: 1_700_000_000,
			TokensDayTotal: 500,
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	d, _ := l.CheckAndRecordTool(subject(), "search")
	if d.Allowed {
		t.Fatal("expected daily token rejection")
	}
	if d.Reason != "Daily token budget reached. Try again tomorrow." {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

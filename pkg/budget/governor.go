package budget

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/guildgate/guildgate/pkg/config"
	"github.com/guildgate/guildgate/pkg/models"
	"github.com/guildgate/guildgate/pkg/store"
)

// Messages returned when a guild's daily budget is exhausted.
const (
	msgTokensExhausted = "Daily token budget reached for this server. Try again after the reset."
	msgCostExhausted   = "Daily cost budget reached for this server. Try again after the reset."
)

// Governor merges global budget defaults with per-guild overrides, tracks
// daily consumption, reports threshold crossings once, and resets counters
// lazily at the configured UTC time.
type Governor struct {
	store    *store.Store
	defaults config.GovernanceDefaults
	now      func() time.Time
}

// New creates a Governor over the given store and global defaults.
func New(st *store.Store, defaults config.GovernanceDefaults) *Governor {
	return &Governor{store: st, defaults: defaults, now: time.Now}
}

// EffectivePolicy returns the merged budget policy for a guild. Each scalar
// in the guild override falls back to the global default independently;
// thresholds and reset sub-blocks replace wholesale when present.
func (g *Governor) EffectivePolicy(guildID string) models.BudgetPolicy {
	eff := g.defaults.Budget.Policy()
	if eff.Unit == "" {
		eff.Unit = models.UnitTokens
	}
	if eff.Reset.Period == "" {
		eff.Reset = models.ResetPolicy{Period: "daily", TimeUTC: "00:00"}
	}
	if eff.Thresholds == (models.Thresholds{}) {
		eff.Thresholds = models.Thresholds{Warn1: 0.8, Warn2: 0.95}
	}

	g.store.View(guildID, func(rec *models.GuildRecord) {
		o := rec.Governance.Budget
		if o == nil {
			return
		}
		if o.Unit != nil {
			eff.Unit = *o.Unit
		}
		if o.DailyTokens != nil {
			eff.DailyTokens = *o.DailyTokens
		}
		if o.DailyUSD != nil {
			eff.DailyUSD = *o.DailyUSD
		}
		if o.Thresholds != nil {
			eff.Thresholds = *o.Thresholds
		}
		if o.Reset != nil {
			eff.Reset = *o.Reset
		}
	})

	if eff.DailyTokens < 0 {
		eff.DailyTokens = 0
	}
	if eff.DailyUSD < 0 {
		eff.DailyUSD = 0
	}
	return eff
}

// EffectiveModelPolicy merges the global model allow/deny lists with the
// guild's. A present (non-nil) guild allow list replaces the global one for
// that provider, even when empty; deny lists are the sorted union.
func (g *Governor) EffectiveModelPolicy(guildID string) models.ModelPolicy {
	d := g.defaults.Models
	var gp models.ModelPolicy
	g.store.View(guildID, func(rec *models.GuildRecord) {
		gp = rec.Governance.Models
	})

	allow := make(map[string][]string)
	for p := range d.Allow {
		allow[p] = append([]string(nil), d.Allow[p]...)
	}
	for p, list := range gp.Allow {
		if list != nil {
			allow[p] = append([]string(nil), list...)
		}
	}

	deny := make(map[string][]string)
	providers := make(map[string]struct{})
	for p := range d.Deny {
		providers[p] = struct{}{}
	}
	for p := range gp.Deny {
		providers[p] = struct{}{}
	}
	for p := range providers {
		set := make(map[string]struct{})
		for _, m := range d.Deny[p] {
			set[m] = struct{}{}
		}
		for _, m := range gp.Deny[p] {
			set[m] = struct{}{}
		}
		merged := make([]string, 0, len(set))
		for m := range set {
			merged = append(merged, m)
		}
		sort.Strings(merged)
		deny[p] = merged
	}

	return models.ModelPolicy{Allow: allow, Deny: deny}
}

// resetBoundary returns the most recent reset instant at or before now.
func (g *Governor) resetBoundary(pol models.BudgetPolicy) int64 {
	now := g.now().UTC()
	hh, mm := parseTimeUTC(pol.Reset.TimeUTC)
	boundary := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, time.UTC)
	if now.Before(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary.Unix()
}

func parseTimeUTC(hhmm string) (int, int) {
	parts := strings.SplitN(hhmm, ":", 2)
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0
	}
	mm := 0
	if len(parts) == 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 0 && m <= 59 {
			mm = m
		}
	}
	return hh, mm
}

// resetLocked zeroes a stale usage block. It must run inside the guild's
// atomic section so two concurrent callers cannot both observe "stale" and
// double-reset around an increment.
func resetLocked(b *models.BudgetUsage, boundary int64) bool {
	if b.TokensDayStart == 0 {
		b.TokensDayStart = boundary
	}
	if b.CostDayStart == 0 {
		b.CostDayStart = boundary
	}
	if b.TokensDayStart < boundary || b.CostDayStart < boundary {
		b.TokensDayStart = boundary
		b.TokensDayTotal = 0
		b.CostDayStart = boundary
		b.CostDayUSD = 0
		b.LastWarnLevel = models.WarnNone
		return true
	}
	return false
}

// ResetIfNeeded performs the daily reset when the stored day-start predates
// the current reset boundary. Returns true only when a reset happened;
// calling it again immediately is a no-op.
func (g *Governor) ResetIfNeeded(guildID string) (bool, error) {
	pol := g.EffectivePolicy(guildID)
	boundary := g.resetBoundary(pol)

	var did bool
	err := g.store.Update(guildID, func(rec *models.GuildRecord) error {
		did = resetLocked(&rec.Usage.Budget, boundary)
		return nil
	})
	return did, err
}

// Consumption returns the current daily usage snapshot, applying the lazy
// reset first.
func (g *Governor) Consumption(guildID string) (models.BudgetUsage, error) {
	pol := g.EffectivePolicy(guildID)
	boundary := g.resetBoundary(pol)

	var snap models.BudgetUsage
	err := g.store.Update(guildID, func(rec *models.GuildRecord) error {
		resetLocked(&rec.Usage.Budget, boundary)
		snap = rec.Usage.Budget
		return nil
	})
	return snap, err
}

// Record adds spend to the guild's daily counters and reports the resulting
// ratios, any threshold crossing, and whether the guild is now over budget.
// A crossing is reported only when the ratio moves from below a threshold to
// at or above it, and warn2 wins when both are crossed by one increment.
func (g *Governor) Record(guildID string, tokensDelta int64, usdDelta float64) (models.BudgetStatus, error) {
	pol := g.EffectivePolicy(guildID)
	boundary := g.resetBoundary(pol)

	status := models.BudgetStatus{
		Unit:        pol.Unit,
		LimitTokens: pol.DailyTokens,
		LimitUSD:    pol.DailyUSD,
	}

	err := g.store.Update(guildID, func(rec *models.GuildRecord) error {
		b := &rec.Usage.Budget
		resetLocked(b, boundary)

		prevTokens := b.TokensDayTotal
		prevUSD := b.CostDayUSD
		newTokens := prevTokens + tokensDelta
		if newTokens < 0 {
			newTokens = 0
		}
		newUSD := prevUSD + usdDelta
		if newUSD < 0 {
			newUSD = 0
		}
		b.TokensDayTotal = newTokens
		b.CostDayUSD = newUSD

		status.RatioTokens = ratio(float64(newTokens), float64(pol.DailyTokens))
		status.RatioUSD = ratio(newUSD, pol.DailyUSD)

		switch {
		case pol.Unit == models.UnitTokens && pol.DailyTokens > 0:
			status.WarnLevel = crossedThreshold(
				ratio(float64(prevTokens), float64(pol.DailyTokens)),
				status.RatioTokens, pol.Thresholds)
			status.OverBudget = newTokens >= pol.DailyTokens
		case pol.Unit == models.UnitUSD && pol.DailyUSD > 0:
			status.WarnLevel = crossedThreshold(
				ratio(prevUSD, pol.DailyUSD),
				status.RatioUSD, pol.Thresholds)
			status.OverBudget = newUSD >= pol.DailyUSD
		}

		if status.WarnLevel != models.WarnNone {
			b.LastWarnLevel = status.WarnLevel
		}
		return nil
	})
	return status, err
}

// CheckOverBudget returns a user-facing message when the guild's selected
// budget unit is capped and exhausted, or "" when spend may proceed. It is
// the hard gate evaluated before any externally billed call.
func (g *Governor) CheckOverBudget(guildID string) (string, error) {
	pol := g.EffectivePolicy(guildID)
	snap, err := g.Consumption(guildID)
	if err != nil {
		return "", err
	}

	if pol.Unit == models.UnitUSD {
		if pol.DailyUSD > 0 && snap.CostDayUSD >= pol.DailyUSD {
			return msgCostExhausted, nil
		}
		return "", nil
	}
	if pol.DailyTokens > 0 && snap.TokensDayTotal >= pol.DailyTokens {
		return msgTokensExhausted, nil
	}
	return "", nil
}

func ratio(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return used / limit
}

// crossedThreshold reports warn2 or warn1 when the ratio moved from below to
// at/above that threshold, preferring warn2. Staying above an already
// crossed threshold reports nothing.
func crossedThreshold(prev, next float64, t models.Thresholds) models.WarnLevel {
	if prev < 0 {
		prev = 0
	}
	if next < 0 {
		next = 0
	}
	if next >= t.Warn2 && prev < t.Warn2 {
		return models.Warn2
	}
	if next >= t.Warn1 && prev < t.Warn1 {
		return models.Warn1
	}
	return models.WarnNone
}

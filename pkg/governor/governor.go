// Package governor is the composition root: for every inbound request it
// runs the admission gates in order (budget, then rate limits), routes
// auto-search queries through the classifier and result cache, and records
// usage and telemetry afterward. Its contract ends at "permission granted,
// plus optional cached result": downstream execution failures are reported,
// never retried here.
package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/guildgate/guildgate/pkg/audit"
	"github.com/guildgate/guildgate/pkg/budget"
	"github.com/guildgate/guildgate/pkg/cache"
	"github.com/guildgate/guildgate/pkg/config"
	"github.com/guildgate/guildgate/pkg/exec"
	"github.com/guildgate/guildgate/pkg/models"
	"github.com/guildgate/guildgate/pkg/ratelimit"
	"github.com/guildgate/guildgate/pkg/store"
)

// Governor wires the admission-control components together.
type Governor struct {
	cfg     *config.Config
	store   *store.Store
	limiter *ratelimit.Limiter
	budget  *budget.Governor
	cache   *cache.Cache
	exec    exec.Executor
	audit   *audit.Log
	log     zerolog.Logger
	now     func() time.Time
}

// New builds a Governor. The audit log may be nil when auditing is disabled.
func New(cfg *config.Config, st *store.Store, ex exec.Executor, auditLog *audit.Log, logger zerolog.Logger) *Governor {
	return &Governor{
		cfg:     cfg,
		store:   st,
		limiter: ratelimit.New(st, cfg.RateLimits),
		budget:  budget.New(st, cfg.Governance),
		cache:   cache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLHours)*time.Hour),
		exec:    ex,
		audit:   auditLog,
		log:     logger,
		now:     time.Now,
	}
}

// NewFromConfig builds a Governor with the executor and audit log the config
// selects: the "http" provider when a base URL is set, the offline stub
// otherwise.
func NewFromConfig(cfg *config.Config, st *store.Store, logger zerolog.Logger) (*Governor, error) {
	var ex exec.Executor = exec.NewStub()
	if cfg.Executor.Provider == "http" {
		if cfg.Executor.BaseURL == "" {
			return nil, fmt.Errorf("executor provider %q requires a base_url", cfg.Executor.Provider)
		}
		ex = exec.NewHTTP(cfg.Executor.BaseURL, cfg.Executor.APIKey)
	}

	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		l, err := audit.New(cfg.Audit.DBPath, cfg.Audit.RetentionDays)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		auditLog = l
	}
	return New(cfg, st, ex, auditLog, logger), nil
}

// Close releases the audit log, if any.
func (g *Governor) Close() error {
	if g.audit == nil {
		return nil
	}
	return g.audit.Close()
}

// Budget exposes the budget governor for callers that report usage or build
// status views.
func (g *Governor) Budget() *budget.Governor { return g.budget }

// Cache exposes the shared result cache.
func (g *Governor) Cache() *cache.Cache { return g.cache }

// AdmitChat decides whether a plain chat request may proceed. The budget
// gate runs first so an exhausted guild is rejected before any rate-limit
// slot is consumed; a store failure blocks rather than permits.
func (g *Governor) AdmitChat(ctx context.Context, sub models.Subject) (models.Decision, error) {
	if msg, err := g.budget.CheckOverBudget(sub.GuildID); err != nil {
		return models.Decision{}, err
	} else if msg != "" {
		d := models.Reject(msg)
		g.auditDecision(ctx, sub, "chat", "", d)
		return d, nil
	}

	d, err := g.limiter.CheckAndRecord(sub)
	if err != nil {
		return models.Decision{}, err
	}
	g.auditDecision(ctx, sub, "chat", "", d)
	return d, nil
}

// AdmitTool decides whether a tool invocation may proceed.
func (g *Governor) AdmitTool(ctx context.Context, sub models.Subject, tool string) (models.Decision, error) {
	if msg, err := g.budget.CheckOverBudget(sub.GuildID); err != nil {
		return models.Decision{}, err
	} else if msg != "" {
		d := models.Reject(msg)
		g.auditDecision(ctx, sub, tool, "", d)
		return d, nil
	}

	d, err := g.limiter.CheckAndRecordTool(sub, tool)
	if err != nil {
		return models.Decision{}, err
	}
	g.auditDecision(ctx, sub, tool, "", d)
	return d, nil
}

// RecordUsage accounts the token and cost outcome of a completed downstream
// call against the guild, user, and channel totals, then against the daily
// budget. The returned status carries any threshold crossing for the caller
// to surface once.
func (g *Governor) RecordUsage(ctx context.Context, sub models.Subject, u models.Usage) (models.BudgetStatus, error) {
	now := g.now().Unix()
	err := g.store.Update(sub.GuildID, func(rec *models.GuildRecord) error {
		rec.Usage.Tokens.Prompt += u.PromptTokens
		rec.Usage.Tokens.Completion += u.CompletionTokens
		rec.Usage.Tokens.Total += u.TotalTokens
		rec.Usage.CostUSD += u.CostUSD

		if rec.Usage.PerUser == nil {
			rec.Usage.PerUser = make(map[string]*models.UserUsage)
		}
		ub := rec.Usage.PerUser[sub.UserID]
		if ub == nil {
			ub = &models.UserUsage{WindowStart: now, ToolsWindowStart: now, TokensDayStart: now}
			rec.Usage.PerUser[sub.UserID] = ub
		}
		ub.TokensTotal += u.TotalTokens
		ub.TokensDayTotal += u.TotalTokens

		if rec.Usage.PerChannel == nil {
			rec.Usage.PerChannel = make(map[string]*models.ChannelUsage)
		}
		cb := rec.Usage.PerChannel[sub.ChannelID]
		if cb == nil {
			cb = &models.ChannelUsage{WindowStart: now}
			rec.Usage.PerChannel[sub.ChannelID] = cb
		}
		cb.TokensTotal += u.TotalTokens
		return nil
	})
	if err != nil {
		return models.BudgetStatus{}, err
	}

	status, err := g.budget.Record(sub.GuildID, u.TotalTokens, u.CostUSD)
	if err != nil {
		return models.BudgetStatus{}, err
	}
	if status.WarnLevel != models.WarnNone {
		g.log.Warn().
			Str("guild", sub.GuildID).
			Str("level", string(status.WarnLevel)).
			Float64("ratio_tokens", status.RatioTokens).
			Float64("ratio_usd", status.RatioUSD).
			Msg("budget threshold crossed")
	}
	return status, nil
}

// recordToolTelemetry updates the guild's per-tool counters after an
// execution attempt.
func (g *Governor) recordToolTelemetry(guildID, tool string, latency time.Duration, success bool) {
	now := g.now().Unix()
	_ = g.store.Update(guildID, func(rec *models.GuildRecord) error {
		rec.Usage.ToolsTotal++
		if rec.Usage.Tools == nil {
			rec.Usage.Tools = make(map[string]*models.ToolStats)
		}
		t := rec.Usage.Tools[tool]
		if t == nil {
			t = &models.ToolStats{}
			rec.Usage.Tools[tool] = t
		}
		t.Count++
		t.LastUsed = now
		if success {
			t.SuccessCount++
		} else {
			t.ErrorCount++
		}
		if ms := latency.Milliseconds(); ms > 0 {
			t.Latency.TotalMs += ms
			t.Latency.Count++
			t.Latency.LastMs = ms
		}
		return nil
	})
}

func (g *Governor) auditDecision(ctx context.Context, sub models.Subject, tool, mode string, d models.Decision) {
	if g.audit == nil {
		return
	}
	entry := models.AuditEntry{
		RequestID: uuid.NewString(),
		GuildID:   sub.GuildID,
		UserID:    sub.UserID,
		Tool:      tool,
		Mode:      mode,
		Allowed:   d.Allowed,
		Reason:    d.Reason,
		Success:   d.Allowed,
		CreatedAt: g.now().UTC(),
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		g.log.Error().Err(err).Msg("audit record failed")
	}
}

func (g *Governor) auditExecution(ctx context.Context, sub models.Subject, tool, mode string, latency time.Duration, success bool) {
	if g.audit == nil {
		return
	}
	entry := models.AuditEntry{
		RequestID: uuid.NewString(),
		GuildID:   sub.GuildID,
		UserID:    sub.UserID,
		Tool:      tool,
		Mode:      mode,
		Allowed:   true,
		Success:   success,
		LatencyMs: latency.Milliseconds(),
		CreatedAt: g.now().UTC(),
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		g.log.Error().Err(err).Msg("audit record failed")
	}
}

package ratelimit

import (
	"fmt"
	"time"

	"github.com/guildgate/guildgate/pkg/config"
	"github.com/guildgate/guildgate/pkg/models"
	"github.com/guildgate/guildgate/pkg/store"
)

// Window is the sliding-window length for per-minute caps.
const Window = 60 * time.Second

// dayWindow is the per-user daily token window length.
const dayWindow = 24 * time.Hour

// Limiter enforces cooldowns and per-minute caps per user, channel, guild,
// and tool. All counters live in the store; each check-and-increment runs in
// the guild's atomic section, and rejected attempts increment nothing.
type Limiter struct {
	store    *store.Store
	defaults config.RateLimitDefaults
	now      func() time.Time
}

// New creates a Limiter over the given store and global defaults.
func New(st *store.Store, defaults config.RateLimitDefaults) *Limiter {
	return &Limiter{store: st, defaults: defaults, now: time.Now}
}

// limits are the effective caps for one guild.
type limits struct {
	cooldownSec         int
	perUserPerMin       int
	perChannelPerMin    int
	toolsPerUserPerMin  int
	toolsPerGuildPerMin int
	toolCooldowns       map[string]int
	perUserDailyTokens  int64
}

func (l *Limiter) resolve(rec *models.GuildRecord) limits {
	eff := limits{
		cooldownSec:         l.defaults.CooldownSec,
		perUserPerMin:       l.defaults.PerUserPerMin,
		perChannelPerMin:    l.defaults.PerChannelPerMin,
		toolsPerUserPerMin:  l.defaults.ToolsPerUserPerMin,
		toolsPerGuildPerMin: l.defaults.ToolsPerGuildPerMin,
		toolCooldowns:       l.defaults.ToolCooldowns,
		perUserDailyTokens:  l.defaults.PerUserDailyTokens,
	}
	rl := rec.RateLimits
	if rl.CooldownSec != nil {
		eff.cooldownSec = *rl.CooldownSec
	}
	if rl.PerUserPerMin != nil {
		eff.perUserPerMin = *rl.PerUserPerMin
	}
	if rl.PerChannelPerMin != nil {
		eff.perChannelPerMin = *rl.PerChannelPerMin
	}
	if rl.ToolsPerUserPerMin != nil {
		eff.toolsPerUserPerMin = *rl.ToolsPerUserPerMin
	}
	if rl.ToolsPerGuildPerMin != nil {
		eff.toolsPerGuildPerMin = *rl.ToolsPerGuildPerMin
	}
	if len(rl.ToolCooldowns) > 0 {
		eff.toolCooldowns = rl.ToolCooldowns
	}
	if rl.PerUserDailyTokens != nil {
		eff.perUserDailyTokens = *rl.PerUserDailyTokens
	}
	return eff
}

func userBlock(u *models.GuildUsage, userID string, now int64) *models.UserUsage {
	if u.PerUser == nil {
		u.PerUser = make(map[string]*models.UserUsage)
	}
	b := u.PerUser[userID]
	if b == nil {
		b = &models.UserUsage{WindowStart: now, ToolsWindowStart: now, TokensDayStart: now}
		u.PerUser[userID] = b
	}
	return b
}

func channelBlock(u *models.GuildUsage, channelID string, now int64) *models.ChannelUsage {
	if u.PerChannel == nil {
		u.PerChannel = make(map[string]*models.ChannelUsage)
	}
	b := u.PerChannel[channelID]
	if b == nil {
		b = &models.ChannelUsage{WindowStart: now}
		u.PerChannel[channelID] = b
	}
	return b
}

// CheckAndRecord gates a plain chat request for the subject. On acceptance
// the per-user, per-channel, and guild counters advance together inside the
// guild's atomic section. Bypass subjects skip the checks but still record.
func (l *Limiter) CheckAndRecord(sub models.Subject) (models.Decision, error) {
	now := l.now().Unix()
	decision := models.Allow()

	err := l.store.Update(sub.GuildID, func(rec *models.GuildRecord) error {
		eff := l.resolve(rec)
		bypass := sub.IsOwner || sub.HasRole(rec.Governance.Bypass.CooldownRoles)

		u := userBlock(&rec.Usage, sub.UserID, now)
		c := channelBlock(&rec.Usage, sub.ChannelID, now)

		if now-u.WindowStart >= int64(Window.Seconds()) {
			u.WindowStart, u.Count1m = now, 0
		}
		if now-c.WindowStart >= int64(Window.Seconds()) {
			c.WindowStart, c.Count1m = now, 0
		}

		if !bypass {
			if remaining := int64(eff.cooldownSec) - (now - u.LastUsed); u.LastUsed > 0 && remaining > 0 {
				decision = models.Reject(fmt.Sprintf("Cooldown active. Try again in %ds.", remaining))
				return nil
			}
			if u.Count1m >= eff.perUserPerMin {
				decision = models.Reject("Per-user rate limit reached. Try again later.")
				return nil
			}
			if c.Count1m >= eff.perChannelPerMin {
				decision = models.Reject("Channel is busy. Try again later.")
				return nil
			}
		}

		u.LastUsed = now
		u.Count1m++
		u.Total++
		c.Count1m++
		c.Total++
		rec.Usage.ChatCount++
		rec.Usage.LastUsed = now
		return nil
	})
	if err != nil {
		return models.Decision{}, err
	}
	return decision, nil
}

// CheckAndRecordTool gates a tool invocation. Governance gates (tool
// allow/deny by name, role, and channel) apply before any counter check; the
// per-tool cooldown, per-tool-per-user cap, and guild aggregate cap follow.
// Rejections leave every counter untouched.
func (l *Limiter) CheckAndRecordTool(sub models.Subject, tool string) (models.Decision, error) {
	now := l.now().Unix()
	decision := models.Allow()

	err := l.store.Update(sub.GuildID, func(rec *models.GuildRecord) error {
		eff := l.resolve(rec)
		gov := rec.Governance
		bypass := sub.IsOwner || sub.HasRole(gov.Bypass.CooldownRoles)

		if !bypass && tool != "" {
			if d := checkToolGates(gov.Tools, sub, tool); d != nil {
				decision = *d
				return nil
			}
		}

		perUser := eff.toolsPerUserPerMin
		if override, ok := gov.Tools.PerUserMinuteOverrides[tool]; ok {
			perUser = override
		}

		u := userBlock(&rec.Usage, sub.UserID, now)

		if now-u.TokensDayStart >= int64(dayWindow.Seconds()) {
			u.TokensDayStart, u.TokensDayTotal = now, 0
		}
		if now-u.ToolsWindowStart >= int64(Window.Seconds()) {
			u.ToolsWindowStart, u.ToolsCount1m = now, 0
		}
		if now-rec.Usage.ToolsGuildWindowStart >= int64(Window.Seconds()) {
			rec.Usage.ToolsGuildWindowStart, rec.Usage.ToolsGuildCount1m = now, 0
		}

		if !bypass {
			if eff.perUserDailyTokens > 0 && u.TokensDayTotal >= eff.perUserDailyTokens {
				decision = models.Reject("Daily token budget reached. Try again tomorrow.")
				return nil
			}
			if cd := eff.toolCooldowns[tool]; cd > 0 {
				last := u.ToolsLast[tool]
				if remaining := int64(cd) - (now - last); last > 0 && remaining > 0 {
					decision = models.Reject(fmt.Sprintf("Cooldown for tool '%s' active. Try again in %ds.", tool, remaining))
					return nil
				}
			}
			if u.ToolsCount1m >= perUser {
				decision = models.Reject("Per-user tool rate limit reached. Try again later.")
				return nil
			}
			if rec.Usage.ToolsGuildCount1m >= eff.toolsPerGuildPerMin {
				decision = models.Reject("Guild tool rate limit reached. Try again later.")
				return nil
			}
		}

		u.ToolsCount1m++
		rec.Usage.ToolsGuildCount1m++
		if tool != "" {
			if u.ToolsLast == nil {
				u.ToolsLast = make(map[string]int64)
			}
			u.ToolsLast[tool] = now
		}
		return nil
	})
	if err != nil {
		return models.Decision{}, err
	}
	return decision, nil
}

func checkToolGates(pol models.ToolPolicy, sub models.Subject, tool string) *models.Decision {
	if len(pol.DenyChannels) > 0 && contains(pol.DenyChannels, sub.ChannelID) {
		d := models.Reject(fmt.Sprintf("Tool '%s' is denied in this channel by governance policy.", tool))
		return &d
	}
	if len(pol.AllowChannels) > 0 && !contains(pol.AllowChannels, sub.ChannelID) {
		d := models.Reject(fmt.Sprintf("Tool '%s' is not allowed in this channel by governance policy.", tool))
		return &d
	}
	if len(pol.DenyRoles) > 0 && sub.HasRole(pol.DenyRoles) {
		d := models.Reject(fmt.Sprintf("Tool '%s' is denied for your role by governance policy.", tool))
		return &d
	}
	if len(pol.AllowRoles) > 0 && !sub.HasRole(pol.AllowRoles) {
		d := models.Reject(fmt.Sprintf("Tool '%s' is not allowed for your role by governance policy.", tool))
		return &d
	}
	if len(pol.Deny) > 0 && contains(pol.Deny, tool) {
		d := models.Reject(fmt.Sprintf("Tool '%s' is denied by governance policy.", tool))
		return &d
	}
	if len(pol.Allow) > 0 && !contains(pol.Allow, tool) {
		d := models.Reject(fmt.Sprintf("Tool '%s' is not in the allowed tool list.", tool))
		return &d
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

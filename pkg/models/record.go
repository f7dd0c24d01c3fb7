package models

// GuildRecord is the per-guild persisted state: governance policy overrides,
// rate-limit overrides, and all usage counters. The store serializes each
// guild's record as one JSON object and guarantees atomic read-modify-write
// sections per guild.
type GuildRecord struct {
	Governance GovernancePolicy  `json:"governance"`
	RateLimits RateLimitSettings `json:"rate_limits"`
	Usage      GuildUsage        `json:"usage"`
}

// GuildUsage aggregates every counter tracked for a guild.
type GuildUsage struct {
	ChatCount int64       `json:"chat_count"`
	LastUsed  int64       `json:"last_used"`
	Tokens    TokenTotals `json:"tokens"`
	CostUSD   float64     `json:"cost_usd"`

	ToolsTotal            int64 `json:"tools_total"`
	ToolsGuildWindowStart int64 `json:"tools_guild_window_start"`
	ToolsGuildCount1m     int   `json:"tools_guild_count_1m"`

	PerUser    map[string]*UserUsage    `json:"per_user,omitempty"`
	PerChannel map[string]*ChannelUsage `json:"per_channel,omitempty"`
	Tools      map[string]*ToolStats    `json:"tools,omitempty"`

	Budget     BudgetUsage     `json:"budget"`
	Autosearch AutosearchStats `json:"autosearch"`
}

// TokenTotals holds lifetime token counts for a guild.
type TokenTotals struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

// UserUsage is the per-user sliding-window counter block. Window rollover is
// lazy: callers compare now against WindowStart on each access.
type UserUsage struct {
	LastUsed    int64 `json:"last_used"`
	WindowStart int64 `json:"window_start"`
	Count1m     int   `json:"count_1m"`
	Total       int64 `json:"total"`
	TokensTotal int64 `json:"tokens_total"`

	ToolsWindowStart int64            `json:"tools_window_start"`
	ToolsCount1m     int              `json:"tools_count_1m"`
	ToolsLast        map[string]int64 `json:"tools_last,omitempty"`

	TokensDayStart int64 `json:"tokens_day_start"`
	TokensDayTotal int64 `json:"tokens_day_total"`
}

// ChannelUsage is the per-channel sliding-window counter block.
type ChannelUsage struct {
	WindowStart int64 `json:"window_start"`
	Count1m     int   `json:"count_1m"`
	Total       int64 `json:"total"`
	TokensTotal int64 `json:"tokens_total"`
}

// ToolStats tracks invocation telemetry for a single tool.
type ToolStats struct {
	Count        int64        `json:"count"`
	LastUsed     int64        `json:"last_used"`
	SuccessCount int64        `json:"success_count"`
	ErrorCount   int64        `json:"error_count"`
	Latency      LatencyStats `json:"latency_ms"`
}

// LatencyStats accumulates tool latency for average and last-call reporting.
type LatencyStats struct {
	TotalMs int64 `json:"total"`
	Count   int64 `json:"count"`
	LastMs  int64 `json:"last"`
}

// AutosearchStats counts classifier invocations and per-mode executions.
type AutosearchStats struct {
	Classified int64            `json:"classified"`
	Executed   map[string]int64 `json:"executed,omitempty"`
}

// Usage is the token and cost outcome of one completed downstream call.
type Usage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

package models

// GovernancePolicy is the per-guild policy block stored alongside usage.
// Every field is an override over the global defaults; absent fields fall
// back to the defaults during the effective-policy merge.
type GovernancePolicy struct {
	Bypass BypassPolicy    `json:"bypass"`
	Tools  ToolPolicy      `json:"tools"`
	Models ModelPolicy     `json:"models"`
	Budget *BudgetOverride `json:"budget,omitempty"`
}

// BypassPolicy names the roles exempt from cooldowns and per-minute caps.
type BypassPolicy struct {
	CooldownRoles []string `json:"cooldown_roles,omitempty" yaml:"cooldown_roles"`
}

// ToolPolicy gates tool invocations by name, role, and channel, and carries
// per-tool per-user-per-minute cap overrides.
type ToolPolicy struct {
	Allow                  []string       `json:"allow,omitempty" yaml:"allow"`
	Deny                   []string       `json:"deny,omitempty" yaml:"deny"`
	AllowRoles             []string       `json:"allow_roles,omitempty" yaml:"allow_roles"`
	DenyRoles              []string       `json:"deny_roles,omitempty" yaml:"deny_roles"`
	AllowChannels          []string       `json:"allow_channels,omitempty" yaml:"allow_channels"`
	DenyChannels           []string       `json:"deny_channels,omitempty" yaml:"deny_channels"`
	PerUserMinuteOverrides map[string]int `json:"per_user_minute_overrides,omitempty" yaml:"per_user_minute_overrides"`
}

// ModelPolicy maps provider name to allowed/denied model lists. A nil slice
// means no override for that provider; a present-but-empty slice is an
// explicit "allow nothing" override and does not fall back.
type ModelPolicy struct {
	Allow map[string][]string `json:"allow,omitempty" yaml:"allow"`
	Deny  map[string][]string `json:"deny,omitempty" yaml:"deny"`
}

// RateLimitSettings are per-guild rate-limit overrides. Nil pointers fall
// back to the configured global defaults.
type RateLimitSettings struct {
	CooldownSec         *int           `json:"cooldown_sec,omitempty"`
	PerUserPerMin       *int           `json:"per_user_per_min,omitempty"`
	PerChannelPerMin    *int           `json:"per_channel_per_min,omitempty"`
	ToolsPerUserPerMin  *int           `json:"tools_per_user_per_min,omitempty"`
	ToolsPerGuildPerMin *int           `json:"tools_per_guild_per_min,omitempty"`
	ToolCooldowns       map[string]int `json:"tool_cooldowns,omitempty"`
	PerUserDailyTokens  *int64         `json:"per_user_daily_tokens,omitempty"`
}

// BudgetOverride is the per-guild budget sub-block. Fields are pointers so
// that "override absent" is distinguishable from a zero value; each scalar
// falls back to the global default independently.
type BudgetOverride struct {
	Unit        *string      `json:"unit,omitempty" yaml:"unit"`
	DailyTokens *int64       `json:"daily_tokens,omitempty" yaml:"daily_tokens"`
	DailyUSD    *float64     `json:"daily_usd,omitempty" yaml:"daily_usd"`
	Thresholds  *Thresholds  `json:"thresholds,omitempty" yaml:"thresholds"`
	Reset       *ResetPolicy `json:"reset,omitempty" yaml:"reset"`
}

// Thresholds are warning ratios in (0..1], warn1 below warn2.
type Thresholds struct {
	Warn1 float64 `json:"warn1" yaml:"warn1"`
	Warn2 float64 `json:"warn2" yaml:"warn2"`
}

// ResetPolicy says when daily counters roll over.
type ResetPolicy struct {
	Period  string `json:"period" yaml:"period"`
	TimeUTC string `json:"time_utc" yaml:"time_utc"`
}

// Budget units.
const (
	UnitTokens = "tokens"
	UnitUSD    = "usd"
)

// KnownTools are the tool names governance blocks may reference. Policy
// written against any other name is rejected at the write boundary instead
// of silently never matching a request.
var KnownTools = []string{"autosearch", "search", "scrape", "scrape_multi", "crawl", "deep_research"}

// IsKnownTool reports whether name is a recognized tool.
func IsKnownTool(name string) bool {
	for _, t := range KnownTools {
		if t == name {
			return true
		}
	}
	return false
}

// BudgetPolicy is the effective (merged) budget for a guild. It is derived
// on each access and never persisted.
type BudgetPolicy struct {
	Unit        string      `json:"unit"`
	DailyTokens int64       `json:"daily_tokens"`
	DailyUSD    float64     `json:"daily_usd"`
	Thresholds  Thresholds  `json:"thresholds"`
	Reset       ResetPolicy `json:"reset"`
}

// BudgetUsage is the persisted daily consumption block for a guild.
// The day-start stamps are always at or after the most recent reset boundary;
// stale blocks are zeroed lazily on the next access.
type BudgetUsage struct {
	TokensDayStart int64     `json:"tokens_day_start"`
	TokensDayTotal int64     `json:"tokens_day_total"`
	CostDayStart   int64     `json:"cost_day_start"`
	CostDayUSD     float64   `json:"cost_day_usd"`
	LastWarnLevel  WarnLevel `json:"last_warn_level,omitempty"`
}

// WarnLevel marks which budget threshold was crossed most recently.
type WarnLevel string

const (
	WarnNone WarnLevel = ""
	Warn1    WarnLevel = "warn1"
	Warn2    WarnLevel = "warn2"
)

// BudgetStatus is returned after recording spend against a guild's budget.
type BudgetStatus struct {
	Unit        string    `json:"unit"`
	LimitTokens int64     `json:"limit_tokens"`
	LimitUSD    float64   `json:"limit_usd"`
	RatioTokens float64   `json:"ratio_tokens"`
	RatioUSD    float64   `json:"ratio_usd"`
	WarnLevel   WarnLevel `json:"warn_level,omitempty"`
	OverBudget  bool      `json:"over_budget"`
}

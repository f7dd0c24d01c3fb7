package models

import "time"

// AuditEntry is one gated request as written to the audit log.
type AuditEntry struct {
	RequestID string    `json:"request_id"`
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Tool      string    `json:"tool"`
	Mode      string    `json:"mode,omitempty"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolAggregate is an aggregate audit row grouped by tool name.
type ToolAggregate struct {
	Tool         string  `json:"tool"`
	Count        int64   `json:"count"`
	Allowed      int64   `json:"allowed"`
	Succeeded    int64   `json:"succeeded"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

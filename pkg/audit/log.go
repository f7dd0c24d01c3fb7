// Package audit records every gated request in a dedicated SQLite database
// for after-the-fact review: who asked, what was decided, how long the
// execution took. Reasons are the same user-safe strings the governor
// returns; nothing secret is ever written here.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guildgate/guildgate/pkg/models"
)

// Log writes and queries audit entries.
type Log struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

const createTable = `
CREATE TABLE IF NOT EXISTS gate_log (
	request_id TEXT PRIMARY KEY,
	guild_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	tool       TEXT NOT NULL,
	mode       TEXT NOT NULL DEFAULT '',
	allowed    INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	success    INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_gate_guild_time ON gate_log(guild_id, created_at);
CREATE INDEX IF NOT EXISTS idx_gate_tool ON gate_log(tool);
`

// New opens the audit database and starts the retention loop.
func New(dbPath string, retentionDays int) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Log{db: db, retentionDays: retentionDays, done: make(chan struct{})}
	if retentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}
	return l, nil
}

// Record inserts one audit entry. A nil Log is a no-op so callers can run
// with auditing disabled.
func (l *Log) Record(ctx context.Context, e models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO gate_log (request_id, guild_id, user_id, tool, mode, allowed, reason, success, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.GuildID, e.UserID, e.Tool, e.Mode, boolInt(e.Allowed), e.Reason, boolInt(e.Success), e.LatencyMs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, optionally filtered by guild.
func (l *Log) Recent(ctx context.Context, guildID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT request_id, guild_id, user_id, tool, mode, allowed, reason, success, latency_ms, created_at FROM gate_log`
	var args []any
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var allowed, success int
		if err := rows.Scan(&e.RequestID, &e.GuildID, &e.UserID, &e.Tool, &e.Mode, &allowed, &e.Reason, &success, &e.LatencyMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Allowed = allowed != 0
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ToolSummary aggregates entries per tool name.
func (l *Log) ToolSummary(ctx context.Context, guildID string) ([]models.ToolAggregate, error) {
	query := `SELECT tool, COUNT(*), SUM(allowed), SUM(success), COALESCE(AVG(latency_ms), 0) FROM gate_log`
	var args []any
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` GROUP BY tool ORDER BY COUNT(*) DESC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool summary: %w", err)
	}
	defer rows.Close()

	var out []models.ToolAggregate
	for rows.Next() {
		var a models.ToolAggregate
		if err := rows.Scan(&a.Tool, &a.Count, &a.Allowed, &a.Succeeded, &a.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan tool summary: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *Log) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays)
			_, _ = l.db.Exec(`DELETE FROM gate_log WHERE created_at < ?`, cutoff)
		}
	}
}

// Close stops the retention loop and releases the database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

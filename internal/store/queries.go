package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// Timeframe durations recognised by the logs query DSL (spec §4.10).
var Timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

const (
	DefaultQueryLimit = 1000
	MaxQueryLimit     = 5000
)

// ClampLimit applies spec §4.10's default/max query limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// ListLogs returns the newest `limit` log rows, optionally scoped to one
// agent and to records created at or after `since`. agentIDs, when
// non-nil, restricts results to the caller's authorized device set
// (the authorization filter is applied inside the query, per spec §4.10).
func (s *Store) ListLogs(ctx context.Context, agentIDs []string, since time.Time, limit int) ([]models.LogRecord, error) {
	query := `SELECT id, timestamp, host, agent_id, fields FROM logs WHERE timestamp >= $1`
	args := []any{since}
	if agentIDs != nil {
		query += ` AND agent_id = ANY($2)`
		args = append(args, agentIDs)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %d`, ClampLimit(limit))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var records []models.LogRecord
	for rows.Next() {
		var r models.LogRecord
		var fields []byte
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Host, &r.AgentID, &fields); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal log fields: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListCommands mirrors ListLogs for the commands stream.
func (s *Store) ListCommands(ctx context.Context, agentIDs []string, since time.Time, limit int) ([]models.CommandEvent, error) {
	query := `SELECT id, timestamp, agent_id, "user", command, shell, source, working_directory, exit_code
		FROM commands WHERE timestamp >= $1`
	args := []any{since}
	if agentIDs != nil {
		query += ` AND agent_id = ANY($2)`
		args = append(args, agentIDs)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT %d`, ClampLimit(limit))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var events []models.CommandEvent
	for rows.Next() {
		var e models.CommandEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.AgentID, &e.User, &e.Command, &e.Shell, &e.Source, &e.WorkingDirectory, &e.ExitCode); err != nil {
			return nil, fmt.Errorf("scan command row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListMetrics returns the newest metric samples for a single agent.
func (s *Store) ListMetrics(ctx context.Context, agentID string, since time.Time, limit int) ([]models.MetricSample, error) {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, timestamp, agent_id, cpu, memory, disk, network, process
			FROM metrics WHERE agent_id = $1 AND timestamp >= $2 ORDER BY timestamp DESC LIMIT %d`, ClampLimit(limit)),
		agentID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var m models.MetricSample
		var cpu, mem, disk, net, proc []byte
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.AgentID, &cpu, &mem, &disk, &net, &proc); err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		if err := json.Unmarshal(cpu, &m.CPU); err != nil {
			return nil, fmt.Errorf("unmarshal cpu: %w", err)
		}
		if err := json.Unmarshal(mem, &m.Memory); err != nil {
			return nil, fmt.Errorf("unmarshal memory: %w", err)
		}
		if err := json.Unmarshal(disk, &m.Disk); err != nil {
			return nil, fmt.Errorf("unmarshal disk: %w", err)
		}
		if err := json.Unmarshal(net, &m.Network); err != nil {
			return nil, fmt.Errorf("unmarshal network: %w", err)
		}
		if err := json.Unmarshal(proc, &m.Process); err != nil {
			return nil, fmt.Errorf("unmarshal process: %w", err)
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

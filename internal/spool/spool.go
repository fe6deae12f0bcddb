// Package spool is the agent's embedded single-writer-safe local store
// (spec §4.1, C1). It buffers telemetry and locally-generated alerts until
// the forwarder ships them and the server acknowledges receipt.
package spool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

// tables maps each telemetry stream to its spool table name. Processes are
// included alongside logs/commands/metrics/alerts even though spec §4.1's
// prose only lists the latter four — the forwarder (§4.4) iterates all five
// streams in models.AllStreams, so a fifth table is required for the spool
// to have anywhere to keep unforwarded process snapshots. See DESIGN.md.
var tables = map[models.Stream]string{
	models.StreamLogs:      "logs",
	models.StreamMetrics:   "metrics",
	models.StreamProcesses: "processes",
	models.StreamCommands:  "commands",
	models.StreamAlerts:    "alerts",
}

// Row is one unforwarded spool record: its monotonic id and JSON payload.
type Row struct {
	ID      int64
	Payload json.RawMessage
}

// Spool is the agent's local durable buffer. A single *sql.DB with
// SetMaxOpenConns(1) serializes writers, matching the single-writer-safe
// requirement in spec §4.1/§5; mu additionally serializes every Spool
// method's statement.
type Spool struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// Open creates (or reuses) the embedded database file at path and runs
// schema migrations. Safe to call once per agent process.
func Open(path string, logger zerolog.Logger) (*Spool, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("spool: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Spool{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("spool: migrate: %w", err)
	}
	return s, nil
}

func (s *Spool) migrate() error {
	for _, table := range tables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			payload   TEXT NOT NULL,
			forwarded INTEGER NOT NULL DEFAULT 0
		)`, table)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_forwarded ON %s (forwarded, id)`, table, table)
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index on %s: %w", table, err)
		}
	}
	return nil
}

// Write appends record to the stream's table. It is not idempotent: a
// retried Write stores a second row, since spec §4.1 does not require
// deterministic ids — duplicates are the server's problem (§4.5, §8
// round-trip property).
func (s *Spool) Write(ctx context.Context, stream models.Stream, record interface{}) error {
	table, ok := tables[stream]
	if !ok {
		return fmt.Errorf("spool: unknown stream %q", stream)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("spool: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (payload) VALUES (?)", table), string(payload))
	if err != nil {
		return fmt.Errorf("spool: insert into %s: %w", table, err)
	}
	return nil
}

// TakeUnforwarded returns up to limit of the oldest forwarded=0 rows for
// stream, in ascending id order (spec §4.1, §5 ordering guarantee). It is
// idempotent across crashes: the same rows resurface until MarkForwarded is
// called for them.
func (s *Spool) TakeUnforwarded(ctx context.Context, stream models.Stream, limit int) ([]Row, error) {
	table, ok := tables[stream]
	if !ok {
		return nil, fmt.Errorf("spool: unknown stream %q", stream)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, payload FROM %s WHERE forwarded = 0 ORDER BY id ASC LIMIT ?", table), limit)
	if err != nil {
		return nil, fmt.Errorf("spool: query %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var payload string
		if err := rows.Scan(&r.ID, &payload); err != nil {
			return nil, fmt.Errorf("spool: scan %s: %w", table, err)
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkForwarded sets forwarded=1 for the given ids. Callers must only pass
// ids the server has ACK'd (spec §4.1 invariant: forwarded progresses
// monotonically 0 -> 1, never back).
func (s *Spool) MarkForwarded(ctx context.Context, stream models.Stream, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	table, ok := tables[stream]
	if !ok {
		return fmt.Errorf("spool: unknown stream %q", stream)
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("UPDATE %s SET forwarded = 1 WHERE id IN (%s)", table, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("spool: mark forwarded on %s: %w", table, err)
	}
	return nil
}

// PruneOldest deletes all but the newest keep rows for stream, forwarded or
// not, for bounding local retention to ~1000 newest rows (spec §3: LogRecord
// retention "~1000 newest locally after export"). No agent code calls it.
func (s *Spool) PruneOldest(ctx context.Context, stream models.Stream, keep int) error {
	table, ok := tables[stream]
	if !ok {
		return fmt.Errorf("spool: unknown stream %q", stream)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`DELETE FROM %s WHERE id NOT IN (
		SELECT id FROM %s ORDER BY id DESC LIMIT ?
	)`, table, table)
	if _, err := s.db.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("spool: prune %s: %w", table, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Spool) Close() error {
	return s.db.Close()
}

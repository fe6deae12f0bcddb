package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// InsertLogs bulk-inserts log records via pgx's native CopyFrom path for
// ingest throughput (spec §4.5 "uses bulk-copy path").
func (s *Store) InsertLogs(ctx context.Context, records []models.LogRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	copier, ok := s.db.(interface {
		CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	})
	if !ok {
		return s.insertLogsBatched(ctx, records)
	}

	rows := make([][]any, len(records))
	for i, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return 0, fmt.Errorf("marshal log fields: %w", err)
		}
		rows[i] = []any{r.Timestamp, r.Host, r.AgentID, fields}
	}

	n, err := copier.CopyFrom(ctx, pgx.Identifier{"logs"},
		[]string{"timestamp", "host", "agent_id", "fields"}, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy logs: %w", err)
	}
	return n, nil
}

func (s *Store) insertLogsBatched(ctx context.Context, records []models.LogRecord) (int64, error) {
	var inserted int64
	for _, r := range records {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return inserted, fmt.Errorf("marshal log fields: %w", err)
		}
		_, err = s.db.Exec(ctx,
			`INSERT INTO logs (timestamp, host, agent_id, fields) VALUES ($1, $2, $3, $4)`,
			r.Timestamp, r.Host, r.AgentID, fields)
		if err != nil {
			return inserted, fmt.Errorf("insert log: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

// InsertMetric stores one MetricSample. Duplicate suppression is
// intentionally absent here (spec §9 open question — ML training density).
func (s *Store) InsertMetric(ctx context.Context, m models.MetricSample) error {
	cpu, err := json.Marshal(m.CPU)
	if err != nil {
		return fmt.Errorf("marshal cpu: %w", err)
	}
	mem, err := json.Marshal(m.Memory)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	disk, err := json.Marshal(m.Disk)
	if err != nil {
		return fmt.Errorf("marshal disk: %w", err)
	}
	net, err := json.Marshal(m.Network)
	if err != nil {
		return fmt.Errorf("marshal network: %w", err)
	}
	proc, err := json.Marshal(m.Process)
	if err != nil {
		return fmt.Errorf("marshal process: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO metrics (timestamp, agent_id, cpu, memory, disk, network, process)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.Timestamp, m.AgentID, cpu, mem, disk, net, proc,
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// InsertProcesses atomically replaces the latest-only projection for
// agentID and appends the same snapshots to the history table, inside one
// transaction so readers never observe a partial state (spec §4.5, §5, §9).
func (s *Store) InsertProcesses(ctx context.Context, agentID string, snapshots []models.ProcessSnapshot) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin process transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM processes WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("delete prior processes: %w", err)
	}

	for _, p := range snapshots {
		conns, err := json.Marshal(p.ConnectionDetails)
		if err != nil {
			return fmt.Errorf("marshal connection details: %w", err)
		}
		for _, table := range []string{"processes", "processes_history"} {
			_, err = tx.Exec(ctx,
				`INSERT INTO `+table+` (collected_at, agent_id, pid, name, ppid, username, status, cmdline, exe,
					cpu_percent, memory_percent, memory_rss, memory_vms, num_threads, num_fds, num_connections, connection_details)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
				p.CollectedAt, agentID, p.PID, p.Name, p.PPID, p.Username, p.Status, p.Cmdline, p.Exe,
				p.CPUPercent, p.MemoryPercent, p.MemoryRSS, p.MemoryVMS, p.NumThreads, p.NumFDs, p.NumConnections, conns,
			)
			if err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit process transaction: %w", err)
	}
	return nil
}

// GetLatestProcesses returns the latest-only projection for one agent.
func (s *Store) GetLatestProcesses(ctx context.Context, agentID string) ([]models.ProcessSnapshot, error) {
	rows, err := s.db.Query(ctx,
		`SELECT collected_at, agent_id, pid, name, ppid, username, status, cmdline, exe,
			cpu_percent, memory_percent, memory_rss, memory_vms, num_threads, num_fds, num_connections, connection_details
		 FROM processes WHERE agent_id = $1 ORDER BY pid`, agentID)
	if err != nil {
		return nil, fmt.Errorf("get latest processes: %w", err)
	}
	defer rows.Close()

	var snapshots []models.ProcessSnapshot
	for rows.Next() {
		var p models.ProcessSnapshot
		var conns []byte
		if err := rows.Scan(&p.CollectedAt, &p.AgentID, &p.PID, &p.Name, &p.PPID, &p.Username, &p.Status, &p.Cmdline, &p.Exe,
			&p.CPUPercent, &p.MemoryPercent, &p.MemoryRSS, &p.MemoryVMS, &p.NumThreads, &p.NumFDs, &p.NumConnections, &conns); err != nil {
			return nil, fmt.Errorf("scan process row: %w", err)
		}
		if len(conns) > 0 {
			if err := json.Unmarshal(conns, &p.ConnectionDetails); err != nil {
				return nil, fmt.Errorf("unmarshal connection details: %w", err)
			}
		}
		snapshots = append(snapshots, p)
	}
	return snapshots, rows.Err()
}

// InsertCommands inserts parsed shell history entries, relying on the
// dedup_hash UNIQUE constraint for server-side duplicate suppression;
// conflicting rows are silently skipped (spec §4.5).
func (s *Store) InsertCommands(ctx context.Context, events []models.CommandEvent) (int64, error) {
	var inserted int64
	for _, e := range events {
		hash := CommandDedupHash(e)
		tag, err := s.db.Exec(ctx,
			`INSERT INTO commands (timestamp, agent_id, "user", command, shell, source, working_directory, exit_code, dedup_hash)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (dedup_hash) DO NOTHING`,
			e.Timestamp, e.AgentID, e.User, e.Command, e.Shell, e.Source, e.WorkingDirectory, e.ExitCode, hash,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert command: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// GetLastCommandSync returns the timestamp of the most recently stored
// command for agentID, used to answer
// GET /api/commands/last-sync/{agent_id} (spec §4.4 catch-up).
func (s *Store) GetLastCommandSync(ctx context.Context, agentID string) (*models.CommandEvent, error) {
	var e models.CommandEvent
	err := s.db.QueryRow(ctx,
		`SELECT timestamp FROM commands WHERE agent_id = $1 ORDER BY timestamp DESC LIMIT 1`, agentID,
	).Scan(&e.Timestamp)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last command sync: %w", err)
	}
	return &e, nil
}

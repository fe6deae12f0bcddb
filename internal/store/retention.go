package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionPeriod is the central-store data retention window (spec §3, §5).
const RetentionPeriod = 180 * 24 * time.Hour

// retainedTables lists every table the daily retention loop prunes.
// processes (the latest-only projection) is excluded — it always holds
// exactly the newest snapshot per agent and is never historical.
var retainedTables = []string{"logs", "commands", "metrics", "processes_history"}

// PruneRetention deletes rows older than RetentionPeriod from every
// retained table and reports the total rows removed. Callers run this once
// daily (spec §5: "once per day at 03:00 local").
func (s *Store) PruneRetention(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-RetentionPeriod)
	var total int64
	for _, table := range retainedTables {
		column := "timestamp"
		if table == "processes_history" {
			column = "collected_at"
		}
		tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, table, column), cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// VacuumRetainedTables reclaims space after a prune pass. Run outside any
// transaction — VACUUM cannot execute inside one.
func (s *Store) VacuumRetainedTables(ctx context.Context) error {
	for _, table := range retainedTables {
		if _, err := s.db.Exec(ctx, fmt.Sprintf(`VACUUM %s`, table)); err != nil {
			return fmt.Errorf("vacuum %s: %w", table, err)
		}
	}
	return nil
}

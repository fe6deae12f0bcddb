package spool

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

func openTestSpool(t *testing.T) *Spool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.db")
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndTakeUnforwarded(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := models.LogRecord{Host: "h1", AgentID: "a1", Fields: map[string]string{"MESSAGE": "hi"}}
		if err := s.Write(ctx, models.StreamLogs, rec); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	rows, err := s.TakeUnforwarded(ctx, models.StreamLogs, 100)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("TakeUnforwarded() returned %d rows, want 3", len(rows))
	}
	// ascending id order
	for i := 1; i < len(rows); i++ {
		if rows[i].ID <= rows[i-1].ID {
			t.Errorf("rows not in ascending id order: %d <= %d", rows[i].ID, rows[i-1].ID)
		}
	}
}

func TestMarkForwardedIsMonotonic(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	rec := models.CommandEvent{User: "root", Command: "ls"}
	if err := s.Write(ctx, models.StreamCommands, rec); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	rows, err := s.TakeUnforwarded(ctx, models.StreamCommands, 10)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	if err := s.MarkForwarded(ctx, models.StreamCommands, []int64{rows[0].ID}); err != nil {
		t.Fatalf("MarkForwarded() error: %v", err)
	}

	again, err := s.TakeUnforwarded(ctx, models.StreamCommands, 10)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected 0 unforwarded rows after marking, got %d", len(again))
	}
}

func TestTakeUnforwardedSurvivesWithoutMark(t *testing.T) {
	// Simulates a crash between TakeUnforwarded and MarkForwarded: the rows
	// must resurface (spec §4.1 durability, §8 property 1).
	s := openTestSpool(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.Write(ctx, models.StreamAlerts, map[string]string{"rule": "r1"}); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	first, err := s.TakeUnforwarded(ctx, models.StreamAlerts, 10)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	second, err := s.TakeUnforwarded(ctx, models.StreamAlerts, 10)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected identical resurfacing batches, got %d vs %d", len(first), len(second))
	}
}

func TestTakeUnforwardedRespectsLimit(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Write(ctx, models.StreamMetrics, models.MetricSample{AgentID: "a1"}); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	rows, err := s.TakeUnforwarded(ctx, models.StreamMetrics, 2)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("TakeUnforwarded(limit=2) returned %d rows, want 2", len(rows))
	}
}

func TestPruneOldestKeepsNewest(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		if err := s.Write(ctx, models.StreamLogs, models.LogRecord{AgentID: "a1"}); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	rows, err := s.TakeUnforwarded(ctx, models.StreamLogs, 10)
	if err != nil {
		t.Fatalf("TakeUnforwarded() error: %v", err)
	}
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	if err := s.MarkForwarded(ctx, models.StreamLogs, ids); err != nil {
		t.Fatalf("MarkForwarded() error: %v", err)
	}

	if err := s.PruneOldest(ctx, models.StreamLogs, 2); err != nil {
		t.Fatalf("PruneOldest() error: %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&count); err != nil {
		t.Fatalf("count query error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows remaining after prune, got %d", count)
	}
}

func TestUnknownStreamErrors(t *testing.T) {
	s := openTestSpool(t)
	ctx := context.Background()

	if err := s.Write(ctx, models.Stream("bogus"), struct{}{}); err == nil {
		t.Error("Write() with unknown stream should error")
	}
	if _, err := s.TakeUnforwarded(ctx, models.Stream("bogus"), 10); err == nil {
		t.Error("TakeUnforwarded() with unknown stream should error")
	}
}

package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/MokshitBindal/Aegis-sub000/internal/spool"
	"github.com/rs/zerolog"
)

type fakeSpool struct {
	mu       sync.Mutex
	rows     map[models.Stream][]spool.Row
	forwarded map[models.Stream][]int64
}

func newFakeSpool() *fakeSpool {
	return &fakeSpool{rows: map[models.Stream][]spool.Row{}, forwarded: map[models.Stream][]int64{}}
}

func (f *fakeSpool) TakeUnforwarded(ctx context.Context, stream models.Stream, limit int) ([]spool.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rows[stream]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]spool.Row, len(rows))
	copy(out, rows)
	return out, nil
}

func (f *fakeSpool) MarkForwarded(ctx context.Context, stream models.Stream, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	marked := map[int64]bool{}
	for _, id := range ids {
		marked[id] = true
	}
	var remaining []spool.Row
	for _, r := range f.rows[stream] {
		if !marked[r.ID] {
			remaining = append(remaining, r)
		}
	}
	f.rows[stream] = remaining
	f.forwarded[stream] = append(f.forwarded[stream], ids...)
	return nil
}

func TestForwardBatchMarksForwardedOnSuccess(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		atomic.AddInt32(&received, int32(len(batch)))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fs := newFakeSpool()
	fs.rows[models.StreamLogs] = []spool.Row{
		{ID: 1, Payload: json.RawMessage(`{"a":1}`)},
		{ID: 2, Payload: json.RawMessage(`{"a":2}`)},
	}

	fwd := New("agent-1", srv.URL, 100, time.Minute, fs, zerolog.Nop())
	if err := fwd.forwardBatch(context.Background(), models.StreamLogs); err != nil {
		t.Fatalf("forwardBatch() error: %v", err)
	}

	if received != 2 {
		t.Errorf("server received %d records, want 2", received)
	}
	if len(fs.forwarded[models.StreamLogs]) != 2 {
		t.Errorf("forwarded ids = %v, want 2 entries", fs.forwarded[models.StreamLogs])
	}
	if len(fs.rows[models.StreamLogs]) != 0 {
		t.Errorf("expected no rows remaining after forward, got %d", len(fs.rows[models.StreamLogs]))
	}
}

func TestForwardBatchDoesNotMarkOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := newFakeSpool()
	fs.rows[models.StreamAlerts] = []spool.Row{{ID: 1, Payload: json.RawMessage(`{}`)}}

	fwd := New("agent-1", srv.URL, 100, time.Minute, fs, zerolog.Nop())
	fwd.retrySleep = func(ctx context.Context, d time.Duration) error { return nil } // skip real backoff in test

	if err := fwd.forwardBatch(context.Background(), models.StreamAlerts); err == nil {
		t.Fatal("expected forwardBatch() to return an error on persistent 500s")
	}
	if len(fs.rows[models.StreamAlerts]) != 1 {
		t.Errorf("expected row to remain unforwarded after failure, got %d rows", len(fs.rows[models.StreamAlerts]))
	}
}

func TestForwardBatchSkipsNonRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	fs := newFakeSpool()
	fs.rows[models.StreamCommands] = []spool.Row{{ID: 1, Payload: json.RawMessage(`{}`)}}

	fwd := New("agent-1", srv.URL, 100, time.Minute, fs, zerolog.Nop())
	if err := fwd.forwardBatch(context.Background(), models.StreamCommands); err == nil {
		t.Fatal("expected error for non-retryable 400 status")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 request for a non-retryable status, got %d", calls)
	}
}

func TestForwardBatchEmptyIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	fs := newFakeSpool()
	fwd := New("agent-1", srv.URL, 100, time.Minute, fs, zerolog.Nop())
	if err := fwd.forwardBatch(context.Background(), models.StreamMetrics); err != nil {
		t.Fatalf("forwardBatch() error: %v", err)
	}
	if called {
		t.Error("expected no HTTP call when there are no unforwarded rows")
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	if d := backoffDelay(10); d != retryMaxDelay {
		t.Errorf("backoffDelay(10) = %v, want capped at %v", d, retryMaxDelay)
	}
	if d := backoffDelay(1); d != retryBaseDelay {
		t.Errorf("backoffDelay(1) = %v, want %v", d, retryBaseDelay)
	}
}

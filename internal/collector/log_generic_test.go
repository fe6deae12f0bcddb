package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogTailAdapterSkipsExistingThenTailsNewLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("old line 1\nold line 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	a := &LogTailAdapter{Host: "h1", AgentID: "a1", Path: path, Logger: zerolog.Nop()}
	if info, err := os.Stat(path); err == nil {
		a.position = info.Size()
	}

	sink := &recordingSink{}
	a.poll(context.Background(), sink)
	if sink.count() != 0 {
		t.Fatalf("expected 0 records before any new data, got %d", sink.count())
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	if _, err := f.WriteString("new line 1\nnew line 2\n"); err != nil {
		t.Fatalf("WriteString() error: %v", err)
	}
	f.Close()

	a.poll(context.Background(), sink)
	if sink.count() != 2 {
		t.Fatalf("expected 2 new records, got %d", sink.count())
	}

	_, records := sink.snapshot()
	if len(records) != 2 {
		t.Fatalf("expected 2 records in snapshot, got %d", len(records))
	}
}

func TestLogTailAdapterHandlesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	a := &LogTailAdapter{Host: "h1", AgentID: "a1", Path: path, Logger: zerolog.Nop()}
	if info, err := os.Stat(path); err == nil {
		a.position = info.Size()
	}

	if err := os.WriteFile(path, []byte("short\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() truncate error: %v", err)
	}

	sink := &recordingSink{}
	a.poll(context.Background(), sink)
	if sink.count() != 1 {
		t.Fatalf("expected 1 record after truncation-triggered re-read, got %d", sink.count())
	}
}

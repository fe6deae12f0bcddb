package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

func TestCommandAdapterSkipsPreExistingHistory(t *testing.T) {
	dir := t.TempDir()
	origHomes := systemUserHomes
	t.Cleanup(func() { systemUserHomes = origHomes })
	systemUserHomes = func() []string { return []string{dir} }

	histPath := filepath.Join(dir, ".bash_history")
	if err := os.WriteFile(histPath, []byte("ls -la\nwhoami\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	a := &CommandAdapter{Logger: zerolog.Nop()}
	a.positions = map[string]int64{}
	a.seen = map[string]struct{}{}
	a.initializePositions()

	sink := &recordingSink{}
	a.poll(context.Background(), sink)

	if sink.count() != 0 {
		t.Fatalf("expected 0 commands from pre-existing history, got %d", sink.count())
	}

	f, err := os.OpenFile(histPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	if _, err := f.WriteString("curl example.com\n"); err != nil {
		t.Fatalf("WriteString() error: %v", err)
	}
	f.Close()

	a.poll(context.Background(), sink)
	if sink.count() != 1 {
		t.Fatalf("expected 1 new command after append, got %d", sink.count())
	}
}

func TestCommandAdapterDeduplicates(t *testing.T) {
	dir := t.TempDir()
	origHomes := systemUserHomes
	t.Cleanup(func() { systemUserHomes = origHomes })
	systemUserHomes = func() []string { return []string{dir} }

	a := &CommandAdapter{Logger: zerolog.Nop()}
	a.positions = map[string]int64{}
	a.seen = map[string]struct{}{}

	ev := models.CommandEvent{User: "root", Command: "ls", Timestamp: time.Unix(100, 0)}
	if a.duplicate(ev) {
		t.Fatal("first occurrence should not be a duplicate")
	}
	if !a.duplicate(ev) {
		t.Fatal("second occurrence of identical event should be a duplicate")
	}
}

func TestCommandAdapterIgnoreGlobs(t *testing.T) {
	a := &CommandAdapter{IgnoreGlobs: []string{"ls *", "pwd"}}
	if !a.ignored("ls -la") {
		t.Error("expected 'ls -la' to match ignore glob 'ls *'")
	}
	if !a.ignored("pwd") {
		t.Error("expected 'pwd' to match ignore glob 'pwd'")
	}
	if a.ignored("curl example.com") {
		t.Error("did not expect 'curl example.com' to be ignored")
	}
}

func TestParseHistoryLineZsh(t *testing.T) {
	ev := parseHistoryLine(": 1700000000:0;git status", "alice", models.CommandSourceZsh)
	if ev.Command != "git status" {
		t.Errorf("Command = %q, want %q", ev.Command, "git status")
	}
	if ev.Timestamp.Unix() != 1700000000 {
		t.Errorf("Timestamp = %v, want unix 1700000000", ev.Timestamp)
	}
}

func TestParseHistoryLineBash(t *testing.T) {
	ev := parseHistoryLine("uptime", "bob", models.CommandSourceBash)
	if ev.Command != "uptime" {
		t.Errorf("Command = %q, want %q", ev.Command, "uptime")
	}
	if ev.User != "bob" {
		t.Errorf("User = %q, want bob", ev.User)
	}
}

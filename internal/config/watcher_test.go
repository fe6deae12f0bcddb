package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("initial"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	var loadCount int
	onLoad := func() (*ServerConfig, error) {
		loadCount++
		return &ServerConfig{ListenAddr: fmt.Sprintf("load-%d", loadCount)}, nil
	}

	w, err := NewWatcher(envPath, zerolog.Nop(), onLoad)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Stop()

	if w.Current().ListenAddr != "load-1" {
		t.Fatalf("Current() = %q, want load-1", w.Current().ListenAddr)
	}

	if err := os.WriteFile(envPath, []byte("changed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().ListenAddr == "load-2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Current() never reflected reload, got %q", w.Current().ListenAddr)
}

func TestWatcherKeepsPreviousConfigOnLoadError(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("initial"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	calls := 0
	onLoad := func() (*ServerConfig, error) {
		calls++
		if calls == 1 {
			return &ServerConfig{ListenAddr: "good"}, nil
		}
		return nil, fmt.Errorf("boom")
	}

	w, err := NewWatcher(envPath, zerolog.Nop(), onLoad)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(envPath, []byte("changed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if w.Current().ListenAddr != "good" {
		t.Errorf("Current() = %q, want unchanged %q after failed reload", w.Current().ListenAddr, "good")
	}
}

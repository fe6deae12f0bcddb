package collector

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

var zshHistoryLine = regexp.MustCompile(`^:\s*(\d+):(\d+);(.*)$`)

const maxSeenCommandHashes = 10000

// historyFile pairs a shell history path with the models.CommandSource it
// implies, mirroring command_collector.py's per-shell file list.
type historyFile struct {
	rel    string
	source models.CommandSource
}

var historyFiles = []historyFile{
	{".bash_history", models.CommandSourceBash},
	{".zsh_history", models.CommandSourceZsh},
}

// CommandAdapter tails user shell history files for newly appended commands
// (spec §2, §3: CommandEvent). It never re-reads a line it has already
// emitted, tracking per-file byte offsets the way a tail -f would.
type CommandAdapter struct {
	Interval    time.Duration
	IgnoreGlobs []string
	Logger      zerolog.Logger

	positions map[string]int64
	seen      map[string]struct{}
	seenOrder []string
	stop      chan struct{}
}

func (a *CommandAdapter) Name() string { return "commands" }

func (a *CommandAdapter) Start(ctx context.Context, sink Sink) error {
	a.stop = make(chan struct{})
	a.positions = map[string]int64{}
	a.seen = map[string]struct{}{}

	a.initializePositions()

	interval := a.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stop:
			return nil
		case <-ticker.C:
			a.poll(ctx, sink)
		}
	}
}

func (a *CommandAdapter) Stop(ctx context.Context) error {
	if a.stop != nil {
		close(a.stop)
	}
	return nil
}

// initializePositions seeks every history file to its current end so the
// first poll only sees commands issued after the agent started, avoiding a
// flood of historical commands on every restart.
func (a *CommandAdapter) initializePositions() {
	for _, home := range systemUserHomes() {
		for _, hf := range historyFiles {
			path := filepath.Join(home, hf.rel)
			if info, err := os.Stat(path); err == nil {
				a.positions[path] = info.Size()
			}
		}
	}
}

func (a *CommandAdapter) poll(ctx context.Context, sink Sink) {
	for _, home := range systemUserHomes() {
		username := filepath.Base(home)
		for _, hf := range historyFiles {
			path := filepath.Join(home, hf.rel)
			events, err := a.readNew(path, username, hf.source)
			if err != nil {
				continue
			}
			for _, ev := range events {
				if a.ignored(ev.Command) {
					continue
				}
				if a.duplicate(ev) {
					continue
				}
				if err := sink.Write(ctx, models.StreamCommands, ev); err != nil {
					a.Logger.Warn().Err(err).Msg("collector: command sink write failed")
				}
			}
		}
	}
}

func (a *CommandAdapter) ignored(command string) bool {
	for _, g := range a.IgnoreGlobs {
		if wildcard.Match(g, command) {
			return true
		}
	}
	return false
}

func (a *CommandAdapter) duplicate(ev models.CommandEvent) bool {
	h := sha256.Sum256([]byte(ev.User + "|" + ev.Timestamp.String() + "|" + ev.Command))
	key := hex.EncodeToString(h[:])
	if _, ok := a.seen[key]; ok {
		return true
	}
	a.seen[key] = struct{}{}
	a.seenOrder = append(a.seenOrder, key)
	if len(a.seenOrder) > maxSeenCommandHashes {
		drop := a.seenOrder[0]
		delete(a.seen, drop)
		a.seenOrder = a.seenOrder[1:]
	}
	return false
}

func (a *CommandAdapter) readNew(path, username string, source models.CommandSource) ([]models.CommandEvent, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	last := a.positions[path]
	if info.Size() < last {
		last = 0
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(last, 0); err != nil {
		return nil, err
	}

	var events []models.CommandEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var bytesRead int64
	for scanner.Scan() {
		line := scanner.Text()
		bytesRead += int64(len(line)) + 1
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		events = append(events, parseHistoryLine(line, username, source))
	}

	a.positions[path] = last + bytesRead
	return events, scanner.Err()
}

func parseHistoryLine(line, username string, source models.CommandSource) models.CommandEvent {
	ev := models.CommandEvent{
		User:      username,
		Shell:     string(source),
		Source:    source,
		Timestamp: time.Now().UTC(),
		Command:   line,
	}

	if source == models.CommandSourceZsh {
		if m := zshHistoryLine.FindStringSubmatch(line); m != nil {
			if sec, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				ev.Timestamp = time.Unix(sec, 0).UTC()
			}
			ev.Command = strings.TrimSpace(m[3])
		}
	}

	return ev
}

// systemUserHomes returns the home directory of the user the agent runs as.
// Other local users' home directories are not enumerated, so their shell
// history is not collected.
var systemUserHomes = func() []string {
	var homes []string
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		homes = append(homes, u.HomeDir)
	}
	return homes
}

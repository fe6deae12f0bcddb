package collector

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

// LogTailAdapter tails a plain-text log file, one record per line. It
// stands in for the platform-specific journald/Windows Event Log/macOS
// unified-log readers the original agent ships (aegis-agent/internal/
// collector/journald_linux.py, windows_event.py, mac_unified.py): all three
// reduce to "read new lines, parse into a LogRecord", which this adapter
// implements once behind a single cross-platform contract.
type LogTailAdapter struct {
	Host     string
	AgentID  string
	Path     string
	Interval time.Duration
	Logger   zerolog.Logger

	position int64
	stop     chan struct{}
}

func (a *LogTailAdapter) Name() string { return "log_tail:" + a.Path }

func (a *LogTailAdapter) Start(ctx context.Context, sink Sink) error {
	a.stop = make(chan struct{})
	if info, err := os.Stat(a.Path); err == nil {
		a.position = info.Size()
	}

	interval := a.Interval
	if interval <= 0 {
		interval = 2 * time.Second
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

func (a *LogTailAdapter) Stop(ctx context.Context) error {
	if a.stop != nil {
		close(a.stop)
	}
	return nil
}

func (a *LogTailAdapter) poll(ctx context.Context, sink Sink) {
	info, err := os.Stat(a.Path)
	if err != nil {
		return
	}
	if info.Size() < a.position {
		a.position = 0 // file rotated/truncated
	}
	if info.Size() == a.position {
		return
	}

	f, err := os.Open(a.Path)
	if err != nil {
		a.Logger.Warn().Err(err).Str("path", a.Path).Msg("collector: open log file failed")
		return
	}
	defer f.Close()

	if _, err := f.Seek(a.position, 0); err != nil {
		return
	}

	var read int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(line)) + 1
		if line == "" {
			continue
		}
		rec := models.LogRecord{
			Timestamp: time.Now().UTC(),
			Host:      a.Host,
			AgentID:   a.AgentID,
			Fields:    map[string]string{"MESSAGE": line},
		}
		if err := sink.Write(ctx, models.StreamLogs, rec); err != nil {
			a.Logger.Warn().Err(err).Msg("collector: log sink write failed")
		}
	}
	a.position += read
}

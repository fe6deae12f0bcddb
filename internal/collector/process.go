package collector

import (
	"context"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
	goprocess "github.com/shirou/gopsutil/v4/process"
)

// Indirection point for deterministic tests.
var listProcesses = goprocess.ProcessesWithContext

// ProcessAdapter takes periodic snapshots of the running process table
// (spec §2, §3: ProcessSnapshot) for ML feature extraction and C11 scoring.
type ProcessAdapter struct {
	AgentID  string
	Interval time.Duration
	Logger   zerolog.Logger

	stop chan struct{}
}

func (a *ProcessAdapter) Name() string { return "processes" }

func (a *ProcessAdapter) Start(ctx context.Context, sink Sink) error {
	a.stop = make(chan struct{})
	interval := a.Interval
	if interval <= 0 {
		interval = 30 * time.Second
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
			a.collectAndEmit(ctx, sink)
		}
	}
}

func (a *ProcessAdapter) Stop(ctx context.Context) error {
	if a.stop != nil {
		close(a.stop)
	}
	return nil
}

func (a *ProcessAdapter) collectAndEmit(ctx context.Context, sink Sink) {
	procs, err := listProcesses(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("collector: list processes failed")
		return
	}

	now := time.Now().UTC()
	for _, p := range procs {
		snap, ok := a.snapshot(ctx, p, now)
		if !ok {
			continue
		}
		if err := sink.Write(ctx, models.StreamProcesses, snap); err != nil {
			a.Logger.Warn().Err(err).Msg("collector: process sink write failed")
		}
	}
}

// snapshot extracts a models.ProcessSnapshot from a live process handle.
// Access-denied/no-such-process errors (races against process exit) are
// swallowed per-field rather than discarding the whole snapshot, matching
// the original agent's best-effort per-field collection. The name is the
// exception: a process whose name cannot be read is skipped.
func (a *ProcessAdapter) snapshot(ctx context.Context, p *goprocess.Process, now time.Time) (models.ProcessSnapshot, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return models.ProcessSnapshot{}, false
	}

	snap := models.ProcessSnapshot{
		CollectedAt: now,
		AgentID:     a.AgentID,
		PID:         p.Pid,
		Name:        name,
	}

	if ppid, err := p.PpidWithContext(ctx); err == nil {
		snap.PPID = ppid
	}
	if username, err := p.UsernameWithContext(ctx); err == nil {
		snap.Username = username
	}
	if statuses, err := p.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
		snap.Status = statuses[0]
	}
	if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
		snap.Cmdline = cmdline
	}
	if exe, err := p.ExeWithContext(ctx); err == nil {
		snap.Exe = exe
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		snap.CPUPercent = cpu
	}
	if mem, err := p.MemoryPercentWithContext(ctx); err == nil {
		snap.MemoryPercent = float64(mem)
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		snap.MemoryRSS = mi.RSS
		snap.MemoryVMS = mi.VMS
	}
	if nt, err := p.NumThreadsWithContext(ctx); err == nil {
		snap.NumThreads = nt
	}
	if nfd, err := p.NumFDsWithContext(ctx); err == nil {
		snap.NumFDs = nfd
	}

	if conns, err := p.ConnectionsWithContext(ctx); err == nil {
		snap.NumConnections = len(conns)
		limit := len(conns)
		if limit > models.MaxConnectionDetails {
			limit = models.MaxConnectionDetails
		}
		for _, c := range conns[:limit] {
			snap.ConnectionDetails = append(snap.ConnectionDetails, models.ConnectionDetail{
				LocalAddr:  formatAddr(c.Laddr.IP, c.Laddr.Port),
				RemoteAddr: formatAddr(c.Raddr.IP, c.Raddr.Port),
				Status:     c.Status,
			})
		}
	}

	return snap, true
}

func formatAddr(ip string, port uint32) string {
	if ip == "" {
		return ""
	}
	if port == 0 {
		return ip
	}
	return ip + ":" + itoa(port)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

package collector

import (
	"context"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	"github.com/rs/zerolog"
)

// Indirection points for deterministic tests, following the teacher's
// hostmetrics package-variable pattern.
var (
	cpuPercent     = gocpu.PercentWithContext
	virtualMemory  = gomem.VirtualMemoryWithContext
	diskUsage      = godisk.UsageWithContext
	netIOCounters  = gonet.IOCountersWithContext
)

// MetricsAdapter samples host-wide CPU/memory/disk/network utilization on an
// interval and emits models.MetricSample records (spec §2, §3).
type MetricsAdapter struct {
	AgentID      string
	Interval     time.Duration
	DiskPath     string
	NetInterface string
	Logger       zerolog.Logger

	stop chan struct{}
}

func (a *MetricsAdapter) Name() string { return "metrics" }

func (a *MetricsAdapter) Start(ctx context.Context, sink Sink) error {
	a.stop = make(chan struct{})
	interval := a.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	diskPath := a.DiskPath
	if diskPath == "" {
		diskPath = "/"
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
			sample, err := a.collect(ctx, diskPath)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("collector: metrics sample failed")
				continue
			}
			if err := sink.Write(ctx, models.StreamMetrics, sample); err != nil {
				a.Logger.Warn().Err(err).Msg("collector: metrics sink write failed")
			}
		}
	}
}

func (a *MetricsAdapter) Stop(ctx context.Context) error {
	if a.stop != nil {
		close(a.stop)
	}
	return nil
}

func (a *MetricsAdapter) collect(ctx context.Context, diskPath string) (models.MetricSample, error) {
	sample := models.MetricSample{
		Timestamp: time.Now().UTC(),
		AgentID:   a.AgentID,
		CPU:       map[string]float64{},
		Memory:    map[string]float64{},
		Disk:      map[string]float64{},
		Network:   map[string]float64{},
	}

	cpus, err := cpuPercent(ctx, 0, false)
	if err == nil && len(cpus) > 0 {
		sample.CPU[models.KeyCPUPercent] = cpus[0]
	}

	vm, err := virtualMemory(ctx)
	if err == nil && vm != nil {
		sample.Memory[models.KeyMemoryPercent] = vm.UsedPercent
	}

	du, err := diskUsage(ctx, diskPath)
	if err == nil && du != nil {
		sample.Disk[models.KeyDiskPercent] = du.UsedPercent
	}

	nics, err := netIOCounters(ctx, false)
	if err == nil && len(nics) > 0 {
		sample.Network[models.KeyBytesSent] = float64(nics[0].BytesSent)
		sample.Network[models.KeyBytesRecv] = float64(nics[0].BytesRecv)
	}

	return sample, nil
}

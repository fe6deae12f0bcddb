package ruleengine

import (
	"sync"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

const minCPUSamplesForSpike = 3

// R2: sustained CPU spike. Fires only when every sample inside the rolling
// duration window is at or above threshold, so a single noisy reading
// doesn't trip the rule (grounded on engine.py _check_cpu_spike).
type cpuSpikeDetector struct {
	threshold float64
	duration  time.Duration
	cooldown  *cooldownTable

	mu      sync.Mutex
	history []cpuSample
}

type cpuSample struct {
	at  time.Time
	pct float64
}

func newCPUSpikeDetector(threshold float64, duration, cooldown time.Duration) *cpuSpikeDetector {
	return &cpuSpikeDetector{
		threshold: threshold,
		duration:  duration,
		cooldown:  newCooldownTable(cooldown),
	}
}

func (d *cpuSpikeDetector) evaluate(sample models.MetricSample, now time.Time, agentID string) *models.Alert {
	cpu, ok := sample.CPU[models.KeyCPUPercent]
	if !ok {
		return nil
	}

	d.mu.Lock()
	cutoff := now.Add(-d.duration)
	history := append(d.history, cpuSample{at: now, pct: cpu})
	trimmed := history[:0]
	for _, s := range history {
		if !s.at.Before(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	d.history = trimmed

	if len(trimmed) < minCPUSamplesForSpike {
		d.mu.Unlock()
		return nil
	}

	sum := 0.0
	allHigh := true
	for _, s := range trimmed {
		sum += s.pct
		if s.pct < d.threshold {
			allHigh = false
		}
	}
	avg := sum / float64(len(trimmed))
	durationSeconds := int(now.Sub(trimmed[0].at).Seconds())
	sampleCount := len(trimmed)
	d.mu.Unlock()

	if !allHigh {
		return nil
	}
	if !d.cooldown.allow("cpu_spike:system", now) {
		return nil
	}

	return newAlert(agentID, "Agent: Sustained High CPU Usage", models.SeverityMedium, now, map[string]interface{}{
		"average_cpu":      avg,
		"threshold":        d.threshold,
		"duration_seconds": durationSeconds,
		"sample_count":     sampleCount,
	})
}

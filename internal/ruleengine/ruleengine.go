// Package ruleengine implements the agent's local streaming detectors (spec
// §2, C3): SSH brute force (R1), sustained CPU spikes (R2), and suspicious
// shell commands (R3). R1 and R2 keep their own time-bounded window of recent
// observations (R3 evaluates each command on its own), and every detector
// has a per-key cooldown so a sustained condition produces one alert, not
// one per sample.
package ruleengine

import (
	"sync"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// cooldownTable tracks the last time each (rule, key) pair fired, so a
// detector can suppress repeat alerts for the same condition (spec §2:
// cooldown window per rule).
type cooldownTable struct {
	mu     sync.Mutex
	period time.Duration
	last   map[string]time.Time
}

func newCooldownTable(period time.Duration) *cooldownTable {
	return &cooldownTable{period: period, last: map[string]time.Time{}}
}

// allow reports whether key may fire now, and records the firing if so.
func (c *cooldownTable) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.period {
		return false
	}
	c.last[key] = now
	return true
}

// Engine runs every registered detector against incoming logs, metrics, and
// commands and emits models.Alert records for whatever fires.
type Engine struct {
	AgentID string
	ssh     *sshBruteForceDetector
	cpu     *cpuSpikeDetector
	cmd     *commandRuleDetector
}

// New constructs an Engine with the spec's default thresholds (R1: 3
// failures/5min, R2: 90% sustained over 2min with >=3 samples).
func New(agentID string) *Engine {
	return &Engine{
		AgentID: agentID,
		ssh:     newSSHBruteForceDetector(3, 5*time.Minute, 5*time.Minute),
		cpu:     newCPUSpikeDetector(90.0, 2*time.Minute, 5*time.Minute),
		cmd:     newCommandRuleDetector(5 * time.Minute),
	}
}

// EvaluateLog runs log-based detectors (R1) against one record.
func (e *Engine) EvaluateLog(rec models.LogRecord, now time.Time) *models.Alert {
	return e.ssh.evaluate(rec, now, e.AgentID)
}

// EvaluateMetric runs metric-based detectors (R2) against one sample.
func (e *Engine) EvaluateMetric(sample models.MetricSample, now time.Time) *models.Alert {
	return e.cpu.evaluate(sample, now, e.AgentID)
}

// EvaluateCommand runs command-based detectors (R3) against one event.
func (e *Engine) EvaluateCommand(ev models.CommandEvent, now time.Time) *models.Alert {
	return e.cmd.evaluate(ev, now, e.AgentID)
}

func newAlert(agentID string, rule string, severity models.Severity, now time.Time, details map[string]interface{}) *models.Alert {
	return &models.Alert{
		RuleName:         rule,
		Severity:         severity,
		Details:          details,
		AgentID:          agentID,
		CreatedAt:        now,
		AssignmentStatus: models.StatusUnassigned,
	}
}

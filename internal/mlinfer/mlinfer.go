// Package mlinfer is the ML inference collaborator from spec §4.11: it loads
// a pre-trained scoring artifact, aggregates a 1-hour feature window per
// device, and scores each through the artifact to surface anomalies via the
// same idempotent alert writer the correlator uses.
package mlinfer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

const (
	// DetectionInterval is how often the detection cycle runs.
	DetectionInterval = 10 * time.Minute
	// ActiveWindow bounds which devices are considered ("seen in the last
	// 2 hours and marked online").
	ActiveWindow = 2 * time.Hour
	// FeatureWindow is the aggregation window each device is scored over.
	FeatureWindow = 1 * time.Hour
	// MinActivity is the idle-host skip threshold (spec §4.11 step 2).
	MinActivity = 5

	// RuleNamePrefix mirrors the correlator's rule_name shape so ML alerts
	// share the same emit_alert dedup path and triage queue.
	RuleNamePrefix = "ML Anomaly Detection"
)

// FeatureNames is the fixed 15-feature vector spec §4.11 requires (order
// does not matter since features are a named map, but this is the
// canonical enumeration used by zero-filling and artifact validation).
var FeatureNames = []string{
	"hour", "day_of_week", "is_weekend",
	"cpu_percent", "memory_percent", "disk_percent", "network_mb_sent", "network_mb_recv",
	"process_count", "max_process_cpu", "max_process_memory",
	"command_count", "sudo_count", "log_count", "error_count",
}

// Store is the subset of internal/store the collaborator depends on.
type Store interface {
	ListOnlineDevicesSeenSince(ctx context.Context, since time.Time) ([]models.Device, error)
	AggregateFeatures(ctx context.Context, agentID string, start, end time.Time) (map[string]float64, error)
	EmitAlert(ctx context.Context, ruleName string, severity models.Severity, details map[string]interface{}, agentID string, now time.Time) (string, bool, error)
}

// Scorer is the collaborator's public contract (spec §4.11): the artifact
// format is opaque to the rest of the system behind this interface.
type Scorer interface {
	Predict(features map[string]float64) (isAnomaly bool, rawScore float64, severity models.Severity)
}

// Collaborator runs scheduled detection cycles against a Store using a
// Scorer loaded once at startup.
type Collaborator struct {
	Store  Store
	Scorer Scorer
	Logger zerolog.Logger
	Now    func() time.Time

	// lastRun tracks the most recent detection time per device so a device
	// already checked within its own last hour is skipped, mirroring the
	// original detector's per-device throttle.
	lastRun map[string]time.Time
	stop    chan struct{}
}

// New builds a Collaborator with the real clock.
func New(store Store, scorer Scorer, logger zerolog.Logger) *Collaborator {
	return &Collaborator{Store: store, Scorer: scorer, Logger: logger, Now: time.Now, lastRun: map[string]time.Time{}}
}

func (c *Collaborator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run blocks, running a detection cycle on every DetectionInterval tick
// until ctx is cancelled.
func (c *Collaborator) Run(ctx context.Context) error {
	c.stop = make(chan struct{})
	ticker := time.NewTicker(DetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
			if err := c.TickOnce(ctx); err != nil {
				c.Logger.Warn().Err(err).Msg("mlinfer: detection cycle failed")
			}
		}
	}
}

// Stop requests the Run loop to exit on its next iteration.
func (c *Collaborator) Stop() {
	if c.stop != nil {
		close(c.stop)
	}
}

// TickOnce runs one detection cycle across every active device.
func (c *Collaborator) TickOnce(ctx context.Context) error {
	if c.Scorer == nil {
		return nil
	}
	now := c.now()
	devices, err := c.Store.ListOnlineDevicesSeenSince(ctx, now.Add(-ActiveWindow))
	if err != nil {
		return fmt.Errorf("list active devices: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	alertCount := 0
	for _, device := range devices {
		detected, err := c.detectForDevice(ctx, device, now)
		if err != nil {
			c.Logger.Warn().Err(err).Str("agent_id", device.AgentID).Msg("mlinfer: device scoring failed")
			continue
		}
		if detected {
			alertCount++
		}
	}
	c.Logger.Info().Int("devices", len(devices)).Int("alerts", alertCount).Msg("mlinfer: detection cycle complete")
	return nil
}

func (c *Collaborator) detectForDevice(ctx context.Context, device models.Device, now time.Time) (bool, error) {
	start := now.Add(-FeatureWindow)
	if last, ok := c.lastRun[device.AgentID]; ok && !last.Before(start) {
		return false, nil
	}

	features, err := c.Store.AggregateFeatures(ctx, device.AgentID, start, now)
	if err != nil {
		return false, fmt.Errorf("aggregate features: %w", err)
	}
	features = withDefaults(features, now)

	activity := features["log_count"] + features["command_count"] + features["process_count"]
	if activity < MinActivity {
		c.lastRun[device.AgentID] = now
		return false, nil
	}

	isAnomaly, score, severity := c.Scorer.Predict(features)
	c.lastRun[device.AgentID] = now
	if !isAnomaly {
		return false, nil
	}

	ruleName := fmt.Sprintf("%s - %s", RuleNamePrefix, string(severity))
	details := map[string]interface{}{
		"type":           "ml_anomaly",
		"anomaly_score":   round3(score),
		"detection_time": now.Format(time.RFC3339),
		"features":       features,
	}
	_, created, err := c.Store.EmitAlert(ctx, ruleName, severity, details, device.AgentID, now)
	if err != nil {
		return false, fmt.Errorf("emit alert: %w", err)
	}
	return created, nil
}

// withDefaults fills temporal features from now and zero-fills any named
// feature the aggregation query did not return (spec §4.11: "missing
// sub-queries default to zero").
func withDefaults(features map[string]float64, now time.Time) map[string]float64 {
	out := make(map[string]float64, len(FeatureNames))
	for _, name := range FeatureNames {
		out[name] = features[name]
	}
	out["hour"] = float64(now.Hour())
	out["day_of_week"] = float64(int(now.Weekday()))
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		out["is_weekend"] = 1
	} else {
		out["is_weekend"] = 0
	}
	return out
}

func round3(f float64) float64 {
	return float64(int(f*1000)) / 1000
}

// --- Artifact loading ---

// Artifact is the on-disk scoring model: a per-feature mean/std for scaling
// and a linear weight vector plus bias over the scaled features. This is
// the concrete shape behind the opaque Scorer contract; it is deliberately
// simple (interpretable, no runtime beyond arithmetic) since the system
// treats the artifact's internals as a black box.
type Artifact struct {
	Features []string           `json:"features"`
	Mean     map[string]float64 `json:"mean"`
	Std      map[string]float64 `json:"std"`
	Weights  map[string]float64 `json:"weights"`
	Bias     float64            `json:"bias"`
	TrainedAt string            `json:"trained_at"`
}

// LoadArtifact reads a JSON-encoded Artifact from path.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if len(a.Weights) == 0 {
		return nil, fmt.Errorf("artifact has no weights")
	}
	return &a, nil
}

// Predict scales features and scores them through the artifact's linear
// weights, mapping the resulting score to a severity per spec §4.11's
// thresholds (score < -0.6 high, < -0.5 medium, < -0.4 low, else normal).
func (a *Artifact) Predict(features map[string]float64) (bool, float64, models.Severity) {
	score := a.Bias
	for _, name := range a.Features {
		mean := a.Mean[name]
		std := a.Std[name]
		if std == 0 {
			std = 1
		}
		scaled := (features[name] - mean) / std
		score += a.Weights[name] * scaled
	}

	switch {
	case score < -0.6:
		return true, score, models.SeverityHigh
	case score < -0.5:
		return true, score, models.SeverityMedium
	case score < -0.4:
		return true, score, models.SeverityLow
	default:
		return false, score, ""
	}
}

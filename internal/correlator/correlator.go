// Package correlator runs the server-side periodic SQL rules from spec §4.6:
// every ANALYSIS_INTERVAL it probes the central store for suspicious
// patterns across devices and emits alerts through the same idempotent
// writer the ML collaborator uses.
package correlator

import (
	"context"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

const (
	// AnalysisInterval is how often the correlator tick runs.
	AnalysisInterval = 60 * time.Second
	// LookbackMinutes is how far back each tick's probes look by default.
	LookbackMinutes = 5
)

// AlertWriter is the idempotent alert sink (internal/store.EmitAlert).
type AlertWriter interface {
	EmitAlert(ctx context.Context, ruleName string, severity models.Severity, details map[string]interface{}, agentID string, now time.Time) (string, bool, error)
}

// Probe runs one rule's SQL against the store and returns suspect rows,
// each already shaped as an alert payload. A Probe owns its own query and
// parameter binding; the loop only owns scheduling and emission.
type Probe func(ctx context.Context, since time.Time) ([]Suspect, error)

// Suspect is one candidate alert surfaced by a rule probe.
type Suspect struct {
	AgentID  string
	Severity models.Severity
	Details  map[string]interface{}
}

// Rule is the framework contract from spec §4.6: name, enabled flag,
// severity default and the probe function that finds suspects. A suspect
// with a non-empty Severity is emitted at that severity; one with an empty
// Severity is emitted at the Rule's.
type Rule struct {
	Name     string
	Enabled  bool
	Severity models.Severity
	Probe    Probe
}

// Correlator runs the enabled rule set on a timer against a store.
type Correlator struct {
	Rules  []Rule
	Writer AlertWriter
	Logger zerolog.Logger
	Now    func() time.Time

	stop chan struct{}
}

// New builds a Correlator with the shipped rule set bound to db.
func New(db DB, writer AlertWriter, logger zerolog.Logger) *Correlator {
	return &Correlator{
		Rules:  DefaultRules(db),
		Writer: writer,
		Logger: logger,
		Now:    time.Now,
	}
}

func (c *Correlator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run blocks, running every enabled rule on each AnalysisInterval tick until
// ctx is cancelled. A single rule's error is logged and does not abort the
// tick or the loop (spec §5 propagation policy).
func (c *Correlator) Run(ctx context.Context) error {
	c.stop = make(chan struct{})
	ticker := time.NewTicker(AnalysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// Stop requests the Run loop to exit on its next iteration.
func (c *Correlator) Stop() {
	if c.stop != nil {
		close(c.stop)
	}
}

func (c *Correlator) tick(ctx context.Context) {
	since := c.now().Add(-LookbackMinutes * time.Minute)
	for _, rule := range c.Rules {
		if !rule.Enabled {
			continue
		}
		suspects, err := rule.Probe(ctx, since)
		if err != nil {
			c.Logger.Warn().Err(err).Str("rule", rule.Name).Msg("correlator: probe failed")
			continue
		}
		for _, s := range suspects {
			severity := s.Severity
			if severity == "" {
				severity = rule.Severity
			}
			_, created, err := c.Writer.EmitAlert(ctx, rule.Name, severity, s.Details, s.AgentID, c.now())
			if err != nil {
				c.Logger.Warn().Err(err).Str("rule", rule.Name).Msg("correlator: emit_alert failed")
				continue
			}
			if created {
				c.Logger.Info().Str("rule", rule.Name).Str("agent_id", s.AgentID).Str("severity", string(severity)).Msg("correlator: alert emitted")
			}
		}
	}
}

// TickOnce runs a single pass synchronously; used by tests.
func (c *Correlator) TickOnce(ctx context.Context) {
	c.tick(ctx)
}

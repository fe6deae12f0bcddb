// Package incidents implements the background alert-to-incident aggregator
// from spec §4.7: every 120s it loads recently unlinked alerts, partitions
// them with a greedy seed-based relatedness pass, and creates an incident
// for each group that clears the minimum member count.
package incidents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	// AggregationInterval is how often the loop runs.
	AggregationInterval = 120 * time.Second
	// LookbackWindow bounds how far back unlinked alerts are considered.
	LookbackWindow = 60 * time.Minute
	// RelatednessWindow is the pairwise time-proximity bound (spec §4.7).
	RelatednessWindow = 30 * time.Minute
	// MinAlertsForIncident is the minimum group size that becomes an incident.
	MinAlertsForIncident = 2
)

// Rule families used by the relatedness predicate and attack_vector
// derivation (spec §4.7/§4.6).
var ruleFamilies = map[string]string{
	"SSH Failed Login Attempts":        "brute_force",
	"Distributed Brute Force Attack":   "brute_force",
	"Agent: SSH Brute Force Detected":  "brute_force",
	"Privilege Escalation Attempt":     "privilege_escalation",
	"Coordinated Resource Spike":       "resource",
	"Agent: Sustained High CPU Usage":  "resource",
}

// Store is the subset of internal/store the aggregator depends on.
type Store interface {
	ListUnlinkedAlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error)
	CreateIncident(ctx context.Context, inc models.Incident) error
	LinkAlertToIncident(ctx context.Context, alertID, incidentID string) error
}

// Aggregator runs the grouping pass on a timer.
type Aggregator struct {
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time

	stop chan struct{}
}

// New builds an Aggregator with the real clock.
func New(store Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{Store: store, Logger: logger, Now: time.Now}
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Run blocks, aggregating on every AggregationInterval tick until ctx is
// cancelled. Per spec §5, a single-iteration error is logged, not fatal.
func (a *Aggregator) Run(ctx context.Context) error {
	a.stop = make(chan struct{})
	ticker := time.NewTicker(AggregationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stop:
			return nil
		case <-ticker.C:
			if err := a.TickOnce(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("incident aggregator: tick failed")
			}
		}
	}
}

// Stop requests the Run loop to exit on its next iteration.
func (a *Aggregator) Stop() {
	if a.stop != nil {
		close(a.stop)
	}
}

// TickOnce runs a single aggregation pass synchronously.
func (a *Aggregator) TickOnce(ctx context.Context) error {
	since := a.now().Add(-LookbackWindow)
	alerts, err := a.Store.ListUnlinkedAlertsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("list unlinked alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	for _, group := range groupAlerts(alerts) {
		if len(group) < MinAlertsForIncident {
			continue
		}
		if err := a.createIncident(ctx, group); err != nil {
			a.Logger.Warn().Err(err).Msg("incident aggregator: create incident failed")
		}
	}
	return nil
}

// groupAlerts partitions alerts via the seed-based greedy pass from spec
// §4.7: each unassigned alert seeds a group and absorbs every later
// unassigned alert found related to the seed. This deliberately does not
// compute a transitive closure — an alert C related to B but not the seed A
// is left out of A's group even if B joined it (spec §9 calls this out
// explicitly as inherited, not a bug to fix).
func groupAlerts(alerts []models.Alert) [][]models.Alert {
	assigned := make([]bool, len(alerts))
	var groups [][]models.Alert

	for i := range alerts {
		if assigned[i] {
			continue
		}
		group := []models.Alert{alerts[i]}
		assigned[i] = true

		for j := i + 1; j < len(alerts); j++ {
			if assigned[j] {
				continue
			}
			if related(alerts[i], alerts[j]) {
				group = append(group, alerts[j])
				assigned[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// related implements the symmetric pairwise relatedness relation from spec
// §4.7.
func related(a, b models.Alert) bool {
	diff := a.CreatedAt.Sub(b.CreatedAt)
	if diff < 0 {
		diff = -diff
	}
	if diff > RelatednessWindow {
		return false
	}

	ipA, _ := a.Details["source_ip"].(string)
	ipB, _ := b.Details["source_ip"].(string)
	if ipA != "" && ipB != "" && ipA == ipB {
		return true
	}

	if a.AgentID != "" && a.AgentID == b.AgentID && sameRuleFamily(a.RuleName, b.RuleName) {
		return true
	}

	hostA, _ := a.Details["hostname"].(string)
	hostB, _ := b.Details["hostname"].(string)
	if hostA != "" && hostB != "" && hostA == hostB {
		return true
	}

	return false
}

func sameRuleFamily(rule1, rule2 string) bool {
	f1, ok1 := ruleFamilies[rule1]
	f2, ok2 := ruleFamilies[rule2]
	return ok1 && ok2 && f1 == f2
}

func (a *Aggregator) createIncident(ctx context.Context, group []models.Alert) error {
	now := a.now()
	inc := models.Incident{
		ID:              ulid.Make().String(),
		Name:            incidentName(group),
		Description:     incidentDescription(group),
		Severity:        incidentSeverity(group),
		Status:          models.IncidentOpen,
		AlertCount:      len(group),
		AffectedDevices: affectedDevices(group),
		AttackVector:    attackVector(group),
		Metadata:        incidentMetadata(group),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.Store.CreateIncident(ctx, inc); err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	for _, alert := range group {
		if err := a.Store.LinkAlertToIncident(ctx, alert.ID, inc.ID); err != nil {
			return fmt.Errorf("link alert %s to incident: %w", alert.ID, err)
		}
	}
	a.Logger.Info().Str("incident_id", inc.ID).Str("name", inc.Name).Int("alert_count", len(group)).Msg("incident aggregator: incident created")
	return nil
}

// incidentSeverity is the max member severity, promoted to critical when
// three or more members are high or above (spec §4.7).
func incidentSeverity(group []models.Alert) models.Severity {
	max := models.SeverityLow
	highCount := 0
	for _, a := range group {
		max = max.Max(a.Severity)
		if a.Severity.Rank() >= models.SeverityHigh.Rank() {
			highCount++
		}
	}
	if max == models.SeverityHigh && highCount >= 3 {
		return models.SeverityCritical
	}
	return max
}

// incidentName picks the first matching template from spec §4.7's priority
// list: same source IP > single host > multi-device > generic count.
func incidentName(group []models.Alert) string {
	if ip := commonDetail(group, "source_ip"); ip != "" {
		return fmt.Sprintf("Attack from %s", ip)
	}

	hosts := uniqueDetails(group, "hostname")
	if len(hosts) == 1 {
		return fmt.Sprintf("Security incident on %s", hosts[0])
	}
	if len(hosts) > 1 {
		return "Multi-device security incident"
	}
	return fmt.Sprintf("Security incident – %d alerts", len(group))
}

func incidentDescription(group []models.Alert) string {
	rules := uniqueRuleNames(group)
	return fmt.Sprintf("Correlated incident with %d alerts: %s", len(group), strings.Join(rules, ", "))
}

// attackVector derives the primary vector from a rule-name keyword match
// (spec §4.7).
func attackVector(group []models.Alert) string {
	for _, a := range group {
		lower := strings.ToLower(a.RuleName)
		switch {
		case strings.Contains(lower, "brute force"), strings.Contains(lower, "failed login"):
			return "brute_force"
		case strings.Contains(lower, "privilege escalation"):
			return "privilege_escalation"
		case strings.Contains(lower, "port scan"):
			return "reconnaissance"
		case strings.Contains(lower, "resource"):
			return "resource_abuse"
		}
	}
	return "unknown"
}

func affectedDevices(group []models.Alert) []string {
	seen := map[string]bool{}
	var devices []string
	for _, a := range group {
		host, _ := a.Details["hostname"].(string)
		if host == "" {
			host = "Unknown"
		}
		if !seen[host] {
			seen[host] = true
			devices = append(devices, host)
		}
	}
	return devices
}

func incidentMetadata(group []models.Alert) map[string]interface{} {
	first, last := group[0].CreatedAt, group[0].CreatedAt
	for _, a := range group {
		if a.CreatedAt.Before(first) {
			first = a.CreatedAt
		}
		if a.CreatedAt.After(last) {
			last = a.CreatedAt
		}
	}
	return map[string]interface{}{
		"alert_types": uniqueRuleNames(group),
		"time_range": map[string]string{
			"start": first.Format(time.RFC3339),
			"end":   last.Format(time.RFC3339),
		},
		"source_ips": uniqueDetails(group, "source_ip"),
	}
}

func commonDetail(group []models.Alert, key string) string {
	for _, a := range group {
		if v, _ := a.Details[key].(string); v != "" {
			return v
		}
	}
	return ""
}

func uniqueDetails(group []models.Alert, key string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range group {
		v, _ := a.Details[key].(string)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func uniqueRuleNames(group []models.Alert) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range group {
		if !seen[a.RuleName] {
			seen[a.RuleName] = true
			out = append(out, a.RuleName)
		}
	}
	return out
}

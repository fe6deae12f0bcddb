package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	alerts    []models.Alert
	incidents []models.Incident
	links     map[string]string // alertID -> incidentID
}

func newFakeStore(alerts []models.Alert) *fakeStore {
	return &fakeStore{alerts: alerts, links: map[string]string{}}
}

func (f *fakeStore) ListUnlinkedAlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeStore) CreateIncident(ctx context.Context, inc models.Incident) error {
	f.incidents = append(f.incidents, inc)
	return nil
}

func (f *fakeStore) LinkAlertToIncident(ctx context.Context, alertID, incidentID string) error {
	f.links[alertID] = incidentID
	return nil
}

func alertAt(id string, t time.Time, severity models.Severity, ruleName, agentID string, details map[string]interface{}) models.Alert {
	return models.Alert{ID: id, CreatedAt: t, Severity: severity, RuleName: ruleName, AgentID: agentID, Details: details}
}

func TestGroupAlertsBySameSourceIP(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a1 := alertAt("a1", base, models.SeverityHigh, "SSH Failed Login Attempts", "agent-1", map[string]interface{}{"source_ip": "1.2.3.4"})
	a2 := alertAt("a2", base.Add(10*time.Minute), models.SeverityHigh, "SSH Failed Login Attempts", "agent-2", map[string]interface{}{"source_ip": "1.2.3.4"})

	groups := groupAlerts([]models.Alert{a1, a2})
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("groupAlerts() = %v groups, want one group of 2", groups)
	}
}

func TestGroupAlertsOutsideWindowAreSeparate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a1 := alertAt("a1", base, models.SeverityHigh, "SSH Failed Login Attempts", "", map[string]interface{}{"source_ip": "1.2.3.4"})
	a2 := alertAt("a2", base.Add(45*time.Minute), models.SeverityHigh, "SSH Failed Login Attempts", "", map[string]interface{}{"source_ip": "1.2.3.4"})

	groups := groupAlerts([]models.Alert{a1, a2})
	if len(groups) != 2 {
		t.Fatalf("groupAlerts() = %d groups, want 2 (outside relatedness window)", len(groups))
	}
}

func TestGroupAlertsSameAgentAndRuleFamily(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a1 := alertAt("a1", base, models.SeverityHigh, "SSH Failed Login Attempts", "agent-1", nil)
	a2 := alertAt("a2", base.Add(5*time.Minute), models.SeverityCritical, "Distributed Brute Force Attack", "agent-1", nil)

	groups := groupAlerts([]models.Alert{a1, a2})
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("groupAlerts() = %v, want one group (same agent, brute_force family)", groups)
	}
}

func TestGroupAlertsSeedOnlyNoTransitiveClosure(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// a related to b via source_ip, b related to c via hostname, but a and c
	// share neither — the seed-only pass must NOT merge c into a's group.
	a := alertAt("a", base, models.SeverityHigh, "SSH Failed Login Attempts", "", map[string]interface{}{"source_ip": "1.2.3.4"})
	b := alertAt("b", base, models.SeverityHigh, "SSH Failed Login Attempts", "", map[string]interface{}{"source_ip": "1.2.3.4", "hostname": "h1"})
	c := alertAt("c", base, models.SeverityHigh, "Port Scan Detected", "", map[string]interface{}{"hostname": "h1"})

	groups := groupAlerts([]models.Alert{a, b, c})
	if len(groups) != 2 {
		t.Fatalf("expected a seed group {a,b} and a lone group {c}, got %d groups: %v", len(groups), groups)
	}
	if len(groups[0]) != 2 {
		t.Fatalf("seed group should contain exactly a and b (2 alerts), got %d: c must not join transitively", len(groups[0]))
	}
}

func TestIncidentSeverityPromotesToCriticalWithThreeHighs(t *testing.T) {
	group := []models.Alert{
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityHigh},
	}
	if got := incidentSeverity(group); got != models.SeverityCritical {
		t.Errorf("incidentSeverity() = %v, want critical", got)
	}
}

func TestIncidentSeverityStaysHighWithTwoHighs(t *testing.T) {
	group := []models.Alert{
		{Severity: models.SeverityHigh},
		{Severity: models.SeverityHigh},
	}
	if got := incidentSeverity(group); got != models.SeverityHigh {
		t.Errorf("incidentSeverity() = %v, want high", got)
	}
}

func TestIncidentNameTemplatePriority(t *testing.T) {
	withIP := []models.Alert{{Details: map[string]interface{}{"source_ip": "9.9.9.9"}}}
	if got := incidentName(withIP); got != "Attack from 9.9.9.9" {
		t.Errorf("incidentName(source_ip) = %q", got)
	}

	singleHost := []models.Alert{{Details: map[string]interface{}{"hostname": "web-1"}}}
	if got := incidentName(singleHost); got != "Security incident on web-1" {
		t.Errorf("incidentName(single host) = %q", got)
	}

	multiHost := []models.Alert{
		{Details: map[string]interface{}{"hostname": "web-1"}},
		{Details: map[string]interface{}{"hostname": "web-2"}},
	}
	if got := incidentName(multiHost); got != "Multi-device security incident" {
		t.Errorf("incidentName(multi host) = %q", got)
	}

	fallback := []models.Alert{{}, {}}
	if got := incidentName(fallback); got != "Security incident – 2 alerts" {
		t.Errorf("incidentName(fallback) = %q", got)
	}
}

func TestTickOnceSkipsGroupsBelowMinimum(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lone := alertAt("a1", base, models.SeverityLow, "Coordinated Resource Spike", "agent-9", nil)
	store := newFakeStore([]models.Alert{lone})
	agg := &Aggregator{Store: store, Logger: zerolog.Nop(), Now: func() time.Time { return base }}

	if err := agg.TickOnce(context.Background()); err != nil {
		t.Fatalf("TickOnce() error = %v", err)
	}
	if len(store.incidents) != 0 {
		t.Fatalf("expected no incident for a lone alert, got %d", len(store.incidents))
	}
}

func TestTickOnceCreatesIncidentAndLinksAlerts(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a1 := alertAt("a1", base, models.SeverityHigh, "SSH Failed Login Attempts", "agent-1", map[string]interface{}{"source_ip": "1.2.3.4"})
	a2 := alertAt("a2", base.Add(time.Minute), models.SeverityHigh, "SSH Failed Login Attempts", "agent-2", map[string]interface{}{"source_ip": "1.2.3.4"})
	store := newFakeStore([]models.Alert{a1, a2})
	agg := &Aggregator{Store: store, Logger: zerolog.Nop(), Now: func() time.Time { return base }}

	if err := agg.TickOnce(context.Background()); err != nil {
		t.Fatalf("TickOnce() error = %v", err)
	}
	if len(store.incidents) != 1 {
		t.Fatalf("expected one incident, got %d", len(store.incidents))
	}
	if store.links["a1"] != store.incidents[0].ID || store.links["a2"] != store.incidents[0].ID {
		t.Error("both alerts should be linked to the created incident")
	}
	if store.incidents[0].AttackVector != "brute_force" {
		t.Errorf("AttackVector = %q, want brute_force", store.incidents[0].AttackVector)
	}
}

func TestTickOnceNoopOnNoAlerts(t *testing.T) {
	store := newFakeStore(nil)
	agg := &Aggregator{Store: store, Logger: zerolog.Nop(), Now: time.Now}
	if err := agg.TickOnce(context.Background()); err != nil {
		t.Fatalf("TickOnce() error = %v", err)
	}
	if len(store.incidents) != 0 {
		t.Error("no alerts should mean no incidents")
	}
}

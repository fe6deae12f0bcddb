package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

// AlertDedupWindow is the spec §4.5/§4.8 30-minute ML/correlator dedup guard.
const AlertDedupWindow = 30 * time.Minute

// EmitAlert inserts a new alert unless an existing alert with the same
// rule_name/severity/agent_id was created within AlertDedupWindow (spec
// §4.6 "emit_alert idempotency"). Returns the inserted (or, on a skip, the
// existing) alert ID and whether an insert actually happened.
func (s *Store) EmitAlert(ctx context.Context, ruleName string, severity models.Severity, details map[string]interface{}, agentID string, now time.Time) (string, bool, error) {
	var existing string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM alerts
		 WHERE rule_name = $1 AND severity = $2 AND agent_id IS NOT DISTINCT FROM $3 AND created_at >= $4
		 ORDER BY created_at DESC LIMIT 1`,
		ruleName, severity, nullableAgentID(agentID), now.Add(-AlertDedupWindow),
	).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if err != pgx.ErrNoRows {
		return "", false, fmt.Errorf("check alert dedup: %w", err)
	}

	id := ulid.Make().String()
	payload, err := json.Marshal(details)
	if err != nil {
		return "", false, fmt.Errorf("marshal alert details: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO alerts (id, rule_name, severity, details, agent_id, created_at, assignment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, ruleName, severity, payload, nullableAgentID(agentID), now, models.StatusUnassigned,
	)
	if err != nil {
		return "", false, fmt.Errorf("insert alert: %w", err)
	}
	return id, true, nil
}

func nullableAgentID(agentID string) *string {
	if agentID == "" {
		return nil
	}
	return &agentID
}

const alertColumns = `id, rule_name, severity, details, agent_id, created_at, assignment_status, incident_id`

func scanAlert(row pgx.Row) (models.Alert, error) {
	var a models.Alert
	var details []byte
	var agentID *string
	if err := row.Scan(&a.ID, &a.RuleName, &a.Severity, &details, &agentID, &a.CreatedAt, &a.AssignmentStatus, &a.IncidentID); err != nil {
		return models.Alert{}, err
	}
	if agentID != nil {
		a.AgentID = *agentID
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return models.Alert{}, fmt.Errorf("unmarshal alert details: %w", err)
		}
	}
	return a, nil
}

// severityTiebreak orders severities critical-first for the spec §4.10
// alert-listing secondary sort key.
const severityTiebreak = `CASE severity
	WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`

// ListAlerts returns alerts scoped to agentIDs (nil = unrestricted), newest
// first with the severity tiebreak.
func (s *Store) ListAlerts(ctx context.Context, agentIDs []string, limit int) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var args []any
	if agentIDs != nil {
		query += ` WHERE agent_id = ANY($1)`
		args = append(args, agentIDs)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, %s LIMIT %d`, severityTiebreak, ClampLimit(limit))

	return s.queryAlerts(ctx, query, args...)
}

// ListUnassignedAlerts backs GET /api/alerts/unassigned.
func (s *Store) ListUnassignedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	query := fmt.Sprintf(`SELECT `+alertColumns+` FROM alerts WHERE assignment_status = $1 ORDER BY created_at DESC, %s LIMIT %d`,
		severityTiebreak, ClampLimit(limit))
	return s.queryAlerts(ctx, query, models.StatusUnassigned)
}

// ListAlertsByStatus backs GET /api/alerts/by-status/{s}.
func (s *Store) ListAlertsByStatus(ctx context.Context, status models.AssignmentStatus, limit int) ([]models.Alert, error) {
	query := fmt.Sprintf(`SELECT `+alertColumns+` FROM alerts WHERE assignment_status = $1 ORDER BY created_at DESC, %s LIMIT %d`,
		severityTiebreak, ClampLimit(limit))
	return s.queryAlerts(ctx, query, status)
}

// ListMyAssignments backs GET /api/alerts/my-assignments: alerts with a live
// AlertAssignment whose assigned_to or escalated_to is userID.
func (s *Store) ListMyAssignments(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	query := fmt.Sprintf(`SELECT DISTINCT a.id, a.rule_name, a.severity, a.details, a.agent_id, a.created_at, a.assignment_status, a.incident_id
		FROM alerts a JOIN alert_assignments aa ON aa.alert_id = a.id
		WHERE aa.assigned_to = $1 OR aa.escalated_to = $1
		ORDER BY a.created_at DESC, %s LIMIT %d`, severityTiebreak, ClampLimit(limit))
	return s.queryAlerts(ctx, query, userID)
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) ([]models.Alert, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetAlertByID fetches a single alert.
func (s *Store) GetAlertByID(ctx context.Context, id string) (models.Alert, bool, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return models.Alert{}, false, nil
	}
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("get alert by id: %w", err)
	}
	return a, true, nil
}

// SetAlertAssignmentStatus updates an alert's top-level status; called by
// every internal/triage transition alongside the AlertAssignment mutation.
func (s *Store) SetAlertAssignmentStatus(ctx context.Context, alertID string, status models.AssignmentStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE alerts SET assignment_status = $1 WHERE id = $2`, status, alertID)
	if err != nil {
		return fmt.Errorf("set alert assignment status: %w", err)
	}
	return nil
}

// LinkAlertToIncident sets an alert's incident_id (spec §9: the alert's FK
// is authoritative; incident aggregates are derived or denormalised).
func (s *Store) LinkAlertToIncident(ctx context.Context, alertID, incidentID string) error {
	_, err := s.db.Exec(ctx, `UPDATE alerts SET incident_id = $1 WHERE id = $2`, incidentID, alertID)
	if err != nil {
		return fmt.Errorf("link alert to incident: %w", err)
	}
	return nil
}

// --- Alert assignments (C8 triage persistence) ---

// GetActiveAssignment returns the alert's current non-resolved assignment,
// if any (spec invariant: at most one active assignment per alert).
func (s *Store) GetActiveAssignment(ctx context.Context, alertID string) (models.AlertAssignment, bool, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, alert_id, assigned_to, assigned_at, status, notes, resolution, resolved_at, escalated_at, escalated_to
		 FROM alert_assignments WHERE alert_id = $1 AND status != $2 ORDER BY assigned_at DESC LIMIT 1`,
		alertID, models.StatusResolved)
	a, err := scanAssignment(row)
	if err == pgx.ErrNoRows {
		return models.AlertAssignment{}, false, nil
	}
	if err != nil {
		return models.AlertAssignment{}, false, fmt.Errorf("get active assignment: %w", err)
	}
	return a, true, nil
}

func scanAssignment(row pgx.Row) (models.AlertAssignment, error) {
	var a models.AlertAssignment
	if err := row.Scan(&a.ID, &a.AlertID, &a.AssignedTo, &a.AssignedAt, &a.Status, &a.Notes,
		&a.Resolution, &a.ResolvedAt, &a.EscalatedAt, &a.EscalatedTo); err != nil {
		return models.AlertAssignment{}, err
	}
	return a, nil
}

// CreateAssignment inserts a new AlertAssignment (claim / bulk_assign).
func (s *Store) CreateAssignment(ctx context.Context, a models.AlertAssignment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO alert_assignments (id, alert_id, assigned_to, assigned_at, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.AlertID, a.AssignedTo, a.AssignedAt, a.Status, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// UpdateAssignment persists the full mutable state of an assignment
// (status/notes/resolution/escalation fields).
func (s *Store) UpdateAssignment(ctx context.Context, a models.AlertAssignment) error {
	_, err := s.db.Exec(ctx,
		`UPDATE alert_assignments SET status = $1, notes = $2, resolution = $3, resolved_at = $4, escalated_at = $5, escalated_to = $6
		 WHERE id = $7`,
		a.Status, a.Notes, a.Resolution, a.ResolvedAt, a.EscalatedAt, a.EscalatedTo, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

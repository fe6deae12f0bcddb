package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// ListUnlinkedAlertsSince returns alerts with incident_id IS NULL created at
// or after since, oldest first — the candidate set the incident aggregator
// (internal/incidents) partitions into groups (spec §4.7).
func (s *Store) ListUnlinkedAlertsSince(ctx context.Context, since time.Time) ([]models.Alert, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE incident_id IS NULL AND created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list unlinked alerts: %w", err)
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

// CreateIncident inserts a new incident derived from a group of related
// alerts; the caller links each member alert's incident_id afterwards.
func (s *Store) CreateIncident(ctx context.Context, inc models.Incident) error {
	devices, err := json.Marshal(inc.AffectedDevices)
	if err != nil {
		return fmt.Errorf("marshal affected devices: %w", err)
	}
	metadata, err := json.Marshal(inc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal incident metadata: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO incidents (id, name, description, severity, status, alert_count, affected_devices, attack_vector, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		inc.ID, inc.Name, inc.Description, inc.Severity, inc.Status, inc.AlertCount, devices, inc.AttackVector, metadata, inc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

const incidentColumns = `id, name, description, severity, status, alert_count, affected_devices, attack_vector, metadata, created_at, updated_at, resolved_at`

func scanIncident(row pgx.Row) (models.Incident, error) {
	var inc models.Incident
	var devices, metadata []byte
	if err := row.Scan(&inc.ID, &inc.Name, &inc.Description, &inc.Severity, &inc.Status, &inc.AlertCount,
		&devices, &inc.AttackVector, &metadata, &inc.CreatedAt, &inc.UpdatedAt, &inc.ResolvedAt); err != nil {
		return models.Incident{}, err
	}
	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &inc.AffectedDevices); err != nil {
			return models.Incident{}, fmt.Errorf("unmarshal affected devices: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &inc.Metadata); err != nil {
			return models.Incident{}, fmt.Errorf("unmarshal incident metadata: %w", err)
		}
	}
	return inc, nil
}

// ListIncidents backs GET /api/incidents, optionally filtered by status and
// severity.
func (s *Store) ListIncidents(ctx context.Context, status, severity string, limit int) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	var args []any
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if severity != "" {
		args = append(args, severity)
		query += fmt.Sprintf(` AND severity = $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, ClampLimit(limit))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident row: %w", err)
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// GetIncidentByID fetches one incident, used by the PDF report export.
func (s *Store) GetIncidentByID(ctx context.Context, id string) (models.Incident, bool, error) {
	inc, err := scanIncident(s.db.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return models.Incident{}, false, nil
	}
	if err != nil {
		return models.Incident{}, false, fmt.Errorf("get incident by id: %w", err)
	}
	return inc, true, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// AssignDevice grants an admin read access to a device. The
// (device_id, user_id) primary key enforces spec §3's uniqueness invariant;
// a duplicate assignment surfaces as a Conflict-classified pgx error.
func (s *Store) AssignDevice(ctx context.Context, a models.DeviceAssignment) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO device_assignments (device_id, user_id, assigned_by, assigned_at) VALUES ($1, $2, $3, $4)`,
		a.DeviceID, a.UserID, a.AssignedBy, a.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("assign device: %w", err)
	}
	return nil
}

// IsDeviceAssigned reports whether userID already holds a grant for deviceID
// (used by the can_read predicate in internal/authz).
func (s *Store) IsDeviceAssigned(ctx context.Context, deviceID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM device_assignments WHERE device_id = $1 AND user_id = $2)`,
		deviceID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check device assignment: %w", err)
	}
	return exists, nil
}

// ListAssignmentsForUser returns every device-assignment grant held by userID.
func (s *Store) ListAssignmentsForUser(ctx context.Context, userID string) ([]models.DeviceAssignment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT device_id, user_id, assigned_by, assigned_at FROM device_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for user: %w", err)
	}
	defer rows.Close()

	var assignments []models.DeviceAssignment
	for rows.Next() {
		var a models.DeviceAssignment
		if err := rows.Scan(&a.DeviceID, &a.UserID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan device assignment row: %w", err)
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

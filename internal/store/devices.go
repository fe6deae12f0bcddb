package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// RegisterDevice inserts a newly-enrolled device. Returns Conflict-shaped
// errors unchanged so callers can classify via apierr.
func (s *Store) RegisterDevice(ctx context.Context, d models.Device) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO devices (id, agent_id, hostname, name, user_id, registered_at, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		d.ID, d.AgentID, d.Hostname, d.Name, d.UserID, d.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func scanDevice(row pgx.Row, now time.Time) (models.Device, error) {
	var d models.Device
	if err := row.Scan(&d.ID, &d.AgentID, &d.Hostname, &d.Name, &d.UserID, &d.RegisteredAt, &d.LastSeen); err != nil {
		return models.Device{}, err
	}
	d.Status = d.DeriveStatus(now)
	return d, nil
}

const deviceColumns = `id, agent_id, hostname, name, user_id, registered_at, last_seen`

// GetDeviceByAgentID looks up a device by its agent UUID. Returns
// (models.Device{}, false, nil) if no such device is registered.
func (s *Store) GetDeviceByAgentID(ctx context.Context, agentID string) (models.Device, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE agent_id = $1`, agentID)
	d, err := scanDevice(row, time.Now())
	if err == pgx.ErrNoRows {
		return models.Device{}, false, nil
	}
	if err != nil {
		return models.Device{}, false, fmt.Errorf("get device by agent id: %w", err)
	}
	return d, true, nil
}

// GetDeviceByID looks up a device by its primary key.
func (s *Store) GetDeviceByID(ctx context.Context, id string) (models.Device, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
	d, err := scanDevice(row, time.Now())
	if err == pgx.ErrNoRows {
		return models.Device{}, false, nil
	}
	if err != nil {
		return models.Device{}, false, fmt.Errorf("get device by id: %w", err)
	}
	return d, true, nil
}

// TouchDevice updates last_seen on every authenticated telemetry write
// (spec §4.5 "side effects common to all").
func (s *Store) TouchDevice(ctx context.Context, agentID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE devices SET last_seen = $1 WHERE agent_id = $2`, at, agentID)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

// ListDevicesOwnedBy returns devices directly owned by userID (device.user_id = userID).
func (s *Store) ListDevicesOwnedBy(ctx context.Context, userID string) ([]models.Device, error) {
	rows, err := s.db.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE user_id = $1 ORDER BY hostname`, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices owned by user: %w", err)
	}
	defer rows.Close()
	return scanDeviceRows(rows)
}

// ListDevicesAssignedTo returns devices an admin was granted via DeviceAssignment.
func (s *Store) ListDevicesAssignedTo(ctx context.Context, userID string) ([]models.Device, error) {
	rows, err := s.db.Query(ctx,
		`SELECT d.id, d.agent_id, d.hostname, d.name, d.user_id, d.registered_at, d.last_seen
		 FROM devices d JOIN device_assignments da ON da.device_id = d.id
		 WHERE da.user_id = $1 ORDER BY d.hostname`, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices assigned to user: %w", err)
	}
	defer rows.Close()
	return scanDeviceRows(rows)
}

// ListAllDevices returns every registered device (owner's unrestricted view).
func (s *Store) ListAllDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.Query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("list all devices: %w", err)
	}
	defer rows.Close()
	return scanDeviceRows(rows)
}

// ListDevicesByHostnamePattern returns every registered device, the candidate
// set for bulk assignment (SPEC_FULL supplemented feature); it does not
// filter by hostname, the caller matches the glob pattern itself.
func (s *Store) ListDevicesByHostnamePattern(ctx context.Context) ([]models.Device, error) {
	return s.ListAllDevices(ctx)
}

func scanDeviceRows(rows pgx.Rows) ([]models.Device, error) {
	now := time.Now()
	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows, now)
		if err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

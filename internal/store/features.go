package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// ListOnlineDevicesSeenSince backs the C11 ML collaborator's device scan:
// devices seen at or after since and currently online (spec §4.11 step 0).
// Status is derived, not stored, so "online" is evaluated in Go from
// last_seen against the current time rather than filtered in SQL by a
// status column.
func (s *Store) ListOnlineDevicesSeenSince(ctx context.Context, since time.Time) ([]models.Device, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE last_seen >= $1 ORDER BY last_seen DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("list online devices: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows, now)
		if err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		if d.Status == models.DeviceOnline {
			devices = append(devices, d)
		}
	}
	return devices, rows.Err()
}

// AggregateFeatures computes the resource/process/command/log sub-groups of
// the spec §4.11 15-feature vector for one device over [start, end).
// Temporal features (hour, day_of_week, is_weekend) are not store concerns;
// the caller fills those from the current time. Missing sub-queries default
// to zero, matching the original feature extractor's behaviour.
func (s *Store) AggregateFeatures(ctx context.Context, agentID string, start, end time.Time) (map[string]float64, error) {
	features := map[string]float64{}

	var avgCPU, avgMemory, avgDisk, netSent, netRecv *float64
	err := s.db.QueryRow(ctx, `
		SELECT
			AVG((cpu->>'cpu_percent')::DOUBLE PRECISION),
			AVG((memory->>'memory_percent')::DOUBLE PRECISION),
			AVG((disk->>'disk_percent')::DOUBLE PRECISION),
			SUM((network->>'bytes_sent')::DOUBLE PRECISION) / 1024.0 / 1024.0,
			SUM((network->>'bytes_recv')::DOUBLE PRECISION) / 1024.0 / 1024.0
		FROM metrics WHERE agent_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		agentID, start, end,
	).Scan(&avgCPU, &avgMemory, &avgDisk, &netSent, &netRecv)
	if err != nil {
		return nil, fmt.Errorf("aggregate metric features: %w", err)
	}
	features["cpu_percent"] = orZero(avgCPU)
	features["memory_percent"] = orZero(avgMemory)
	features["disk_percent"] = orZero(avgDisk)
	features["network_mb_sent"] = orZero(netSent)
	features["network_mb_recv"] = orZero(netRecv)

	var processCount *int64
	var maxCPU, maxMemory *float64
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), MAX(cpu_percent), MAX(memory_percent)
		FROM processes_history WHERE agent_id = $1 AND collected_at >= $2 AND collected_at < $3`,
		agentID, start, end,
	).Scan(&processCount, &maxCPU, &maxMemory)
	if err != nil {
		return nil, fmt.Errorf("aggregate process features: %w", err)
	}
	if processCount != nil {
		features["process_count"] = float64(*processCount)
	}
	features["max_process_cpu"] = orZero(maxCPU)
	features["max_process_memory"] = orZero(maxMemory)

	var commandCount, sudoCount *int64
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN command ILIKE 'sudo %' THEN 1 ELSE 0 END)
		FROM commands WHERE agent_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		agentID, start, end,
	).Scan(&commandCount, &sudoCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate command features: %w", err)
	}
	features["command_count"] = orZeroInt(commandCount)
	features["sudo_count"] = orZeroInt(sudoCount)

	var logCount, errorCount *int64
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN fields->>'PRIORITY' IN ('3', '2', 'err', 'crit') THEN 1 ELSE 0 END)
		FROM logs WHERE agent_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		agentID, start, end,
	).Scan(&logCount, &errorCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate log features: %w", err)
	}
	features["log_count"] = orZeroInt(logCount)
	features["error_count"] = orZeroInt(errorCount)

	return features, nil
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func orZeroInt(i *int64) float64 {
	if i == nil {
		return 0
	}
	return float64(*i)
}

package correlator

import (
	"context"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of internal/store's pool access the probes need.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultRules returns the shipped rule set from spec §4.6, each bound to db.
func DefaultRules(db DB) []Rule {
	return []Rule{
		{Name: "SSH Failed Login Attempts", Enabled: true, Severity: models.SeverityHigh, Probe: sshBruteForceProbe(db)},
		{Name: "Distributed Brute Force Attack", Enabled: true, Severity: models.SeverityCritical, Probe: distributedBruteForceProbe(db)},
		{Name: "Privilege Escalation Attempt", Enabled: true, Severity: models.SeverityHigh, Probe: privilegeEscalationProbe(db)},
		{Name: "Port Scan Detected", Enabled: true, Severity: models.SeverityHigh, Probe: portScanProbe(db)},
		{Name: "Coordinated Resource Spike", Enabled: true, Severity: models.SeverityMedium, Probe: resourceAnomalyProbe(db)},
	}
}

// sshBruteForceProbe is the shipped rule: per-host SSH brute force, count >=
// 3 failures from the same source IP within the lookback window.
func sshBruteForceProbe(db DB) Probe {
	const sql = `
	WITH failed_logins AS (
		SELECT
			d.hostname AS hostname,
			d.agent_id AS agent_id,
			substring(l.fields->>'MESSAGE' FROM 'from ([0-9.]+) port') AS source_ip,
			l.fields->>'MESSAGE' AS message,
			l.timestamp
		FROM logs l
		JOIN devices d ON d.agent_id = l.agent_id
		WHERE l.timestamp >= $1
			AND (l.fields->>'MESSAGE' ILIKE '%Failed password%' OR l.fields->>'MESSAGE' ILIKE '%authentication failure%')
			AND l.fields->>'MESSAGE' ~ 'from [0-9.]+ port'
	)
	SELECT hostname, agent_id, source_ip,
		COUNT(*) AS failure_count,
		MIN(timestamp) AS first_attempt,
		MAX(timestamp) AS last_attempt,
		array_agg(DISTINCT substring(message, 1, 100)) AS sample_messages
	FROM failed_logins
	WHERE source_ip IS NOT NULL
	GROUP BY hostname, agent_id, source_ip
	HAVING COUNT(*) >= 3`

	return func(ctx context.Context, since time.Time) ([]Suspect, error) {
		rows, err := db.Query(ctx, sql, since)
		if err != nil {
			return nil, fmt.Errorf("ssh brute force probe: %w", err)
		}
		defer rows.Close()

		var suspects []Suspect
		for rows.Next() {
			var hostname, agentID, sourceIP string
			var failureCount int
			var firstAttempt, lastAttempt time.Time
			var samples []string
			if err := rows.Scan(&hostname, &agentID, &sourceIP, &failureCount, &firstAttempt, &lastAttempt, &samples); err != nil {
				return nil, fmt.Errorf("scan ssh brute force row: %w", err)
			}
			suspects = append(suspects, Suspect{
				AgentID: agentID,
				Details: map[string]interface{}{
					"hostname":          hostname,
					"source_ip":         sourceIP,
					"failed_attempts":   failureCount,
					"first_attempt":     firstAttempt.Format(time.RFC3339),
					"last_attempt":      lastAttempt.Format(time.RFC3339),
					"timeframe_minutes": LookbackMinutes,
					"sample_messages":   samples,
				},
			})
		}
		return suspects, rows.Err()
	}
}

// distributedBruteForceProbe fires when the same source IP attacks >= 2
// distinct devices with >= 5 failed attempts in total within the lookback
// window.
func distributedBruteForceProbe(db DB) Probe {
	const sql = `
	WITH failed_logins AS (
		SELECT
			d.hostname AS hostname,
			substring(l.fields->>'MESSAGE' FROM 'from ([0-9.]+) port') AS source_ip,
			l.timestamp
		FROM logs l
		JOIN devices d ON d.agent_id = l.agent_id
		WHERE l.timestamp >= $1
			AND (l.fields->>'MESSAGE' ILIKE '%Failed password%' OR l.fields->>'MESSAGE' ILIKE '%authentication failure%')
			AND l.fields->>'MESSAGE' ~ 'from [0-9.]+ port'
	)
	SELECT source_ip,
		COUNT(DISTINCT hostname) AS device_count,
		COUNT(*) AS attempt_count,
		array_agg(DISTINCT hostname) AS hostnames
	FROM failed_logins
	WHERE source_ip IS NOT NULL
	GROUP BY source_ip
	HAVING COUNT(DISTINCT hostname) >= 2 AND COUNT(*) >= 5`

	return func(ctx context.Context, since time.Time) ([]Suspect, error) {
		rows, err := db.Query(ctx, sql, since)
		if err != nil {
			return nil, fmt.Errorf("distributed brute force probe: %w", err)
		}
		defer rows.Close()

		var suspects []Suspect
		for rows.Next() {
			var sourceIP string
			var deviceCount, attemptCount int
			var hostnames []string
			if err := rows.Scan(&sourceIP, &deviceCount, &attemptCount, &hostnames); err != nil {
				return nil, fmt.Errorf("scan distributed brute force row: %w", err)
			}
			suspects = append(suspects, Suspect{
				Details: map[string]interface{}{
					"source_ip":     sourceIP,
					"device_count":  deviceCount,
					"attempt_count": attemptCount,
					"hostnames":     hostnames,
				},
			})
		}
		return suspects, rows.Err()
	}
}

// privilegeEscalationProbe fires on >= 2 sudo/su command events for the same
// agent within the lookback window.
func privilegeEscalationProbe(db DB) Probe {
	const sql = `
	SELECT c.agent_id, d.hostname, COUNT(*) AS attempt_count,
		array_agg(DISTINCT c.command) AS sample_commands
	FROM commands c
	JOIN devices d ON d.agent_id = c.agent_id
	WHERE c.timestamp >= $1
		AND (c.command ILIKE 'sudo %' OR c.command ILIKE 'su %' OR c.command = 'su')
	GROUP BY c.agent_id, d.hostname
	HAVING COUNT(*) >= 2`

	return func(ctx context.Context, since time.Time) ([]Suspect, error) {
		rows, err := db.Query(ctx, sql, since)
		if err != nil {
			return nil, fmt.Errorf("privilege escalation probe: %w", err)
		}
		defer rows.Close()

		var suspects []Suspect
		for rows.Next() {
			var agentID, hostname string
			var attemptCount int
			var sampleCommands []string
			if err := rows.Scan(&agentID, &hostname, &attemptCount, &sampleCommands); err != nil {
				return nil, fmt.Errorf("scan privilege escalation row: %w", err)
			}
			suspects = append(suspects, Suspect{
				AgentID: agentID,
				Details: map[string]interface{}{
					"hostname":        hostname,
					"attempt_count":   attemptCount,
					"sample_commands": sampleCommands,
				},
			})
		}
		return suspects, rows.Err()
	}
}

// portScanProbe fires when a single source touches >= 10 unique destination
// ports for a device within the lookback window, inferred from connection
// recon log lines (e.g. firewall/IDS log entries carrying a DPT= field).
func portScanProbe(db DB) Probe {
	const sql = `
	WITH scan_events AS (
		SELECT
			d.hostname AS hostname,
			d.agent_id AS agent_id,
			substring(l.fields->>'MESSAGE' FROM 'SRC=([0-9.]+)') AS source_ip,
			substring(l.fields->>'MESSAGE' FROM 'DPT=([0-9]+)') AS dest_port
		FROM logs l
		JOIN devices d ON d.agent_id = l.agent_id
		WHERE l.timestamp >= $1 AND l.fields->>'MESSAGE' ~ 'DPT=[0-9]+'
	)
	SELECT hostname, agent_id, source_ip, COUNT(DISTINCT dest_port) AS unique_ports
	FROM scan_events
	WHERE source_ip IS NOT NULL AND dest_port IS NOT NULL
	GROUP BY hostname, agent_id, source_ip
	HAVING COUNT(DISTINCT dest_port) >= 10`

	return func(ctx context.Context, since time.Time) ([]Suspect, error) {
		rows, err := db.Query(ctx, sql, since)
		if err != nil {
			return nil, fmt.Errorf("port scan probe: %w", err)
		}
		defer rows.Close()

		var suspects []Suspect
		for rows.Next() {
			var hostname, agentID, sourceIP string
			var uniquePorts int
			if err := rows.Scan(&hostname, &agentID, &sourceIP, &uniquePorts); err != nil {
				return nil, fmt.Errorf("scan port scan row: %w", err)
			}
			suspects = append(suspects, Suspect{
				AgentID: agentID,
				Details: map[string]interface{}{
					"hostname":     hostname,
					"source_ip":    sourceIP,
					"unique_ports": uniquePorts,
				},
			})
		}
		return suspects, rows.Err()
	}
}

// resourceAnomalyProbe fires when >= 2 devices each show >= 2 samples above
// the CPU/memory thresholds within the lookback window, suggesting a
// coordinated spike (e.g. distributed mining or DoS participation).
func resourceAnomalyProbe(db DB) Probe {
	const (
		cpuThreshold   = 85.0
		memThreshold   = 90.0
		minSpikeCount  = 2
		minDeviceCount = 2
	)
	const sql = `
	WITH spikes AS (
		SELECT m.agent_id, d.hostname,
			(m.cpu->>'cpu_percent')::DOUBLE PRECISION AS cpu_percent,
			(m.memory->>'memory_percent')::DOUBLE PRECISION AS memory_percent
		FROM metrics m
		JOIN devices d ON d.agent_id = m.agent_id
		WHERE m.timestamp >= $1
	),
	per_device AS (
		SELECT agent_id, hostname, COUNT(*) AS spike_count,
			AVG(cpu_percent) AS avg_cpu, AVG(memory_percent) AS avg_memory
		FROM spikes
		WHERE cpu_percent >= $2 OR memory_percent >= $3
		GROUP BY agent_id, hostname
		HAVING COUNT(*) >= $4
	)
	SELECT agent_id, hostname, spike_count, avg_cpu, avg_memory FROM per_device`

	return func(ctx context.Context, since time.Time) ([]Suspect, error) {
		rows, err := db.Query(ctx, sql, since, cpuThreshold, memThreshold, minSpikeCount)
		if err != nil {
			return nil, fmt.Errorf("resource anomaly probe: %w", err)
		}
		defer rows.Close()

		type perDevice struct {
			agentID, hostname        string
			spikeCount               int
			avgCPU, avgMemory        float64
		}
		var devices []perDevice
		for rows.Next() {
			var d perDevice
			if err := rows.Scan(&d.agentID, &d.hostname, &d.spikeCount, &d.avgCPU, &d.avgMemory); err != nil {
				return nil, fmt.Errorf("scan resource anomaly row: %w", err)
			}
			devices = append(devices, d)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(devices) < minDeviceCount {
			return nil, nil
		}

		suspects := make([]Suspect, 0, len(devices))
		for _, d := range devices {
			suspects = append(suspects, Suspect{
				AgentID: d.agentID,
				Details: map[string]interface{}{
					"hostname":           d.hostname,
					"spike_count":        d.spikeCount,
					"avg_cpu_percent":    d.avgCPU,
					"avg_memory_percent": d.avgMemory,
					"coordinated_devices": len(devices),
				},
			})
		}
		return suspects, nil
	}
}

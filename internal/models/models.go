// Package models defines the wire and storage shapes shared by the agent
// and the server: telemetry records, devices, users, alerts and incidents.
package models

import "time"

// LogRecord is a single collected log line. It is immutable once written;
// fields["MESSAGE"] carries the canonical textual payload.  Fields also holds
// the open-ended per-source key/value pairs that journald/Windows Event
// Log/unified-log entries carry — see spec §9 "dynamic record" shapes.
type LogRecord struct {
	ID        int64             `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Host      string            `json:"host"`
	AgentID   string            `json:"agent_id"`
	Fields    map[string]string `json:"fields"`
}

// Message returns the canonical textual payload of the record.
func (r LogRecord) Message() string {
	return r.Fields["MESSAGE"]
}

// MetricSample is one point-in-time resource reading. Each sub-group is a
// flat mapping with well-known keys so new fields can be added by a
// collector without a schema migration.
type MetricSample struct {
	ID        int64              `json:"id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	AgentID   string             `json:"agent_id"`
	CPU       map[string]float64 `json:"cpu"`
	Memory    map[string]float64 `json:"memory"`
	Disk      map[string]float64 `json:"disk"`
	Network   map[string]float64 `json:"network"`
	Process   map[string]float64 `json:"process"`
}

// Well-known MetricSample sub-keys.
const (
	KeyCPUPercent     = "cpu_percent"
	KeyMemoryPercent  = "memory_percent"
	KeyDiskPercent    = "disk_percent"
	KeyBytesSent      = "bytes_sent"
	KeyBytesRecv      = "bytes_recv"
	KeyProcessCount   = "process_count"
)

// ConnectionDetail is a capped per-process network connection summary.
type ConnectionDetail struct {
	LocalAddr  string `json:"local_addr"`
	RemoteAddr string `json:"remote_addr"`
	Status     string `json:"status"`
}

// MaxConnectionDetails caps the number of connections recorded per process
// snapshot (spec §4.2).
const MaxConnectionDetails = 10

// ProcessSnapshot captures one process at collection time. The server keeps
// two projections of this type: "processes" (latest per agent, replaced on
// each ingest) and "processes_history" (append-only, used by ML features).
type ProcessSnapshot struct {
	ID                int64              `json:"id,omitempty"`
	CollectedAt        time.Time          `json:"collected_at"`
	AgentID            string             `json:"agent_id"`
	PID                int32              `json:"pid"`
	Name               string             `json:"name"`
	PPID               int32              `json:"ppid"`
	Username           string             `json:"username"`
	Status             string             `json:"status"`
	Cmdline            string             `json:"cmdline"`
	Exe                string             `json:"exe"`
	CPUPercent         float64            `json:"cpu_percent"`
	MemoryPercent      float64            `json:"memory_percent"`
	MemoryRSS          uint64             `json:"memory_rss"`
	MemoryVMS          uint64             `json:"memory_vms"`
	NumThreads         int32              `json:"num_threads"`
	NumFDs             int32              `json:"num_fds"`
	NumConnections     int                `json:"num_connections"`
	ConnectionDetails  []ConnectionDetail `json:"connection_details,omitempty"`
}

// CommandSource identifies which shell produced a CommandEvent.
type CommandSource string

const (
	CommandSourceBash CommandSource = "bash"
	CommandSourceZsh  CommandSource = "zsh"
)

// CommandEvent is one parsed shell history entry.
type CommandEvent struct {
	ID               int64         `json:"id,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	AgentID          string        `json:"agent_id"`
	User             string        `json:"user"`
	Command          string        `json:"command"`
	Shell            string        `json:"shell"`
	Source           CommandSource `json:"source"`
	WorkingDirectory string        `json:"working_directory,omitempty"`
	ExitCode         *int          `json:"exit_code,omitempty"`
}

// DeviceStatus mirrors the derived online/offline state of a Device.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
)

// StalenessThreshold is the spec §3 device-liveness window.
const StalenessThreshold = 90 * time.Second

// Device is a registered host-agent endpoint.
type Device struct {
	ID          string       `json:"id"`
	AgentID     string       `json:"agent_id"`
	Hostname    string       `json:"hostname"`
	Name        string       `json:"name"`
	UserID      string       `json:"user_id"`
	RegisteredAt time.Time   `json:"registered_at"`
	Status      DeviceStatus `json:"status"`
	LastSeen    time.Time    `json:"last_seen"`
}

// DeriveStatus computes Status from LastSeen relative to now.
func (d Device) DeriveStatus(now time.Time) DeviceStatus {
	if now.Sub(d.LastSeen) <= StalenessThreshold {
		return DeviceOnline
	}
	return DeviceOffline
}

// Role is one of the three fixed RBAC roles (spec §4.9).
type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleDeviceUser Role = "device_user"
)

// User is an authenticated Query API principal.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  string    `json:"-"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedBy string    `json:"created_by,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Invitation is a single-use device-registration token; only its hash is
// persisted, the raw token is shown once at creation time.
type Invitation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DeviceAssignment grants an admin read access to a specific device.
type DeviceAssignment struct {
	DeviceID   string    `json:"device_id"`
	UserID     string    `json:"user_id"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Severity is shared by alerts and incidents; ordering matters for the
// alert-listing tiebreak in spec §4.10 and incident promotion in §4.7.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities from least to most severe.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns a comparable ordinal for the severity, higher is worse.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Max returns the more severe of the two severities.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// AssignmentStatus is the alert-triage state (spec §4.8).
type AssignmentStatus string

const (
	StatusUnassigned    AssignmentStatus = "unassigned"
	StatusAssigned       AssignmentStatus = "assigned"
	StatusInvestigating AssignmentStatus = "investigating"
	StatusResolved      AssignmentStatus = "resolved"
	StatusEscalated     AssignmentStatus = "escalated"
)

// Alert is an immutable detection record; only AssignmentStatus and
// IncidentID mutate after creation.
type Alert struct {
	ID               string                 `json:"id"`
	RuleName         string                 `json:"rule_name"`
	Severity         Severity               `json:"severity"`
	Details          map[string]interface{} `json:"details"`
	AgentID          string                 `json:"agent_id,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	AssignmentStatus AssignmentStatus       `json:"assignment_status"`
	IncidentID       *string                `json:"incident_id,omitempty"`
}

// Resolution classifies a closed AlertAssignment.
type Resolution string

const (
	ResolutionTruePositive   Resolution = "true_positive"
	ResolutionFalsePositive  Resolution = "false_positive"
	ResolutionBenignPositive Resolution = "benign_positive"
)

// AlertAssignment is the (at most one active) triage record for an alert.
type AlertAssignment struct {
	ID           string     `json:"id"`
	AlertID      string     `json:"alert_id"`
	AssignedTo   string     `json:"assigned_to"`
	AssignedAt   time.Time  `json:"assigned_at"`
	Status       AssignmentStatus `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	Resolution   *Resolution `json:"resolution,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	EscalatedAt  *time.Time `json:"escalated_at,omitempty"`
	EscalatedTo  *string    `json:"escalated_to,omitempty"`
}

// IncidentStatus tracks the lifecycle of a derived incident.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
)

// Incident groups related alerts (spec §4.7); AlertCount and
// AffectedDevices are denormalised aggregates kept in sync with the
// member-linking UPDATE (spec §9).
type Incident struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Severity        Severity               `json:"severity"`
	Status          IncidentStatus         `json:"status"`
	AlertCount      int                    `json:"alert_count"`
	AffectedDevices []string               `json:"affected_devices"`
	AttackVector    string                 `json:"attack_vector"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	ResolvedAt      *time.Time             `json:"resolved_at,omitempty"`
}

// Stream names used by the spool and the forwarder (spec §4.1/§4.4).
type Stream string

const (
	StreamLogs      Stream = "logs"
	StreamMetrics   Stream = "metrics"
	StreamProcesses Stream = "processes"
	StreamCommands  Stream = "commands"
	StreamAlerts    Stream = "alerts"
)

// AllStreams lists every spool stream the forwarder ships, in the fixed
// per-tick order spec §4.4 iterates.
var AllStreams = []Stream{StreamLogs, StreamMetrics, StreamProcesses, StreamCommands, StreamAlerts}

// Package httpapi is the server's HTTP surface: C5 ingestion, C10 query,
// C8's triage actions, and the auth/RBAC middleware gating all of it.
// Handlers are chi-routed and depend on Store, never *store.Store directly,
// so the whole surface is testable against an in-memory fake.
package httpapi

import (
	"context"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// Store is the subset of internal/store every handler in this package
// depends on, collected in one place so Server takes a single dependency.
type Store interface {
	// Devices
	RegisterDevice(ctx context.Context, d models.Device) error
	GetDeviceByAgentID(ctx context.Context, agentID string) (models.Device, bool, error)
	GetDeviceByID(ctx context.Context, id string) (models.Device, bool, error)
	TouchDevice(ctx context.Context, agentID string, at time.Time) error
	ListDevicesOwnedBy(ctx context.Context, userID string) ([]models.Device, error)
	ListDevicesAssignedTo(ctx context.Context, userID string) ([]models.Device, error)
	ListAllDevices(ctx context.Context) ([]models.Device, error)
	ListDevicesByHostnamePattern(ctx context.Context) ([]models.Device, error)

	// Users
	CreateUser(ctx context.Context, u models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, bool, error)
	GetUserByID(ctx context.Context, id string) (models.User, bool, error)
	OwnerExists(ctx context.Context) (bool, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error)

	// Invitations
	CreateInvitation(ctx context.Context, inv models.Invitation) error
	FindUnexpiredInvitations(ctx context.Context, now time.Time) ([]models.Invitation, error)
	ConsumeInvitation(ctx context.Context, id string) error

	// Device assignments
	AssignDevice(ctx context.Context, a models.DeviceAssignment) error
	IsDeviceAssigned(ctx context.Context, deviceID, userID string) (bool, error)
	ListAssignmentsForUser(ctx context.Context, userID string) ([]models.DeviceAssignment, error)

	// Telemetry ingestion
	InsertLogs(ctx context.Context, records []models.LogRecord) (int64, error)
	InsertMetric(ctx context.Context, m models.MetricSample) error
	InsertProcesses(ctx context.Context, agentID string, snapshots []models.ProcessSnapshot) error
	GetLatestProcesses(ctx context.Context, agentID string) ([]models.ProcessSnapshot, error)
	InsertCommands(ctx context.Context, events []models.CommandEvent) (int64, error)
	GetLastCommandSync(ctx context.Context, agentID string) (*models.CommandEvent, error)
	EmitAlert(ctx context.Context, ruleName string, severity models.Severity, details map[string]interface{}, agentID string, now time.Time) (string, bool, error)

	// Query surface
	ListLogs(ctx context.Context, agentIDs []string, since time.Time, limit int) ([]models.LogRecord, error)
	ListCommands(ctx context.Context, agentIDs []string, since time.Time, limit int) ([]models.CommandEvent, error)
	ListMetrics(ctx context.Context, agentID string, since time.Time, limit int) ([]models.MetricSample, error)

	// Alerts
	ListAlerts(ctx context.Context, agentIDs []string, limit int) ([]models.Alert, error)
	ListUnassignedAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	ListAlertsByStatus(ctx context.Context, status models.AssignmentStatus, limit int) ([]models.Alert, error)
	ListMyAssignments(ctx context.Context, userID string, limit int) ([]models.Alert, error)
	GetAlertByID(ctx context.Context, id string) (models.Alert, bool, error)
	GetActiveAssignment(ctx context.Context, alertID string) (models.AlertAssignment, bool, error)
	CreateAssignment(ctx context.Context, a models.AlertAssignment) error
	UpdateAssignment(ctx context.Context, a models.AlertAssignment) error
	SetAlertAssignmentStatus(ctx context.Context, alertID string, status models.AssignmentStatus) error

	// Incidents
	ListIncidents(ctx context.Context, status, severity string, limit int) ([]models.Incident, error)
	GetIncidentByID(ctx context.Context, id string) (models.Incident, bool, error)
}

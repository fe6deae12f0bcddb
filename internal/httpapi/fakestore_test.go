package httpapi

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// alertDedupWindow mirrors internal/store.AlertDedupWindow for fakeStore's
// EmitAlert so tests exercise the same idempotency behavior as production.
const alertDedupWindow = 30 * time.Minute

// fakeStore is an in-memory Store used by every test in this package.
type fakeStore struct {
	devices      map[string]models.Device // keyed by AgentID
	devicesByID  map[string]models.Device
	users        map[string]models.User // keyed by ID
	usersByEmail map[string]models.User
	invitations  map[string]models.Invitation
	assignments  map[string][]models.DeviceAssignment // deviceID -> assignments

	logs      []models.LogRecord
	metrics   []models.MetricSample
	processes map[string][]models.ProcessSnapshot
	commands  []models.CommandEvent

	alerts          map[string]models.Alert
	alertAssignment map[string]models.AlertAssignment // alertID -> active assignment

	incidents map[string]models.Incident

	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices:         map[string]models.Device{},
		devicesByID:     map[string]models.Device{},
		users:           map[string]models.User{},
		usersByEmail:    map[string]models.User{},
		invitations:     map[string]models.Invitation{},
		assignments:     map[string][]models.DeviceAssignment{},
		processes:       map[string][]models.ProcessSnapshot{},
		alerts:          map[string]models.Alert{},
		alertAssignment: map[string]models.AlertAssignment{},
		incidents:       map[string]models.Incident{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

// Devices

func (f *fakeStore) RegisterDevice(ctx context.Context, d models.Device) error {
	f.devices[d.AgentID] = d
	f.devicesByID[d.ID] = d
	return nil
}

func (f *fakeStore) GetDeviceByAgentID(ctx context.Context, agentID string) (models.Device, bool, error) {
	d, ok := f.devices[agentID]
	return d, ok, nil
}

func (f *fakeStore) GetDeviceByID(ctx context.Context, id string) (models.Device, bool, error) {
	d, ok := f.devicesByID[id]
	return d, ok, nil
}

func (f *fakeStore) TouchDevice(ctx context.Context, agentID string, at time.Time) error {
	d, ok := f.devices[agentID]
	if !ok {
		return nil
	}
	d.LastSeen = at
	f.devices[agentID] = d
	f.devicesByID[d.ID] = d
	return nil
}

func (f *fakeStore) ListDevicesOwnedBy(ctx context.Context, userID string) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) ListDevicesAssignedTo(ctx context.Context, userID string) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		for _, a := range f.assignments[d.ID] {
			if a.UserID == userID {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllDevices(ctx context.Context) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) ListDevicesByHostnamePattern(ctx context.Context) ([]models.Device, error) {
	return f.ListAllDevices(ctx)
}

// Users

func (f *fakeStore) CreateUser(ctx context.Context, u models.User) error {
	f.users[u.ID] = u
	f.usersByEmail[u.Email] = u
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	u, ok := f.usersByEmail[email]
	return u, ok, nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (models.User, bool, error) {
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeStore) OwnerExists(ctx context.Context) (bool, error) {
	for _, u := range f.users {
		if u.Role == models.RoleOwner {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return nil
	}
	u.LastLogin = &at
	f.users[userID] = u
	f.usersByEmail[u.Email] = u
	return nil
}

func (f *fakeStore) ListUsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// Invitations

func (f *fakeStore) CreateInvitation(ctx context.Context, inv models.Invitation) error {
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeStore) FindUnexpiredInvitations(ctx context.Context, now time.Time) ([]models.Invitation, error) {
	var out []models.Invitation
	for _, inv := range f.invitations {
		if inv.ExpiresAt.After(now) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) ConsumeInvitation(ctx context.Context, id string) error {
	delete(f.invitations, id)
	return nil
}

// Device assignments

func (f *fakeStore) AssignDevice(ctx context.Context, a models.DeviceAssignment) error {
	f.assignments[a.DeviceID] = append(f.assignments[a.DeviceID], a)
	return nil
}

func (f *fakeStore) IsDeviceAssigned(ctx context.Context, deviceID, userID string) (bool, error) {
	for _, a := range f.assignments[deviceID] {
		if a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListAssignmentsForUser(ctx context.Context, userID string) ([]models.DeviceAssignment, error) {
	var out []models.DeviceAssignment
	for _, as := range f.assignments {
		for _, a := range as {
			if a.UserID == userID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// Telemetry ingestion

func (f *fakeStore) InsertLogs(ctx context.Context, records []models.LogRecord) (int64, error) {
	f.logs = append(f.logs, records...)
	return int64(len(records)), nil
}

func (f *fakeStore) InsertMetric(ctx context.Context, m models.MetricSample) error {
	f.metrics = append(f.metrics, m)
	return nil
}

func (f *fakeStore) InsertProcesses(ctx context.Context, agentID string, snapshots []models.ProcessSnapshot) error {
	f.processes[agentID] = snapshots
	return nil
}

func (f *fakeStore) GetLatestProcesses(ctx context.Context, agentID string) ([]models.ProcessSnapshot, error) {
	return f.processes[agentID], nil
}

func (f *fakeStore) InsertCommands(ctx context.Context, events []models.CommandEvent) (int64, error) {
	f.commands = append(f.commands, events...)
	return int64(len(events)), nil
}

func (f *fakeStore) GetLastCommandSync(ctx context.Context, agentID string) (*models.CommandEvent, error) {
	var last *models.CommandEvent
	for i := range f.commands {
		if f.commands[i].AgentID != agentID {
			continue
		}
		if last == nil || f.commands[i].Timestamp.After(last.Timestamp) {
			c := f.commands[i]
			last = &c
		}
	}
	return last, nil
}

func (f *fakeStore) EmitAlert(ctx context.Context, ruleName string, severity models.Severity, details map[string]interface{}, agentID string, now time.Time) (string, bool, error) {
	for _, a := range f.alerts {
		if a.RuleName == ruleName && a.Severity == severity && a.AgentID == agentID && !a.CreatedAt.Before(now.Add(-alertDedupWindow)) {
			return a.ID, false, nil
		}
	}
	id := ulid.Make().String()
	f.alerts[id] = models.Alert{
		ID:               id,
		RuleName:         ruleName,
		Severity:         severity,
		Details:          details,
		AgentID:          agentID,
		CreatedAt:        now,
		AssignmentStatus: models.StatusUnassigned,
	}
	return id, true, nil
}

// Query surface

func (f *fakeStore) ListLogs(ctx context.Context, agentIDs []string, since time.Time, limit int) ([]models.LogRecord, error) {
	var out []models.LogRecord
	for _, l := range f.logs {
		if l.Timestamp.Before(since) {
			continue
		}
		if agentIDs != nil && !containsStr(agentIDs, l.AgentID) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) ListCommands(ctx context.Context, agentIDs []string, since time.Time, limit int) ([]models.CommandEvent, error) {
	var out []models.CommandEvent
	for _, c := range f.commands {
		if c.Timestamp.Before(since) {
			continue
		}
		if agentIDs != nil && !containsStr(agentIDs, c.AgentID) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) ListMetrics(ctx context.Context, agentID string, since time.Time, limit int) ([]models.MetricSample, error) {
	var out []models.MetricSample
	for _, m := range f.metrics {
		if m.AgentID == agentID && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Alerts

func (f *fakeStore) ListAlerts(ctx context.Context, agentIDs []string, limit int) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range f.alerts {
		if agentIDs != nil && !containsStr(agentIDs, a.AgentID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) ListUnassignedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range f.alerts {
		if a.AssignmentStatus == models.StatusUnassigned {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAlertsByStatus(ctx context.Context, status models.AssignmentStatus, limit int) ([]models.Alert, error) {
	var out []models.Alert
	for _, a := range f.alerts {
		if a.AssignmentStatus == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListMyAssignments(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	var out []models.Alert
	for alertID, a := range f.alertAssignment {
		if a.AssignedTo == userID {
			out = append(out, f.alerts[alertID])
		}
	}
	return out, nil
}

func (f *fakeStore) GetAlertByID(ctx context.Context, id string) (models.Alert, bool, error) {
	a, ok := f.alerts[id]
	return a, ok, nil
}

func (f *fakeStore) GetActiveAssignment(ctx context.Context, alertID string) (models.AlertAssignment, bool, error) {
	a, ok := f.alertAssignment[alertID]
	return a, ok, nil
}

func (f *fakeStore) CreateAssignment(ctx context.Context, a models.AlertAssignment) error {
	f.alertAssignment[a.AlertID] = a
	return nil
}

func (f *fakeStore) UpdateAssignment(ctx context.Context, a models.AlertAssignment) error {
	f.alertAssignment[a.AlertID] = a
	return nil
}

func (f *fakeStore) SetAlertAssignmentStatus(ctx context.Context, alertID string, status models.AssignmentStatus) error {
	a, ok := f.alerts[alertID]
	if !ok {
		return nil
	}
	a.AssignmentStatus = status
	f.alerts[alertID] = a
	return nil
}

// Incidents

func (f *fakeStore) ListIncidents(ctx context.Context, status, severity string, limit int) ([]models.Incident, error) {
	var out []models.Incident
	for _, inc := range f.incidents {
		if status != "" && string(inc.Status) != status {
			continue
		}
		if severity != "" && string(inc.Severity) != severity {
			continue
		}
		out = append(out, inc)
	}
	return out, nil
}

func (f *fakeStore) GetIncidentByID(ctx context.Context, id string) (models.Incident, bool, error) {
	inc, ok := f.incidents[id]
	return inc, ok, nil
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

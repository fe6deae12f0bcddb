package triage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/apierr"
	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

type fakeStore struct {
	alerts      map[string]models.Alert
	assignments map[string]models.AlertAssignment // alertID -> active assignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{alerts: map[string]models.Alert{}, assignments: map[string]models.AlertAssignment{}}
}

func (f *fakeStore) GetAlertByID(ctx context.Context, id string) (models.Alert, bool, error) {
	a, ok := f.alerts[id]
	return a, ok, nil
}

func (f *fakeStore) GetActiveAssignment(ctx context.Context, alertID string) (models.AlertAssignment, bool, error) {
	a, ok := f.assignments[alertID]
	if !ok || a.Status == models.StatusResolved {
		return models.AlertAssignment{}, false, nil
	}
	return a, true, nil
}

func (f *fakeStore) CreateAssignment(ctx context.Context, a models.AlertAssignment) error {
	f.assignments[a.AlertID] = a
	return nil
}

func (f *fakeStore) UpdateAssignment(ctx context.Context, a models.AlertAssignment) error {
	f.assignments[a.AlertID] = a
	return nil
}

func (f *fakeStore) SetAlertAssignmentStatus(ctx context.Context, alertID string, status models.AssignmentStatus) error {
	a := f.alerts[alertID]
	a.AssignmentStatus = status
	f.alerts[alertID] = a
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestClaimTransitionsUnassignedToInvestigating(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusUnassigned}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	admin := models.User{ID: "admin-1", Role: models.RoleAdmin}
	assignment, err := m.Claim(context.Background(), "a1", admin)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if assignment.AssignedTo != "admin-1" {
		t.Errorf("AssignedTo = %q, want admin-1", assignment.AssignedTo)
	}
	if fs.alerts["a1"].AssignmentStatus != models.StatusInvestigating {
		t.Errorf("alert status = %v, want investigating", fs.alerts["a1"].AssignmentStatus)
	}
}

func TestClaimRejectsAlreadyAssigned(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	_, err := m.Claim(context.Background(), "a1", models.User{ID: "admin-1", Role: models.RoleAdmin})
	if !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("Claim() on already-assigned alert error = %v, want Conflict", err)
	}
}

func TestClaimRejectsDeviceUser(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusUnassigned}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	_, err := m.Claim(context.Background(), "a1", models.User{ID: "u1", Role: models.RoleDeviceUser})
	if !errors.Is(err, apierr.ErrNotPermitted) {
		t.Fatalf("Claim() by device_user error = %v, want NotPermitted", err)
	}
}

func TestBulkAssignAdminCanOnlyAssignSelf(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusUnassigned}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	admin := models.User{ID: "admin-1", Role: models.RoleAdmin}
	_, err := m.BulkAssign(context.Background(), "a1", admin, "admin-2")
	if !errors.Is(err, apierr.ErrNotPermitted) {
		t.Fatalf("BulkAssign(admin->other) error = %v, want NotPermitted", err)
	}
}

func TestBulkAssignOwnerCanTargetAnyAdmin(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusUnassigned}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	owner := models.User{ID: "owner-1", Role: models.RoleOwner}
	assignment, err := m.BulkAssign(context.Background(), "a1", owner, "admin-2")
	if err != nil {
		t.Fatalf("BulkAssign(owner->admin) error = %v", err)
	}
	if assignment.AssignedTo != "admin-2" {
		t.Errorf("AssignedTo = %q, want admin-2", assignment.AssignedTo)
	}
}

func TestSetStatusResolvesByAssignee(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusInvestigating}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	assignee := models.User{ID: "admin-1", Role: models.RoleAdmin}
	assignment, err := m.SetStatus(context.Background(), "a1", assignee, models.ResolutionTruePositive)
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if assignment.Status != models.StatusResolved {
		t.Errorf("Status = %v, want resolved", assignment.Status)
	}
	if assignment.ResolvedAt == nil {
		t.Error("ResolvedAt should be set")
	}
	if fs.alerts["a1"].AssignmentStatus != models.StatusResolved {
		t.Errorf("alert status = %v, want resolved", fs.alerts["a1"].AssignmentStatus)
	}
}

func TestSetStatusRejectsOtherAdmin(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusInvestigating}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	other := models.User{ID: "admin-2", Role: models.RoleAdmin}
	_, err := m.SetStatus(context.Background(), "a1", other, models.ResolutionTruePositive)
	if !errors.Is(err, apierr.ErrNotPermitted) {
		t.Fatalf("SetStatus() by non-assignee error = %v, want NotPermitted", err)
	}
}

func TestResolvingEscalatedAlertRequiresOwner(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusEscalated}
	owner := "owner-1"
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusEscalated, EscalatedTo: &owner}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	_, err := m.SetStatus(context.Background(), "a1", models.User{ID: "admin-1", Role: models.RoleAdmin}, models.ResolutionTruePositive)
	if !errors.Is(err, apierr.ErrNotPermitted) {
		t.Fatalf("SetStatus(escalated, by assignee) error = %v, want NotPermitted", err)
	}

	assignment, err := m.SetStatus(context.Background(), "a1", models.User{ID: owner, Role: models.RoleOwner}, models.ResolutionTruePositive)
	if err != nil {
		t.Fatalf("SetStatus(escalated, by owner) error = %v", err)
	}
	if assignment.Status != models.StatusResolved {
		t.Errorf("Status = %v, want resolved", assignment.Status)
	}
}

func TestEscalateAppendsNoteAndSetsTarget(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusInvestigating}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := &Machine{Store: fs, Now: fixedClock(now)}

	assignee := models.User{ID: "admin-1", Role: models.RoleAdmin, Email: "admin1@example.com"}
	assignment, err := m.Escalate(context.Background(), "a1", assignee, "owner-1", "needs owner review")
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if assignment.EscalatedTo == nil || *assignment.EscalatedTo != "owner-1" {
		t.Errorf("EscalatedTo = %v, want owner-1", assignment.EscalatedTo)
	}
	if assignment.Notes == "" {
		t.Error("expected a note to be appended")
	}
	if fs.alerts["a1"].AssignmentStatus != models.StatusEscalated {
		t.Errorf("alert status = %v, want escalated", fs.alerts["a1"].AssignmentStatus)
	}
}

func TestEscalateRejectsDoubleEscalation(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	escalatedAt := time.Now()
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusInvestigating, EscalatedAt: &escalatedAt}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	_, err := m.Escalate(context.Background(), "a1", models.User{ID: "admin-1", Role: models.RoleAdmin}, "owner-1", "again")
	if !errors.Is(err, apierr.ErrConflict) {
		t.Fatalf("Escalate() twice error = %v, want Conflict", err)
	}
}

func TestCommentAllowedForAssigneeEscalatedToAndOwner(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusInvestigating}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	_, err := m.Comment(context.Background(), "a1", models.User{ID: "admin-1", Role: models.RoleAdmin, Email: "a@x.com"}, "checking logs")
	if err != nil {
		t.Fatalf("Comment() by assignee error = %v", err)
	}

	_, err = m.Comment(context.Background(), "a1", models.User{ID: "owner-1", Role: models.RoleOwner, Email: "o@x.com"}, "fyi")
	if err != nil {
		t.Fatalf("Comment() by owner error = %v", err)
	}
}

func TestCommentRejectsUnrelatedAdmin(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["a1"] = models.Alert{ID: "a1", AssignmentStatus: models.StatusInvestigating}
	fs.assignments["a1"] = models.AlertAssignment{ID: "as1", AlertID: "a1", AssignedTo: "admin-1", Status: models.StatusInvestigating}
	m := &Machine{Store: fs, Now: fixedClock(time.Now())}

	_, err := m.Comment(context.Background(), "a1", models.User{ID: "admin-2", Role: models.RoleAdmin}, "nope")
	if !errors.Is(err, apierr.ErrNotPermitted) {
		t.Fatalf("Comment() by unrelated admin error = %v, want NotPermitted", err)
	}
}

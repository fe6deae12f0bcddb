// Package triage implements the per-alert assignment lifecycle from spec
// §4.8, independent of HTTP: claim, set_status, escalate, comment and
// bulk_assign, each enforcing the actor/state constraints in the spec's
// transition table.
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/MokshitBindal/Aegis-sub000/internal/apierr"
	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/oklog/ulid/v2"
)

// Store is the subset of internal/store the triage core depends on.
type Store interface {
	GetAlertByID(ctx context.Context, id string) (models.Alert, bool, error)
	GetActiveAssignment(ctx context.Context, alertID string) (models.AlertAssignment, bool, error)
	CreateAssignment(ctx context.Context, a models.AlertAssignment) error
	UpdateAssignment(ctx context.Context, a models.AlertAssignment) error
	SetAlertAssignmentStatus(ctx context.Context, alertID string, status models.AssignmentStatus) error
}

// Machine applies spec §4.8 transitions against a Store.
type Machine struct {
	Store Store
	Now   func() time.Time
}

// New builds a Machine with the real clock.
func New(store Store) *Machine {
	return &Machine{Store: store, Now: time.Now}
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Claim transitions an unassigned alert to investigating, assigning it to
// actor. Only an admin (or owner) may claim.
func (m *Machine) Claim(ctx context.Context, alertID string, actor models.User) (models.AlertAssignment, error) {
	return m.assign(ctx, alertID, actor, actor.ID)
}

// BulkAssign assigns alertID to assignee on behalf of actor. An owner may
// target any admin; an admin may only assign to themselves (spec §4.8).
func (m *Machine) BulkAssign(ctx context.Context, alertID string, actor models.User, assigneeID string) (models.AlertAssignment, error) {
	if actor.Role == models.RoleAdmin && assigneeID != actor.ID {
		return models.AlertAssignment{}, apierr.NotPermitted("admin may only assign alerts to themselves")
	}
	return m.assign(ctx, alertID, actor, assigneeID)
}

func (m *Machine) assign(ctx context.Context, alertID string, actor models.User, assigneeID string) (models.AlertAssignment, error) {
	if actor.Role != models.RoleOwner && actor.Role != models.RoleAdmin {
		return models.AlertAssignment{}, apierr.NotPermitted("only admin or owner may claim alerts")
	}

	alert, ok, err := m.Store.GetAlertByID(ctx, alertID)
	if err != nil {
		return models.AlertAssignment{}, fmt.Errorf("get alert: %w", err)
	}
	if !ok {
		return models.AlertAssignment{}, apierr.NotFound("alert not found")
	}
	if alert.AssignmentStatus != models.StatusUnassigned {
		return models.AlertAssignment{}, apierr.Conflict("alert is already assigned")
	}

	assignment := models.AlertAssignment{
		ID:         ulid.Make().String(),
		AlertID:    alertID,
		AssignedTo: assigneeID,
		AssignedAt: m.now(),
		Status:     models.StatusInvestigating,
	}
	if err := m.Store.CreateAssignment(ctx, assignment); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("create assignment: %w", err)
	}
	if err := m.Store.SetAlertAssignmentStatus(ctx, alertID, models.StatusInvestigating); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("set alert status: %w", err)
	}
	return assignment, nil
}

// SetStatus resolves an alert. Per spec §4.8, only the assignee or the
// owner may resolve; the only reachable target status from this entry
// point is "resolved" (the other states are reached via Claim/Escalate).
func (m *Machine) SetStatus(ctx context.Context, alertID string, actor models.User, resolution models.Resolution) (models.AlertAssignment, error) {
	alert, assignment, err := m.loadActive(ctx, alertID)
	if err != nil {
		return models.AlertAssignment{}, err
	}
	if alert.AssignmentStatus != models.StatusInvestigating && alert.AssignmentStatus != models.StatusAssigned && alert.AssignmentStatus != models.StatusEscalated {
		return models.AlertAssignment{}, apierr.Conflict("alert is not in a resolvable state")
	}

	isAssignee := assignment.AssignedTo == actor.ID
	isOwner := actor.Role == models.RoleOwner
	if alert.AssignmentStatus == models.StatusEscalated {
		if !isOwner {
			return models.AlertAssignment{}, apierr.NotPermitted("only the owner may resolve an escalated alert")
		}
	} else if !isAssignee && !isOwner {
		return models.AlertAssignment{}, apierr.NotPermitted("only the assignee or owner may resolve this alert")
	}

	now := m.now()
	assignment.Status = models.StatusResolved
	assignment.Resolution = &resolution
	assignment.ResolvedAt = &now
	if err := m.Store.UpdateAssignment(ctx, assignment); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("update assignment: %w", err)
	}
	if err := m.Store.SetAlertAssignmentStatus(ctx, alertID, models.StatusResolved); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("set alert status: %w", err)
	}
	return assignment, nil
}

// Escalate hands an investigating alert to the owner. Only the current
// assignee (an admin) may escalate, and only once.
func (m *Machine) Escalate(ctx context.Context, alertID string, actor models.User, ownerID string, notes string) (models.AlertAssignment, error) {
	alert, assignment, err := m.loadActive(ctx, alertID)
	if err != nil {
		return models.AlertAssignment{}, err
	}
	if alert.AssignmentStatus != models.StatusInvestigating {
		return models.AlertAssignment{}, apierr.Conflict("only an investigating alert may be escalated")
	}
	if assignment.AssignedTo != actor.ID {
		return models.AlertAssignment{}, apierr.NotPermitted("only the assignee may escalate")
	}
	if assignment.EscalatedAt != nil {
		return models.AlertAssignment{}, apierr.Conflict("alert is already escalated")
	}

	now := m.now()
	assignment.Status = models.StatusEscalated
	assignment.EscalatedAt = &now
	assignment.EscalatedTo = &ownerID
	assignment.Notes = appendNote(assignment.Notes, fmt.Sprintf("[ESCALATED] %s", notes), now, actor.Email)
	if err := m.Store.UpdateAssignment(ctx, assignment); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("update assignment: %w", err)
	}
	if err := m.Store.SetAlertAssignmentStatus(ctx, alertID, models.StatusEscalated); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("set alert status: %w", err)
	}
	return assignment, nil
}

// Comment appends a timestamped note. Permitted for the assignee, the
// escalation target, or the owner, on any non-resolved alert.
func (m *Machine) Comment(ctx context.Context, alertID string, actor models.User, note string) (models.AlertAssignment, error) {
	alert, assignment, err := m.loadActive(ctx, alertID)
	if err != nil {
		return models.AlertAssignment{}, err
	}
	if alert.AssignmentStatus == models.StatusResolved {
		return models.AlertAssignment{}, apierr.Conflict("cannot comment on a resolved alert")
	}

	isEscalatedTo := assignment.EscalatedTo != nil && *assignment.EscalatedTo == actor.ID
	if assignment.AssignedTo != actor.ID && !isEscalatedTo && actor.Role != models.RoleOwner {
		return models.AlertAssignment{}, apierr.NotPermitted("only the assignee, escalation target, or owner may comment")
	}

	assignment.Notes = appendNote(assignment.Notes, note, m.now(), actor.Email)
	if err := m.Store.UpdateAssignment(ctx, assignment); err != nil {
		return models.AlertAssignment{}, fmt.Errorf("update assignment: %w", err)
	}
	return assignment, nil
}

func (m *Machine) loadActive(ctx context.Context, alertID string) (models.Alert, models.AlertAssignment, error) {
	alert, ok, err := m.Store.GetAlertByID(ctx, alertID)
	if err != nil {
		return models.Alert{}, models.AlertAssignment{}, fmt.Errorf("get alert: %w", err)
	}
	if !ok {
		return models.Alert{}, models.AlertAssignment{}, apierr.NotFound("alert not found")
	}
	assignment, ok, err := m.Store.GetActiveAssignment(ctx, alertID)
	if err != nil {
		return models.Alert{}, models.AlertAssignment{}, fmt.Errorf("get active assignment: %w", err)
	}
	if !ok {
		return models.Alert{}, models.AlertAssignment{}, apierr.Conflict("alert has no active assignment")
	}
	return alert, assignment, nil
}

func appendNote(existing, note string, at time.Time, actorEmail string) string {
	header := fmt.Sprintf("[%s] %s: %s", at.Format(time.RFC3339), actorEmail, note)
	if existing == "" {
		return header
	}
	return existing + "\n" + header
}

// Package authz implements the read/claim/escalate predicates from spec
// §4.9. Every query endpoint in internal/httpapi applies these filters
// inside its store query, never as a client-side post-filter.
package authz

import (
	"context"
	"fmt"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// DeviceAccess answers "is userID assigned to deviceID" for the admin
// ownership branch of CanReadDevice. Backed by internal/store in
// production; a fake in tests.
type DeviceAccess interface {
	IsDeviceAssigned(ctx context.Context, deviceID, userID string) (bool, error)
}

// CanReadDevice implements the device-ownership predicate (spec §4.9).
func CanReadDevice(ctx context.Context, access DeviceAccess, user models.User, device models.Device) (bool, error) {
	switch user.Role {
	case models.RoleOwner:
		return true, nil
	case models.RoleAdmin:
		if device.UserID == user.ID {
			return true, nil
		}
		assigned, err := access.IsDeviceAssigned(ctx, device.ID, user.ID)
		if err != nil {
			return false, fmt.Errorf("check device assignment: %w", err)
		}
		return assigned, nil
	case models.RoleDeviceUser:
		return device.UserID == user.ID, nil
	default:
		return false, nil
	}
}

// CanReadAlert implements the alert-access predicate (spec §4.9).
// device_user is categorically forbidden — alerts are device-scoped and
// not exposed to that role at all. assignedTo/escalatedTo come from the
// alert's current AlertAssignment row, if any (empty string if none).
func CanReadAlert(user models.User, alert models.Alert, assignedTo, escalatedTo string) bool {
	if user.Role == models.RoleOwner {
		return true
	}
	if user.Role != models.RoleAdmin {
		return false
	}
	if alert.AssignmentStatus == models.StatusUnassigned {
		return true
	}
	return assignedTo == user.ID || (escalatedTo != "" && escalatedTo == user.ID)
}

// CanCreateUser restricts account creation to the owner (spec §4.9).
func CanCreateUser(actor models.User) bool {
	return actor.Role == models.RoleOwner
}

// CanAssignDevice restricts device-assignment grants to the owner (the only
// role permitted to manage admin device access, spec §4.9/§6).
func CanAssignDevice(actor models.User) bool {
	return actor.Role == models.RoleOwner
}

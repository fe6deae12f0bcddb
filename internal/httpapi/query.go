package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/go-chi/chi/v5"

	"github.com/MokshitBindal/Aegis-sub000/internal/authz"
	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/MokshitBindal/Aegis-sub000/internal/store"
)

// parseLimit reads the limit query param, clamped per spec §4.10.
func parseLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return store.ClampLimit(n)
}

// sinceFromTimeframe resolves the timeframe DSL (1h/6h/24h/7d) to an
// absolute "since" instant, defaulting to 1h on an unrecognized value.
func sinceFromTimeframe(r *http.Request, now time.Time) time.Time {
	tf := r.URL.Query().Get("timeframe")
	d, ok := store.Timeframes[tf]
	if !ok {
		d = store.Timeframes["1h"]
	}
	return now.Add(-d)
}

// authorizedAgentIDs returns the agent_id allowlist to pass to a store
// query for the authenticated user, or nil for an owner (unrestricted).
// Non-owners are scoped to devices they own or are assigned to, per the
// §4.9 predicate applied inside the query rather than post-filtered.
func (s *Server) authorizedAgentIDs(r *http.Request, user models.User) ([]string, error) {
	if user.Role == models.RoleOwner {
		return nil, nil
	}
	owned, err := s.Store.ListDevicesOwnedBy(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owned))
	for _, d := range owned {
		ids = append(ids, d.AgentID)
	}
	if user.Role == models.RoleAdmin {
		assigned, err := s.Store.ListDevicesAssignedTo(r.Context(), user.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range assigned {
			ids = append(ids, d.AgentID)
		}
	}
	return ids, nil
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var devices []models.Device
	var err error
	switch user.Role {
	case models.RoleOwner:
		devices, err = s.Store.ListAllDevices(r.Context())
	case models.RoleAdmin:
		owned, oerr := s.Store.ListDevicesOwnedBy(r.Context(), user.ID)
		if oerr != nil {
			err = oerr
			break
		}
		assigned, aerr := s.Store.ListDevicesAssignedTo(r.Context(), user.ID)
		if aerr != nil {
			err = aerr
			break
		}
		devices = append(owned, assigned...)
	default:
		devices, err = s.Store.ListDevicesOwnedBy(r.Context(), user.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

type assignByPatternRequest struct {
	Pattern string `json:"pattern"`
	UserID  string `json:"user_id"`
}

type assignByPatternResponse struct {
	Assigned []string `json:"assigned_device_ids"`
}

// handleAssignDevicesByPattern is POST /api/devices/assign-by-pattern, an
// owner-only supplemented feature: grants an admin read access to every
// device whose hostname matches a glob pattern in one call instead of one
// assignment per device.
func (s *Server) handleAssignDevicesByPattern(w http.ResponseWriter, r *http.Request) {
	actor := userFromContext(r.Context())
	if !authz.CanAssignDevice(actor) {
		writeError(w, http.StatusForbidden, "only the owner may assign devices")
		return
	}

	var req assignByPatternRequest
	if err := decodeJSON(r, &req); err != nil || req.Pattern == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "pattern and user_id are required")
		return
	}

	candidates, err := s.Store.ListDevicesByHostnamePattern(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := s.now()
	assigned := make([]string, 0, len(candidates))
	for _, d := range candidates {
		if !wildcard.Match(req.Pattern, d.Hostname) {
			continue
		}
		a := models.DeviceAssignment{DeviceID: d.ID, UserID: req.UserID, AssignedBy: actor.ID, AssignedAt: now}
		if err := s.Store.AssignDevice(r.Context(), a); err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		assigned = append(assigned, d.ID)
	}
	writeJSON(w, http.StatusOK, assignByPatternResponse{Assigned: assigned})
}

func (s *Server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	agentIDs, err := s.authorizedAgentIDs(r, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if id := r.URL.Query().Get("agent_id"); id != "" && agentIDs != nil {
		agentIDs = intersect(agentIDs, id)
	}

	logs, err := s.Store.ListLogs(r.Context(), agentIDs, sinceFromTimeframe(r, s.now()), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleQueryCommands(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	agentIDs, err := s.authorizedAgentIDs(r, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	cmds, err := s.Store.ListCommands(r.Context(), agentIDs, sinceFromTimeframe(r, s.now()), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, cmds)
}

func (s *Server) handleQueryMetrics(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	agentID := chi.URLParam(r, "agent_id")

	device, ok, err := s.Store.GetDeviceByAgentID(r.Context(), agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	allowed, err := authz.CanReadDevice(r.Context(), s.Store, user, device)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "not permitted to read this device")
		return
	}

	metrics, err := s.Store.ListMetrics(r.Context(), agentID, sinceFromTimeframe(r, s.now()), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleQueryProcesses(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	agentID := chi.URLParam(r, "agent_id")

	device, ok, err := s.Store.GetDeviceByAgentID(r.Context(), agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	allowed, err := authz.CanReadDevice(r.Context(), s.Store, user, device)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "not permitted to read this device")
		return
	}

	procs, err := s.Store.GetLatestProcesses(r.Context(), agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	agentIDs, err := s.authorizedAgentIDs(r, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if id := r.URL.Query().Get("agent_id"); id != "" && agentIDs != nil {
		agentIDs = intersect(agentIDs, id)
	}

	alerts, err := s.Store.ListAlerts(r.Context(), agentIDs, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleMyAssignments(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	alerts, err := s.Store.ListMyAssignments(r.Context(), user.ID, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleUnassignedAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.Store.ListUnassignedAlerts(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAlertsByStatus(w http.ResponseWriter, r *http.Request) {
	status := models.AssignmentStatus(chi.URLParam(r, "status"))
	alerts, err := s.Store.ListAlertsByStatus(r.Context(), status, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	severity := r.URL.Query().Get("severity")

	incidents, err := s.Store.ListIncidents(r.Context(), status, severity, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

// intersect narrows agentIDs to the single requested id, if it is a member;
// otherwise it returns an empty (never nil, so callers don't widen scope to
// "all") slice.
func intersect(agentIDs []string, requested string) []string {
	for _, id := range agentIDs {
		if id == requested {
			return []string{requested}
		}
	}
	return []string{}
}

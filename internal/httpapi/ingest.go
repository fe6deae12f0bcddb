package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MokshitBindal/Aegis-sub000/internal/models"
)

// handleIngestLogs is POST /api/ingest (C5): the forwarder's batched log
// sink. Every record's AgentID is forced to the authenticated device's, so
// a compromised agent cannot write logs under another agent's identity.
func (s *Server) handleIngestLogs(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	var records []models.LogRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "malformed log batch")
		return
	}
	for i := range records {
		records[i].AgentID = device.AgentID
	}

	n, err := s.Store.InsertLogs(r.Context(), records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"accepted": n})
}

// handleIngestMetric is POST /api/metrics (C5): one resource-usage sample.
func (s *Server) handleIngestMetric(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	var m models.MetricSample
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "malformed metric sample")
		return
	}
	m.AgentID = device.AgentID

	if err := s.Store.InsertMetric(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleIngestProcesses is POST /api/processes (C5): replaces the device's
// live process table and appends the outgoing snapshot to process history
// (internal/store.InsertProcesses semantics).
func (s *Server) handleIngestProcesses(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	var snapshots []models.ProcessSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshots); err != nil {
		writeError(w, http.StatusBadRequest, "malformed process batch")
		return
	}

	if err := s.Store.InsertProcesses(r.Context(), device.AgentID, snapshots); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(snapshots)})
}

// handleIngestCommands is POST /api/commands (C5): batched shell-history
// events, deduplicated server-side by content hash.
func (s *Server) handleIngestCommands(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	var events []models.CommandEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, "malformed command batch")
		return
	}
	for i := range events {
		events[i].AgentID = device.AgentID
	}

	n, err := s.Store.InsertCommands(r.Context(), events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"accepted": n})
}

// handleIngestAlerts is POST /api/alerts (C5, spec §5 Open Questions): the
// agent's locally-detected rule-engine alerts, deduped through the same
// EmitAlert idempotency key the correlator and ML collaborator use.
func (s *Server) handleIngestAlerts(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())

	var alerts []models.Alert
	if err := json.NewDecoder(r.Body).Decode(&alerts); err != nil {
		writeError(w, http.StatusBadRequest, "malformed alert batch")
		return
	}

	accepted := 0
	for _, a := range alerts {
		if _, _, err := s.Store.EmitAlert(r.Context(), a.RuleName, a.Severity, a.Details, device.AgentID, a.CreatedAt); err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		accepted++
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

// handleLastCommandSync is GET /api/commands/last-sync/{agent_id} (C5):
// reports the timestamp of the newest stored command for the authenticated
// device, or null when there is none.
func (s *Server) handleLastCommandSync(w http.ResponseWriter, r *http.Request) {
	device := deviceFromContext(r.Context())
	agentID := chi.URLParam(r, "agent_id")
	if agentID != device.AgentID {
		writeError(w, http.StatusForbidden, "agent id does not match authenticated device")
		return
	}

	last, err := s.Store.GetLastCommandSync(r.Context(), agentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if last == nil {
		writeJSON(w, http.StatusOK, map[string]any{"last_sync": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"last_sync": last.Timestamp})
}

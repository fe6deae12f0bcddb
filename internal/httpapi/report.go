package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MokshitBindal/Aegis-sub000/pkg/reporting"
)

// handleIncidentReport is GET /api/incidents/{id}/report.pdf: renders the
// incident as a PDF via pkg/reporting (query `?format=csv` for the CSV twin).
func (s *Server) handleIncidentReport(w http.ResponseWriter, r *http.Request) {
	incident, ok, err := s.Store.GetIncidentByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}

	format := r.URL.Query().Get("format")
	body, contentType, err := reporting.Render(reporting.IncidentReportRequest{
		Data: reporting.IncidentReportData{
			Incident:    incident,
			GeneratedAt: s.now(),
		},
		Format: format,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render incident report")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

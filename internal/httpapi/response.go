package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MokshitBindal/Aegis-sub000/internal/apierr"
)

// decodeJSON reads and decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeJSON encodes v as the response body with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeAPIError maps the spec §7 error taxonomy to HTTP status codes in one
// place, per the spec's "never per-handler ad hoc" requirement. Unrecognized
// errors (including store/Transient failures) fall back to 500.
func writeAPIError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apierr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apierr.ErrNotPermitted):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apierr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apierr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apierr.ErrFatal):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

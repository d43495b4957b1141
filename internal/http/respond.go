package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/splax/skillsync/internal/domain"
)

const maxJSONBody = 1 << 20

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForKind maps a domain error kind onto an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "permission":
		return http.StatusForbidden
	case "state", "conflict", "capacity":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "transport":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports a service failure with its kind so clients can
// tell state, conflict and capacity failures apart.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	kind := domain.Kind(err)
	status := statusForKind(kind)
	r.recordDomainError(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg, "kind": kind})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

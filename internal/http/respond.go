package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"expenses/internal/core"
	"expenses/internal/kv"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeStoreError answers for a failed service call. Validation problems
// are the caller's fault; anything else is logged and reported as 500.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, core.ErrMissingNamespace),
		errors.Is(err, core.ErrMissingWeekEnding),
		errors.Is(err, core.ErrInvalidWeekEnding),
		errors.Is(err, core.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, kv.ErrTooManyPages):
		slog.ErrorContext(r.Context(), "Listing exceeded page bound", "operation", op, "error", err)
		writeError(w, http.StatusInternalServerError, "listing too large")
	default:
		slog.ErrorContext(r.Context(), "Store operation failed", "operation", op, "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// identity reads sync and weekEnding from the query string, trimmed.
func identity(r *http.Request) (string, string) {
	q := r.URL.Query()
	return strings.TrimSpace(q.Get("sync")), strings.TrimSpace(q.Get("weekEnding"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"expenses/internal/core"
)

type dataResponse struct {
	Sync       string              `json:"sync"`
	WeekEnding string              `json:"weekEnding"`
	Data       *core.ExpenseRecord `json:"data"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getData(w, r)
	case http.MethodPut, http.MethodPost:
		s.putData(w, r)
	case http.MethodDelete:
		s.deleteData(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete)
	}
}

// getData returns one week, or the most recent week when weekEnding is
// omitted. Absence is a normal answer with data null.
func (s *Server) getData(w http.ResponseWriter, r *http.Request) {
	if s.weeks == nil {
		writeError(w, http.StatusInternalServerError, "store not configured")
		return
	}
	sync, weekEnding := identity(r)
	if sync == "" {
		writeError(w, http.StatusBadRequest, core.ErrMissingNamespace.Error())
		return
	}

	var (
		rec *core.ExpenseRecord
		err error
	)
	if weekEnding == "" {
		rec, _, err = s.weeks.MostRecent(r.Context(), sync)
		if rec != nil {
			weekEnding = rec.WeekEnding
		}
	} else {
		rec, _, err = s.weeks.Get(r.Context(), sync, weekEnding)
	}
	if err != nil {
		writeStoreError(w, r, "load week", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Sync: sync, WeekEnding: weekEnding, Data: rec})
}

func (s *Server) putData(w http.ResponseWriter, r *http.Request) {
	if s.weeks == nil {
		writeError(w, http.StatusInternalServerError, "store not configured")
		return
	}
	body, status, err := readRecordBody(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	sync, weekEnding := identity(r)
	// The identity may also travel in the body; the query string wins.
	if sync == "" {
		sync = extraString(body, "sync")
	}
	if weekEnding == "" {
		weekEnding = body.WeekEnding
	}
	delete(body.Extra, "sync")

	rec, err := s.weeks.Save(r.Context(), sync, weekEnding, body)
	if err != nil {
		writeStoreError(w, r, "save week", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "updatedAt": rec.UpdatedAt})
}

func (s *Server) deleteData(w http.ResponseWriter, r *http.Request) {
	if s.weeks == nil {
		writeError(w, http.StatusInternalServerError, "store not configured")
		return
	}
	sync, weekEnding := identity(r)
	if err := s.weeks.Delete(r.Context(), sync, weekEnding); err != nil {
		writeStoreError(w, r, "delete week", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// readRecordBody decodes a JSON object body into a record. On failure it
// returns the status to answer with.
func readRecordBody(w http.ResponseWriter, r *http.Request) (core.ExpenseRecord, int, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ExpenseRecord{}, http.StatusRequestEntityTooLarge, errors.New("body too large")
		}
		return core.ExpenseRecord{}, http.StatusBadRequest, errors.New("unreadable body")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return core.ExpenseRecord{}, http.StatusBadRequest, errors.New("body must be a JSON object")
	}
	rec, err := core.DecodeRecord(raw)
	if err != nil {
		if errors.Is(err, core.ErrInvalidEntry) {
			return core.ExpenseRecord{}, http.StatusBadRequest, err
		}
		return core.ExpenseRecord{}, http.StatusBadRequest, errors.New("invalid JSON")
	}
	return rec, 0, nil
}

func extraString(rec core.ExpenseRecord, field string) string {
	var s string
	if raw, ok := rec.Extra[field]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return strings.TrimSpace(s)
}

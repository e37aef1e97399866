package http

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"expenses/internal/auth"
	"expenses/internal/export/xlsx"
)

// handleWeeks lists one namespace's weeks, or every namespace when sync is
// absent.
func (s *Server) handleWeeks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.weeks == nil {
		writeError(w, http.StatusInternalServerError, "store not configured")
		return
	}

	sync := strings.TrimSpace(r.URL.Query().Get("sync"))
	if sync == "" {
		all, err := s.weeks.ListNamespaces(r.Context())
		if err != nil {
			writeStoreError(w, r, "list namespaces", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": all})
		return
	}

	weeks, err := s.weeks.ListWeeks(r.Context(), sync)
	if err != nil {
		writeStoreError(w, r, "list weeks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": weeks})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.exporter.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "export template not configured")
		return
	}
	if s.weeks == nil {
		writeError(w, http.StatusInternalServerError, "store not configured")
		return
	}

	sync, weekEnding := identity(r)
	rec, ok, err := s.weeks.Get(r.Context(), sync, weekEnding)
	if err != nil {
		writeStoreError(w, r, "load week", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no saved week")
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(*rec, &buf); err != nil {
		slog.ErrorContext(r.Context(), "Export failed", "sync", sync, "weekEnding", weekEnding, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(xlsx.FileName(*rec), `"`, "'")+`"`)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.auth.Enabled() {
		writeError(w, http.StatusNotFound, "login disabled")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	token, err := s.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		slog.WarnContext(r.Context(), "Failed login", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

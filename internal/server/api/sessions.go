// Package api provides the JSON HTTP handlers for live and finished sessions.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

const maxHistoryLimit = 500

// SessionHandler handles HTTP requests for session resources.
// The store is optional; without it only live sessions are served.
type SessionHandler struct {
	registry *session.Registry
	store    *store.Store
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(r *session.Registry, s *store.Store) *SessionHandler {
	return &SessionHandler{registry: r, store: s}
}

// ServeHTTP routes:
//
//	GET    /api/sessions          live sessions
//	GET    /api/sessions/history  finished sessions (?limit=N)
//	GET    /api/sessions/{id}     live or finished session
//	DELETE /api/sessions/{id}     delete a finished session record
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.listLive(w, r)
	case path == "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.listHistory(w, r)
	default:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, path)
		case http.MethodDelete:
			h.delete(w, r, path)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

type liveSessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

type historyResponse struct {
	Sessions []*store.SessionRecord `json:"sessions"`
	Count    int                    `json:"count"`
}

type sessionResponse struct {
	Live    bool                 `json:"live"`
	Session *session.Info        `json:"session,omitempty"`
	Record  *store.SessionRecord `json:"record,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// listLive handles GET /api/sessions.
func (h *SessionHandler) listLive(w http.ResponseWriter, r *http.Request) {
	live := h.registry.List()
	infos := make([]session.Info, len(live))
	for i, s := range live {
		infos[i] = s.Info()
	}
	writeJSON(w, http.StatusOK, liveSessionsResponse{Sessions: infos, Count: len(infos)})
}

// listHistory handles GET /api/sessions/history.
func (h *SessionHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Session history is disabled")
		return
	}

	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if records == nil {
		records = []*store.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Sessions: records, Count: len(records)})
}

// get handles GET /api/sessions/{id}. Live sessions take precedence.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	if s, ok := h.registry.Get(id); ok {
		info := s.Info()
		writeJSON(w, http.StatusOK, sessionResponse{Live: true, Session: &info})
		return
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	rec, err := h.store.Sessions().GetByID(id.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Record: rec})
}

// delete handles DELETE /api/sessions/{id} for finished sessions.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	if _, ok := h.registry.Get(id); ok {
		writeError(w, http.StatusConflict, "Session is still live")
		return
	}

	if h.store == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	if err := h.store.Sessions().Delete(id.String()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// SmoothingSetter applies a new smoothing default for sessions that have not
// started yet. An error means the change was not applied.
type SmoothingSetter func(enabled bool) error

// PersistSmoothing returns a SmoothingSetter that saves the value to s, when
// s is non-nil, and then updates r.
func PersistSmoothing(r *session.Registry, s *store.Store) SmoothingSetter {
	return func(enabled bool) error {
		if s != nil {
			if err := s.Settings().SetBool(store.SettingSmoothingDefault, enabled); err != nil {
				return err
			}
		}
		r.SetSmoothingDefault(enabled)
		return nil
	}
}

// SettingsHandler reads and updates runtime settings. Updates go through the
// same setter as every other control surface.
type SettingsHandler struct {
	registry     *session.Registry
	setSmoothing SmoothingSetter
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(r *session.Registry, set SmoothingSetter) *SettingsHandler {
	return &SettingsHandler{registry: r, setSmoothing: set}
}

type settingsResponse struct {
	SmoothingDefault bool `json:"smoothing_default"`
}

type updateSettingsRequest struct {
	SmoothingDefault *bool `json:"smoothing_default"`
}

// ServeHTTP handles GET and PUT /api/settings.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settingsResponse{SmoothingDefault: h.registry.SmoothingDefault()})
	case http.MethodPut:
		h.update(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SmoothingDefault == nil {
		writeError(w, http.StatusBadRequest, "smoothing_default is required")
		return
	}

	if err := h.setSmoothing(*req.SmoothingDefault); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{SmoothingDefault: *req.SmoothingDefault})
}

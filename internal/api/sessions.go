package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/animal-detection/internal/logging"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
)

type startSessionRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=64,printascii"`
}

// StartSessionHandler запускает новую сессию симулятора. Тело запроса необязательно.
func (h *Handlers) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessions.Start(r.Context(), req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// StopSessionHandler останавливает сессию, история остаётся доступной
func (h *Handlers) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if err := h.sessions.Stop(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    sessionID,
		"state": models.SessionStopped,
	})
}

func (h *Handlers) SimulateHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if err := h.sessions.Simulate(sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// GetHistoryHandler supports ?level=<min danger level>&class=<animal>&limit=<n>.
func (h *Handlers) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	query := r.URL.Query()

	var filter alert.Filter
	if raw := query.Get("level"); raw != "" {
		level, ok := models.ParseDangerLevel(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown danger level: "+raw)
			return
		}
		filter.MinLevel = &level
	}
	if raw := query.Get("class"); raw != "" {
		class := models.AnimalClass(raw)
		if !lo.Contains(models.AnimalClasses, class) {
			writeError(w, http.StatusBadRequest, "unknown animal class: "+raw)
			return
		}
		filter.Class = class
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	records, err := h.sessions.History(sessionID, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

type statsResponse struct {
	models.Stats
	ArchivedFrames *int `json:"archived_frames,omitempty"`
}

func (h *Handlers) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	stats, err := h.sessions.Stats(sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := statsResponse{Stats: stats}
	if h.archive != nil {
		count, err := h.archive.CountFrames(r.Context(), sessionID)
		if err != nil {
			logging.Warn().Err(err).Str("session", sessionID).Msg("failed to count archived frames")
		} else {
			resp.ArchivedFrames = &count
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) UpdateLocationHandler(w http.ResponseWriter, r *http.Request) {
	var fix models.LocationFix
	if err := json.NewDecoder(r.Body).Decode(&fix); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.UpdateLocation(fix); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetModelHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Model())
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
)

// Sessions is the runner as seen by the HTTP layer.
type Sessions interface {
	Start(ctx context.Context, sessionID string) (*models.Session, error)
	Stop(ctx context.Context, sessionID string) error
	Simulate(sessionID string) error
	History(sessionID string, f alert.Filter) ([]models.AlertRecord, error)
	Stats(sessionID string) (models.Stats, error)
	UpdateLocation(fix models.LocationFix) error
	Model() models.ModelInfo
}

// FrameCounter reports how many frames of a session were archived.
type FrameCounter interface {
	CountFrames(ctx context.Context, sessionID string) (int, error)
}

type Handlers struct {
	sessions Sessions
	archive  FrameCounter
	viewers  http.Handler
	validate *validator.Validate
}

// NewHandlers wires the API. archive and viewers may be nil.
func NewHandlers(sessions Sessions, archive FrameCounter, viewers http.Handler) *Handlers {
	return &Handlers{
		sessions: sessions,
		archive:  archive,
		viewers:  viewers,
		validate: validator.New(),
	}
}

func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/sessions", h.StartSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{session_id}", h.StopSessionHandler).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{session_id}/simulate", h.SimulateHandler).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{session_id}/history", h.GetHistoryHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{session_id}/stats", h.GetStatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/location", h.UpdateLocationHandler).Methods(http.MethodPut)
	r.HandleFunc("/model", h.GetModelHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	if h.viewers != nil {
		r.Handle("/ws", h.viewers)
	}

	return r
}

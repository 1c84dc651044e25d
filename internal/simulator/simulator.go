package simulator

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/animal-detection/internal/config"
	"github.com/Capitan-Parrot/animal-detection/internal/location"
	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
	"github.com/Capitan-Parrot/animal-detection/internal/services/detection"
)

// Config is fixed for the lifetime of a simulator.
type Config struct {
	Generator                detection.GeneratorConfig
	Alert                    alert.Config
	DangerZoneFraction       float64
	ModelConfidenceThreshold float64
	HistoryLimit             int
}

// ConfigFrom maps the simulator section of the service config.
func ConfigFrom(s config.Simulator) Config {
	return Config{
		Generator: detection.GeneratorConfigFrom(s),
		Alert: alert.Config{
			HighConfidenceThreshold: s.HighConfidenceThreshold,
			ZoneGate:                s.ZoneGate(),
		},
		DangerZoneFraction:       s.DangerZoneFraction,
		ModelConfidenceThreshold: s.ModelConfidenceThreshold,
		HistoryLimit:             s.HistoryLimit,
	}
}

// Deps are the collaborators a simulator talks to. Nil fields get no-op
// implementations; a nil Random gets a time-seeded source.
type Deps struct {
	Random   detection.RandomSource
	Location location.Source
	Alerts   alert.Sink
	Render   RenderSink
}

// Simulator runs the Generator -> Classifier -> Zone Filter -> Dispatcher
// pipeline once per Tick. All state lives on the instance.
type Simulator struct {
	id         string
	cfg        Config
	generator  *detection.Generator
	model      *detection.Model
	zone       detection.Zone
	dispatcher *alert.Dispatcher
	location   location.Source
	render     RenderSink
	now        func() time.Time

	mu      sync.Mutex
	running bool
	forced  bool
	stats   counters
}

type counters struct {
	ticks          int64
	framesWithHits int64
	detections     int64
	alerts         int64
	dropped        int64
	byClass        map[models.AnimalClass]int64
	byLevel        map[string]int64
	processing     time.Duration
}

func New(id string, cfg Config, deps Deps) *Simulator {
	if deps.Random == nil {
		deps.Random = detection.NewRandomSource(uint64(time.Now().UnixNano()))
	}
	if deps.Location == nil {
		deps.Location = location.None
	}
	if deps.Render == nil {
		deps.Render = DiscardRender
	}

	return &Simulator{
		id:         id,
		cfg:        cfg,
		generator:  detection.NewGenerator(cfg.Generator, deps.Random),
		model:      detection.NewModel(cfg.ModelConfidenceThreshold),
		zone:       detection.Zone{Fraction: cfg.DangerZoneFraction},
		dispatcher: alert.NewDispatcher(cfg.Alert, id, alert.NewHistory(cfg.HistoryLimit), deps.Alerts),
		location:   deps.Location,
		render:     deps.Render,
		now:        time.Now,
		stats: counters{
			byClass: make(map[models.AnimalClass]int64),
			byLevel: make(map[string]int64),
		},
	}
}

func (s *Simulator) ID() string {
	return s.id
}

func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop makes Tick and Dispatch inert. History is kept.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.forced = false
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ForceDetection guarantees at least one detection on the next tick.
// It is refused while stopped.
func (s *Simulator) ForceDetection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.forced = true
	return true
}

// Tick runs one frame of the pipeline and returns the detections it
// produced. A stopped simulator returns nil and changes nothing.
func (s *Simulator) Tick() []models.Detection {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	start := time.Now()
	var raws []detection.RawDetection
	if s.forced {
		raws = s.generator.Force()
		s.forced = false
	} else {
		raws = s.generator.Tick()
	}
	raws = s.model.PostProcess(raws)

	frame := Frame{
		SessionID:   s.id,
		Tick:        s.stats.ticks + 1,
		FrameHeight: s.cfg.Generator.FrameHeight,
		ZoneTop:     s.zone.Top(s.cfg.Generator.FrameHeight),
		Detections:  make([]FrameDetection, 0, len(raws)),
	}

	var loc *models.LocationFix
	if len(raws) > 0 {
		loc, _ = s.location.CurrentLocation()
	}

	detections := make([]models.Detection, 0, len(raws))
	for _, raw := range raws {
		det := models.Detection{
			AnimalClass: raw.AnimalClass,
			Confidence:  raw.Confidence,
			BBox:        raw.BBox,
			DangerLevel: detection.Classify(raw.AnimalClass, raw.Confidence),
			Timestamp:   s.now().UTC(),
		}
		inZone := s.zone.Contains(det.BBox, s.cfg.Generator.FrameHeight)
		_, outcome := s.dispatcher.Dispatch(det, alert.ZoneResultOf(inZone), loc)

		s.record(det, outcome)
		detections = append(detections, det)
		frame.Detections = append(frame.Detections, FrameDetection{Detection: det, InDangerZone: inZone})
	}

	s.stats.ticks++
	if len(detections) > 0 {
		s.stats.framesWithHits++
	}
	elapsed := time.Since(start)
	s.stats.processing += elapsed
	s.mu.Unlock()

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(elapsed.Seconds())

	s.render.Render(frame)
	return detections
}

// record must be called with mu held.
func (s *Simulator) record(det models.Detection, outcome alert.Outcome) {
	s.stats.detections++
	s.stats.byClass[det.AnimalClass]++
	s.stats.byLevel[det.DangerLevel.String()]++
	if outcome == alert.Dispatched {
		s.stats.alerts++
	} else {
		s.stats.dropped++
	}
	metrics.DetectionsTotal.WithLabelValues(string(det.AnimalClass), det.DangerLevel.String()).Inc()
}

// Dispatch runs the zone filter and dispatcher on an externally produced
// detection, using the frame height and location the simulator knows.
// A stopped simulator refuses and returns false.
func (s *Simulator) Dispatch(det models.Detection) (models.AlertRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return models.AlertRecord{}, false
	}

	loc, _ := s.location.CurrentLocation()
	inZone := s.zone.Contains(det.BBox, s.cfg.Generator.FrameHeight)
	rec, outcome := s.dispatcher.Dispatch(det, alert.ZoneResultOf(inZone), loc)
	s.record(det, outcome)
	return rec, outcome == alert.Dispatched
}

// InDangerZone applies the configured zone to a box.
func (s *Simulator) InDangerZone(bbox models.BoundingBox, frameHeight float64) bool {
	return s.zone.Contains(bbox, frameHeight)
}

// History returns a copy of the alert history.
func (s *Simulator) History(f alert.Filter) []models.AlertRecord {
	return s.dispatcher.History().Snapshot(f)
}

func (s *Simulator) Model() models.ModelInfo {
	return s.model.Info()
}

func (s *Simulator) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var avg float64
	if s.stats.ticks > 0 {
		avg = float64(s.stats.processing.Microseconds()) / float64(s.stats.ticks)
	}
	return models.Stats{
		Running:            s.running,
		Ticks:              s.stats.ticks,
		FramesWithHits:     s.stats.framesWithHits,
		TotalDetections:    s.stats.detections,
		AlertsDispatched:   s.stats.alerts,
		Dropped:            s.stats.dropped,
		ByClass:            lo.Assign(s.stats.byClass),
		ByLevel:            lo.Assign(s.stats.byLevel),
		AvgProcessingMicro: avg,
	}
}

package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

// ZoneResult is what the caller knows about the detection's position.
type ZoneResult uint8

const (
	// ZoneUnchecked means the caller supplied no zone information.
	ZoneUnchecked ZoneResult = iota
	ZoneInside
	ZoneOutside
)

// ZoneResultOf converts a zone filter answer.
func ZoneResultOf(inside bool) ZoneResult {
	if inside {
		return ZoneInside
	}
	return ZoneOutside
}

// Outcome is the terminal state of a detection after Dispatch.
type Outcome uint8

const (
	Dispatched Outcome = iota
	DroppedLowConfidence
	DroppedOutsideZone
)

func (o Outcome) String() string {
	switch o {
	case Dispatched:
		return "dispatched"
	case DroppedLowConfidence:
		return "low_confidence"
	case DroppedOutsideZone:
		return "outside_zone"
	default:
		return "unknown"
	}
}

type Config struct {
	// HighConfidenceThreshold must be strictly exceeded for an alert.
	HighConfidenceThreshold float64
	// ZoneGate requires the detection not to be known outside the zone.
	ZoneGate bool
}

// Dispatcher turns qualifying detections into alert records. Every record is
// appended to the history and handed to the sink exactly once.
type Dispatcher struct {
	cfg       Config
	sessionID string
	history   *History
	sink      Sink
	now       func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewDispatcher(cfg Config, sessionID string, history *History, sink Sink) *Dispatcher {
	if sink == nil {
		sink = Discard
	}
	return &Dispatcher{
		cfg:       cfg,
		sessionID: sessionID,
		history:   history,
		sink:      sink,
		now:       time.Now,
	}
}

// History returns the history the dispatcher appends to.
func (d *Dispatcher) History() *History {
	return d.history
}

// Dispatch decides whether det becomes an alert. Dropped detections leave
// no trace: no record, no sink call. A nil location is recorded as absent.
func (d *Dispatcher) Dispatch(det models.Detection, zone ZoneResult, loc *models.LocationFix) (models.AlertRecord, Outcome) {
	if det.Confidence <= d.cfg.HighConfidenceThreshold {
		metrics.DetectionsDropped.WithLabelValues(DroppedLowConfidence.String()).Inc()
		return models.AlertRecord{}, DroppedLowConfidence
	}
	if d.cfg.ZoneGate && zone == ZoneOutside {
		metrics.DetectionsDropped.WithLabelValues(DroppedOutsideZone.String()).Inc()
		return models.AlertRecord{}, DroppedOutsideZone
	}

	var location *models.LocationFix
	if loc != nil {
		location = loc.Clone()
	}

	// stamping and appending under one lock keeps history ordered by
	// DispatchedAt; wall clock steps backwards are clamped to the last stamp
	d.mu.Lock()
	stamp := d.now().UTC()
	if stamp.Before(d.last) {
		stamp = d.last
	}
	d.last = stamp
	rec := models.AlertRecord{
		ID:           uuid.NewString(),
		SessionID:    d.sessionID,
		Detection:    det,
		Location:     location,
		DispatchedAt: stamp,
	}
	evicted := d.history.append(rec)
	d.mu.Unlock()

	metrics.AlertsDispatched.WithLabelValues(det.DangerLevel.String()).Inc()
	if !evicted {
		metrics.HistorySize.Inc()
	}

	d.sink.Notify(rec)
	return rec, Dispatched
}

package alert

import (
	"sync"

	"github.com/Capitan-Parrot/animal-detection/internal/logging"
	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

// Sink receives dispatched alerts. Implementations own their failures:
// the dispatcher neither waits for nor inspects the outcome.
type Sink interface {
	Notify(rec models.AlertRecord)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec models.AlertRecord)

func (f SinkFunc) Notify(rec models.AlertRecord) { f(rec) }

// Discard drops every alert.
var Discard Sink = SinkFunc(func(models.AlertRecord) {})

// LogSink writes an emergency line per alert. It stands in for SMS, traffic
// management and vehicle broadcast integrations.
type LogSink struct{}

func (LogSink) Notify(rec models.AlertRecord) {
	ev := logging.Warn().
		Str("alert_id", rec.ID).
		Str("session", rec.SessionID).
		Str("animal", string(rec.Detection.AnimalClass)).
		Str("danger_level", rec.Detection.DangerLevel.String()).
		Float64("confidence", rec.Detection.Confidence).
		Time("dispatched_at", rec.DispatchedAt)
	if rec.Location != nil {
		ev = ev.Float64("lat", rec.Location.Latitude).Float64("lon", rec.Location.Longitude)
		if rec.Location.Speed != nil {
			ev = ev.Float64("speed", *rec.Location.Speed)
		}
	}
	ev.Msg("EMERGENCY ALERT: animal detected in danger zone")
}

// MultiSink fans an alert out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Notify(rec models.AlertRecord) {
	for _, s := range m {
		s.Notify(rec)
	}
}

// AsyncSink queues alerts and delivers them from its own goroutine so the
// caller never blocks. A full queue drops the delivery.
type AsyncSink struct {
	name  string
	next  Sink
	queue chan models.AlertRecord
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsyncSink(name string, next Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 64
	}
	s := &AsyncSink{
		name:  name,
		next:  next,
		queue: make(chan models.AlertRecord, buffer),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	for rec := range s.queue {
		s.next.Notify(rec)
	}
}

func (s *AsyncSink) Notify(rec models.AlertRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- rec:
	default:
		metrics.SinkQueueDrops.WithLabelValues(s.name).Inc()
		logging.Warn().Str("sink", s.name).Str("alert_id", rec.ID).Msg("alert queue full, delivery skipped")
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

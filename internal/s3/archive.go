package s3

import (
	"context"
	"sync"
	"time"

	"github.com/Capitan-Parrot/animal-detection/internal/logging"
	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/simulator"
)

const (
	saveTimeout = 10 * time.Second
	retries     = 3
)

// FrameStore is the part of Client the archive needs.
type FrameStore interface {
	SaveFrame(ctx context.Context, frame simulator.Frame) error
}

// Archive is a render sink that uploads frames with detections. Uploads run
// on a worker goroutine; when the queue is full the frame is skipped.
type Archive struct {
	store FrameStore
	queue chan simulator.Frame
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewArchive(store FrameStore, buffer int) *Archive {
	if buffer <= 0 {
		buffer = 100
	}
	a := &Archive{
		store: store,
		queue: make(chan simulator.Frame, buffer),
	}
	a.wg.Add(1)
	go a.worker()
	return a
}

func (a *Archive) Render(frame simulator.Frame) {
	if len(frame.Detections) == 0 {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.queue <- frame:
	default:
		metrics.SinkQueueDrops.WithLabelValues("s3-archive").Inc()
		logging.Warn().Str("session", frame.SessionID).Int64("tick", frame.Tick).Msg("archive queue full, frame skipped")
	}
}

func (a *Archive) worker() {
	defer a.wg.Done()
	for frame := range a.queue {
		a.saveWithRetries(frame)
	}
}

func (a *Archive) saveWithRetries(frame simulator.Frame) {
	for attempt := 1; attempt <= retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		err := a.store.SaveFrame(ctx, frame)
		cancel()
		if err == nil {
			return
		}
		logging.Warn().Err(err).Str("session", frame.SessionID).Int64("tick", frame.Tick).
			Int("attempt", attempt).Msg("archive save failed")
	}
	logging.Error().Str("session", frame.SessionID).Int64("tick", frame.Tick).Msg("failed to archive frame")
}

// Close stops accepting frames and waits for pending uploads.
func (a *Archive) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

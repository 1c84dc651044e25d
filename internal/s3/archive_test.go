package s3

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/simulator"
)

type fakeStore struct {
	mu       sync.Mutex
	saved    []simulator.Frame
	failures int
	calls    int
}

func (f *fakeStore) SaveFrame(_ context.Context, frame simulator.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("minio unavailable")
	}
	f.saved = append(f.saved, frame)
	return nil
}

func frameWith(tick int64, n int) simulator.Frame {
	frame := simulator.Frame{SessionID: "s1", Tick: tick, FrameHeight: 600}
	for i := 0; i < n; i++ {
		frame.Detections = append(frame.Detections, simulator.FrameDetection{
			Detection: models.Detection{AnimalClass: models.AnimalCow, Confidence: 0.8},
		})
	}
	return frame
}

func TestArchiveSkipsEmptyFrames(t *testing.T) {
	store := &fakeStore{}
	a := NewArchive(store, 4)

	a.Render(frameWith(1, 0))
	a.Render(frameWith(2, 1))
	a.Render(frameWith(3, 2))
	a.Close()

	assert.Len(t, store.saved, 2)
	assert.Equal(t, int64(2), store.saved[0].Tick)
}

func TestArchiveRetries(t *testing.T) {
	store := &fakeStore{failures: 2}
	a := NewArchive(store, 4)

	a.Render(frameWith(1, 1))
	a.Close()

	assert.Equal(t, 3, store.calls)
	assert.Len(t, store.saved, 1)
}

func TestArchiveGivesUp(t *testing.T) {
	store := &fakeStore{failures: 10}
	a := NewArchive(store, 4)

	a.Render(frameWith(1, 1))
	a.Close()

	assert.Equal(t, retries, store.calls)
	assert.Empty(t, store.saved)
}

func TestArchiveRenderAfterClose(t *testing.T) {
	store := &fakeStore{}
	a := NewArchive(store, 4)
	a.Close()
	a.Close()

	a.Render(frameWith(1, 1))
	assert.Zero(t, store.calls)
}

func TestFrameKey(t *testing.T) {
	assert.Equal(t, "abc/00000042.json", frameKey("abc", 42))
}

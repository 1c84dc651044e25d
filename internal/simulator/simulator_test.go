package simulator

import (
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Capitan-Parrot/animal-detection/internal/config"
	"github.com/Capitan-Parrot/animal-detection/internal/location"
	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/services/alert"
	"github.com/Capitan-Parrot/animal-detection/internal/services/detection"
)

// Draw order per tick: gate, second-detection gate, class, confidence,
// width, height, x, y. With the default config (11 classes, confidence
// 0.6-1.0, 800x600 frame, zone top at 420):
var (
	elephantInZone = []float64{0.0, 0.9, 0.3, 0.875, 0.5, 0.5, 0.5, 0.9}
	cowInZone      = []float64{0.0, 0.9, 0.0, 0.375, 0.5, 0.5, 0.5, 0.9}
	dogAboveZone   = []float64{0.0, 0.9, 0.1, 0.975, 0.5, 0.5, 0.5, 0.0}
	quietTick      = []float64{0.99}
)

type alertRecorder struct {
	mu      sync.Mutex
	records []models.AlertRecord
}

func (a *alertRecorder) Notify(rec models.AlertRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

type frameRecorder struct {
	frames []Frame
}

func (f *frameRecorder) Render(frame Frame) {
	f.frames = append(f.frames, frame)
}

type fixture struct {
	sim    *Simulator
	src    *detection.SequenceSource
	alerts *alertRecorder
	frames *frameRecorder
	loc    *location.Latest
}

func newFixture(t *testing.T, values ...float64) *fixture {
	t.Helper()
	f := &fixture{
		src:    detection.NewSequenceSource(values...),
		alerts: &alertRecorder{},
		frames: &frameRecorder{},
		loc:    location.NewLatest(),
	}
	f.sim = New("test-session", ConfigFrom(config.Default().Simulator), Deps{
		Random:   f.src,
		Location: f.loc,
		Alerts:   f.alerts,
		Render:   f.frames,
	})
	return f
}

func TestElephantInZoneDispatches(t *testing.T) {
	f := newFixture(t, elephantInZone...)
	f.sim.Start()

	dets := f.sim.Tick()
	require.Len(t, dets, 1)
	d := dets[0]
	assert.Equal(t, models.AnimalElephant, d.AnimalClass)
	assert.InDelta(t, 0.95, d.Confidence, 1e-9)
	assert.Equal(t, models.DangerCritical, d.DangerLevel)
	assert.True(t, f.sim.InDangerZone(d.BBox, 600))

	history := f.sim.History(alert.Filter{})
	require.Len(t, history, 1)
	assert.Equal(t, d, history[0].Detection)
	assert.Nil(t, history[0].Location)
	require.Len(t, f.alerts.records, 1)
	assert.Equal(t, history[0].ID, f.alerts.records[0].ID)
}

func TestCowDeescalatedNotDispatched(t *testing.T) {
	f := newFixture(t, cowInZone...)
	f.sim.Start()

	dets := f.sim.Tick()
	require.Len(t, dets, 1)
	assert.Equal(t, models.AnimalCow, dets[0].AnimalClass)
	assert.InDelta(t, 0.75, dets[0].Confidence, 1e-9)
	assert.Equal(t, models.DangerMedium, dets[0].DangerLevel)
	assert.True(t, f.sim.InDangerZone(dets[0].BBox, 600))

	assert.Empty(t, f.sim.History(alert.Filter{}))
	assert.Empty(t, f.alerts.records)
}

func TestDogAboveZoneNotDispatched(t *testing.T) {
	f := newFixture(t, dogAboveZone...)
	f.sim.Start()

	dets := f.sim.Tick()
	require.Len(t, dets, 1)
	assert.Equal(t, models.AnimalDog, dets[0].AnimalClass)
	assert.InDelta(t, 0.99, dets[0].Confidence, 1e-9)
	assert.Equal(t, models.DangerMedium, dets[0].DangerLevel)
	assert.False(t, f.sim.InDangerZone(dets[0].BBox, 600))

	assert.Empty(t, f.sim.History(alert.Filter{}))
	assert.Empty(t, f.alerts.records)
}

func TestZoneGateDisabledDispatchesOnConfidence(t *testing.T) {
	src := detection.NewSequenceSource(dogAboveZone...)
	cfg := ConfigFrom(config.Default().Simulator)
	cfg.Alert.ZoneGate = false
	alerts := &alertRecorder{}
	sim := New("no-gate", cfg, Deps{Random: src, Alerts: alerts})
	sim.Start()

	sim.Tick()
	assert.Len(t, sim.History(alert.Filter{}), 1)
	assert.Len(t, alerts.records, 1)
}

func TestStoppedSimulatorIsInert(t *testing.T) {
	f := newFixture(t, elephantInZone...)

	assert.Empty(t, f.sim.Tick())
	assert.Zero(t, f.src.Drawn())
	assert.Empty(t, f.frames.frames)

	rec, ok := f.sim.Dispatch(models.Detection{AnimalClass: models.AnimalElephant, Confidence: 0.99,
		BBox: models.BoundingBox{Y: 500, Width: 10, Height: 10}, DangerLevel: models.DangerCritical})
	assert.False(t, ok)
	assert.Empty(t, rec.ID)
	assert.Empty(t, f.sim.History(alert.Filter{}))
	assert.False(t, f.sim.ForceDetection())

	f.sim.Start()
	f.sim.Tick()
	f.sim.Stop()
	assert.Empty(t, f.sim.Tick())
	assert.Len(t, f.sim.History(alert.Filter{}), 1)
	assert.False(t, f.sim.Running())
}

func TestRenderCalledEveryTick(t *testing.T) {
	f := newFixture(t, append(append([]float64{}, quietTick...), elephantInZone...)...)
	f.sim.Start()

	assert.Empty(t, f.sim.Tick())
	assert.Len(t, f.sim.Tick(), 1)

	require.Len(t, f.frames.frames, 2)
	assert.Empty(t, f.frames.frames[0].Detections)
	assert.Equal(t, int64(1), f.frames.frames[0].Tick)

	frame := f.frames.frames[1]
	assert.Equal(t, int64(2), frame.Tick)
	assert.Equal(t, "test-session", frame.SessionID)
	assert.Equal(t, 600.0, frame.FrameHeight)
	assert.InDelta(t, 420, frame.ZoneTop, 1e-9)
	require.Len(t, frame.Detections, 1)
	assert.True(t, frame.Detections[0].InDangerZone)
}

func TestEmptyFrameEncodesEmptyDetections(t *testing.T) {
	f := newFixture(t, quietTick...)
	f.sim.Start()
	ticks := testutil.ToFloat64(metrics.TicksTotal)

	assert.Empty(t, f.sim.Tick())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TicksTotal)-ticks)

	require.Len(t, f.frames.frames, 1)
	frame := f.frames.frames[0]
	assert.NotNil(t, frame.Detections)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"detections":[]`)
}

func TestForceDetection(t *testing.T) {
	// forced tick skips the gate draw, so the elephant sequence starts at the second gate
	f := newFixture(t, elephantInZone[1:]...)
	f.sim.Start()

	require.True(t, f.sim.ForceDetection())
	dets := f.sim.Tick()
	require.Len(t, dets, 1)
	assert.Equal(t, models.AnimalElephant, dets[0].AnimalClass)
	assert.Equal(t, 7, f.src.Drawn())
}

func TestLocationEnrichment(t *testing.T) {
	f := newFixture(t, elephantInZone...)
	f.sim.Start()
	speed := 60.0
	require.NoError(t, f.loc.Update(models.LocationFix{Latitude: 28.61, Longitude: 77.2, Speed: &speed}))

	f.sim.Tick()

	history := f.sim.History(alert.Filter{})
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Location)
	assert.Equal(t, 28.61, history[0].Location.Latitude)
	assert.Equal(t, 60.0, *history[0].Location.Speed)
}

func TestHistoryGrowsWithQualifyingDispatches(t *testing.T) {
	f := newFixture(t, elephantInZone...)
	f.sim.Start()

	const n = 25
	for i := 0; i < n; i++ {
		f.sim.Tick()
	}

	history := f.sim.History(alert.Filter{})
	require.Len(t, history, n)
	for i := 0; i+1 < n; i++ {
		assert.False(t, history[i+1].DispatchedAt.Before(history[i].DispatchedAt))
	}
}

func TestStats(t *testing.T) {
	seq := append(append(append([]float64{}, elephantInZone...), cowInZone...), quietTick...)
	f := newFixture(t, seq...)
	f.sim.Start()

	f.sim.Tick()
	f.sim.Tick()
	f.sim.Tick()

	s := f.sim.Stats()
	assert.True(t, s.Running)
	assert.Equal(t, int64(3), s.Ticks)
	assert.Equal(t, int64(2), s.FramesWithHits)
	assert.Equal(t, int64(2), s.TotalDetections)
	assert.Equal(t, int64(1), s.AlertsDispatched)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, int64(1), s.ByClass[models.AnimalElephant])
	assert.Equal(t, int64(1), s.ByClass[models.AnimalCow])
	assert.Equal(t, int64(1), s.ByLevel["critical"])
	assert.Equal(t, int64(1), s.ByLevel["medium"])

	s.ByClass[models.AnimalCat] = 99
	assert.Zero(t, f.sim.Stats().ByClass[models.AnimalCat])
}

func TestModelInfo(t *testing.T) {
	f := newFixture(t)
	info := f.sim.Model()
	assert.Equal(t, 0.5, info.ConfidenceThreshold)
	assert.Equal(t, 416, info.InputWidth)
}

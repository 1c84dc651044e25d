package simulator

import "github.com/Capitan-Parrot/animal-detection/internal/models"

// FrameDetection is a detection plus the zone filter's verdict, which the
// presentation layer uses to color the box.
type FrameDetection struct {
	models.Detection
	InDangerZone bool `json:"in_danger_zone"`
}

// Frame is everything one tick produced, handed to render sinks.
type Frame struct {
	SessionID   string           `json:"session_id"`
	Tick        int64            `json:"tick"`
	FrameHeight float64          `json:"frame_height"`
	ZoneTop     float64          `json:"zone_top"`
	Detections  []FrameDetection `json:"detections"`
}

// RenderSink receives every frame, empty ones included. Implementations
// must not block the tick.
type RenderSink interface {
	Render(frame Frame)
}

type RenderFunc func(frame Frame)

func (f RenderFunc) Render(frame Frame) { f(frame) }

var DiscardRender RenderSink = RenderFunc(func(Frame) {})

// RenderFanout hands each frame to every sink in order.
type RenderFanout []RenderSink

func (r RenderFanout) Render(frame Frame) {
	for _, sink := range r {
		sink.Render(frame)
	}
}

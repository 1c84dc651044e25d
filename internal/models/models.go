package models

import (
	"strings"
	"time"
)

// AnimalClass is one of the animal labels the simulated model can emit.
type AnimalClass string

const (
	AnimalCow      AnimalClass = "cow"
	AnimalDog      AnimalClass = "dog"
	AnimalDeer     AnimalClass = "deer"
	AnimalElephant AnimalClass = "elephant"
	AnimalGoat     AnimalClass = "goat"
	AnimalWildBoar AnimalClass = "wild_boar"
	AnimalMonkey   AnimalClass = "monkey"
	AnimalCat      AnimalClass = "cat"
	AnimalHorse    AnimalClass = "horse"
	AnimalSheep    AnimalClass = "sheep"
	AnimalTiger    AnimalClass = "tiger"
)

// AnimalClasses is the closed set, in the order the generator samples from.
var AnimalClasses = []AnimalClass{
	AnimalCow,
	AnimalDog,
	AnimalDeer,
	AnimalElephant,
	AnimalGoat,
	AnimalWildBoar,
	AnimalMonkey,
	AnimalCat,
	AnimalHorse,
	AnimalSheep,
	AnimalTiger,
}

// DangerLevel is ordered by severity, so levels can be compared with < and >.
type DangerLevel int

const (
	DangerLow DangerLevel = iota
	DangerMedium
	DangerHigh
	DangerCritical
)

var dangerNames = map[DangerLevel]string{
	DangerLow:      "low",
	DangerMedium:   "medium",
	DangerHigh:     "high",
	DangerCritical: "critical",
}

func (d DangerLevel) String() string {
	if name, ok := dangerNames[d]; ok {
		return name
	}
	return "unknown"
}

func (d DangerLevel) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DangerLevel) UnmarshalText(text []byte) error {
	level, ok := ParseDangerLevel(string(text))
	if !ok {
		*d = DangerMedium
		return nil
	}
	*d = level
	return nil
}

// ParseDangerLevel accepts the lower-case names produced by String.
func ParseDangerLevel(s string) (DangerLevel, bool) {
	for level, name := range dangerNames {
		if strings.EqualFold(name, s) {
			return level, true
		}
	}
	return DangerMedium, false
}

// BoundingBox is frame-relative. Coordinates are not clamped to the frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bottom returns the y coordinate of the lower edge.
func (b BoundingBox) Bottom() float64 {
	return b.Y + b.Height
}

// Detection is one simulated sighting. It is never mutated after creation.
type Detection struct {
	AnimalClass AnimalClass `json:"animal_class"`
	Confidence  float64     `json:"confidence"`
	BBox        BoundingBox `json:"bbox"`
	DangerLevel DangerLevel `json:"danger_level"`
	Timestamp   time.Time   `json:"timestamp"`
}

// LocationFix is supplied by an external geolocation source.
type LocationFix struct {
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,gte=0"`
}

// Clone returns a copy that shares no pointers with f.
func (f LocationFix) Clone() *LocationFix {
	if f.Accuracy != nil {
		accuracy := *f.Accuracy
		f.Accuracy = &accuracy
	}
	if f.Speed != nil {
		speed := *f.Speed
		f.Speed = &speed
	}
	return &f
}

// AlertRecord is appended to the detection history for every dispatched alert.
type AlertRecord struct {
	ID           string       `json:"id"`
	SessionID    string       `json:"session_id"`
	Detection    Detection    `json:"detection"`
	Location     *LocationFix `json:"location,omitempty"`
	DispatchedAt time.Time    `json:"dispatched_at"`
}

// ModelInfo describes the simulated YOLO network shown in the demo.
type ModelInfo struct {
	Name                string  `json:"name"`
	Layers              int     `json:"layers"`
	Classes             int     `json:"classes"`
	InputWidth          int     `json:"input_width"`
	InputHeight         int     `json:"input_height"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	NMSThreshold        float64 `json:"nms_threshold"`
	Loaded              bool    `json:"loaded"`
}

type CommandAction string

const (
	CommandStart    CommandAction = "start"
	CommandStop     CommandAction = "stop"
	CommandSimulate CommandAction = "simulate"
	CommandLocation CommandAction = "location"
)

// SessionCommand is the payload of the commands topic.
type SessionCommand struct {
	SessionID string        `json:"session_id"`
	Action    CommandAction `json:"action"`
	Location  *LocationFix  `json:"location,omitempty"`
}

type SessionState string

const (
	SessionRunning SessionState = "running"
	SessionStopped SessionState = "stopped"
)

// Session is a persisted simulator run.
type Session struct {
	ID          string       `json:"id"`
	State       SessionState `json:"state"`
	FrameWidth  int          `json:"frame_width"`
	FrameHeight int          `json:"frame_height"`
	Ticks       int64        `json:"ticks"`
	Detections  int64        `json:"detections"`
	Alerts      int64        `json:"alerts"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Heartbeat is published periodically for every running session.
type Heartbeat struct {
	SessionID  string       `json:"session_id"`
	State      SessionState `json:"state"`
	Ticks      int64        `json:"ticks"`
	Detections int64        `json:"detections"`
	Alerts     int64        `json:"alerts"`
	TimeStamp  time.Time    `json:"timestamp"`
}

// Stats summarizes a simulator's activity since it was created.
type Stats struct {
	Running            bool                  `json:"running"`
	Ticks              int64                 `json:"ticks"`
	FramesWithHits     int64                 `json:"frames_with_detections"`
	TotalDetections    int64                 `json:"total_detections"`
	AlertsDispatched   int64                 `json:"alerts_dispatched"`
	Dropped            int64                 `json:"dropped"`
	ByClass            map[AnimalClass]int64 `json:"by_class"`
	ByLevel            map[string]int64      `json:"by_level"`
	AvgProcessingMicro float64               `json:"avg_processing_us"`
}

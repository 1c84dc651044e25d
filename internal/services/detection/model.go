package detection

import (
	"github.com/samber/lo"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

// Model stands in for the YOLO network of the demo page. It carries the
// metadata shown to viewers and the post-processing threshold.
type Model struct {
	info models.ModelInfo
}

func NewModel(confidenceThreshold float64) *Model {
	return &Model{info: models.ModelInfo{
		Name:                "YOLOv3 (simulated)",
		Layers:              106,
		Classes:             80,
		InputWidth:          416,
		InputHeight:         416,
		ConfidenceThreshold: confidenceThreshold,
		NMSThreshold:        0.4,
		Loaded:              true,
	}}
}

func (m *Model) Info() models.ModelInfo {
	return m.info
}

// PostProcess drops detections under the confidence threshold. Non-maximum
// suppression is a pass-through: generated boxes are never merged.
func (m *Model) PostProcess(raw []RawDetection) []RawDetection {
	if len(raw) == 0 {
		return raw
	}
	return lo.Filter(raw, func(d RawDetection, _ int) bool {
		return d.Confidence >= m.info.ConfidenceThreshold
	})
}

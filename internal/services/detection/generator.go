package detection

import (
	"github.com/Capitan-Parrot/animal-detection/internal/config"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

// RawDetection is a generator draw before it has been classified.
type RawDetection struct {
	AnimalClass models.AnimalClass
	Confidence  float64
	BBox        models.BoundingBox
}

// GeneratorConfig bounds what the generator may produce.
type GeneratorConfig struct {
	DetectionProbability       float64
	SecondDetectionProbability float64
	ConfidenceMin              float64
	ConfidenceMax              float64
	FrameWidth                 float64
	FrameHeight                float64
	BoxWidthMin                float64
	BoxWidthMax                float64
	BoxHeightMin               float64
	BoxHeightMax               float64
	Classes                    []models.AnimalClass
}

// GeneratorConfigFrom maps the simulator section of the service config.
func GeneratorConfigFrom(s config.Simulator) GeneratorConfig {
	return GeneratorConfig{
		DetectionProbability:       s.DetectionProbability,
		SecondDetectionProbability: s.SecondDetectionProbability,
		ConfidenceMin:              s.ConfidenceMin,
		ConfidenceMax:              s.ConfidenceMax,
		FrameWidth:                 s.FrameWidth,
		FrameHeight:                s.FrameHeight,
		BoxWidthMin:                s.BoxWidthMin,
		BoxWidthMax:                s.BoxWidthMax,
		BoxHeightMin:               s.BoxHeightMin,
		BoxHeightMax:               s.BoxHeightMax,
		Classes:                    models.AnimalClasses,
	}
}

// Generator produces random sightings. It has no side effects beyond
// consuming values from its RandomSource.
type Generator struct {
	cfg GeneratorConfig
	rnd RandomSource
}

func NewGenerator(cfg GeneratorConfig, rnd RandomSource) *Generator {
	if len(cfg.Classes) == 0 {
		cfg.Classes = models.AnimalClasses
	}
	return &Generator{cfg: cfg, rnd: rnd}
}

// Tick draws the per-tick gate and, when it passes, one or two detections.
//
// Draw order: gate, second-detection gate, then for each detection
// class, confidence, width, height, x, y.
func (g *Generator) Tick() []RawDetection {
	if g.rnd.Float64() >= g.cfg.DetectionProbability {
		return nil
	}
	return g.burst()
}

// Force skips the per-tick gate and always produces at least one detection.
func (g *Generator) Force() []RawDetection {
	return g.burst()
}

func (g *Generator) burst() []RawDetection {
	count := 1
	if g.rnd.Float64() < g.cfg.SecondDetectionProbability {
		count = 2
	}

	out := make([]RawDetection, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, g.sample())
	}
	return out
}

func (g *Generator) sample() RawDetection {
	classes := g.cfg.Classes
	idx := int(g.rnd.Float64() * float64(len(classes)))
	if idx >= len(classes) {
		idx = len(classes) - 1
	}

	confidence := g.between(g.cfg.ConfidenceMin, g.cfg.ConfidenceMax)
	width := g.between(g.cfg.BoxWidthMin, g.cfg.BoxWidthMax)
	height := g.between(g.cfg.BoxHeightMin, g.cfg.BoxHeightMax)

	return RawDetection{
		AnimalClass: classes[idx],
		Confidence:  confidence,
		BBox: models.BoundingBox{
			X:      g.rnd.Float64() * (g.cfg.FrameWidth - width),
			Y:      g.rnd.Float64() * (g.cfg.FrameHeight - height),
			Width:  width,
			Height: height,
		},
	}
}

func (g *Generator) between(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}

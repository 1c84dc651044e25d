package detection

import (
	"math/rand/v2"
	"sync"
)

// RandomSource supplies uniform floats in [0,1).
type RandomSource interface {
	Float64() float64
}

// NewRandomSource returns a seeded PCG source. Two sources built with the
// same seed produce the same sequence.
func NewRandomSource(seed uint64) RandomSource {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// SequenceSource replays a fixed list of values, cycling when exhausted.
// It is meant for tests that need an exact detection.
type SequenceSource struct {
	values []float64
	pos    int
}

func NewSequenceSource(values ...float64) *SequenceSource {
	return &SequenceSource{values: values}
}

func (s *SequenceSource) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.pos%len(s.values)]
	s.pos++
	return v
}

// Drawn reports how many values have been consumed.
func (s *SequenceSource) Drawn() int {
	return s.pos
}

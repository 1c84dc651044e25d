package alert

import (
	"sync"

	"github.com/samber/lo"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

// History is the append-only, in-memory list of dispatched alerts.
// Insertion order is chronological order.
type History struct {
	mu      sync.RWMutex
	records []models.AlertRecord
	limit   int
}

// NewHistory returns a history holding at most limit records; limit <= 0
// means unbounded. When full, the oldest record is evicted.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// append reports whether the oldest record was evicted to make room.
func (h *History) append(rec models.AlertRecord) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, rec)
	if h.limit > 0 && len(h.records) > h.limit {
		h.records = append(h.records[:0], h.records[len(h.records)-h.limit:]...)
		return true
	}
	return false
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Filter narrows a history query. Zero value matches everything.
type Filter struct {
	MinLevel *models.DangerLevel
	Class    models.AnimalClass
	// Limit keeps only the most recent N matches.
	Limit int
}

func (f Filter) match(rec models.AlertRecord) bool {
	if f.MinLevel != nil && rec.Detection.DangerLevel < *f.MinLevel {
		return false
	}
	if f.Class != "" && rec.Detection.AnimalClass != f.Class {
		return false
	}
	return true
}

// Snapshot returns a copy of the matching records, oldest first.
func (h *History) Snapshot(f Filter) []models.AlertRecord {
	h.mu.RLock()
	out := lo.Filter(h.records, func(rec models.AlertRecord, _ int) bool {
		return f.match(rec)
	})
	h.mu.RUnlock()

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

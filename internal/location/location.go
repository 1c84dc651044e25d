package location

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

var validate = validator.New()

var ErrInvalidFix = errors.New("invalid location fix")

// Source is polled by the simulator for the vehicle's latest position.
type Source interface {
	CurrentLocation() (*models.LocationFix, bool)
}

// Latest keeps the most recent fix pushed by an external geolocation feed.
type Latest struct {
	mu        sync.RWMutex
	fix       *models.LocationFix
	updatedAt time.Time
}

func NewLatest() *Latest {
	return &Latest{}
}

// Update validates and stores a fix, replacing the previous one.
func (l *Latest) Update(fix models.LocationFix) error {
	if err := Validate(fix); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.fix = fix.Clone()
	l.updatedAt = time.Now()
	return nil
}

// CurrentLocation returns a copy of the latest fix.
func (l *Latest) CurrentLocation() (*models.LocationFix, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fix == nil {
		return nil, false
	}
	return l.fix.Clone(), true
}

// UpdatedAt is the zero time until the first fix arrives.
func (l *Latest) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updatedAt
}

// Clear forgets the stored fix.
func (l *Latest) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fix = nil
	l.updatedAt = time.Time{}
}

// Validate checks coordinate ranges and non-negative accuracy and speed.
func Validate(fix models.LocationFix) error {
	if err := validate.Struct(fix); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFix, err)
	}
	return nil
}

// None never has a fix.
var None Source = noneSource{}

type noneSource struct{}

func (noneSource) CurrentLocation() (*models.LocationFix, bool) { return nil, false }

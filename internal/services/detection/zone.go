package detection

import "github.com/Capitan-Parrot/animal-detection/internal/models"

// Zone is the horizontal band from Fraction*frameHeight down to the bottom
// of the frame. Horizontal position is ignored.
type Zone struct {
	Fraction float64
}

// Top returns the y coordinate of the zone's upper boundary.
func (z Zone) Top(frameHeight float64) float64 {
	return z.Fraction * frameHeight
}

// Contains reports whether the box's bottom edge is strictly below the zone top.
func (z Zone) Contains(bbox models.BoundingBox, frameHeight float64) bool {
	return bbox.Bottom() > z.Top(frameHeight)
}

// InDangerZone is Zone{Fraction: fraction}.Contains(bbox, frameHeight).
func InDangerZone(bbox models.BoundingBox, frameHeight, fraction float64) bool {
	return Zone{Fraction: fraction}.Contains(bbox, frameHeight)
}

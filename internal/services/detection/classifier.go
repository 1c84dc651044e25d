package detection

import "github.com/Capitan-Parrot/animal-detection/internal/models"

const (
	escalateAbove   = 0.9
	deescalateBelow = 0.8
)

var baseDanger = map[models.AnimalClass]models.DangerLevel{
	models.AnimalElephant: models.DangerCritical,
	models.AnimalTiger:    models.DangerCritical,
	models.AnimalWildBoar: models.DangerHigh,
	models.AnimalCow:      models.DangerHigh,
	models.AnimalDeer:     models.DangerHigh,
	models.AnimalHorse:    models.DangerHigh,
	models.AnimalDog:      models.DangerMedium,
	models.AnimalGoat:     models.DangerMedium,
	models.AnimalSheep:    models.DangerMedium,
	models.AnimalCat:      models.DangerLow,
	models.AnimalMonkey:   models.DangerLow,
}

// BaseDanger returns the static level for a class. Unknown classes are Medium.
func BaseDanger(class models.AnimalClass) models.DangerLevel {
	if level, ok := baseDanger[class]; ok {
		return level
	}
	return models.DangerMedium
}

// Classify maps a class and confidence to a danger level. Only High classes
// move: above 0.9 they become Critical, below 0.8 they become Medium.
func Classify(class models.AnimalClass, confidence float64) models.DangerLevel {
	base := BaseDanger(class)
	if base != models.DangerHigh {
		return base
	}

	switch {
	case confidence > escalateAbove:
		return models.DangerCritical
	case confidence < deescalateBelow:
		return models.DangerMedium
	default:
		return base
	}
}

package units

import "github.com/sstent/stridetrack-go/internal/models"

// ComputePace returns minutes per unit of distance. It returns 0 when no
// distance or no time has been recorded, never NaN or Inf.
func ComputePace(distanceMeters, durationSeconds float64, unit models.Unit) float64 {
	if distanceMeters <= 0 || durationSeconds <= 0 {
		return 0
	}
	return (durationSeconds / 60) / (distanceMeters / unit.Meters())
}

// ComputeSpeed returns units per hour.
func ComputeSpeed(distanceMeters, durationSeconds float64, unit models.Unit) float64 {
	if distanceMeters <= 0 || durationSeconds <= 0 {
		return 0
	}
	return (distanceMeters / unit.Meters()) / (durationSeconds / 3600)
}

// SpeedLabel is the per-hour label for unit, e.g. "km/h".
func SpeedLabel(unit models.Unit) string {
	if unit == models.Miles {
		return "mph"
	}
	return "km/h"
}

package units

import (
	"fmt"
	"math"

	"github.com/sstent/stridetrack-go/internal/models"
)

const (
	// PacePlaceholder is shown whenever pace is not yet defined.
	PacePlaceholder = "--:--"
	feetPerMeter    = 3.28084
)

// FormatDuration renders seconds as MM:SS, or H:MM:SS past the hour.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatPace renders minutes per unit as "M:SS /km".
func FormatPace(pace float64, unit models.Unit) string {
	if pace <= 0 || math.IsNaN(pace) || math.IsInf(pace, 0) {
		return PacePlaceholder
	}
	total := int(math.Round(pace * 60))
	return fmt.Sprintf("%d:%02d /%s", total/60, total%60, unit)
}

func FormatDistance(meters float64, unit models.Unit) string {
	if meters < 0 || math.IsNaN(meters) {
		meters = 0
	}
	return fmt.Sprintf("%.2f %s", meters/unit.Meters(), unit)
}

// FormatElevation renders meters for metric sessions and feet otherwise.
func FormatElevation(meters float64, unit models.Unit) string {
	if math.IsNaN(meters) {
		meters = 0
	}
	if unit == models.Miles {
		return fmt.Sprintf("%.0f ft", meters*feetPerMeter)
	}
	return fmt.Sprintf("%.0f m", meters)
}

func FormatSpeed(speed float64, unit models.Unit) string {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		speed = 0
	}
	return fmt.Sprintf("%.1f %s", speed, SpeedLabel(unit))
}

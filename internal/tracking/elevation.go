package tracking

import (
	"math"

	"github.com/sstent/stridetrack-go/internal/models"
)

// elevationNoiseFloor is the smallest altitude change counted as gain or loss.
const elevationNoiseFloor = 1.0

// elevationAccumulator tracks altitude and cumulative gain/loss.
//
// lastAltitude advances on every valid sample, including ones whose delta
// falls below the noise floor. A slow climb made of sub-meter steps is
// therefore never counted.
type elevationAccumulator struct {
	state models.Elevation
}

func newElevationAccumulator(initial models.Elevation) *elevationAccumulator {
	return &elevationAccumulator{state: initial.Clone()}
}

// Update feeds one altitude reading and reports whether it was valid.
func (e *elevationAccumulator) Update(altitude float64) bool {
	if math.IsNaN(altitude) || math.IsInf(altitude, 0) {
		return false
	}

	if e.state.LastAltitude != nil {
		diff := altitude - *e.state.LastAltitude
		if math.Abs(diff) >= elevationNoiseFloor {
			if diff > 0 {
				e.state.Gain += diff
			} else {
				e.state.Loss += -diff
			}
		}
	}

	current, last := altitude, altitude
	e.state.Current = &current
	e.state.LastAltitude = &last
	return true
}

func (e *elevationAccumulator) State() models.Elevation {
	return e.state.Clone()
}

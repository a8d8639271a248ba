package tracking

import (
	"math"

	"github.com/sstent/stridetrack-go/internal/models"
)

// partialStep is how far, in units, distance must advance before the
// in-progress split is refreshed.
const partialStep = 0.05

// splitRecorder turns cumulative distance into per-unit splits. It holds at
// most one partial split, always last in the slice.
type splitRecorder struct {
	unitMeters float64

	splits              []models.Split
	lastSplitDistance   float64
	lastSplitDuration   float64
	lastPartialDistance float64
}

func newSplitRecorder(unit models.Unit) *splitRecorder {
	return &splitRecorder{unitMeters: unit.Meters()}
}

// restoreSplitRecorder rebuilds recorder state from persisted splits.
func restoreSplitRecorder(unit models.Unit, splits []models.Split) *splitRecorder {
	r := newSplitRecorder(unit)
	r.splits = append([]models.Split(nil), splits...)
	for _, s := range splits {
		if s.IsPartial {
			r.lastPartialDistance = s.Position * r.unitMeters
			continue
		}
		r.lastSplitDistance = float64(s.UnitIndex) * r.unitMeters
		r.lastSplitDuration = s.CumulativeDuration
		r.lastPartialDistance = r.lastSplitDistance
	}
	return r
}

// Record is called after every distance change. It returns the split that
// was appended or replaced, if any. pace is the session's overall pace and
// is used for partial splits.
func (r *splitRecorder) Record(distance, duration, pace float64) (models.Split, bool) {
	wholeNow := int(math.Floor(distance / r.unitMeters))
	wholeLast := int(math.Floor(r.lastSplitDistance / r.unitMeters))

	if wholeNow > wholeLast {
		splitDuration := duration - r.lastSplitDuration
		split := models.Split{
			UnitIndex:          wholeNow,
			CumulativeDuration: duration,
			SplitDuration:      splitDuration,
			Pace:               splitDuration / 60 / float64(wholeNow-wholeLast),
		}
		r.dropPartial()
		r.splits = append(r.splits, split)
		r.lastSplitDistance = float64(wholeNow) * r.unitMeters
		r.lastSplitDuration = duration
		r.lastPartialDistance = r.lastSplitDistance
		return split, true
	}

	if distance-r.lastPartialDistance >= partialStep*r.unitMeters {
		split := models.Split{
			UnitIndex:          wholeNow + 1,
			Position:           distance / r.unitMeters,
			CumulativeDuration: duration,
			SplitDuration:      duration - r.lastSplitDuration,
			Pace:               pace,
			IsPartial:          true,
		}
		r.dropPartial()
		r.splits = append(r.splits, split)
		r.lastPartialDistance = distance
		return split, true
	}

	return models.Split{}, false
}

func (r *splitRecorder) dropPartial() {
	if n := len(r.splits); n > 0 && r.splits[n-1].IsPartial {
		r.splits = r.splits[:n-1]
	}
}

func (r *splitRecorder) Splits() []models.Split {
	return append([]models.Split(nil), r.splits...)
}

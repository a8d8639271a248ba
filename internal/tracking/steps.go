package tracking

import (
	"github.com/sstent/stridetrack-go/internal/units"
)

func (t *Tracker) onSteps(gen uint64, steps int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation || t.phase != phaseRunning {
		return
	}
	t.applyStepsLocked(steps)
}

// applyStepsLocked records a pedometer reading. The step estimate only ever
// raises distance; a higher GPS figure always wins.
func (t *Tracker) applyStepsLocked(steps int) {
	total := t.stepBase + steps
	if t.state.EstimatedSteps != nil && total < *t.state.EstimatedSteps {
		return
	}
	t.state.EstimatedSteps = &total
	t.events.publish(StepsChanged{Steps: total})

	estimate := float64(total) * t.opts.StepLength
	if estimate > t.state.Distance {
		t.state.Distance = estimate
		t.events.publish(DistanceChanged{Meters: t.state.Distance})

		t.state.Pace = units.ComputePace(t.state.Distance, t.state.Duration, t.state.Unit)
		t.events.publish(PaceChanged{MinutesPerUnit: t.state.Pace, Unit: t.state.Unit})

		t.recordSplitLocked()
	}
	t.persistLocked()
}

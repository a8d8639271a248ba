package tracking

import (
	"time"

	"github.com/sstent/stridetrack-go/internal/models"
)

// Profile holds the per-activity tuning of the engine.
type Profile struct {
	// MovementThreshold is the smallest position increment, in meters,
	// counted as movement.
	MovementThreshold float64
	PaceInterval      time.Duration
	// CountSteps enables the pedometer as a distance floor.
	CountSteps bool
}

const (
	defaultMovementThreshold = 1.5
	defaultPaceInterval      = 5 * time.Second
	defaultStepLength        = 0.75
)

func DefaultProfiles() map[models.ActivityType]Profile {
	return map[models.ActivityType]Profile{
		models.ActivityRun: {
			MovementThreshold: defaultMovementThreshold,
			PaceInterval:      defaultPaceInterval,
			CountSteps:        true,
		},
		models.ActivityWalk: {
			MovementThreshold: 1.0,
			PaceInterval:      defaultPaceInterval,
			CountSteps:        true,
		},
		models.ActivityCycle: {
			MovementThreshold: 2.0,
			PaceInterval:      3 * time.Second,
		},
	}
}

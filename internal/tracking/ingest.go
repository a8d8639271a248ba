package tracking

import (
	"fmt"
	"math"

	"github.com/sstent/stridetrack-go/internal/metrics"
	"github.com/sstent/stridetrack-go/internal/models"
	"github.com/sstent/stridetrack-go/internal/units"
)

// ingestLocked applies one position sample. The caller holds t.mu and has
// checked that the session is running.
func (t *Tracker) ingestLocked(s PositionSample) {
	if err := validateSample(s); err != nil {
		metrics.RecordSample(metrics.SampleError)
		t.log.WithError(err).Warn("dropping bad location fix")
		return
	}

	prev := t.lastSample
	t.lastSample = &s

	if prev == nil {
		// Baseline only; there is nothing to measure against yet.
		if s.Altitude != nil {
			t.updateElevationLocked(*s.Altitude)
		}
		metrics.RecordSample(metrics.SampleBaseline)
		t.persistLocked()
		return
	}

	increment := units.Haversine(
		units.Coordinate{Latitude: prev.Latitude, Longitude: prev.Longitude},
		units.Coordinate{Latitude: s.Latitude, Longitude: s.Longitude},
	)
	if math.IsNaN(increment) || increment < t.profile.MovementThreshold {
		metrics.RecordSample(metrics.SampleNoise)
		return
	}

	metrics.RecordSample(metrics.SampleAccepted)
	t.state.Distance += increment
	t.events.publish(DistanceChanged{Meters: t.state.Distance})

	t.updateSpeedLocked(increment, *prev, s)
	if s.Altitude != nil {
		t.updateElevationLocked(*s.Altitude)
	}
	t.recordSplitLocked()
	t.persistLocked()
}

// validateSample rejects fixes that cannot be measured against. They never
// become the reference point for the next sample.
func validateSample(s PositionSample) error {
	if !finite(s.Latitude) || !finite(s.Longitude) {
		return fmt.Errorf("non-finite position %v,%v", s.Latitude, s.Longitude)
	}
	if math.Abs(s.Latitude) > 90 || math.Abs(s.Longitude) > 180 {
		return fmt.Errorf("position out of range %v,%v", s.Latitude, s.Longitude)
	}
	if s.Altitude != nil && !finite(*s.Altitude) {
		return fmt.Errorf("non-finite altitude %v", *s.Altitude)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (t *Tracker) updateElevationLocked(altitude float64) {
	if !t.elevation.Update(altitude) {
		return
	}
	t.state.Elevation = t.elevation.State()
	t.events.publish(ElevationChanged{Elevation: t.elevation.State()})
}

func (t *Tracker) updateSpeedLocked(increment float64, prev, cur PositionSample) {
	if prev.Timestamp.IsZero() || !cur.Timestamp.After(prev.Timestamp) {
		return
	}
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	speed := models.Speed{
		Value: units.ComputeSpeed(increment, dt, t.state.Unit),
		Unit:  units.SpeedLabel(t.state.Unit),
	}
	t.state.CurrentSpeed = &speed
	t.events.publish(SpeedChanged{Speed: speed})
}

func (t *Tracker) recordSplitLocked() {
	pace := units.ComputePace(t.state.Distance, t.state.Duration, t.state.Unit)
	split, ok := t.splits.Record(t.state.Distance, t.state.Duration, pace)
	if !ok {
		return
	}
	t.state.Splits = t.splits.Splits()
	t.events.publish(SplitRecorded{Split: split})
}

package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sstent/stridetrack-go/internal/models"
)

// DefaultSnapshotKey is the store key of the in-progress session.
const DefaultSnapshotKey = "activeSession"

const snapshotVersion = 1

type snapshot struct {
	Version          int                 `json:"version"`
	ID               string              `json:"id"`
	IsRunning        bool                `json:"isRunning"`
	IsPaused         bool                `json:"isPaused"`
	Distance         float64             `json:"distance"`
	Duration         float64             `json:"duration"`
	Pace             float64             `json:"pace"`
	Splits           []models.Split      `json:"splits"`
	Elevation        models.Elevation    `json:"elevation"`
	ActivityType     models.ActivityType `json:"activityType"`
	EstimatedSteps   *int                `json:"estimatedSteps,omitempty"`
	CurrentSpeed     *models.Speed       `json:"currentSpeed,omitempty"`
	Unit             models.Unit         `json:"unit"`
	StartedAt        time.Time           `json:"startedAt"`
	TimestampWritten int64               `json:"timestampWritten"` // unix millis
}

var errCorruptSnapshot = errors.New("corrupt session snapshot")

func encodeSnapshot(s models.SessionState, written time.Time) ([]byte, error) {
	return json.Marshal(snapshot{
		Version:          snapshotVersion,
		ID:               s.ID,
		IsRunning:        s.IsTracking,
		IsPaused:         s.IsPaused,
		Distance:         s.Distance,
		Duration:         s.Duration,
		Pace:             s.Pace,
		Splits:           s.Splits,
		Elevation:        s.Elevation,
		ActivityType:     s.ActivityType,
		EstimatedSteps:   s.EstimatedSteps,
		CurrentSpeed:     s.CurrentSpeed,
		Unit:             s.Unit,
		StartedAt:        s.StartedAt,
		TimestampWritten: written.UnixMilli(),
	})
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, fmt.Errorf("%w: %w", errCorruptSnapshot, err)
	}
	if err := snap.validate(); err != nil {
		return snapshot{}, fmt.Errorf("%w: %w", errCorruptSnapshot, err)
	}
	return snap, nil
}

func (s snapshot) validate() error {
	if !s.IsRunning {
		return errors.New("snapshot is not an active session")
	}
	if _, err := models.ParseUnit(string(s.Unit)); err != nil {
		return err
	}
	if _, err := models.ParseActivityType(string(s.ActivityType)); err != nil {
		return err
	}
	for _, v := range []float64{s.Distance, s.Duration, s.Pace, s.Elevation.Gain, s.Elevation.Loss} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid numeric field %v", v)
		}
	}
	if s.TimestampWritten <= 0 {
		return errors.New("missing write timestamp")
	}
	return nil
}

func (s snapshot) state() models.SessionState {
	return models.SessionState{
		ID:             s.ID,
		IsTracking:     true,
		IsPaused:       s.IsPaused,
		Distance:       s.Distance,
		Duration:       s.Duration,
		Pace:           s.Pace,
		Splits:         append([]models.Split(nil), s.Splits...),
		Elevation:      s.Elevation.Clone(),
		ActivityType:   s.ActivityType,
		Unit:           s.Unit,
		EstimatedSteps: s.EstimatedSteps,
		CurrentSpeed:   s.CurrentSpeed,
		StartedAt:      s.StartedAt,
	}
}

// persistLocked writes the current state. Write errors are logged; the
// in-memory session is authoritative.
func (t *Tracker) persistLocked() {
	if t.store == nil || !t.state.IsTracking {
		return
	}
	data, err := encodeSnapshot(t.state, t.clock.Now())
	if err != nil {
		t.log.WithError(err).Warn("encode session snapshot")
		return
	}
	if err := t.store.Set(context.Background(), t.opts.SnapshotKey, data); err != nil {
		t.log.WithError(err).Warn("persist session snapshot")
	}
}

func (t *Tracker) clearSnapshot(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Delete(ctx, t.opts.SnapshotKey); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

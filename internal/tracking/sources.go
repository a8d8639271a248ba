package tracking

import (
	"context"
	"time"

	"github.com/sstent/stridetrack-go/internal/models"
)

// PositionSample is a single fix delivered by a LocationSource.
type PositionSample struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Timestamp time.Time
}

// WatcherOptions is passed to LocationSource.AddWatcher.
type WatcherOptions struct {
	// DistanceFilter is the minimum movement in meters the platform should
	// report. It mirrors the active movement threshold.
	DistanceFilter     float64
	BackgroundMessage  string
	RequestPermissions bool
}

type WatcherID string

// PositionCallback receives either a sample or an error. An error wrapping
// ErrNotAuthorized signals that location permission was revoked.
type PositionCallback func(PositionSample, error)

// LocationSource is the device location plugin.
type LocationSource interface {
	AddWatcher(ctx context.Context, opts WatcherOptions, cb PositionCallback) (WatcherID, error)
	RemoveWatcher(ctx context.Context, id WatcherID) error
}

// StepCallback receives the cumulative step count since StartUpdates.
type StepCallback func(steps int)

// StepSource is the pedometer plugin.
type StepSource interface {
	StartUpdates(ctx context.Context, cb StepCallback) error
	StopUpdates(ctx context.Context) error
}

// SnapshotStore is a key-value store for the in-progress session. Get returns
// nil data and a nil error when the key is absent.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// History archives finished sessions.
type History interface {
	Archive(ctx context.Context, result models.SessionResult) error
}

// Scheduler runs fn every interval until the returned cancel func is called.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// internal/database/models.go
package database

import (
	"context"
	"errors"
	"time"

	"github.com/sstent/stridetrack-go/internal/models"
)

var (
	ErrNotFound      = errors.New("activity not found")
	ErrInvalidFilter = errors.New("invalid activity filter")
)

// Activity is an archived session as stored in the activities table.
type Activity struct {
	ID            int            `json:"id"`
	SessionID     string         `json:"session_id"`
	ActivityType  string         `json:"activity_type"`
	Unit          string         `json:"unit"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	Duration      float64        `json:"duration"` // seconds
	Distance      float64        `json:"distance"` // meters
	Pace          float64        `json:"pace"`     // minutes per unit
	ElevationGain float64        `json:"elevation_gain"`
	ElevationLoss float64        `json:"elevation_loss"`
	Steps         int            `json:"steps"`
	Splits        []models.Split `json:"splits"`
	Failed        bool           `json:"failed"`
	FailureReason string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func activityFromResult(r models.SessionResult) Activity {
	return Activity{
		SessionID:     r.ID,
		ActivityType:  string(r.ActivityType),
		Unit:          string(r.Unit),
		StartTime:     r.StartedAt,
		EndTime:       r.EndedAt,
		Duration:      r.Duration,
		Distance:      r.Distance,
		Pace:          r.Pace,
		ElevationGain: r.Elevation.Gain,
		ElevationLoss: r.Elevation.Loss,
		Steps:         r.Steps,
		Splits:        r.Splits,
		Failed:        r.Failed,
		FailureReason: r.FailureReason,
	}
}

type Stats struct {
	Total         int     `json:"total"`
	TotalDistance float64 `json:"total_distance"`
	TotalDuration float64 `json:"total_duration"`
	Failed        int     `json:"failed"`
}

// Database is the history side of the store.
type Database interface {
	// Activities
	Archive(ctx context.Context, result models.SessionResult) error
	GetActivities(ctx context.Context, limit, offset int) ([]Activity, error)
	GetActivity(ctx context.Context, sessionID string) (*Activity, error)
	DeleteActivity(ctx context.Context, sessionID string) error

	// Stats
	GetStats(ctx context.Context) (*Stats, error)

	// Search and filter
	FilterActivities(ctx context.Context, filters ActivityFilters) ([]Activity, error)

	// Close connection
	Close() error
}

type ActivityFilters struct {
	ActivityType string
	DateFrom     *time.Time
	DateTo       *time.Time
	MinDistance  float64
	MaxDistance  float64
	Limit        int
	Offset       int
	SortBy       string
	SortOrder    string
}

package models

import (
	"fmt"
	"time"
)

// Unit is the distance unit splits and pace are expressed in.
type Unit string

const (
	Kilometers Unit = "km"
	Miles      Unit = "mi"
)

const metersPerMile = 1609.344

// Meters returns the length of one unit in meters.
func (u Unit) Meters() float64 {
	if u == Miles {
		return metersPerMile
	}
	return 1000
}

func ParseUnit(s string) (Unit, error) {
	switch s {
	case "km", "kilometers", "metric":
		return Kilometers, nil
	case "mi", "mile", "miles", "imperial":
		return Miles, nil
	default:
		return "", fmt.Errorf("unknown distance unit %q", s)
	}
}

type ActivityType string

const (
	ActivityRun   ActivityType = "run"
	ActivityWalk  ActivityType = "walk"
	ActivityCycle ActivityType = "cycle"
)

func ParseActivityType(s string) (ActivityType, error) {
	switch ActivityType(s) {
	case ActivityRun, ActivityWalk, ActivityCycle:
		return ActivityType(s), nil
	default:
		return "", fmt.Errorf("unknown activity type %q", s)
	}
}

// Elevation holds the current altitude and cumulative gain/loss in meters.
type Elevation struct {
	Current      *float64 `json:"current"`
	Gain         float64  `json:"gain"`
	Loss         float64  `json:"loss"`
	LastAltitude *float64 `json:"lastAltitude"`
}

// Clone returns a copy that shares no pointers with e.
func (e Elevation) Clone() Elevation {
	out := Elevation{Gain: e.Gain, Loss: e.Loss}
	if e.Current != nil {
		v := *e.Current
		out.Current = &v
	}
	if e.LastAltitude != nil {
		v := *e.LastAltitude
		out.LastAltitude = &v
	}
	return out
}

// Split is one recorded unit of distance. A partial split describes the
// interval currently in progress; Position is then the fractional number of
// units covered so far.
type Split struct {
	UnitIndex          int     `json:"unitIndex"`
	Position           float64 `json:"position,omitempty"`
	CumulativeDuration float64 `json:"cumulativeDuration"`
	SplitDuration      float64 `json:"splitDuration"`
	Pace               float64 `json:"pace"` // minutes per unit
	IsPartial          bool    `json:"isPartial"`
}

type Speed struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// SessionState is the live view of an activity session.
type SessionState struct {
	ID             string       `json:"id,omitempty"`
	IsTracking     bool         `json:"isTracking"`
	IsPaused       bool         `json:"isPaused"`
	Distance       float64      `json:"distance"` // meters
	Duration       float64      `json:"duration"` // seconds
	Pace           float64      `json:"pace"`     // minutes per unit
	Splits         []Split      `json:"splits"`
	Elevation      Elevation    `json:"elevation"`
	ActivityType   ActivityType `json:"activityType"`
	Unit           Unit         `json:"unit"`
	EstimatedSteps *int         `json:"estimatedSteps,omitempty"`
	CurrentSpeed   *Speed       `json:"currentSpeed,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	out := s
	out.Splits = append([]Split(nil), s.Splits...)
	out.Elevation = s.Elevation.Clone()
	if s.EstimatedSteps != nil {
		v := *s.EstimatedSteps
		out.EstimatedSteps = &v
	}
	if s.CurrentSpeed != nil {
		v := *s.CurrentSpeed
		out.CurrentSpeed = &v
	}
	return out
}

// SessionResult is the finalized record of a stopped session.
type SessionResult struct {
	ID            string       `json:"id"`
	ActivityType  ActivityType `json:"activity_type"`
	Unit          Unit         `json:"unit"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       time.Time    `json:"ended_at"`
	Distance      float64      `json:"distance"` // meters
	Duration      float64      `json:"duration"` // seconds
	Pace          float64      `json:"pace"`     // minutes per unit
	Splits        []Split      `json:"splits"`
	Elevation     Elevation    `json:"elevation"`
	Steps         int          `json:"steps"`
	Failed        bool         `json:"failed"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

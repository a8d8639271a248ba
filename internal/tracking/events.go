package tracking

import (
	"sync"

	"github.com/sstent/stridetrack-go/internal/models"
)

type EventKind string

const (
	KindDistance          EventKind = "distance"
	KindDuration          EventKind = "duration"
	KindPace              EventKind = "pace"
	KindElevation         EventKind = "elevation"
	KindSplit             EventKind = "split"
	KindSteps             EventKind = "steps"
	KindSpeed             EventKind = "speed"
	KindStatus            EventKind = "status"
	KindCompleted         EventKind = "completed"
	KindAuthorizationLost EventKind = "authorization_lost"
)

// Event is a change notification. Consumers type-switch on the concrete type.
type Event interface {
	Kind() EventKind
}

type DistanceChanged struct {
	Meters float64 `json:"meters"`
}

type DurationChanged struct {
	Seconds float64 `json:"seconds"`
}

type PaceChanged struct {
	MinutesPerUnit float64     `json:"minutesPerUnit"`
	Unit           models.Unit `json:"unit"`
}

type ElevationChanged struct {
	Elevation models.Elevation `json:"elevation"`
}

type SplitRecorded struct {
	Split models.Split `json:"split"`
}

type StepsChanged struct {
	Steps int `json:"steps"`
}

type SpeedChanged struct {
	Speed models.Speed `json:"speed"`
}

type StatusChanged struct {
	Tracking bool `json:"isTracking"`
	Paused   bool `json:"isPaused"`
}

// SessionCompleted carries the finalized result. Err is set when stopping
// hit a failure; Result then holds whatever data was available.
type SessionCompleted struct {
	Result models.SessionResult `json:"result"`
	Err    error                `json:"-"`
}

// AuthorizationLost is emitted when the location source reports that
// permission was revoked mid-session. The session keeps its data.
type AuthorizationLost struct {
	Err error `json:"-"`
}

func (DistanceChanged) Kind() EventKind   { return KindDistance }
func (DurationChanged) Kind() EventKind   { return KindDuration }
func (PaceChanged) Kind() EventKind       { return KindPace }
func (ElevationChanged) Kind() EventKind  { return KindElevation }
func (SplitRecorded) Kind() EventKind     { return KindSplit }
func (StepsChanged) Kind() EventKind      { return KindSteps }
func (SpeedChanged) Kind() EventKind      { return KindSpeed }
func (StatusChanged) Kind() EventKind     { return KindStatus }
func (SessionCompleted) Kind() EventKind  { return KindCompleted }
func (AuthorizationLost) Kind() EventKind { return KindAuthorizationLost }

// Subscription receives events on C until Close is called.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	broker *broker
}

func (s *Subscription) Close() {
	s.broker.remove(s)
}

type broker struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newBroker() *broker {
	return &broker{subs: map[*Subscription]struct{}{}}
}

func (b *broker) subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[sub] = struct{}{}
	return sub
}

func (b *broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// publish never blocks; a subscriber with a full buffer misses the event.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

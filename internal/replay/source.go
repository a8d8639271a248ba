package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sstent/stridetrack-go/internal/tracking"
)

var (
	ErrTrackFinished  = errors.New("replay track finished")
	ErrWatcherActive  = errors.New("a replay watcher is already active")
	ErrUnknownWatcher = errors.New("unknown replay watcher")
)

const tickInterval = time.Second

type SourceOptions struct {
	// Speed multiplies playback; 10 replays a ten minute track in one.
	Speed     float64
	Scheduler tracking.Scheduler
	Clock     tracking.Clock
	Logger    logrus.FieldLogger
}

// Source is a tracking.LocationSource that plays back a recorded track.
// Playback time only advances while a watcher is registered, so a session
// paused and resumed continues from where it left off.
type Source struct {
	samples   []tracking.PositionSample
	speed     float64
	scheduler tracking.Scheduler
	now       func() time.Time
	log       logrus.FieldLogger

	mu       sync.Mutex
	next     int
	elapsed  time.Duration
	lastTick time.Time
	watcher  tracking.WatcherID
	seq      int
	cb       tracking.PositionCallback
	cancel   func()
	revoked  bool
}

func NewSource(samples []tracking.PositionSample, opts SourceOptions) *Source {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	now := time.Now
	if opts.Clock != nil {
		now = opts.Clock.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Source{
		samples:   samples,
		speed:     opts.Speed,
		scheduler: opts.Scheduler,
		now:       now,
		log:       opts.Logger.WithField("component", "replay"),
	}
}

func (s *Source) AddWatcher(_ context.Context, _ tracking.WatcherOptions, cb tracking.PositionCallback) (tracking.WatcherID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revoked {
		return "", tracking.ErrNotAuthorized
	}
	if s.scheduler == nil {
		return "", errors.New("replay source has no scheduler")
	}
	if s.cb != nil {
		return "", ErrWatcherActive
	}
	if s.next >= len(s.samples) {
		return "", ErrTrackFinished
	}

	s.seq++
	s.watcher = tracking.WatcherID(fmt.Sprintf("replay-%d", s.seq))
	s.cb = cb
	s.lastTick = s.now()
	s.cancel = s.scheduler.Every(tickInterval, s.tick)
	s.log.WithFields(logrus.Fields{"watcher": s.watcher, "position": s.next}).Debug("replay watcher added")
	return s.watcher, nil
}

func (s *Source) RemoveWatcher(_ context.Context, id tracking.WatcherID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cb == nil || id != s.watcher {
		return fmt.Errorf("%w: %s", ErrUnknownWatcher, id)
	}
	s.advanceLocked()
	s.detachLocked()
	return nil
}

// Revoke simulates the user withdrawing location permission. The active
// watcher is told once and later AddWatcher calls fail.
func (s *Source) Revoke() {
	s.mu.Lock()
	s.revoked = true
	cb := s.cb
	s.mu.Unlock()

	if cb != nil {
		cb(tracking.PositionSample{}, fmt.Errorf("replay: %w", tracking.ErrNotAuthorized))
	}
}

// Remaining reports how many samples have not been delivered yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples) - s.next
}

func (s *Source) tick() {
	s.mu.Lock()
	if s.cb == nil {
		s.mu.Unlock()
		return
	}
	s.advanceLocked()

	var due []tracking.PositionSample
	for s.next < len(s.samples) && s.offset(s.next) <= s.elapsed {
		due = append(due, s.samples[s.next])
		s.next++
	}
	cb := s.cb
	if s.next >= len(s.samples) {
		s.log.Info("replay track finished")
		s.detachLocked()
	}
	s.mu.Unlock()

	for _, sample := range due {
		cb(sample, nil)
	}
}

func (s *Source) advanceLocked() {
	now := s.now()
	if now.After(s.lastTick) {
		s.elapsed += time.Duration(float64(now.Sub(s.lastTick)) * s.speed)
	}
	s.lastTick = now
}

func (s *Source) detachLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cb = nil
}

// offset is the time of sample i relative to the start of the track.
func (s *Source) offset(i int) time.Duration {
	return s.samples[i].Timestamp.Sub(s.samples[0].Timestamp)
}

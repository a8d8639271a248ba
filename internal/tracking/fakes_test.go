package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sstent/stridetrack-go/internal/models"
	"github.com/sstent/stridetrack-go/internal/units"
)

var errPlugin = errors.New("plugin failure")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scheduledFunc struct {
	interval time.Duration
	fn       func()
}

// manualScheduler fires registered funcs only when told to.
type manualScheduler struct {
	mu      sync.Mutex
	nextID  int
	entries map[int]scheduledFunc
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{entries: map[int]scheduledFunc{}}
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.entries[id] = scheduledFunc{interval: interval, fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.entries, id)
	}
}

func (s *manualScheduler) Fire(interval time.Duration) {
	s.mu.Lock()
	var fns []func()
	for _, e := range s.entries {
		if e.interval == interval {
			fns = append(fns, e.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *manualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fakeLocation keeps every callback it was handed so tests can deliver
// late samples from a removed watcher.
type fakeLocation struct {
	mu        sync.Mutex
	nextID    int
	active    map[WatcherID]PositionCallback
	lastCB    PositionCallback
	added     int
	removed   int
	addErr    error
	removeErr error
}

func newFakeLocation() *fakeLocation {
	return &fakeLocation{active: map[WatcherID]PositionCallback{}}
}

func (l *fakeLocation) AddWatcher(_ context.Context, _ WatcherOptions, cb PositionCallback) (WatcherID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addErr != nil {
		return "", l.addErr
	}
	l.nextID++
	id := WatcherID(fmt.Sprintf("w%d", l.nextID))
	l.active[id] = cb
	l.lastCB = cb
	l.added++
	return id, nil
}

func (l *fakeLocation) RemoveWatcher(_ context.Context, id WatcherID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed++
	delete(l.active, id)
	return l.removeErr
}

func (l *fakeLocation) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// Emit delivers a sample through the most recently added watcher, even if
// it has since been removed.
func (l *fakeLocation) Emit(s PositionSample) {
	l.mu.Lock()
	cb := l.lastCB
	l.mu.Unlock()
	if cb != nil {
		cb(s, nil)
	}
}

func (l *fakeLocation) Fail(err error) {
	l.mu.Lock()
	cb := l.lastCB
	l.mu.Unlock()
	if cb != nil {
		cb(PositionSample{}, err)
	}
}

type fakeSteps struct {
	mu       sync.Mutex
	cb       StepCallback
	running  bool
	starts   int
	startErr error
	stopErr  error
}

func (p *fakeSteps) StartUpdates(_ context.Context, cb StepCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.cb = cb
	p.running = true
	p.starts++
	return nil
}

func (p *fakeSteps) StopUpdates(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return p.stopErr
}

func (p *fakeSteps) Emit(steps int) {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb != nil {
		cb(steps)
	}
}

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   int
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type fakeHistory struct {
	mu       sync.Mutex
	archived []models.SessionResult
	err      error
}

func (h *fakeHistory) Archive(ctx context.Context, r models.SessionResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.archived = append(h.archived, r)
	return nil
}

func (h *fakeHistory) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.archived)
}

type harness struct {
	logger    *logrus.Logger
	clock     *fakeClock
	scheduler *manualScheduler
	location  *fakeLocation
	steps     *fakeSteps
	store     *memStore
	history   *fakeHistory
	logs      *logtest.Hook
	tracker   *Tracker
}

func newHarness() *harness {
	logger, logs := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h := &harness{
		logger:    logger,
		logs:      logs,
		clock:     newFakeClock(),
		scheduler: newManualScheduler(),
		location:  newFakeLocation(),
		steps:     &fakeSteps{},
		store:     newMemStore(),
		history:   &fakeHistory{},
	}
	h.tracker = h.newTracker()
	return h
}

// newTracker builds a fresh tracker over the same collaborators, as a new
// process would.
func (h *harness) newTracker() *Tracker {
	return New(Deps{
		Location:  h.location,
		Steps:     h.steps,
		Store:     h.store,
		History:   h.history,
		Scheduler: h.scheduler,
		Clock:     h.clock,
		Logger:    h.logger,
	}, Options{})
}

// tick advances the clock by d and fires the one-second duration tick.
func (h *harness) tick(d time.Duration) {
	h.clock.Advance(d)
	h.scheduler.Fire(time.Second)
}

// eastOf returns a sample on the equator the given number of meters east of
// longitude 0.
func eastOf(meters float64) PositionSample {
	return PositionSample{Longitude: meters / units.EarthRadius * 180 / math.Pi}
}

func withAltitude(s PositionSample, alt float64) PositionSample {
	s.Altitude = &alt
	return s
}

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

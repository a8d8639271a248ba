// Package tracking turns a stream of location and step samples into a live,
// resumable activity session.
//
// A Tracker owns one SessionState. Position, step and timer callbacks may
// arrive on any goroutine; they are serialized on the tracker's mutex and
// each one checks the session phase before mutating anything. Commands
// (Start, Pause, Resume, Stop, Restore) are serialized separately so that
// source acquisition can block without holding the state lock.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sstent/stridetrack-go/internal/metrics"
	"github.com/sstent/stridetrack-go/internal/models"
	"github.com/sstent/stridetrack-go/internal/units"
)

var (
	ErrAlreadyTracking   = errors.New("a session is already in progress")
	ErrSourceUnavailable = errors.New("tracking source unavailable")
	// ErrNotAuthorized is wrapped by location sources when permission is
	// missing or revoked.
	ErrNotAuthorized = errors.New("location not authorized")
)

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phasePaused
	phaseStopped
)

func (p phase) String() string {
	switch p {
	case phaseRunning:
		return "running"
	case phasePaused:
		return "paused"
	case phaseStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Deps are the collaborators of a Tracker. Location is required.
type Deps struct {
	Location  LocationSource
	Steps     StepSource
	Store     SnapshotStore
	History   History
	Scheduler Scheduler
	Clock     Clock
	Logger    logrus.FieldLogger
}

type Options struct {
	// StepLength is the average stride in meters used by the step estimator.
	StepLength  float64
	SnapshotKey string
	Profiles    map[models.ActivityType]Profile
}

// StartOptions are captured once per session.
type StartOptions struct {
	ActivityType models.ActivityType
	Unit         models.Unit
}

type Tracker struct {
	cmdMu sync.Mutex
	mu    sync.Mutex

	location  LocationSource
	steps     StepSource
	store     SnapshotStore
	history   History
	scheduler Scheduler
	clock     Clock
	log       logrus.FieldLogger
	opts      Options
	events    *broker

	phase   phase
	state   models.SessionState
	profile Profile

	startTime    time.Time
	pauseStarted time.Time
	pausedTotal  time.Duration

	// generation is bumped whenever sources are (re)acquired or released so
	// callbacks from a stale watcher are ignored.
	generation uint64
	watcher    WatcherID
	watching   bool
	stepping   bool
	stopTicks  []func()

	lastSample *PositionSample
	elevation  *elevationAccumulator
	splits     *splitRecorder
	stepBase   int
}

func New(deps Deps, opts Options) *Tracker {
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if opts.StepLength <= 0 {
		opts.StepLength = defaultStepLength
	}
	if opts.SnapshotKey == "" {
		opts.SnapshotKey = DefaultSnapshotKey
	}
	if opts.Profiles == nil {
		opts.Profiles = DefaultProfiles()
	}

	return &Tracker{
		location:  deps.Location,
		steps:     deps.Steps,
		store:     deps.Store,
		history:   deps.History,
		scheduler: deps.Scheduler,
		clock:     deps.Clock,
		log:       deps.Logger.WithField("component", "tracker"),
		opts:      opts,
		events:    newBroker(),
		state:     models.SessionState{Splits: []models.Split{}},
		elevation: newElevationAccumulator(models.Elevation{}),
		splits:    newSplitRecorder(models.Kilometers),
	}
}

// Subscribe returns a subscription buffered to hold buffer events.
func (t *Tracker) Subscribe(buffer int) *Subscription {
	return t.events.subscribe(buffer)
}

// State returns a copy of the current session.
func (t *Tracker) State() models.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

func (t *Tracker) profileFor(activity models.ActivityType) Profile {
	if p, ok := t.opts.Profiles[activity]; ok {
		return p
	}
	return Profile{MovementThreshold: defaultMovementThreshold, PaceInterval: defaultPaceInterval}
}

// Start begins a new session. The activity type and unit are fixed for the
// lifetime of the session.
func (t *Tracker) Start(ctx context.Context, opts StartOptions) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	if opts.ActivityType == "" {
		opts.ActivityType = models.ActivityRun
	}
	if opts.Unit == "" {
		opts.Unit = models.Kilometers
	}
	if _, err := models.ParseActivityType(string(opts.ActivityType)); err != nil {
		return err
	}
	if _, err := models.ParseUnit(string(opts.Unit)); err != nil {
		return err
	}

	t.mu.Lock()
	if t.phase == phaseRunning || t.phase == phasePaused {
		t.mu.Unlock()
		return ErrAlreadyTracking
	}
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	profile := t.profileFor(opts.ActivityType)
	watcher, stepping, err := t.acquire(ctx, gen, profile)
	if err != nil {
		t.log.WithError(err).WithField("activity_type", opts.ActivityType).Error("start session")
		return err
	}

	t.mu.Lock()
	now := t.clock.Now()
	t.resetLocked(opts, profile, now)
	t.watcher, t.watching, t.stepping = watcher, true, stepping
	t.phase = phaseRunning
	t.startTicksLocked()
	t.persistLocked()
	t.events.publish(StatusChanged{Tracking: true})
	log := t.sessionLogLocked()
	t.mu.Unlock()

	metrics.RecordSessionStarted(string(opts.ActivityType))
	log.Info("session started")
	return nil
}

func (t *Tracker) resetLocked(opts StartOptions, profile Profile, now time.Time) {
	t.profile = profile
	t.state = models.SessionState{
		ID:           uuid.NewString(),
		IsTracking:   true,
		Splits:       []models.Split{},
		ActivityType: opts.ActivityType,
		Unit:         opts.Unit,
		StartedAt:    now,
	}
	t.startTime = now
	t.pauseStarted = time.Time{}
	t.pausedTotal = 0
	t.lastSample = nil
	t.elevation = newElevationAccumulator(models.Elevation{})
	t.splits = newSplitRecorder(opts.Unit)
	t.stepBase = 0
}

// Pause freezes the session. It is a no-op unless the session is running.
// Sources are released even if one of them fails to stop; the joined
// release errors are returned but the session is paused regardless.
func (t *Tracker) Pause(ctx context.Context) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	t.mu.Lock()
	if t.phase != phaseRunning {
		t.mu.Unlock()
		return nil
	}
	now := t.clock.Now()
	t.refreshDurationLocked(now)
	t.phase = phasePaused
	t.pauseStarted = now
	t.state.IsPaused = true
	t.stopTicksLocked()
	watcher, watching, stepping := t.detachLocked()
	t.persistLocked()
	t.events.publish(StatusChanged{Tracking: true, Paused: true})
	log := t.sessionLogLocked()
	t.mu.Unlock()

	log.Info("session paused")
	return t.release(ctx, watcher, watching, stepping)
}

// Resume continues a paused session. If a source cannot be reacquired the
// session stays paused and the error is returned.
func (t *Tracker) Resume(ctx context.Context) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	t.mu.Lock()
	if t.phase != phasePaused {
		t.mu.Unlock()
		return nil
	}
	t.generation++
	gen := t.generation
	profile := t.profile
	t.mu.Unlock()

	watcher, stepping, err := t.acquire(ctx, gen, profile)
	if err != nil {
		t.log.WithError(err).Error("resume session")
		return err
	}

	t.mu.Lock()
	now := t.clock.Now()
	if !t.pauseStarted.IsZero() && now.After(t.pauseStarted) {
		t.pausedTotal += now.Sub(t.pauseStarted)
	}
	t.pauseStarted = time.Time{}
	t.watcher, t.watching, t.stepping = watcher, true, stepping
	// The gap since the pause is not movement.
	t.lastSample = nil
	if t.state.EstimatedSteps != nil {
		t.stepBase = *t.state.EstimatedSteps
	}
	t.phase = phaseRunning
	t.state.IsPaused = false
	t.startTicksLocked()
	t.persistLocked()
	t.events.publish(StatusChanged{Tracking: true})
	log := t.sessionLogLocked()
	t.mu.Unlock()

	log.Info("session resumed")
	return nil
}

// Stop finalizes the session, archives it and releases every source. It
// returns nil, nil when there is no session to stop, so calling it twice is
// safe. On failure the returned result is still populated and marked Failed.
func (t *Tracker) Stop(ctx context.Context) (*models.SessionResult, error) {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	t.mu.Lock()
	if t.phase != phaseRunning && t.phase != phasePaused {
		t.mu.Unlock()
		return nil, nil
	}
	now := t.clock.Now()
	if t.phase == phasePaused && now.After(t.pauseStarted) {
		t.pausedTotal += now.Sub(t.pauseStarted)
	}
	t.pauseStarted = time.Time{}
	t.refreshDurationLocked(now)
	t.state.Pace = units.ComputePace(t.state.Distance, t.state.Duration, t.state.Unit)
	result := t.resultLocked(now)

	t.phase = phaseStopped
	t.state.IsTracking = false
	t.state.IsPaused = false
	t.stopTicksLocked()
	watcher, watching, stepping := t.detachLocked()
	log := t.sessionLogLocked()
	t.mu.Unlock()

	// Stopping is terminal; a cancelled caller must not leave the session
	// unarchived with a live snapshot.
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := t.release(ctx, watcher, watching, stepping); err != nil {
		errs = append(errs, err)
	}
	if t.history != nil {
		if err := t.history.Archive(ctx, result); err != nil {
			log.WithError(err).Error("archive session")
			errs = append(errs, fmt.Errorf("archive session: %w", err))
		}
	}
	if err := t.clearSnapshot(ctx); err != nil {
		log.WithError(err).Warn("clear snapshot")
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		result.Failed = true
		result.FailureReason = err.Error()
	}

	t.mu.Lock()
	t.events.publish(StatusChanged{})
	t.events.publish(SessionCompleted{Result: result, Err: err})
	t.mu.Unlock()

	metrics.RecordSessionCompleted(string(result.ActivityType), result.Distance, result.Failed)
	log.WithFields(logrus.Fields{
		"distance_m": result.Distance,
		"duration_s": result.Duration,
	}).Info("session stopped")
	return &result, err
}

func (t *Tracker) resultLocked(now time.Time) models.SessionResult {
	steps := 0
	if t.state.EstimatedSteps != nil {
		steps = *t.state.EstimatedSteps
	}
	return models.SessionResult{
		ID:           t.state.ID,
		ActivityType: t.state.ActivityType,
		Unit:         t.state.Unit,
		StartedAt:    t.state.StartedAt,
		EndedAt:      now,
		Distance:     t.state.Distance,
		Duration:     t.state.Duration,
		Pace:         t.state.Pace,
		Splits:       append([]models.Split(nil), t.state.Splits...),
		Elevation:    t.state.Elevation.Clone(),
		Steps:        steps,
	}
}

// Restore brings back a session persisted by a previous process. A running
// session has the wall-clock time since its last write added to its
// duration; a paused one is restored as-is. Unreadable snapshots are
// discarded.
func (t *Tracker) Restore(ctx context.Context) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	if t.store == nil {
		return nil
	}

	t.mu.Lock()
	busy := t.phase == phaseRunning || t.phase == phasePaused
	t.mu.Unlock()
	if busy {
		return ErrAlreadyTracking
	}

	data, err := t.store.Get(ctx, t.opts.SnapshotKey)
	if err != nil {
		return fmt.Errorf("read session snapshot: %w", err)
	}
	if data == nil {
		return nil
	}

	snap, err := decodeSnapshot(data)
	if err != nil {
		t.log.WithError(err).Warn("discarding session snapshot")
		if derr := t.clearSnapshot(ctx); derr != nil {
			t.log.WithError(derr).Warn("clear corrupt snapshot")
		}
		return nil
	}

	t.mu.Lock()
	now := t.clock.Now()
	state := snap.state()
	running := !snap.IsPaused
	if running {
		written := time.UnixMilli(snap.TimestampWritten)
		if now.After(written) {
			state.Duration += now.Sub(written).Seconds()
		}
	}
	t.applyRestoredLocked(state, now)
	t.phase = phasePaused
	t.pauseStarted = now
	t.state.IsPaused = true
	t.generation++
	gen := t.generation
	profile := t.profile
	log := t.sessionLogLocked()
	metrics.RecordSessionRestored(string(state.ActivityType))

	if !running {
		t.events.publish(StatusChanged{Tracking: true, Paused: true})
		t.mu.Unlock()
		log.Info("restored paused session")
		return nil
	}
	t.mu.Unlock()

	watcher, stepping, err := t.acquire(ctx, gen, profile)
	if err != nil {
		t.mu.Lock()
		t.persistLocked()
		t.events.publish(StatusChanged{Tracking: true, Paused: true})
		t.mu.Unlock()
		log.WithError(err).Error("restored session could not reacquire sources; left paused")
		return fmt.Errorf("resume restored session: %w", err)
	}

	t.mu.Lock()
	t.pauseStarted = time.Time{}
	t.watcher, t.watching, t.stepping = watcher, true, stepping
	t.phase = phaseRunning
	t.state.IsPaused = false
	t.startTicksLocked()
	t.persistLocked()
	t.events.publish(StatusChanged{Tracking: true})
	log = t.sessionLogLocked()
	t.mu.Unlock()

	log.Info("restored running session")
	return nil
}

func (t *Tracker) applyRestoredLocked(state models.SessionState, now time.Time) {
	t.state = state
	t.profile = t.profileFor(state.ActivityType)
	t.startTime = now.Add(-time.Duration(state.Duration * float64(time.Second)))
	t.pausedTotal = 0
	t.lastSample = nil
	t.elevation = newElevationAccumulator(state.Elevation)
	t.splits = restoreSplitRecorder(state.Unit, state.Splits)
	t.stepBase = 0
	if state.EstimatedSteps != nil {
		t.stepBase = *state.EstimatedSteps
	}
}

// Close releases sources and timers and ends all subscriptions. An active
// session is left in the snapshot store for the next Restore.
func (t *Tracker) Close(ctx context.Context) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	t.mu.Lock()
	t.stopTicksLocked()
	watcher, watching, stepping := t.detachLocked()
	t.mu.Unlock()

	err := t.release(ctx, watcher, watching, stepping)
	t.events.closeAll()
	return err
}

// acquire starts the location watcher and, when the profile counts steps,
// the pedometer. Anything started is torn down again on failure.
func (t *Tracker) acquire(ctx context.Context, gen uint64, profile Profile) (WatcherID, bool, error) {
	if t.location == nil {
		return "", false, fmt.Errorf("%w: no location source configured", ErrSourceUnavailable)
	}

	id, err := t.location.AddWatcher(ctx, WatcherOptions{
		DistanceFilter:     profile.MovementThreshold,
		BackgroundMessage:  "Tracking your activity",
		RequestPermissions: true,
	}, func(s PositionSample, err error) {
		t.onPosition(gen, s, err)
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: location: %w", ErrSourceUnavailable, err)
	}

	if !profile.CountSteps || t.steps == nil {
		return id, false, nil
	}

	if err := t.steps.StartUpdates(ctx, func(n int) { t.onSteps(gen, n) }); err != nil {
		if rerr := t.location.RemoveWatcher(context.WithoutCancel(ctx), id); rerr != nil {
			t.log.WithError(rerr).Warn("remove watcher after pedometer failure")
		}
		return "", false, fmt.Errorf("%w: pedometer: %w", ErrSourceUnavailable, err)
	}
	return id, true, nil
}

// detachLocked forgets the current sources so that they can be released
// outside the lock.
func (t *Tracker) detachLocked() (WatcherID, bool, bool) {
	watcher, watching, stepping := t.watcher, t.watching, t.stepping
	t.watcher, t.watching, t.stepping = "", false, false
	t.generation++
	return watcher, watching, stepping
}

// release stops every source it was given. A failure stopping one source
// does not prevent stopping the other.
func (t *Tracker) release(ctx context.Context, watcher WatcherID, watching, stepping bool) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if stepping && t.steps != nil {
		if err := t.steps.StopUpdates(ctx); err != nil {
			t.log.WithError(err).Warn("stop pedometer")
			errs = append(errs, fmt.Errorf("stop pedometer: %w", err))
		}
	}
	if watching && t.location != nil {
		if err := t.location.RemoveWatcher(ctx, watcher); err != nil {
			t.log.WithError(err).Warn("remove location watcher")
			errs = append(errs, fmt.Errorf("remove location watcher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) startTicksLocked() {
	if t.scheduler == nil {
		return
	}
	interval := t.profile.PaceInterval
	if interval <= 0 {
		interval = defaultPaceInterval
	}
	t.stopTicks = append(t.stopTicks,
		t.scheduler.Every(time.Second, t.onDurationTick),
		t.scheduler.Every(interval, t.onPaceTick),
	)
}

func (t *Tracker) stopTicksLocked() {
	for _, cancel := range t.stopTicks {
		cancel()
	}
	t.stopTicks = nil
}

func (t *Tracker) onPosition(gen uint64, s PositionSample, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.generation || t.phase != phaseRunning {
		metrics.RecordSample(metrics.SampleIgnored)
		return
	}
	if err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			t.log.WithError(err).Warn("location authorization lost")
			t.events.publish(AuthorizationLost{Err: err})
			return
		}
		metrics.RecordSample(metrics.SampleError)
		t.log.WithError(err).Warn("dropping bad location fix")
		return
	}
	t.ingestLocked(s)
}

func (t *Tracker) onDurationTick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != phaseRunning {
		return
	}
	t.refreshDurationLocked(t.clock.Now())
	t.events.publish(DurationChanged{Seconds: t.state.Duration})
	t.persistLocked()
}

func (t *Tracker) onPaceTick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase != phaseRunning {
		return
	}
	t.state.Pace = units.ComputePace(t.state.Distance, t.state.Duration, t.state.Unit)
	t.events.publish(PaceChanged{MinutesPerUnit: t.state.Pace, Unit: t.state.Unit})
	t.persistLocked()
}

// refreshDurationLocked sets duration to the active (unpaused) time since
// start. Duration never goes backwards.
func (t *Tracker) refreshDurationLocked(now time.Time) {
	active := now.Sub(t.startTime) - t.pausedTotal
	if secs := active.Seconds(); secs > t.state.Duration {
		t.state.Duration = secs
	}
}

func (t *Tracker) sessionLogLocked() logrus.FieldLogger {
	return t.log.WithFields(logrus.Fields{
		"session_id":    t.state.ID,
		"activity_type": t.state.ActivityType,
		"phase":         t.phase.String(),
	})
}

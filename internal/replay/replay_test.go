package replay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"github.com/sstent/stridetrack-go/internal/tracking"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Morning run</name>
    <trkseg>
      <trkpt lat="0.0" lon="0.0"><ele>10</ele><time>2024-05-01T07:00:10Z</time></trkpt>
      <trkpt lat="0.0" lon="0.001"><ele>12.5</ele><time>2024-05-01T07:00:20Z</time></trkpt>
      <trkpt lat="0.0" lon="0.002"><time>2024-05-01T07:00:30Z</time></trkpt>
      <trkpt lat="0.0" lon="0.0005"><ele>11</ele><time>2024-05-01T07:00:15Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

const routeGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <rte>
    <rtept lat="51.5" lon="-0.12"></rtept>
    <rtept lat="51.501" lon="-0.12"></rtept>
  </rte>
</gpx>`

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testScheduler struct {
	mu  sync.Mutex
	seq int
	fns map[int]func()
}

func (s *testScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = map[int]func(){}
	}
	s.seq++
	id := s.seq
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *testScheduler) Fire() {
	s.mu.Lock()
	var fns []func()
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *testScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

func TestDetectFileType(t *testing.T) {
	assert.Equal(t, FileTypeGPX, DetectFileTypeFromData([]byte(sampleGPX)))
	assert.Equal(t, FileTypeGPX, DetectFileTypeFromData([]byte("\xef\xbb\xbf  <gpx version=\"1.1\">")))
	fitHeader := []byte{14, 0x20, 0, 0, 0, 0, 0, 0, '.', 'F', 'I', 'T', 0, 0}
	assert.Equal(t, FileTypeFIT, DetectFileTypeFromData(fitHeader))
	assert.Equal(t, FileTypeUnknown, DetectFileTypeFromData([]byte("hello")))
	assert.Equal(t, FileTypeUnknown, DetectFileTypeFromData([]byte(`<?xml version="1.0"?><TrainingCenterDatabase/>`)))

	path := filepath.Join(t.TempDir(), "track")
	require.NoError(t, os.WriteFile(path, []byte(sampleGPX), 0644))
	samples, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, samples, 4)
}

func TestGPXParseOrdersByTime(t *testing.T) {
	samples, err := LoadData([]byte(sampleGPX))
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, 0.0, samples[0].Longitude)
	assert.Equal(t, 0.0005, samples[1].Longitude)
	assert.Equal(t, 0.001, samples[2].Longitude)
	for i := 1; i < len(samples); i++ {
		assert.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp))
	}

	require.NotNil(t, samples[0].Altitude)
	assert.Equal(t, 10.0, *samples[0].Altitude)
	assert.Nil(t, samples[3].Altitude)
}

func TestGPXRouteWithoutTimes(t *testing.T) {
	samples, err := LoadData([]byte(routeGPX))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, time.Second, samples[1].Timestamp.Sub(samples[0].Timestamp))
	assert.Equal(t, 51.501, samples[1].Latitude)
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.GPX")
	require.NoError(t, os.WriteFile(path, []byte(sampleGPX), 0644))
	samples, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, samples, 4)

	bad := filepath.Join(dir, "broken.fit")
	require.NoError(t, os.WriteFile(bad, []byte("not a fit file"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	unknown := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unknown, []byte("plain text"), 0644))
	_, err = Load(unknown)
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = Load(filepath.Join(dir, "missing.gpx"))
	assert.Error(t, err)
}

func TestEmptyGPX(t *testing.T) {
	_, err := LoadData([]byte(`<?xml version="1.0"?><gpx version="1.1" creator="x"></gpx>`))
	assert.ErrorIs(t, err, ErrNoTrackData)
}

func TestFITRecordSamples(t *testing.T) {
	start := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	withPos := fit.NewRecordMsg()
	withPos.Timestamp = start
	withPos.PositionLat = fit.NewLatitudeDegrees(47.5)
	withPos.PositionLong = fit.NewLongitudeDegrees(8.25)
	withPos.Altitude = uint16((412.4 + 500) * 5)

	noPos := fit.NewRecordMsg()
	noPos.Timestamp = start.Add(time.Second)

	noAlt := fit.NewRecordMsg()
	noAlt.Timestamp = start.Add(2 * time.Second)
	noAlt.PositionLat = fit.NewLatitudeDegrees(47.5001)
	noAlt.PositionLong = fit.NewLongitudeDegrees(8.25)

	samples := recordSamples([]*fit.RecordMsg{withPos, noPos, nil, noAlt})
	require.Len(t, samples, 2)
	assert.InDelta(t, 47.5, samples[0].Latitude, 1e-6)
	assert.InDelta(t, 8.25, samples[0].Longitude, 1e-6)
	require.NotNil(t, samples[0].Altitude)
	assert.InDelta(t, 412.4, *samples[0].Altitude, 0.2)
	assert.Nil(t, samples[1].Altitude)
	assert.Equal(t, start.Add(2*time.Second), samples[1].Timestamp)
}

func newTestSource(t *testing.T, speed float64) (*Source, *testScheduler, *testClock) {
	t.Helper()
	samples, err := LoadData([]byte(sampleGPX))
	require.NoError(t, err)
	sched := &testScheduler{}
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewSource(samples, SourceOptions{Speed: speed, Scheduler: sched, Clock: clock}), sched, clock
}

type recorder struct {
	mu      sync.Mutex
	samples []tracking.PositionSample
	errs    []error
}

func (r *recorder) cb(s tracking.PositionSample, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.samples = append(r.samples, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func TestSourcePlaysInTimeOrder(t *testing.T) {
	src, sched, clock := newTestSource(t, 1)
	rec := &recorder{}
	ctx := context.Background()

	id, err := src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Len())

	sched.Fire()
	assert.Equal(t, 1, rec.count(), "first sample is due immediately")

	clock.Advance(5 * time.Second)
	sched.Fire()
	assert.Equal(t, 2, rec.count())

	clock.Advance(4 * time.Second)
	sched.Fire()
	assert.Equal(t, 2, rec.count())

	clock.Advance(time.Second)
	sched.Fire()
	assert.Equal(t, 3, rec.count())

	_, err = src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	assert.ErrorIs(t, err, ErrWatcherActive)
	require.NoError(t, src.RemoveWatcher(ctx, id))
	assert.ErrorIs(t, src.RemoveWatcher(ctx, id), ErrUnknownWatcher)
}

func TestSourceResumesWhereItPaused(t *testing.T) {
	src, sched, clock := newTestSource(t, 1)
	rec := &recorder{}
	ctx := context.Background()

	id, err := src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	require.NoError(t, err)
	clock.Advance(7 * time.Second)
	sched.Fire()
	require.Equal(t, 2, rec.count())

	require.NoError(t, src.RemoveWatcher(ctx, id))
	assert.Zero(t, sched.Len())

	// Time spent without a watcher does not advance playback.
	clock.Advance(time.Hour)
	_, err = src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	require.NoError(t, err)
	sched.Fire()
	assert.Equal(t, 2, rec.count())
	assert.Equal(t, 2, src.Remaining())

	clock.Advance(3 * time.Second)
	sched.Fire()
	assert.Equal(t, 3, rec.count())
}

func TestSourceSpeedAndFinish(t *testing.T) {
	src, sched, clock := newTestSource(t, 10)
	rec := &recorder{}
	ctx := context.Background()

	id, err := src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	sched.Fire()
	assert.Equal(t, 4, rec.count())
	assert.Zero(t, src.Remaining())
	assert.Zero(t, sched.Len(), "finished track unschedules itself")

	assert.ErrorIs(t, src.RemoveWatcher(ctx, id), ErrUnknownWatcher)
	_, err = src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	assert.ErrorIs(t, err, ErrTrackFinished)
}

func TestSourceRevoke(t *testing.T) {
	src, _, _ := newTestSource(t, 1)
	rec := &recorder{}
	ctx := context.Background()

	_, err := src.AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	require.NoError(t, err)
	src.Revoke()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], tracking.ErrNotAuthorized)

	_, err = NewSource(nil, SourceOptions{}).AddWatcher(ctx, tracking.WatcherOptions{}, rec.cb)
	assert.Error(t, err)
}

func TestPedometerCountsAtCadence(t *testing.T) {
	sched := &testScheduler{}
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	p := NewPedometer(180, 1, sched, clock)
	ctx := context.Background()

	var mu sync.Mutex
	var got []int
	cb := func(n int) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	}

	require.NoError(t, p.StartUpdates(ctx, cb))
	sched.Fire()
	clock.Advance(10 * time.Second)
	sched.Fire()
	clock.Advance(10 * time.Second)
	sched.Fire()
	assert.Equal(t, []int{30, 60}, got)

	require.NoError(t, p.StopUpdates(ctx))
	assert.Zero(t, sched.Len())
	require.NoError(t, p.StopUpdates(ctx))

	// Restarting counts from zero.
	require.NoError(t, p.StartUpdates(ctx, cb))
	clock.Advance(20 * time.Second)
	sched.Fire()
	assert.Equal(t, []int{30, 60, 60}, got)
}

func TestPedometerRejectsBadCadence(t *testing.T) {
	p := NewPedometer(0, 1, &testScheduler{}, nil)
	assert.Error(t, p.StartUpdates(context.Background(), func(int) {}))
}

package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsUntilCancelled(t *testing.T) {
	s := NewCronScheduler(nil)
	s.Start()
	defer s.Stop()

	var calls atomic.Int32
	cancel := s.Every(time.Second, func() { calls.Add(1) })
	assert.Equal(t, 1, s.Len())

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	cancel()
	cancel()
	assert.Equal(t, 0, s.Len())

	seen := calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, seen, calls.Load())
}

func TestPanickingJobIsRecovered(t *testing.T) {
	s := NewCronScheduler(nil)
	s.Start()
	defer s.Stop()

	var calls atomic.Int32
	s.Every(time.Second, func() {
		calls.Add(1)
		panic("boom")
	})
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 4*time.Second, 20*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewCronScheduler(nil)
	s.Stop()
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestAddFuncRejectsBadSpec(t *testing.T) {
	s := NewCronScheduler(nil)
	_, err := s.AddFunc("not a spec", func() {})
	assert.Error(t, err)

	_, err = s.AddFunc("@hourly", func() {})
	assert.NoError(t, err)
}

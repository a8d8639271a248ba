package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sstent/stridetrack-go/internal/tracking"
)

// Pedometer is a tracking.StepSource that counts steps at a fixed cadence.
// The count restarts from zero on every StartUpdates.
type Pedometer struct {
	cadence   float64 // steps per minute
	speed     float64
	scheduler tracking.Scheduler
	now       func() time.Time

	mu      sync.Mutex
	started time.Time
	last    int
	cancel  func()
}

func NewPedometer(cadence, speed float64, scheduler tracking.Scheduler, clock tracking.Clock) *Pedometer {
	if speed <= 0 {
		speed = 1
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Pedometer{cadence: cadence, speed: speed, scheduler: scheduler, now: now}
}

func (p *Pedometer) StartUpdates(_ context.Context, cb tracking.StepCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scheduler == nil {
		return errors.New("pedometer has no scheduler")
	}
	if p.cadence <= 0 {
		return errors.New("pedometer cadence must be positive")
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.started = p.now()
	p.last = 0
	p.cancel = p.scheduler.Every(tickInterval, func() { p.tick(cb) })
	return nil
}

func (p *Pedometer) StopUpdates(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

func (p *Pedometer) tick(cb tracking.StepCallback) {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	minutes := p.now().Sub(p.started).Minutes() * p.speed
	steps := int(minutes * p.cadence)
	changed := steps > p.last
	if changed {
		p.last = steps
	}
	p.mu.Unlock()

	if changed {
		cb(steps)
	}
}

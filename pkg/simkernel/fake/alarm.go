package fake

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/simbatch/pkg/simkernel"
)

// AlarmClock schedules callbacks against a virtual Clock.
type AlarmClock struct {
	clock *Clock
}

// NewAlarmClock creates an AlarmClock driven by clock.
func NewAlarmClock(clock *Clock) *AlarmClock {
	return &AlarmClock{clock: clock}
}

func (a *AlarmClock) Schedule(at time.Time, fire func()) simkernel.Alarm {
	ctx, cancel := context.WithCancel(context.Background())
	al := &alarm{cancel: cancel}

	go func() {
		d := at.Sub(a.clock.Now())
		if d < 0 {
			d = 0
		}
		if err := a.clock.Sleep(ctx, d); err != nil {
			return
		}
		al.mu.Lock()
		killed := al.killed
		al.mu.Unlock()
		if !killed {
			fire()
		}
	}()

	return al
}

type alarm struct {
	mu     sync.Mutex
	killed bool
	cancel context.CancelFunc
}

// Kill cancels a pending alarm. Killing an already-fired or
// already-killed alarm is a no-op.
func (a *alarm) Kill() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.killed {
		return
	}
	a.killed = true
	a.cancel()
}

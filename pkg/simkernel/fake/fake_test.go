package fake

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/simbatch/pkg/simkernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockSleepWakesOnAdvance(t *testing.T) {
	clock := NewClock(time.Unix(0, 0))
	woke := make(chan struct{})

	go func() {
		_ = clock.Sleep(context.Background(), 10*time.Second)
		close(woke)
	}()

	select {
	case <-woke:
		t.Fatal("slept before clock advanced")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(10 * time.Second)

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("did not wake after clock advanced past target")
	}
}

func TestExecutorCompletesAfterDuration(t *testing.T) {
	clock := NewClock(time.Unix(0, 0))
	ex := NewExecutor(clock, 5*time.Second)
	results := ex.Start(context.Background())

	clock.Advance(5 * time.Second)

	select {
	case res := <-results:
		assert.True(t, res.Success)
		assert.NoError(t, res.FailureCause)
	case <-time.After(time.Second):
		t.Fatal("executor never reported a result")
	}
}

func TestExecutorStopReportsFailureImmediately(t *testing.T) {
	clock := NewClock(time.Unix(0, 0))
	ex := NewExecutor(clock, time.Hour)
	results := ex.Start(context.Background())

	ex.Stop(simkernel.TerminationTimeout)

	select {
	case res := <-results:
		require.False(t, res.Success)
		require.Error(t, res.FailureCause)
	case <-time.After(time.Second):
		t.Fatal("stop did not produce a result without waiting for the clock")
	}
}

func TestAlarmFiresAtScheduledTime(t *testing.T) {
	clock := NewClock(time.Unix(0, 0))
	ac := NewAlarmClock(clock)
	fired := make(chan struct{})

	ac.Schedule(clock.Now().Add(10*time.Second), func() { close(fired) })

	clock.Advance(10 * time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}
}

func TestAlarmKillPreventsFire(t *testing.T) {
	clock := NewClock(time.Unix(0, 0))
	ac := NewAlarmClock(clock)
	fired := make(chan struct{})

	al := ac.Schedule(clock.Now().Add(10*time.Second), func() { close(fired) })
	al.Kill()
	al.Kill() // double kill is a no-op (R4)

	clock.Advance(10 * time.Second)

	select {
	case <-fired:
		t.Fatal("killed alarm fired")
	case <-time.After(50 * time.Millisecond):
	}
}

package fake

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/simbatch/pkg/simerr"
	"github.com/cuemby/simbatch/pkg/simkernel"
)

// Executor runs for a fixed simulated Duration and then reports
// success, unless Stop is called first, in which case it reports
// failure with the requested TerminationCause immediately, without
// waiting for the remaining simulated time to elapse.
type Executor struct {
	clock    *Clock
	duration time.Duration

	mu       sync.Mutex
	stopped  bool
	cause    simkernel.TerminationCause
	stopCh   chan struct{}
	resultCh chan simkernel.ExecutorResult
}

// NewExecutor creates an executor that, once started, sleeps for
// duration of simulated time before reporting success.
func NewExecutor(clock *Clock, duration time.Duration) *Executor {
	return &Executor{clock: clock, duration: duration, stopCh: make(chan struct{})}
}

func (e *Executor) Start(ctx context.Context) <-chan simkernel.ExecutorResult {
	e.resultCh = make(chan simkernel.ExecutorResult, 1)
	go e.run(ctx)
	return e.resultCh
}

func (e *Executor) run(ctx context.Context) {
	slept := make(chan error, 1)
	go func() { slept <- e.clock.Sleep(ctx, e.duration) }()

	select {
	case <-e.stopCh:
		e.mu.Lock()
		cause := e.cause
		e.mu.Unlock()
		e.resultCh <- simkernel.ExecutorResult{Success: false, FailureCause: terminationError(cause)}
	case err := <-slept:
		if err != nil {
			e.resultCh <- simkernel.ExecutorResult{Success: false, FailureCause: err}
			return
		}
		e.resultCh <- simkernel.ExecutorResult{Success: true}
	}
}

// Stop asks the executor to terminate early with the given cause.
func (e *Executor) Stop(cause simkernel.TerminationCause) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	e.cause = cause
	close(e.stopCh)
}

func terminationError(cause simkernel.TerminationCause) error {
	switch cause {
	case simkernel.TerminationTimeout:
		return simerr.JobTimeout("")
	case simkernel.TerminationJobKilled:
		return simerr.JobKilled("")
	default:
		return simerr.InvalidRequest("executor stopped with unspecified cause")
	}
}

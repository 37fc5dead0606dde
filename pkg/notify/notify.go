package notify

import (
	"github.com/cuemby/simbatch/pkg/job"
	"github.com/rs/zerolog"
)

// JobDone is delivered when a compound job's batch job completed
// successfully.
type JobDone struct {
	Job *job.BatchJob
}

// JobFailed is delivered when a compound job's batch job did not
// complete successfully.
type JobFailed struct {
	Job   *job.BatchJob
	Cause error
}

// InvocationDone is delivered when a serverless invocation completed
// successfully.
type InvocationDone struct {
	Invocation *job.Invocation
}

// InvocationFailed is delivered when a serverless invocation did not
// complete successfully.
type InvocationFailed struct {
	Invocation *job.Invocation
	Cause      error
}

// InvocationEndpoint receives serverless invocation completion
// notifications. Unlike a CompoundJob's push/pop callback stack,
// ownership of an Invocation never rotates, so the endpoint is supplied
// once, at invocation time, and held for the invocation's lifetime.
type InvocationEndpoint interface {
	OnInvocationDone(inv *job.Invocation)
	OnInvocationFailed(inv *job.Invocation, cause error)
}

// delivery is one queued unit of notification work.
type delivery func()

// Notifier asynchronously delivers completion callbacks over a
// buffered channel and a single dispatching goroutine, targeting
// exactly one recipient per notification — the compound job's current
// callback-stack owner — rather than broadcasting to every subscriber,
// since job completion is point-to-point, not a cluster-wide event.
type Notifier struct {
	queue  chan delivery
	stopCh chan struct{}
	logger zerolog.Logger
}

// NewNotifier creates a Notifier with the given queue depth. A depth
// of 0 uses an unbuffered channel, which makes Deliver* calls block
// until Start's dispatch loop picks them up.
func NewNotifier(queueDepth int, logger zerolog.Logger) *Notifier {
	return &Notifier{
		queue:  make(chan delivery, queueDepth),
		stopCh: make(chan struct{}),
		logger: logger,
	}
}

// Start begins the dispatch loop in its own goroutine.
func (n *Notifier) Start() {
	go n.run()
}

// Stop halts the dispatch loop. Deliveries already queued are
// dropped; callers that need every notification delivered should wait
// for their own completion signals before calling Stop.
func (n *Notifier) Stop() {
	close(n.stopCh)
}

func (n *Notifier) run() {
	for {
		select {
		case d := <-n.queue:
			d()
		case <-n.stopCh:
			return
		}
	}
}

func (n *Notifier) enqueue(d delivery) {
	select {
	case n.queue <- d:
	case <-n.stopCh:
	}
}

// DeliverJobDone pops bj.Job's current callback owner and invokes
// OnJobDone on it. If the job has no callback owner (it was never
// pushed, or already popped), the notification is dropped with a
// warning log.
func (n *Notifier) DeliverJobDone(bj *job.BatchJob) {
	n.enqueue(func() {
		ep := bj.Job.PopCallback()
		bj.Job.MarkDone()
		if ep == nil {
			n.logger.Warn().Msg("job has no callback owner to notify of completion")
			return
		}
		ep.OnJobDone(bj)
	})
}

// DeliverJobFailed pops bj.Job's current callback owner and invokes
// OnJobFailed on it with cause.
func (n *Notifier) DeliverJobFailed(bj *job.BatchJob, cause error) {
	n.enqueue(func() {
		ep := bj.Job.PopCallback()
		bj.Job.MarkFailed(cause)
		if ep == nil {
			n.logger.Warn().Msg("job has no callback owner to notify of failure")
			return
		}
		ep.OnJobFailed(bj, cause)
	})
}

// DeliverInvocationDone invokes ep.OnInvocationDone for a successfully
// completed invocation. A nil ep (no endpoint was ever registered for
// this invocation) silently drops the notification.
func (n *Notifier) DeliverInvocationDone(ep InvocationEndpoint, inv *job.Invocation) {
	n.enqueue(func() {
		if ep == nil {
			return
		}
		ep.OnInvocationDone(inv)
	})
}

// DeliverInvocationFailed invokes ep.OnInvocationFailed for an
// invocation that did not complete successfully.
func (n *Notifier) DeliverInvocationFailed(ep InvocationEndpoint, inv *job.Invocation, cause error) {
	n.enqueue(func() {
		if ep == nil {
			return
		}
		ep.OnInvocationFailed(inv, cause)
	})
}

package notify

import (
	"testing"
	"time"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEndpoint struct {
	done   chan *job.BatchJob
	failed chan error
}

func newRecordingEndpoint() *recordingEndpoint {
	return &recordingEndpoint{done: make(chan *job.BatchJob, 1), failed: make(chan error, 1)}
}

func (r *recordingEndpoint) OnJobDone(bj *job.BatchJob)              { r.done <- bj }
func (r *recordingEndpoint) OnJobFailed(bj *job.BatchJob, cause error) { r.failed <- cause }

func newTestBatchJob() *job.BatchJob {
	cj := job.NewCompoundJob("j1", job.NewGenericAction("a", 1, 0))
	return job.NewBatchJob(1, cj, 1, 1, 60, time.Unix(0, 0), "user", "")
}

func TestNotifierDeliversJobDone(t *testing.T) {
	n := NewNotifier(4, zerolog.Nop())
	n.Start()
	defer n.Stop()

	bj := newTestBatchJob()
	ep := newRecordingEndpoint()
	bj.Job.PushCallback(ep)

	n.DeliverJobDone(bj)

	select {
	case got := <-ep.done:
		require.Equal(t, bj, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnJobDone")
	}
	assert.Equal(t, job.CompoundJobDone, bj.Job.State())
}

func TestNotifierDeliversJobFailed(t *testing.T) {
	n := NewNotifier(4, zerolog.Nop())
	n.Start()
	defer n.Stop()

	bj := newTestBatchJob()
	ep := newRecordingEndpoint()
	bj.Job.PushCallback(ep)

	cause := assertionError("boom")
	n.DeliverJobFailed(bj, cause)

	select {
	case got := <-ep.failed:
		require.Equal(t, cause, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnJobFailed")
	}
	assert.Equal(t, job.CompoundJobFailed, bj.Job.State())
}

func TestNotifierDropsWithoutOwner(t *testing.T) {
	n := NewNotifier(4, zerolog.Nop())
	n.Start()
	defer n.Stop()

	bj := newTestBatchJob()
	// No callback pushed; delivery must not panic, just log and drop.
	n.DeliverJobDone(bj)

	// Give the dispatch goroutine a moment to process before the test
	// returns, since there is no observable side effect to wait on.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, job.CompoundJobDone, bj.Job.State())
}

type assertionError string

func (e assertionError) Error() string { return string(e) }

type recordingInvocationEndpoint struct {
	done   chan *job.Invocation
	failed chan error
}

func newRecordingInvocationEndpoint() *recordingInvocationEndpoint {
	return &recordingInvocationEndpoint{done: make(chan *job.Invocation, 1), failed: make(chan error, 1)}
}

func (r *recordingInvocationEndpoint) OnInvocationDone(inv *job.Invocation) { r.done <- inv }
func (r *recordingInvocationEndpoint) OnInvocationFailed(inv *job.Invocation, cause error) {
	r.failed <- cause
}

func TestNotifierDeliversInvocationDone(t *testing.T) {
	n := NewNotifier(4, zerolog.Nop())
	n.Start()
	defer n.Stop()

	rf := &job.RegisteredFunction{Function: job.NewFunction("f", nil, job.ImageFile{})}
	inv := job.NewInvocation("i1", rf, job.BytesPayload{}, time.Unix(0, 0))
	ep := newRecordingInvocationEndpoint()

	n.DeliverInvocationDone(ep, inv)

	select {
	case got := <-ep.done:
		require.Equal(t, inv, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnInvocationDone")
	}
}

func TestNotifierDeliversInvocationFailedDropsWithoutEndpoint(t *testing.T) {
	n := NewNotifier(4, zerolog.Nop())
	n.Start()
	defer n.Stop()

	rf := &job.RegisteredFunction{Function: job.NewFunction("f", nil, job.ImageFile{})}
	inv := job.NewInvocation("i1", rf, job.BytesPayload{}, time.Unix(0, 0))

	// No endpoint registered; delivery must not panic.
	n.DeliverInvocationFailed(nil, inv, assertionError("boom"))
	time.Sleep(50 * time.Millisecond)
}

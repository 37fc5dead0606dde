package batchservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/simerr"
	"github.com/cuemby/simbatch/pkg/simkernel"
	"github.com/cuemby/simbatch/pkg/simkernel/fake"
)

type recordingEndpoint struct {
	done   chan *job.BatchJob
	failed chan error
}

func newRecordingEndpoint() *recordingEndpoint {
	return &recordingEndpoint{done: make(chan *job.BatchJob, 1), failed: make(chan error, 1)}
}

func (r *recordingEndpoint) OnJobDone(bj *job.BatchJob)                { r.done <- bj }
func (r *recordingEndpoint) OnJobFailed(bj *job.BatchJob, cause error) { r.failed <- cause }

func newTestCompoundJob(name string) *job.CompoundJob {
	return job.NewCompoundJob(name, job.NewGenericAction("a", 1, 0))
}

// newTestService builds a batch service over a fake, manually-advanced
// clock, wired to the fake executor and alarm clock so tests can drive
// simulated time deterministically.
func newTestService(t *testing.T, numHosts, coresPerHost int, cfg Config) (*BatchService, *fake.Clock) {
	t.Helper()
	clock := fake.NewClock(time.Unix(0, 0))
	alarms := fake.NewAlarmClock(clock)
	cluster := fake.NewCluster(numHosts, coresPerHost, 1<<30, 0)
	newExecutor := func(d time.Duration) simkernel.Executor { return fake.NewExecutor(clock, d) }

	svc, err := NewBatchService(cluster, clock, alarms, newExecutor, cfg)
	require.NoError(t, err)
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc, clock
}

// TestFCFSBlocksBehindHeadOfQueue covers a 2-node x 4-core cluster;
// A(-N2,-c4,-t10) then B(-N1,-c1,-t10). A starts immediately and holds
// both nodes; B stays queued until A completes at t=10.
func TestFCFSBlocksBehindHeadOfQueue(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 2, 4, cfg)

	epA := newRecordingEndpoint()
	cjA := newTestCompoundJob("A")
	cjA.PushCallback(epA)
	bjA, err := svc.SubmitJob(cjA, JobArgs{Nodes: 2, CoresPerNode: 4, WalltimeSeconds: 10, User: "u"})
	require.NoError(t, err)

	epB := newRecordingEndpoint()
	cjB := newTestCompoundJob("B")
	cjB.PushCallback(epB)
	bjB, err := svc.SubmitJob(cjB, JobArgs{Nodes: 1, CoresPerNode: 1, WalltimeSeconds: 10, User: "u"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond) // let the service loop process admission

	queue := svc.GetQueue()
	require.Len(t, queue, 1, "only B should remain queued; A is running")
	assert.Equal(t, "B", queue[0].Name)

	clock.Advance(10 * time.Second)
	select {
	case got := <-epA.done:
		assert.Equal(t, bjA, got)
	case <-time.After(time.Second):
		t.Fatal("A never completed")
	}

	clock.Advance(10 * time.Second)
	select {
	case got := <-epB.done:
		assert.Equal(t, bjB, got)
	case <-time.After(time.Second):
		t.Fatal("B never completed")
	}
}

// TestTerminateRunningJobReportsJobKilled covers an explicit
// termination request for a job that is already running.
func TestTerminateRunningJobReportsJobKilled(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 1, 4, cfg)

	ep := newRecordingEndpoint()
	cj := newTestCompoundJob("A")
	cj.PushCallback(ep)
	bj, err := svc.SubmitJob(cj, JobArgs{Nodes: 1, CoresPerNode: 1, WalltimeSeconds: 100, User: "u"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, svc.TerminateJob(bj.ID))

	select {
	case cause := <-ep.failed:
		require.Error(t, cause)
		assert.True(t, simerr.Is(cause, simerr.KindJobKilled))
	case <-time.After(time.Second):
		t.Fatal("termination never reported a failure")
	}
	_ = clock
}

// TestTerminateUnknownJobIsNotAllowed covers terminating a job ID the
// service has never seen.
func TestTerminateUnknownJobIsNotAllowed(t *testing.T) {
	cfg := DefaultConfig()
	svc, _ := newTestService(t, 1, 4, cfg)

	err := svc.TerminateJob(999)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.KindNotAllowed))
}

// TestTimeoutProducesJobTimeoutFailure covers a job whose actual
// recorded runtime would overrun its walltime: it is stopped by an
// alarm and reported with a timeout cause.
func TestTimeoutProducesJobTimeoutFailure(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 1, 4, cfg)

	ep := newRecordingEndpoint()
	cj := newTestCompoundJob("A")
	cj.PushCallback(ep)

	reply := make(chan *job.BatchJob, 1)
	go func() {
		args := JobArgs{Nodes: 1, CoresPerNode: 1, WalltimeSeconds: 5, User: "u"}
		bj, err := svc.SubmitTraceJob(cj, TraceJob{Nodes: 1, CoresPerNode: 1, WalltimeSeconds: args.WalltimeSeconds, ActualRuntimeSeconds: 50, User: "u"})
		require.NoError(t, err)
		reply <- bj
	}()

	var bj *job.BatchJob
	select {
	case bj = <-reply:
	case <-time.After(time.Second):
		t.Fatal("submission never completed")
	}
	require.NotNil(t, bj)

	clock.Advance(5 * time.Second)

	select {
	case cause := <-ep.failed:
		require.Error(t, cause)
		assert.True(t, simerr.Is(cause, simerr.KindJobTimeout))
	case <-time.After(time.Second):
		t.Fatal("job never timed out")
	}
}

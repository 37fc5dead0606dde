package batchsched

import (
	"testing"
	"time"

	"github.com/cuemby/simbatch/pkg/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConservativeFixture(coreLevel bool, hosts []string, coresPerHost int) (*ConservativeBackfillScheduler, *fakeHandle, *timeline.Timeline) {
	handle := newFakeHandle(hosts, coresPerHost)
	cores := make(map[string]int, len(hosts))
	for _, h := range hosts {
		cores[h] = coresPerHost
	}
	tl := timeline.New(hosts, cores)
	tl.SetTimeOrigin(handle.now)
	sched := NewConservativeBackfillScheduler(coreLevel)
	sched.Init(handle, tl)
	return sched, handle, tl
}

func TestConservativeBackfillHoldsReservationForSecondJob(t *testing.T) {
	sched, handle, _ := newConservativeFixture(false, []string{"node-0"}, 4)

	j1 := newTestJob(1, 1, 4, 100, handle.now)
	j2 := newTestJob(2, 1, 4, 50, handle.now)
	sched.ProcessJobSubmission(j1)
	sched.ProcessJobSubmission(j2)

	// j1 reserved the only host starting now; j2's reservation must
	// be pushed to after j1 finishes.
	assert.Equal(t, handle.now, sched.reserved[j1.ID].start)
	assert.Equal(t, handle.now.Add(100*time.Second), sched.reserved[j2.ID].start)

	started := sched.ProcessQueuedJobs()
	require.Len(t, started, 1)
	assert.Equal(t, j1, started[0])
	require.Len(t, sched.queue, 1)
	assert.Equal(t, j2, sched.queue[0])
}

func TestConservativeBackfillCompactsOnEarlyCompletion(t *testing.T) {
	sched, handle, _ := newConservativeFixture(false, []string{"node-0"}, 4)

	j1 := newTestJob(1, 1, 4, 100, handle.now)
	j2 := newTestJob(2, 1, 4, 50, handle.now)
	sched.ProcessJobSubmission(j1)
	sched.ProcessJobSubmission(j2)
	sched.ProcessQueuedJobs() // starts j1, leaves j2 queued with a 100s-out reservation

	// j1 finishes early, at 40s instead of its assumed 100s walltime.
	handle.now = handle.now.Add(40 * time.Second)
	sched.ProcessJobCompletion(j1)

	// Compaction should have pulled j2's reservation forward to now,
	// since the only host is free again.
	assert.Equal(t, handle.now, sched.reserved[j2.ID].start)

	started := sched.ProcessQueuedJobs()
	require.Len(t, started, 1)
	assert.Equal(t, j2, started[0])
}

func TestConservativeBackfillCoreLevelSharesHost(t *testing.T) {
	sched, handle, _ := newConservativeFixture(true, []string{"node-0"}, 4)

	j1 := newTestJob(1, 1, 2, 100, handle.now)
	j2 := newTestJob(2, 1, 2, 50, handle.now)
	sched.ProcessJobSubmission(j1)
	sched.ProcessJobSubmission(j2)

	// Both fit on the same host at once: 2 + 2 = 4 cores.
	assert.Equal(t, handle.now, sched.reserved[j1.ID].start)
	assert.Equal(t, handle.now, sched.reserved[j2.ID].start)

	started := sched.ProcessQueuedJobs()
	assert.Len(t, started, 2)
}

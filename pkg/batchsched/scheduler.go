package batchsched

import (
	"time"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/timeline"
)

// StartTimeRequest is one job's shape, used for start-time estimation
// without actually submitting it.
type StartTimeRequest struct {
	JobID           uint64
	NodesRequested  int
	CoresPerNode    int
	WalltimeSeconds int64
}

// Scheduler is the common interface every batch scheduling algorithm
// implements. A Scheduler never calls back into the
// compute service except through the ServiceHandle it is given at
// Init.
type Scheduler interface {
	// Init binds the scheduler to its service handle and the
	// availability timeline it should reason over.
	Init(handle ServiceHandle, tl *timeline.Timeline)

	// Launch starts whatever background bookkeeping the algorithm
	// needs. None of the algorithms in this package needs any, so
	// each of their Launch methods does nothing.
	Launch()

	// Shutdown releases any scheduler-held resources. It does not
	// touch jobs already running.
	Shutdown()

	// ProcessJobSubmission admits a newly submitted job into the
	// scheduler's queue.
	ProcessJobSubmission(bj *job.BatchJob)

	// ProcessJobCompletion notifies the scheduler that bj finished
	// running, so it can release held reservations and potentially
	// start backfilled jobs early.
	ProcessJobCompletion(bj *job.BatchJob)

	// ProcessJobFailure notifies the scheduler that bj failed while
	// running.
	ProcessJobFailure(bj *job.BatchJob)

	// ProcessJobTermination notifies the scheduler that bj was killed
	// while running (e.g. by an operator or a timeout alarm).
	ProcessJobTermination(bj *job.BatchJob)

	// ProcessQueuedJobs re-evaluates the queue and starts every job
	// the algorithm decides can run now, returning them in the order
	// started.
	ProcessQueuedJobs() []*job.BatchJob

	// Queued returns a snapshot of the jobs currently waiting, in
	// queue order, for observability.
	Queued() []*job.BatchJob

	// ScheduleOnHosts starts bj immediately on exactly the given
	// hosts, bypassing the algorithm's own host-selection, and
	// removes it from the queue if it was queued.
	ScheduleOnHosts(bj *job.BatchJob, hosts []string) error

	// GetStartTimeEstimates returns, for every request it could
	// produce a reasonable estimate for, the simulated instant the job
	// would start if submitted now. Requests it cannot estimate for
	// (e.g. impossibly large) are omitted.
	GetStartTimeEstimates(requests []StartTimeRequest) map[uint64]time.Time
}

// removeJob returns queue with bj removed, preserving order.
func removeJob(queue []*job.BatchJob, bj *job.BatchJob) []*job.BatchJob {
	out := queue[:0:0]
	for _, q := range queue {
		if q != bj {
			out = append(out, q)
		}
	}
	return out
}

// candidateHosts turns a timeline free-cores snapshot into the
// hostCandidate slice host-selection policies operate on.
func candidateHosts(free map[string]int, minCores int) []hostCandidate {
	var out []hostCandidate
	for h, c := range free {
		if c >= minCores {
			out = append(out, hostCandidate{Name: h, FreeCores: c})
		}
	}
	return out
}

func hostNames(candidates []hostCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Name
	}
	return out
}

func allocationFromCores(alloc map[string]int) map[string]job.NodeAllocation {
	out := make(map[string]job.NodeAllocation, len(alloc))
	for h, c := range alloc {
		out[h] = job.NodeAllocation{Cores: c}
	}
	return out
}

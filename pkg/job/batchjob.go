package job

import "time"

// BatchJobState is the lifecycle state of a batch job as tracked by
// the batch compute service.
type BatchJobState string

const (
	BatchJobQueued     BatchJobState = "queued"
	BatchJobScheduled  BatchJobState = "scheduled"
	BatchJobRunning    BatchJobState = "running"
	BatchJobDone       BatchJobState = "done"
	BatchJobFailed     BatchJobState = "failed"
	BatchJobTerminated BatchJobState = "terminated"
	BatchJobTimedOut   BatchJobState = "timed_out"
)

// NodeAllocation records the cores and RAM a batch job holds on one
// host while running.
type NodeAllocation struct {
	Cores int
	RAM   int64
}

// BatchJob is the scheduler-side wrapper around a CompoundJob. It is
// exclusively owned by the batch compute service for its entire
// lifetime; the compound job it wraps is what travels back to the
// submitter via the callback stack.
type BatchJob struct {
	ID    uint64
	Name  string
	Job   *CompoundJob

	NodesRequested int
	CoresPerNode   int
	WalltimeSeconds int64 // already includes RJMS padding

	// ActualRuntimeSeconds is the real runtime a workload trace
	// recorded for this job, if any.
	// Zero means no trace-provided runtime is known and the job is
	// assumed to run for exactly its requested walltime.
	ActualRuntimeSeconds int64

	User  string
	Color string

	Arrival     time.Time
	Begin       time.Time // zero until started
	ExpectedEnd time.Time // zero until started

	State      BatchJobState
	Allocation map[string]NodeAllocation

	// Scheduler-private annotations. No scheduler in pkg/batchsched
	// sets or reads them; those keep their reservations in the
	// timeline instead.
	ReservedStart       time.Time
	ReservedEnd         time.Time
	AssignedNodeIndices []int
}

// NewBatchJob constructs a queued batch job wrapping cj.
func NewBatchJob(id uint64, cj *CompoundJob, nodes, coresPerNode int, walltimeSeconds int64, arrival time.Time, user, color string) *BatchJob {
	return &BatchJob{
		ID:              id,
		Name:            cj.Name(),
		Job:             cj,
		NodesRequested:  nodes,
		CoresPerNode:    coresPerNode,
		WalltimeSeconds: walltimeSeconds,
		User:            user,
		Color:           color,
		Arrival:         arrival,
		State:           BatchJobQueued,
		Allocation:      make(map[string]NodeAllocation),
	}
}

// Walltime returns the requested walltime as a time.Duration.
func (b *BatchJob) Walltime() time.Duration {
	return time.Duration(b.WalltimeSeconds) * time.Second
}

// Start marks the job running at t, deriving ExpectedEnd from its
// walltime, and records the given per-host allocation.
func (b *BatchJob) Start(t time.Time, allocation map[string]NodeAllocation) {
	b.Begin = t
	b.ExpectedEnd = t.Add(b.Walltime())
	b.Allocation = allocation
	b.State = BatchJobRunning
}

package job

import "sync"

// CompoundJobState is the terminal/non-terminal status of a compound
// job.
type CompoundJobState string

const (
	CompoundJobPending CompoundJobState = "pending"
	CompoundJobDone    CompoundJobState = "done"
	CompoundJobFailed  CompoundJobState = "failed"
)

// CallbackEndpoint receives job-lifecycle notifications. The submitter
// pushes itself onto a job's callback stack; on completion the
// notifier pops the top endpoint and notifies it, so exactly one
// owner at a time receives the job's outcome.
type CallbackEndpoint interface {
	OnJobDone(job *BatchJob)
	OnJobFailed(job *BatchJob, cause error)
}

// CompoundJob is the unit of user-submitted work: a stable name, an
// ordered list of opaque Actions, and a stack of callback endpoints.
// It is exclusively owned by its submitter until admitted, shared
// with the compute service from admission to completion, and mutated
// only by whoever is on top of the callback stack.
type CompoundJob struct {
	mu       sync.Mutex
	name     string
	actions  []Action
	state    CompoundJobState
	stack    []CallbackEndpoint
}

// NewCompoundJob creates a pending compound job with the given name
// and actions. name must be unique among concurrently submitted jobs
// for a given submitter, though the core does not itself enforce
// uniqueness (that is the submitter's responsibility).
func NewCompoundJob(name string, actions ...Action) *CompoundJob {
	return &CompoundJob{name: name, actions: actions, state: CompoundJobPending}
}

func (j *CompoundJob) Name() string { return j.name }

func (j *CompoundJob) Actions() []Action {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Action, len(j.actions))
	copy(out, j.actions)
	return out
}

// MinRequiredCores is the aggregate minimum-cores requirement derived
// from this job's actions.
func (j *CompoundJob) MinRequiredCores() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	max := 0
	for _, a := range j.actions {
		if a.MinCores() > max {
			max = a.MinCores()
		}
	}
	return max
}

// MinRequiredRAM is the aggregate minimum-memory requirement derived
// from this job's actions.
func (j *CompoundJob) MinRequiredRAM() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	var max int64
	for _, a := range j.actions {
		if a.MinRAM() > max {
			max = a.MinRAM()
		}
	}
	return max
}

func (j *CompoundJob) State() CompoundJobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// PushCallback installs ep as the new exclusive owner.
func (j *CompoundJob) PushCallback(ep CallbackEndpoint) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stack = append(j.stack, ep)
}

// PopCallback removes and returns the current owner, restoring
// ownership to whoever was below it (typically the original
// submitter). Popping an empty stack returns nil.
func (j *CompoundJob) PopCallback() CallbackEndpoint {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.stack) == 0 {
		return nil
	}
	top := j.stack[len(j.stack)-1]
	j.stack = j.stack[:len(j.stack)-1]
	return top
}

// CurrentCallback returns the top of the callback stack without
// removing it, or nil if the stack is empty.
func (j *CompoundJob) CurrentCallback() CallbackEndpoint {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.stack) == 0 {
		return nil
	}
	return j.stack[len(j.stack)-1]
}

// MarkDone transitions the job to DONE. Safe to call only by the
// current owner.
func (j *CompoundJob) MarkDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = CompoundJobDone
}

// MarkFailed transitions the job to FAILED and propagates cause into
// every action that does not already carry an explicit failure cause.
func (j *CompoundJob) MarkFailed(cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = CompoundJobFailed
	for _, a := range j.actions {
		if a.FailureCause() == nil {
			a.SetFailureCause(cause)
		}
	}
}

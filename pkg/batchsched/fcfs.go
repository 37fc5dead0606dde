package batchsched

import (
	"strconv"
	"time"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/timeline"
)

// FCFSScheduler runs queued jobs strictly in submission order: if the
// job at the head of the queue cannot start, the whole queue blocks
// behind it, even if a later job could run immediately. This is the simplest member of the
// family and the only one that applies the configurable host-selection
// policy.
type FCFSScheduler struct {
	handle ServiceHandle
	tl     *timeline.Timeline
	policy HostSelectionPolicy
	rr     roundRobinCursor
	queue  []*job.BatchJob
}

// NewFCFSScheduler creates an FCFS scheduler using the given
// host-selection policy.
func NewFCFSScheduler(policy HostSelectionPolicy) *FCFSScheduler {
	return &FCFSScheduler{policy: policy}
}

func (s *FCFSScheduler) Init(handle ServiceHandle, tl *timeline.Timeline) {
	s.handle = handle
	s.tl = tl
}

func (s *FCFSScheduler) Launch() {}

func (s *FCFSScheduler) Shutdown() {
	s.queue = nil
}

func (s *FCFSScheduler) ProcessJobSubmission(bj *job.BatchJob) {
	s.queue = append(s.queue, bj)
}

func (s *FCFSScheduler) ProcessJobCompletion(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
}

func (s *FCFSScheduler) ProcessJobFailure(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
}

func (s *FCFSScheduler) ProcessJobTermination(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
}

// ProcessQueuedJobs tries to start jobs from the head of the queue,
// stopping at the first one that cannot start now (FCFS blocking).
func (s *FCFSScheduler) ProcessQueuedJobs() []*job.BatchJob {
	var started []*job.BatchJob
	now := s.handle.Now()

	for len(s.queue) > 0 {
		bj := s.queue[0]
		alloc, ok := s.tryStart(bj, now)
		if !ok {
			break
		}
		s.queue = s.queue[1:]
		s.handle.StartJob(bj, alloc)
		started = append(started, bj)
	}
	return started
}

func (s *FCFSScheduler) tryStart(bj *job.BatchJob, now time.Time) (map[string]job.NodeAllocation, bool) {
	end := now.Add(bj.Walltime())
	free := s.tl.FreeCoresDuring(now, end)
	candidates := candidateHosts(free, bj.CoresPerNode)
	if len(candidates) < bj.NodesRequested {
		return nil, false
	}
	chosen := selectHosts(s.policy, candidates, bj.NodesRequested, &s.rr)
	alloc, err := s.tl.AddCoresOnHosts(jobKey(bj), hostNames(chosen), bj.CoresPerNode, now, end)
	if err != nil {
		return nil, false
	}
	return allocationFromCores(alloc), true
}

// Queued returns a snapshot of the FCFS queue.
func (s *FCFSScheduler) Queued() []*job.BatchJob {
	out := make([]*job.BatchJob, len(s.queue))
	copy(out, s.queue)
	return out
}

// ScheduleOnHosts starts bj now on exactly the given hosts, removing
// it from the queue if present.
func (s *FCFSScheduler) ScheduleOnHosts(bj *job.BatchJob, hosts []string) error {
	now := s.handle.Now()
	end := now.Add(bj.Walltime())
	alloc, err := s.tl.AddCoresOnHosts(jobKey(bj), hosts, bj.CoresPerNode, now, end)
	if err != nil {
		return err
	}
	s.queue = removeJob(s.queue, bj)
	s.handle.StartJob(bj, allocationFromCores(alloc))
	return nil
}

// GetStartTimeEstimates reports, for each request, the earliest
// instant at which that many nodes at that many cores each would be
// free for the requested walltime, ignoring FCFS queue position.
func (s *FCFSScheduler) GetStartTimeEstimates(requests []StartTimeRequest) map[uint64]time.Time {
	out := make(map[uint64]time.Time, len(requests))
	for _, r := range requests {
		duration := time.Duration(r.WalltimeSeconds) * time.Second
		start, _, err := s.tl.FindEarliestStartTimeCoreLevel(r.NodesRequested, r.CoresPerNode, duration)
		if err != nil {
			continue
		}
		out[r.JobID] = start
	}
	return out
}

// jobKey derives the timeline reservation key for a batch job. IDs,
// not names, are used since names are only unique per submitter.
func jobKey(bj *job.BatchJob) string {
	return strconv.FormatUint(bj.ID, 10)
}

package batchsched

import (
	"time"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/timeline"
)

// EasyBackfillScheduler only ever gives a reservation to the job at
// the head of the queue (its "shadow time"); every other queued job
// is free to start ahead of it ("backfilling") as long as doing so is
// safe. Depth controls how safety is judged.
type EasyBackfillScheduler struct {
	handle ServiceHandle
	tl     *timeline.Timeline
	depth  int

	queue []*job.BatchJob
}

// NewEasyBackfillScheduler creates an easy backfilling scheduler at
// the given depth (0 or 1).
func NewEasyBackfillScheduler(depth int) *EasyBackfillScheduler {
	return &EasyBackfillScheduler{depth: depth}
}

func (s *EasyBackfillScheduler) Init(handle ServiceHandle, tl *timeline.Timeline) {
	s.handle = handle
	s.tl = tl
}

func (s *EasyBackfillScheduler) Launch() {}

func (s *EasyBackfillScheduler) Shutdown() {
	s.queue = nil
}

func (s *EasyBackfillScheduler) ProcessJobSubmission(bj *job.BatchJob) {
	s.queue = append(s.queue, bj)
}

func (s *EasyBackfillScheduler) ProcessJobCompletion(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
}

func (s *EasyBackfillScheduler) ProcessJobFailure(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
}

func (s *EasyBackfillScheduler) ProcessJobTermination(bj *job.BatchJob) {
	s.tl.Remove(jobKey(bj))
}

// ProcessQueuedJobs starts the head of the queue if it fits right now,
// and otherwise leaves a shadow reservation in place (depth 1 only)
// while scanning the rest of the queue for jobs that can safely start
// ahead of it.
func (s *EasyBackfillScheduler) ProcessQueuedJobs() []*job.BatchJob {
	if len(s.queue) == 0 {
		return nil
	}
	now := s.handle.Now()
	var started []*job.BatchJob

	head := s.queue[0]
	if alloc, ok := s.tryStartNow(head, now); ok {
		s.handle.StartJob(head, alloc)
		started = append(started, head)
		s.queue = s.queue[1:]
		return append(started, s.ProcessQueuedJobs()...)
	}

	var shadowKey string
	if s.depth >= 1 {
		shadowStart, hosts, err := s.tl.FindEarliestStartTimeCoreLevel(head.NodesRequested, head.CoresPerNode, head.Walltime())
		if err == nil {
			shadowKey = "shadow-" + jobKey(head)
			s.tl.AddCoresOnHosts(shadowKey, hosts, head.CoresPerNode, shadowStart, shadowStart.Add(head.Walltime()))
			defer s.tl.Remove(shadowKey)
		}
	}

	var remaining []*job.BatchJob
	remaining = append(remaining, head)
	for _, bj := range s.queue[1:] {
		alloc, ok := s.tryStartNow(bj, now)
		if !ok {
			remaining = append(remaining, bj)
			continue
		}
		s.handle.StartJob(bj, alloc)
		started = append(started, bj)
	}
	s.queue = remaining
	return started
}

func (s *EasyBackfillScheduler) tryStartNow(bj *job.BatchJob, now time.Time) (map[string]job.NodeAllocation, bool) {
	end := now.Add(bj.Walltime())
	free := s.tl.FreeCoresDuring(now, end)
	candidates := candidateHosts(free, bj.CoresPerNode)
	if len(candidates) < bj.NodesRequested {
		return nil, false
	}
	chosen := hostNames(firstN(candidates, bj.NodesRequested))
	alloc, err := s.tl.AddCoresOnHosts(jobKey(bj), chosen, bj.CoresPerNode, now, end)
	if err != nil {
		return nil, false
	}
	return allocationFromCores(alloc), true
}

// Queued returns a snapshot of the queue.
func (s *EasyBackfillScheduler) Queued() []*job.BatchJob {
	out := make([]*job.BatchJob, len(s.queue))
	copy(out, s.queue)
	return out
}

// ScheduleOnHosts starts bj immediately on exactly the given hosts,
// bypassing the algorithm's own backfill decision.
func (s *EasyBackfillScheduler) ScheduleOnHosts(bj *job.BatchJob, hosts []string) error {
	now := s.handle.Now()
	alloc, err := s.tl.AddCoresOnHosts(jobKey(bj), hosts, bj.CoresPerNode, now, now.Add(bj.Walltime()))
	if err != nil {
		return err
	}
	s.queue = removeJob(s.queue, bj)
	s.handle.StartJob(bj, allocationFromCores(alloc))
	return nil
}

// GetStartTimeEstimates reports the earliest instant each request
// could start given the reservations currently in the timeline,
// ignoring queue position. The depth-1 shadow reservation exists only
// while ProcessQueuedJobs runs, so it is not counted here.
func (s *EasyBackfillScheduler) GetStartTimeEstimates(requests []StartTimeRequest) map[uint64]time.Time {
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

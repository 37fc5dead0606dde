package batchservice

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/simbatch/pkg/batchsched"
	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/log"
	"github.com/cuemby/simbatch/pkg/metrics"
	"github.com/cuemby/simbatch/pkg/notify"
	"github.com/cuemby/simbatch/pkg/simerr"
	"github.com/cuemby/simbatch/pkg/simkernel"
	"github.com/cuemby/simbatch/pkg/timeline"
)

// ResourceInfo is a read-only snapshot of the service's cluster shape
// and current queue.
type ResourceInfo struct {
	Hosts           []string
	CoresPerHost    map[string]int
	RAMBytesPerHost map[string]int64
	QueueLength     int
	RunningCount    int
}

// Message is the sum type of every request the service loop accepts.
// The loop is the sole mutator of scheduler and timeline state, a
// goroutine-plus-select actor dispatching on message type instead of
// a single ticker event.
type Message interface{ isBatchServiceMessage() }

type jobSubmissionMsg struct {
	cj                   *job.CompoundJob
	args                 JobArgs
	actualRuntimeSeconds int64
	reply                chan *job.BatchJob
}

type terminateJobMsg struct {
	jobID uint64
	reply chan error
}

type queueSnapshotMsg struct {
	reply chan []*job.BatchJob
}

type resourceInfoMsg struct {
	reply chan ResourceInfo
}

type startTimeEstimatesMsg struct {
	requests []batchsched.StartTimeRequest
	reply    chan map[uint64]time.Time
}

type executorResultMsg struct {
	jobID uint64
	res   simkernel.ExecutorResult
}

type stopDaemonMsg struct{}

func (jobSubmissionMsg) isBatchServiceMessage()    {}
func (terminateJobMsg) isBatchServiceMessage()     {}
func (queueSnapshotMsg) isBatchServiceMessage()    {}
func (resourceInfoMsg) isBatchServiceMessage()     {}
func (startTimeEstimatesMsg) isBatchServiceMessage() {}
func (executorResultMsg) isBatchServiceMessage()   {}
func (stopDaemonMsg) isBatchServiceMessage()       {}

type runningJob struct {
	bj       *job.BatchJob
	executor simkernel.Executor
}

// BatchService is the batch compute service: it owns a
// scheduler and an availability timeline, admits jobs, and drives
// their execution to completion, failure, timeout, or termination.
type BatchService struct {
	hosts           []string
	coresPerHost    map[string]int
	ramBytesPerHost map[string]int64

	sched batchsched.Scheduler
	tl    *timeline.Timeline

	clock  simkernel.Clock
	alarms simkernel.AlarmClock

	newExecutor func(duration time.Duration) simkernel.Executor

	notifier *notify.Notifier
	cfg      Config
	logger   zerolog.Logger

	nextID        uint64
	running       map[uint64]*runningJob
	timeoutAlarms map[uint64]simkernel.Alarm

	inbox  chan Message
	stopCh chan struct{}
}

// NewBatchService constructs a batch service over view's cluster
// shape. newExecutor is the seam to the underlying simulation kernel's
// executor implementation; tests
// supply simkernel/fake.NewExecutor bound to a fake clock.
func NewBatchService(view simkernel.HostView, clock simkernel.Clock, alarms simkernel.AlarmClock, newExecutor func(time.Duration) simkernel.Executor, cfg Config) (*BatchService, error) {
	logger := log.WithComponent("batch")
	hosts := view.Hosts()
	coresPerHost := make(map[string]int, len(hosts))
	ramPerHost := make(map[string]int64, len(hosts))
	for _, h := range hosts {
		coresPerHost[h] = view.CoresPerHost(h)
		ramPerHost[h] = view.RAMBytesPerHost(h)
	}

	sched, err := cfg.BuildScheduler()
	if err != nil {
		return nil, err
	}

	s := &BatchService{
		hosts:           hosts,
		coresPerHost:    coresPerHost,
		ramBytesPerHost: ramPerHost,
		sched:           sched,
		tl:              timeline.New(hosts, coresPerHost),
		clock:           clock,
		alarms:          alarms,
		newExecutor:     newExecutor,
		notifier:        notify.NewNotifier(64, logger),
		cfg:             cfg,
		logger:          logger,
		running:         make(map[uint64]*runningJob),
		timeoutAlarms:   make(map[uint64]simkernel.Alarm),
		inbox:           make(chan Message, 64),
		stopCh:          make(chan struct{}),
	}
	s.tl.SetTimeOrigin(clock.Now())
	sched.Init(s, s.tl)
	return s, nil
}

// Start launches the notifier's dispatch goroutine, the scheduler, and
// the service's own message loop.
func (s *BatchService) Start() {
	s.notifier.Start()
	s.sched.Launch()
	go s.run()
}

// Stop halts the message loop, the scheduler, and the notifier. Jobs
// already running are left to finish; their results are simply never
// picked up.
func (s *BatchService) Stop() {
	close(s.stopCh)
	s.sched.Shutdown()
	s.notifier.Stop()
}

func (s *BatchService) run() {
	for {
		select {
		case msg := <-s.inbox:
			s.handle(msg)
		case <-s.stopCh:
			return
		}
	}
}

func (s *BatchService) handle(msg Message) {
	switch m := msg.(type) {
	case jobSubmissionMsg:
		s.handleSubmission(m)
	case terminateJobMsg:
		s.handleTerminate(m)
	case queueSnapshotMsg:
		m.reply <- s.sched.Queued()
	case resourceInfoMsg:
		m.reply <- s.resourceInfo()
	case startTimeEstimatesMsg:
		s.tl.SetTimeOrigin(s.clock.Now())
		m.reply <- s.sched.GetStartTimeEstimates(m.requests)
	case executorResultMsg:
		s.handleExecutorResult(m)
	case stopDaemonMsg:
		return
	default:
		s.logger.Error().Msg("batch service received an unrecognized message")
		panic("batchservice: unrecognized message type")
	}
}

func (s *BatchService) handleSubmission(m jobSubmissionMsg) {
	id := s.nextID
	s.nextID++
	bj := job.NewBatchJob(id, m.cj, m.args.Nodes, m.args.CoresPerNode,
		m.args.WalltimeSeconds+s.cfg.RJMSPaddingDelaySeconds, s.clock.Now(), m.args.User, m.args.Color)
	bj.ActualRuntimeSeconds = m.actualRuntimeSeconds

	s.sched.ProcessJobSubmission(bj)
	s.runScheduler()
	m.reply <- bj
}

func (s *BatchService) handleTerminate(m terminateJobMsg) {
	rj, ok := s.running[m.jobID]
	if !ok {
		m.reply <- simerr.NotAllowed("batch", "job is not currently running")
		return
	}
	rj.executor.Stop(simkernel.TerminationJobKilled)
	m.reply <- nil
}

func (s *BatchService) handleExecutorResult(m executorResultMsg) {
	rj, ok := s.running[m.jobID]
	if !ok {
		s.logger.Error().Uint64("job_id", m.jobID).Msg("executor result for a job that is not running")
		panic("batchservice: executor result for unknown job")
	}
	delete(s.running, m.jobID)
	if alarm, ok := s.timeoutAlarms[m.jobID]; ok {
		alarm.Kill()
		delete(s.timeoutAlarms, m.jobID)
	}

	bj := rj.bj
	if m.res.Success {
		bj.State = job.BatchJobDone
		s.sched.ProcessJobCompletion(bj)
		s.notifier.DeliverJobDone(bj)
	} else {
		cause := m.res.FailureCause
		switch {
		case simerr.Is(cause, simerr.KindJobTimeout):
			bj.State = job.BatchJobTimedOut
			metrics.BatchJobsFailed.WithLabelValues("timeout").Inc()
			s.sched.ProcessJobTermination(bj)
		case simerr.Is(cause, simerr.KindJobKilled):
			bj.State = job.BatchJobTerminated
			metrics.BatchJobsFailed.WithLabelValues("killed").Inc()
			s.sched.ProcessJobTermination(bj)
		default:
			bj.State = job.BatchJobFailed
			metrics.BatchJobsFailed.WithLabelValues("error").Inc()
			s.sched.ProcessJobFailure(bj)
		}
		s.notifier.DeliverJobFailed(bj, cause)
	}
	s.runScheduler()
}

// runScheduler re-evaluates the queue against the current instant and
// records the resulting queue depth and decision latency.
func (s *BatchService) runScheduler() {
	timer := metrics.NewTimer()
	s.tl.SetTimeOrigin(s.clock.Now())
	started := s.sched.ProcessQueuedJobs()
	timer.ObserveDuration(metrics.BatchSchedulingLatency)
	metrics.BatchQueueDepth.Set(float64(len(s.sched.Queued())))
	metrics.BatchJobsScheduled.Add(float64(len(started)))
}

func (s *BatchService) resourceInfo() ResourceInfo {
	cph := make(map[string]int, len(s.coresPerHost))
	for h, c := range s.coresPerHost {
		cph[h] = c
	}
	rph := make(map[string]int64, len(s.ramBytesPerHost))
	for h, r := range s.ramBytesPerHost {
		rph[h] = r
	}
	return ResourceInfo{
		Hosts:           append([]string{}, s.hosts...),
		CoresPerHost:    cph,
		RAMBytesPerHost: rph,
		QueueLength:     len(s.sched.Queued()),
		RunningCount:    len(s.running),
	}
}

// SubmitJob admits a compound job for batch execution. Admission
// argument validation is synchronous; everything after that
// happens on the service's own message loop.
func (s *BatchService) SubmitJob(cj *job.CompoundJob, args JobArgs) (*job.BatchJob, error) {
	if err := args.Validate(len(s.hosts), s.maxCoresPerHost(), s.maxRAMBytesPerHost(), cj); err != nil {
		return nil, err
	}
	reply := make(chan *job.BatchJob, 1)
	msg := jobSubmissionMsg{cj: cj, args: args, reply: reply}
	select {
	case s.inbox <- msg:
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown("batch")
	}
	select {
	case bj := <-reply:
		return bj, nil
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown("batch")
	}
}

// SubmitTraceJob admits a job synthesized from a workload trace
// record, carrying its recorded actual runtime for use by StartJob's
// real-runtime/timeout logic.
func (s *BatchService) SubmitTraceJob(cj *job.CompoundJob, tj TraceJob) (*job.BatchJob, error) {
	args := JobArgs{
		Nodes:           tj.Nodes,
		CoresPerNode:    tj.CoresPerNode,
		WalltimeSeconds: tj.WalltimeSeconds,
		User:            tj.User,
	}
	if err := args.Validate(len(s.hosts), s.maxCoresPerHost(), s.maxRAMBytesPerHost(), cj); err != nil {
		if s.cfg.IgnoreInvalidTraceJobs {
			return nil, nil
		}
		return nil, err
	}
	reply := make(chan *job.BatchJob, 1)
	msg := jobSubmissionMsg{cj: cj, args: args, actualRuntimeSeconds: tj.ActualRuntimeSeconds, reply: reply}
	select {
	case s.inbox <- msg:
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown("batch")
	}
	select {
	case bj := <-reply:
		return bj, nil
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown("batch")
	}
}

// TerminateJob kills a running job early. Terminating a job that is still queued, or unknown, is
// not allowed: only a job already occupying resources can be killed.
func (s *BatchService) TerminateJob(jobID uint64) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- terminateJobMsg{jobID: jobID, reply: reply}:
	case <-s.stopCh:
		return simerr.ServiceIsDown("batch")
	}
	select {
	case err := <-reply:
		return err
	case <-s.stopCh:
		return simerr.ServiceIsDown("batch")
	}
}

// GetQueue returns a snapshot of the jobs currently waiting to run.
func (s *BatchService) GetQueue() []*job.BatchJob {
	reply := make(chan []*job.BatchJob, 1)
	select {
	case s.inbox <- queueSnapshotMsg{reply: reply}:
	case <-s.stopCh:
		return nil
	}
	select {
	case q := <-reply:
		return q
	case <-s.stopCh:
		return nil
	}
}

// GetResourceInfo returns a read-only snapshot of cluster shape and
// current occupancy.
func (s *BatchService) GetResourceInfo() ResourceInfo {
	reply := make(chan ResourceInfo, 1)
	select {
	case s.inbox <- resourceInfoMsg{reply: reply}:
	case <-s.stopCh:
		return ResourceInfo{}
	}
	select {
	case info := <-reply:
		return info
	case <-s.stopCh:
		return ResourceInfo{}
	}
}

// GetStartTimeEstimates reports, for each request, the earliest
// instant the service's scheduler estimates it could start if
// submitted now.
func (s *BatchService) GetStartTimeEstimates(requests []batchsched.StartTimeRequest) map[uint64]time.Time {
	reply := make(chan map[uint64]time.Time, 1)
	select {
	case s.inbox <- startTimeEstimatesMsg{requests: requests, reply: reply}:
	case <-s.stopCh:
		return nil
	}
	select {
	case est := <-reply:
		return est
	case <-s.stopCh:
		return nil
	}
}

func (s *BatchService) maxCoresPerHost() int {
	max := 0
	for _, c := range s.coresPerHost {
		if c > max {
			max = c
		}
	}
	return max
}

func (s *BatchService) maxRAMBytesPerHost() int64 {
	var max int64
	for _, r := range s.ramBytesPerHost {
		if r > max {
			max = r
		}
	}
	return max
}

// Hosts implements batchsched.ServiceHandle.
func (s *BatchService) Hosts() []string { return append([]string{}, s.hosts...) }

// CoresPerHost implements batchsched.ServiceHandle.
func (s *BatchService) CoresPerHost(host string) int { return s.coresPerHost[host] }

// RAMBytesPerHost implements batchsched.ServiceHandle.
func (s *BatchService) RAMBytesPerHost(host string) int64 { return s.ramBytesPerHost[host] }

// Now implements batchsched.ServiceHandle.
func (s *BatchService) Now() time.Time { return s.clock.Now() }

// StartJob implements batchsched.ServiceHandle: it transitions bj to
// running, spawns its executor for the duration the config says it
// should actually run, and arms a timeout alarm when a trace-provided
// actual runtime would otherwise overrun the requested walltime.
func (s *BatchService) StartJob(bj *job.BatchJob, allocation map[string]job.NodeAllocation) {
	bj.Start(s.clock.Now(), allocation)

	runDuration := bj.Walltime()
	overrunsWalltime := false
	if !s.cfg.UseRealRuntimesAsRequested && bj.ActualRuntimeSeconds > 0 {
		runDuration = time.Duration(bj.ActualRuntimeSeconds) * time.Second
		overrunsWalltime = bj.ActualRuntimeSeconds > bj.WalltimeSeconds
	}

	ex := s.newExecutor(runDuration)
	s.running[bj.ID] = &runningJob{bj: bj, executor: ex}
	resultCh := ex.Start(context.Background())

	if overrunsWalltime {
		deadline := bj.Begin.Add(bj.Walltime())
		s.timeoutAlarms[bj.ID] = s.alarms.Schedule(deadline, func() { ex.Stop(simkernel.TerminationTimeout) })
	}

	go func() {
		res := <-resultCh
		s.inbox <- executorResultMsg{jobID: bj.ID, res: res}
	}()
}

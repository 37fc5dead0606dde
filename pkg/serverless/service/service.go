package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/log"
	"github.com/cuemby/simbatch/pkg/metrics"
	"github.com/cuemby/simbatch/pkg/notify"
	"github.com/cuemby/simbatch/pkg/serverless/sched"
	"github.com/cuemby/simbatch/pkg/serverless/state"
	"github.com/cuemby/simbatch/pkg/simerr"
	"github.com/cuemby/simbatch/pkg/simkernel"
)

// runningInvocation tracks an invocation whose code closure is
// currently executing, so a codeResultMsg or a timeout alarm can find
// its node, its cancellation, and the alarm that must be killed.
type runningInvocation struct {
	inv    *job.Invocation
	node   string
	ctx    context.Context
	cancel context.CancelFunc
	alarm  simkernel.Alarm
}

// Service is the serverless compute service.
type Service struct {
	name string

	state *state.State
	sched sched.Scheduler

	clock   simkernel.Clock
	alarms  simkernel.AlarmClock
	storage job.StorageHandle

	cfg      Config
	logger   zerolog.Logger
	notifier *notify.Notifier

	registry  map[string]*job.RegisteredFunction
	inflight  map[string]*job.Invocation
	endpoints map[string]notify.InvocationEndpoint
	running   map[string]*runningInvocation

	inbox  chan Message
	stopCh chan struct{}
}

// NewService constructs a serverless compute service named name over
// view's cluster shape. storage is threaded opaquely into every code
// closure invocation; storage services are
// an external collaborator this module does not implement.
func NewService(name string, view simkernel.HostView, clock simkernel.Clock, alarms simkernel.AlarmClock, storage job.StorageHandle, cfg Config) (*Service, error) {
	logger := log.WithComponent("serverless")
	hosts := view.Hosts()
	cores := make(map[string]int, len(hosts))
	ram := make(map[string]int64, len(hosts))
	disk := make(map[string]int64, len(hosts))
	for _, h := range hosts {
		cores[h] = view.CoresPerHost(h)
		ram[h] = view.RAMBytesPerHost(h)
		disk[h] = view.DiskBytesPerHost(h)
	}

	policy, err := cfg.BuildScheduler()
	if err != nil {
		return nil, err
	}

	s := &Service{
		name:      name,
		state:     state.New(hosts, cores, ram, disk),
		sched:     policy,
		clock:     clock,
		alarms:    alarms,
		storage:   storage,
		cfg:       cfg,
		logger:    logger,
		notifier:  notify.NewNotifier(64, logger),
		registry:  make(map[string]*job.RegisteredFunction),
		inflight:  make(map[string]*job.Invocation),
		endpoints: make(map[string]notify.InvocationEndpoint),
		running:   make(map[string]*runningInvocation),
		inbox:     make(chan Message, 64),
		stopCh:    make(chan struct{}),
	}
	s.sched.Init()
	return s, nil
}

// Start launches the notifier's dispatch goroutine and the service's
// own message loop.
func (s *Service) Start() {
	s.notifier.Start()
	go s.run()
}

// Stop halts the message loop and the notifier. Invocations already
// running are left to finish; their results are never picked up.
func (s *Service) Stop() {
	close(s.stopCh)
	s.notifier.Stop()
}

func (s *Service) run() {
	for {
		select {
		case msg := <-s.inbox:
			s.handle(msg)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) handle(msg Message) {
	switch m := msg.(type) {
	case registerMsg:
		s.handleRegister(m)
	case invokeMsg:
		s.handleInvoke(m)
	case imageCopyDoneMsg:
		s.handleImageCopyDone(m)
	case ramLoadDoneMsg:
		s.handleRAMLoadDone(m)
	case codeResultMsg:
		s.handleCodeResult(m)
	case resourceInfoMsg:
		m.reply <- s.resourceInfo()
	case stopDaemonMsg:
		return
	default:
		s.logger.Error().Msg("serverless service received an unrecognized message")
		panic("serverless/service: unrecognized message type")
	}
}

// RegisterFunction registers fn against this service with explicit
// limits. Duplicate names fail with
// FunctionAlreadyRegistered.
func (s *Service) RegisterFunction(fn *job.Function, timeLimitSeconds, diskLimitBytes, ramLimitBytes, ingressBytes, egressBytes int64) (*job.RegisteredFunction, error) {
	reply := make(chan registerResult, 1)
	select {
	case s.inbox <- registerMsg{fn: fn, timeLimit: timeLimitSeconds, diskLimit: diskLimitBytes, ramLimit: ramLimitBytes, ingress: ingressBytes, egress: egressBytes, reply: reply}:
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown(s.name)
	}
	select {
	case res := <-reply:
		return res.rf, res.err
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown(s.name)
	}
}

// InvokeFunction submits one invocation of rf with input. endpoint, if
// non-nil, receives the eventual OnInvocationDone/OnInvocationFailed
// callback; it is typically a pkg/funcmgr Manager.
func (s *Service) InvokeFunction(rf *job.RegisteredFunction, input job.Payload, endpoint notify.InvocationEndpoint) (*job.Invocation, error) {
	reply := make(chan invokeResult, 1)
	select {
	case s.inbox <- invokeMsg{rf: rf, input: input, endpoint: endpoint, reply: reply}:
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown(s.name)
	}
	select {
	case res := <-reply:
		return res.inv, res.err
	case <-s.stopCh:
		return nil, simerr.ServiceIsDown(s.name)
	}
}

// GetResourceInfo returns a read-only snapshot of cluster shape and
// current occupancy.
func (s *Service) GetResourceInfo() ResourceInfo {
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

func (s *Service) resourceInfo() ResourceInfo {
	nodes := s.state.Nodes()
	cores := make(map[string]int, len(nodes))
	availCores := make(map[string]int, len(nodes))
	availRAM := make(map[string]int64, len(nodes))
	availDisk := make(map[string]int64, len(nodes))
	for _, n := range nodes {
		cores[n] = s.state.TotalCores(n)
		availCores[n] = s.state.AvailableCores(n)
		availRAM[n] = s.state.AvailableRAMBytes(n)
		availDisk[n] = s.state.AvailableDiskBytes(n)
	}
	return ResourceInfo{
		Nodes:             nodes,
		CoresPerNode:      cores,
		AvailableCores:    availCores,
		AvailableRAMBytes: availRAM,
		AvailableDisk:     availDisk,
		PendingCount:      len(s.state.PendingInvocations()),
		RunningCount:      len(s.running),
	}
}

func (s *Service) handleRegister(m registerMsg) {
	if _, exists := s.registry[m.fn.Name]; exists {
		m.reply <- registerResult{err: simerr.FunctionAlreadyRegistered(m.fn.Name, s.name)}
		return
	}
	rf := &job.RegisteredFunction{
		Function:         m.fn,
		Service:          s.name,
		TimeLimitSeconds: m.timeLimit,
		DiskLimitBytes:   m.diskLimit,
		RAMLimitBytes:    m.ramLimit,
		IngressBytes:     m.ingress,
		EgressBytes:      m.egress,
	}
	s.registry[m.fn.Name] = rf
	m.reply <- registerResult{rf: rf}
}

func (s *Service) handleInvoke(m invokeMsg) {
	if m.rf == nil {
		m.reply <- invokeResult{err: simerr.FunctionNotRegistered("")}
		return
	}
	if _, ok := s.registry[m.rf.Function.Name]; !ok {
		m.reply <- invokeResult{err: simerr.FunctionNotRegistered(m.rf.Function.Name)}
		return
	}
	id := uuid.NewString()
	inv := job.NewInvocation(id, m.rf, m.input, s.clock.Now())
	s.inflight[id] = inv
	if m.endpoint != nil {
		s.endpoints[id] = m.endpoint
	}
	s.state.Enqueue(inv)
	m.reply <- invokeResult{inv: inv}
	s.runScheduler()
}

// runScheduler re-consults the policy against the current pending
// queue and state snapshot.
func (s *Service) runScheduler() {
	pending := s.state.PendingInvocations()
	imgDecision := s.sched.ManageImages(pending, s.state)
	s.applyImageDecision(imgDecision)

	bindings := s.sched.ScheduleFunctions(s.state.PendingInvocations(), s.state)
	for _, b := range bindings {
		s.bindInvocation(b.Invocation, b.Node)
	}

	for _, n := range s.state.Nodes() {
		cores := s.state.AvailableCores(n)
		metrics.ServerlessCoreUtilization.WithLabelValues(n).Set(float64(cores))
	}
}

func (s *Service) applyImageDecision(decision sched.ImageDecision) {
	for node, images := range decision.Copy {
		for _, image := range images {
			s.startImageCopy(node, image)
		}
	}
	for node, images := range decision.Remove {
		for _, image := range images {
			if err := s.state.EvictResidentImage(node, image); err != nil {
				s.logger.Debug().Err(err).Str("node", node).Str("image", image).Msg("scheduler-requested eviction skipped")
			}
		}
	}
}

// imageSize looks up a registered image's declared size by name. The
// registry is small (one entry per registered function) so a linear
// scan is the simplest correct approach.
func (s *Service) imageSize(name string) (int64, bool) {
	for _, rf := range s.registry {
		if rf.Function.Image.Name == name {
			return rf.Function.Image.SizeBytes, true
		}
	}
	return 0, false
}

// startImageCopy begins copying image onto node: a remote download
// from the function's own storage followed by a node-local copy,
// modeled as one combined simulated sleep since the core does not
// itself move bytes across links. If disk
// pressure blocks the reservation, the service tries evicting its own
// choice of unpinned resident images before giving up.
func (s *Service) startImageCopy(node, image string) {
	if s.state.IsImageResident(node, image) || s.state.IsImageBeingCopied(node, image) {
		return
	}
	size, ok := s.imageSize(image)
	if !ok {
		return
	}
	if size > s.state.TotalDiskBytes(node) {
		s.logger.Error().Str("node", node).Str("image", image).Msg("image exceeds node disk capacity; failing pending invocations")
		s.failPendingForImage(image)
		return
	}
	if err := s.state.BeginImageCopy(node, image, size, "remote", s.clock.Now()); err != nil {
		if !s.evictForSpace(node, size) {
			s.logger.Debug().Str("node", node).Str("image", image).Msg("image copy deferred: insufficient disk")
			return
		}
		if err := s.state.BeginImageCopy(node, image, size, "remote", s.clock.Now()); err != nil {
			s.logger.Debug().Str("node", node).Str("image", image).Msg("image copy deferred after eviction attempt")
			return
		}
	}

	duration := durationFor(size, s.cfg.RemoteDownloadBytesPerSecond) + durationFor(size, s.cfg.NodeCopyBytesPerSecond)
	go func() {
		_ = s.clock.Sleep(context.Background(), duration)
		s.inbox <- imageCopyDoneMsg{node: node, image: image}
	}()
}

// evictForSpace tries to free at least needed bytes of disk on node by
// evicting unpinned resident images, largest first. It returns whether
// enough space was freed.
func (s *Service) evictForSpace(node string, needed int64) bool {
	for _, image := range s.state.ResidentImages(node) {
		if s.state.AvailableDiskBytes(node) >= needed {
			return true
		}
		if err := s.state.EvictResidentImage(node, image); err != nil {
			continue
		}
	}
	return s.state.AvailableDiskBytes(node) >= needed
}

// failPendingForImage fails every still-pending invocation whose
// function needs image, since a copy was just found structurally
// impossible: the image is larger than the chosen node's whole disk,
// so no amount of eviction there would help. Other nodes' disk
// capacities are not consulted.
func (s *Service) failPendingForImage(image string) {
	for _, inv := range s.state.PendingInvocations() {
		if inv.RegisteredFunction.Function.Image.Name != image {
			continue
		}
		s.state.RemovePending(inv.ID)
		s.completeFailure(inv, "", simerr.NotEnoughResources(inv.ID, s.name))
	}
}

func (s *Service) handleImageCopyDone(m imageCopyDoneMsg) {
	if err := s.state.CompleteImageCopy(m.node, m.image); err != nil {
		s.logger.Error().Err(err).Str("node", m.node).Str("image", m.image).Msg("image copy completion for unknown in-flight copy")
		return
	}
	metrics.ServerlessImageCopiesTotal.Inc()
	s.runScheduler()
}

// bindInvocation commits a scheduler binding: it reserves the
// invocation's core and RAM, then either begins execution immediately
// if the image is already RAM-resident, or loads the image into RAM
// first.
func (s *Service) bindInvocation(inv *job.Invocation, node string) {
	s.state.RemovePending(inv.ID)
	inv.MarkScheduled(node)
	rf := inv.RegisteredFunction

	if err := s.state.ReserveCores(node, 1); err != nil {
		s.completeFailure(inv, "", simerr.NotEnoughResources(inv.ID, s.name))
		return
	}
	if err := s.state.ReserveRAM(node, rf.RAMLimitBytes); err != nil {
		s.state.ReleaseCores(node, 1)
		s.completeFailure(inv, "", simerr.NotEnoughResources(inv.ID, s.name))
		return
	}

	img := rf.Function.Image.Name
	if s.state.IsImageLoadedInRAM(node, img) {
		s.beginExecution(inv, node)
		return
	}

	size := rf.Function.Image.SizeBytes
	if err := s.state.LoadImageIntoRAM(node, img, size); err != nil {
		s.state.ReleaseCores(node, 1)
		s.state.ReleaseRAM(node, rf.RAMLimitBytes)
		s.completeFailure(inv, "", simerr.NotEnoughResources(inv.ID, s.name))
		return
	}

	duration := durationFor(size, s.cfg.RAMLoadBytesPerSecond)
	go func() {
		_ = s.clock.Sleep(context.Background(), duration)
		s.inbox <- ramLoadDoneMsg{invocationID: inv.ID, node: node}
	}()
}

func (s *Service) handleRAMLoadDone(m ramLoadDoneMsg) {
	inv, ok := s.inflight[m.invocationID]
	if !ok {
		return
	}
	s.beginExecution(inv, m.node)
}

// beginExecution transitions inv to RUNNING and starts its code
// closure, arming a timeout alarm at its registered time limit.
func (s *Service) beginExecution(inv *job.Invocation, node string) {
	inv.MarkStarted(s.clock.Now())
	rf := inv.RegisteredFunction
	img := rf.Function.Image.Name
	s.state.PinImage(node, img)

	ctx, cancel := context.WithCancel(simkernel.WithClock(context.Background(), s.clock))
	deadline := s.clock.Now().Add(time.Duration(rf.TimeLimitSeconds) * time.Second)
	alarm := s.alarms.Schedule(deadline, cancel)

	s.running[inv.ID] = &runningInvocation{inv: inv, node: node, ctx: ctx, cancel: cancel, alarm: alarm}

	go func() {
		output, err := rf.Function.Code(ctx, inv.Input, s.storage)
		s.inbox <- codeResultMsg{invocationID: inv.ID, output: output, err: err}
	}()
}

func (s *Service) handleCodeResult(m codeResultMsg) {
	ri, ok := s.running[m.invocationID]
	if !ok {
		return
	}
	ri.alarm.Kill()
	delete(s.running, m.invocationID)

	if ri.ctx.Err() != nil {
		s.completeFailure(ri.inv, ri.node, simerr.Wrap(simerr.KindJobTimeout, ri.ctx.Err(), "invocation %s exceeded its time limit", ri.inv.ID))
		return
	}
	if m.err != nil {
		s.completeFailure(ri.inv, ri.node, m.err)
		return
	}
	s.completeSuccess(ri.inv, ri.node, m.output)
}

func (s *Service) completeSuccess(inv *job.Invocation, node string, output job.Payload) {
	inv.MarkSucceeded(s.clock.Now(), output)
	if node != "" {
		s.releaseBinding(inv, node)
	}
	metrics.ServerlessInvocationsTotal.WithLabelValues("success").Inc()
	metrics.ServerlessInvocationLatency.Observe(inv.FinishDate().Sub(inv.SubmitDate()).Seconds())
	ep := s.endpoints[inv.ID]
	delete(s.endpoints, inv.ID)
	delete(s.inflight, inv.ID)
	s.notifier.DeliverInvocationDone(ep, inv)
	s.runScheduler()
}

func (s *Service) completeFailure(inv *job.Invocation, node string, cause error) {
	inv.MarkFailed(s.clock.Now(), cause)
	if node != "" {
		s.releaseBinding(inv, node)
	}
	metrics.ServerlessInvocationsTotal.WithLabelValues("failure").Inc()
	metrics.ServerlessInvocationLatency.Observe(inv.FinishDate().Sub(inv.SubmitDate()).Seconds())
	ep := s.endpoints[inv.ID]
	delete(s.endpoints, inv.ID)
	delete(s.inflight, inv.ID)
	s.notifier.DeliverInvocationFailed(ep, inv, cause)
	s.runScheduler()
}

func (s *Service) releaseBinding(inv *job.Invocation, node string) {
	rf := inv.RegisteredFunction
	s.state.UnpinImage(node, rf.Function.Image.Name)
	s.state.ReleaseCores(node, 1)
	s.state.ReleaseRAM(node, rf.RAMLimitBytes)
}

func durationFor(bytes, bytesPerSecond int64) time.Duration {
	if bytesPerSecond <= 0 || bytes <= 0 {
		return 0
	}
	seconds := float64(bytes) / float64(bytesPerSecond)
	return time.Duration(seconds * float64(time.Second))
}

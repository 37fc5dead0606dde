package funcmgr

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/log"
	"github.com/cuemby/simbatch/pkg/serverless/service"
	"github.com/cuemby/simbatch/pkg/simerr"
)

// waiter tracks one invocation's completion, signaled by closing done
// exactly once (guarded by sync.Once since either Done or Failed may
// arrive, never both, but defensively against redelivery).
type waiter struct {
	done chan struct{}
	once sync.Once
}

func (w *waiter) signal() {
	w.once.Do(func() { close(w.done) })
}

// Manager is the Function Manager façade. It implements
// notify.InvocationEndpoint so a serverless service can notify it
// directly of invocation completions, without routing through the
// push/pop callback stack CompoundJob uses — invocation ownership
// never rotates.
type Manager struct {
	mu      sync.Mutex
	waiters map[string]*waiter
	logger  zerolog.Logger
}

// New creates an empty Function Manager.
func New() *Manager {
	return &Manager{waiters: make(map[string]*waiter), logger: log.WithComponent("funcmgr")}
}

// NewFunction creates a Function descriptor. It performs no
// registration; call RegisterFunction against a specific service next.
func (m *Manager) NewFunction(name string, code job.FunctionCode, image job.ImageFile) *job.Function {
	return job.NewFunction(name, code, image)
}

// RegisterFunction registers fn with svc under the given limits.
// Duplicate names on the same service fail with
// FunctionAlreadyRegistered.
func (m *Manager) RegisterFunction(svc *service.Service, fn *job.Function, timeLimitSeconds, diskLimitBytes, ramLimitBytes, ingressBytes, egressBytes int64) (*job.RegisteredFunction, error) {
	return svc.RegisterFunction(fn, timeLimitSeconds, diskLimitBytes, ramLimitBytes, ingressBytes, egressBytes)
}

// InvokeFunction submits one invocation of rf to svc and registers
// this Manager to receive its completion notification, so a later
// WaitOne/WaitAll call can block on it.
func (m *Manager) InvokeFunction(svc *service.Service, rf *job.RegisteredFunction, input job.Payload) (*job.Invocation, error) {
	inv, err := svc.InvokeFunction(rf, input, m)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.waiters[inv.ID] = &waiter{done: make(chan struct{})}
	m.mu.Unlock()
	return inv, nil
}

// OnInvocationDone implements notify.InvocationEndpoint.
func (m *Manager) OnInvocationDone(inv *job.Invocation) { m.signal(inv.ID) }

// OnInvocationFailed implements notify.InvocationEndpoint.
func (m *Manager) OnInvocationFailed(inv *job.Invocation, cause error) { m.signal(inv.ID) }

func (m *Manager) signal(id string) {
	m.mu.Lock()
	w, ok := m.waiters[id]
	m.mu.Unlock()
	if ok {
		w.signal()
	}
}

// WaitOne blocks until inv reaches a terminal state, or ctx is
// canceled.
func (m *Manager) WaitOne(ctx context.Context, inv *job.Invocation) error {
	m.mu.Lock()
	w, ok := m.waiters[inv.ID]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn().Str("invocation", inv.ID).Msg("wait requested for an invocation this manager never submitted")
		return simerr.InvalidRequest("invocation %s was not submitted through this manager", inv.ID)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll blocks until every invocation in invocations is terminal, or
// ctx is canceled.
func (m *Manager) WaitAll(ctx context.Context, invocations []*job.Invocation) error {
	for _, inv := range invocations {
		if err := m.WaitOne(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

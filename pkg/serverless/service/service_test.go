package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/simerr"
	"github.com/cuemby/simbatch/pkg/simkernel"
	"github.com/cuemby/simbatch/pkg/simkernel/fake"
)

func echoCode(_ context.Context, input job.Payload, _ job.StorageHandle) (job.Payload, error) {
	return input, nil
}

func sleepingCode(d time.Duration) job.FunctionCode {
	return func(ctx context.Context, input job.Payload, _ job.StorageHandle) (job.Payload, error) {
		if clock, ok := simkernel.ClockFromContext(ctx); ok {
			if err := clock.Sleep(ctx, d); err != nil {
				return nil, err
			}
		}
		return input, nil
	}
}

// newTestService builds a serverless service over a fake, manually-
// advanced clock, matching the batch service's test harness shape.
func newTestService(t *testing.T, numHosts, coresPerHost int, ramPerHost, diskPerHost int64, cfg Config) (*Service, *fake.Clock) {
	t.Helper()
	clock := fake.NewClock(time.Unix(0, 0))
	alarms := fake.NewAlarmClock(clock)
	cluster := fake.NewCluster(numHosts, coresPerHost, ramPerHost, diskPerHost)

	svc, err := NewService("fn", cluster, clock, alarms, nil, cfg)
	require.NoError(t, err)
	svc.Start()
	t.Cleanup(svc.Stop)
	return svc, clock
}

type recordingEndpoint struct {
	done   chan *job.Invocation
	failed chan error
}

func newRecordingEndpoint() *recordingEndpoint {
	return &recordingEndpoint{done: make(chan *job.Invocation, 4), failed: make(chan error, 4)}
}

func (r *recordingEndpoint) OnInvocationDone(inv *job.Invocation)              { r.done <- inv }
func (r *recordingEndpoint) OnInvocationFailed(inv *job.Invocation, cause error) { r.failed <- cause }

// advanceUntilDone ticks clock forward one second at a time until ep
// reports a completion, returning it, or fails the test if it never
// does.
func advanceUntilDone(t *testing.T, clock *fake.Clock, ep *recordingEndpoint) *job.Invocation {
	t.Helper()
	for i := 0; i < 50; i++ {
		clock.Advance(time.Second)
		select {
		case inv := <-ep.done:
			return inv
		case <-time.After(5 * time.Millisecond):
		}
	}
	t.Fatal("invocation never completed")
	return nil
}

// TestRegisterFunctionDuplicateNameFails exercises the
// FunctionAlreadyRegistered path when a function name is registered
// twice.
func TestRegisterFunctionDuplicateNameFails(t *testing.T) {
	cfg := DefaultConfig()
	svc, _ := newTestService(t, 1, 4, 1<<30, 1<<30, cfg)

	fn := job.NewFunction("f", echoCode, job.ImageFile{Name: "img-f", SizeBytes: 1 << 20})
	_, err := svc.RegisterFunction(fn, 60, 0, 1<<20, 0, 0)
	require.NoError(t, err)

	_, err = svc.RegisterFunction(fn, 60, 0, 1<<20, 0, 0)
	require.Error(t, err)
}

// TestInvokeUnregisteredFunctionFails exercises the
// FunctionNotRegistered path when invoking a handle the service never
// registered.
func TestInvokeUnregisteredFunctionFails(t *testing.T) {
	cfg := DefaultConfig()
	svc, _ := newTestService(t, 1, 4, 1<<30, 1<<30, cfg)

	fn := job.NewFunction("f", echoCode, job.ImageFile{Name: "img-f", SizeBytes: 1 << 20})
	rf := &job.RegisteredFunction{Function: fn, Service: "fn", RAMLimitBytes: 1 << 20, TimeLimitSeconds: 60}

	_, err := svc.InvokeFunction(rf, job.BytesPayload{Data: []byte("x")}, nil)
	require.Error(t, err)
}

// TestInvocationRunsToCompletion covers the baseline case: a single
// invocation drives image copy, RAM load, and execution to success,
// delivering OnInvocationDone.
func TestInvocationRunsToCompletion(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 1, 4, 1<<30, 1<<30, cfg)

	fn := job.NewFunction("f", echoCode, job.ImageFile{Name: "img-f", SizeBytes: 1 << 20})
	rf, err := svc.RegisterFunction(fn, 60, 0, 1<<20, 0, 0)
	require.NoError(t, err)

	ep := newRecordingEndpoint()
	inv, err := svc.InvokeFunction(rf, job.BytesPayload{Data: []byte("hi")}, ep)
	require.NoError(t, err)
	require.NotNil(t, inv)

	got := advanceUntilDone(t, clock, ep)
	assert.Equal(t, inv, got)
}

// TestSecondInvocationReusesResidentImage covers image reuse: once an
// image is resident and RAM-loaded on a node, a second invocation of
// the same function skips the copy/load steps entirely and completes
// no slower than the first.
func TestSecondInvocationReusesResidentImage(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 1, 4, 1<<30, 1<<30, cfg)

	fn := job.NewFunction("f", echoCode, job.ImageFile{Name: "img-f", SizeBytes: 1 << 20})
	rf, err := svc.RegisterFunction(fn, 60, 0, 1<<20, 0, 0)
	require.NoError(t, err)

	ep1 := newRecordingEndpoint()
	_, err = svc.InvokeFunction(rf, job.BytesPayload{}, ep1)
	require.NoError(t, err)

	advanceUntilDone(t, clock, ep1)

	ep2 := newRecordingEndpoint()
	inv2, err := svc.InvokeFunction(rf, job.BytesPayload{}, ep2)
	require.NoError(t, err)

	select {
	case got := <-ep2.done:
		assert.Equal(t, inv2, got)
	case <-time.After(time.Second):
		t.Fatal("second invocation with a resident image never completed immediately")
	}
}

// TestCorePressureSerializesInvocations covers core pressure: a
// one-core node accepts only one concurrently running invocation of a
// function that reserves the node's only core; a second invocation
// waits until the first releases it.
func TestCorePressureSerializesInvocations(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 1, 1, 1<<30, 1<<30, cfg)

	fn := job.NewFunction("f", sleepingCode(5*time.Second), job.ImageFile{Name: "img-f", SizeBytes: 1 << 20})
	rf, err := svc.RegisterFunction(fn, 60, 0, 1<<20, 0, 0)
	require.NoError(t, err)

	epA := newRecordingEndpoint()
	_, err = svc.InvokeFunction(rf, job.BytesPayload{}, epA)
	require.NoError(t, err)

	epB := newRecordingEndpoint()
	_, err = svc.InvokeFunction(rf, job.BytesPayload{}, epB)
	require.NoError(t, err)

	clock.Advance(time.Second) // allow A's image copy/load to settle

	select {
	case <-epB.done:
		t.Fatal("B completed before the single core was freed by A")
	case <-time.After(20 * time.Millisecond):
	}

	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
	}
	select {
	case <-epA.done:
	case <-time.After(time.Second):
		t.Fatal("A never completed")
	}

	for i := 0; i < 20; i++ {
		clock.Advance(time.Second)
		select {
		case <-epB.done:
			return
		default:
		}
	}
	t.Fatal("B never completed once the core was freed")
}

// TestInvocationFailsWhenImageExceedsNodeDiskCapacity covers an image
// too large to ever fit on any node's disk: the invocation fails with
// a resource error instead of sitting pending forever.
func TestInvocationFailsWhenImageExceedsNodeDiskCapacity(t *testing.T) {
	cfg := DefaultConfig()
	svc, clock := newTestService(t, 1, 4, 1<<30, 1<<20, cfg)

	fn := job.NewFunction("f", echoCode, job.ImageFile{Name: "img-f", SizeBytes: 1<<20 + 1})
	rf, err := svc.RegisterFunction(fn, 60, 0, 1<<20, 0, 0)
	require.NoError(t, err)

	ep := newRecordingEndpoint()
	_, err = svc.InvokeFunction(rf, job.BytesPayload{}, ep)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		clock.Advance(time.Second)
		select {
		case cause := <-ep.failed:
			assert.True(t, simerr.Is(cause, simerr.KindNotEnoughResources))
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
	t.Fatal("invocation with an oversized image never failed")
}

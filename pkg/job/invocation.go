package job

import (
	"time"

	"github.com/cuemby/simbatch/pkg/simerr"
)

// Invocation is one execution instance of a RegisteredFunction. It is
// in exactly one of {admitted, scheduled-to-node, running, completed}
// at any time, tracked here by Status; submit/start/finish dates and
// the success/output/failure-cause triad are only meaningful once
// Status is terminal.
type Invocation struct {
	ID                 string
	RegisteredFunction *RegisteredFunction
	Input              Payload
	Status             InvocationStatus
	AssignedNode       string

	submitDate time.Time
	startDate  time.Time
	finishDate time.Time
	terminal   bool
	success    bool
	output     Payload
	cause      error
}

// InvocationStatus is the coarse lifecycle position of an invocation,
// used by the scheduler family and compute service.
type InvocationStatus string

const (
	InvocationAdmitted   InvocationStatus = "admitted"
	InvocationScheduled  InvocationStatus = "scheduled"
	InvocationRunning    InvocationStatus = "running"
	InvocationCompleted  InvocationStatus = "completed"
)

// NewInvocation creates an admitted invocation submitted at t.
func NewInvocation(id string, rf *RegisteredFunction, input Payload, t time.Time) *Invocation {
	return &Invocation{
		ID:                 id,
		RegisteredFunction: rf,
		Input:              input,
		Status:             InvocationAdmitted,
		submitDate:         t,
	}
}

func (i *Invocation) SubmitDate() time.Time { return i.submitDate }
func (i *Invocation) StartDate() time.Time  { return i.startDate }
func (i *Invocation) FinishDate() time.Time { return i.finishDate }

// MarkScheduled binds the invocation to a node, ahead of it actually
// running.
func (i *Invocation) MarkScheduled(node string) {
	i.AssignedNode = node
	i.Status = InvocationScheduled
}

// MarkStarted records the simulated instant the invocation began
// running. Invariant: start >= submit.
func (i *Invocation) MarkStarted(t time.Time) {
	if t.Before(i.submitDate) {
		t = i.submitDate
	}
	i.startDate = t
	i.Status = InvocationRunning
}

// MarkSucceeded completes the invocation successfully at t with the
// given output. Invariant: finish >= start.
func (i *Invocation) MarkSucceeded(t time.Time, output Payload) {
	if t.Before(i.startDate) {
		t = i.startDate
	}
	i.finishDate = t
	i.success = true
	i.output = output
	i.terminal = true
	i.Status = InvocationCompleted
}

// MarkFailed completes the invocation unsuccessfully at t with cause.
func (i *Invocation) MarkFailed(t time.Time, cause error) {
	if t.Before(i.startDate) {
		t = i.startDate
	}
	i.finishDate = t
	i.success = false
	i.cause = cause
	i.terminal = true
	i.Status = InvocationCompleted
}

// IsTerminal reports whether the invocation has finished (succeeded
// or failed).
func (i *Invocation) IsTerminal() bool { return i.terminal }

// HasSucceeded reports the invocation's success flag. Calling it
// before the invocation is terminal fails with InvocationNotReady.
func (i *Invocation) HasSucceeded() (bool, error) {
	if !i.terminal {
		return false, simerr.InvocationNotReady()
	}
	return i.success, nil
}

// Output returns the invocation's output value. Calling it before the
// invocation is terminal fails with InvocationNotReady; it returns nil
// without error for a terminal-but-failed invocation.
func (i *Invocation) Output() (Payload, error) {
	if !i.terminal {
		return nil, simerr.InvocationNotReady()
	}
	return i.output, nil
}

// FailureCause returns the invocation's failure cause. Calling it
// before the invocation is terminal fails with InvocationNotReady; it
// returns nil without error for a terminal-and-succeeded invocation.
func (i *Invocation) FailureCause() (error, error) {
	if !i.terminal {
		return nil, simerr.InvocationNotReady()
	}
	return i.cause, nil
}

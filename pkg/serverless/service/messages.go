package service

import (
	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/notify"
)

// Message is the sum type of every request the service loop accepts:
// one interface with a private marker method, matched by type switch,
// instead of RTTI-style dispatch over a message class hierarchy.
type Message interface{ isServerlessMessage() }

type registerMsg struct {
	fn          *job.Function
	timeLimit   int64
	diskLimit   int64
	ramLimit    int64
	ingress     int64
	egress      int64
	reply       chan registerResult
}

type registerResult struct {
	rf  *job.RegisteredFunction
	err error
}

type invokeMsg struct {
	rf       *job.RegisteredFunction
	input    job.Payload
	endpoint notify.InvocationEndpoint
	reply    chan invokeResult
}

type invokeResult struct {
	inv *job.Invocation
	err error
}

type imageCopyDoneMsg struct {
	node  string
	image string
}

type ramLoadDoneMsg struct {
	invocationID string
	node         string
}

type codeResultMsg struct {
	invocationID string
	output       job.Payload
	err          error
}

type resourceInfoMsg struct {
	reply chan ResourceInfo
}

type stopDaemonMsg struct{}

func (registerMsg) isServerlessMessage()      {}
func (invokeMsg) isServerlessMessage()        {}
func (imageCopyDoneMsg) isServerlessMessage() {}
func (ramLoadDoneMsg) isServerlessMessage()   {}
func (codeResultMsg) isServerlessMessage()    {}
func (resourceInfoMsg) isServerlessMessage()  {}
func (stopDaemonMsg) isServerlessMessage()    {}

// ResourceInfo is a read-only snapshot of the service's cluster shape
// and current occupancy.
type ResourceInfo struct {
	Nodes             []string
	CoresPerNode      map[string]int
	AvailableCores    map[string]int
	AvailableRAMBytes map[string]int64
	AvailableDisk     map[string]int64
	PendingCount      int
	RunningCount      int
}

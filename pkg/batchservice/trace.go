package batchservice

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/cuemby/simbatch/pkg/simerr"
)

// TraceJob is one job record read from a workload trace file.
// SubmitSeconds is relative to the trace's own epoch; callers that set
// submit-time-of-first-trace-job rebase it onto simulated time
// themselves.
type TraceJob struct {
	ID                   string
	SubmitSeconds        int64
	Nodes                int
	CoresPerNode         int
	WalltimeSeconds      int64
	ActualRuntimeSeconds int64
	User                 string
}

// swf field indices, 0-based, per the Standard Workload Format: job
// number, submit time, wait time, run time, allocated processors,
// average CPU time, used memory, requested processors, requested
// time, requested memory, status, user ID, group ID, ...
const (
	swfJobNumber          = 0
	swfSubmitTime         = 1
	swfRunTime            = 3
	swfAllocatedProcs     = 4
	swfRequestedProcs     = 7
	swfRequestedTime      = 8
	swfUserID             = 11
	swfMinFields          = 12
)

// ParseSWF reads jobs from a Standard Workload Format trace. Lines
// beginning with ';' are comments and skipped; malformed lines are
// skipped when ignoreInvalid is true and returned as an error
// otherwise.
func ParseSWF(r io.Reader, ignoreInvalid bool) ([]TraceJob, error) {
	var jobs []TraceJob
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		tj, err := parseSWFFields(fields)
		if err != nil {
			if ignoreInvalid {
				continue
			}
			return nil, simerr.Wrap(simerr.KindInvalidRequest, err, "swf trace line %d", lineNo)
		}
		jobs = append(jobs, tj)
	}
	if err := scanner.Err(); err != nil {
		return nil, simerr.Wrap(simerr.KindInvalidRequest, err, "reading swf trace")
	}
	return jobs, nil
}

func parseSWFFields(fields []string) (TraceJob, error) {
	if len(fields) < swfMinFields {
		return TraceJob{}, simerr.InvalidRequest("expected at least %d whitespace-delimited fields, got %d", swfMinFields, len(fields))
	}
	submit, err := strconv.ParseInt(fields[swfSubmitTime], 10, 64)
	if err != nil {
		return TraceJob{}, simerr.Wrap(simerr.KindInvalidRequest, err, "submit time field")
	}
	runtime, err := strconv.ParseInt(fields[swfRunTime], 10, 64)
	if err != nil {
		return TraceJob{}, simerr.Wrap(simerr.KindInvalidRequest, err, "run time field")
	}
	procs, err := strconv.Atoi(fields[swfRequestedProcs])
	if err != nil || procs <= 0 {
		procs, err = strconv.Atoi(fields[swfAllocatedProcs])
		if err != nil || procs <= 0 {
			return TraceJob{}, simerr.InvalidRequest("no usable processor count field")
		}
	}
	reqTime, err := strconv.ParseInt(fields[swfRequestedTime], 10, 64)
	if err != nil || reqTime <= 0 {
		reqTime = runtime
	}
	return TraceJob{
		ID:                   fields[swfJobNumber],
		SubmitSeconds:        submit,
		Nodes:                1,
		CoresPerNode:         procs,
		WalltimeSeconds:      reqTime,
		ActualRuntimeSeconds: runtime,
		User:                 fields[swfUserID],
	}, nil
}

// jsonTraceJob mirrors TraceJob's shape for structured trace files.
type jsonTraceJob struct {
	ID                   string `json:"id"`
	SubmitSeconds        int64  `json:"submit_seconds"`
	Nodes                int    `json:"nodes"`
	CoresPerNode         int    `json:"cores_per_node"`
	WalltimeSeconds      int64  `json:"walltime_seconds"`
	ActualRuntimeSeconds int64  `json:"actual_runtime_seconds"`
	User                 string `json:"user"`
}

// ParseJSON reads jobs from a structured JSON trace: a top-level
// array of job objects.
func ParseJSON(r io.Reader, ignoreInvalid bool) ([]TraceJob, error) {
	var raw []jsonTraceJob
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, simerr.Wrap(simerr.KindInvalidRequest, err, "decoding json trace")
	}
	var jobs []TraceJob
	for _, j := range raw {
		if j.Nodes <= 0 || j.CoresPerNode <= 0 || j.WalltimeSeconds <= 0 {
			if ignoreInvalid {
				continue
			}
			return nil, simerr.InvalidRequest("json trace job %q has a non-positive resource field", j.ID)
		}
		jobs = append(jobs, TraceJob{
			ID:                   j.ID,
			SubmitSeconds:        j.SubmitSeconds,
			Nodes:                j.Nodes,
			CoresPerNode:         j.CoresPerNode,
			WalltimeSeconds:      j.WalltimeSeconds,
			ActualRuntimeSeconds: j.ActualRuntimeSeconds,
			User:                 j.User,
		})
	}
	return jobs, nil
}

package batchservice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSWF = `; this is a comment line, ignored
; UserID field is last of the fields we read
1 0 -1 100 4 -1 -1 4 120 -1 1 42 -1 -1 -1 -1 -1 -1
2 30 -1 50 2 -1 -1 2 60 -1 1 7 -1 -1 -1 -1 -1 -1
`

func TestParseSWFReadsWellFormedJobs(t *testing.T) {
	jobs, err := ParseSWF(strings.NewReader(sampleSWF), false)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "1", jobs[0].ID)
	assert.Equal(t, int64(0), jobs[0].SubmitSeconds)
	assert.Equal(t, 1, jobs[0].Nodes)
	assert.Equal(t, 4, jobs[0].CoresPerNode)
	assert.Equal(t, int64(120), jobs[0].WalltimeSeconds)
	assert.Equal(t, int64(100), jobs[0].ActualRuntimeSeconds)
	assert.Equal(t, "42", jobs[0].User)

	assert.Equal(t, "2", jobs[1].ID)
	assert.Equal(t, int64(30), jobs[1].SubmitSeconds)
	assert.Equal(t, 2, jobs[1].CoresPerNode)
	assert.Equal(t, int64(60), jobs[1].WalltimeSeconds)
}

func TestParseSWFSkipsCommentsAndBlankLines(t *testing.T) {
	text := ";comment\n\n1 0 -1 10 1 -1 -1 1 10 -1 1 1 -1 -1 -1 -1 -1 -1\n"
	jobs, err := ParseSWF(strings.NewReader(text), false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestParseSWFIgnoresInvalidLinesWhenConfigured(t *testing.T) {
	text := "1 0 -1 10 1 -1 -1 1 10 -1 1 1 -1 -1 -1 -1 -1 -1\nthis line has too few fields\n"
	jobs, err := ParseSWF(strings.NewReader(text), true)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestParseSWFReturnsErrorForInvalidLineWhenNotIgnoring(t *testing.T) {
	text := "1 0 -1 10 1 -1 -1 1 10 -1 1 1 -1 -1 -1 -1 -1 -1\ntoo short\n"
	_, err := ParseSWF(strings.NewReader(text), false)
	require.Error(t, err)
}

func TestParseSWFFallsBackToAllocatedProcsWhenRequestedMissing(t *testing.T) {
	// requested-procs field (index 7) is -1, so allocated (index 4) is used.
	text := "1 0 -1 10 3 -1 -1 -1 -1 -1 1 1 -1 -1 -1 -1 -1 -1\n"
	jobs, err := ParseSWF(strings.NewReader(text), false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 3, jobs[0].CoresPerNode)
	// requested time (index 8) is also -1, falls back to run time.
	assert.Equal(t, int64(10), jobs[0].WalltimeSeconds)
}

const sampleJSON = `[
  {"id": "j1", "submit_seconds": 0, "nodes": 2, "cores_per_node": 4, "walltime_seconds": 120, "actual_runtime_seconds": 100, "user": "alice"},
  {"id": "j2", "submit_seconds": 30, "nodes": 1, "cores_per_node": 2, "walltime_seconds": 60, "user": "bob"}
]`

func TestParseJSONReadsWellFormedJobs(t *testing.T) {
	jobs, err := ParseJSON(strings.NewReader(sampleJSON), false)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, 2, jobs[0].Nodes)
	assert.Equal(t, int64(100), jobs[0].ActualRuntimeSeconds)
	assert.Equal(t, "bob", jobs[1].User)
}

func TestParseJSONIgnoresInvalidJobsWhenConfigured(t *testing.T) {
	text := `[{"id": "bad", "nodes": 0, "cores_per_node": 1, "walltime_seconds": 1}]`
	jobs, err := ParseJSON(strings.NewReader(text), true)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestParseJSONReturnsErrorForInvalidJobWhenNotIgnoring(t *testing.T) {
	text := `[{"id": "bad", "nodes": 0, "cores_per_node": 1, "walltime_seconds": 1}]`
	_, err := ParseJSON(strings.NewReader(text), false)
	require.Error(t, err)
}

func TestParseJSONReturnsErrorForMalformedDocument(t *testing.T) {
	_, err := ParseJSON(strings.NewReader("not json"), false)
	require.Error(t, err)
}

package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simbatch/pkg/job"
	"github.com/cuemby/simbatch/pkg/serverless/state"
	"github.com/cuemby/simbatch/pkg/simerr"
)

func newTestState() *state.State {
	hosts := []string{"node0"}
	cores := map[string]int{"node0": 4}
	ram := map[string]int64{"node0": 1 << 30}
	disk := map[string]int64{"node0": 100 << 20}
	return state.New(hosts, cores, ram, disk)
}

func TestReserveAndReleaseCores(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.ReserveCores("node0", 3))
	assert.Equal(t, 1, s.AvailableCores("node0"))

	err := s.ReserveCores("node0", 2)
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.KindCapacityExceeded))

	s.ReleaseCores("node0", 3)
	assert.Equal(t, 4, s.AvailableCores("node0"))
}

func TestImageCopyLifecycle(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.BeginImageCopy("node0", "img", 10<<20, "remote", time.Time{}))
	assert.True(t, s.IsImageBeingCopied("node0", "img"))
	assert.False(t, s.IsImageResident("node0", "img"))
	assert.Equal(t, int64(90<<20), s.AvailableDiskBytes("node0"))

	// Double-begin is rejected while in flight.
	err := s.BeginImageCopy("node0", "img", 10<<20, "remote", time.Time{})
	require.Error(t, err)

	require.NoError(t, s.CompleteImageCopy("node0", "img"))
	assert.False(t, s.IsImageBeingCopied("node0", "img"))
	assert.True(t, s.IsImageResident("node0", "img"))
	assert.Equal(t, int64(90<<20), s.AvailableDiskBytes("node0"))
}

func TestBeginImageCopyCapacityExceeded(t *testing.T) {
	s := newTestState()
	err := s.BeginImageCopy("node0", "huge", 200<<20, "remote", time.Time{})
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.KindCapacityExceeded))
}

func TestEvictResidentImagePinned(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.BeginImageCopy("node0", "img", 10<<20, "remote", time.Time{}))
	require.NoError(t, s.CompleteImageCopy("node0", "img"))
	s.PinImage("node0", "img")

	err := s.EvictResidentImage("node0", "img")
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.KindNotAllowed))

	s.UnpinImage("node0", "img")
	require.NoError(t, s.EvictResidentImage("node0", "img"))
	assert.False(t, s.IsImageResident("node0", "img"))
	assert.Equal(t, int64(100<<20), s.AvailableDiskBytes("node0"))
}

func TestLoadImageIntoRAMIdempotent(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.LoadImageIntoRAM("node0", "img", 10<<20))
	assert.True(t, s.IsImageLoadedInRAM("node0", "img"))
	before := s.AvailableRAMBytes("node0")

	// Loading an already-loaded image is a no-op, not a double charge.
	require.NoError(t, s.LoadImageIntoRAM("node0", "img", 10<<20))
	assert.Equal(t, before, s.AvailableRAMBytes("node0"))

	require.NoError(t, s.EvictImageFromRAM("node0", "img"))
	assert.False(t, s.IsImageLoadedInRAM("node0", "img"))
}

func TestPendingQueueOrderAndRemoval(t *testing.T) {
	s := newTestState()
	i1 := &job.Invocation{ID: "i1"}
	i2 := &job.Invocation{ID: "i2"}
	s.Enqueue(i1)
	s.Enqueue(i2)
	assert.Equal(t, []*job.Invocation{i1, i2}, s.PendingInvocations())

	s.RemovePending("i1")
	assert.Equal(t, []*job.Invocation{i2}, s.PendingInvocations())
}

func TestResidentImagesOrderedLargestFirst(t *testing.T) {
	s := newTestState()
	require.NoError(t, s.BeginImageCopy("node0", "small", 5<<20, "remote", time.Time{}))
	require.NoError(t, s.CompleteImageCopy("node0", "small"))
	require.NoError(t, s.BeginImageCopy("node0", "big", 20<<20, "remote", time.Time{}))
	require.NoError(t, s.CompleteImageCopy("node0", "big"))

	assert.Equal(t, []string{"big", "small"}, s.ResidentImages("node0"))
}

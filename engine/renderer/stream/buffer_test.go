package stream

import (
	"testing"
	"time"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/spaghettifunk/tessera/engine/renderer/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, config sim.DeviceConfig) *sim.Device {
	t.Helper()
	device, err := sim.NewDevice(config)
	require.NoError(t, err)
	t.Cleanup(func() {
		device.Lose()
		_ = device.Shutdown()
	})
	return device
}

func TestNewPartitionedBuffer(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{})

	pb, err := NewPartitionedBuffer(device, "commands", 3, 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), pb.PartitionCount())
	assert.Equal(t, uint64(100), pb.PartitionSize())
	assert.Equal(t, uint64(300), device.Allocated())
	assert.Equal(t, "commands", pb.Label())
	for p := uint32(0); p < 3; p++ {
		assert.Equal(t, metadata.NoToken, pb.Token(p))
	}

	_, err = NewPartitionedBuffer(device, "empty", 0, 100)
	assert.Error(t, err)
	_, err = NewPartitionedBuffer(device, "empty", 3, 0)
	assert.Error(t, err)
}

func TestAllocationFailure(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{BufferLimit: 128})
	_, err := NewPartitionedBuffer(device, "too-big", 3, 64)
	assert.ErrorIs(t, err, core.ErrResourceAllocation)
}

func TestWriteStaysInsidePartition(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{})
	pb, err := NewPartitionedBuffer(device, "commands", 2, 8)
	require.NoError(t, err)

	next, err := pb.Write(0, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next)
	next, err = pb.Write(next, []byte{5, 6, 7, 8})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), next)

	_, err = pb.Write(next, []byte{9})
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	_, err = pb.Write(6, []byte{9, 9, 9})
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)

	next, err = pb.Write(3, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next)

	pb.MoveNextPartition()
	_, err = pb.Write(0, []byte{0xA, 0xB})
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xA, 0xB, 0, 0, 0, 0, 0, 0}, device.BufferContents(pb.Handle(), 0, 16))
}

func TestPartitionsRotateRoundRobin(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{})
	pb, err := NewPartitionedBuffer(device, "commands", 3, 10)
	require.NoError(t, err)

	seen := []uint32{}
	offsets := []uint64{}
	for i := 0; i < 7; i++ {
		seen = append(seen, pb.CurrentPartition())
		offsets = append(offsets, pb.PartitionOffset())
		pb.MoveNextPartition()
	}
	assert.Equal(t, []uint32{0, 1, 2, 0, 1, 2, 0}, seen)
	assert.Equal(t, []uint64{0, 10, 20, 0, 10, 20, 0}, offsets)
}

func TestFenceAndWaitClearTheSlot(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{Latency: 5 * time.Millisecond})
	pb, err := NewPartitionedBuffer(device, "commands", 2, 10)
	require.NoError(t, err)

	waited, err := pb.WaitCurrent(time.Second)
	require.NoError(t, err)
	assert.Zero(t, waited)

	require.NoError(t, pb.Fence())
	token := pb.Token(0)
	assert.NotEqual(t, metadata.NoToken, token)

	_, err = pb.WaitCurrent(time.Second)
	require.NoError(t, err)
	assert.Equal(t, metadata.NoToken, pb.Token(0))
	assert.Zero(t, device.Outstanding())
}

func TestFenceTwiceReplacesToken(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{})
	pb, err := NewPartitionedBuffer(device, "commands", 2, 10)
	require.NoError(t, err)

	require.NoError(t, pb.Fence())
	first := pb.Token(0)
	require.NoError(t, pb.Fence())
	assert.NotEqual(t, first, pb.Token(0))
	assert.Equal(t, 1, device.Outstanding())
}

func TestReplacedTokenStillGuardsEarlierReads(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{Latency: time.Millisecond})
	pb, err := NewPartitionedBuffer(device, "commands", 2, 40)
	require.NoError(t, err)

	record := make([]byte, metadata.IndirectCommandSize)
	_, err = pb.Write(0, record)
	require.NoError(t, err)
	device.MultiDrawIndirect(pb.Handle(), pb.PartitionOffset(), 1, metadata.IndirectCommandSize)
	require.NoError(t, pb.Fence())
	require.NoError(t, pb.Fence())

	_, err = pb.WaitCurrent(time.Second)
	require.NoError(t, err)
	_, err = pb.Write(0, record)
	require.NoError(t, err)
	assert.Empty(t, device.Violations())
	assert.Zero(t, device.Outstanding())
}

func TestWaitTimeoutKeepsToken(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{Latency: time.Hour})
	pb, err := NewPartitionedBuffer(device, "commands", 2, 10)
	require.NoError(t, err)

	require.NoError(t, pb.Fence())
	_, err = pb.WaitCurrent(10 * time.Millisecond)
	assert.ErrorIs(t, err, core.ErrFenceTimeout)
	assert.NotEqual(t, metadata.NoToken, pb.Token(0))
}

func TestDestroyWaitsOnEveryPartition(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{Latency: 2 * time.Millisecond})
	pb, err := NewPartitionedBuffer(device, "commands", 3, 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, pb.Fence())
		pb.MoveNextPartition()
	}
	require.Equal(t, 3, device.Outstanding())

	require.NoError(t, pb.Destroy(time.Second))
	assert.Zero(t, device.Outstanding())
	assert.Zero(t, device.Allocated())
	assert.Equal(t, uint64(3), device.Stats().TokensWaited)
}

func TestDestroyOnLostDeviceStillFrees(t *testing.T) {
	device := newDevice(t, sim.DeviceConfig{Latency: time.Hour})
	pb, err := NewPartitionedBuffer(device, "commands", 3, 10)
	require.NoError(t, err)
	require.NoError(t, pb.Fence())

	device.Lose()
	err = pb.Destroy(time.Second)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Zero(t, device.Outstanding())
	assert.Zero(t, device.Allocated())
}

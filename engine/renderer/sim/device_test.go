package sim

import (
	"testing"
	"time"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T, config DeviceConfig) *Device {
	t.Helper()
	d, err := NewDevice(config)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Lose()
		_ = d.Shutdown()
	})
	return d
}

func commandBytes(n int) []byte {
	out := []byte{}
	for i := 0; i < n; i++ {
		out = metadata.IndirectCommand{Count: 36, InstanceCount: 1, BaseInstance: uint32(i)}.AppendBytes(out)
	}
	return out
}

func TestTokensSignalInOrder(t *testing.T) {
	d := newDevice(t, DeviceConfig{Latency: 3 * time.Millisecond})

	tokens := []metadata.CompletionToken{}
	for i := 0; i < 4; i++ {
		token, err := d.Insert()
		require.NoError(t, err)
		tokens = append(tokens, token)
	}
	assert.Equal(t, []metadata.CompletionToken{1, 2, 3, 4}, tokens)

	require.NoError(t, d.Wait(tokens[2], time.Second))
	assert.True(t, d.IsSignaled(tokens[0]))
	assert.True(t, d.IsSignaled(tokens[1]))
	require.NoError(t, d.Wait(tokens[3], 0))

	for _, token := range tokens {
		d.Dispose(token)
	}
	d.Dispose(metadata.NoToken)
	assert.Zero(t, d.Outstanding())
	assert.Equal(t, uint64(4), d.Stats().TokensInserted)
}

func TestWaitTimesOut(t *testing.T) {
	d := newDevice(t, DeviceConfig{Latency: time.Hour})
	token, err := d.Insert()
	require.NoError(t, err)

	assert.False(t, d.IsSignaled(token))
	assert.ErrorIs(t, d.Wait(token, 5*time.Millisecond), core.ErrFenceTimeout)
}

func TestLostDeviceFailsWaits(t *testing.T) {
	d := newDevice(t, DeviceConfig{Latency: time.Hour})
	token, err := d.Insert()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Wait(token, 0) }()
	d.Lose()
	assert.ErrorIs(t, <-done, core.ErrDeviceLost)

	_, err = d.Insert()
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	_, err = d.BufferCreate("late", 16)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
}

func TestWaitOnUnknownToken(t *testing.T) {
	d := newDevice(t, DeviceConfig{})
	assert.ErrorIs(t, d.Wait(42, time.Second), core.ErrInvalidState)
	assert.False(t, d.IsSignaled(42))
}

func TestInsertAfterShutdown(t *testing.T) {
	d, err := NewDevice(DeviceConfig{})
	require.NoError(t, err)
	require.NoError(t, d.Shutdown())
	_, err = d.Insert()
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestBufferLimit(t *testing.T) {
	d := newDevice(t, DeviceConfig{BufferLimit: 100})
	h, err := d.BufferCreate("a", 60)
	require.NoError(t, err)
	_, err = d.BufferCreate("b", 60)
	assert.ErrorIs(t, err, core.ErrResourceAllocation)

	d.BufferDestroy(h)
	_, err = d.BufferCreate("b", 60)
	assert.NoError(t, err)
	assert.Equal(t, uint64(60), d.Allocated())
}

func TestBufferWriteBounds(t *testing.T) {
	d := newDevice(t, DeviceConfig{})
	h, err := d.BufferCreate("a", 4)
	require.NoError(t, err)

	require.NoError(t, d.BufferWrite(h, 1, []byte{7, 8}))
	assert.Equal(t, []byte{0, 7, 8, 0}, d.BufferContents(h, 0, 4))
	assert.ErrorIs(t, d.BufferWrite(h, 3, []byte{1, 2}), core.ErrCapacityExceeded)
	assert.Error(t, d.BufferWrite(999, 0, []byte{1}))
	assert.Nil(t, d.BufferContents(h, 2, 4))
}

func TestUniformLocationsAreStablePerName(t *testing.T) {
	d := newDevice(t, DeviceConfig{})
	p, err := d.ProgramCreate("gbuffer")
	require.NoError(t, err)

	a, err := d.UniformLocation(p, "u_model")
	require.NoError(t, err)
	b, err := d.UniformLocation(p, "u_albedo")
	require.NoError(t, err)
	again, err := d.UniformLocation(p, "u_model")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)

	_, err = d.UniformLocation(p, "")
	assert.Error(t, err)
	_, err = d.UniformLocation(999, "u_model")
	assert.Error(t, err)
	_, err = d.ProgramCreate("")
	assert.ErrorIs(t, err, core.ErrResourceAllocation)
}

func TestMultiDrawIndirectRecordsState(t *testing.T) {
	d := newDevice(t, DeviceConfig{})
	h, err := d.BufferCreate("commands", 200)
	require.NoError(t, err)
	require.NoError(t, d.BufferWrite(h, 40, commandBytes(3)))

	p, err := d.ProgramCreate("lighting")
	require.NoError(t, err)
	target, err := d.RenderTargetCreate("light")
	require.NoError(t, err)
	input, err := d.RenderTargetCreate("normal")
	require.NoError(t, err)

	d.RenderTargetBind(target)
	d.ProgramUse(p)
	d.RenderTargetSample(5, input)
	d.GeometryBind(metadata.GeometryVertexSpec{Handle: 2, Format: metadata.VertexFormatPNT})
	d.UniformFloatArray(1, []float32{0.25, 0.5, 0.75})
	d.UniformTextureArray(2, 8, []metadata.TextureHandle{10, 11})
	d.MultiDrawIndirect(h, 40, 3, 0)
	// Out of range reads are dropped.
	d.MultiDrawIndirect(h, 180, 3, metadata.IndirectCommandSize)
	d.MultiDrawIndirect(h, 0, 0, metadata.IndirectCommandSize)

	draws := d.DrawCalls()
	require.Len(t, draws, 1)
	call := draws[0]
	assert.Equal(t, "lighting", call.Program)
	assert.Equal(t, []metadata.RenderTargetHandle{target}, call.Targets)
	assert.Equal(t, map[uint32]metadata.RenderTargetHandle{5: input}, call.Samples)
	assert.Equal(t, uint32(metadata.IndirectCommandSize), call.Stride)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, call.Floats[1])
	assert.Equal(t, map[uint32]metadata.TextureHandle{8: 10, 9: 11}, call.Units)
	require.Len(t, call.Commands, 3)
	for i, c := range call.Commands {
		assert.Equal(t, uint32(i), c.BaseInstance)
		assert.Equal(t, uint32(36), c.Count)
	}
	assert.Equal(t, []string{"lighting"}, d.ProgramLog())
	assert.Equal(t, uint64(1), d.Stats().Draws)

	d.ClearHistory()
	assert.Empty(t, d.DrawCalls())
	assert.Empty(t, d.ProgramLog())
}

func TestHistoryIsBounded(t *testing.T) {
	d := newDevice(t, DeviceConfig{HistorySize: 2})
	h, err := d.BufferCreate("commands", 20)
	require.NoError(t, err)
	require.NoError(t, d.BufferWrite(h, 0, commandBytes(1)))
	for i := 0; i < 5; i++ {
		d.MultiDrawIndirect(h, 0, 1, 0)
	}
	assert.Len(t, d.DrawCalls(), 2)
}

func TestHazards(t *testing.T) {
	d := newDevice(t, DeviceConfig{Latency: 2 * time.Millisecond})
	h, err := d.BufferCreate("commands", 100)
	require.NoError(t, err)
	require.NoError(t, d.BufferWrite(h, 0, commandBytes(2)))

	d.MultiDrawIndirect(h, 0, 2, 0)
	token, err := d.Insert()
	require.NoError(t, err)

	// Disjoint ranges are always fine.
	require.NoError(t, d.BufferWrite(h, 40, commandBytes(1)))
	assert.Empty(t, d.Violations())

	// Overlapping before the CPU has seen the token signal.
	require.NoError(t, d.BufferWrite(h, 20, commandBytes(1)))
	violations := d.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, token, violations[0].Token)
	assert.Equal(t, uint64(20), violations[0].Offset)

	// Once waited on, the range is free again.
	d.MultiDrawIndirect(h, 0, 2, 0)
	token, err = d.Insert()
	require.NoError(t, err)
	require.NoError(t, d.Wait(token, time.Second))
	require.NoError(t, d.BufferWrite(h, 0, commandBytes(2)))
	assert.Len(t, d.Violations(), 1)
}

func TestEachTokenRetiresOnlyItsReads(t *testing.T) {
	d := newDevice(t, DeviceConfig{})
	h, err := d.BufferCreate("commands", 100)
	require.NoError(t, err)
	require.NoError(t, d.BufferWrite(h, 0, commandBytes(5)))

	d.MultiDrawIndirect(h, 0, 1, 0)
	first, err := d.Insert()
	require.NoError(t, err)
	d.MultiDrawIndirect(h, 20, 1, 0)
	second, err := d.Insert()
	require.NoError(t, err)

	require.NoError(t, d.Wait(second, time.Second))
	require.NoError(t, d.BufferWrite(h, 20, commandBytes(1)))
	assert.Empty(t, d.Violations())

	require.NoError(t, d.BufferWrite(h, 0, commandBytes(1)))
	require.Len(t, d.Violations(), 1)
	assert.Equal(t, first, d.Violations()[0].Token)
}

func TestDisposedTokenHandsReadsToTheNextOne(t *testing.T) {
	d := newDevice(t, DeviceConfig{})
	h, err := d.BufferCreate("commands", 100)
	require.NoError(t, err)
	require.NoError(t, d.BufferWrite(h, 0, commandBytes(1)))

	d.MultiDrawIndirect(h, 0, 1, 0)
	stale, err := d.Insert()
	require.NoError(t, err)
	d.Dispose(stale)

	token, err := d.Insert()
	require.NoError(t, err)
	require.NoError(t, d.Wait(token, time.Second))
	require.NoError(t, d.BufferWrite(h, 0, commandBytes(1)))
	assert.Empty(t, d.Violations())
}

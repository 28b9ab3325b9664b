package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsReachListenersUntilHandled(t *testing.T) {
	require.True(t, EventInitialize())
	t.Cleanup(func() { _ = EventShutdown() })

	first, second := "first", "second"
	calls := []string{}
	handler := func(handled bool) FnOnEvent {
		return func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
			calls = append(calls, listener.(string))
			assert.Equal(t, EVENT_CODE_MANIFEST_CHANGED, data.Type)
			assert.Equal(t, "pipeline.shadercfg", data.Data)
			return handled
		}
	}

	require.True(t, EventRegister(EVENT_CODE_MANIFEST_CHANGED, first, handler(false)))
	require.True(t, EventRegister(EVENT_CODE_MANIFEST_CHANGED, second, handler(true)))
	assert.False(t, EventRegister(EVENT_CODE_MANIFEST_CHANGED, first, handler(true)))

	assert.True(t, EventFire(EVENT_CODE_MANIFEST_CHANGED, nil, EventContext{Data: "pipeline.shadercfg"}))
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.True(t, EventUnregister(EVENT_CODE_MANIFEST_CHANGED, second))
	assert.False(t, EventUnregister(EVENT_CODE_MANIFEST_CHANGED, second))
	calls = nil
	assert.False(t, EventFire(EVENT_CODE_MANIFEST_CHANGED, nil, EventContext{Data: "pipeline.shadercfg"}))
	assert.Equal(t, []string{"first"}, calls)

	assert.False(t, EventFire(EVENT_CODE_DEVICE_LOST, nil, EventContext{}))
}

func TestIdentifierPoolReusesSlots(t *testing.T) {
	pool := NewIdentifierPool(2)
	a := pool.Aquire("a")
	b := pool.Aquire("b")
	assert.Equal(t, uint32(1), a)
	assert.Equal(t, uint32(2), b)
	assert.Equal(t, "b", pool.Owner(b))

	require.NoError(t, pool.Release(a))
	assert.Nil(t, pool.Owner(a))
	assert.Equal(t, a, pool.Aquire("c"))
	assert.Equal(t, uint32(3), pool.Aquire("d"))

	assert.Error(t, pool.Release(0))
	assert.Error(t, pool.Release(99))
	assert.Nil(t, pool.Owner(99))
}

func TestMetricsAverages(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 0.001)
	assert.Equal(t, uint64(AVG_COUNT), m.Count())

	for i := 0; i < 100; i++ {
		m.Update(10 * time.Millisecond)
	}
	fps, _ := m.Frame()
	assert.InDelta(t, 100.0, fps, 1)

	m.RecordFenceWait(1500 * time.Microsecond)
	assert.InDelta(t, 1.5, m.FenceWaitMS, 0.0001)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	require.NoError(t, SetLogLevel("info"))
	assert.Error(t, SetLogLevel("chatty"))
}

package systems

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSystemRunsInOrderWithOneWorker(t *testing.T) {
	js, err := NewJobSystem(1, 16)
	require.NoError(t, err)

	var mu sync.Mutex
	order := []int{}
	for i := 0; i < 10; i++ {
		js.Submit(metadata.JobTask{
			InputParams: i,
			OnStart: func(params interface{}) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, params.(int))
				return nil
			},
		})
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestJobSystemCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	var completed, failed bool
	js.Submit(metadata.JobTask{
		OnStart:    func(interface{}) error { return nil },
		OnComplete: func(interface{}) { completed = true; wg.Done() },
	})
	js.Submit(metadata.JobTask{
		OnStart:   func(interface{}) error { return errors.New("boom") },
		OnFailure: func(interface{}) { failed = true; wg.Done() },
	})
	wg.Wait()
	require.NoError(t, js.Shutdown())
	assert.True(t, completed)
	assert.True(t, failed)
}

func TestJobSystemRejectsBadConfig(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

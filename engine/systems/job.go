package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

type JobSystem struct {
	numWorkers int
	jobQueue   chan metadata.JobTask
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

// NewJobSystem starts numWorkers goroutines. With a single worker jobs run
// strictly in submission order.
func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	jq := make(chan metadata.JobTask, channelSize)
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   jq,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				// Run the job and handle potential errors
				if err := job.OnStart(job.InputParams); err != nil {
					core.LogError(err.Error())
					if job.OnFailure != nil {
						job.OnFailure(job.InputParams)
					}
					continue
				}
				if job.OnComplete != nil {
					job.OnComplete(job.InputParams)
				}
			}
		}()
	}
}

/**
 * @brief Shuts the job system down after draining queued jobs.
 */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() {
		close(js.jobQueue)
	})
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution.
 * Blocks while the queue is full.
 */
func (js *JobSystem) Submit(jt metadata.JobTask) {
	js.jobQueue <- jt
}

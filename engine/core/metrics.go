package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

// Metrics keeps rolling frame statistics. Safe for concurrent readers.
type Metrics struct {
	mu                 sync.RWMutex
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
	// Time the CPU spent blocked on completion tokens during the last frame.
	FenceWaitMS float64
	TotalFrames uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		MStimes: [AVG_COUNT]float64{0},
	}
}

func (ms *Metrics) Update(frameElapsed time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Calculate frame ms average
	frame_ms := float64(frameElapsed) / float64(time.Millisecond)
	ms.MStimes[ms.FrameAVGCounter] = frame_ms
	if ms.FrameAVGCounter == AVG_COUNT-1 {
		ms.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			ms.MSavg += ms.MStimes[i]
		}

		ms.MSavg /= float64(AVG_COUNT)
	}
	ms.FrameAVGCounter++
	ms.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	ms.AccumulatedFrameMS += frame_ms
	if ms.AccumulatedFrameMS > 1000 {
		ms.FPS = float64(ms.Frames)
		ms.AccumulatedFrameMS -= 1000
		ms.Frames = 0
	}

	// Count all Frames.
	ms.Frames++
	ms.TotalFrames++
}

func (ms *Metrics) RecordFenceWait(waited time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.FenceWaitMS = float64(waited) / float64(time.Millisecond)
}

func (ms *Metrics) FPSValue() float64 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.FPS
}

func (ms *Metrics) FrameTime() float64 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.MSavg
}

func (ms *Metrics) Frame() (float64, float64) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.FPS, ms.MSavg
}

func (ms *Metrics) Count() uint64 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.TotalFrames
}

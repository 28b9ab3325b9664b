package sim

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

// Insert queues a token behind all work submitted so far. The GPU timeline
// signals it after the configured latency.
func (d *Device) Insert() (metadata.CompletionToken, error) {
	d.submitMu.RLock()
	defer d.submitMu.RUnlock()

	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return metadata.NoToken, fmt.Errorf("insert completion token: %w", core.ErrDeviceLost)
	}
	if d.closed {
		d.mu.Unlock()
		return metadata.NoToken, fmt.Errorf("insert completion token: device shut down: %w", core.ErrInvalidState)
	}
	d.nextToken++
	token := d.nextToken
	f := &fence{signaled: make(chan struct{})}
	d.fences[token] = f
	d.tracker.attach(token)
	d.stats.TokensInserted++
	latency := d.config.Latency
	lostCh := d.lostCh
	d.mu.Unlock()

	d.gpu.Submit(metadata.JobTask{
		InputParams: token,
		OnStart: func(interface{}) error {
			if latency > 0 {
				timer := time.NewTimer(latency)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-lostCh:
					return nil
				}
			}
			select {
			case <-lostCh:
				// A lost device never signals.
				return nil
			default:
			}
			close(f.signaled)
			d.mu.Lock()
			d.stats.TokensSignaled++
			d.mu.Unlock()
			return nil
		},
	})
	return token, nil
}

func (d *Device) Wait(token metadata.CompletionToken, timeout time.Duration) error {
	d.mu.Lock()
	f, ok := d.fences[token]
	lostCh := d.lostCh
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("wait on unknown completion token %d: %w", token, core.ErrInvalidState)
	}

	// Already signaled wins over a concurrent loss.
	select {
	case <-f.signaled:
		d.observe(token, f)
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.signaled:
		d.observe(token, f)
		return nil
	case <-lostCh:
		return fmt.Errorf("wait on completion token %d: %w", token, core.ErrDeviceLost)
	case <-expired:
		return fmt.Errorf("wait on completion token %d after %s: %w", token, timeout, core.ErrFenceTimeout)
	}
}

func (d *Device) IsSignaled(token metadata.CompletionToken) bool {
	d.mu.Lock()
	f, ok := d.fences[token]
	d.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-f.signaled:
		d.observe(token, f)
		return true
	default:
		return false
	}
}

func (d *Device) Dispose(token metadata.CompletionToken) {
	if token == metadata.NoToken {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fences[token]; ok && !f.observed {
		// Reads the CPU never saw retire go back to the next Insert.
		d.tracker.release(token)
	}
	delete(d.fences, token)
}

// Outstanding returns the number of tokens that have not been disposed.
func (d *Device) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fences)
}

// observe records that the CPU saw the token signal, which retires the
// reads it covers.
func (d *Device) observe(token metadata.CompletionToken, f *fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.observed {
		return
	}
	f.observed = true
	d.tracker.retire(token)
	d.stats.TokensWaited++
}

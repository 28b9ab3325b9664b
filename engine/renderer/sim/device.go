package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/tessera/engine/containers"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/math"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/spaghettifunk/tessera/engine/systems"
)

type DeviceConfig struct {
	// Time the simulated GPU spends on the work covered by each completion token.
	Latency time.Duration
	// Total bytes the device can hand out across buffers. Zero means unlimited.
	BufferLimit uint64
	// Number of draw calls and program binds kept for inspection.
	HistorySize int
}

// Device is an in-process stand-in for a GPU. Submitted work retires on
// its own goroutine, in order, so completion tokens signal asynchronously
// just like driver fences do.
type Device struct {
	mu     sync.Mutex
	config DeviceConfig

	ids       *core.IdentifierPool
	buffers   map[metadata.BufferHandle]*buffer
	allocated uint64
	programs  map[metadata.ProgramHandle]*program
	targets   map[metadata.RenderTargetHandle]string

	nextToken metadata.CompletionToken
	fences    map[metadata.CompletionToken]*fence
	tracker   hazardTracker

	state      bindState
	draws      *containers.RingQueue[DrawCall]
	programLog *containers.RingQueue[string]
	stats      Stats

	gpu *systems.JobSystem

	// Held for reading while submitting to gpu so Shutdown cannot close it underneath.
	submitMu sync.RWMutex
	closed   bool
	lost     bool
	lostCh   chan struct{}
}

type buffer struct {
	label string
	data  []byte
}

type program struct {
	name      string
	locations map[string]metadata.UniformLocation
}

type fence struct {
	signaled chan struct{}
	observed bool
}

// Stats counts device calls since creation.
type Stats struct {
	BufferWrites   uint64
	BytesWritten   uint64
	Draws          uint64
	TokensInserted uint64
	TokensSignaled uint64
	TokensWaited   uint64
}

func NewDevice(config DeviceConfig) (*Device, error) {
	if config.HistorySize <= 0 {
		config.HistorySize = 4096
	}
	gpu, err := systems.NewJobSystem(1, 1024)
	if err != nil {
		return nil, err
	}
	return &Device{
		config:     config,
		ids:        core.NewIdentifierPool(64),
		buffers:    make(map[metadata.BufferHandle]*buffer),
		programs:   make(map[metadata.ProgramHandle]*program),
		targets:    make(map[metadata.RenderTargetHandle]string),
		fences:     make(map[metadata.CompletionToken]*fence),
		state:      newBindState(),
		draws:      containers.NewRingQueue[DrawCall](config.HistorySize),
		programLog: containers.NewRingQueue[string](config.HistorySize),
		gpu:        gpu,
		lostCh:     make(chan struct{}),
	}, nil
}

// Shutdown drains the GPU timeline. Outstanding tokens still signal.
func (d *Device) Shutdown() error {
	d.submitMu.Lock()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.submitMu.Unlock()
	return d.gpu.Shutdown()
}

// Lose simulates device removal. Pending and future waits fail with
// core.ErrDeviceLost and no further token signals.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return
	}
	d.lost = true
	close(d.lostCh)
	core.LogWarn("sim device lost")
}

func (d *Device) BufferCreate(label string, size uint64) (metadata.BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return 0, core.ErrDeviceLost
	}
	if d.config.BufferLimit > 0 && d.allocated+size > d.config.BufferLimit {
		return 0, fmt.Errorf("buffer %q of %d bytes exceeds device limit of %d bytes (%d in use): %w", label, size, d.config.BufferLimit, d.allocated, core.ErrResourceAllocation)
	}
	b := &buffer{label: label, data: make([]byte, size)}
	handle := metadata.BufferHandle(d.ids.Aquire(b))
	d.buffers[handle] = b
	d.allocated += size
	core.LogDebug("sim device: created buffer %q (%d bytes) as %d", label, size, handle)
	return handle, nil
}

func (d *Device) BufferWrite(handle metadata.BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[handle]
	if !ok {
		return fmt.Errorf("buffer write: unknown buffer %d", handle)
	}
	end := offset + uint64(len(data))
	if end > uint64(len(b.data)) {
		return fmt.Errorf("buffer write: %d bytes at %d overflow buffer %q of %d bytes: %w", len(data), offset, b.label, len(b.data), core.ErrCapacityExceeded)
	}
	d.tracker.checkWrite(handle, offset, end)
	copy(b.data[offset:end], data)
	d.stats.BufferWrites++
	d.stats.BytesWritten += uint64(len(data))
	return nil
}

func (d *Device) BufferDestroy(handle metadata.BufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[handle]
	if !ok {
		return
	}
	d.allocated -= uint64(len(b.data))
	delete(d.buffers, handle)
	d.tracker.forget(handle)
	_ = d.ids.Release(uint32(handle))
}

// BufferContents returns a copy of a buffer range.
func (d *Device) BufferContents(handle metadata.BufferHandle, offset, size uint64) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[handle]
	if !ok || offset+size > uint64(len(b.data)) {
		return nil
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out
}

func (d *Device) ProgramCreate(name string) (metadata.ProgramHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == "" {
		return 0, fmt.Errorf("program create: empty name: %w", core.ErrResourceAllocation)
	}
	p := &program{name: name, locations: make(map[string]metadata.UniformLocation)}
	handle := metadata.ProgramHandle(d.ids.Aquire(p))
	d.programs[handle] = p
	return handle, nil
}

// UniformLocation hands out locations in lookup order, stable per name.
func (d *Device) UniformLocation(handle metadata.ProgramHandle, name string) (metadata.UniformLocation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.programs[handle]
	if !ok {
		return -1, fmt.Errorf("uniform location: unknown program %d", handle)
	}
	if name == "" {
		return -1, fmt.Errorf("uniform location: program %q has no uniform with an empty name", p.name)
	}
	if loc, ok := p.locations[name]; ok {
		return loc, nil
	}
	loc := metadata.UniformLocation(len(p.locations))
	p.locations[name] = loc
	return loc, nil
}

func (d *Device) RenderTargetCreate(label string) (metadata.RenderTargetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return 0, core.ErrDeviceLost
	}
	handle := metadata.RenderTargetHandle(d.ids.Aquire(label))
	d.targets[handle] = label
	return handle, nil
}

func (d *Device) RenderTargetDestroy(handle metadata.RenderTargetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.targets[handle]; !ok {
		return
	}
	delete(d.targets, handle)
	_ = d.ids.Release(uint32(handle))
}

// RenderTargetLabel returns the label a target was created with.
func (d *Device) RenderTargetLabel(handle metadata.RenderTargetHandle) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targets[handle]
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Allocated returns the bytes currently held by live buffers.
func (d *Device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

var _ metadata.Device = (*Device)(nil)

func copyMat4s(values []math.Mat4) []math.Mat4 {
	out := make([]math.Mat4, len(values))
	copy(out, values)
	return out
}

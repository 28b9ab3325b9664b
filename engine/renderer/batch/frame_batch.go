package batch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/math"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/spaghettifunk/tessera/engine/renderer/stream"
)

// DefaultPartitionCount gives three frames in flight.
const DefaultPartitionCount uint32 = 3

type State uint8

const (
	// Between EndRendering and the next Reset. Also the initial state.
	StateIdle State = iota
	// After Reset; renderables may be pushed.
	StateAccumulating
	// After BeginRendering; passes may consume batches.
	StateRendering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateRendering:
		return "rendering"
	default:
		return "unknown"
	}
}

type FrameBatchConfig struct {
	// Worst-case number of renderables in one frame.
	MaxRenderables uint32
	// Limits shared by every pass consuming this batch.
	Capability metadata.PipelineCapability
	// Number of frames in flight. Zero means DefaultPartitionCount.
	PartitionCount uint32
	// Bound on a completion token wait. Zero waits forever.
	FenceTimeout time.Duration
}

/**
 * @brief Accumulates one frame's renderables into lock-step arrays and an
 * indirect-draw stream, split into batches of at most MaxBatchSize.
 */
type FrameBatch struct {
	label          string
	maxRenderables uint32
	maxBatchSize   uint32
	fenceTimeout   time.Duration

	count      uint32
	models     []math.Mat4
	smoothness []float32
	textures   [metadata.TextureRoleCount][]metadata.TextureHandle

	commands    *stream.PartitionedBuffer
	writeOffset uint64
	scratch     []byte

	geometry metadata.GeometryVertexSpec
	state    State
	lastWait time.Duration
}

/** @brief A read-only view of one batch of a frame. */
type Batch struct {
	Index uint32
	// First renderable of the batch.
	Offset uint32
	Count  uint32
	// Absolute byte offset of the batch's first indirect record.
	CommandOffset uint64

	Models     []math.Mat4
	Smoothness []float32
	Textures   [metadata.TextureRoleCount][]metadata.TextureHandle
}

func New(device metadata.Device, config FrameBatchConfig) (*FrameBatch, error) {
	if config.MaxRenderables == 0 {
		err := fmt.Errorf("frame batch: MaxRenderables must be > 0")
		core.LogError(err.Error())
		return nil, err
	}
	if config.Capability.MaxBatchSize == 0 {
		err := fmt.Errorf("frame batch: pipeline capability has no batch size")
		core.LogError(err.Error())
		return nil, err
	}
	if config.PartitionCount == 0 {
		config.PartitionCount = DefaultPartitionCount
	}

	label := fmt.Sprintf("framebatch.commands.%s", uuid.New().String())
	commands, err := stream.NewPartitionedBuffer(device, label, config.PartitionCount, uint64(config.MaxRenderables)*metadata.IndirectCommandSize)
	if err != nil {
		return nil, err
	}

	fb := &FrameBatch{
		label:          label,
		maxRenderables: config.MaxRenderables,
		maxBatchSize:   config.Capability.MaxBatchSize,
		fenceTimeout:   config.FenceTimeout,
		models:         make([]math.Mat4, 0, config.MaxRenderables),
		smoothness:     make([]float32, 0, config.MaxRenderables),
		commands:       commands,
		scratch:        make([]byte, 0, metadata.IndirectCommandSize),
		state:          StateIdle,
	}
	for r := range fb.textures {
		fb.textures[r] = make([]metadata.TextureHandle, 0, config.MaxRenderables)
	}
	core.LogDebug("frame batch %s: %d renderables, batches of %d, %d partitions", label, fb.maxRenderables, fb.maxBatchSize, config.PartitionCount)
	return fb, nil
}

/**
 * @brief Starts a frame. Blocks until the GPU has released the partition
 * about to be written, then clears every array and binds geometry.
 * A failed wait is fatal: the device must be torn down.
 */
func (fb *FrameBatch) Reset(geometry metadata.GeometryVertexSpec) error {
	if fb.state == StateRendering {
		err := fmt.Errorf("frame batch: reset while a frame is being rendered, call EndRendering first: %w", core.ErrInvalidState)
		core.LogError(err.Error())
		return err
	}

	waited, err := fb.commands.WaitCurrent(fb.fenceTimeout)
	fb.lastWait = waited
	if err != nil {
		return fmt.Errorf("frame batch: partition %d never released: %w: %w", fb.commands.CurrentPartition(), core.ErrDeviceLost, err)
	}

	fb.count = 0
	fb.models = fb.models[:0]
	fb.smoothness = fb.smoothness[:0]
	for r := range fb.textures {
		fb.textures[r] = fb.textures[r][:0]
	}
	fb.writeOffset = 0
	fb.geometry = geometry
	fb.state = StateAccumulating
	return nil
}

/**
 * @brief Appends one renderable. Rejected renderables leave the batch untouched.
 * Push order is batch membership and draw order.
 */
func (fb *FrameBatch) PushBackRenderable(r metadata.Renderable) error {
	if fb.state != StateAccumulating {
		err := fmt.Errorf("frame batch: push while %s, call Reset first: %w", fb.state, core.ErrInvalidState)
		core.LogError(err.Error())
		return err
	}
	if r.Command.Geometry() != fb.geometry.Handle {
		err := fmt.Errorf("frame batch: renderable geometry %d does not match bound geometry %d: %w", r.Command.Geometry(), fb.geometry.Handle, core.ErrGeometryMismatch)
		core.LogError(err.Error())
		return err
	}
	if fb.count >= fb.maxRenderables {
		err := fmt.Errorf("frame batch: already holds %d renderables: %w", fb.maxRenderables, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return err
	}

	// The shader recovers the object's slot in its batch from gl_BaseInstance.
	cmd := metadata.IndirectCommand{
		Count:         r.Command.IndexCount(),
		InstanceCount: r.Command.InstanceCount(),
		FirstIndex:    r.Command.IndexOffset(),
		BaseVertex:    r.Command.BaseVertex(),
		BaseInstance:  fb.count % fb.maxBatchSize,
	}
	fb.scratch = cmd.AppendBytes(fb.scratch[:0])
	next, err := fb.commands.Write(fb.writeOffset, fb.scratch)
	if err != nil {
		return err
	}
	fb.writeOffset = next

	fb.models = append(fb.models, r.Model)
	fb.smoothness = append(fb.smoothness, r.Material.Smoothness)
	for role := range fb.textures {
		fb.textures[role] = append(fb.textures[role], r.Material.Textures[role])
	}
	fb.count++
	return nil
}

// BeginRendering checks the lock-step arrays and opens the batch to passes.
func (fb *FrameBatch) BeginRendering() error {
	if fb.state != StateAccumulating {
		err := fmt.Errorf("frame batch: begin rendering while %s: %w", fb.state, core.ErrInvalidState)
		core.LogError(err.Error())
		return err
	}
	if err := fb.checkLockStep(); err != nil {
		core.LogError(err.Error())
		return err
	}
	fb.state = StateRendering
	return nil
}

func (fb *FrameBatch) checkLockStep() error {
	n := int(fb.count)
	if len(fb.models) != n || len(fb.smoothness) != n || fb.writeOffset != uint64(n)*metadata.IndirectCommandSize {
		return fmt.Errorf("frame batch: arrays out of step (count=%d models=%d smoothness=%d stream=%d bytes): %w", n, len(fb.models), len(fb.smoothness), fb.writeOffset, core.ErrInvalidState)
	}
	for role, t := range fb.textures {
		if len(t) != n {
			return fmt.Errorf("frame batch: %s textures out of step (%d, count=%d): %w", metadata.TextureRole(role), len(t), n, core.ErrInvalidState)
		}
	}
	return nil
}

/**
 * @brief Fences the partition just consumed by this frame's draws and
 * moves the stream to the next partition.
 */
func (fb *FrameBatch) EndRendering() error {
	if fb.state != StateRendering {
		err := fmt.Errorf("frame batch: end rendering while %s: %w", fb.state, core.ErrInvalidState)
		core.LogError(err.Error())
		return err
	}
	if err := fb.commands.Fence(); err != nil {
		return err
	}
	fb.commands.MoveNextPartition()
	fb.state = StateIdle
	return nil
}

// BatchCount is ceil(count / MaxBatchSize), zero when empty.
func (fb *FrameBatch) BatchCount() uint32 {
	return math.CeilDiv(fb.count, fb.maxBatchSize)
}

// Batch returns the view of batch bi while the frame is accumulating or
// rendering. Slices alias the batch's arrays and are valid until the next Reset.
func (fb *FrameBatch) Batch(bi uint32) (Batch, error) {
	if fb.state != StateAccumulating && fb.state != StateRendering {
		return Batch{}, fmt.Errorf("frame batch: batch %d requested while %s: %w", bi, fb.state, core.ErrInvalidState)
	}
	if bi >= fb.BatchCount() {
		return Batch{}, fmt.Errorf("frame batch: batch %d out of range (batch count %d)", bi, fb.BatchCount())
	}
	offset := bi * fb.maxBatchSize
	count := math.MinOf(fb.maxBatchSize, fb.count-offset)
	end := offset + count

	b := Batch{
		Index:         bi,
		Offset:        offset,
		Count:         count,
		CommandOffset: fb.commands.PartitionOffset() + uint64(offset)*metadata.IndirectCommandSize,
		Models:        fb.models[offset:end:end],
		Smoothness:    fb.smoothness[offset:end:end],
	}
	for role := range fb.textures {
		b.Textures[role] = fb.textures[role][offset:end:end]
	}
	return b, nil
}

// Destroy waits on every frame still in flight and frees the stream.
func (fb *FrameBatch) Destroy() error {
	return fb.commands.Destroy(fb.fenceTimeout)
}

func (fb *FrameBatch) RenderableCount() uint32 { return fb.count }
func (fb *FrameBatch) MaxRenderables() uint32  { return fb.maxRenderables }
func (fb *FrameBatch) MaxBatchSize() uint32    { return fb.maxBatchSize }
func (fb *FrameBatch) State() State            { return fb.state }
func (fb *FrameBatch) Label() string           { return fb.label }

func (fb *FrameBatch) Geometry() metadata.GeometryVertexSpec {
	return fb.geometry
}

// Buffer is the device buffer holding the indirect-draw stream.
func (fb *FrameBatch) Buffer() metadata.BufferHandle {
	return fb.commands.Handle()
}

func (fb *FrameBatch) CurrentPartition() uint32 {
	return fb.commands.CurrentPartition()
}

func (fb *FrameBatch) PartitionCount() uint32 {
	return fb.commands.PartitionCount()
}

// LastWait is how long the last Reset blocked on its completion token.
func (fb *FrameBatch) LastWait() time.Duration {
	return fb.lastWait
}

/** @brief Lock-step arrays of the whole frame, valid until the next Reset. */
func (fb *FrameBatch) Models() []math.Mat4 { return fb.models }
func (fb *FrameBatch) Smoothness() []float32 {
	return fb.smoothness
}
func (fb *FrameBatch) Textures(role metadata.TextureRole) []metadata.TextureHandle {
	return fb.textures[role]
}

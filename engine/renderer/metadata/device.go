package metadata

import (
	"time"

	"github.com/spaghettifunk/tessera/engine/math"
)

type BufferHandle uint32
type ProgramHandle uint32
type UniformLocation int32
type RenderTargetHandle uint32

/** @brief Opaque completion token. NoToken marks an empty slot. */
type CompletionToken uint64

const NoToken CompletionToken = 0

/**
 * @brief The completion-token half of the device. A token inserted now is
 * signaled by the device once every command submitted before it has finished.
 */
type Synchronizer interface {
	// Insert enqueues a new token after all previously submitted work.
	Insert() (CompletionToken, error)
	// Wait blocks until the token signals. A zero timeout waits forever.
	// Returns core.ErrFenceTimeout or core.ErrDeviceLost.
	Wait(token CompletionToken, timeout time.Duration) error
	// IsSignaled polls the token without blocking.
	IsSignaled(token CompletionToken) bool
	// Dispose releases the token. Disposing NoToken is a no-op.
	Dispose(token CompletionToken)
}

/**
 * @brief Everything the batching core needs from the graphics device.
 * Creation calls fail with core.ErrResourceAllocation.
 */
type Device interface {
	Synchronizer

	BufferCreate(label string, size uint64) (BufferHandle, error)
	BufferWrite(buffer BufferHandle, offset uint64, data []byte) error
	BufferDestroy(buffer BufferHandle)

	ProgramCreate(name string) (ProgramHandle, error)
	UniformLocation(program ProgramHandle, name string) (UniformLocation, error)
	ProgramUse(program ProgramHandle)
	UniformMat4Array(location UniformLocation, values []math.Mat4)
	UniformFloatArray(location UniformLocation, values []float32)
	// UniformTextureArray binds handles[i] to texture unit firstUnit+i and
	// points the sampler array at those units.
	UniformTextureArray(location UniformLocation, firstUnit uint32, handles []TextureHandle)

	RenderTargetCreate(label string) (RenderTargetHandle, error)
	RenderTargetBind(targets ...RenderTargetHandle)
	RenderTargetSample(unit uint32, target RenderTargetHandle)
	RenderTargetDestroy(target RenderTargetHandle)

	GeometryBind(geometry GeometryVertexSpec)
	// MultiDrawIndirect submits drawCount indirect records read from buffer
	// starting at byteOffset, stride bytes apart.
	MultiDrawIndirect(buffer BufferHandle, byteOffset uint64, drawCount uint32, stride uint32)
}

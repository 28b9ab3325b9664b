package sim

import (
	"github.com/spaghettifunk/tessera/engine/containers"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/math"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

// DrawCall is a snapshot of one MultiDrawIndirect submission and the state
// bound when it was issued.
type DrawCall struct {
	Program    string
	Targets    []metadata.RenderTargetHandle
	Samples    map[uint32]metadata.RenderTargetHandle
	Geometry   metadata.GeometryVertexSpec
	Buffer     metadata.BufferHandle
	ByteOffset uint64
	DrawCount  uint32
	Stride     uint32
	// Records read from the buffer at submission time.
	Commands []metadata.IndirectCommand
	Mat4s    map[metadata.UniformLocation][]math.Mat4
	Floats   map[metadata.UniformLocation][]float32
	Textures map[metadata.UniformLocation][]metadata.TextureHandle
	// Texture handle bound to each unit.
	Units map[uint32]metadata.TextureHandle
}

type bindState struct {
	program  metadata.ProgramHandle
	targets  []metadata.RenderTargetHandle
	samples  map[uint32]metadata.RenderTargetHandle
	geometry metadata.GeometryVertexSpec
	mat4s    map[metadata.UniformLocation][]math.Mat4
	floats   map[metadata.UniformLocation][]float32
	textures map[metadata.UniformLocation][]metadata.TextureHandle
	units    map[uint32]metadata.TextureHandle
}

func newBindState() bindState {
	bs := bindState{}
	bs.resetProgramState()
	return bs
}

func (bs *bindState) resetProgramState() {
	bs.samples = make(map[uint32]metadata.RenderTargetHandle)
	bs.mat4s = make(map[metadata.UniformLocation][]math.Mat4)
	bs.floats = make(map[metadata.UniformLocation][]float32)
	bs.textures = make(map[metadata.UniformLocation][]metadata.TextureHandle)
	bs.units = make(map[uint32]metadata.TextureHandle)
}

// ProgramUse binds a program and drops the uniform values of the previous one.
func (d *Device) ProgramUse(handle metadata.ProgramHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := ""
	if p, ok := d.programs[handle]; ok {
		name = p.name
	} else {
		core.LogWarn("sim device: binding unknown program %d", handle)
	}
	samples := d.state.samples
	d.state.program = handle
	d.state.resetProgramState()
	// Sampled targets belong to the render pass, not the program.
	d.state.samples = samples
	d.programLog.Push(name)
}

func (d *Device) UniformMat4Array(location metadata.UniformLocation, values []math.Mat4) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.mat4s[location] = copyMat4s(values)
}

func (d *Device) UniformFloatArray(location metadata.UniformLocation, values []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float32, len(values))
	copy(out, values)
	d.state.floats[location] = out
}

func (d *Device) UniformTextureArray(location metadata.UniformLocation, firstUnit uint32, handles []metadata.TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]metadata.TextureHandle, len(handles))
	copy(out, handles)
	d.state.textures[location] = out
	for i, h := range handles {
		d.state.units[firstUnit+uint32(i)] = h
	}
}

func (d *Device) RenderTargetBind(targets ...metadata.RenderTargetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.targets = append([]metadata.RenderTargetHandle(nil), targets...)
	d.state.samples = make(map[uint32]metadata.RenderTargetHandle)
}

func (d *Device) RenderTargetSample(unit uint32, target metadata.RenderTargetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.samples[unit] = target
}

func (d *Device) GeometryBind(geometry metadata.GeometryVertexSpec) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.geometry = geometry
}

func (d *Device) MultiDrawIndirect(handle metadata.BufferHandle, byteOffset uint64, drawCount uint32, stride uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if drawCount == 0 {
		return
	}
	if stride == 0 {
		stride = metadata.IndirectCommandSize
	}
	b, ok := d.buffers[handle]
	if !ok {
		core.LogError("sim device: multi draw from unknown buffer %d", handle)
		return
	}
	end := byteOffset + uint64(drawCount-1)*uint64(stride) + metadata.IndirectCommandSize
	if end > uint64(len(b.data)) {
		core.LogError("sim device: multi draw reads [%d, %d) past the end of buffer %q (%d bytes)", byteOffset, end, b.label, len(b.data))
		return
	}

	commands := make([]metadata.IndirectCommand, 0, drawCount)
	for i := uint32(0); i < drawCount; i++ {
		at := byteOffset + uint64(i)*uint64(stride)
		commands = append(commands, metadata.DecodeIndirectCommands(b.data[at:at+metadata.IndirectCommandSize])...)
	}
	d.tracker.recordRead(handle, byteOffset, end)

	call := DrawCall{
		Program:    d.programName(d.state.program),
		Targets:    append([]metadata.RenderTargetHandle(nil), d.state.targets...),
		Samples:    make(map[uint32]metadata.RenderTargetHandle, len(d.state.samples)),
		Geometry:   d.state.geometry,
		Buffer:     handle,
		ByteOffset: byteOffset,
		DrawCount:  drawCount,
		Stride:     stride,
		Commands:   commands,
		Mat4s:      make(map[metadata.UniformLocation][]math.Mat4, len(d.state.mat4s)),
		Floats:     make(map[metadata.UniformLocation][]float32, len(d.state.floats)),
		Textures:   make(map[metadata.UniformLocation][]metadata.TextureHandle, len(d.state.textures)),
		Units:      make(map[uint32]metadata.TextureHandle, len(d.state.units)),
	}
	// Uniform slices are already private copies; they are replaced, never mutated.
	for k, v := range d.state.samples {
		call.Samples[k] = v
	}
	for k, v := range d.state.mat4s {
		call.Mat4s[k] = v
	}
	for k, v := range d.state.floats {
		call.Floats[k] = v
	}
	for k, v := range d.state.textures {
		call.Textures[k] = v
	}
	for k, v := range d.state.units {
		call.Units[k] = v
	}
	d.draws.Push(call)
	d.stats.Draws++
}

func (d *Device) programName(handle metadata.ProgramHandle) string {
	if p, ok := d.programs[handle]; ok {
		return p.name
	}
	return ""
}

// DrawCalls returns the recorded history, oldest first.
func (d *Device) DrawCalls() []DrawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws.Items()
}

// ProgramLog returns the names of bound programs in bind order.
func (d *Device) ProgramLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.programLog.Items()
}

// ClearHistory drops recorded draw calls and program binds.
func (d *Device) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws = containers.NewRingQueue[DrawCall](d.config.HistorySize)
	d.programLog = containers.NewRingQueue[string](d.config.HistorySize)
}

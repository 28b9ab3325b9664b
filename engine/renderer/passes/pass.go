package passes

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/batch"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

type Kind uint8

const (
	KindGbuffer Kind = iota
	KindShadowMap
	KindSsao
	KindLighting
	KindMaterialLighting
	KindToneMapping
	KindCount
)

var kindNames = [KindCount]string{
	"gbuffer", "shadow_map", "ssao", "lighting", "material_lighting", "tone_mapping",
}

func (k Kind) String() string {
	if k >= KindCount {
		return "unknown"
	}
	return kindNames[k]
}

func ParseKind(name string) (Kind, error) {
	for k := Kind(0); k < KindCount; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return KindCount, fmt.Errorf("unknown render pass %q", name)
}

// Context is what a pass sees of the frame. Passes never keep it.
type Context struct {
	Device   metadata.Device
	GBuffer  *metadata.GBuffer
	Geometry metadata.GeometryVertexSpec
	// Buffer holding the frame's indirect-draw stream.
	Commands metadata.BufferHandle
}

/**
 * @brief A consumer of frame batches. The set of implementations is closed;
 * build one with New.
 */
type RenderPass interface {
	Kind() Kind
	Name() string
	// Capacity is the tightest fixed uniform array the pass program uploads into.
	Capacity() uint32
	// Begin binds destination targets, the program, sampled inputs and geometry.
	Begin(ctx *Context)
	// Consume uploads one batch's arrays and issues one indirect multi-draw.
	// A batch larger than Capacity panics with core.ErrCapacityExceeded.
	Consume(ctx *Context, b batch.Batch)
	sealed()
}

type layout struct {
	uniforms metadata.UniformSet
	outputs  []metadata.GBufferTarget
	inputs   []metadata.GBufferTarget
}

var layouts = [KindCount]layout{
	KindGbuffer: {
		uniforms: metadata.NewUniformSet(metadata.UniformArrayModel, metadata.UniformArraySmoothness, metadata.UniformArrayAlbedo, metadata.UniformArrayNormal),
		outputs:  []metadata.GBufferTarget{metadata.GBufferAlbedo, metadata.GBufferNormal, metadata.GBufferDepth},
	},
	KindLighting: {
		uniforms: metadata.NewUniformSet(metadata.UniformArrayModel, metadata.UniformArraySmoothness),
		outputs:  []metadata.GBufferTarget{metadata.GBufferLight},
		inputs:   []metadata.GBufferTarget{metadata.GBufferNormal, metadata.GBufferDepth},
	},
	KindShadowMap: {
		uniforms: metadata.NewUniformSet(metadata.UniformArrayModel),
		outputs:  []metadata.GBufferTarget{metadata.GBufferShadow},
	},
	KindSsao: {
		uniforms: metadata.NewUniformSet(metadata.UniformArrayModel),
		outputs:  []metadata.GBufferTarget{metadata.GBufferOcclusion},
		inputs:   []metadata.GBufferTarget{metadata.GBufferNormal, metadata.GBufferDepth},
	},
	KindMaterialLighting: {
		uniforms: metadata.NewUniformSet(metadata.UniformArrayModel, metadata.UniformArraySmoothness, metadata.UniformArrayAlbedo, metadata.UniformArrayNormal, metadata.UniformArraySpecular),
		outputs:  []metadata.GBufferTarget{metadata.GBufferColour},
		inputs:   []metadata.GBufferTarget{metadata.GBufferLight, metadata.GBufferShadow, metadata.GBufferOcclusion},
	},
	KindToneMapping: {
		uniforms: metadata.NewUniformSet(metadata.UniformArrayModel),
		outputs:  []metadata.GBufferTarget{metadata.GBufferOutput},
		inputs:   []metadata.GBufferTarget{metadata.GBufferColour},
	},
}

// Uniforms reports which per-object arrays a pass kind uploads.
func Uniforms(kind Kind) metadata.UniformSet {
	return layouts[kind].uniforms
}

type pass struct {
	kind     Kind
	program  metadata.ProgramInfo
	layout   layout
	capacity uint32
	// Texture unit of each sampler array, then of each sampled input.
	textureUnits map[metadata.UniformArray]uint32
	inputUnit    uint32
}

// New builds a pass of the given kind around a compiled program. The program
// must declare every uniform array the pass uploads.
func New(kind Kind, program metadata.ProgramInfo) (RenderPass, error) {
	if kind >= KindCount {
		return nil, fmt.Errorf("render pass: invalid kind %d", kind)
	}
	l := layouts[kind]

	missing := []string{}
	for _, a := range l.uniforms.Arrays() {
		if _, ok := program.Locations[a]; !ok || program.Capacities[a] == 0 {
			missing = append(missing, a.String())
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("render pass %s: program %q does not declare uniform arrays [%s]", kind, program.Name, strings.Join(missing, ", "))
		core.LogError(err.Error())
		return nil, err
	}

	p := &pass{
		kind:         kind,
		program:      program,
		layout:       l,
		capacity:     program.Capacity(l.uniforms),
		textureUnits: make(map[metadata.UniformArray]uint32),
	}
	unit := uint32(0)
	for role := metadata.TextureRole(0); role < metadata.TextureRoleCount; role++ {
		a := metadata.UniformArrayForRole(role)
		if l.uniforms.Has(a) {
			p.textureUnits[a] = unit
			unit += program.Capacities[a]
		}
	}
	p.inputUnit = unit
	return p, nil
}

func (p *pass) sealed() {}

func (p *pass) Kind() Kind       { return p.kind }
func (p *pass) Name() string     { return p.kind.String() }
func (p *pass) Capacity() uint32 { return p.capacity }

func (p *pass) Begin(ctx *Context) {
	outputs := make([]metadata.RenderTargetHandle, 0, len(p.layout.outputs))
	for _, t := range p.layout.outputs {
		outputs = append(outputs, ctx.GBuffer.Target(t))
	}
	ctx.Device.RenderTargetBind(outputs...)
	ctx.Device.ProgramUse(p.program.Handle)
	for i, t := range p.layout.inputs {
		ctx.Device.RenderTargetSample(p.inputUnit+uint32(i), ctx.GBuffer.Target(t))
	}
	ctx.Device.GeometryBind(ctx.Geometry)
}

func (p *pass) Consume(ctx *Context, b batch.Batch) {
	if b.Count == 0 {
		return
	}
	if b.Count > p.capacity {
		// The frame batch was sized for another pipeline.
		err := fmt.Errorf("render pass %s: batch %d holds %d renderables, program %q fits %d: %w", p.kind, b.Index, b.Count, p.program.Name, p.capacity, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		panic(err)
	}
	for _, a := range p.layout.uniforms.Arrays() {
		loc := p.program.Locations[a]
		switch a {
		case metadata.UniformArrayModel:
			ctx.Device.UniformMat4Array(loc, b.Models)
		case metadata.UniformArraySmoothness:
			ctx.Device.UniformFloatArray(loc, b.Smoothness)
		default:
			role := metadata.TextureRole(a - metadata.UniformArrayAlbedo)
			ctx.Device.UniformTextureArray(loc, p.textureUnits[a], b.Textures[role])
		}
	}
	ctx.Device.MultiDrawIndirect(ctx.Commands, b.CommandOffset, b.Count, metadata.IndirectCommandSize)
}

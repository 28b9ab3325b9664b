package metadata

import (
	"encoding/binary"

	"github.com/spaghettifunk/tessera/engine/math"
)

/** @brief Identifies the vertex and index buffers of a piece of geometry. Zero is invalid. */
type GeometryHandle uint32

/** @brief Opaque texture handle. Zero means no texture is bound for a role. */
type TextureHandle uint64

/** @brief Describes the vertex layout of a geometry source. */
type VertexFormat uint8

const (
	VertexFormatUnknown VertexFormat = iota
	/** @brief position, normal, texcoord */
	VertexFormatPNT
	/** @brief position, normal, texcoord, tangent */
	VertexFormatPNTT
)

/**
 * @brief The geometry collaborator's handle plus its format tag.
 * All renderables pushed into one frame batch share the same vertex spec.
 */
type GeometryVertexSpec struct {
	Handle GeometryHandle
	Format VertexFormat
}

/**
 * @brief Immutable description of one drawable mesh region.
 * The caller guarantees that BaseVertex plus the largest index in
 * [IndexOffset, IndexOffset+IndexCount) is a valid vertex of the geometry.
 */
type DrawCommand struct {
	geometry      GeometryHandle
	indexCount    uint32
	indexOffset   uint32
	baseVertex    int32
	instanceCount uint32
	baseInstance  uint32
}

type DrawCommandOption func(*DrawCommand)

// WithInstances overrides the default of a single instance at base 0.
func WithInstances(count, base uint32) DrawCommandOption {
	return func(dc *DrawCommand) {
		dc.instanceCount = count
		dc.baseInstance = base
	}
}

func NewDrawCommand(geometry GeometryHandle, indexCount, indexOffset uint32, baseVertex int32, opts ...DrawCommandOption) DrawCommand {
	dc := DrawCommand{
		geometry:      geometry,
		indexCount:    indexCount,
		indexOffset:   indexOffset,
		baseVertex:    baseVertex,
		instanceCount: 1,
	}
	for _, o := range opts {
		o(&dc)
	}
	return dc
}

func (dc DrawCommand) Geometry() GeometryHandle { return dc.geometry }
func (dc DrawCommand) IndexCount() uint32       { return dc.indexCount }
func (dc DrawCommand) IndexOffset() uint32      { return dc.indexOffset }
func (dc DrawCommand) BaseVertex() int32        { return dc.baseVertex }
func (dc DrawCommand) InstanceCount() uint32    { return dc.instanceCount }
func (dc DrawCommand) BaseInstance() uint32     { return dc.baseInstance }

/** @brief The texture slots a material can fill. */
type TextureRole uint8

const (
	TextureRoleAlbedo TextureRole = iota
	TextureRoleNormal
	TextureRoleSpecular
	// Number of texture roles a material carries.
	TextureRoleCount
)

func (tr TextureRole) String() string {
	switch tr {
	case TextureRoleAlbedo:
		return "albedo"
	case TextureRoleNormal:
		return "normal"
	case TextureRoleSpecular:
		return "specular"
	default:
		return "unknown"
	}
}

type Material struct {
	Smoothness float32
	Textures   [TextureRoleCount]TextureHandle
}

/** @brief One object's worth of per-frame draw input. */
type Renderable struct {
	Command  DrawCommand
	Model    math.Mat4
	Material Material
}

/**
 * @brief One record of the indirect-draw parameter stream, laid out like
 * DrawElementsIndirectCommand.
 */
type IndirectCommand struct {
	Count         uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	BaseInstance  uint32
}

/** @brief Size in bytes of one encoded IndirectCommand. */
const IndirectCommandSize = 20

// AppendBytes encodes the record little endian.
func (ic IndirectCommand) AppendBytes(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, ic.Count)
	b = binary.LittleEndian.AppendUint32(b, ic.InstanceCount)
	b = binary.LittleEndian.AppendUint32(b, ic.FirstIndex)
	b = binary.LittleEndian.AppendUint32(b, uint32(ic.BaseVertex))
	b = binary.LittleEndian.AppendUint32(b, ic.BaseInstance)
	return b
}

// DecodeIndirectCommands reads as many whole records as data holds.
func DecodeIndirectCommands(data []byte) []IndirectCommand {
	out := make([]IndirectCommand, 0, len(data)/IndirectCommandSize)
	for len(data) >= IndirectCommandSize {
		out = append(out, IndirectCommand{
			Count:         binary.LittleEndian.Uint32(data[0:]),
			InstanceCount: binary.LittleEndian.Uint32(data[4:]),
			FirstIndex:    binary.LittleEndian.Uint32(data[8:]),
			BaseVertex:    int32(binary.LittleEndian.Uint32(data[12:])),
			BaseInstance:  binary.LittleEndian.Uint32(data[16:]),
		})
		data = data[IndirectCommandSize:]
	}
	return out
}

package metadata

import (
	"fmt"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/math"
)

/** @brief The per-object uniform arrays a pass program can declare. */
type UniformArray uint8

const (
	UniformArrayModel UniformArray = iota
	UniformArraySmoothness
	UniformArrayAlbedo
	UniformArrayNormal
	UniformArraySpecular
	UniformArrayCount
)

func (ua UniformArray) String() string {
	switch ua {
	case UniformArrayModel:
		return "model"
	case UniformArraySmoothness:
		return "smoothness"
	case UniformArrayAlbedo:
		return "albedo"
	case UniformArrayNormal:
		return "normal"
	case UniformArraySpecular:
		return "specular"
	default:
		return "unknown"
	}
}

// UniformArrayForRole maps a material texture role to its sampler array.
func UniformArrayForRole(role TextureRole) UniformArray {
	return UniformArrayAlbedo + UniformArray(role)
}

/** @brief A set of UniformArray values. */
type UniformSet uint8

func NewUniformSet(arrays ...UniformArray) UniformSet {
	var us UniformSet
	for _, a := range arrays {
		us |= 1 << a
	}
	return us
}

func (us UniformSet) Has(array UniformArray) bool {
	return us&(1<<array) != 0
}

// Arrays lists the members in declaration order.
func (us UniformSet) Arrays() []UniformArray {
	out := []UniformArray{}
	for a := UniformArray(0); a < UniformArrayCount; a++ {
		if us.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

/** @brief One uniform array a program declares: its name in the shader and its fixed length. */
type UniformArrayConfig struct {
	Name     string `toml:"name"`
	Capacity uint32 `toml:"capacity"`
}

/** @brief What the shader manifest advertises about one pass program. */
type ProgramConfig struct {
	/** @brief The pass this program belongs to, e.g. "gbuffer". */
	Pass string `toml:"pass"`
	/** @brief The program name handed to the device. */
	Name string `toml:"name"`
	/** @brief Uniform arrays keyed by UniformArray name (model, smoothness, albedo, ...). */
	Arrays map[string]UniformArrayConfig `toml:"arrays"`
}

/** @brief A compiled program with its resolved uniform-array locations and capacities. */
type ProgramInfo struct {
	Name       string
	Handle     ProgramHandle
	Locations  map[UniformArray]UniformLocation
	Capacities map[UniformArray]uint32
}

// Capacity is the smallest capacity among the given arrays. Arrays the
// program does not declare have capacity zero.
func (pi ProgramInfo) Capacity(set UniformSet) uint32 {
	arrays := set.Arrays()
	if len(arrays) == 0 {
		return 0
	}
	caps := make([]uint32, 0, len(arrays))
	for _, a := range arrays {
		caps = append(caps, pi.Capacities[a])
	}
	return math.MinOf(caps[0], caps[1:]...)
}

/**
 * @brief Limits shared by every pass that consumes one frame batch.
 * MaxBatchSize is the tightest fixed uniform array among those passes.
 */
type PipelineCapability struct {
	MaxBatchSize uint32
}

// CapabilityFromLimits takes the minimum of every pass capacity.
func CapabilityFromLimits(limits ...uint32) (PipelineCapability, error) {
	if len(limits) == 0 {
		return PipelineCapability{}, fmt.Errorf("pipeline capability needs at least one pass limit")
	}
	min := math.MinOf(limits[0], limits[1:]...)
	if min == 0 {
		return PipelineCapability{}, fmt.Errorf("pipeline capability: a pass advertises a zero-length uniform array: %w", core.ErrResourceAllocation)
	}
	return PipelineCapability{MaxBatchSize: min}, nil
}

// ParseUniformArray maps a manifest key to its UniformArray.
func ParseUniformArray(name string) (UniformArray, error) {
	for a := UniformArray(0); a < UniformArrayCount; a++ {
		if a.String() == name {
			return a, nil
		}
	}
	return UniformArrayCount, fmt.Errorf("unknown uniform array %q", name)
}

package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	ResourceTypeNone ResourceType = iota
	/** @brief Shader manifest: pass programs and their uniform arrays. */
	ResourceTypeShaderManifest
)

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}

/** @brief The decoded form of a ResourceTypeShaderManifest resource. */
type ShaderManifest struct {
	Programs []ProgramConfig `toml:"program"`
}

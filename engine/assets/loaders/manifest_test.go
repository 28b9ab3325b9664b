package loaders

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBundledManifest(t *testing.T) {
	ml := &ManifestLoader{}
	res, err := ml.Load(filepath.Join("..", "..", "..", "assets", "shaders", "pipeline.shadercfg"), metadata.ResourceTypeShaderManifest, nil)
	require.NoError(t, err)
	assert.Equal(t, "pipeline.shadercfg", res.Name)
	assert.NotZero(t, res.DataSize)

	manifest, ok := res.Data.(*metadata.ShaderManifest)
	require.True(t, ok)
	require.Len(t, manifest.Programs, 6)
	gbuffer := manifest.Programs[0]
	assert.Equal(t, "gbuffer", gbuffer.Pass)
	assert.Equal(t, metadata.UniformArrayConfig{Name: "u_albedo_maps", Capacity: 16}, gbuffer.Arrays["albedo"])

	require.NoError(t, ml.Unload(res))
	assert.Nil(t, res.Data)
}

var passNames = []string{"gbuffer", "lighting", "shadow_map", "ssao", "material_lighting", "tone_mapping"}

// programs declares a model array for each named pass.
func programs(names ...string) string {
	var b strings.Builder
	for _, pass := range names {
		b.WriteString("[[program]]\npass = \"" + pass + "\"\nname = \"" + pass + "\"\n")
		b.WriteString("[program.arrays.model]\nname = \"u_models\"\ncapacity = 13\n")
	}
	return b.String()
}

func TestDecodeManifest(t *testing.T) {
	manifest, err := DecodeManifest([]byte(programs(passNames...)))
	require.NoError(t, err)
	require.Len(t, manifest.Programs, 6)
	assert.Equal(t, "ssao", manifest.Programs[3].Pass)
	assert.Equal(t, uint32(13), manifest.Programs[3].Arrays["model"].Capacity)
}

func TestDecodeManifestErrors(t *testing.T) {
	complete := programs(passNames...)
	cases := map[string]string{
		"empty":          ``,
		"missing name":   "[[program]]\npass = \"ssao\"\n",
		"unknown key":    "[[program]]\npass = \"ssao\"\nname = \"ssao\"\nstages = 2\n",
		"unnamed array":  strings.Replace(complete, "name = \"u_models\"\n", "", 1),
		"bad toml":       "[[program]\n",
		"missing pass":   programs(passNames[:5]...),
		"unknown pass":   complete + programs("bloom"),
		"duplicate pass": complete + programs("ssao"),
		"unknown array":  strings.Replace(complete, "arrays.model", "arrays.emissive", 1),
		"zero capacity":  strings.Replace(complete, "capacity = 13", "capacity = 0", 1),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeManifest([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsOtherTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.shadercfg")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	_, err := (&ManifestLoader{}).Load(path, metadata.ResourceTypeNone, nil)
	assert.Error(t, err)
	_, err = (&ManifestLoader{}).Load(filepath.Join(t.TempDir(), "missing.shadercfg"), metadata.ResourceTypeShaderManifest, nil)
	assert.Error(t, err)
}

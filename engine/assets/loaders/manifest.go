package loaders

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/spaghettifunk/tessera/engine/renderer/passes"
)

// ManifestLoader decodes .shadercfg files: the programs of each render pass
// and the fixed uniform arrays they declare.
type ManifestLoader struct{}

func (ml *ManifestLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	if assetType != metadata.ResourceTypeShaderManifest {
		return nil, fmt.Errorf("manifest loader cannot load resource type %d", assetType)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	manifest, err := DecodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("shader manifest %s: %w", path, err)
	}
	return &metadata.Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     manifest,
	}, nil
}

func (ml *ManifestLoader) Unload(res *metadata.Resource) error {
	if res == nil {
		return nil
	}
	res.Data = nil
	res.DataSize = 0
	return nil
}

func DecodeManifest(data []byte) (*metadata.ShaderManifest, error) {
	manifest := &metadata.ShaderManifest{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(manifest); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return nil, err
	}

	if len(manifest.Programs) == 0 {
		return nil, errors.New("no programs declared")
	}
	seen := make(map[passes.Kind]bool, passes.KindCount)
	for i, p := range manifest.Programs {
		if p.Pass == "" || p.Name == "" {
			return nil, fmt.Errorf("program %d needs both a pass and a name", i)
		}
		kind, err := passes.ParseKind(p.Pass)
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", p.Name, err)
		}
		if seen[kind] {
			return nil, fmt.Errorf("program %q: pass %s already has a program", p.Name, kind)
		}
		seen[kind] = true
		for key, arr := range p.Arrays {
			if _, err := metadata.ParseUniformArray(key); err != nil {
				return nil, fmt.Errorf("program %q: %w", p.Name, err)
			}
			if arr.Name == "" {
				return nil, fmt.Errorf("program %q: array %s has no uniform name", p.Name, key)
			}
			if arr.Capacity == 0 {
				return nil, fmt.Errorf("program %q: array %s has zero capacity", p.Name, key)
			}
		}
	}
	for kind := passes.Kind(0); kind < passes.KindCount; kind++ {
		if !seen[kind] {
			return nil, fmt.Errorf("no program for pass %s", kind)
		}
	}
	return manifest, nil
}

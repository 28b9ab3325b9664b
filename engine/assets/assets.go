package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/tessera/engine/assets/loaders"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

type AssetInfo struct {
	// Path relative to the asset directory, slash separated.
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the asset directory and, when watching, fires
// core.EVENT_CODE_MANIFEST_CHANGED whenever a shader manifest is written.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.root = root

	// Register loaders
	am.registerLoader(metadata.ResourceTypeShaderManifest, &loaders.ManifestLoader{})

	if err := am.watchRecursive(root, watch); err != nil {
		return fmt.Errorf("failed to index assets in %s: %w", root, err)
	}
	if watch {
		am.wg.Add(1)
		go am.start()
	}
	core.LogDebug("asset manager: %d assets under %s (watch=%t)", len(am.assets), root, watch)
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Load an asset using the appropriate loader. name is relative to the asset directory.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	key := filepath.ToSlash(filepath.Clean(name))

	am.mutex.Lock()
	asset, exists := am.assets[key]
	if exists {
		// Load or reload asset from disk if necessary
		asset.LastLoaded = time.Now()
		am.assets[key] = asset
	}
	loader, loaderExists := am.loaders[resourceType]
	am.mutex.Unlock()

	if !exists {
		return nil, fmt.Errorf("asset not found: %s", key)
	}
	if asset.Type != resourceType {
		return nil, fmt.Errorf("asset %s has type %d, not %d", key, asset.Type, resourceType)
	}
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %d", asset.Type)
	}
	return loader.Load(filepath.Join(am.root, filepath.FromSlash(key)), resourceType, params)
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource, resourceType metadata.ResourceType) error {
	am.mutex.RLock()
	loader, ok := am.loaders[resourceType]
	am.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %d", resourceType)
	}
	return loader.Unload(asset)
}

// Asset returns the index entry for name.
func (am *AssetManager) Asset(name string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.ToSlash(filepath.Clean(name))]
	return info, ok
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s != nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := am.watchRecursive(e.Name, true); err != nil {
				core.LogWarn("asset watcher: failed to watch %s: %s", e.Name, err)
			}
		}
		return
	}
	// Handle create or modify events
	if e.Has(fsnotify.Create) || e.Has(fsnotify.Write) {
		if info, ok := am.indexFile(e.Name); ok && info.Type == metadata.ResourceTypeShaderManifest {
			core.LogInfo("shader manifest %s changed", info.Path)
			core.EventFire(core.EVENT_CODE_MANIFEST_CHANGED, am, core.EventContext{Data: info.Path})
		}
	}
	// Can't stat a deleted path, so drop it from both the index and the watch list.
	if e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename) {
		am.removeAsset(e.Name)
		_ = am.fsnotify.Remove(e.Name)
	}
}

// watchRecursive indexes every file under path and, if watch is set, adds
// each directory to the watch list.
func (am *AssetManager) watchRecursive(path string, watch bool) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if watch {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.indexFile(walkPath)
		return nil
	})
}

// indexFile records a file under its path relative to the asset directory.
func (am *AssetManager) indexFile(path string) (AssetInfo, bool) {
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return AssetInfo{}, false
	}
	key, err := am.relative(path)
	if err != nil {
		return AssetInfo{}, false
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := AssetInfo{
		Path: key,
		Type: assetType,
	}
	am.assets[key] = info
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	key, err := am.relative(path)
	if err != nil {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, key)
}

func (am *AssetManager) relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(am.root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", errors.New("path outside asset directory")
	}
	return filepath.ToSlash(rel), nil
}

func determineAssetType(path string) metadata.ResourceType {
	switch filepath.Ext(path) {
	case ".shadercfg":
		return metadata.ResourceTypeShaderManifest
	default:
		return metadata.ResourceTypeNone
	}
}

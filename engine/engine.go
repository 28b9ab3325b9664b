package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/tessera/engine/assets"
	"github.com/spaghettifunk/tessera/engine/config"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer"
	"github.com/spaghettifunk/tessera/engine/renderer/batch"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const metricsLogInterval = 120

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	device       metadata.Device
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	frameBatch   *batch.FrameBatch
	clock        *core.Clock
	lastTime     float64
	frameNumber  uint64

	isRunning     atomic.Bool
	manifestDirty atomic.Bool
}

func New(g *Game, cfg *config.Config, device metadata.Device) (*Engine, error) {
	if g == nil || g.FnRender == nil || g.FnGeometry == nil {
		err := fmt.Errorf("engine: the game must provide render and geometry callbacks")
		core.LogError(err.Error())
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		device:       device,
		assetManager: am,
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if err := core.SetLogLevel(e.config.Logging.Level); err != nil {
		return err
	}

	// initialize events
	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_MANIFEST_CHANGED, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_DEVICE_LOST, e, e.onEvent)

	if err := e.assetManager.Initialize(e.config.Assets.Dir, e.config.Assets.Watch); err != nil {
		return err
	}

	if err := e.buildPipeline(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) loadManifest() (*metadata.ShaderManifest, error) {
	res, err := e.assetManager.LoadAsset(e.config.Assets.Manifest, metadata.ResourceTypeShaderManifest, nil)
	if err != nil {
		err = fmt.Errorf("failed to load shader manifest: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	manifest, ok := res.Data.(*metadata.ShaderManifest)
	if !ok {
		return nil, fmt.Errorf("resource %s is not a shader manifest", res.FullPath)
	}
	return manifest, nil
}

func (e *Engine) buildPipeline() error {
	manifest, err := e.loadManifest()
	if err != nil {
		return err
	}
	r, fb, err := e.createPipeline(manifest)
	if err != nil {
		return err
	}
	e.renderer = r
	e.frameBatch = fb
	return nil
}

func (e *Engine) createPipeline(manifest *metadata.ShaderManifest) (*renderer.Renderer, *batch.FrameBatch, error) {
	r, err := renderer.New(e.device, renderer.RendererConfig{Programs: manifest.Programs})
	if err != nil {
		return nil, nil, err
	}
	fb, err := r.NewFrameBatch(e.config.Renderer.MaxRenderables, e.config.Renderer.PartitionCount, e.config.FenceTimeout())
	if err != nil {
		_ = r.Shutdown()
		return nil, nil, err
	}
	return r, fb, nil
}

// destroyPipeline waits on every frame still in flight before releasing targets.
func (e *Engine) destroyPipeline() error {
	var errs []error
	if e.frameBatch != nil {
		errs = append(errs, e.frameBatch.Destroy())
		e.frameBatch = nil
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
		e.renderer = nil
	}
	return errors.Join(errs...)
}

// rebuildPipeline swaps in a pipeline built from the manifest on disk. The
// current pipeline is only released once the new one is complete, so a
// manifest that fails to load or build keeps it.
func (e *Engine) rebuildPipeline() error {
	manifest, err := e.loadManifest()
	if err != nil {
		core.LogWarn("keeping the current pipeline: %s", err)
		return nil
	}
	r, fb, err := e.createPipeline(manifest)
	if err != nil {
		if errors.Is(err, core.ErrDeviceLost) {
			return err
		}
		core.LogWarn("keeping the current pipeline: %s", err)
		return nil
	}
	err = e.destroyPipeline()
	e.renderer = r
	e.frameBatch = fb
	if err != nil {
		return err
	}
	core.LogInfo("pipeline rebuilt, max batch size %d", r.Capability().MaxBatchSize)
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	limit := e.config.Application.Frames
	for e.isRunning.Load() {
		if limit > 0 && e.frameNumber >= limit {
			break
		}

		// Pipeline changes only take effect between frames.
		if e.manifestDirty.Swap(false) {
			if err := e.rebuildPipeline(); err != nil {
				return e.fail(err)
			}
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down.")
				return e.fail(err)
			}
		}

		if err := e.drawFrame(delta); err != nil {
			return e.fail(err)
		}

		e.frameNumber++
		if e.frameNumber%metricsLogInterval == 0 {
			m := e.renderer.Metrics()
			fps, frameMS := m.Frame()
			core.LogInfo("frame %d: %.0f fps, render %.3f ms, fence wait %.3f ms", e.frameNumber, fps, frameMS, m.FenceWaitMS)
		}

		// Update last time
		e.lastTime = currentTime
	}
	e.isRunning.Store(false)
	return nil
}

func (e *Engine) drawFrame(delta float64) error {
	fb := e.frameBatch
	if err := fb.Reset(e.gameInstance.FnGeometry()); err != nil {
		return err
	}
	if err := e.gameInstance.FnRender(fb, delta); err != nil {
		core.LogError("Game render failed, shutting down.")
		return err
	}
	if err := fb.BeginRendering(); err != nil {
		return err
	}
	if err := e.renderer.Render(fb); err != nil {
		return err
	}
	return fb.EndRendering()
}

func (e *Engine) fail(err error) error {
	e.isRunning.Store(false)
	if errors.Is(err, core.ErrDeviceLost) {
		core.EventFire(core.EVENT_CODE_DEVICE_LOST, e, core.EventContext{Data: err})
	}
	return err
}

// Stop ends Run after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	errs = append(errs, e.destroyPipeline())
	errs = append(errs, e.assetManager.Shutdown())
	errs = append(errs, core.EventShutdown())
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage                  { return e.currentStage }
func (e *Engine) FrameNumber() uint64           { return e.frameNumber }
func (e *Engine) Renderer() *renderer.Renderer  { return e.renderer }
func (e *Engine) FrameBatch() *batch.FrameBatch { return e.frameBatch }

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT recieved, shutting down.")
		e.Stop()
		return true
	case core.EVENT_CODE_MANIFEST_CHANGED:
		core.LogDebug("EVENT_CODE_MANIFEST_CHANGED recieved for %v", context.Data)
		e.manifestDirty.Store(true)
		return false
	case core.EVENT_CODE_DEVICE_LOST:
		core.LogError("device lost: %v", context.Data)
		e.Stop()
		return false
	}
	return false
}

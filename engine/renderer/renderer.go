package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/batch"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"github.com/spaghettifunk/tessera/engine/renderer/passes"
)

type Stage uint8

const (
	StageIdle Stage = iota
	StageGbuffer
	StageLighting
	StageShadowMap
	StageSsao
	StageMaterialLighting
	StageToneMapping
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageGbuffer:
		return "gbuffer"
	case StageLighting:
		return "lighting"
	case StageShadowMap:
		return "shadow_map"
	case StageSsao:
		return "ssao"
	case StageMaterialLighting:
		return "material_lighting"
	case StageToneMapping:
		return "tone_mapping"
	default:
		return "unknown"
	}
}

// Passes run in this order every frame.
var passOrder = []passes.Kind{
	passes.KindGbuffer,
	passes.KindLighting,
	passes.KindShadowMap,
	passes.KindSsao,
	passes.KindMaterialLighting,
	passes.KindToneMapping,
}

var stageOf = map[passes.Kind]Stage{
	passes.KindGbuffer:          StageGbuffer,
	passes.KindLighting:         StageLighting,
	passes.KindShadowMap:        StageShadowMap,
	passes.KindSsao:             StageSsao,
	passes.KindMaterialLighting: StageMaterialLighting,
	passes.KindToneMapping:      StageToneMapping,
}

// PassOrder returns the kinds in the order Render runs them.
func PassOrder() []passes.Kind {
	out := make([]passes.Kind, len(passOrder))
	copy(out, passOrder)
	return out
}

type RendererConfig struct {
	// One program per pass kind, matched on ProgramConfig.Pass.
	Programs []metadata.ProgramConfig
}

type Renderer struct {
	device     metadata.Device
	gbuffer    *metadata.GBuffer
	passes     []passes.RenderPass
	capability metadata.PipelineCapability
	stage      Stage
	metrics    *core.Metrics
}

func New(device metadata.Device, config RendererConfig) (*Renderer, error) {
	programs := make(map[passes.Kind]metadata.ProgramConfig, len(config.Programs))
	for _, pc := range config.Programs {
		kind, err := passes.ParseKind(pc.Pass)
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		if _, ok := programs[kind]; ok {
			err := fmt.Errorf("renderer: pass %s has more than one program", kind)
			core.LogError(err.Error())
			return nil, err
		}
		programs[kind] = pc
	}

	gbuffer, err := metadata.NewGBuffer(device)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		device:  device,
		gbuffer: gbuffer,
		passes:  make([]passes.RenderPass, 0, len(passOrder)),
		stage:   StageIdle,
		metrics: core.NewMetrics(),
	}

	limits := make([]uint32, 0, len(passOrder))
	for _, kind := range passOrder {
		pc, ok := programs[kind]
		if !ok {
			err := fmt.Errorf("renderer: no program for pass %s", kind)
			core.LogError(err.Error())
			r.gbuffer.Destroy(device)
			return nil, err
		}
		info, err := compileProgram(device, pc)
		if err != nil {
			r.gbuffer.Destroy(device)
			return nil, err
		}
		pass, err := passes.New(kind, info)
		if err != nil {
			r.gbuffer.Destroy(device)
			return nil, err
		}
		r.passes = append(r.passes, pass)
		limits = append(limits, pass.Capacity())
		core.LogDebug("renderer: pass %s uses program %q, capacity %d", kind, info.Name, pass.Capacity())
	}

	r.capability, err = metadata.CapabilityFromLimits(limits...)
	if err != nil {
		core.LogError(err.Error())
		r.gbuffer.Destroy(device)
		return nil, err
	}
	core.LogInfo("renderer: %d passes, max batch size %d", len(r.passes), r.capability.MaxBatchSize)
	return r, nil
}

func compileProgram(device metadata.Device, pc metadata.ProgramConfig) (metadata.ProgramInfo, error) {
	handle, err := device.ProgramCreate(pc.Name)
	if err != nil {
		err = fmt.Errorf("renderer: failed to create program %q for pass %s: %w", pc.Name, pc.Pass, err)
		core.LogError(err.Error())
		return metadata.ProgramInfo{}, err
	}
	info := metadata.ProgramInfo{
		Name:       pc.Name,
		Handle:     handle,
		Locations:  make(map[metadata.UniformArray]metadata.UniformLocation, len(pc.Arrays)),
		Capacities: make(map[metadata.UniformArray]uint32, len(pc.Arrays)),
	}
	for key, arr := range pc.Arrays {
		ua, err := metadata.ParseUniformArray(key)
		if err != nil {
			err = fmt.Errorf("renderer: program %q: %w", pc.Name, err)
			core.LogError(err.Error())
			return metadata.ProgramInfo{}, err
		}
		loc, err := device.UniformLocation(handle, arr.Name)
		if err != nil {
			err = fmt.Errorf("renderer: program %q: %w", pc.Name, err)
			core.LogError(err.Error())
			return metadata.ProgramInfo{}, err
		}
		info.Locations[ua] = loc
		info.Capacities[ua] = arr.Capacity
	}
	return info, nil
}

func (r *Renderer) Capability() metadata.PipelineCapability { return r.capability }
func (r *Renderer) Stage() Stage                            { return r.stage }
func (r *Renderer) Metrics() *core.Metrics                  { return r.metrics }
func (r *Renderer) GBuffer() *metadata.GBuffer              { return r.gbuffer }

// Passes returns the passes in render order.
func (r *Renderer) Passes() []passes.RenderPass {
	out := make([]passes.RenderPass, len(r.passes))
	copy(out, r.passes)
	return out
}

// NewFrameBatch builds a frame batch sized for this pipeline.
func (r *Renderer) NewFrameBatch(maxRenderables uint32, partitionCount uint32, fenceTimeout time.Duration) (*batch.FrameBatch, error) {
	return batch.New(r.device, batch.FrameBatchConfig{
		MaxRenderables: maxRenderables,
		Capability:     r.capability,
		PartitionCount: partitionCount,
		FenceTimeout:   fenceTimeout,
	})
}

/**
 * @brief Runs every pass over every batch of the frame. The frame batch
 * must be between BeginRendering and EndRendering.
 */
func (r *Renderer) Render(fb *batch.FrameBatch) error {
	if r.stage != StageIdle {
		err := fmt.Errorf("renderer: render called during stage %s: %w", r.stage, core.ErrInvalidState)
		core.LogError(err.Error())
		return err
	}
	if fb.State() != batch.StateRendering {
		err := fmt.Errorf("renderer: frame batch %s is %s, not rendering: %w", fb.Label(), fb.State(), core.ErrInvalidState)
		core.LogError(err.Error())
		return err
	}
	if fb.MaxBatchSize() > r.capability.MaxBatchSize {
		err := fmt.Errorf("renderer: frame batch %s uses batches of %d, pipeline fits %d: %w", fb.Label(), fb.MaxBatchSize(), r.capability.MaxBatchSize, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return err
	}

	start := time.Now()
	ctx := &passes.Context{
		Device:   r.device,
		GBuffer:  r.gbuffer,
		Geometry: fb.Geometry(),
		Commands: fb.Buffer(),
	}
	batchCount := fb.BatchCount()
	batches := make([]batch.Batch, 0, batchCount)
	for bi := uint32(0); bi < batchCount; bi++ {
		b, err := fb.Batch(bi)
		if err != nil {
			core.LogError(err.Error())
			return errors.Join(core.ErrInvalidState, err)
		}
		batches = append(batches, b)
	}

	for _, pass := range r.passes {
		r.stage = stageOf[pass.Kind()]
		pass.Begin(ctx)
		for _, b := range batches {
			pass.Consume(ctx, b)
		}
	}
	r.stage = StageIdle

	r.metrics.Update(time.Since(start))
	r.metrics.RecordFenceWait(fb.LastWait())
	return nil
}

func (r *Renderer) Shutdown() error {
	if r.gbuffer != nil {
		r.gbuffer.Destroy(r.device)
		r.gbuffer = nil
	}
	return nil
}

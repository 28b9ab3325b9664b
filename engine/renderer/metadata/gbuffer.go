package metadata

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/tessera/engine/core"
)

/** @brief The intermediate render targets shared by the passes of one pipeline. */
type GBufferTarget uint8

const (
	GBufferAlbedo GBufferTarget = iota
	GBufferNormal
	GBufferDepth
	GBufferLight
	GBufferShadow
	GBufferOcclusion
	GBufferColour
	GBufferOutput
	GBufferTargetCount
)

var gbufferTargetNames = [GBufferTargetCount]string{
	"albedo", "normal", "depth", "light", "shadow", "occlusion", "colour", "output",
}

func (gt GBufferTarget) String() string {
	if gt >= GBufferTargetCount {
		return "unknown"
	}
	return gbufferTargetNames[gt]
}

/**
 * @brief An opaque bag of render targets. Passes receive it as context
 * and never own any of its targets.
 */
type GBuffer struct {
	Targets [GBufferTargetCount]RenderTargetHandle
	Labels  [GBufferTargetCount]string
}

func NewGBuffer(device Device) (*GBuffer, error) {
	gb := &GBuffer{}
	for t := GBufferTarget(0); t < GBufferTargetCount; t++ {
		label := fmt.Sprintf("gbuffer.%s.%s", t, uuid.New().String())
		handle, err := device.RenderTargetCreate(label)
		if err != nil {
			gb.Destroy(device)
			err = fmt.Errorf("failed to create gbuffer target %s: %w", t, err)
			core.LogError(err.Error())
			return nil, err
		}
		gb.Targets[t] = handle
		gb.Labels[t] = label
	}
	return gb, nil
}

func (gb *GBuffer) Target(t GBufferTarget) RenderTargetHandle {
	return gb.Targets[t]
}

func (gb *GBuffer) Destroy(device Device) {
	for t := GBufferTarget(0); t < GBufferTargetCount; t++ {
		if gb.Targets[t] != 0 {
			device.RenderTargetDestroy(gb.Targets[t])
			gb.Targets[t] = 0
		}
	}
}

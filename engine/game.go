package engine

import (
	"github.com/spaghettifunk/tessera/engine/renderer/batch"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
)

type Game struct {
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnGeometry   Geometry
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render pushes this frame's renderables. The batch has already been reset.
type Render func(fb *batch.FrameBatch, deltaTime float64) error

// Geometry reports the vertex/index source every renderable of the next frame uses.
type Geometry func() metadata.GeometryVertexSpec
type Shutdown func() error

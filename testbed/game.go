package testbed

import (
	"github.com/spaghettifunk/tessera/engine"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/math"
	"github.com/spaghettifunk/tessera/engine/renderer/batch"
	"github.com/spaghettifunk/tessera/engine/renderer/metadata"
	"golang.org/x/exp/rand"
)

// Cube geometry shared by every renderable.
var cubeGeometry = metadata.GeometryVertexSpec{Handle: 1, Format: metadata.VertexFormatPNT}

const (
	cubeIndexCount = 36
	gridSpacing    = 2.5
	// Degrees per second.
	spinSpeed = 30
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	columns   uint32
	rows      uint32
	rotation  float32
	materials []metadata.Material
	// Material per grid cell.
	assignments []int
}

// NewTestGame builds a scene of columns x rows spinning cubes.
func NewTestGame(columns, rows uint32, seed uint64) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{
				columns: columns,
				rows:    rows,
			},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnGeometry = tg.Geometry
	tg.FnShutdown = tg.Shutdown
	tg.initialize(seed)
	return tg
}

func (g *TestGame) initialize(seed uint64) {
	state := g.State.(*gameState)
	rnd := rand.New(rand.NewSource(seed))

	// A small palette of materials, each with its own textures.
	state.materials = make([]metadata.Material, 8)
	for i := range state.materials {
		base := metadata.TextureHandle(i*int(metadata.TextureRoleCount) + 1)
		state.materials[i] = metadata.Material{
			Smoothness: math.Clamp(0.2+rnd.Float32()*0.8, 0, 1),
			Textures:   [metadata.TextureRoleCount]metadata.TextureHandle{base, base + 1, base + 2},
		}
	}
	state.assignments = make([]int, state.columns*state.rows)
	for i := range state.assignments {
		state.assignments[i] = rnd.Intn(len(state.materials))
	}
}

func (g *TestGame) Initialize() error {
	state := g.State.(*gameState)
	core.LogDebug("TestGame Initialize fn: %dx%d cubes, %d materials", state.columns, state.rows, len(state.materials))
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.rotation += math.DegToRad(float32(deltaTime) * spinSpeed)
	if state.rotation > 2*math.K_PI {
		state.rotation -= 2 * math.K_PI
	}
	return nil
}

func (g *TestGame) Render(fb *batch.FrameBatch, deltaTime float64) error {
	state := g.State.(*gameState)
	spin := math.NewMat4EulerY(state.rotation)
	offsetX := float32(state.columns-1) * gridSpacing / 2
	offsetZ := float32(state.rows-1) * gridSpacing / 2

	for row := uint32(0); row < state.rows; row++ {
		for col := uint32(0); col < state.columns; col++ {
			position := math.NewVec3(float32(col)*gridSpacing-offsetX, 0, float32(row)*gridSpacing-offsetZ)
			r := metadata.Renderable{
				Command:  metadata.NewDrawCommand(cubeGeometry.Handle, cubeIndexCount, 0, 0),
				Model:    spin.Mul(math.NewMat4Translation(position)),
				Material: state.materials[state.assignments[row*state.columns+col]],
			}
			if err := fb.PushBackRenderable(r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *TestGame) Geometry() metadata.GeometryVertexSpec {
	return cubeGeometry
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn")
	return nil
}

package testbed

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
	"github.com/spaghettifunk/forwardplus/engine/renderer"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
)

const (
	terrainSize  = 64
	terrainCell  = 0.5
	lightSeed    = 0x5eed
	sceneRadius  = 14
	spinPerSec   = 0.05
	minLightSize = 1.5
	maxLightSize = 4
)

type TestGame struct {
	*engine.Game
}

// orbitingLight circles the scene centre at a fixed height.
type orbitingLight struct {
	radius    float32
	height    float32
	speed     float32
	phase     float32
	size      float32
	intensity mgl32.Vec3
}

func (o orbitingLight) at(t float32) vulkan.PointLight {
	a := o.phase + o.speed*t
	return vulkan.PointLight{
		Position:  mgl32.Vec3{o.radius * math32.Cos(a), o.height, o.radius * math32.Sin(a)},
		Radius:    o.size,
		Intensity: o.intensity,
	}
}

// newOrbitingLights scatters n lights over the terrain. The same seed always
// gives the same lights.
func newOrbitingLights(n int, seed uint64) []orbitingLight {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	lights := make([]orbitingLight, n)
	for i := range lights {
		speed := 0.2 + rng.Float32()*0.8
		if rng.IntN(2) == 0 {
			speed = -speed
		}
		lights[i] = orbitingLight{
			radius:    1 + rng.Float32()*(sceneRadius-1),
			height:    0.5 + rng.Float32()*2.5,
			speed:     speed,
			phase:     rng.Float32() * 2 * math32.Pi,
			size:      minLightSize + rng.Float32()*(maxLightSize-minLightSize),
			intensity: mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}.Mul(2),
		}
	}
	return lights
}

type gameState struct {
	time      float32
	transform *fmath.Transform
	orbits    []orbitingLight
	lights    []vulkan.PointLight
	width     uint32
	height    uint32
}

func NewTestGame(configPath string) *TestGame {
	state := &gameState{transform: fmath.NewTransform()}
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				ConfigPath: configPath,
			},
			State: state,
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(r *renderer.Renderer, cfg *core.Config) error {
	core.LogInfo("initializing testbed...")
	s := g.state()

	half := float32(terrainSize-1) * terrainCell / 2
	vertices, indices := fmath.Heightmap(terrainSize, terrainCell, mgl32.Vec2{-half, -half}, fmath.WaveHeight(0.6, 0.35))
	if err := r.LoadModel("terrain", vertices, indices); err != nil {
		return err
	}
	if err := r.LoadMaterial(cfg.Assets.AlbedoMap, cfg.Assets.NormalMap, "terrain"); err != nil {
		return err
	}

	// the heightmap grows along +Z, turn it into a floor
	s.transform.SetRotation(mgl32.QuatRotate(-math32.Pi/2, mgl32.Vec3{1, 0, 0}))
	r.SetTransform(s.transform.World())

	n := min(cfg.Assets.LightCount, vulkan.MaxPointLightCount)
	s.orbits = newOrbitingLights(n, lightSeed)
	s.lights = make([]vulkan.PointLight, n)
	core.LogInfo("testbed scene has %d point lights", n)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.time += float32(deltaTime)
	for i, o := range s.orbits {
		s.lights[i] = o.at(s.time)
	}
	s.transform.Rotate(mgl32.QuatRotate(spinPerSec*float32(deltaTime), mgl32.Vec3{0, 0, 1}))
	return nil
}

func (g *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	s := g.state()
	r.SetTransform(s.transform.World())
	return r.SetLights(s.lights)
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("testbed shut down after %.1fs", g.state().time)
	return nil
}

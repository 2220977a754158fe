package engine

import (
	"github.com/spaghettifunk/forwardplus/engine/core"
	"github.com/spaghettifunk/forwardplus/engine/renderer"
)

// Game is the set of hooks the engine calls around its main loop. Any hook
// may be nil.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(r *renderer.Renderer, cfg *core.Config) error
type Update func(deltaTime float64) error
type Render func(r *renderer.Renderer, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

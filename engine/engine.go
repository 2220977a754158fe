package engine

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/forwardplus/engine/assets"
	"github.com/spaghettifunk/forwardplus/engine/core"
	fmath "github.com/spaghettifunk/forwardplus/engine/math"
	"github.com/spaghettifunk/forwardplus/engine/platform"
	"github.com/spaghettifunk/forwardplus/engine/renderer"
	"github.com/spaghettifunk/forwardplus/engine/renderer/components"
	"github.com/spaghettifunk/forwardplus/engine/renderer/overlay"
	"github.com/spaghettifunk/forwardplus/engine/renderer/vulkan"
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

var cameraStart = mgl32.Vec3{0, 2, 8}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config
	isRunning    atomic.Bool
	isSuspended  bool
	width        uint32
	height       uint32

	events       *core.EventBus
	input        *core.InputState
	platform     *platform.Platform
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	hud          *overlay.HUD
	camera       *components.CameraController
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
	// writes GPU diagnostics, set once the renderer is up
	diag func(w io.Writer, args []string) error

	shutdown sync.Once
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		g.ApplicationConfig = &ApplicationConfig{}
	}
	cfg, err := g.ApplicationConfig.load()
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.LogLevel)

	events := core.NewEventBus()
	input := core.NewInputState(events)
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		events:       events,
		input:        input,
		platform:     platform.New(input, events),
		assetManager: assets.NewAssetManager(cfg.Assets.Root),
		camera:       components.NewCameraController(cameraStart),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

func (e *Engine) Stage() Stage { return e.currentStage }

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if err := e.platform.Startup(e.config.ApplicationName, e.config.Window); err != nil {
		return err
	}

	e.hud = overlay.NewHUD(e.loadFont())

	shaders := e.assetManager.Shaders(e.config.Assets.ShaderDir)
	ctx, err := vulkan.NewContext(e.platform, vulkan.Config{
		ApplicationName: e.config.ApplicationName,
		Validation:      e.config.Renderer.Validation,
		PreferMailbox:   e.config.Renderer.PreferMailbox,
		DebugNames:      e.config.Renderer.DebugNames,
		DebugView:       e.config.Renderer.DebugView,
		Shaders:         shaders,
		Textures:        e.assetManager,
	}, e.hud)
	if err != nil {
		return err
	}
	e.renderer = renderer.New(ctx, e.platform, e.events)
	e.diag = ctx.Vkdiag

	if e.config.Assets.HotReload {
		if err := e.watchShaders(shaders); err != nil {
			core.LogWarn("shader hot reload disabled: %s", err)
		}
	}

	if err := e.applyMaterialFile(); err != nil {
		return err
	}
	if g := e.gameInstance; g.FnInitialize != nil {
		if err := g.FnInitialize(e.renderer, e.config); err != nil {
			return err
		}
	}
	if g := e.gameInstance; g.FnOnResize != nil {
		if err := g.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// loadFont falls back to the built in face when no bitmap font loads.
func (e *Engine) loadFont() (overlay.Font, int) {
	if e.config.Assets.Font != "" {
		f, err := e.assetManager.LoadFont(e.config.Assets.Font)
		if err == nil {
			return overlay.NewBitmapFont(f), 1
		}
		core.LogWarn("using the built in font: %s", err)
	}
	return overlay.NewBasicFont(), 2
}

// applyMaterialFile points the configured texture maps at the ones named by
// the material file, if there is one.
func (e *Engine) applyMaterialFile() error {
	if e.config.Assets.Material == "" {
		return nil
	}
	mc, err := e.assetManager.LoadMaterial(e.config.Assets.Material)
	if err != nil {
		return err
	}
	e.config.Assets.AlbedoMap = mc.AlbedoMap
	e.config.Assets.NormalMap = mc.NormalMap
	core.LogDebug("material '%s' from %s", mc.Name, e.config.Assets.Material)
	return nil
}

func (e *Engine) watchShaders(shaders assets.ShaderSet) error {
	dir, err := shaders.Dir()
	if err != nil {
		return err
	}
	w, err := assets.NewShaderWatcher(dir)
	if err != nil {
		return err
	}
	e.renderer.WatchShaders(w)
	core.LogInfo("Watching %s for shader changes.", dir)
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended {
			e.platform.WaitMessages()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.platform.GetAbsoluteTime()

		e.camera.Update(e.input, float32(delta))

		g := e.gameInstance
		if g.FnUpdate != nil {
			if err := g.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}
		if g.FnRender != nil {
			if err := g.FnRender(e.renderer, delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err)
				return err
			}
		}

		drawn, skipped := e.renderer.Frames()
		e.hud.SetText(hudLines(e.metrics, e.camera.Camera, e.width, e.height, drawn, skipped)...)

		if _, err := e.renderer.DrawFrame(e.camera.Camera); err != nil {
			core.LogError("DrawFrame failed, shutting down: %s", err)
			return err
		}

		frameElapsedTime := e.platform.GetAbsoluteTime() - frameStartTime
		e.metrics.Update(frameElapsedTime)
		e.hud.RecordFrame(frameElapsedTime * 1000)

		// input state is copied last so this frame saw every transition
		e.input.Update()
		e.lastTime = currentTime
	}
	return nil
}

// Stop ends Run after the current frame. It is safe from any goroutine.
func (e *Engine) Stop() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
}

func (e *Engine) Shutdown() error {
	var err error
	e.shutdown.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.events.Unregister(core.EVENT_CODE_APPLICATION_QUIT, e)
		e.events.Unregister(core.EVENT_CODE_KEY_PRESSED, e)
		e.events.Unregister(core.EVENT_CODE_RESIZED, e)

		if g := e.gameInstance; g.FnShutdown != nil {
			if gerr := g.FnShutdown(); gerr != nil {
				core.LogError("game shutdown: %s", gerr)
			}
		}
		if e.renderer != nil {
			err = e.renderer.Shutdown()
		}
		if e.platform.Window != nil {
			if perr := e.platform.Shutdown(); perr != nil && err == nil {
				err = perr
			}
		}
	})
	return err
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func hudLines(m *core.Metrics, cam fmath.CameraState, width, height uint32, drawn, skipped uint64) []string {
	fps, ms := m.Frame()
	p := cam.Position
	return []string{
		fmt.Sprintf("%.0f FPS  %.2f ms", fps, ms),
		fmt.Sprintf("%dx%d  frames %d  skipped %d", width, height, drawn, skipped),
		fmt.Sprintf("camera %.2f %.2f %.2f", p.X(), p.Y(), p.Z()),
	}
}

func (e *Engine) onEvent(code core.SystemEventCode, _ interface{}, _ core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(_ core.SystemEventCode, _ interface{}, data core.EventContext) bool {
	switch data.Key {
	case core.KEY_ESCAPE:
		// Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		return true
	case core.KEY_F1:
		if e.hud != nil {
			e.hud.Toggle()
		}
		return true
	case core.KEY_F2:
		e.camera.Reset(cameraStart)
		return true
	case core.KEY_F3:
		if e.diag != nil {
			if err := e.diag(os.Stdout, []string{"gpu"}); err != nil {
				core.LogError("vkdiag: %s", err)
			}
		}
		return true
	}
	return false
}

func (e *Engine) onResized(_ core.SystemEventCode, _ interface{}, data core.EventContext) bool {
	e.width, e.height = data.Width, data.Height
	e.isSuspended = data.Width == 0 || data.Height == 0
	if e.isSuspended {
		core.LogInfo("Window minimized, suspending application.")
		return false
	}
	if g := e.gameInstance; g.FnOnResize != nil {
		if err := g.FnOnResize(data.Width, data.Height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	return false
}

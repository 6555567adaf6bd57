// Command gekko2d opens a window and draws a few 2D meshes through the
// render graph.
package main

import (
	"flag"
	"log"

	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/image/colornames"

	gekko "github.com/gekko3d/gekko-render"
	"github.com/gekko3d/gekko-render/render/gpu"
)

type windowState struct {
	window  *gpu.Window
	surface *gpu.Surface
}

type windowModule struct {
	state *windowState
}

func (m windowModule) Install(app *gekko.App, cmd *gekko.Commands) {
	cmd.AddResources(m.state)
	app.UseSystem(gekko.System(pollWindowSystem).InStage(gekko.PreUpdate))
	app.UseSystem(gekko.System(acquireFrameSystem).InStage(gekko.Extract).First())
	app.UseSystem(gekko.System(presentFrameSystem).InStage(gekko.Cleanup))
}

func pollWindowSystem(cmd *gekko.Commands, state *windowState) {
	state.window.PollEvents()
	if state.window.ShouldClose() {
		cmd.Exit()
	}
	if state.window.TakeResized() {
		w, h := state.window.Size()
		state.surface.Resize(uint32(w), uint32(h))
	}
}

func acquireFrameSystem(app *gekko.App, state *windowState, targets *gekko.RenderTargets) {
	view, err := state.surface.Acquire()
	if err != nil {
		app.Logger().Warnf("skipping frame: %v", err)
		targets.Remove(gekko.PrimaryWindow)
		return
	}
	w, h := state.surface.Size()
	targets.Set(gekko.PrimaryWindow, gekko.TargetInfo{View: view, Format: state.surface.Format(), Width: w, Height: h})
}

func presentFrameSystem(state *windowState) {
	state.surface.Present()
}

type spinner struct {
	Speed float32
}

func spinSystem(cmd *gekko.Commands, t *gekko.Time) {
	gekko.MakeQuery2[spinner, gekko.Transform2d](cmd).Map(func(_ gekko.EntityId, s *spinner, transform *gekko.Transform2d) bool {
		transform.Rotation += s.Speed * float32(t.Dt.Seconds())
		return true
	})
}

type sceneModule struct{}

func (sceneModule) Install(app *gekko.App, cmd *gekko.Commands) {
	assets := gekko.MustResource[gekko.AssetServer](app)

	cmd.AddEntity(gekko.NewCamera(), gekko.Camera2d{}, gekko.NewTransform2d(0, 0, 0))

	quad := assets.AddMesh(gekko.Quad2d(160, 160, gekko.LinearColor(colornames.Orange)))
	glass := assets.AddMesh(gekko.Quad2d(200, 120, wgpu.Color{R: 0.1, G: 0.4, B: 0.9, A: 0.5}))
	for i := range 3 {
		x := float32(i-1) * 220
		cmd.AddEntity(gekko.NewMesh2d(quad, gekko.AlphaOpaque), gekko.NewTransform2d(x, 0, 0), spinner{Speed: float32(i + 1)})
	}
	cmd.AddEntity(gekko.NewMesh2d(glass, gekko.AlphaBlend), gekko.NewTransform2d(0, 40, 10))

	app.UseSystem(gekko.System(spinSystem).InStage(gekko.Update))
}

func main() {
	settingsPath := flag.String("settings", "", "render settings YAML file")
	width := flag.Int("width", 1280, "window width")
	height := flag.Int("height", 720, "window height")
	flag.Parse()

	settings := gekko.DefaultRenderSettings()
	if *settingsPath != "" {
		var err error
		if settings, err = gekko.LoadRenderSettingsFile(*settingsPath); err != nil {
			log.Fatal(err)
		}
	}

	window, err := gpu.NewWindow(*width, *height, "gekko2d")
	if err != nil {
		log.Fatal(err)
	}
	defer window.Destroy()
	surface, err := gpu.NewSurface(window, gpu.SurfaceOptions{PresentMode: wgpu.PresentModeFifo})
	if err != nil {
		log.Fatal(err)
	}

	app := gekko.NewAppBuilder().
		UseModule(gekko.LoggingModule{}).
		UseModule(gekko.TimeModule{}).
		UseModule(gekko.RenderModule{Settings: settings, Device: surface.Device()}).
		UseModule(gekko.Core2dModule{}).
		UseModule(gekko.Mesh2dModule{}).
		UseModule(windowModule{state: &windowState{window: window, surface: surface}}).
		UseModule(sceneModule{}).
		Build()
	app.Run()
}

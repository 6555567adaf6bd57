package gekko

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

const rendererName = "gekko-render"

// RendererTag marks that a renderer has been installed into the App.
// Only one renderer may be installed at a time.
type RendererTag struct {
	Name string
}

// ensureSingleRenderer panics when a different renderer already owns the app.
func ensureSingleRenderer(app *App, name string) {
	if tag, ok := GetResource[RendererTag](app); ok {
		if tag.Name != name {
			app.Logger().Errorf("Multiple renderers installed: %s and %s", tag.Name, name)
			panic(fmt.Sprintf("Multiple renderers installed: %s and %s", tag.Name, name))
		}
		panic(fmt.Sprintf("Renderer %s installed twice", name))
	}
	app.addResources(&RendererTag{Name: name})
}

// RenderDeviceResource exposes the device to render systems.
type RenderDeviceResource struct {
	Device resource.RenderDevice
}

// pipelineCacheResource holds the shared pipeline cache.
type pipelineCacheResource struct {
	cache *resource.PipelineCache
}

// GetPipelineCache returns the cache installed by RenderModule.
func GetPipelineCache(app *App) (*resource.PipelineCache, bool) {
	res, ok := GetResource[pipelineCacheResource](app)
	if !ok {
		return nil, false
	}
	return res.cache, true
}

// RenderContext records the GPU commands of one frame. It is opened at the
// start of the Render stage and submitted during Cleanup.
type RenderContext struct {
	device  resource.RenderDevice
	encoder resource.CommandEncoder
	passes  int
	err     error
}

// Encoder returns the frame encoder or the error that prevented opening it.
func (rc *RenderContext) Encoder() (resource.CommandEncoder, error) {
	if rc.err != nil {
		return nil, rc.err
	}
	if rc.encoder == nil {
		return nil, errNoFrameEncoder
	}
	return rc.encoder, nil
}

// BeginTrackedRenderPass opens a pass on the frame encoder.
func (rc *RenderContext) BeginTrackedRenderPass(desc *resource.RenderPassDescriptor) (*TrackedRenderPass, error) {
	encoder, err := rc.Encoder()
	if err != nil {
		return nil, err
	}
	rc.passes++
	return NewTrackedRenderPass(encoder.BeginRenderPass(desc)), nil
}

// Passes is the number of passes recorded this frame.
func (rc *RenderContext) Passes() int { return rc.passes }

var errNoFrameEncoder = errors.New("render: no frame encoder is open")

// RenderModule installs the render timeline: extraction of cameras and
// shaders, the pipeline cache, and frame submission.
type RenderModule struct {
	Settings RenderSettings
	Device   resource.RenderDevice
	// Validator overrides the shader validator picked from Settings.
	Validator resource.ShaderValidator
}

func (m RenderModule) Install(app *App, cmd *Commands) {
	ensureSingleRenderer(app, rendererName)

	settings := m.Settings
	settings.fillDefaults()
	settings.applyEnv()
	if settings.DebugLogging {
		app.Logger().SetDebug(true)
	}

	validator := m.Validator
	if validator == nil && settings.ValidateShaders {
		validator = resource.NagaValidator{}
	}
	cache, err := resource.NewPipelineCache(m.Device,
		resource.WithSynchronousCompilation(settings.SynchronousPipelineCompilation),
		resource.WithWorkers(settings.PipelineWorkers, settings.PipelineQueueSize),
		resource.WithLogger(app.Logger()),
		resource.WithShaderValidator(validator),
	)
	if err != nil {
		panic(fmt.Sprintf("RenderModule: %v", err))
	}

	clearColor, err := settings.ClearColorValue()
	if err != nil {
		app.Logger().Warnf("RenderModule: %v, using black", err)
		clearColor = wgpu.Color{A: 1}
	}

	AssetServerModule{}.Install(app, cmd)
	cmd.AddResources(
		&settings,
		&RenderDeviceResource{Device: m.Device},
		&pipelineCacheResource{cache: cache},
		NewExtractedViews(),
		NewRenderTargets(),
		&SortedCameras{},
		&ClearColor{Color: clearColor},
		&ViewUniforms{},
		&RenderContext{device: m.Device},
	)

	app.UseSystem(System(extractShaderAssetsSystem).InStage(Extract).First())
	app.UseSystem(System(extractCamerasSystem).InStage(Extract))
	app.UseSystem(System(sortCamerasSystem).InStage(ManageViews))
	app.UseSystem(System(processPipelineQueueSystem).InStage(Prepare).First())
	app.UseSystem(System(prepareViewUniformsSystem).InStage(Prepare))
	app.UseSystem(System(beginFrameSystem).InStage(Render).First())
	app.UseSystem(System(submitFrameSystem).InStage(Cleanup).First())
	app.UseSystem(System(cleanupExtractedViewsSystem).InStage(Cleanup))

	app.Logger().Infof("RenderModule installed (synchronous pipelines: %v, workers: %d)",
		cache.Synchronous(), settings.PipelineWorkers)
}

func extractShaderAssetsSystem(app *App, assets *AssetServer, pcr *pipelineCacheResource) {
	for _, event := range assets.Shaders.DrainEvents() {
		id := resource.ShaderId(event.Id)
		switch event.Kind {
		case AssetAdded, AssetModified:
			source, ok := assets.Shaders.Get(event.Id)
			if !ok {
				continue
			}
			app.Logger().Debugf("Shader %s %s", source.Path, event.Kind)
			pcr.cache.SetShader(id, resource.NewWGSLShader(source.Path, source.Source))
		case AssetRemoved:
			pcr.cache.RemoveShader(id)
		}
	}
}

// extractCamerasSystem copies every active camera whose target exists into
// ExtractedViews.
func extractCamerasSystem(cmd *Commands, views *ExtractedViews, targets *RenderTargets, clearColor *ClearColor) {
	views.Clear()
	MakeQuery2[Camera, Transform2d](cmd).Map(func(eid EntityId, camera *Camera, transform *Transform2d) bool {
		if !camera.IsActive {
			return true
		}
		info, ok := targets.Get(camera.Target)
		if !ok || info.Width == 0 || info.Height == 0 {
			return true
		}

		viewport := Viewport{PhysicalSize: [2]uint32{info.Width, info.Height}, Depth: [2]float32{0, 1}}
		if camera.Viewport != nil {
			viewport = camera.Viewport.clamped(info.Width, info.Height)
		}
		worldFromView := NewTransform2d(0, 0, 0).Matrix()
		if transform != nil {
			worldFromView = transform.Matrix()
		}
		clearConfig := camera.ClearColor
		if clearConfig.Mode == ClearDefault {
			clearConfig = ClearColorConfig{Mode: ClearCustom, Color: clearColor.Color}
		}

		projection := DefaultOrthographicProjection()
		views.Insert(&ExtractedView{
			Entity:        eid,
			Retained:      MainView(eid),
			Target:        camera.Target,
			Order:         camera.Order,
			Hdr:           camera.Hdr,
			MsaaSamples:   camera.Msaa.Samples(),
			Viewport:      viewport,
			ClearColor:    clearConfig,
			WorldFromView: worldFromView,
			ClipFromView:  projection.ClipFromView(viewport.PhysicalSize[0], viewport.PhysicalSize[1]),
		})
		return true
	}, Transform2d{})
}

func sortCamerasSystem(app *App, views *ExtractedViews, sorted *SortedCameras) {
	sorted.Cameras = sorted.Cameras[:0]
	for _, view := range views.All() {
		sorted.Cameras = append(sorted.Cameras, SortedCamera{Entity: view.Entity, Order: view.Order, Target: view.Target})
	}
	for _, pair := range sortCameras(sorted.Cameras) {
		app.Logger().Warnf("Camera order ambiguity: cameras %d and %d both have order %d on %s",
			pair[0].Entity, pair[1].Entity, pair[0].Order, pair[0].Target)
	}
}

func processPipelineQueueSystem(pcr *pipelineCacheResource) {
	pcr.cache.ProcessQueue()
}

func beginFrameSystem(app *App, rc *RenderContext, views *ExtractedViews) {
	rc.encoder = nil
	rc.passes = 0
	rc.err = nil
	if views.Len() == 0 || rc.device == nil {
		return
	}
	encoder, err := rc.device.CreateCommandEncoder("frame encoder")
	if err != nil {
		rc.err = fmt.Errorf("render: create frame encoder: %w", err)
		app.Logger().Errorf("%v", rc.err)
		return
	}
	rc.encoder = encoder
}

func submitFrameSystem(app *App, rc *RenderContext) {
	if rc.encoder == nil {
		return
	}
	buffer, err := rc.encoder.Finish()
	rc.encoder = nil
	if err != nil {
		app.Logger().Errorf("render: finish frame: %v", err)
		return
	}
	rc.device.Submit(buffer)
}

func cleanupExtractedViewsSystem(views *ExtractedViews) {
	views.Clear()
}

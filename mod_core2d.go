package gekko

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

type Opaque2dPhases = ViewBinnedRenderPhases[BatchSetKey2d, Opaque2dBinKey, *Opaque2d]
type AlphaMask2dPhases = ViewBinnedRenderPhases[BatchSetKey2d, AlphaMask2dBinKey, *AlphaMask2d]
type Transparent2dPhases = ViewSortedRenderPhases[*Transparent2d]

const core2dDepthFormat = wgpu.TextureFormatDepth32Float

// viewTextureKey separates textures of views with different sample counts
// on the same target.
type viewTextureKey struct {
	Target  RenderTarget
	Samples uint32
}

// viewTextures owns per-target attachments. Replaced and unused textures
// are released.
type viewTextures struct {
	textures map[viewTextureKey]*resource.Texture
}

func newViewTextures() viewTextures {
	return viewTextures{textures: make(map[viewTextureKey]*resource.Texture)}
}

func (v *viewTextures) Get(target RenderTarget, samples uint32) (*resource.Texture, bool) {
	texture, ok := v.textures[viewTextureKey{Target: target, Samples: max(1, samples)}]
	return texture, ok
}

func (v *viewTextures) Len() int {
	return len(v.textures)
}

func (v *viewTextures) ensure(device resource.RenderDevice, key viewTextureKey, desc resource.TextureDescriptor) error {
	if texture, ok := v.textures[key]; ok {
		w, h := texture.Size()
		if w == desc.Width && h == desc.Height && texture.Format() == desc.Format {
			return nil
		}
		texture.Release()
		delete(v.textures, key)
	}
	texture, err := device.CreateTexture(desc)
	if err != nil {
		return err
	}
	v.textures[key] = texture
	return nil
}

func (v *viewTextures) retain(used set[viewTextureKey]) {
	for key, texture := range v.textures {
		if _, ok := used[key]; !ok {
			texture.Release()
			delete(v.textures, key)
		}
	}
}

// ViewDepthTextures holds one depth texture per render target and sample
// count, shared by the views drawing there. Every 2D view clears it in its
// opaque pass.
type ViewDepthTextures struct {
	viewTextures
}

func NewViewDepthTextures() *ViewDepthTextures {
	return &ViewDepthTextures{viewTextures: newViewTextures()}
}

// ViewMsaaTextures holds the multisampled color textures of MSAA views.
// Passes draw into them and resolve into the render target.
type ViewMsaaTextures struct {
	viewTextures
}

func NewViewMsaaTextures() *ViewMsaaTextures {
	return &ViewMsaaTextures{viewTextures: newViewTextures()}
}

// Core2dModule adds the 2D phases and the passes that draw them. It needs
// RenderModule.
type Core2dModule struct{}

func (Core2dModule) Install(app *App, cmd *Commands) {
	if _, ok := GetResource[RendererTag](app); !ok {
		panic("Core2dModule requires RenderModule to be installed first")
	}

	cmd.AddResources(
		NewViewBinnedRenderPhases(newOpaque2d),
		NewViewBinnedRenderPhases(newAlphaMask2d),
		NewViewSortedRenderPhases[*Transparent2d](),
		NewDrawFunctions[*Opaque2d](),
		NewDrawFunctions[*AlphaMask2d](),
		NewDrawFunctions[*Transparent2d](),
		NewViewDepthTextures(),
		NewViewMsaaTextures(),
	)

	app.UseSystem(System(extractCore2dCameraPhases).InStage(Extract))
	app.UseSystem(System(sortCore2dPhases).InStage(PhaseSort))
	app.UseSystem(System(batchCore2dPhases).InStage(PhaseSort))
	app.UseSystem(System(prepareCore2dDepthTextures).InStage(Prepare))
	app.UseSystem(System(prepareCore2dMsaaTextures).InStage(Prepare))
	app.UseSystem(System(core2dPassSystem).InStage(Render))
}

// extractCore2dCameraPhases gives every extracted 2D view an empty set of
// phases and drops the phases of views that went away.
func extractCore2dCameraPhases(
	cmd *Commands,
	views *ExtractedViews,
	opaque *Opaque2dPhases,
	alphaMask *AlphaMask2dPhases,
	transparent *Transparent2dPhases,
) {
	live := make(set[RetainedViewEntity])
	for _, view := range views.All() {
		if _, ok := Get1[Camera2d](cmd, view.Entity); !ok {
			continue
		}
		opaque.InsertOrClear(view.Retained)
		alphaMask.InsertOrClear(view.Retained)
		transparent.InsertOrClear(view.Retained)
		live[view.Retained] = struct{}{}
	}
	opaque.Retain(live)
	alphaMask.Retain(live)
	transparent.Retain(live)
}

func sortCore2dPhases(opaque *Opaque2dPhases, alphaMask *AlphaMask2dPhases, transparent *Transparent2dPhases) {
	opaque.Each(func(_ RetainedViewEntity, phase *BinnedRenderPhase[BatchSetKey2d, Opaque2dBinKey, *Opaque2d]) {
		phase.Sort()
	})
	alphaMask.Each(func(_ RetainedViewEntity, phase *BinnedRenderPhase[BatchSetKey2d, AlphaMask2dBinKey, *AlphaMask2d]) {
		phase.Sort()
	})
	transparent.Each(func(_ RetainedViewEntity, phase *SortedRenderPhase[*Transparent2d]) {
		phase.Sort()
	})
}

// batchCore2dPhases assigns instance ranges. Binned phases collapse each bin
// into one item; sorted neighbours merge when they bind the same state.
func batchCore2dPhases(opaque *Opaque2dPhases, alphaMask *AlphaMask2dPhases, transparent *Transparent2dPhases) {
	opaque.Each(func(_ RetainedViewEntity, phase *BinnedRenderPhase[BatchSetKey2d, Opaque2dBinKey, *Opaque2d]) {
		phase.PrepareBatches(nil)
	})
	alphaMask.Each(func(_ RetainedViewEntity, phase *BinnedRenderPhase[BatchSetKey2d, AlphaMask2dBinKey, *AlphaMask2d]) {
		phase.PrepareBatches(nil)
	})
	transparent.Each(func(_ RetainedViewEntity, phase *SortedRenderPhase[*Transparent2d]) {
		phase.AssignInstances()
		phase.Batch(canMergeTransparent2d)
	})
}

// prepareCore2dDepthTextures sizes a depth texture for every target a 2D
// view draws to, at the view's sample count.
func prepareCore2dDepthTextures(app *App, views *ExtractedViews, targets *RenderTargets, opaque *Opaque2dPhases, depth *ViewDepthTextures, device *RenderDeviceResource) {
	if device.Device == nil {
		return
	}
	used := make(set[viewTextureKey])
	for _, view := range views.All() {
		if _, ok := opaque.Get(view.Retained); !ok {
			continue
		}
		info, ok := targets.Get(view.Target)
		if !ok {
			continue
		}
		key := viewTextureKey{Target: view.Target, Samples: max(1, view.MsaaSamples)}
		used[key] = struct{}{}
		err := depth.ensure(device.Device, key, resource.TextureDescriptor{
			Label:       fmt.Sprintf("view depth texture (%s)", view.Target),
			Width:       info.Width,
			Height:      info.Height,
			Format:      core2dDepthFormat,
			Usage:       wgpu.TextureUsageRenderAttachment,
			SampleCount: key.Samples,
		})
		if err != nil {
			app.Logger().Errorf("core2d: create depth texture for %s: %v", view.Target, err)
		}
	}
	depth.retain(used)
}

// prepareCore2dMsaaTextures gives multisampled 2D views a color texture in
// the target's format. Single-sampled views draw into the target directly.
func prepareCore2dMsaaTextures(app *App, views *ExtractedViews, targets *RenderTargets, opaque *Opaque2dPhases, msaa *ViewMsaaTextures, device *RenderDeviceResource) {
	if device.Device == nil {
		return
	}
	used := make(set[viewTextureKey])
	for _, view := range views.All() {
		if view.MsaaSamples <= 1 {
			continue
		}
		if _, ok := opaque.Get(view.Retained); !ok {
			continue
		}
		info, ok := targets.Get(view.Target)
		if !ok {
			continue
		}
		key := viewTextureKey{Target: view.Target, Samples: view.MsaaSamples}
		used[key] = struct{}{}
		err := msaa.ensure(device.Device, key, resource.TextureDescriptor{
			Label:       fmt.Sprintf("view msaa texture (%s, x%d)", view.Target, view.MsaaSamples),
			Width:       info.Width,
			Height:      info.Height,
			Format:      info.Format,
			Usage:       wgpu.TextureUsageRenderAttachment,
			SampleCount: view.MsaaSamples,
		})
		if err != nil {
			app.Logger().Errorf("core2d: create msaa texture for %s: %v", view.Target, err)
		}
	}
	msaa.retain(used)
}

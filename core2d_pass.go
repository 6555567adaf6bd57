package gekko

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

var (
	errNoDepthTexture = errors.New("core2d: no depth texture for target")
	errNoMsaaTexture  = errors.New("core2d: no msaa texture for target")
)

// viewColorTarget is where a view draws. Multisampled views draw into View
// and resolve into the render target.
type viewColorTarget struct {
	View    *resource.TextureView
	Resolve *resource.TextureView
}

// colorAttachment clears on ClearCustom and loads otherwise.
func colorAttachment(target viewColorTarget, clearColor ClearColorConfig) resource.RenderPassColorAttachment {
	attachment := resource.RenderPassColorAttachment{
		View:          target.View,
		ResolveTarget: target.Resolve,
		LoadOp:        wgpu.LoadOpLoad,
		StoreOp:       wgpu.StoreOpStore,
	}
	if clearColor.Mode == ClearCustom {
		attachment.LoadOp = wgpu.LoadOpClear
		attachment.ClearValue = clearColor.Color
	}
	return attachment
}

// mainOpaquePass2dDescriptor clears depth to 0, the far plane under
// reverse-z.
func mainOpaquePass2dDescriptor(view *ExtractedView, color viewColorTarget, depth *resource.TextureView) *resource.RenderPassDescriptor {
	return &resource.RenderPassDescriptor{
		Label:            "main_opaque_pass_2d",
		ColorAttachments: []resource.RenderPassColorAttachment{colorAttachment(color, view.ClearColor)},
		DepthStencilAttachment: &resource.RenderPassDepthStencilAttachment{
			View:            depth,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 0,
		},
	}
}

// mainTransparentPass2dDescriptor loads and stores depth. Transparent items
// only read it, but a discarded depth attachment is cleared by some
// backends before the next pass of the frame can use it.
func mainTransparentPass2dDescriptor(color viewColorTarget, depth *resource.TextureView) *resource.RenderPassDescriptor {
	return &resource.RenderPassDescriptor{
		Label:            "main_transparent_pass_2d",
		ColorAttachments: []resource.RenderPassColorAttachment{colorAttachment(color, ClearColorConfig{Mode: ClearNone})},
		DepthStencilAttachment: &resource.RenderPassDepthStencilAttachment{
			View:         depth,
			DepthLoadOp:  wgpu.LoadOpLoad,
			DepthStoreOp: wgpu.StoreOpStore,
		},
	}
}

// core2dPassSystem records the opaque and alpha-mask pass, then the
// transparent pass, for every 2D view in camera order.
func core2dPassSystem(
	app *App,
	rc *RenderContext,
	views *ExtractedViews,
	targets *RenderTargets,
	depth *ViewDepthTextures,
	msaa *ViewMsaaTextures,
	opaque *Opaque2dPhases,
	alphaMask *AlphaMask2dPhases,
	transparent *Transparent2dPhases,
) {
	if _, err := rc.Encoder(); err != nil {
		return
	}
	for _, view := range views.All() {
		opaquePhase, ok := opaque.Get(view.Retained)
		if !ok {
			continue
		}
		alphaMaskPhase, _ := alphaMask.Get(view.Retained)
		transparentPhase, _ := transparent.Get(view.Retained)

		if err := renderCore2dView(app, rc, view, targets, depth, msaa, opaquePhase, alphaMaskPhase, transparentPhase); err != nil {
			app.Logger().Errorf("core2d: view %d: %v", view.Entity, err)
		}
	}
}

func renderCore2dView(
	app *App,
	rc *RenderContext,
	view *ExtractedView,
	targets *RenderTargets,
	depth *ViewDepthTextures,
	msaa *ViewMsaaTextures,
	opaquePhase *BinnedRenderPhase[BatchSetKey2d, Opaque2dBinKey, *Opaque2d],
	alphaMaskPhase *BinnedRenderPhase[BatchSetKey2d, AlphaMask2dBinKey, *AlphaMask2d],
	transparentPhase *SortedRenderPhase[*Transparent2d],
) error {
	target, ok := targets.Get(view.Target)
	if !ok {
		return fmt.Errorf("render target %s is gone", view.Target)
	}
	depthTexture, ok := depth.Get(view.Target, view.MsaaSamples)
	if !ok {
		return fmt.Errorf("%w %s", errNoDepthTexture, view.Target)
	}
	color := viewColorTarget{View: target.View}
	if view.MsaaSamples > 1 {
		msaaTexture, ok := msaa.Get(view.Target, view.MsaaSamples)
		if !ok {
			return fmt.Errorf("%w %s", errNoMsaaTexture, view.Target)
		}
		color = viewColorTarget{View: msaaTexture.View(), Resolve: target.View}
	}

	var errs []error

	pass, err := rc.BeginTrackedRenderPass(mainOpaquePass2dDescriptor(view, color, depthTexture.View()))
	if err != nil {
		return err
	}
	pass.SetCameraViewport(&view.Viewport)
	if err := opaquePhase.Render(pass, app, view.Entity); err != nil {
		errs = append(errs, fmt.Errorf("opaque: %w", err))
	}
	if alphaMaskPhase != nil {
		if err := alphaMaskPhase.Render(pass, app, view.Entity); err != nil {
			errs = append(errs, fmt.Errorf("alpha mask: %w", err))
		}
	}
	if err := pass.End(); err != nil {
		errs = append(errs, err)
	}

	if transparentPhase != nil && !transparentPhase.IsEmpty() {
		pass, err := rc.BeginTrackedRenderPass(mainTransparentPass2dDescriptor(color, depthTexture.View()))
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		pass.SetCameraViewport(&view.Viewport)
		if err := transparentPhase.Render(pass, app, view.Entity); err != nil {
			errs = append(errs, fmt.Errorf("transparent: %w", err))
		}
		if err := pass.End(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package gekko

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gekko-render/render/resource"
)

// RetainedViewEntity identifies a logical view across frames. MainEntity
// is the camera, Auxiliary an optional second entity (a light, for
// shadow views), and Subview tells apart several views of one pair.
type RetainedViewEntity struct {
	MainEntity EntityId
	Auxiliary  EntityId
	Subview    uint32
}

// MainView is the retained identity of a camera's primary view.
func MainView(camera EntityId) RetainedViewEntity {
	return RetainedViewEntity{MainEntity: camera, Auxiliary: NoEntity, Subview: 0}
}

func (v RetainedViewEntity) Compare(other RetainedViewEntity) int {
	if c := cmp.Compare(v.MainEntity, other.MainEntity); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Auxiliary, other.Auxiliary); c != 0 {
		return c
	}
	return cmp.Compare(v.Subview, other.Subview)
}

func (v RetainedViewEntity) String() string {
	if v.Auxiliary == NoEntity {
		return fmt.Sprintf("view(%d/%d)", v.MainEntity, v.Subview)
	}
	return fmt.Sprintf("view(%d+%d/%d)", v.MainEntity, v.Auxiliary, v.Subview)
}

// ExtractedView is the render-side copy of a camera for this frame.
type ExtractedView struct {
	Entity   EntityId
	Retained RetainedViewEntity
	Target   RenderTarget
	Order    int
	Hdr      bool

	// MsaaSamples is at least 1.
	MsaaSamples uint32

	// Viewport is in physical pixels and already clamped to the target.
	Viewport   Viewport
	ClearColor ClearColorConfig

	WorldFromView mgl32.Mat4
	ClipFromView  mgl32.Mat4

	// BindGroup holds the view uniforms once prepared.
	BindGroup     *resource.BindGroup
	uniformOffset uint32
}

func (v *ExtractedView) ViewFromWorld() mgl32.Mat4 {
	return v.WorldFromView.Inv()
}

func (v *ExtractedView) ClipFromWorld() mgl32.Mat4 {
	return v.ClipFromView.Mul4(v.ViewFromWorld())
}

// UniformOffsets are the dynamic offsets of the view bind group.
func (v *ExtractedView) UniformOffsets() []uint32 {
	return []uint32{v.uniformOffset}
}

// ViewZ is the view-space z of a world position. The camera looks down -z,
// so smaller values are farther away.
func (v *ExtractedView) ViewZ(world mgl32.Vec3) float32 {
	return v.ViewFromWorld().Mul4x1(world.Vec4(1)).Z()
}

// ExtractedViews is rebuilt every frame by the extraction stage.
type ExtractedViews struct {
	views map[EntityId]*ExtractedView
}

func NewExtractedViews() *ExtractedViews {
	return &ExtractedViews{views: make(map[EntityId]*ExtractedView)}
}

func (e *ExtractedViews) Insert(view *ExtractedView) {
	e.views[view.Entity] = view
}

func (e *ExtractedViews) Get(entity EntityId) (*ExtractedView, bool) {
	view, ok := e.views[entity]
	return view, ok
}

func (e *ExtractedViews) Remove(entity EntityId) {
	delete(e.views, entity)
}

func (e *ExtractedViews) Len() int {
	return len(e.views)
}

func (e *ExtractedViews) Clear() {
	clear(e.views)
}

// All returns the views in (order, target, entity) order.
func (e *ExtractedViews) All() []*ExtractedView {
	res := make([]*ExtractedView, 0, len(e.views))
	for _, v := range e.views {
		res = append(res, v)
	}
	slices.SortFunc(res, func(a, b *ExtractedView) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		if c := a.Target.Compare(b.Target); c != 0 {
			return c
		}
		return cmp.Compare(a.Entity, b.Entity)
	})
	return res
}

// Live returns the retained identities of every extracted view.
func (e *ExtractedViews) Live() set[RetainedViewEntity] {
	live := make(set[RetainedViewEntity], len(e.views))
	for _, v := range e.views {
		live[v.Retained] = struct{}{}
	}
	return live
}

// TargetInfo describes a texture views can render into.
type TargetInfo struct {
	View   *resource.TextureView
	Format wgpu.TextureFormat
	Width  uint32
	Height uint32
}

// RenderTargets is filled by the window layer (or tests) before each frame.
type RenderTargets struct {
	targets map[RenderTarget]TargetInfo
}

func NewRenderTargets() *RenderTargets {
	return &RenderTargets{targets: make(map[RenderTarget]TargetInfo)}
}

func (r *RenderTargets) Set(target RenderTarget, info TargetInfo) {
	r.targets[target] = info
}

func (r *RenderTargets) Get(target RenderTarget) (TargetInfo, bool) {
	info, ok := r.targets[target]
	return info, ok
}

func (r *RenderTargets) Remove(target RenderTarget) {
	delete(r.targets, target)
}

package gekko

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gekko-render/render/resource"
)

// viewUniformStride keeps every view at a valid dynamic uniform offset.
const viewUniformStride = 256

// viewUniform mirrors the View struct of the WGSL shaders.
type viewUniform struct {
	ClipFromWorld mgl32.Mat4
	WorldFromView mgl32.Mat4
	Viewport      [4]float32
	_             [viewUniformStride - 144]byte
}

const viewUniformSize = 144

// ViewBindGroupLayout is the layout of bind group 0 in view-dependent
// pipelines.
func ViewBindGroupLayout() resource.BindGroupLayoutDescriptor {
	return resource.BindGroupLayoutDescriptor{
		Label: "view_layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   viewUniformSize,
			},
		}},
	}
}

// ViewUniforms owns the buffer holding all view uniforms of a frame. The
// buffer grows when views are added and is rewritten in place otherwise.
type ViewUniforms struct {
	buffer    *resource.Buffer
	bindGroup *resource.BindGroup
	layout    *resource.BindGroupLayout
	staging   []viewUniform
}

func (u *ViewUniforms) Buffer() *resource.Buffer { return u.buffer }

func prepareViewUniformsSystem(app *App, views *ExtractedViews, uniforms *ViewUniforms, device *RenderDeviceResource, pcr *pipelineCacheResource) {
	if device.Device == nil || views.Len() == 0 {
		return
	}
	all := views.All()
	uniforms.staging = uniforms.staging[:0]
	for i, view := range all {
		uniforms.staging = append(uniforms.staging, viewUniform{
			ClipFromWorld: view.ClipFromWorld(),
			WorldFromView: view.WorldFromView,
			Viewport: [4]float32{
				float32(view.Viewport.PhysicalPosition[0]),
				float32(view.Viewport.PhysicalPosition[1]),
				float32(view.Viewport.PhysicalSize[0]),
				float32(view.Viewport.PhysicalSize[1]),
			},
		})
		view.uniformOffset = uint32(i * viewUniformStride)
	}
	contents := toBufferBytes(uniforms.staging)

	if uniforms.layout == nil {
		layout, err := pcr.cache.GetBindGroupLayout(ViewBindGroupLayout())
		if err != nil {
			app.Logger().Errorf("render: view layout: %v", err)
			return
		}
		uniforms.layout = layout
	}

	if uniforms.buffer == nil || uniforms.buffer.Size() < uint64(len(contents)) {
		buffer, err := device.Device.CreateBufferInit(resource.BufferInitDescriptor{
			Label:    "view_uniforms",
			Contents: contents,
			Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			app.Logger().Errorf("render: view uniforms: %v", err)
			return
		}
		bindGroup, err := device.Device.CreateBindGroup(resource.BindGroupDescriptor{
			Label:   "view_bind_group",
			Layout:  uniforms.layout,
			Entries: []resource.BindGroupEntry{{Binding: 0, Buffer: buffer, Size: viewUniformSize}},
		})
		if err != nil {
			buffer.Release()
			app.Logger().Errorf("render: view bind group: %v", err)
			return
		}
		uniforms.bindGroup.Release()
		uniforms.buffer.Release()
		uniforms.buffer = buffer
		uniforms.bindGroup = bindGroup
	} else if err := device.Device.WriteBuffer(uniforms.buffer, 0, contents); err != nil {
		app.Logger().Errorf("render: write view uniforms: %v", err)
		return
	}

	for _, view := range all {
		view.BindGroup = uniforms.bindGroup
	}
}

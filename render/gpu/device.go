package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

// Device adapts a wgpu device and its queue to resource.RenderDevice.
type Device struct {
	raw    *wgpu.Device
	queue  *wgpu.Queue
	limits wgpu.Limits
}

var _ resource.RenderDevice = (*Device)(nil)

func NewDevice(raw *wgpu.Device, limits wgpu.Limits) *Device {
	return &Device{raw: raw, queue: raw.GetQueue(), limits: limits}
}

func (d *Device) Raw() *wgpu.Device { return d.raw }

func (d *Device) Limits() resource.DeviceLimits {
	return resource.DeviceLimits{
		MaxBindGroups:                   d.limits.MaxBindGroups,
		MaxStorageBuffersPerShaderStage: d.limits.MaxStorageBuffersPerShaderStage,
	}
}

func (d *Device) CreateShaderModule(desc resource.ShaderModuleDescriptor) (*resource.ShaderModule, error) {
	raw, err := d.raw.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.WGSL},
	})
	if err != nil {
		return nil, err
	}
	return resource.NewShaderModule(desc.Label, raw), nil
}

func (d *Device) CreateBindGroupLayout(label string, entries []wgpu.BindGroupLayoutEntry) (*resource.BindGroupLayout, error) {
	raw, err := d.raw.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return resource.NewBindGroupLayout(label, raw), nil
}

func (d *Device) CreatePipelineLayout(desc resource.PipelineLayoutDescriptor) (*resource.PipelineLayout, error) {
	if len(desc.PushConstantRanges) > 0 {
		return nil, resource.ErrPushConstantsUnsupported
	}
	layouts := make([]*wgpu.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, layout := range desc.BindGroupLayouts {
		layouts[i] = layout.Raw()
	}
	raw, err := d.raw.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, err
	}
	return resource.NewPipelineLayout(desc.Label, raw), nil
}

func (d *Device) CreateRenderPipeline(desc *resource.RawRenderPipelineDescriptor) (*resource.RenderPipeline, error) {
	rawDesc := &wgpu.RenderPipelineDescriptor{
		Label: desc.Label,
		Vertex: wgpu.VertexState{
			Module:     desc.Vertex.Module.Raw(),
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    desc.Vertex.Buffers,
		},
		Primitive:    desc.Primitive,
		DepthStencil: desc.DepthStencil,
		Multisample:  desc.Multisample,
	}
	if desc.Layout != nil {
		rawDesc.Layout = desc.Layout.Raw()
	}
	if desc.Fragment != nil {
		rawDesc.Fragment = &wgpu.FragmentState{
			Module:     desc.Fragment.Module.Raw(),
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    desc.Fragment.Targets,
		}
	}
	raw, err := d.raw.CreateRenderPipeline(rawDesc)
	if err != nil {
		return nil, err
	}
	return resource.NewRenderPipeline(desc.Label, raw), nil
}

func (d *Device) CreateComputePipeline(desc *resource.RawComputePipelineDescriptor) (*resource.ComputePipeline, error) {
	rawDesc := &wgpu.ComputePipelineDescriptor{
		Label: desc.Label,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     desc.Module.Raw(),
			EntryPoint: desc.EntryPoint,
		},
	}
	if desc.Layout != nil {
		rawDesc.Layout = desc.Layout.Raw()
	}
	raw, err := d.raw.CreateComputePipeline(rawDesc)
	if err != nil {
		return nil, err
	}
	return resource.NewComputePipeline(desc.Label, raw), nil
}

func (d *Device) CreateBufferInit(desc resource.BufferInitDescriptor) (*resource.Buffer, error) {
	raw, err := d.raw.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    desc.Label,
		Contents: desc.Contents,
		Usage:    desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	return resource.NewBuffer(desc.Label, uint64(len(desc.Contents)), raw), nil
}

func (d *Device) CreateBindGroup(desc resource.BindGroupDescriptor) (*resource.BindGroup, error) {
	entries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		size := e.Size
		if size == 0 {
			size = wgpu.WholeSize
		}
		entries[i] = wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  e.Buffer.Raw(),
			Offset:  e.Offset,
			Size:    size,
		}
	}
	raw, err := d.raw.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  desc.Layout.Raw(),
		Entries: entries,
	})
	if err != nil {
		return nil, err
	}
	return resource.NewBindGroup(raw), nil
}

func (d *Device) WriteBuffer(buffer *resource.Buffer, offset uint64, data []byte) error {
	return d.queue.WriteBuffer(buffer.Raw(), offset, data)
}

func (d *Device) CreateTexture(desc resource.TextureDescriptor) (*resource.Texture, error) {
	raw, err := d.raw.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   desc.Samples(),
		Dimension:     wgpu.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	view, err := raw.CreateView(nil)
	if err != nil {
		raw.Release()
		return nil, err
	}
	return resource.NewTexture(desc, raw, resource.NewTextureView(view)), nil
}

func (d *Device) CreateCommandEncoder(label string) (resource.CommandEncoder, error) {
	raw, err := d.raw.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, err
	}
	return &commandEncoder{raw: raw}, nil
}

func (d *Device) Submit(buffers ...*resource.CommandBuffer) {
	raw := make([]*wgpu.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		raw = append(raw, buffer.Raw())
	}
	d.queue.Submit(raw...)
	for _, buffer := range raw {
		buffer.Release()
	}
}

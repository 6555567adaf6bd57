package resource

import (
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// CachedPipelineId is the dense index of a pipeline record inside a PipelineCache.
type CachedPipelineId uint32

// CachedRenderPipelineId identifies a queued render pipeline.
type CachedRenderPipelineId CachedPipelineId

// CachedComputePipelineId identifies a queued compute pipeline.
type CachedComputePipelineId CachedPipelineId

// InvalidCachedRenderPipelineId is never returned by QueueRenderPipeline.
const InvalidCachedRenderPipelineId = CachedRenderPipelineId(^uint32(0))

// ShaderId names a shader asset.
type ShaderId string

func NewShaderId() ShaderId {
	return ShaderId(uuid.NewString())
}

type ResourceId uint64

type BindGroupLayoutId ResourceId
type BindGroupId ResourceId
type BufferId ResourceId
type TextureViewId ResourceId
type RenderPipelineId ResourceId

var resourceIdCounter atomic.Uint64

func nextResourceId() ResourceId {
	return ResourceId(resourceIdCounter.Add(1))
}

// Pipeline is either a *RenderPipeline or a *ComputePipeline.
type Pipeline interface {
	Label() string
	isPipeline()
}

type RenderPipeline struct {
	id    RenderPipelineId
	label string
	raw   *wgpu.RenderPipeline
}

func NewRenderPipeline(label string, raw *wgpu.RenderPipeline) *RenderPipeline {
	return &RenderPipeline{id: RenderPipelineId(nextResourceId()), label: label, raw: raw}
}

func (p *RenderPipeline) Id() RenderPipelineId      { return p.id }
func (p *RenderPipeline) Label() string             { return p.label }
func (p *RenderPipeline) Raw() *wgpu.RenderPipeline { return p.raw }
func (p *RenderPipeline) isPipeline()               {}

type ComputePipeline struct {
	id    ResourceId
	label string
	raw   *wgpu.ComputePipeline
}

func NewComputePipeline(label string, raw *wgpu.ComputePipeline) *ComputePipeline {
	return &ComputePipeline{id: nextResourceId(), label: label, raw: raw}
}

func (p *ComputePipeline) Id() ResourceId             { return p.id }
func (p *ComputePipeline) Label() string              { return p.label }
func (p *ComputePipeline) Raw() *wgpu.ComputePipeline { return p.raw }
func (p *ComputePipeline) isPipeline()                {}

type ShaderModule struct {
	id    ResourceId
	label string
	raw   *wgpu.ShaderModule
}

func NewShaderModule(label string, raw *wgpu.ShaderModule) *ShaderModule {
	return &ShaderModule{id: nextResourceId(), label: label, raw: raw}
}

func (m *ShaderModule) Id() ResourceId          { return m.id }
func (m *ShaderModule) Label() string           { return m.label }
func (m *ShaderModule) Raw() *wgpu.ShaderModule { return m.raw }

type BindGroupLayout struct {
	id    BindGroupLayoutId
	label string
	raw   *wgpu.BindGroupLayout
}

func NewBindGroupLayout(label string, raw *wgpu.BindGroupLayout) *BindGroupLayout {
	return &BindGroupLayout{id: BindGroupLayoutId(nextResourceId()), label: label, raw: raw}
}

func (l *BindGroupLayout) Id() BindGroupLayoutId      { return l.id }
func (l *BindGroupLayout) Label() string              { return l.label }
func (l *BindGroupLayout) Raw() *wgpu.BindGroupLayout { return l.raw }

type PipelineLayout struct {
	id    ResourceId
	label string
	raw   *wgpu.PipelineLayout
}

func NewPipelineLayout(label string, raw *wgpu.PipelineLayout) *PipelineLayout {
	return &PipelineLayout{id: nextResourceId(), label: label, raw: raw}
}

func (l *PipelineLayout) Id() ResourceId            { return l.id }
func (l *PipelineLayout) Raw() *wgpu.PipelineLayout { return l.raw }

type BindGroup struct {
	id  BindGroupId
	raw *wgpu.BindGroup
}

func NewBindGroup(raw *wgpu.BindGroup) *BindGroup {
	return &BindGroup{id: BindGroupId(nextResourceId()), raw: raw}
}

func (g *BindGroup) Id() BindGroupId      { return g.id }
func (g *BindGroup) Raw() *wgpu.BindGroup { return g.raw }

func (g *BindGroup) Release() {
	if g == nil || g.raw == nil {
		return
	}
	g.raw.Release()
	g.raw = nil
}

type Buffer struct {
	id       BufferId
	label    string
	size     uint64
	raw      *wgpu.Buffer
	released bool
}

func NewBuffer(label string, size uint64, raw *wgpu.Buffer) *Buffer {
	return &Buffer{id: BufferId(nextResourceId()), label: label, size: size, raw: raw}
}

func (b *Buffer) Id() BufferId      { return b.id }
func (b *Buffer) Label() string     { return b.label }
func (b *Buffer) Size() uint64      { return b.size }
func (b *Buffer) Raw() *wgpu.Buffer { return b.raw }

// Release frees the GPU buffer. Releasing twice, or a nil buffer, is a
// no-op.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	if b.raw != nil {
		b.raw.Release()
		b.raw = nil
	}
}

func (b *Buffer) Released() bool { return b.released }

type TextureView struct {
	id       TextureViewId
	raw      *wgpu.TextureView
	released bool
}

func NewTextureView(raw *wgpu.TextureView) *TextureView {
	return &TextureView{id: TextureViewId(nextResourceId()), raw: raw}
}

func (v *TextureView) Id() TextureViewId      { return v.id }
func (v *TextureView) Raw() *wgpu.TextureView { return v.raw }

func (v *TextureView) Release() {
	if v == nil || v.released {
		return
	}
	v.released = true
	if v.raw != nil {
		v.raw.Release()
		v.raw = nil
	}
}

func (v *TextureView) Released() bool { return v.released }

// Texture owns a GPU texture and its default full view.
type Texture struct {
	id     ResourceId
	label  string
	format   wgpu.TextureFormat
	width    uint32
	height   uint32
	samples  uint32
	view     *TextureView
	raw      *wgpu.Texture
	released bool
}

func NewTexture(desc TextureDescriptor, raw *wgpu.Texture, view *TextureView) *Texture {
	return &Texture{
		id:      nextResourceId(),
		label:   desc.Label,
		format:  desc.Format,
		width:   desc.Width,
		height:  desc.Height,
		samples: desc.Samples(),
		view:    view,
		raw:     raw,
	}
}

func (t *Texture) Id() ResourceId             { return t.id }
func (t *Texture) Label() string              { return t.label }
func (t *Texture) Format() wgpu.TextureFormat { return t.format }
func (t *Texture) Size() (uint32, uint32)     { return t.width, t.height }
func (t *Texture) View() *TextureView         { return t.view }
func (t *Texture) SampleCount() uint32        { return t.samples }
func (t *Texture) Raw() *wgpu.Texture         { return t.raw }

// Release frees the default view and then the texture.
func (t *Texture) Release() {
	if t == nil || t.released {
		return
	}
	t.released = true
	t.view.Release()
	if t.raw != nil {
		t.raw.Release()
		t.raw = nil
	}
}

func (t *Texture) Released() bool { return t.released }

type CommandBuffer struct {
	raw *wgpu.CommandBuffer
}

func NewCommandBuffer(raw *wgpu.CommandBuffer) *CommandBuffer {
	return &CommandBuffer{raw: raw}
}

func (c *CommandBuffer) Raw() *wgpu.CommandBuffer { return c.raw }

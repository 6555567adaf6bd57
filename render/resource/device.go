package resource

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// RenderDevice is the GPU collaborator. Creation calls are synchronous; the
// pipeline cache wraps the pipeline calls in background tasks itself.
// Implementations must be safe for concurrent use.
type RenderDevice interface {
	CreateShaderModule(desc ShaderModuleDescriptor) (*ShaderModule, error)
	CreateBindGroupLayout(label string, entries []wgpu.BindGroupLayoutEntry) (*BindGroupLayout, error)
	CreatePipelineLayout(desc PipelineLayoutDescriptor) (*PipelineLayout, error)
	CreateRenderPipeline(desc *RawRenderPipelineDescriptor) (*RenderPipeline, error)
	CreateComputePipeline(desc *RawComputePipelineDescriptor) (*ComputePipeline, error)
	CreateBindGroup(desc BindGroupDescriptor) (*BindGroup, error)
	CreateBufferInit(desc BufferInitDescriptor) (*Buffer, error)
	WriteBuffer(buffer *Buffer, offset uint64, data []byte) error
	CreateTexture(desc TextureDescriptor) (*Texture, error)
	CreateCommandEncoder(label string) (CommandEncoder, error)
	Submit(buffers ...*CommandBuffer)
	Limits() DeviceLimits
}

type DeviceLimits struct {
	MaxBindGroups                   uint32
	MaxStorageBuffersPerShaderStage uint32
}

type ShaderModuleDescriptor struct {
	Label string
	WGSL  string
}

type PipelineLayoutDescriptor struct {
	Label              string
	BindGroupLayouts   []*BindGroupLayout
	PushConstantRanges []PushConstantRange
}

// BindGroupEntry binds a buffer range. A zero Size binds to the end of the buffer.
type BindGroupEntry struct {
	Binding uint32
	Buffer  *Buffer
	Offset  uint64
	Size    uint64
}

type BindGroupDescriptor struct {
	Label   string
	Layout  *BindGroupLayout
	Entries []BindGroupEntry
}

type BufferInitDescriptor struct {
	Label    string
	Contents []byte
	Usage    wgpu.BufferUsage
}

type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format wgpu.TextureFormat
	Usage  wgpu.TextureUsage
	// SampleCount of 0 means 1.
	SampleCount uint32
}

func (d TextureDescriptor) Samples() uint32 {
	return max(1, d.SampleCount)
}

// RawVertexState is a VertexState with its shader resolved to a module.
type RawVertexState struct {
	Module     *ShaderModule
	EntryPoint string
	Buffers    []wgpu.VertexBufferLayout
}

type RawFragmentState struct {
	Module     *ShaderModule
	EntryPoint string
	Targets    []wgpu.ColorTargetState
}

// RawRenderPipelineDescriptor is what the device sees. Layout is nil when the
// pipeline binds nothing.
type RawRenderPipelineDescriptor struct {
	Label                         string
	Layout                        *PipelineLayout
	Vertex                        RawVertexState
	Fragment                      *RawFragmentState
	Primitive                     wgpu.PrimitiveState
	DepthStencil                  *wgpu.DepthStencilState
	Multisample                   wgpu.MultisampleState
	ZeroInitializeWorkgroupMemory bool
}

type RawComputePipelineDescriptor struct {
	Label                         string
	Layout                        *PipelineLayout
	Module                        *ShaderModule
	EntryPoint                    string
	ZeroInitializeWorkgroupMemory bool
}

// CommandEncoder records passes for one submission.
type CommandEncoder interface {
	BeginRenderPass(desc *RenderPassDescriptor) RenderPassEncoder
	Finish() (*CommandBuffer, error)
}

// RenderPassEncoder is the raw pass handle that TrackedRenderPass drives.
type RenderPassEncoder interface {
	SetPipeline(pipeline *RenderPipeline)
	SetBindGroup(index uint32, group *BindGroup, dynamicOffsets []uint32)
	SetVertexBuffer(slot uint32, buffer *Buffer, offset, size uint64)
	SetIndexBuffer(buffer *Buffer, format wgpu.IndexFormat, offset, size uint64)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	DrawIndirect(buffer *Buffer, offset uint64)
	DrawIndexedIndirect(buffer *Buffer, offset uint64)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissorRect(x, y, width, height uint32)
	SetStencilReference(reference uint32)
	SetBlendConstant(color wgpu.Color)
	End() error
}

type RenderPassColorAttachment struct {
	View          *TextureView
	ResolveTarget *TextureView
	LoadOp        wgpu.LoadOp
	StoreOp       wgpu.StoreOp
	ClearValue    wgpu.Color
}

type RenderPassDepthStencilAttachment struct {
	View            *TextureView
	DepthLoadOp     wgpu.LoadOp
	DepthStoreOp    wgpu.StoreOp
	DepthClearValue float32
	DepthReadOnly   bool
}

type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
}

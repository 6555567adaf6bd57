package resource

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// BindGroupLayoutDescriptor is content-addressed by its entries. The label is
// only used when the layout is first created.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []wgpu.BindGroupLayoutEntry
}

type PushConstantRange struct {
	Stages wgpu.ShaderStage
	Start  uint32
	End    uint32
}

type VertexState struct {
	Shader     ShaderId
	ShaderDefs []ShaderDefVal
	EntryPoint string
	Buffers    []wgpu.VertexBufferLayout
}

type FragmentState struct {
	Shader     ShaderId
	ShaderDefs []ShaderDefVal
	EntryPoint string
	Targets    []wgpu.ColorTargetState
}

type RenderPipelineDescriptor struct {
	Label                         string
	Layout                        []BindGroupLayoutDescriptor
	PushConstantRanges            []PushConstantRange
	Vertex                        VertexState
	Primitive                     wgpu.PrimitiveState
	DepthStencil                  *wgpu.DepthStencilState
	Multisample                   wgpu.MultisampleState
	Fragment                      *FragmentState
	ZeroInitializeWorkgroupMemory bool
}

type ComputePipelineDescriptor struct {
	Label                         string
	Layout                        []BindGroupLayoutDescriptor
	PushConstantRanges            []PushConstantRange
	Shader                        ShaderId
	ShaderDefs                    []ShaderDefVal
	EntryPoint                    string
	ZeroInitializeWorkgroupMemory bool
}

// DefaultMultisample is single-sampled with every sample enabled.
func DefaultMultisample() wgpu.MultisampleState {
	return wgpu.MultisampleState{
		Count:                  1,
		Mask:                   0xFFFFFFFF,
		AlphaToCoverageEnabled: false,
	}
}

package gekko

import (
	"slices"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

type boundBindGroup struct {
	id      resource.BindGroupId
	offsets []uint32
}

type boundBuffer struct {
	id     resource.BufferId
	offset uint64
	size   uint64
}

type boundIndexBuffer struct {
	boundBuffer
	format wgpu.IndexFormat
}

// TrackedRenderPass wraps a render pass encoder and drops state changes that
// would rebind what is already bound.
type TrackedRenderPass struct {
	pass resource.RenderPassEncoder

	pipeline      resource.RenderPipelineId
	pipelineSet   bool
	bindGroups    map[uint32]boundBindGroup
	vertexBuffers map[uint32]boundBuffer
	indexBuffer   *boundIndexBuffer

	drawCalls    int
	stateChanges int
}

func NewTrackedRenderPass(pass resource.RenderPassEncoder) *TrackedRenderPass {
	return &TrackedRenderPass{
		pass:          pass,
		bindGroups:    make(map[uint32]boundBindGroup),
		vertexBuffers: make(map[uint32]boundBuffer),
	}
}

func (p *TrackedRenderPass) SetRenderPipeline(pipeline *resource.RenderPipeline) {
	if p.pipelineSet && p.pipeline == pipeline.Id() {
		return
	}
	p.pass.SetPipeline(pipeline)
	p.pipeline = pipeline.Id()
	p.pipelineSet = true
	p.stateChanges++
}

// SetBindGroup is elided when the same group is bound at index with the
// same dynamic offsets.
func (p *TrackedRenderPass) SetBindGroup(index uint32, group *resource.BindGroup, dynamicOffsets []uint32) {
	if bound, ok := p.bindGroups[index]; ok && bound.id == group.Id() && slices.Equal(bound.offsets, dynamicOffsets) {
		return
	}
	p.pass.SetBindGroup(index, group, dynamicOffsets)
	p.bindGroups[index] = boundBindGroup{id: group.Id(), offsets: slices.Clone(dynamicOffsets)}
	p.stateChanges++
}

func (p *TrackedRenderPass) SetVertexBuffer(slot uint32, buffer *resource.Buffer, offset, size uint64) {
	next := boundBuffer{id: buffer.Id(), offset: offset, size: size}
	if bound, ok := p.vertexBuffers[slot]; ok && bound == next {
		return
	}
	p.pass.SetVertexBuffer(slot, buffer, offset, size)
	p.vertexBuffers[slot] = next
	p.stateChanges++
}

func (p *TrackedRenderPass) SetIndexBuffer(buffer *resource.Buffer, format wgpu.IndexFormat, offset, size uint64) {
	next := boundIndexBuffer{boundBuffer: boundBuffer{id: buffer.Id(), offset: offset, size: size}, format: format}
	if p.indexBuffer != nil && *p.indexBuffer == next {
		return
	}
	p.pass.SetIndexBuffer(buffer, format, offset, size)
	p.indexBuffer = &next
	p.stateChanges++
}

func (p *TrackedRenderPass) Draw(vertices, instances InstanceRange) {
	p.pass.Draw(vertices.Len(), instances.Len(), vertices.Start, instances.Start)
	p.drawCalls++
}

func (p *TrackedRenderPass) DrawIndexed(indices InstanceRange, baseVertex int32, instances InstanceRange) {
	p.pass.DrawIndexed(indices.Len(), instances.Len(), indices.Start, baseVertex, instances.Start)
	p.drawCalls++
}

func (p *TrackedRenderPass) DrawIndirect(buffer *resource.Buffer, offset uint64) {
	p.pass.DrawIndirect(buffer, offset)
	p.drawCalls++
}

func (p *TrackedRenderPass) DrawIndexedIndirect(buffer *resource.Buffer, offset uint64) {
	p.pass.DrawIndexedIndirect(buffer, offset)
	p.drawCalls++
}

func (p *TrackedRenderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.pass.SetViewport(x, y, width, height, minDepth, maxDepth)
}

// SetCameraViewport applies a camera viewport. A nil viewport keeps the
// full target.
func (p *TrackedRenderPass) SetCameraViewport(viewport *Viewport) {
	if viewport == nil {
		return
	}
	p.SetViewport(
		float32(viewport.PhysicalPosition[0]),
		float32(viewport.PhysicalPosition[1]),
		float32(viewport.PhysicalSize[0]),
		float32(viewport.PhysicalSize[1]),
		viewport.Depth[0],
		viewport.Depth[1],
	)
}

func (p *TrackedRenderPass) SetScissorRect(x, y, width, height uint32) {
	p.pass.SetScissorRect(x, y, width, height)
}

func (p *TrackedRenderPass) SetStencilReference(reference uint32) {
	p.pass.SetStencilReference(reference)
}

func (p *TrackedRenderPass) SetBlendConstant(color wgpu.Color) {
	p.pass.SetBlendConstant(color)
}

// DrawCalls counts every draw forwarded to the encoder.
func (p *TrackedRenderPass) DrawCalls() int { return p.drawCalls }

// StateChanges counts pipeline, bind group and buffer bindings that reached
// the encoder.
func (p *TrackedRenderPass) StateChanges() int { return p.stateChanges }

func (p *TrackedRenderPass) End() error {
	return p.pass.End()
}

package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

type commandEncoder struct {
	raw *wgpu.CommandEncoder
}

func (e *commandEncoder) BeginRenderPass(desc *resource.RenderPassDescriptor) resource.RenderPassEncoder {
	colors := make([]wgpu.RenderPassColorAttachment, len(desc.ColorAttachments))
	for i, attachment := range desc.ColorAttachments {
		colors[i] = wgpu.RenderPassColorAttachment{
			View:       attachment.View.Raw(),
			LoadOp:     attachment.LoadOp,
			StoreOp:    attachment.StoreOp,
			ClearValue: attachment.ClearValue,
		}
		if attachment.ResolveTarget != nil {
			colors[i].ResolveTarget = attachment.ResolveTarget.Raw()
		}
	}

	rawDesc := &wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: colors,
	}
	if depth := desc.DepthStencilAttachment; depth != nil {
		rawDesc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            depth.View.Raw(),
			DepthLoadOp:     depth.DepthLoadOp,
			DepthStoreOp:    depth.DepthStoreOp,
			DepthClearValue: depth.DepthClearValue,
			DepthReadOnly:   depth.DepthReadOnly,
		}
	}
	return &renderPassEncoder{raw: e.raw.BeginRenderPass(rawDesc)}
}

func (e *commandEncoder) Finish() (*resource.CommandBuffer, error) {
	defer e.raw.Release()
	raw, err := e.raw.Finish(nil)
	if err != nil {
		return nil, err
	}
	return resource.NewCommandBuffer(raw), nil
}

type renderPassEncoder struct {
	raw *wgpu.RenderPassEncoder
}

func (p *renderPassEncoder) SetPipeline(pipeline *resource.RenderPipeline) {
	p.raw.SetPipeline(pipeline.Raw())
}

func (p *renderPassEncoder) SetBindGroup(index uint32, group *resource.BindGroup, dynamicOffsets []uint32) {
	p.raw.SetBindGroup(index, group.Raw(), dynamicOffsets)
}

func (p *renderPassEncoder) SetVertexBuffer(slot uint32, buffer *resource.Buffer, offset, size uint64) {
	p.raw.SetVertexBuffer(slot, buffer.Raw(), offset, size)
}

func (p *renderPassEncoder) SetIndexBuffer(buffer *resource.Buffer, format wgpu.IndexFormat, offset, size uint64) {
	p.raw.SetIndexBuffer(buffer.Raw(), format, offset, size)
}

func (p *renderPassEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *renderPassEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.raw.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *renderPassEncoder) DrawIndirect(buffer *resource.Buffer, offset uint64) {
	p.raw.DrawIndirect(buffer.Raw(), offset)
}

func (p *renderPassEncoder) DrawIndexedIndirect(buffer *resource.Buffer, offset uint64) {
	p.raw.DrawIndexedIndirect(buffer.Raw(), offset)
}

func (p *renderPassEncoder) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.raw.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *renderPassEncoder) SetScissorRect(x, y, width, height uint32) {
	p.raw.SetScissorRect(x, y, width, height)
}

func (p *renderPassEncoder) SetStencilReference(reference uint32) {
	p.raw.SetStencilReference(reference)
}

func (p *renderPassEncoder) SetBlendConstant(color wgpu.Color) {
	p.raw.SetBlendConstant(&color)
}

func (p *renderPassEncoder) End() error {
	defer p.raw.Release()
	return p.raw.End()
}

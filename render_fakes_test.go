package gekko

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/gekko-render/render/resource"
)

// fakeRenderDevice hands out resource handles without a GPU and records
// every pass it is asked to encode.
type fakeRenderDevice struct {
	mu sync.Mutex

	renderPipelines []*resource.RawRenderPipelineDescriptor
	buffers         []resource.BufferInitDescriptor
	bufferHandles   []*resource.Buffer
	writes          int
	textures        []resource.TextureDescriptor
	textureHandles  []*resource.Texture
	bindGroups      int
	encoders        []*fakeCommandEncoder
	submitted       int
}

func newFakeRenderDevice() *fakeRenderDevice {
	return &fakeRenderDevice{}
}

func (d *fakeRenderDevice) CreateShaderModule(desc resource.ShaderModuleDescriptor) (*resource.ShaderModule, error) {
	return resource.NewShaderModule(desc.Label, nil), nil
}

func (d *fakeRenderDevice) CreateBindGroupLayout(label string, entries []wgpu.BindGroupLayoutEntry) (*resource.BindGroupLayout, error) {
	return resource.NewBindGroupLayout(label, nil), nil
}

func (d *fakeRenderDevice) CreatePipelineLayout(desc resource.PipelineLayoutDescriptor) (*resource.PipelineLayout, error) {
	return resource.NewPipelineLayout(desc.Label, nil), nil
}

func (d *fakeRenderDevice) CreateRenderPipeline(desc *resource.RawRenderPipelineDescriptor) (*resource.RenderPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderPipelines = append(d.renderPipelines, desc)
	return resource.NewRenderPipeline(desc.Label, nil), nil
}

func (d *fakeRenderDevice) CreateComputePipeline(desc *resource.RawComputePipelineDescriptor) (*resource.ComputePipeline, error) {
	return resource.NewComputePipeline(desc.Label, nil), nil
}

func (d *fakeRenderDevice) CreateBindGroup(desc resource.BindGroupDescriptor) (*resource.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindGroups++
	return resource.NewBindGroup(nil), nil
}

func (d *fakeRenderDevice) CreateBufferInit(desc resource.BufferInitDescriptor) (*resource.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = append(d.buffers, desc)
	buffer := resource.NewBuffer(desc.Label, uint64(len(desc.Contents)), nil)
	d.bufferHandles = append(d.bufferHandles, buffer)
	return buffer, nil
}

func (d *fakeRenderDevice) WriteBuffer(buffer *resource.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset+uint64(len(data)) > buffer.Size() {
		return fmt.Errorf("write of %d bytes at %d overflows %s", len(data), offset, buffer.Label())
	}
	d.writes++
	return nil
}

func (d *fakeRenderDevice) CreateTexture(desc resource.TextureDescriptor) (*resource.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.textures = append(d.textures, desc)
	texture := resource.NewTexture(desc, nil, resource.NewTextureView(nil))
	d.textureHandles = append(d.textureHandles, texture)
	return texture, nil
}

func (d *fakeRenderDevice) CreateCommandEncoder(label string) (resource.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	encoder := &fakeCommandEncoder{}
	d.encoders = append(d.encoders, encoder)
	return encoder, nil
}

func (d *fakeRenderDevice) Submit(buffers ...*resource.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted += len(buffers)
}

func (d *fakeRenderDevice) Limits() resource.DeviceLimits {
	return resource.DeviceLimits{MaxBindGroups: 4, MaxStorageBuffersPerShaderStage: 8}
}

// releasedBuffers returns the labels of released buffers in creation order.
func (d *fakeRenderDevice) releasedBuffers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var labels []string
	for _, b := range d.bufferHandles {
		if b.Released() {
			labels = append(labels, b.Label())
		}
	}
	return labels
}

// liveTextures counts textures that were created and not released.
func (d *fakeRenderDevice) liveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.textureHandles {
		if !t.Released() {
			n++
		}
	}
	return n
}

// lastFramePasses returns the passes of the most recent frame encoder.
func (d *fakeRenderDevice) lastFramePasses() []*fakeRenderPass {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.encoders) == 0 {
		return nil
	}
	return d.encoders[len(d.encoders)-1].passes
}

type fakeCommandEncoder struct {
	passes   []*fakeRenderPass
	finished bool
}

func (e *fakeCommandEncoder) BeginRenderPass(desc *resource.RenderPassDescriptor) resource.RenderPassEncoder {
	pass := &fakeRenderPass{desc: desc}
	e.passes = append(e.passes, pass)
	return pass
}

func (e *fakeCommandEncoder) Finish() (*resource.CommandBuffer, error) {
	e.finished = true
	return resource.NewCommandBuffer(nil), nil
}

// fakeRenderPass records calls as short strings.
type fakeRenderPass struct {
	desc  *resource.RenderPassDescriptor
	calls []string
	draws []fakeDraw
	ended bool
}

type fakeDraw struct {
	indexed       bool
	count         uint32
	instanceCount uint32
	firstInstance uint32
}

func (p *fakeRenderPass) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakeRenderPass) SetPipeline(pipeline *resource.RenderPipeline) {
	p.record("SetPipeline %s", pipeline.Label())
}

func (p *fakeRenderPass) SetBindGroup(index uint32, group *resource.BindGroup, dynamicOffsets []uint32) {
	p.record("SetBindGroup %d %v", index, dynamicOffsets)
}

func (p *fakeRenderPass) SetVertexBuffer(slot uint32, buffer *resource.Buffer, offset, size uint64) {
	p.record("SetVertexBuffer %d %d+%d", slot, offset, size)
}

func (p *fakeRenderPass) SetIndexBuffer(buffer *resource.Buffer, format wgpu.IndexFormat, offset, size uint64) {
	p.record("SetIndexBuffer")
}

func (p *fakeRenderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.record("Draw %d %d", vertexCount, instanceCount)
	p.draws = append(p.draws, fakeDraw{count: vertexCount, instanceCount: instanceCount, firstInstance: firstInstance})
}

func (p *fakeRenderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.record("DrawIndexed %d %d", indexCount, instanceCount)
	p.draws = append(p.draws, fakeDraw{indexed: true, count: indexCount, instanceCount: instanceCount, firstInstance: firstInstance})
}

func (p *fakeRenderPass) DrawIndirect(buffer *resource.Buffer, offset uint64) {
	p.record("DrawIndirect %d", offset)
}

func (p *fakeRenderPass) DrawIndexedIndirect(buffer *resource.Buffer, offset uint64) {
	p.record("DrawIndexedIndirect %d", offset)
}

func (p *fakeRenderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.record("SetViewport %g %g %g %g", x, y, width, height)
}

func (p *fakeRenderPass) SetScissorRect(x, y, width, height uint32) {
	p.record("SetScissorRect %d %d %d %d", x, y, width, height)
}

func (p *fakeRenderPass) SetStencilReference(reference uint32) {
	p.record("SetStencilReference %d", reference)
}

func (p *fakeRenderPass) SetBlendConstant(color wgpu.Color) {
	p.record("SetBlendConstant")
}

func (p *fakeRenderPass) End() error {
	p.ended = true
	return nil
}

// recordingLogger keeps warnings and errors for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *recordingLogger) DebugEnabled() bool    { return false }
func (l *recordingLogger) SetDebug(bool)         {}
func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Infof(string, ...any)  {}

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

const testTargetWidth, testTargetHeight = 800, 600

// newTestRenderApp builds an app with the 2D render stack on a fake device
// and a primary window render target.
func newTestRenderApp(extra ...Module) (*App, *fakeRenderDevice, *recordingLogger) {
	device := newFakeRenderDevice()
	logger := &recordingLogger{}
	settings := DefaultRenderSettings()
	settings.SynchronousPipelineCompilation = true

	builder := NewAppBuilder().
		UseModule(testLoggerModule{logger: logger}).
		UseModule(RenderModule{Settings: settings, Device: device}).
		UseModule(Core2dModule{})
	for _, m := range extra {
		builder.UseModule(m)
	}
	app := builder.Build()

	MustResource[RenderTargets](app).Set(PrimaryWindow, TargetInfo{
		View:   resource.NewTextureView(nil),
		Format: wgpu.TextureFormatBGRA8Unorm,
		Width:  testTargetWidth,
		Height: testTargetHeight,
	})
	return app, device, logger
}

type testLoggerModule struct {
	logger Logger
}

func (m testLoggerModule) Install(app *App, cmd *Commands) {
	app.SetLogger(m.logger)
}

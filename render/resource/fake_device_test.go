package resource

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// fakeDevice records every creation call and never touches a GPU.
type fakeDevice struct {
	mu sync.Mutex

	shaderSources    []string
	bindGroupLayouts int
	pipelineLayouts  int
	renderPipelines  []*RawRenderPipelineDescriptor
	computePipelines int

	failRender  error
	panicRender bool
	renderGate  chan struct{}
	maxStorages uint32
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{maxStorages: 8}
}

func (d *fakeDevice) CreateShaderModule(desc ShaderModuleDescriptor) (*ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shaderSources = append(d.shaderSources, desc.WGSL)
	return NewShaderModule(desc.Label, nil), nil
}

func (d *fakeDevice) CreateBindGroupLayout(label string, entries []wgpu.BindGroupLayoutEntry) (*BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindGroupLayouts++
	return NewBindGroupLayout(label, nil), nil
}

func (d *fakeDevice) CreatePipelineLayout(desc PipelineLayoutDescriptor) (*PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelineLayouts++
	return NewPipelineLayout(desc.Label, nil), nil
}

func (d *fakeDevice) CreateRenderPipeline(desc *RawRenderPipelineDescriptor) (*RenderPipeline, error) {
	if d.renderGate != nil {
		<-d.renderGate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderPipelines = append(d.renderPipelines, desc)
	if d.panicRender {
		panic("driver lost")
	}
	if d.failRender != nil {
		return nil, d.failRender
	}
	return NewRenderPipeline(desc.Label, nil), nil
}

func (d *fakeDevice) CreateComputePipeline(desc *RawComputePipelineDescriptor) (*ComputePipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.computePipelines++
	return NewComputePipeline(desc.Label, nil), nil
}

func (d *fakeDevice) CreateBindGroup(desc BindGroupDescriptor) (*BindGroup, error) {
	return NewBindGroup(nil), nil
}

func (d *fakeDevice) WriteBuffer(*Buffer, uint64, []byte) error {
	return nil
}

func (d *fakeDevice) CreateBufferInit(desc BufferInitDescriptor) (*Buffer, error) {
	return NewBuffer(desc.Label, uint64(len(desc.Contents)), nil), nil
}

func (d *fakeDevice) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	return NewTexture(desc, nil, NewTextureView(nil)), nil
}

func (d *fakeDevice) CreateCommandEncoder(label string) (CommandEncoder, error) {
	return nil, errors.New("fake device does not record commands")
}

func (d *fakeDevice) Submit(buffers ...*CommandBuffer) {}

func (d *fakeDevice) Limits() DeviceLimits {
	return DeviceLimits{MaxBindGroups: 4, MaxStorageBuffersPerShaderStage: d.maxStorages}
}

func (d *fakeDevice) renderPipelineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.renderPipelines)
}

func (d *fakeDevice) lastRenderPipeline() *RawRenderPipelineDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.renderPipelines) == 0 {
		return nil
	}
	return d.renderPipelines[len(d.renderPipelines)-1]
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Warnf(string, ...any)  {}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

package resource

import (
	"errors"
	"sync"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spriteShaderSource = `
@vertex
fn vertex() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}

@fragment
fn fragment() -> @location(0) vec4<f32> {
#ifdef TINT
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
#else
    return vec4<f32>(1.0);
#endif
}
`

func newSyncCache(t *testing.T, device *fakeDevice, options ...PipelineCacheOption) *PipelineCache {
	t.Helper()
	options = append([]PipelineCacheOption{WithSynchronousCompilation(true)}, options...)
	cache, err := NewPipelineCache(device, options...)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	return cache
}

func spriteDescriptor(shader ShaderId, label string) RenderPipelineDescriptor {
	return RenderPipelineDescriptor{
		Label: label,
		Vertex: VertexState{
			Shader:     shader,
			EntryPoint: "vertex",
		},
		Fragment: &FragmentState{
			Shader:     shader,
			EntryPoint: "fragment",
			Targets:    []wgpu.ColorTargetState{{Format: wgpu.TextureFormatBGRA8Unorm, WriteMask: wgpu.ColorWriteMaskAll}},
		},
		Primitive:   wgpu.PrimitiveState{Topology: wgpu.PrimitiveTopologyTriangleList},
		Multisample: DefaultMultisample(),
	}
}

func uniformLayout(label string) BindGroupLayoutDescriptor {
	return BindGroupLayoutDescriptor{
		Label: label,
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
		}},
	}
}

func TestNewPipelineCache_RequiresDevice(t *testing.T) {
	_, err := NewPipelineCache(nil)
	assert.ErrorIs(t, err, errPipelineCacheDeviceRequired)
}

func TestNewPipelineCache_StorageBufferDef(t *testing.T) {
	device := newFakeDevice()
	device.maxStorages = 12
	cache := newSyncCache(t, device, WithGlobalShaderDefs(Def("EXTRA")))

	defs := cache.GlobalShaderDefs()
	require.Len(t, defs, 2)
	assert.Equal(t, "AVAILABLE_STORAGE_BUFFER_BINDINGS = 12", defs[0].String())
	assert.Equal(t, "EXTRA", defs[1].String())
}

func TestPipelineCache_QueueIdsAreDenseAndQueued(t *testing.T) {
	cache := newSyncCache(t, newFakeDevice())
	shader := NewShaderId()

	a := cache.QueueRenderPipeline(spriteDescriptor(shader, "a"))
	b := cache.QueueRenderPipeline(spriteDescriptor(shader, "b"))
	c := cache.QueueComputePipeline(ComputePipelineDescriptor{Label: "c", Shader: shader, EntryPoint: "main"})

	assert.Equal(t, CachedRenderPipelineId(0), a)
	assert.Equal(t, CachedRenderPipelineId(1), b)
	assert.Equal(t, CachedComputePipelineId(2), c)

	assert.Equal(t, PipelineQueued, cache.GetRenderPipelineState(a).Status)
	assert.Equal(t, PipelineQueued, cache.GetComputePipelineState(c).Status)
	assert.Nil(t, cache.GetRenderPipeline(a))
	assert.Empty(t, cache.Pipelines(), "nothing is merged before ProcessQueue")

	desc, err := cache.GetRenderPipelineDescriptor(b)
	require.NoError(t, err)
	assert.Equal(t, "b", desc.Label)

	_, err = cache.GetComputePipelineDescriptor(CachedComputePipelineId(a))
	assert.ErrorIs(t, err, errUnexpectedPipelineKind)
	_, err = cache.GetRenderPipelineDescriptor(CachedRenderPipelineId(99))
	assert.Error(t, err)
}

func TestPipelineCache_ProcessQueueCreatesPipeline(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.ProcessQueue()

	state := cache.GetRenderPipelineState(id)
	require.Equal(t, PipelineOk, state.Status)
	first := cache.GetRenderPipeline(id)
	require.NotNil(t, first)
	assert.Equal(t, "sprite", first.Label())

	cache.ProcessQueue()
	assert.Same(t, first, cache.GetRenderPipeline(id))
	assert.Equal(t, 1, device.renderPipelineCount())
	assert.Empty(t, cache.WaitingPipelines())
}

func TestPipelineCache_IdenticalDescriptorsAreNotShared(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	a := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	b := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.ProcessQueue()

	assert.NotEqual(t, a, b)
	assert.NotSame(t, cache.GetRenderPipeline(a), cache.GetRenderPipeline(b))
	assert.Equal(t, 2, device.renderPipelineCount())
	assert.Len(t, device.shaderSources, 1, "one shader variant serves both pipelines")
}

func TestPipelineCache_LayoutSkippedWithoutBindings(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	cache.QueueRenderPipeline(spriteDescriptor(shader, "bare"))
	cache.ProcessQueue()

	require.NotNil(t, device.lastRenderPipeline())
	assert.Nil(t, device.lastRenderPipeline().Layout)
	assert.Equal(t, 0, device.pipelineLayouts)
	assert.Equal(t, 0, device.bindGroupLayouts)
}

func TestPipelineCache_LayoutsAreShared(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	a := spriteDescriptor(shader, "a")
	a.Layout = []BindGroupLayoutDescriptor{uniformLayout("view layout")}
	b := spriteDescriptor(shader, "b")
	b.Layout = []BindGroupLayoutDescriptor{uniformLayout("another label")}

	cache.QueueRenderPipeline(a)
	cache.QueueRenderPipeline(b)
	cache.ProcessQueue()

	require.Equal(t, 2, device.renderPipelineCount())
	assert.Equal(t, 1, device.bindGroupLayouts)
	assert.Equal(t, 1, device.pipelineLayouts)
	assert.Same(t, device.renderPipelines[0].Layout, device.renderPipelines[1].Layout)
}

func TestPipelineCache_ShaderNotLoadedRecovers(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "late"))
	cache.ProcessQueue()

	state := cache.GetRenderPipelineState(id)
	assert.Equal(t, PipelineErr, state.Status)
	assert.ErrorIs(t, state.Err, ErrShaderNotLoaded)
	assert.Nil(t, cache.GetRenderPipeline(id))
	assert.Contains(t, cache.WaitingPipelines(), CachedPipelineId(id))

	cache.SetShader(shader, NewWGSLShader("late.wgsl", spriteShaderSource))

	calls := 0
	for calls < 2 && cache.GetRenderPipelineState(id).Status != PipelineOk {
		cache.ProcessQueue()
		calls++
	}
	assert.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
	assert.NotNil(t, cache.GetRenderPipeline(id))
}

func TestPipelineCache_MissingImportRecovers(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("main.wgsl", "#import gekko::view\n"+spriteShaderSource))

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "importer"))
	cache.ProcessQueue()

	state := cache.GetRenderPipelineState(id)
	require.Equal(t, PipelineErr, state.Status)
	assert.ErrorIs(t, state.Err, ErrShaderImportNotYetAvailable)

	var cacheErr *PipelineCacheError
	require.True(t, errors.As(state.Err, &cacheErr))
	assert.Equal(t, "gekko::view", cacheErr.Import)

	cache.SetShader(NewShaderId(), NewWGSLShader("view.wgsl", "#define_import_path gekko::view\nconst VIEW: u32 = 1u;"))
	cache.ProcessQueue()

	require.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
	assert.Contains(t, device.shaderSources[len(device.shaderSources)-1], "const VIEW: u32 = 1u;")
}

func TestPipelineCache_TerminalErrorLoggedOnce(t *testing.T) {
	t.Setenv("VERBOSE_SHADER_ERROR", "")
	device := newFakeDevice()
	device.failRender = errors.New("invalid vertex layout")
	logger := &recordingLogger{}
	cache := newSyncCache(t, device, WithLogger(logger))
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "broken"))
	for range 3 {
		cache.ProcessQueue()
	}

	state := cache.GetRenderPipelineState(id)
	assert.Equal(t, PipelineErr, state.Status)
	assert.ErrorIs(t, state.Err, ErrCreatePipeline)
	assert.Equal(t, 1, device.renderPipelineCount(), "terminal errors are not retried")
	assert.Equal(t, 1, logger.count())
	assert.NotContains(t, cache.WaitingPipelines(), CachedPipelineId(id))
}

func TestPipelineCache_PreprocessorErrorIsTerminal(t *testing.T) {
	device := newFakeDevice()
	logger := &recordingLogger{}
	cache := newSyncCache(t, device, WithLogger(logger))
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("broken.wgsl", "#ifdef A\nfn f() {}\n"))

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "broken"))
	cache.ProcessQueue()
	cache.ProcessQueue()

	state := cache.GetRenderPipelineState(id)
	assert.ErrorIs(t, state.Err, ErrProcessShader)
	assert.Equal(t, 0, device.renderPipelineCount())
	assert.Empty(t, cache.WaitingPipelines())
	assert.GreaterOrEqual(t, logger.count(), 1)
}

func TestPipelineCache_ShaderReloadRequeues(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.ProcessQueue()
	first := cache.GetRenderPipeline(id)
	require.NotNil(t, first)

	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource+"\n// edited"))
	assert.Equal(t, PipelineQueued, cache.GetRenderPipelineState(id).Status)
	assert.Nil(t, cache.GetRenderPipeline(id))

	cache.ProcessQueue()
	second := cache.GetRenderPipeline(id)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Len(t, device.shaderSources, 2)
}

func TestPipelineCache_ImportReloadRequeuesImporters(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	view := NewShaderId()
	cache.SetShader(view, NewWGSLShader("view.wgsl", "#define_import_path gekko::view\nconst VIEW: u32 = 1u;"))
	main := NewShaderId()
	cache.SetShader(main, NewWGSLShader("main.wgsl", "#import gekko::view\n"+spriteShaderSource))

	id := cache.QueueRenderPipeline(spriteDescriptor(main, "importer"))
	cache.ProcessQueue()
	require.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)

	cache.SetShader(view, NewWGSLShader("view.wgsl", "#define_import_path gekko::view\nconst VIEW: u32 = 2u;"))
	assert.Equal(t, PipelineQueued, cache.GetRenderPipelineState(id).Status)

	cache.ProcessQueue()
	require.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
	assert.Contains(t, device.shaderSources[len(device.shaderSources)-1], "const VIEW: u32 = 2u;")
}

func TestPipelineCache_RemoveShaderRequeues(t *testing.T) {
	cache := newSyncCache(t, newFakeDevice())
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))
	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.ProcessQueue()

	cache.RemoveShader(shader)
	cache.ProcessQueue()

	state := cache.GetRenderPipelineState(id)
	assert.ErrorIs(t, state.Err, ErrShaderNotLoaded)
	assert.Nil(t, cache.GetRenderPipeline(id))
}

func TestPipelineCache_ShaderDefsSelectVariant(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	plain := spriteDescriptor(shader, "plain")
	tinted := spriteDescriptor(shader, "tinted")
	tinted.Fragment.ShaderDefs = []ShaderDefVal{Def("TINT")}

	cache.QueueRenderPipeline(plain)
	cache.QueueRenderPipeline(tinted)
	cache.ProcessQueue()

	require.Len(t, device.shaderSources, 2)
	assert.Contains(t, device.shaderSources[0], "vec4<f32>(1.0);")
	assert.Contains(t, device.shaderSources[1], "vec4<f32>(1.0, 0.0, 0.0, 1.0);")
}

func TestPipelineCache_ComputePipeline(t *testing.T) {
	device := newFakeDevice()
	cache := newSyncCache(t, device)
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("cull.wgsl", "@compute @workgroup_size(64)\nfn main() {}"))

	id := cache.QueueComputePipeline(ComputePipelineDescriptor{Label: "cull", Shader: shader, EntryPoint: "main"})
	cache.ProcessQueue()

	require.Equal(t, PipelineOk, cache.GetComputePipelineState(id).Status)
	assert.NotNil(t, cache.GetComputePipeline(id))
	assert.Nil(t, cache.GetRenderPipeline(CachedRenderPipelineId(id)))
	assert.Equal(t, 1, device.computePipelines)
}

func TestPipelineCache_BlockOnUnmergedPipeline(t *testing.T) {
	cache := newSyncCache(t, newFakeDevice())
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.BlockOnRenderPipeline(id)

	assert.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
}

func TestPipelineCache_AsyncCreation(t *testing.T) {
	if !asyncPipelineCompilation {
		t.Skip("pipelines are created inline on this platform")
	}
	device := newFakeDevice()
	device.renderGate = make(chan struct{})
	cache, err := NewPipelineCache(device, WithWorkers(2, 8))
	require.NoError(t, err)
	defer cache.Close()
	require.False(t, cache.Synchronous())

	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))
	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "async"))

	cache.ProcessQueue()
	assert.Equal(t, PipelineCreating, cache.GetRenderPipelineState(id).Status)
	assert.Nil(t, cache.GetRenderPipeline(id))

	close(device.renderGate)
	cache.BlockOnRenderPipeline(id)

	assert.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
	assert.Empty(t, cache.WaitingPipelines())
}

func TestPipelineCache_ConcurrentQueueAndRead(t *testing.T) {
	const producers, perProducer = 8, 50
	cache := newSyncCache(t, newFakeDevice())
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))

	stop := make(chan struct{})
	processed := make(chan struct{})
	go func() {
		defer close(processed)
		for {
			select {
			case <-stop:
				return
			default:
				cache.ProcessQueue()
			}
		}
	}()

	var wg sync.WaitGroup
	ids := make([][]CachedRenderPipelineId, producers)
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
				_ = cache.GetRenderPipelineState(id)
				ids[p] = append(ids[p], id)
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-processed
	cache.ProcessQueue()

	seen := make(map[CachedRenderPipelineId]bool, producers*perProducer)
	for _, list := range ids {
		for _, id := range list {
			assert.False(t, seen[id], "id %d handed out twice", id)
			seen[id] = true
			assert.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
		}
	}
	require.Len(t, seen, producers*perProducer)
	for id := range CachedRenderPipelineId(producers * perProducer) {
		assert.True(t, seen[id], "ids are dense, missing %d", id)
	}
}

func TestPipelineCache_PanickingDeviceFailsPipeline(t *testing.T) {
	device := newFakeDevice()
	device.panicRender = true
	cache, err := NewPipelineCache(device, WithWorkers(1, 4))
	require.NoError(t, err)
	defer cache.Close()

	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))
	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.BlockOnRenderPipeline(id)

	state := cache.GetRenderPipelineState(id)
	require.Equal(t, PipelineErr, state.Status)
	assert.ErrorIs(t, state.Err, ErrCreatePipeline)
	assert.ErrorContains(t, state.Err, "driver lost")
	assert.Empty(t, cache.WaitingPipelines())
}

func TestPipelineCache_CloseSwitchesToInline(t *testing.T) {
	cache, err := NewPipelineCache(newFakeDevice(), WithWorkers(1, 4))
	require.NoError(t, err)
	cache.Close()

	assert.True(t, cache.Synchronous())
	shader := NewShaderId()
	cache.SetShader(shader, NewWGSLShader("sprite.wgsl", spriteShaderSource))
	id := cache.QueueRenderPipeline(spriteDescriptor(shader, "sprite"))
	cache.ProcessQueue()
	assert.Equal(t, PipelineOk, cache.GetRenderPipelineState(id).Status)
}

func TestPipelineErrorContext(t *testing.T) {
	desc := spriteDescriptor("sprite", "sprite")
	desc.Vertex.ShaderDefs = []ShaderDefVal{Def("A"), BoolDef("OFF", false), UintDef("N", 3)}

	got := pipelineErrorContext(&cachedPipeline{render: &desc})
	assert.Equal(t, "vertex sprite:vertex\nshader defs: A, N = 3\nfragment sprite:fragment\nshader defs: ", got)

	compute := ComputePipelineDescriptor{Shader: "cull", EntryPoint: "main"}
	assert.Equal(t, "cull:main\nshader defs: ", pipelineErrorContext(&cachedPipeline{compute: &compute}))
}

type spriteKey struct {
	tinted bool
}

type spriteSpecializer struct {
	shader ShaderId
	calls  int
}

func (s *spriteSpecializer) Specialize(key spriteKey) RenderPipelineDescriptor {
	s.calls++
	desc := spriteDescriptor(s.shader, "sprite")
	if key.tinted {
		desc.Fragment.ShaderDefs = []ShaderDefVal{Def("TINT")}
	}
	return desc
}

func TestSpecializedRenderPipelines_Specialize(t *testing.T) {
	cache := newSyncCache(t, newFakeDevice())
	specializer := &spriteSpecializer{shader: NewShaderId()}
	pipelines := NewSpecializedRenderPipelines[spriteKey]()

	a := pipelines.Specialize(cache, specializer, spriteKey{})
	b := pipelines.Specialize(cache, specializer, spriteKey{tinted: true})
	c := pipelines.Specialize(cache, specializer, spriteKey{})

	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, specializer.calls)
	assert.Equal(t, 2, pipelines.Len())
}

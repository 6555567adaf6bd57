package resource

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"
)

type PipelineStatus uint8

const (
	PipelineQueued PipelineStatus = iota
	PipelineCreating
	PipelineOk
	PipelineErr
)

func (s PipelineStatus) String() string {
	switch s {
	case PipelineQueued:
		return "Queued"
	case PipelineCreating:
		return "Creating"
	case PipelineOk:
		return "Ok"
	case PipelineErr:
		return "Err"
	default:
		return fmt.Sprintf("PipelineStatus(%d)", uint8(s))
	}
}

// CachedPipelineState is a snapshot of one pipeline's lifecycle.
type CachedPipelineState struct {
	Status   PipelineStatus
	Err      error
	pipeline Pipeline
	task     *pipelineTask
}

// Pipeline returns the created pipeline in the Ok state and nil otherwise.
func (s CachedPipelineState) Pipeline() Pipeline {
	if s.Status != PipelineOk {
		return nil
	}
	return s.pipeline
}

func (s CachedPipelineState) terminal() bool {
	return s.Status == PipelineErr && !isRetryable(s.Err)
}

type cachedPipeline struct {
	render  *RenderPipelineDescriptor
	compute *ComputePipelineDescriptor
	state   CachedPipelineState
	logged  bool
}

func (p *cachedPipeline) label() string {
	if p.render != nil {
		return p.render.Label
	}
	return p.compute.Label
}

// CachedPipelineInfo describes one record for tooling.
type CachedPipelineInfo struct {
	Id     CachedPipelineId
	Label  string
	Render bool
	State  CachedPipelineState
}

// PipelineCache owns every pipeline requested from it. Pipelines are
// identified by a dense id that is never reused. Queueing is safe from any
// goroutine; ProcessQueue is the only call that advances pipeline states and
// must not run concurrently with itself.
type PipelineCache struct {
	device           RenderDevice
	shaders          *ShaderCache
	layouts          *LayoutCache
	bindGroupLayouts *BindGroupLayoutCache
	spawner          *pipelineSpawner
	logger           Logger
	globalDefs       []ShaderDefVal
	verboseErrors    bool

	mu        sync.RWMutex
	pipelines []*cachedPipeline
	waiting   set[CachedPipelineId]

	newMu        sync.Mutex
	newPipelines []*cachedPipeline
	mergedCount  int
}

type pipelineCacheConfig struct {
	synchronous bool
	workers     int
	queueSize   int
	logger      Logger
	validator   ShaderValidator
	globalDefs  []ShaderDefVal
}

type PipelineCacheOption func(*pipelineCacheConfig)

// WithSynchronousCompilation creates pipelines inline during ProcessQueue.
func WithSynchronousCompilation(enabled bool) PipelineCacheOption {
	return func(c *pipelineCacheConfig) { c.synchronous = enabled }
}

func WithWorkers(workers int, queueSize int) PipelineCacheOption {
	return func(c *pipelineCacheConfig) {
		if workers > 0 {
			c.workers = workers
		}
		if queueSize > 0 {
			c.queueSize = queueSize
		}
	}
}

func WithLogger(logger Logger) PipelineCacheOption {
	return func(c *pipelineCacheConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithShaderValidator(validator ShaderValidator) PipelineCacheOption {
	return func(c *pipelineCacheConfig) { c.validator = validator }
}

// WithGlobalShaderDefs adds defines applied to every shader variant.
func WithGlobalShaderDefs(defs ...ShaderDefVal) PipelineCacheOption {
	return func(c *pipelineCacheConfig) { c.globalDefs = append(c.globalDefs, defs...) }
}

func NewPipelineCache(device RenderDevice, options ...PipelineCacheOption) (*PipelineCache, error) {
	if device == nil {
		return nil, errPipelineCacheDeviceRequired
	}
	cfg := pipelineCacheConfig{
		workers:   max(1, runtime.NumCPU()/2),
		queueSize: 256,
		logger:    nopLogger{},
	}
	for _, option := range options {
		option(&cfg)
	}

	globalDefs := append([]ShaderDefVal{
		UintDef("AVAILABLE_STORAGE_BUFFER_BINDINGS", device.Limits().MaxStorageBuffersPerShaderStage),
	}, cfg.globalDefs...)

	return &PipelineCache{
		device:           device,
		shaders:          NewShaderCache(cfg.validator, globalDefs...),
		layouts:          NewLayoutCache(),
		bindGroupLayouts: NewBindGroupLayoutCache(),
		spawner:          newPipelineSpawner(cfg.synchronous, cfg.workers, cfg.queueSize),
		logger:           cfg.logger,
		globalDefs:       globalDefs,
		verboseErrors:    envFlag("VERBOSE_SHADER_ERROR"),
		waiting:          make(set[CachedPipelineId]),
	}, nil
}

func envFlag(name string) bool {
	v, ok := os.LookupEnv(name)
	return ok && v != "" && v != "0" && v != "false"
}

func (c *PipelineCache) Device() RenderDevice { return c.device }

func (c *PipelineCache) GlobalShaderDefs() []ShaderDefVal {
	return slices.Clone(c.globalDefs)
}

// Synchronous reports whether pipelines are created inline.
func (c *PipelineCache) Synchronous() bool {
	return c.spawner.isInline()
}

func (c *PipelineCache) queue(p *cachedPipeline) CachedPipelineId {
	c.newMu.Lock()
	defer c.newMu.Unlock()
	id := CachedPipelineId(c.mergedCount + len(c.newPipelines))
	c.newPipelines = append(c.newPipelines, p)
	return id
}

// QueueRenderPipeline always appends a new record; queueing the same
// descriptor twice creates two pipelines.
func (c *PipelineCache) QueueRenderPipeline(desc RenderPipelineDescriptor) CachedRenderPipelineId {
	return CachedRenderPipelineId(c.queue(&cachedPipeline{render: &desc}))
}

func (c *PipelineCache) QueueComputePipeline(desc ComputePipelineDescriptor) CachedComputePipelineId {
	return CachedComputePipelineId(c.queue(&cachedPipeline{compute: &desc}))
}

func (c *PipelineCache) state(id CachedPipelineId) CachedPipelineState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) < len(c.pipelines) {
		return c.pipelines[id].state
	}
	return CachedPipelineState{Status: PipelineQueued}
}

// GetRenderPipelineState reports Queued for ids that are still in the
// pending buffer.
func (c *PipelineCache) GetRenderPipelineState(id CachedRenderPipelineId) CachedPipelineState {
	return c.state(CachedPipelineId(id))
}

func (c *PipelineCache) GetComputePipelineState(id CachedComputePipelineId) CachedPipelineState {
	return c.state(CachedPipelineId(id))
}

// GetRenderPipeline returns the pipeline only once it is Ok.
func (c *PipelineCache) GetRenderPipeline(id CachedRenderPipelineId) *RenderPipeline {
	p, _ := c.state(CachedPipelineId(id)).Pipeline().(*RenderPipeline)
	return p
}

func (c *PipelineCache) GetComputePipeline(id CachedComputePipelineId) *ComputePipeline {
	p, _ := c.state(CachedPipelineId(id)).Pipeline().(*ComputePipeline)
	return p
}

func (c *PipelineCache) merged(id CachedPipelineId) (*cachedPipeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) < len(c.pipelines) {
		return c.pipelines[id], true
	}
	return nil, false
}

func (c *PipelineCache) pending(id CachedPipelineId) (*cachedPipeline, bool) {
	c.newMu.Lock()
	defer c.newMu.Unlock()
	idx := int(id) - c.mergedCount
	if idx >= 0 && idx < len(c.newPipelines) {
		return c.newPipelines[idx], true
	}
	return nil, false
}

// record finds id in either list. The second merged lookup covers a merge
// that ran between the first two.
func (c *PipelineCache) record(id CachedPipelineId) (*cachedPipeline, bool) {
	if p, ok := c.merged(id); ok {
		return p, true
	}
	if p, ok := c.pending(id); ok {
		return p, true
	}
	return c.merged(id)
}

// GetRenderPipelineDescriptor returns the descriptor the id was queued with.
func (c *PipelineCache) GetRenderPipelineDescriptor(id CachedRenderPipelineId) (RenderPipelineDescriptor, error) {
	p, ok := c.record(CachedPipelineId(id))
	if !ok {
		return RenderPipelineDescriptor{}, fmt.Errorf("resource: unknown render pipeline %d", id)
	}
	if p.render == nil {
		return RenderPipelineDescriptor{}, errUnexpectedPipelineKind
	}
	return *p.render, nil
}

func (c *PipelineCache) GetComputePipelineDescriptor(id CachedComputePipelineId) (ComputePipelineDescriptor, error) {
	p, ok := c.record(CachedPipelineId(id))
	if !ok {
		return ComputePipelineDescriptor{}, fmt.Errorf("resource: unknown compute pipeline %d", id)
	}
	if p.compute == nil {
		return ComputePipelineDescriptor{}, errUnexpectedPipelineKind
	}
	return *p.compute, nil
}

// GetBindGroupLayout resolves a layout through the shared cache.
func (c *PipelineCache) GetBindGroupLayout(desc BindGroupLayoutDescriptor) (*BindGroupLayout, error) {
	return c.bindGroupLayouts.Get(c.device, desc)
}

// Pipelines returns a snapshot of every merged record.
func (c *PipelineCache) Pipelines() []CachedPipelineInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]CachedPipelineInfo, len(c.pipelines))
	for i, p := range c.pipelines {
		infos[i] = CachedPipelineInfo{
			Id:     CachedPipelineId(i),
			Label:  p.label(),
			Render: p.render != nil,
			State:  p.state,
		}
	}
	return infos
}

// WaitingPipelines returns the ids ProcessQueue will revisit, in id order.
func (c *PipelineCache) WaitingPipelines() []CachedPipelineId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]CachedPipelineId, 0, len(c.waiting))
	for id := range c.waiting {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ProcessQueue merges newly queued pipelines and advances every waiting
// pipeline by one step of its state machine.
func (c *PipelineCache) ProcessQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiting := c.waiting
	c.waiting = make(set[CachedPipelineId], len(waiting))

	c.newMu.Lock()
	for _, p := range c.newPipelines {
		waiting[CachedPipelineId(len(c.pipelines))] = struct{}{}
		c.pipelines = append(c.pipelines, p)
	}
	c.newPipelines = nil
	c.mergedCount = len(c.pipelines)
	c.newMu.Unlock()

	ids := make([]CachedPipelineId, 0, len(waiting))
	for id := range waiting {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		c.processPipeline(id, c.pipelines[id])
	}
}

func (c *PipelineCache) processPipeline(id CachedPipelineId, p *cachedPipeline) {
	if p.state.Status == PipelineErr && isRetryable(p.state.Err) {
		p.state = CachedPipelineState{Status: PipelineQueued}
	}

	if p.state.Status == PipelineQueued {
		if p.render != nil {
			p.state = c.startCreateRenderPipeline(id, p.render)
		} else {
			p.state = c.startCreateComputePipeline(id, p.compute)
		}
	}

	if p.state.Status == PipelineCreating && p.state.task.ready() {
		p.state = p.state.task.state()
	}

	switch {
	case p.state.Status == PipelineOk:
		return
	case p.state.terminal():
		c.logTerminal(p)
		return
	}
	c.waiting[id] = struct{}{}
}

func (c *PipelineCache) logTerminal(p *cachedPipeline) {
	if p.logged {
		return
	}
	p.logged = true

	if c.verboseErrors {
		c.logger.Errorf("%s", pipelineErrorContext(p))
	}
	c.logger.Errorf("pipeline %q: %v", p.label(), p.state.Err)
}

func (c *PipelineCache) resolveLayout(desc []BindGroupLayoutDescriptor, pushConstants []PushConstantRange) (*PipelineLayout, error) {
	if len(desc) == 0 && len(pushConstants) == 0 {
		return nil, nil
	}
	bindGroupLayouts := make([]*BindGroupLayout, len(desc))
	for i, d := range desc {
		layout, err := c.bindGroupLayouts.Get(c.device, d)
		if err != nil {
			return nil, err
		}
		bindGroupLayouts[i] = layout
	}
	return c.layouts.Get(c.device, bindGroupLayouts, pushConstants)
}

func (c *PipelineCache) startCreateRenderPipeline(id CachedPipelineId, desc *RenderPipelineDescriptor) CachedPipelineState {
	vertexModule, err := c.shaders.Get(c.device, id, desc.Vertex.Shader, desc.Vertex.ShaderDefs)
	if err != nil {
		return CachedPipelineState{Status: PipelineErr, Err: err}
	}

	var fragment *RawFragmentState
	if desc.Fragment != nil {
		fragmentModule, err := c.shaders.Get(c.device, id, desc.Fragment.Shader, desc.Fragment.ShaderDefs)
		if err != nil {
			return CachedPipelineState{Status: PipelineErr, Err: err}
		}
		fragment = &RawFragmentState{
			Module:     fragmentModule,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    desc.Fragment.Targets,
		}
	}

	layout, err := c.resolveLayout(desc.Layout, desc.PushConstantRanges)
	if err != nil {
		return CachedPipelineState{Status: PipelineErr, Err: &PipelineCacheError{Kind: ErrorKindCreatePipeline, Err: err}}
	}

	raw := &RawRenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: RawVertexState{
			Module:     vertexModule,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    desc.Vertex.Buffers,
		},
		Fragment:                      fragment,
		Primitive:                     desc.Primitive,
		DepthStencil:                  desc.DepthStencil,
		Multisample:                   desc.Multisample,
		ZeroInitializeWorkgroupMemory: desc.ZeroInitializeWorkgroupMemory,
	}
	device := c.device
	task := c.spawner.spawn(func() (Pipeline, error) {
		pipeline, err := device.CreateRenderPipeline(raw)
		if err != nil {
			return nil, &PipelineCacheError{Kind: ErrorKindCreatePipeline, Err: err}
		}
		return pipeline, nil
	})
	return CachedPipelineState{Status: PipelineCreating, task: task}
}

func (c *PipelineCache) startCreateComputePipeline(id CachedPipelineId, desc *ComputePipelineDescriptor) CachedPipelineState {
	module, err := c.shaders.Get(c.device, id, desc.Shader, desc.ShaderDefs)
	if err != nil {
		return CachedPipelineState{Status: PipelineErr, Err: err}
	}

	layout, err := c.resolveLayout(desc.Layout, desc.PushConstantRanges)
	if err != nil {
		return CachedPipelineState{Status: PipelineErr, Err: &PipelineCacheError{Kind: ErrorKindCreatePipeline, Err: err}}
	}

	raw := &RawComputePipelineDescriptor{
		Label:                         desc.Label,
		Layout:                        layout,
		Module:                        module,
		EntryPoint:                    desc.EntryPoint,
		ZeroInitializeWorkgroupMemory: desc.ZeroInitializeWorkgroupMemory,
	}
	device := c.device
	task := c.spawner.spawn(func() (Pipeline, error) {
		pipeline, err := device.CreateComputePipeline(raw)
		if err != nil {
			return nil, &PipelineCacheError{Kind: ErrorKindCreatePipeline, Err: err}
		}
		return pipeline, nil
	})
	return CachedPipelineState{Status: PipelineCreating, task: task}
}

// SetShader adds or replaces a shader and re-queues every pipeline that was
// built from it or from a shader importing it.
func (c *PipelineCache) SetShader(id ShaderId, shader *Shader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requeue(c.shaders.Set(id, shader))
}

func (c *PipelineCache) RemoveShader(id ShaderId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requeue(c.shaders.Remove(id))
}

func (c *PipelineCache) requeue(ids []CachedPipelineId) {
	for _, id := range ids {
		if int(id) >= len(c.pipelines) {
			continue
		}
		p := c.pipelines[id]
		p.state = CachedPipelineState{Status: PipelineQueued}
		p.logged = false
		c.waiting[id] = struct{}{}
	}
}

// BlockOnRenderPipeline waits until the pipeline leaves the Creating state.
// It processes the queue first if the id has not been merged yet.
func (c *PipelineCache) BlockOnRenderPipeline(id CachedRenderPipelineId) {
	c.blockOn(CachedPipelineId(id))
}

func (c *PipelineCache) BlockOnComputePipeline(id CachedComputePipelineId) {
	c.blockOn(CachedPipelineId(id))
}

func (c *PipelineCache) blockOn(id CachedPipelineId) {
	c.mu.RLock()
	known := int(id) < len(c.pipelines)
	c.mu.RUnlock()
	if !known {
		c.ProcessQueue()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if int(id) >= len(c.pipelines) {
		return
	}
	p := c.pipelines[id]
	if p.state.Status != PipelineCreating {
		return
	}
	p.state.task.wait()
	p.state = p.state.task.state()
	if p.state.Status == PipelineOk {
		delete(c.waiting, id)
	} else if p.state.terminal() {
		delete(c.waiting, id)
		c.logTerminal(p)
	}
}

// Close waits for in-flight pipeline tasks. Later creations run inline.
func (c *PipelineCache) Close() {
	c.spawner.close()
}

func pipelineErrorContext(p *cachedPipeline) string {
	format := func(shader ShaderId, entry string, defs []ShaderDefVal) string {
		names := make([]string, 0, len(defs))
		for _, def := range defs {
			if s := def.String(); s != "" {
				names = append(names, s)
			}
		}
		return fmt.Sprintf("%s:%s\nshader defs: %s", shader, entry, strings.Join(names, ", "))
	}
	if p.compute != nil {
		return format(p.compute.Shader, p.compute.EntryPoint, p.compute.ShaderDefs)
	}
	vertex := format(p.render.Vertex.Shader, p.render.Vertex.EntryPoint, p.render.Vertex.ShaderDefs)
	if p.render.Fragment == nil {
		return vertex
	}
	fragment := format(p.render.Fragment.Shader, p.render.Fragment.EntryPoint, p.render.Fragment.ShaderDefs)
	return fmt.Sprintf("vertex %s\nfragment %s", vertex, fragment)
}

package gekko

import (
	_ "embed"
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/gekko-render/render/resource"
)

//go:embed shaders/mesh2d.wgsl
var mesh2dShaderSource string

// Mesh2dShader is the id the built-in mesh shader is registered under.
const Mesh2dShader = resource.ShaderId("gekko://mesh2d.wgsl")

// PrepareAssets uploads render assets before anything is queued.
var PrepareAssets = Stage{Name: "PrepareAssets", UpdateType: DynamicUpdate}

type AlphaMode uint8

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

func (m AlphaMode) String() string {
	switch m {
	case AlphaOpaque:
		return "Opaque"
	case AlphaMask:
		return "Mask"
	case AlphaBlend:
		return "Blend"
	}
	return fmt.Sprintf("AlphaMode(%d)", uint8(m))
}

type Vertex2d struct {
	Position [3]float32 `gekko:"layout" location:"0" format:"float3"`
	Color    [4]float32 `gekko:"layout" location:"1" format:"float4"`
}

// Mesh2dData is a triangle list. Without indices the vertices are drawn in
// order.
type Mesh2dData struct {
	Vertices []Vertex2d
	Indices  []uint16
}

func (m Mesh2dData) Indexed() bool { return len(m.Indices) > 0 }

// Quad2d is an indexed rectangle centred on the origin.
func Quad2d(width, height float32, color wgpu.Color) Mesh2dData {
	w, h := width/2, height/2
	c := [4]float32{float32(color.R), float32(color.G), float32(color.B), float32(color.A)}
	return Mesh2dData{
		Vertices: []Vertex2d{
			{Position: [3]float32{-w, -h, 0}, Color: c},
			{Position: [3]float32{w, -h, 0}, Color: c},
			{Position: [3]float32{w, h, 0}, Color: c},
			{Position: [3]float32{-w, h, 0}, Color: c},
		},
		Indices: []uint16{0, 1, 2, 0, 2, 3},
	}
}

// Mesh2d draws a mesh asset with the entity's Transform2d.
type Mesh2d struct {
	Mesh      AssetId
	AlphaMode AlphaMode
	Tint      [4]float32
}

func NewMesh2d(mesh AssetId, mode AlphaMode) Mesh2d {
	return Mesh2d{Mesh: mesh, AlphaMode: mode, Tint: [4]float32{1, 1, 1, 1}}
}

// mesh2dInstance is the per-instance vertex data.
type mesh2dInstance struct {
	WorldFromLocal mgl32.Mat4 `gekko:"layout" location:"2" format:"mat4"`
	Tint           [4]float32 `gekko:"layout" location:"6" format:"float4"`
}

type RenderMesh2dInstance struct {
	Mesh           AssetId
	AlphaMode      AlphaMode
	WorldFromLocal mgl32.Mat4
	Tint           [4]float32
}

// RenderMesh2dInstances is the render-side copy of every Mesh2d entity.
type RenderMesh2dInstances struct {
	instances map[EntityId]RenderMesh2dInstance
}

func NewRenderMesh2dInstances() *RenderMesh2dInstances {
	return &RenderMesh2dInstances{instances: make(map[EntityId]RenderMesh2dInstance)}
}

func (r *RenderMesh2dInstances) Get(entity EntityId) (RenderMesh2dInstance, bool) {
	instance, ok := r.instances[entity]
	return instance, ok
}

func (r *RenderMesh2dInstances) Len() int { return len(r.instances) }

func (r *RenderMesh2dInstances) entities() []EntityId {
	ids := make([]EntityId, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type GpuMesh2d struct {
	VertexBuffer *resource.Buffer
	IndexBuffer  *resource.Buffer
	VertexCount  uint32
	IndexCount   uint32
}

func (m *GpuMesh2d) Indexed() bool { return m.IndexBuffer != nil }

func (m *GpuMesh2d) Release() {
	m.VertexBuffer.Release()
	m.IndexBuffer.Release()
}

// RenderMesh2dAssets holds uploaded meshes. Meshes extracted this frame wait
// in pending until PrepareAssets.
type RenderMesh2dAssets struct {
	meshes  map[AssetId]*GpuMesh2d
	pending map[AssetId]Mesh2dData
}

func NewRenderMesh2dAssets() *RenderMesh2dAssets {
	return &RenderMesh2dAssets{
		meshes:  make(map[AssetId]*GpuMesh2d),
		pending: make(map[AssetId]Mesh2dData),
	}
}

func (r *RenderMesh2dAssets) Get(id AssetId) (*GpuMesh2d, bool) {
	mesh, ok := r.meshes[id]
	return mesh, ok
}

type Mesh2dPipelineKey struct {
	AlphaMode   AlphaMode
	Format      wgpu.TextureFormat
	Hdr         bool
	MsaaSamples uint32
}

// Mesh2dPipeline specializes the mesh shader per key.
type Mesh2dPipeline struct {
	Shader    resource.ShaderId
	pipelines *resource.SpecializedRenderPipelines[Mesh2dPipelineKey]
}

func NewMesh2dPipeline(shader resource.ShaderId) *Mesh2dPipeline {
	return &Mesh2dPipeline{
		Shader:    shader,
		pipelines: resource.NewSpecializedRenderPipelines[Mesh2dPipelineKey](),
	}
}

func (p *Mesh2dPipeline) Specialize(key Mesh2dPipelineKey) resource.RenderPipelineDescriptor {
	var defs []resource.ShaderDefVal
	if key.AlphaMode == AlphaMask {
		defs = append(defs, resource.Def("ALPHA_MASK"))
	}
	if key.Hdr {
		defs = append(defs, resource.Def("HDR"))
	}

	target := wgpu.ColorTargetState{Format: key.Format, WriteMask: wgpu.ColorWriteMaskAll}
	depthWrite := true
	if key.AlphaMode == AlphaBlend {
		target.Blend = &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				Operation: wgpu.BlendOperationAdd,
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			},
			Alpha: wgpu.BlendComponent{
				Operation: wgpu.BlendOperationAdd,
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			},
		}
		depthWrite = false
	}

	label := fmt.Sprintf("mesh2d_pipeline (%s)", key.AlphaMode)
	if key.MsaaSamples > 1 {
		label = fmt.Sprintf("mesh2d_pipeline (%s, msaa x%d)", key.AlphaMode, key.MsaaSamples)
	}

	return resource.RenderPipelineDescriptor{
		Label:  label,
		Layout: []resource.BindGroupLayoutDescriptor{ViewBindGroupLayout()},
		Vertex: resource.VertexState{
			Shader:     p.Shader,
			ShaderDefs: defs,
			EntryPoint: "vertex",
			Buffers: []wgpu.VertexBufferLayout{
				createVertexBufferLayout(Vertex2d{}, wgpu.VertexStepModeVertex),
				createVertexBufferLayout(mesh2dInstance{}, wgpu.VertexStepModeInstance),
			},
		},
		Fragment: &resource.FragmentState{
			Shader:     p.Shader,
			ShaderDefs: defs,
			EntryPoint: "fragment",
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            core2dDepthFormat,
			DepthWriteEnabled: depthWrite,
			DepthCompare:      wgpu.CompareFunctionGreaterEqual,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: multisample(key.MsaaSamples),
	}
}

func multisample(samples uint32) wgpu.MultisampleState {
	state := resource.DefaultMultisample()
	state.Count = max(1, samples)
	return state
}

type mesh2dPhaseKind uint8

const (
	mesh2dOpaque mesh2dPhaseKind = iota
	mesh2dAlphaMask
	mesh2dTransparent
)

type mesh2dSegmentKey struct {
	view RetainedViewEntity
	kind mesh2dPhaseKind
}

type mesh2dSegment struct {
	offset uint64
	size   uint64
}

// Mesh2dInstanceBuffer holds the instance data of every phase of every view,
// one segment per phase, in the order instances were assigned.
type Mesh2dInstanceBuffer struct {
	buffer   *resource.Buffer
	segments map[mesh2dSegmentKey]mesh2dSegment
	staging  []mesh2dInstance
}

func NewMesh2dInstanceBuffer() *Mesh2dInstanceBuffer {
	return &Mesh2dInstanceBuffer{segments: make(map[mesh2dSegmentKey]mesh2dSegment)}
}

func (b *Mesh2dInstanceBuffer) Buffer() *resource.Buffer { return b.buffer }

const drawMesh2dToken = "draw_mesh2d"

// Mesh2dModule draws Mesh2d entities through the core 2D phases.
type Mesh2dModule struct{}

func (Mesh2dModule) Install(app *App, cmd *Commands) {
	if _, ok := GetResource[Opaque2dPhases](app); !ok {
		panic("Mesh2dModule requires Core2dModule to be installed first")
	}
	if app.stageIndex(PrepareAssets.Name) == -1 {
		app.UseStage(PrepareAssets, AfterStage(ManageViews))
	}

	MustResource[AssetServer](app).SetShader(Mesh2dShader, "embedded://gekko/mesh2d.wgsl", mesh2dShaderSource)

	MustResource[DrawFunctions[*Opaque2d]](app).Add(drawMesh2dToken, drawMesh2d[*Opaque2d](mesh2dOpaque))
	MustResource[DrawFunctions[*AlphaMask2d]](app).Add(drawMesh2dToken, drawMesh2d[*AlphaMask2d](mesh2dAlphaMask))
	MustResource[DrawFunctions[*Transparent2d]](app).Add(drawMesh2dToken, drawMesh2d[*Transparent2d](mesh2dTransparent))

	cmd.AddResources(
		NewRenderMesh2dInstances(),
		NewRenderMesh2dAssets(),
		NewMesh2dPipeline(Mesh2dShader),
		NewMesh2dInstanceBuffer(),
	)

	app.UseSystem(System(extractMesh2dAssetsSystem).InStage(Extract))
	app.UseSystem(System(extractMesh2dInstancesSystem).InStage(Extract))
	app.UseSystem(System(prepareMesh2dAssetsSystem).InStage(PrepareAssets))
	app.UseSystem(System(queueMesh2dSystem).InStage(Queue))
	app.UseSystem(System(prepareMesh2dInstanceBufferSystem).InStage(Prepare))
}

func extractMesh2dAssetsSystem(assets *AssetServer, meshes *RenderMesh2dAssets) {
	for _, event := range assets.Meshes.DrainEvents() {
		switch event.Kind {
		case AssetAdded, AssetModified:
			if data, ok := assets.Meshes.Get(event.Id); ok {
				meshes.pending[event.Id] = data
			}
		case AssetRemoved:
			delete(meshes.pending, event.Id)
			if gpuMesh, ok := meshes.meshes[event.Id]; ok {
				gpuMesh.Release()
				delete(meshes.meshes, event.Id)
			}
		}
	}
}

func extractMesh2dInstancesSystem(cmd *Commands, instances *RenderMesh2dInstances) {
	clear(instances.instances)
	MakeQuery2[Mesh2d, Transform2d](cmd).Map(func(eid EntityId, mesh *Mesh2d, transform *Transform2d) bool {
		worldFromLocal := mgl32.Ident4()
		if transform != nil {
			worldFromLocal = transform.Matrix()
		}
		instances.instances[eid] = RenderMesh2dInstance{
			Mesh:           mesh.Mesh,
			AlphaMode:      mesh.AlphaMode,
			WorldFromLocal: worldFromLocal,
			Tint:           mesh.Tint,
		}
		return true
	}, Transform2d{})
}

func prepareMesh2dAssetsSystem(app *App, meshes *RenderMesh2dAssets, device *RenderDeviceResource) {
	if device.Device == nil {
		return
	}
	for id, data := range meshes.pending {
		gpuMesh, err := uploadMesh2d(device.Device, id, data)
		if err != nil {
			app.Logger().Errorf("mesh2d: upload %s: %v", id, err)
			continue
		}
		if old, ok := meshes.meshes[id]; ok {
			old.Release()
		}
		meshes.meshes[id] = gpuMesh
		delete(meshes.pending, id)
	}
}

func uploadMesh2d(device resource.RenderDevice, id AssetId, data Mesh2dData) (*GpuMesh2d, error) {
	if len(data.Vertices) == 0 {
		return nil, fmt.Errorf("mesh has no vertices")
	}
	vertexBuffer, err := device.CreateBufferInit(resource.BufferInitDescriptor{
		Label:    fmt.Sprintf("mesh2d vertices %s", id),
		Contents: toBufferBytes(data.Vertices),
		Usage:    wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	gpuMesh := &GpuMesh2d{VertexBuffer: vertexBuffer, VertexCount: uint32(len(data.Vertices))}
	if data.Indexed() {
		indexBuffer, err := device.CreateBufferInit(resource.BufferInitDescriptor{
			Label:    fmt.Sprintf("mesh2d indices %s", id),
			Contents: toBufferBytes(data.Indices),
			Usage:    wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			vertexBuffer.Release()
			return nil, err
		}
		gpuMesh.IndexBuffer = indexBuffer
		gpuMesh.IndexCount = uint32(len(data.Indices))
	}
	return gpuMesh, nil
}

// queueMesh2dSystem adds every uploaded mesh instance to the phases of every
// 2D view. Opaque and masked meshes are binned; blended ones are sorted.
func queueMesh2dSystem(
	views *ExtractedViews,
	targets *RenderTargets,
	instances *RenderMesh2dInstances,
	meshes *RenderMesh2dAssets,
	pipeline *Mesh2dPipeline,
	pcr *pipelineCacheResource,
	opaque *Opaque2dPhases,
	alphaMask *AlphaMask2dPhases,
	transparent *Transparent2dPhases,
	opaqueDraws *DrawFunctions[*Opaque2d],
	alphaMaskDraws *DrawFunctions[*AlphaMask2d],
	transparentDraws *DrawFunctions[*Transparent2d],
) {
	opaqueDraw := opaqueDraws.MustId(drawMesh2dToken)
	alphaMaskDraw := alphaMaskDraws.MustId(drawMesh2dToken)
	transparentDraw := transparentDraws.MustId(drawMesh2dToken)
	entities := instances.entities()

	for _, view := range views.All() {
		opaquePhase, ok := opaque.Get(view.Retained)
		if !ok {
			continue
		}
		alphaMaskPhase, _ := alphaMask.Get(view.Retained)
		transparentPhase, _ := transparent.Get(view.Retained)
		target, ok := targets.Get(view.Target)
		if !ok {
			continue
		}

		for _, eid := range entities {
			instance := instances.instances[eid]
			gpuMesh, ok := meshes.meshes[instance.Mesh]
			if !ok {
				continue
			}
			key := Mesh2dPipelineKey{
				AlphaMode:   instance.AlphaMode,
				Format:      target.Format,
				Hdr:         view.Hdr,
				MsaaSamples: max(1, view.MsaaSamples),
			}
			pipelineId := pipeline.pipelines.Specialize(pcr.cache, pipeline, key)
			batchSet := BatchSetKey2d{Indexed: gpuMesh.Indexed()}

			switch instance.AlphaMode {
			case AlphaOpaque:
				opaquePhase.Add(batchSet, Opaque2dBinKey{
					Pipeline:     pipelineId,
					DrawFunction: opaqueDraw,
					Asset:        instance.Mesh,
				}, eid, eid, BatchableMesh)
			case AlphaMask:
				alphaMaskPhase.Add(batchSet, AlphaMask2dBinKey{
					Pipeline:     pipelineId,
					DrawFunction: alphaMaskDraw,
					Asset:        instance.Mesh,
				}, eid, eid, BatchableMesh)
			case AlphaBlend:
				transparentPhase.Add(&Transparent2d{
					RenderEntity: eid,
					SourceEntity: eid,
					Depth:        view.ViewZ(instance.WorldFromLocal.Col(3).Vec3()),
					Pipeline:     pipelineId,
					DrawFn:       transparentDraw,
					MeshAsset:    instance.Mesh,
					IndexedMesh:  gpuMesh.Indexed(),
					Batchable:    true,
				})
			}
		}
	}
}

// prepareMesh2dInstanceBufferSystem writes the instances of each phase in
// the order the batching assigned them, so that an item's instance range
// indexes its own segment.
func prepareMesh2dInstanceBufferSystem(
	app *App,
	device *RenderDeviceResource,
	instances *RenderMesh2dInstances,
	buffers *Mesh2dInstanceBuffer,
	opaque *Opaque2dPhases,
	alphaMask *AlphaMask2dPhases,
	transparent *Transparent2dPhases,
) {
	clear(buffers.segments)
	buffers.staging = buffers.staging[:0]

	appendSegment := func(view RetainedViewEntity, kind mesh2dPhaseKind, assigned []BinnedEntity) {
		if len(assigned) == 0 {
			return
		}
		start := len(buffers.staging)
		for _, e := range assigned {
			instance, ok := instances.instances[e.MainEntity]
			if !ok {
				instance = RenderMesh2dInstance{WorldFromLocal: mgl32.Ident4()}
			}
			buffers.staging = append(buffers.staging, mesh2dInstance{
				WorldFromLocal: instance.WorldFromLocal,
				Tint:           instance.Tint,
			})
		}
		stride := uint64(mesh2dInstanceSize)
		buffers.segments[mesh2dSegmentKey{view: view, kind: kind}] = mesh2dSegment{
			offset: uint64(start) * stride,
			size:   uint64(len(assigned)) * stride,
		}
	}

	opaque.Each(func(view RetainedViewEntity, phase *BinnedRenderPhase[BatchSetKey2d, Opaque2dBinKey, *Opaque2d]) {
		appendSegment(view, mesh2dOpaque, phase.Instances())
	})
	alphaMask.Each(func(view RetainedViewEntity, phase *BinnedRenderPhase[BatchSetKey2d, AlphaMask2dBinKey, *AlphaMask2d]) {
		appendSegment(view, mesh2dAlphaMask, phase.Instances())
	})
	transparent.Each(func(view RetainedViewEntity, phase *SortedRenderPhase[*Transparent2d]) {
		appendSegment(view, mesh2dTransparent, phase.Instances())
	})

	if len(buffers.staging) == 0 || device.Device == nil {
		return
	}
	contents := toBufferBytes(buffers.staging)
	if buffers.buffer != nil && buffers.buffer.Size() >= uint64(len(contents)) {
		if err := device.Device.WriteBuffer(buffers.buffer, 0, contents); err != nil {
			app.Logger().Errorf("mesh2d: write instances: %v", err)
		}
		return
	}
	buffer, err := device.Device.CreateBufferInit(resource.BufferInitDescriptor{
		Label:    "mesh2d instances",
		Contents: contents,
		Usage:    wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		app.Logger().Errorf("mesh2d: create instance buffer: %v", err)
		return
	}
	buffers.buffer.Release()
	buffers.buffer = buffer
}

const mesh2dInstanceSize = 80

func drawMesh2d[P Mesh2dPhaseItem](kind mesh2dPhaseKind) Draw[P] {
	return RenderCommands[P](
		SetItemPipeline[P](),
		SetViewBindGroup[P](0),
		&setMesh2dInstances[P]{kind: kind},
		&drawMesh2dCommand[P]{},
	)
}

// setMesh2dInstances binds the view's instance segment to vertex slot 1.
type setMesh2dInstances[P Mesh2dPhaseItem] struct {
	kind    mesh2dPhaseKind
	buffers *Mesh2dInstanceBuffer
}

func (c *setMesh2dInstances[P]) Prepare(app *App) {
	c.buffers, _ = GetResource[Mesh2dInstanceBuffer](app)
}

func (c *setMesh2dInstances[P]) Render(_ *App, pass *TrackedRenderPass, view *ExtractedView, item P) RenderCommandResult {
	if c.buffers == nil || c.buffers.buffer == nil {
		return Failure("mesh2d instance buffer is not prepared")
	}
	segment, ok := c.buffers.segments[mesh2dSegmentKey{view: view.Retained, kind: c.kind}]
	if !ok {
		return Failuref("no mesh2d instances for %s", view.Retained)
	}
	pass.SetVertexBuffer(1, c.buffers.buffer, segment.offset, segment.size)
	return Success
}

// drawMesh2dCommand binds the mesh buffers and draws the item's instance
// range.
type drawMesh2dCommand[P Mesh2dPhaseItem] struct {
	meshes *RenderMesh2dAssets
}

func (c *drawMesh2dCommand[P]) Prepare(app *App) {
	c.meshes, _ = GetResource[RenderMesh2dAssets](app)
}

func (c *drawMesh2dCommand[P]) Render(_ *App, pass *TrackedRenderPass, _ *ExtractedView, item P) RenderCommandResult {
	if c.meshes == nil {
		return Failure("no mesh2d assets")
	}
	gpuMesh, ok := c.meshes.meshes[item.Asset()]
	if !ok {
		return Skip
	}
	pass.SetVertexBuffer(0, gpuMesh.VertexBuffer, 0, gpuMesh.VertexBuffer.Size())
	if gpuMesh.Indexed() {
		pass.SetIndexBuffer(gpuMesh.IndexBuffer, wgpu.IndexFormatUint16, 0, gpuMesh.IndexBuffer.Size())
		pass.DrawIndexed(InstanceRange{Start: 0, End: gpuMesh.IndexCount}, 0, item.BatchRange())
	} else {
		pass.Draw(InstanceRange{Start: 0, End: gpuMesh.VertexCount}, item.BatchRange())
	}
	return Success
}

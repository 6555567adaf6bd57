package gekko

import (
	"cmp"

	"github.com/gekko3d/gekko-render/render/resource"
)

// BatchSetKey2d groups 2D bins that may share one multi-draw call.
type BatchSetKey2d struct {
	Indexed bool
}

func (k BatchSetKey2d) Compare(other BatchSetKey2d) int {
	switch {
	case k.Indexed == other.Indexed:
		return 0
	case !k.Indexed:
		return -1
	default:
		return 1
	}
}

// Opaque2dBinKey orders opaque 2D bins by pipeline, draw function, asset and
// material bind group, in that priority.
type Opaque2dBinKey struct {
	Pipeline          resource.CachedRenderPipelineId
	DrawFunction      DrawFunctionId
	Asset             AssetId
	MaterialBindGroup BindGroupKey
}

func compareBinKeys(aPipeline, bPipeline resource.CachedRenderPipelineId, aDraw, bDraw DrawFunctionId, aAsset, bAsset AssetId, aGroup, bGroup BindGroupKey) int {
	if c := cmp.Compare(aPipeline, bPipeline); c != 0 {
		return c
	}
	if c := cmp.Compare(aDraw, bDraw); c != 0 {
		return c
	}
	if c := cmp.Compare(aAsset, bAsset); c != 0 {
		return c
	}
	return aGroup.Compare(bGroup)
}

func (k Opaque2dBinKey) Compare(o Opaque2dBinKey) int {
	return compareBinKeys(k.Pipeline, o.Pipeline, k.DrawFunction, o.DrawFunction, k.Asset, o.Asset, k.MaterialBindGroup, o.MaterialBindGroup)
}

// AlphaMask2dBinKey has the same order as Opaque2dBinKey.
type AlphaMask2dBinKey struct {
	Pipeline          resource.CachedRenderPipelineId
	DrawFunction      DrawFunctionId
	Asset             AssetId
	MaterialBindGroup BindGroupKey
}

func (k AlphaMask2dBinKey) Compare(o AlphaMask2dBinKey) int {
	return compareBinKeys(k.Pipeline, o.Pipeline, k.DrawFunction, o.DrawFunction, k.Asset, o.Asset, k.MaterialBindGroup, o.MaterialBindGroup)
}

// Opaque2d is a binned item of the opaque 2D phase. Representative is the
// first entity of its bin.
type Opaque2d struct {
	PhaseItemBatch
	BatchSetKey    BatchSetKey2d
	Key            Opaque2dBinKey
	Representative BinnedEntity
}

func newOpaque2d(batchSetKey BatchSetKey2d, key Opaque2dBinKey, entity BinnedEntity, batch PhaseItemBatch) *Opaque2d {
	return &Opaque2d{PhaseItemBatch: batch, BatchSetKey: batchSetKey, Key: key, Representative: entity}
}

func (i *Opaque2d) Entity() EntityId                                { return i.Representative.Entity }
func (i *Opaque2d) MainEntity() EntityId                            { return i.Representative.MainEntity }
func (i *Opaque2d) DrawFunction() DrawFunctionId                    { return i.Key.DrawFunction }
func (i *Opaque2d) CachedPipeline() resource.CachedRenderPipelineId { return i.Key.Pipeline }
func (i *Opaque2d) Asset() AssetId                                  { return i.Key.Asset }
func (i *Opaque2d) MaterialBindGroup() BindGroupKey                 { return i.Key.MaterialBindGroup }
func (i *Opaque2d) Indexed() bool                                   { return i.BatchSetKey.Indexed }

type AlphaMask2d struct {
	PhaseItemBatch
	BatchSetKey    BatchSetKey2d
	Key            AlphaMask2dBinKey
	Representative BinnedEntity
}

func newAlphaMask2d(batchSetKey BatchSetKey2d, key AlphaMask2dBinKey, entity BinnedEntity, batch PhaseItemBatch) *AlphaMask2d {
	return &AlphaMask2d{PhaseItemBatch: batch, BatchSetKey: batchSetKey, Key: key, Representative: entity}
}

func (i *AlphaMask2d) Entity() EntityId                                { return i.Representative.Entity }
func (i *AlphaMask2d) MainEntity() EntityId                            { return i.Representative.MainEntity }
func (i *AlphaMask2d) DrawFunction() DrawFunctionId                    { return i.Key.DrawFunction }
func (i *AlphaMask2d) CachedPipeline() resource.CachedRenderPipelineId { return i.Key.Pipeline }
func (i *AlphaMask2d) Asset() AssetId                                  { return i.Key.Asset }
func (i *AlphaMask2d) MaterialBindGroup() BindGroupKey                 { return i.Key.MaterialBindGroup }
func (i *AlphaMask2d) Indexed() bool                                   { return i.BatchSetKey.Indexed }

// Transparent2d is sorted back to front by its view-space z.
type Transparent2d struct {
	PhaseItemBatch
	RenderEntity      EntityId
	SourceEntity      EntityId
	Depth             float32
	Pipeline          resource.CachedRenderPipelineId
	DrawFn            DrawFunctionId
	MeshAsset         AssetId
	MaterialBindGroup BindGroupKey
	IndexedMesh       bool
	// Batchable items may merge with equal neighbours.
	Batchable bool
}

func (i *Transparent2d) Entity() EntityId                                { return i.RenderEntity }
func (i *Transparent2d) MainEntity() EntityId                            { return i.SourceEntity }
func (i *Transparent2d) DrawFunction() DrawFunctionId                    { return i.DrawFn }
func (i *Transparent2d) CachedPipeline() resource.CachedRenderPipelineId { return i.Pipeline }
func (i *Transparent2d) SortKey() float32                                { return i.Depth }
func (i *Transparent2d) Asset() AssetId                                  { return i.MeshAsset }
func (i *Transparent2d) Indexed() bool                                   { return i.IndexedMesh }

// canMergeTransparent2d allows merging draws that bind exactly the same
// state.
func canMergeTransparent2d(prev, next *Transparent2d) bool {
	return prev.Batchable && next.Batchable &&
		prev.Pipeline == next.Pipeline &&
		prev.DrawFn == next.DrawFn &&
		prev.MeshAsset == next.MeshAsset &&
		prev.MaterialBindGroup == next.MaterialBindGroup
}

// Mesh2dPhaseItem is what the mesh draw commands need from any 2D item.
type Mesh2dPhaseItem interface {
	CachedRenderPipelinePhaseItem
	Asset() AssetId
	Indexed() bool
}

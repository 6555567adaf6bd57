package gekko

import (
	"cmp"
	"fmt"

	"github.com/gekko3d/gekko-render/render/resource"
)

// NoEntity marks an absent entity reference.
const NoEntity = ^EntityId(0)

type DrawFunctionId uint32

// InstanceRange is a half-open range of instance indices.
type InstanceRange struct {
	Start uint32
	End   uint32
}

func (r InstanceRange) Len() uint32 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

func (r InstanceRange) IsEmpty() bool { return r.Len() == 0 }

func (r InstanceRange) String() string { return fmt.Sprintf("%d..%d", r.Start, r.End) }

// ExtraIndex is nil, a DynamicOffset, or an IndirectParametersIndex.
type ExtraIndex interface {
	isExtraIndex()
}

// DynamicOffset is the offset of the item's data inside a dynamic uniform buffer.
type DynamicOffset uint32

// IndirectParametersIndex points at the indirect draw parameters of an item.
// InBatchSet is set when the item belongs to a multi-draw batch set.
type IndirectParametersIndex struct {
	Range         InstanceRange
	BatchSetIndex uint32
	InBatchSet    bool
}

func (DynamicOffset) isExtraIndex()           {}
func (IndirectParametersIndex) isExtraIndex() {}

// PhaseItemBatch holds the fields only the batching pass may write. Phase
// items embed it.
type PhaseItemBatch struct {
	batchRange InstanceRange
	extraIndex ExtraIndex
}

func NewPhaseItemBatch(batchRange InstanceRange, extraIndex ExtraIndex) PhaseItemBatch {
	return PhaseItemBatch{batchRange: batchRange, extraIndex: extraIndex}
}

func (b *PhaseItemBatch) BatchRange() InstanceRange { return b.batchRange }
func (b *PhaseItemBatch) ExtraIndex() ExtraIndex    { return b.extraIndex }
func (b *PhaseItemBatch) phaseBatch() *PhaseItemBatch {
	return b
}

// PhaseItem is one drawable unit queued for a view. Entity is the render
// entity and MainEntity the simulation entity it was extracted from.
type PhaseItem interface {
	Entity() EntityId
	MainEntity() EntityId
	DrawFunction() DrawFunctionId
	BatchRange() InstanceRange
	ExtraIndex() ExtraIndex
	phaseBatch() *PhaseItemBatch
}

// CachedRenderPipelinePhaseItem is implemented by items that know the
// pipeline they draw with.
type CachedRenderPipelinePhaseItem interface {
	PhaseItem
	CachedPipeline() resource.CachedRenderPipelineId
}

// SortedPhaseItem is ordered by SortKey every frame.
type SortedPhaseItem interface {
	PhaseItem
	SortKey() float32
}

// PhaseKey is a comparable key with a total order.
type PhaseKey[K any] interface {
	comparable
	Compare(other K) int
}

// BindGroupKey is an optional bind group id. The absent key orders first.
type BindGroupKey struct {
	Id    resource.BindGroupId
	Valid bool
}

func SomeBindGroup(id resource.BindGroupId) BindGroupKey {
	return BindGroupKey{Id: id, Valid: true}
}

func (k BindGroupKey) Compare(other BindGroupKey) int {
	if k.Valid != other.Valid {
		if !k.Valid {
			return -1
		}
		return 1
	}
	return cmp.Compare(k.Id, other.Id)
}

type BinnedRenderPhaseType uint8

const (
	// BatchableMesh entities sharing a bin are drawn with one instanced call.
	BatchableMesh BinnedRenderPhaseType = iota
	// UnbatchableMesh entities are binned but always drawn individually.
	UnbatchableMesh
	// NonMesh entities are drawn individually by custom draw functions.
	NonMesh
)

func (t BinnedRenderPhaseType) String() string {
	switch t {
	case BatchableMesh:
		return "BatchableMesh"
	case UnbatchableMesh:
		return "UnbatchableMesh"
	case NonMesh:
		return "NonMesh"
	}
	return fmt.Sprintf("BinnedRenderPhaseType(%d)", uint8(t))
}

type BinnedEntity struct {
	Entity     EntityId
	MainEntity EntityId
}

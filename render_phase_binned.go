package gekko

import (
	"slices"
)

// BinnedItemFactory builds the phase item for a prepared bin or individual
// entity. The batch must be embedded into the item as is.
type BinnedItemFactory[BSK, BK, I any] func(batchSetKey BSK, binKey BK, entity BinnedEntity, batch PhaseItemBatch) I

type binnedBin struct {
	entities []BinnedEntity
}

type binnedBatchSet[BK comparable] struct {
	bins map[BK]*binnedBin
	keys []BK
}

// binnedSets keeps the batch sets of one BinnedRenderPhaseType together
// with their keys in insertion order until sorted.
type binnedSets[BSK, BK comparable] struct {
	sets map[BSK]*binnedBatchSet[BK]
	keys []BSK
}

func (s *binnedSets[BSK, BK]) add(batchSetKey BSK, binKey BK, entity BinnedEntity) {
	if s.sets == nil {
		s.sets = make(map[BSK]*binnedBatchSet[BK])
	}
	set, ok := s.sets[batchSetKey]
	if !ok {
		set = &binnedBatchSet[BK]{bins: make(map[BK]*binnedBin)}
		s.sets[batchSetKey] = set
		s.keys = append(s.keys, batchSetKey)
	}
	bin, ok := set.bins[binKey]
	if !ok {
		bin = &binnedBin{}
		set.bins[binKey] = bin
		set.keys = append(set.keys, binKey)
	}
	bin.entities = append(bin.entities, entity)
}

func (s *binnedSets[BSK, BK]) clear() {
	clear(s.sets)
	s.keys = s.keys[:0]
}

// BinnedRenderPhase collects items keyed by (batch set key, bin key). It has
// no explicit sort key: the key order clusters draws by render state.
type BinnedRenderPhase[BSK PhaseKey[BSK], BK PhaseKey[BK], I PhaseItem] struct {
	newItem  BinnedItemFactory[BSK, BK, I]
	indirect bool

	batchable   binnedSets[BSK, BK]
	unbatchable binnedSets[BSK, BK]
	nonMesh     binnedSets[BSK, BK]

	entities  int
	sorted    bool
	items     []I
	instances []BinnedEntity
}

type BinnedRenderPhaseOption func(*binnedPhaseConfig)

type binnedPhaseConfig struct {
	indirect bool
}

// WithIndirectParameters makes prepared items carry an
// IndirectParametersIndex instead of no extra index.
func WithIndirectParameters() BinnedRenderPhaseOption {
	return func(c *binnedPhaseConfig) { c.indirect = true }
}

func NewBinnedRenderPhase[BSK PhaseKey[BSK], BK PhaseKey[BK], I PhaseItem](newItem BinnedItemFactory[BSK, BK, I], opts ...BinnedRenderPhaseOption) *BinnedRenderPhase[BSK, BK, I] {
	var cfg binnedPhaseConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &BinnedRenderPhase[BSK, BK, I]{
		newItem:  newItem,
		indirect: cfg.indirect,
	}
}

// Add bins an entity. Entities of the same bin keep their insertion order.
func (p *BinnedRenderPhase[BSK, BK, I]) Add(batchSetKey BSK, binKey BK, entity, mainEntity EntityId, phaseType BinnedRenderPhaseType) {
	e := BinnedEntity{Entity: entity, MainEntity: mainEntity}
	switch phaseType {
	case BatchableMesh:
		p.batchable.add(batchSetKey, binKey, e)
	case UnbatchableMesh:
		p.unbatchable.add(batchSetKey, binKey, e)
	default:
		p.nonMesh.add(batchSetKey, binKey, e)
	}
	p.entities++
	p.sorted = false
}

// Sort orders batch sets and, within each set, bins by their keys.
func (p *BinnedRenderPhase[BSK, BK, I]) Sort() {
	for _, s := range []*binnedSets[BSK, BK]{&p.batchable, &p.unbatchable, &p.nonMesh} {
		slices.SortFunc(s.keys, func(a, b BSK) int { return a.Compare(b) })
		for _, set := range s.sets {
			slices.SortFunc(set.keys, func(a, b BK) int { return a.Compare(b) })
		}
	}
	p.sorted = true
}

// PrepareBatches turns bins into phase items. Instance indices are handed
// out contiguously in draw order, and onInstance (optional) receives each
// assignment so that per-instance data can be written in the same order.
// Every batchable bin becomes one item spanning all its instances; other
// entities get one item each. It returns the number of instances.
func (p *BinnedRenderPhase[BSK, BK, I]) PrepareBatches(onInstance func(index uint32, entity BinnedEntity)) uint32 {
	if !p.sorted {
		p.Sort()
	}
	p.items = p.items[:0]
	p.instances = p.instances[:0]

	var next, drawIndex, batchSetIndex uint32
	emit := func(bsk BSK, bk BK, members []BinnedEntity, inBatchSet bool) {
		batchRange := InstanceRange{Start: next, End: next + uint32(len(members))}
		for _, e := range members {
			if onInstance != nil {
				onInstance(next, e)
			}
			p.instances = append(p.instances, e)
			next++
		}
		var extra ExtraIndex
		if p.indirect {
			extra = IndirectParametersIndex{
				Range:         InstanceRange{Start: drawIndex, End: drawIndex + 1},
				BatchSetIndex: batchSetIndex,
				InBatchSet:    inBatchSet,
			}
		}
		drawIndex++
		p.items = append(p.items, p.newItem(bsk, bk, members[0], NewPhaseItemBatch(batchRange, extra)))
	}

	for _, bsk := range p.batchable.keys {
		set := p.batchable.sets[bsk]
		for _, bk := range set.keys {
			emit(bsk, bk, set.bins[bk].entities, true)
		}
		batchSetIndex++
	}
	for _, s := range []*binnedSets[BSK, BK]{&p.unbatchable, &p.nonMesh} {
		for _, bsk := range s.keys {
			set := s.sets[bsk]
			for _, bk := range set.keys {
				for _, e := range set.bins[bk].entities {
					emit(bsk, bk, []BinnedEntity{e}, false)
				}
			}
		}
	}
	return next
}

// Items returns the prepared items in draw order.
func (p *BinnedRenderPhase[BSK, BK, I]) Items() []I {
	return p.items
}

// Instances returns the entity of every instance index handed out by the
// last PrepareBatches.
func (p *BinnedRenderPhase[BSK, BK, I]) Instances() []BinnedEntity {
	return p.instances
}

// Len is the number of entities added since the last Clear.
func (p *BinnedRenderPhase[BSK, BK, I]) Len() int {
	return p.entities
}

func (p *BinnedRenderPhase[BSK, BK, I]) IsEmpty() bool {
	return p.entities == 0
}

// BinCount is the number of distinct batchable bins.
func (p *BinnedRenderPhase[BSK, BK, I]) BinCount() int {
	n := 0
	for _, set := range p.batchable.sets {
		n += len(set.bins)
	}
	return n
}

func (p *BinnedRenderPhase[BSK, BK, I]) Clear() {
	p.batchable.clear()
	p.unbatchable.clear()
	p.nonMesh.clear()
	p.items = p.items[:0]
	p.instances = p.instances[:0]
	p.entities = 0
	p.sorted = false
}

// Render replays the prepared items. A failing item does not stop the
// others; all failures are returned joined.
func (p *BinnedRenderPhase[BSK, BK, I]) Render(pass *TrackedRenderPass, app *App, view EntityId) error {
	return renderPhaseItems(pass, app, view, p.items)
}

// ViewBinnedRenderPhases maps each live view to its binned phase.
type ViewBinnedRenderPhases[BSK PhaseKey[BSK], BK PhaseKey[BK], I PhaseItem] struct {
	newItem BinnedItemFactory[BSK, BK, I]
	opts    []BinnedRenderPhaseOption
	phases  map[RetainedViewEntity]*BinnedRenderPhase[BSK, BK, I]
}

func NewViewBinnedRenderPhases[BSK PhaseKey[BSK], BK PhaseKey[BK], I PhaseItem](newItem BinnedItemFactory[BSK, BK, I], opts ...BinnedRenderPhaseOption) *ViewBinnedRenderPhases[BSK, BK, I] {
	return &ViewBinnedRenderPhases[BSK, BK, I]{
		newItem: newItem,
		opts:    opts,
		phases:  make(map[RetainedViewEntity]*BinnedRenderPhase[BSK, BK, I]),
	}
}

// InsertOrClear returns an empty phase for view, reusing last frame's one.
func (v *ViewBinnedRenderPhases[BSK, BK, I]) InsertOrClear(view RetainedViewEntity) *BinnedRenderPhase[BSK, BK, I] {
	if phase, ok := v.phases[view]; ok {
		phase.Clear()
		return phase
	}
	phase := NewBinnedRenderPhase(v.newItem, v.opts...)
	v.phases[view] = phase
	return phase
}

func (v *ViewBinnedRenderPhases[BSK, BK, I]) Get(view RetainedViewEntity) (*BinnedRenderPhase[BSK, BK, I], bool) {
	phase, ok := v.phases[view]
	return phase, ok
}

// Retain drops the phases of views that are not live.
func (v *ViewBinnedRenderPhases[BSK, BK, I]) Retain(live set[RetainedViewEntity]) {
	for view := range v.phases {
		if _, ok := live[view]; !ok {
			delete(v.phases, view)
		}
	}
}

func (v *ViewBinnedRenderPhases[BSK, BK, I]) Len() int {
	return len(v.phases)
}

// Views returns the views that have a phase, in key order.
func (v *ViewBinnedRenderPhases[BSK, BK, I]) Views() []RetainedViewEntity {
	return sortedViews(v.phases)
}

// Each visits phases in view key order.
func (v *ViewBinnedRenderPhases[BSK, BK, I]) Each(fn func(view RetainedViewEntity, phase *BinnedRenderPhase[BSK, BK, I])) {
	for _, view := range v.Views() {
		fn(view, v.phases[view])
	}
}

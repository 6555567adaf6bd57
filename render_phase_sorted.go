package gekko

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
)

// SortedRenderPhase orders items by SortKey every frame. The sort is stable
// so equal keys keep their queue order. NaN keys order first.
type SortedRenderPhase[I SortedPhaseItem] struct {
	items      []I
	instances  []BinnedEntity
	descending bool
}

func NewSortedRenderPhase[I SortedPhaseItem]() *SortedRenderPhase[I] {
	return &SortedRenderPhase[I]{}
}

// NewDescendingSortedRenderPhase renders the largest key first.
func NewDescendingSortedRenderPhase[I SortedPhaseItem]() *SortedRenderPhase[I] {
	return &SortedRenderPhase[I]{descending: true}
}

func (p *SortedRenderPhase[I]) Add(item I) {
	p.items = append(p.items, item)
}

func (p *SortedRenderPhase[I]) Sort() {
	slices.SortStableFunc(p.items, func(a, b I) int {
		return compareSortKeys(a.SortKey(), b.SortKey(), p.descending)
	})
}

// compareSortKeys puts NaN keys first in both directions; cmp.Compare
// already orders NaN below every number.
func compareSortKeys(a, b float32, descending bool) int {
	if descending && !math.IsNaN(float64(a)) && !math.IsNaN(float64(b)) {
		return cmp.Compare(b, a)
	}
	return cmp.Compare(a, b)
}

// AssignInstances gives the items consecutive single-instance ranges in
// their current order. It returns the number of instances.
func (p *SortedRenderPhase[I]) AssignInstances() uint32 {
	p.instances = p.instances[:0]
	for i, item := range p.items {
		batch := item.phaseBatch()
		batch.batchRange = InstanceRange{Start: uint32(i), End: uint32(i) + 1}
		batch.extraIndex = nil
		p.instances = append(p.instances, BinnedEntity{Entity: item.Entity(), MainEntity: item.MainEntity()})
	}
	return uint32(len(p.items))
}

// Instances returns the entity of every instance index handed out by the
// last AssignInstances.
func (p *SortedRenderPhase[I]) Instances() []BinnedEntity {
	return p.instances
}

// Batch merges each item into its predecessor when canMerge agrees and the
// two instance ranges are contiguous. Order is never changed.
func (p *SortedRenderPhase[I]) Batch(canMerge func(prev, next I) bool) {
	if len(p.items) < 2 {
		return
	}
	merged := p.items[:1]
	for _, item := range p.items[1:] {
		last := merged[len(merged)-1]
		lastBatch := last.phaseBatch()
		nextRange := item.BatchRange()
		if lastBatch.batchRange.End == nextRange.Start && canMerge(last, item) {
			lastBatch.batchRange.End = nextRange.End
			continue
		}
		merged = append(merged, item)
	}
	clear(p.items[len(merged):])
	p.items = merged
}

// Items returns the items in render order once sorted.
func (p *SortedRenderPhase[I]) Items() []I {
	return p.items
}

func (p *SortedRenderPhase[I]) Len() int {
	return len(p.items)
}

func (p *SortedRenderPhase[I]) IsEmpty() bool {
	return len(p.items) == 0
}

func (p *SortedRenderPhase[I]) Clear() {
	clear(p.items)
	p.items = p.items[:0]
	p.instances = p.instances[:0]
}

func (p *SortedRenderPhase[I]) Render(pass *TrackedRenderPass, app *App, view EntityId) error {
	return renderPhaseItems(pass, app, view, p.items)
}

// RenderRange replays items[start:end], clamped to the phase length.
func (p *SortedRenderPhase[I]) RenderRange(pass *TrackedRenderPass, app *App, view EntityId, start, end int) error {
	end = min(end, len(p.items))
	start = min(max(start, 0), end)
	return renderPhaseItems(pass, app, view, p.items[start:end])
}

// ViewSortedRenderPhases maps each live view to its sorted phase.
type ViewSortedRenderPhases[I SortedPhaseItem] struct {
	descending bool
	phases     map[RetainedViewEntity]*SortedRenderPhase[I]
}

func NewViewSortedRenderPhases[I SortedPhaseItem]() *ViewSortedRenderPhases[I] {
	return &ViewSortedRenderPhases[I]{phases: make(map[RetainedViewEntity]*SortedRenderPhase[I])}
}

func NewDescendingViewSortedRenderPhases[I SortedPhaseItem]() *ViewSortedRenderPhases[I] {
	v := NewViewSortedRenderPhases[I]()
	v.descending = true
	return v
}

func (v *ViewSortedRenderPhases[I]) InsertOrClear(view RetainedViewEntity) *SortedRenderPhase[I] {
	if phase, ok := v.phases[view]; ok {
		phase.Clear()
		return phase
	}
	phase := &SortedRenderPhase[I]{descending: v.descending}
	v.phases[view] = phase
	return phase
}

func (v *ViewSortedRenderPhases[I]) Get(view RetainedViewEntity) (*SortedRenderPhase[I], bool) {
	phase, ok := v.phases[view]
	return phase, ok
}

func (v *ViewSortedRenderPhases[I]) Retain(live set[RetainedViewEntity]) {
	for view := range v.phases {
		if _, ok := live[view]; !ok {
			delete(v.phases, view)
		}
	}
}

func (v *ViewSortedRenderPhases[I]) Len() int {
	return len(v.phases)
}

func (v *ViewSortedRenderPhases[I]) Views() []RetainedViewEntity {
	return sortedViews(v.phases)
}

func (v *ViewSortedRenderPhases[I]) Each(fn func(view RetainedViewEntity, phase *SortedRenderPhase[I])) {
	for _, view := range v.Views() {
		fn(view, v.phases[view])
	}
}

func sortedViews[P any](phases map[RetainedViewEntity]P) []RetainedViewEntity {
	views := make([]RetainedViewEntity, 0, len(phases))
	for view := range phases {
		views = append(views, view)
	}
	slices.SortFunc(views, RetainedViewEntity.Compare)
	return views
}

var errNoDrawFunctions = errors.New("render phase: no draw functions registered")

func renderPhaseItems[I PhaseItem](pass *TrackedRenderPass, app *App, view EntityId, items []I) error {
	if len(items) == 0 {
		return nil
	}
	draws, ok := GetResource[DrawFunctions[I]](app)
	if !ok {
		return fmt.Errorf("%w for %s", errNoDrawFunctions, reflect.TypeFor[I]())
	}
	draws.Prepare(app)

	var errs []error
	for _, item := range items {
		draw, ok := draws.Get(item.DrawFunction())
		if !ok {
			errs = append(errs, fmt.Errorf("entity %d: unknown draw function %d", item.Entity(), item.DrawFunction()))
			continue
		}
		if err := draw.Draw(app, pass, view, item); err != nil {
			errs = append(errs, fmt.Errorf("entity %d: %w", item.Entity(), err))
		}
	}
	return errors.Join(errs...)
}

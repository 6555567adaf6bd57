package gekko

import (
	"cmp"
	"reflect"
	"slices"
)

// Queries visit matching entities in ascending EntityId order. A component
// type passed in optionals may be missing, in which case the callback
// receives nil for it. Returning false from the callback stops the query.
type Query1[A any] struct{ ecs *Ecs }
type Query2[A, B any] struct{ ecs *Ecs }
type Query3[A, B, C any] struct{ ecs *Ecs }
type Query4[A, B, C, D any] struct{ ecs *Ecs }

func MakeQuery1[A any](cmd *Commands) Query1[A]             { return Query1[A]{ecs: cmd.app.ecs} }
func MakeQuery2[A, B any](cmd *Commands) Query2[A, B]       { return Query2[A, B]{ecs: cmd.app.ecs} }
func MakeQuery3[A, B, C any](cmd *Commands) Query3[A, B, C] { return Query3[A, B, C]{ecs: cmd.app.ecs} }
func MakeQuery4[A, B, C, D any](cmd *Commands) Query4[A, B, C, D] {
	return Query4[A, B, C, D]{ecs: cmd.app.ecs}
}

type column[T any] struct {
	data []T
}

func (c column[T]) at(r row) *T {
	if c.data == nil {
		return nil
	}
	return &c.data[r]
}

// columnOf returns the component slice of T in arch. ok is false when the
// archetype lacks T and T is not optional.
func columnOf[T any](ecs *Ecs, arch *archetype, opt set[componentId]) (column[T], bool) {
	id := ecs.getComponentId(reflect.TypeFor[T]())
	if data, ok := arch.componentData[id]; ok {
		return column[T]{data: data.([]T)}, true
	}
	if _, ok := opt[id]; ok {
		return column[T]{}, true
	}
	return column[T]{}, false
}

type queryMatch struct {
	arch   *archetype
	entity EntityId
	row    row
}

func (ecs *Ecs) match(accept func(arch *archetype) bool) []queryMatch {
	var res []queryMatch
	for _, arch := range ecs.archetypes {
		if len(arch.entities) == 0 || !accept(arch) {
			continue
		}
		for entityId, row := range arch.entities {
			res = append(res, queryMatch{arch: arch, entity: entityId, row: row})
		}
	}
	slices.SortFunc(res, func(a, b queryMatch) int { return cmp.Compare(a.entity, b.entity) })
	return res
}

func identifyOptionals(ecs *Ecs, components ...any) set[componentId] {
	res := make(set[componentId])
	for _, c := range components {
		res[ecs.getComponentId(componentType(c))] = struct{}{}
	}
	return res
}

func (q Query1[A]) Map(m func(EntityId, *A) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	type cols struct{ a column[A] }
	byArch := map[*archetype]cols{}

	matches := q.ecs.match(func(arch *archetype) bool {
		a, okA := columnOf[A](q.ecs, arch, opt)
		byArch[arch] = cols{a}
		return okA
	})
	for _, mt := range matches {
		c := byArch[mt.arch]
		if !m(mt.entity, c.a.at(mt.row)) {
			return
		}
	}
}

func (q Query2[A, B]) Map(m func(EntityId, *A, *B) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	type cols struct {
		a column[A]
		b column[B]
	}
	byArch := map[*archetype]cols{}

	matches := q.ecs.match(func(arch *archetype) bool {
		a, okA := columnOf[A](q.ecs, arch, opt)
		b, okB := columnOf[B](q.ecs, arch, opt)
		byArch[arch] = cols{a, b}
		return okA && okB
	})
	for _, mt := range matches {
		c := byArch[mt.arch]
		if !m(mt.entity, c.a.at(mt.row), c.b.at(mt.row)) {
			return
		}
	}
}

func (q Query3[A, B, C]) Map(m func(EntityId, *A, *B, *C) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	type cols struct {
		a column[A]
		b column[B]
		c column[C]
	}
	byArch := map[*archetype]cols{}

	matches := q.ecs.match(func(arch *archetype) bool {
		a, okA := columnOf[A](q.ecs, arch, opt)
		b, okB := columnOf[B](q.ecs, arch, opt)
		c, okC := columnOf[C](q.ecs, arch, opt)
		byArch[arch] = cols{a, b, c}
		return okA && okB && okC
	})
	for _, mt := range matches {
		c := byArch[mt.arch]
		if !m(mt.entity, c.a.at(mt.row), c.b.at(mt.row), c.c.at(mt.row)) {
			return
		}
	}
}

func (q Query4[A, B, C, D]) Map(m func(EntityId, *A, *B, *C, *D) bool, optionals ...any) {
	opt := identifyOptionals(q.ecs, optionals...)
	type cols struct {
		a column[A]
		b column[B]
		c column[C]
		d column[D]
	}
	byArch := map[*archetype]cols{}

	matches := q.ecs.match(func(arch *archetype) bool {
		a, okA := columnOf[A](q.ecs, arch, opt)
		b, okB := columnOf[B](q.ecs, arch, opt)
		c, okC := columnOf[C](q.ecs, arch, opt)
		d, okD := columnOf[D](q.ecs, arch, opt)
		byArch[arch] = cols{a, b, c, d}
		return okA && okB && okC && okD
	})
	for _, mt := range matches {
		c := byArch[mt.arch]
		if !m(mt.entity, c.a.at(mt.row), c.b.at(mt.row), c.c.at(mt.row), c.d.at(mt.row)) {
			return
		}
	}
}

// Get1 fetches a single component of an entity.
func Get1[A any](cmd *Commands, entityId EntityId) (*A, bool) {
	ecs := cmd.app.ecs
	archId, ok := ecs.entityIndex[entityId]
	if !ok {
		return nil, false
	}
	arch := ecs.archetypes[archId]
	a, ok := columnOf[A](ecs, arch, nil)
	if !ok {
		return nil, false
	}
	return a.at(arch.entities[entityId]), true
}

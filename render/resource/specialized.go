package resource

import (
	"sync"
)

// RenderPipelineSpecializer builds a pipeline descriptor for a key. Keys must
// fully determine the descriptor.
type RenderPipelineSpecializer[K comparable] interface {
	Specialize(key K) RenderPipelineDescriptor
}

// SpecializedRenderPipelines memoizes key -> pipeline id so that each
// distinct key is queued in the cache exactly once.
type SpecializedRenderPipelines[K comparable] struct {
	mu    sync.Mutex
	cache map[K]CachedRenderPipelineId
}

func NewSpecializedRenderPipelines[K comparable]() *SpecializedRenderPipelines[K] {
	return &SpecializedRenderPipelines[K]{cache: make(map[K]CachedRenderPipelineId)}
}

func (s *SpecializedRenderPipelines[K]) Specialize(cache *PipelineCache, specializer RenderPipelineSpecializer[K], key K) CachedRenderPipelineId {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.cache[key]; ok {
		return id
	}
	id := cache.QueueRenderPipeline(specializer.Specialize(key))
	s.cache[key] = id
	return id
}

func (s *SpecializedRenderPipelines[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

package resource

import (
	"fmt"
	"sync"
)

type set[T comparable] = map[T]struct{}

type shaderData struct {
	pipelines  set[CachedPipelineId]
	processed  map[string]*ShaderModule
	dependents set[ShaderId]
}

func newShaderData() *shaderData {
	return &shaderData{
		pipelines:  make(set[CachedPipelineId]),
		processed:  make(map[string]*ShaderModule),
		dependents: make(set[ShaderId]),
	}
}

// ShaderCache turns shaders into device modules, one per distinct set of
// defines, and remembers which pipelines used which shaders so that a
// changed shader can invalidate them.
type ShaderCache struct {
	mu              sync.Mutex
	shaders         map[ShaderId]*Shader
	importPaths     map[string]ShaderId
	data            map[ShaderId]*shaderData
	waitingOnImport map[string]set[ShaderId]
	globalDefs      []ShaderDefVal
	validator       ShaderValidator
}

func NewShaderCache(validator ShaderValidator, globalDefs ...ShaderDefVal) *ShaderCache {
	if validator == nil {
		validator = NopValidator{}
	}
	return &ShaderCache{
		shaders:         make(map[ShaderId]*Shader),
		importPaths:     make(map[string]ShaderId),
		data:            make(map[ShaderId]*shaderData),
		waitingOnImport: make(map[string]set[ShaderId]),
		globalDefs:      globalDefs,
		validator:       validator,
	}
}

func (c *ShaderCache) dataFor(id ShaderId) *shaderData {
	data, ok := c.data[id]
	if !ok {
		data = newShaderData()
		c.data[id] = data
	}
	return data
}

// Get returns the module for shader id compiled with defs, recording
// pipeline as a dependent of the shader and of everything it imports.
func (c *ShaderCache) Get(device RenderDevice, pipeline CachedPipelineId, id ShaderId, defs []ShaderDefVal) (*ShaderModule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.dataFor(id)
	data.pipelines[pipeline] = struct{}{}

	shader, ok := c.shaders[id]
	if !ok {
		return nil, &PipelineCacheError{Kind: ErrorKindShaderNotLoaded, Shader: id}
	}

	if missing, ok := c.missingImport(id, shader, make(set[ShaderId])); ok {
		return nil, &PipelineCacheError{Kind: ErrorKindShaderImportNotYetAvailable, Shader: id, Import: missing}
	}

	defSet := newShaderDefSet(c.globalDefs, shader.ShaderDefs, defs)
	key := defSet.key()
	if module, ok := data.processed[key]; ok {
		return module, nil
	}

	source, err := c.compose(id, shader, defSet, make(set[ShaderId]))
	if err != nil {
		return nil, &PipelineCacheError{Kind: ErrorKindProcessShader, Shader: id, Err: err}
	}
	if err := c.validator.Validate(shader.Path, source); err != nil {
		return nil, &PipelineCacheError{Kind: ErrorKindProcessShader, Shader: id, Err: err}
	}

	module, err := device.CreateShaderModule(ShaderModuleDescriptor{Label: shader.Path, WGSL: source})
	if err != nil {
		return nil, &PipelineCacheError{Kind: ErrorKindCreateShaderModule, Shader: id, Err: err}
	}
	data.processed[key] = module
	return module, nil
}

// missingImport walks the import graph and reports the first unregistered
// path. The importing shader is parked until that path is set.
func (c *ShaderCache) missingImport(id ShaderId, shader *Shader, visited set[ShaderId]) (string, bool) {
	if _, seen := visited[id]; seen {
		return "", false
	}
	visited[id] = struct{}{}

	for _, path := range shader.Imports {
		importId, ok := c.importPaths[path]
		if !ok {
			waiting, ok := c.waitingOnImport[path]
			if !ok {
				waiting = make(set[ShaderId])
				c.waitingOnImport[path] = waiting
			}
			waiting[id] = struct{}{}
			return path, true
		}
		c.dataFor(importId).dependents[id] = struct{}{}
		if missing, ok := c.missingImport(importId, c.shaders[importId], visited); ok {
			return missing, true
		}
	}
	return "", false
}

func (c *ShaderCache) compose(id ShaderId, shader *Shader, defs shaderDefSet, included set[ShaderId]) (string, error) {
	included[id] = struct{}{}
	return preprocess(shader.Source, defs, func(path string) (string, error) {
		importId, ok := c.importPaths[path]
		if !ok {
			return "", fmt.Errorf("unresolved import %q", path)
		}
		if _, done := included[importId]; done {
			return "", nil
		}
		return c.compose(importId, c.shaders[importId], defs, included)
	})
}

// Set registers or replaces a shader and returns the pipelines that must be
// re-queued.
func (c *ShaderCache) Set(id ShaderId, shader *Shader) []CachedPipelineId {
	c.mu.Lock()
	defer c.mu.Unlock()

	pipelines := c.clear(id)

	if old, ok := c.shaders[id]; ok && old.ImportPath != "" && old.ImportPath != shader.ImportPath {
		delete(c.importPaths, old.ImportPath)
	}
	c.shaders[id] = shader

	if shader.ImportPath != "" {
		c.importPaths[shader.ImportPath] = id
		for waiting := range c.waitingOnImport[shader.ImportPath] {
			pipelines = append(pipelines, c.clear(waiting)...)
		}
		delete(c.waitingOnImport, shader.ImportPath)
	}
	return dedupPipelineIds(pipelines)
}

// Remove drops a shader and returns the pipelines that depended on it.
func (c *ShaderCache) Remove(id ShaderId) []CachedPipelineId {
	c.mu.Lock()
	defer c.mu.Unlock()

	pipelines := c.clear(id)
	if shader, ok := c.shaders[id]; ok && shader.ImportPath != "" {
		delete(c.importPaths, shader.ImportPath)
	}
	delete(c.shaders, id)
	delete(c.data, id)
	return dedupPipelineIds(pipelines)
}

func (c *ShaderCache) Contains(id ShaderId) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.shaders[id]
	return ok
}

// clear forgets processed variants of id and of every shader importing it,
// collecting their pipelines.
func (c *ShaderCache) clear(id ShaderId) []CachedPipelineId {
	var pipelines []CachedPipelineId
	visited := make(set[ShaderId])
	stack := []ShaderId{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}

		data, ok := c.data[current]
		if !ok {
			continue
		}
		clear(data.processed)
		for pipeline := range data.pipelines {
			pipelines = append(pipelines, pipeline)
		}
		for dependent := range data.dependents {
			stack = append(stack, dependent)
		}
	}
	return pipelines
}

func dedupPipelineIds(ids []CachedPipelineId) []CachedPipelineId {
	seen := make(set[CachedPipelineId], len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

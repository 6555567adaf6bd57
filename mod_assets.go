package gekko

import (
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"

	"github.com/gekko3d/gekko-render/render/resource"
)

type AssetId string

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}

type AssetEventKind uint8

const (
	AssetAdded AssetEventKind = iota
	AssetModified
	AssetRemoved
)

func (k AssetEventKind) String() string {
	switch k {
	case AssetAdded:
		return "Added"
	case AssetModified:
		return "Modified"
	case AssetRemoved:
		return "Removed"
	}
	return fmt.Sprintf("AssetEventKind(%d)", uint8(k))
}

type AssetEvent struct {
	Kind AssetEventKind
	Id   AssetId
}

// Assets stores one asset type and records change events until drained.
type Assets[T any] struct {
	items  map[AssetId]T
	events []AssetEvent
}

func NewAssets[T any]() *Assets[T] {
	return &Assets[T]{items: make(map[AssetId]T)}
}

func (a *Assets[T]) Add(asset T) AssetId {
	id := makeAssetId()
	a.Insert(id, asset)
	return id
}

// Insert stores asset under id, reporting Modified when id was present.
func (a *Assets[T]) Insert(id AssetId, asset T) {
	kind := AssetAdded
	if _, ok := a.items[id]; ok {
		kind = AssetModified
	}
	a.items[id] = asset
	a.events = append(a.events, AssetEvent{Kind: kind, Id: id})
}

func (a *Assets[T]) Get(id AssetId) (T, bool) {
	asset, ok := a.items[id]
	return asset, ok
}

func (a *Assets[T]) Remove(id AssetId) {
	if _, ok := a.items[id]; !ok {
		return
	}
	delete(a.items, id)
	a.events = append(a.events, AssetEvent{Kind: AssetRemoved, Id: id})
}

func (a *Assets[T]) Len() int {
	return len(a.items)
}

// Ids returns every stored id in lexical order.
func (a *Assets[T]) Ids() []AssetId {
	ids := make([]AssetId, 0, len(a.items))
	for id := range a.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DrainEvents returns the events recorded since the last drain.
func (a *Assets[T]) DrainEvents() []AssetEvent {
	events := a.events
	a.events = nil
	return events
}

// ShaderSource is a WGSL shader as loaded from disk or embedded.
type ShaderSource struct {
	Path   string
	Source string
}

// AssetServer holds the render assets of the main world.
type AssetServer struct {
	Shaders *Assets[ShaderSource]
	Meshes  *Assets[Mesh2dData]
}

func NewAssetServer() *AssetServer {
	return &AssetServer{
		Shaders: NewAssets[ShaderSource](),
		Meshes:  NewAssets[Mesh2dData](),
	}
}

// AddShader registers WGSL source and returns the shader id pipelines use.
func (server *AssetServer) AddShader(path string, source string) resource.ShaderId {
	return resource.ShaderId(server.Shaders.Add(ShaderSource{Path: path, Source: source}))
}

// SetShader inserts or replaces the shader with a known id.
func (server *AssetServer) SetShader(id resource.ShaderId, path string, source string) {
	server.Shaders.Insert(AssetId(id), ShaderSource{Path: path, Source: source})
}

func (server *AssetServer) RemoveShader(id resource.ShaderId) {
	server.Shaders.Remove(AssetId(id))
}

func (server *AssetServer) LoadShader(filename string) (resource.ShaderId, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("assets: load shader: %w", err)
	}
	return server.AddShader(filename, string(data)), nil
}

// ReloadShader reads filename again into an existing shader id.
func (server *AssetServer) ReloadShader(id resource.ShaderId, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("assets: reload shader: %w", err)
	}
	server.SetShader(id, filename, string(data))
	return nil
}

func (server *AssetServer) AddMesh(mesh Mesh2dData) AssetId {
	return server.Meshes.Add(mesh)
}

type AssetServerModule struct{}

func (AssetServerModule) Install(app *App, cmd *Commands) {
	if _, ok := GetResource[AssetServer](app); ok {
		return
	}
	app.addResources(NewAssetServer())
}

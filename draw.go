package gekko

import (
	"errors"
	"fmt"
	"sync"
)

// Draw issues the GPU commands of one phase item.
type Draw[P PhaseItem] interface {
	// Prepare runs once per phase render, before any item is drawn.
	Prepare(app *App)
	Draw(app *App, pass *TrackedRenderPass, view EntityId, item P) error
}

type DrawErrorKind uint8

const (
	// RenderCommandFailure is a command that could not draw its item.
	RenderCommandFailure DrawErrorKind = iota
	// InvalidViewQuery is a view that exists but lacks the data a command
	// needs. It points at a misconfigured command.
	InvalidViewQuery
	// ViewEntityNotFound is a view that is gone, usually despawned mid-frame.
	ViewEntityNotFound
)

func (k DrawErrorKind) String() string {
	switch k {
	case RenderCommandFailure:
		return "RenderCommandFailure"
	case InvalidViewQuery:
		return "InvalidViewQuery"
	case ViewEntityNotFound:
		return "ViewEntityNotFound"
	}
	return fmt.Sprintf("DrawErrorKind(%d)", uint8(k))
}

type DrawError struct {
	Kind   DrawErrorKind
	Reason string
	View   EntityId
}

func (e *DrawError) Error() string {
	switch e.Kind {
	case RenderCommandFailure:
		return fmt.Sprintf("render command failed: %s", e.Reason)
	case ViewEntityNotFound:
		return fmt.Sprintf("view entity %d not found", e.View)
	default:
		if e.Reason != "" {
			return fmt.Sprintf("invalid view query for view %d: %s", e.View, e.Reason)
		}
		return fmt.Sprintf("invalid view query for view %d", e.View)
	}
}

// Is matches any DrawError of the same kind.
func (e *DrawError) Is(target error) bool {
	var other *DrawError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrRenderCommandFailure = &DrawError{Kind: RenderCommandFailure}
	ErrInvalidViewQuery     = &DrawError{Kind: InvalidViewQuery}
	ErrViewEntityNotFound   = &DrawError{Kind: ViewEntityNotFound}
)

// DrawFunctions is the registry of draw behaviors for one phase item type.
// Ids are dense and never reused. It is written at setup and read while
// rendering.
type DrawFunctions[P PhaseItem] struct {
	mu    sync.RWMutex
	draws []Draw[P]
	ids   map[string]DrawFunctionId
}

func NewDrawFunctions[P PhaseItem]() *DrawFunctions[P] {
	return &DrawFunctions[P]{ids: make(map[string]DrawFunctionId)}
}

// Add registers draw under token. Adding an already registered token keeps
// the first registration and returns its id.
func (d *DrawFunctions[P]) Add(token string, draw Draw[P]) DrawFunctionId {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.ids[token]; ok {
		return id
	}
	id := DrawFunctionId(len(d.draws))
	d.draws = append(d.draws, draw)
	d.ids[token] = id
	return id
}

func (d *DrawFunctions[P]) Id(token string) (DrawFunctionId, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.ids[token]
	return id, ok
}

// MustId is Id for tokens registered at setup.
func (d *DrawFunctions[P]) MustId(token string) DrawFunctionId {
	id, ok := d.Id(token)
	if !ok {
		panic(fmt.Sprintf("draw function %q is not registered", token))
	}
	return id
}

func (d *DrawFunctions[P]) Get(id DrawFunctionId) (Draw[P], bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.draws) {
		return nil, false
	}
	return d.draws[id], true
}

func (d *DrawFunctions[P]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.draws)
}

func (d *DrawFunctions[P]) Prepare(app *App) {
	d.mu.RLock()
	draws := d.draws
	d.mu.RUnlock()
	for _, draw := range draws {
		draw.Prepare(app)
	}
}

package gekko

import (
	"errors"
	"fmt"

	"github.com/gekko3d/gekko-render/render/resource"
)

type renderCommandOutcome uint8

const (
	renderCommandSuccess renderCommandOutcome = iota
	renderCommandSkip
	renderCommandFailure
)

// RenderCommandResult is Success, Skip, or a Failure with a reason.
type RenderCommandResult struct {
	outcome renderCommandOutcome
	reason  string
}

var (
	Success = RenderCommandResult{outcome: renderCommandSuccess}
	// Skip stops the remaining commands of the item without an error.
	Skip = RenderCommandResult{outcome: renderCommandSkip}
)

func Failure(reason string) RenderCommandResult {
	return RenderCommandResult{outcome: renderCommandFailure, reason: reason}
}

func Failuref(format string, args ...any) RenderCommandResult {
	return Failure(fmt.Sprintf(format, args...))
}

func (r RenderCommandResult) IsSuccess() bool { return r.outcome == renderCommandSuccess }
func (r RenderCommandResult) IsSkip() bool    { return r.outcome == renderCommandSkip }
func (r RenderCommandResult) IsFailure() bool { return r.outcome == renderCommandFailure }
func (r RenderCommandResult) Reason() string  { return r.reason }

func (r RenderCommandResult) String() string {
	switch r.outcome {
	case renderCommandSuccess:
		return "Success"
	case renderCommandSkip:
		return "Skip"
	}
	return fmt.Sprintf("Failure(%s)", r.reason)
}

// RenderCommand is one step of a draw function.
type RenderCommand[P PhaseItem] interface {
	Render(app *App, pass *TrackedRenderPass, view *ExtractedView, item P) RenderCommandResult
}

// RenderCommandFunc adapts a function to RenderCommand.
type RenderCommandFunc[P PhaseItem] func(app *App, pass *TrackedRenderPass, view *ExtractedView, item P) RenderCommandResult

func (f RenderCommandFunc[P]) Render(app *App, pass *TrackedRenderPass, view *ExtractedView, item P) RenderCommandResult {
	return f(app, pass, view, item)
}

// RenderCommandPreparer is implemented by commands that refresh cached
// state once per phase render.
type RenderCommandPreparer interface {
	Prepare(app *App)
}

type renderCommandDraw[P PhaseItem] struct {
	commands []RenderCommand[P]
}

// RenderCommands composes commands into a Draw. The view is looked up in
// ExtractedViews first. Commands then run in order until one skips or fails.
func RenderCommands[P PhaseItem](commands ...RenderCommand[P]) Draw[P] {
	return &renderCommandDraw[P]{commands: commands}
}

func (d *renderCommandDraw[P]) Prepare(app *App) {
	for _, c := range d.commands {
		if p, ok := c.(RenderCommandPreparer); ok {
			p.Prepare(app)
		}
	}
}

func (d *renderCommandDraw[P]) Draw(app *App, pass *TrackedRenderPass, view EntityId, item P) error {
	views, ok := GetResource[ExtractedViews](app)
	if !ok {
		return &DrawError{Kind: InvalidViewQuery, View: view, Reason: "no extracted views"}
	}
	extracted, ok := views.Get(view)
	if !ok {
		return &DrawError{Kind: ViewEntityNotFound, View: view}
	}

	for _, c := range d.commands {
		result := c.Render(app, pass, extracted, item)
		switch {
		case result.IsSkip():
			return nil
		case result.IsFailure():
			return &DrawError{Kind: RenderCommandFailure, View: view, Reason: result.reason}
		}
	}
	return nil
}

// SetItemPipeline binds the item's cached pipeline. Items whose pipeline is
// still compiling are skipped for this frame; a pipeline that failed for good
// fails the draw.
func SetItemPipeline[P CachedRenderPipelinePhaseItem]() RenderCommand[P] {
	return RenderCommandFunc[P](func(app *App, pass *TrackedRenderPass, _ *ExtractedView, item P) RenderCommandResult {
		cache, ok := GetPipelineCache(app)
		if !ok {
			return Failure("no pipeline cache")
		}
		pipeline := cache.GetRenderPipeline(item.CachedPipeline())
		if pipeline == nil {
			state := cache.GetRenderPipelineState(item.CachedPipeline())
			var cacheErr *resource.PipelineCacheError
			if state.Status == resource.PipelineErr && !(errors.As(state.Err, &cacheErr) && cacheErr.Retryable()) {
				return Failuref("pipeline %d: %v", item.CachedPipeline(), state.Err)
			}
			return Skip
		}
		pass.SetRenderPipeline(pipeline)
		return Success
	})
}

// SetViewBindGroup binds the view uniforms at index.
func SetViewBindGroup[P PhaseItem](index uint32) RenderCommand[P] {
	return RenderCommandFunc[P](func(_ *App, pass *TrackedRenderPass, view *ExtractedView, _ P) RenderCommandResult {
		if view.BindGroup == nil {
			return Failuref("view %d has no bind group", view.Entity)
		}
		pass.SetBindGroup(index, view.BindGroup, view.UniformOffsets())
		return Success
	})
}

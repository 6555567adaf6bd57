package gekko

import (
	"fmt"
	"slices"
)

type UpdateType int

const (
	FixedUpdate UpdateType = iota
	DynamicUpdate
)

type Stage struct {
	Name       string
	UpdateType UpdateType
}

// Main timeline stages.
var (
	Prelude    = Stage{Name: "Prelude", UpdateType: DynamicUpdate}
	PreUpdate  = Stage{Name: "PreUpdate", UpdateType: DynamicUpdate}
	Update     = Stage{Name: "Update", UpdateType: DynamicUpdate}
	PostUpdate = Stage{Name: "PostUpdate", UpdateType: DynamicUpdate}
)

// Render timeline stages. Each one happens-before the next within a frame.
var (
	Extract     = Stage{Name: "Extract", UpdateType: DynamicUpdate}
	ManageViews = Stage{Name: "ManageViews", UpdateType: DynamicUpdate}
	Queue       = Stage{Name: "Queue", UpdateType: DynamicUpdate}
	PhaseSort   = Stage{Name: "PhaseSort", UpdateType: DynamicUpdate}
	Prepare     = Stage{Name: "Prepare", UpdateType: DynamicUpdate}
	Render      = Stage{Name: "Render", UpdateType: DynamicUpdate}
	Cleanup     = Stage{Name: "Cleanup", UpdateType: DynamicUpdate}
)

func defaultStages() []Stage {
	return []Stage{
		Prelude, PreUpdate, Update, PostUpdate,
		Extract, ManageViews, Queue, PhaseSort, Prepare, Render, Cleanup,
	}
}

type systemScheduleBuilder struct {
	inStage Stage
	system  systemFn
	first   bool
}

func System(system systemFn) systemScheduleBuilder {
	return systemScheduleBuilder{
		system:  system,
		inStage: Update,
	}
}

func (sched systemScheduleBuilder) InStage(s Stage) systemScheduleBuilder {
	sched.inStage = s
	return sched
}

// First places the system ahead of the systems already in its stage.
func (sched systemScheduleBuilder) First() systemScheduleBuilder {
	sched.first = true
	return sched
}

type stagePosition int

const (
	stageBefore stagePosition = iota
	stageAfter
)

type stagePositionBuilder struct {
	position stagePosition
	target   Stage
}

func BeforeStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{
		position: stageBefore,
		target:   s,
	}
}

func AfterStage(s Stage) stagePositionBuilder {
	return stagePositionBuilder{
		position: stageAfter,
		target:   s,
	}
}

func (app *App) stageIndex(name string) int {
	return slices.IndexFunc(app.stages, func(s Stage) bool { return s.Name == name })
}

func (app *App) UseStage(stage Stage, where stagePositionBuilder) *App {
	if app.stageIndex(stage.Name) != -1 {
		panic(fmt.Sprintf("Stage %v already exists", stage.Name))
	}
	stageIdx := app.stageIndex(where.target.Name)
	if stageIdx == -1 {
		panic(fmt.Sprintf("Stage %v not found", where.target.Name))
	}

	insertAt := stageIdx
	if where.position == stageAfter {
		insertAt = stageIdx + 1
	}

	app.stages = slices.Insert(app.stages, insertAt, stage)
	app.systems[stage.Name] = make([]systemFn, 0)

	return app
}

func (app *App) UseSystem(system systemScheduleBuilder) *App {
	systems, ok := app.systems[system.inStage.Name]
	if !ok {
		panic(fmt.Sprintf("Stage %v doesn't exist", system.inStage.Name))
	}
	if system.first {
		app.systems[system.inStage.Name] = slices.Insert(systems, 0, system.system)
	} else {
		app.systems[system.inStage.Name] = append(systems, system.system)
	}
	return app
}

// Stages returns the stage names in execution order.
func (app *App) Stages() []string {
	names := make([]string, len(app.stages))
	for i, s := range app.stages {
		names[i] = s.Name
	}
	return names
}

package gekko

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockResource1 struct {
	name string
}
type MockResource2 struct {
	name string
}

func TestApp_addResources(t *testing.T) {
	app := &App{
		resources: make(map[reflect.Type]any),
	}

	resource1 := &MockResource1{name: "Resource1"}
	app.addResources(resource1)
	assert.Contains(t, app.resources, reflect.TypeOf(resource1).Elem())

	require.PanicsWithValue(t, fmt.Sprintf("%s is already in resources", reflect.TypeOf(resource1)), func() {
		app.addResources(resource1)
	})
	require.Panics(t, func() {
		app.addResources(MockResource2{})
	}, "resources must be pointers")

	app.addResources(&MockResource2{name: "Resource2"})

	got, ok := GetResource[MockResource2](app)
	require.True(t, ok)
	assert.Equal(t, "Resource2", got.name)
}

func TestApp_UpdateRunsStagesInOrder(t *testing.T) {
	app := NewAppBuilder().Build()
	var order []string
	for _, stage := range []Stage{Cleanup, Render, Extract, Update, Prepare, Queue, PhaseSort, ManageViews} {
		name := stage.Name
		app.UseSystem(System(func() { order = append(order, name) }).InStage(stage))
	}

	app.Update()

	assert.Equal(t, []string{"Update", "Extract", "ManageViews", "Queue", "PhaseSort", "Prepare", "Render", "Cleanup"}, order)
	assert.Equal(t, uint64(1), app.Frame())
}

func TestApp_SystemResolvesArguments(t *testing.T) {
	app := NewAppBuilder().Build()
	app.addResources(&MockResource1{name: "r"})

	var gotName string
	var gotApp *App
	app.UseSystem(System(func(cmd *Commands, a *App, r *MockResource1) {
		gotName = r.name
		gotApp = a
		assert.Same(t, app, cmd.App())
	}))
	app.Update()

	assert.Equal(t, "r", gotName)
	assert.Same(t, app, gotApp)
}

func TestApp_UnresolvedSystemArgumentPanics(t *testing.T) {
	app := NewAppBuilder().Build()
	app.UseSystem(System(func(*MockResource2) {}))

	assert.Panics(t, app.Update)
}

func TestApp_CommandsApplyBetweenStages(t *testing.T) {
	app := NewAppBuilder().Build()
	var spawned EntityId
	seen := false

	app.UseSystem(System(func(cmd *Commands) {
		spawned = cmd.AddEntity(ecsTag{Name: "x"})
	}).InStage(Update))
	app.UseSystem(System(func(cmd *Commands) {
		seen = cmd.HasEntity(spawned)
		cmd.RemoveEntity(spawned)
	}).InStage(Extract))
	app.Update()

	assert.True(t, seen)
	assert.False(t, app.Commands().HasEntity(spawned))
}

func TestApp_ComponentCommandsOnDespawnedEntityAreDropped(t *testing.T) {
	app := NewAppBuilder().Build()
	cmd := app.Commands()
	eid := cmd.AddEntity(ecsTag{})
	app.FlushCommands()

	cmd.RemoveEntity(eid)
	cmd.AddComponents(eid, ecsPosition{})
	cmd.RemoveComponents(eid, ecsTag{})
	assert.NotPanics(t, app.FlushCommands)
	assert.False(t, cmd.HasEntity(eid))
}

func TestApp_UseStage(t *testing.T) {
	app := NewAppBuilder().Build()
	custom := Stage{Name: "Custom", UpdateType: DynamicUpdate}

	app.UseStage(custom, AfterStage(Queue))

	stages := app.Stages()
	idx := 0
	for i, name := range stages {
		if name == "Custom" {
			idx = i
		}
	}
	assert.Equal(t, "Queue", stages[idx-1])
	assert.Equal(t, "PhaseSort", stages[idx+1])
	assert.Panics(t, func() { app.UseStage(custom, BeforeStage(Update)) })
}

func TestApp_RunStopsOnExit(t *testing.T) {
	app := NewAppBuilder().Build()
	app.UseSystem(System(func(cmd *Commands, a *App) {
		if a.Frame() == 2 {
			cmd.Exit()
		}
	}))

	app.Run()

	assert.Equal(t, uint64(3), app.Frame())
}

func TestApp_TimeModuleCountsFrames(t *testing.T) {
	app := NewAppBuilder().UseModule(TimeModule{}).Build()

	app.Update()
	app.Update()

	tm := MustResource[Time](app)
	assert.Equal(t, uint32(2), tm.Frame)
}

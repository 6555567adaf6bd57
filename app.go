package gekko

import (
	"fmt"
	"reflect"
	"runtime"
)

type systemFn any

// Module installs resources and systems into an App.
type Module interface {
	Install(app *App, cmd *Commands)
}

type App struct {
	modules   []Module
	stages    []Stage
	systems   map[string][]systemFn
	resources map[reflect.Type]any
	ecs       *Ecs

	// Command Buffering
	pendingAdditions    []pendingAdd
	pendingRemovals     []EntityId
	pendingCompAdds     []pendingComponents
	pendingCompRemovals []pendingComponents

	logger        Logger
	exitRequested bool
	frame         uint64
}

type pendingAdd struct {
	eid        EntityId
	components []any
}

type pendingComponents struct {
	eid        EntityId
	components []any
}

func (app *App) Commands() *Commands {
	return &Commands{
		app: app,
	}
}

// Frame is the number of completed calls to Update.
func (app *App) Frame() uint64 {
	return app.frame
}

// Update runs every stage once, flushing commands after each stage so that
// a stage always observes everything the previous stages did.
func (app *App) Update() {
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name] {
			app.callSystem(system)
		}
		app.FlushCommands()
	}
	app.frame++
}

// Run calls Update until a system requests exit through Commands.Exit.
func (app *App) Run() {
	app.Logger().Infof("Running %d stages", len(app.stages))
	for !app.exitRequested {
		app.Update()
	}
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("resource %s must be a pointer", resourceType))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}

		app.resources[resourceType.Elem()] = resource
	}
	return app
}

func (app *App) hasResource(t reflect.Type) bool {
	_, ok := app.resources[t]
	return ok
}

// GetResource returns the resource of type T added with AddResources(&T{}).
func GetResource[T any](app *App) (*T, bool) {
	resource, ok := app.resources[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	typed, ok := resource.(*T)
	return typed, ok
}

// MustResource is GetResource for resources a module is known to install.
func MustResource[T any](app *App) *T {
	resource, ok := GetResource[T](app)
	if !ok {
		panic(fmt.Sprintf("resource %s is not installed", reflect.TypeFor[T]()))
	}
	return resource
}

var typeOfCommands = reflect.TypeOf(Commands{})
var typeOfApp = reflect.TypeOf(App{})

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())

	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		if argType.Kind() != reflect.Pointer {
			app.panicUnresolved(systemValue, systemType, argType)
		}
		underlyingType := argType.Elem()

		switch {
		case underlyingType == typeOfCommands:
			args[i] = reflect.ValueOf(&Commands{app: app})
		case underlyingType == typeOfApp:
			args[i] = reflect.ValueOf(app)
		default:
			resource, argIsResource := app.resources[underlyingType]
			if !argIsResource {
				app.panicUnresolved(systemValue, systemType, argType)
			}
			args[i] = reflect.ValueOf(resource)
		}
	}
	systemValue.Call(args)
}

func (app *App) panicUnresolved(systemValue reflect.Value, systemType reflect.Type, argType reflect.Type) {
	msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
		runtime.FuncForPC(systemValue.Pointer()).Name(),
		fmt.Sprint(systemType),
		fmt.Sprint(argType),
	)
	app.Logger().Errorf("%s", msg)
	panic(msg)
}

func (app *App) FlushCommands() {
	if len(app.pendingAdditions) == 0 && len(app.pendingRemovals) == 0 &&
		len(app.pendingCompAdds) == 0 && len(app.pendingCompRemovals) == 0 {
		return
	}

	// Removals first so that nothing is added to a dead entity
	for _, eid := range app.pendingRemovals {
		app.Logger().Debugf("Removing entity %v", eid)
		app.ecs.removeEntity(eid)
	}
	app.pendingRemovals = app.pendingRemovals[:0]

	for _, add := range app.pendingAdditions {
		app.ecs.insertEntity(add.eid, add.components...)
	}
	app.pendingAdditions = app.pendingAdditions[:0]

	for _, add := range app.pendingCompAdds {
		if app.ecs.contains(add.eid) {
			app.ecs.addComponents(add.eid, add.components...)
		}
	}
	app.pendingCompAdds = app.pendingCompAdds[:0]

	for _, removal := range app.pendingCompRemovals {
		if app.ecs.contains(removal.eid) {
			app.ecs.removeComponents(removal.eid, removal.components...)
		}
	}
	app.pendingCompRemovals = app.pendingCompRemovals[:0]
}

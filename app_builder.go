package gekko

import (
	"reflect"
)

type AppBuilder struct {
	app     *App
	modules []Module
}

func NewAppBuilder() *AppBuilder {
	ecs := MakeEcs()
	app := &App{
		resources: make(map[reflect.Type]any),
		systems:   make(map[string][]systemFn),
		ecs:       &ecs,
	}
	for _, stage := range defaultStages() {
		app.stages = append(app.stages, stage)
		app.systems[stage.Name] = make([]systemFn, 0)
	}
	return &AppBuilder{app: app}
}

func (b *AppBuilder) UseModule(modules ...Module) *AppBuilder {
	b.modules = append(b.modules, modules...)

	return b
}

// Build installs the modules in order. Commands issued by modules are
// flushed before Build returns.
func (b *AppBuilder) Build() *App {
	app := b.app
	commands := &Commands{app: app}

	for _, module := range b.modules {
		module.Install(app, commands)
		app.modules = append(app.modules, module)
	}
	app.FlushCommands()

	return app
}

// UseModules installs modules into an already built app.
func (app *App) UseModules(modules ...Module) *App {
	commands := app.Commands()
	for _, module := range modules {
		module.Install(app, commands)
		app.modules = append(app.modules, module)
	}
	return app
}

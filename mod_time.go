package gekko

import (
	"time"
)

type Time struct {
	Time time.Time
	Dt   time.Duration
	// Frame counts completed frames. It wraps on overflow.
	Frame uint32
}

type TimeModule struct {
	// Now overrides the clock. Tests set it for reproducible deltas.
	Now func() time.Time
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	now := mod.Now
	if now == nil {
		now = time.Now
	}
	clock := &clock{now: now}
	cmd.AddResources(&Time{Time: now()}, clock)
	app.UseSystem(System(timeSystem).InStage(Prelude).First())
	app.UseSystem(System(frameCountSystem).InStage(Cleanup))
}

type clock struct {
	now func() time.Time
}

func timeSystem(timeResource *Time, c *clock) {
	now := c.now()

	timeResource.Dt = now.Sub(timeResource.Time)
	timeResource.Time = now
}

func frameCountSystem(timeResource *Time) {
	timeResource.Frame++
}

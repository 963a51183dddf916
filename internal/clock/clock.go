package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock access so jobs and services can be tested
// against a fixed time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// New returns the system clock.
func New() Clock {
	return systemClock{}
}

// Module provides the system clock to the application graph.
var Module = fx.Module("clock",
	fx.Provide(New),
)

package starter

import (
	"context"

	"questbot.io/questbot/internal/config"
)

// Startable is a background component started once at boot.
type Startable interface {
	Start(ctx context.Context)
}

// Configurable components receive the configuration before they start.
type Configurable interface {
	Apply(*config.Configuration)
}

type Stopable interface {
	Stop()
}

// Start applies conf to every configurable element, then starts them in order. It
// returns a function stopping the stoppable ones in reverse order.
func Start(ctx context.Context, conf *config.Configuration, elems ...Startable) (stop func()) {
	var stoppers []Stopable
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok {
			configurable.Apply(conf)
		}
		ele.Start(ctx)
		if s, ok := ele.(Stopable); ok {
			stoppers = append(stoppers, s)
		}
	}
	return func() {
		for i := len(stoppers) - 1; i >= 0; i-- {
			stoppers[i].Stop()
		}
	}
}

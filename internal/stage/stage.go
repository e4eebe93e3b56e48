// Package stage defines the contract between the workflow manager and the
// five run stages (ingest, dispatch, poll, finalize, index).
package stage

import (
	"context"

	"clipwise/internal/store"
)

// Handler is one stage of a run. Execute must be safe to re-enter for a run
// that was interrupted mid-stage; Prepare runs before every Execute attempt.
type Handler interface {
	Prepare(context.Context, *store.Run) error
	Execute(context.Context, *store.Run) error
	HealthCheck(context.Context) Health
}

// Health is a stage's readiness as reported on the status surfaces.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Check reports name as healthy when err is nil.
func Check(name string, err error) Health {
	if err != nil {
		return Unhealthy(name, err.Error())
	}
	return Healthy(name)
}

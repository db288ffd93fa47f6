// Package server exposes the admin HTTP API: login, manual cycle trigger,
// last cycle report and health.
package server

import (
	"github.com/lestrrat-go/jwx/v2/jwk"

	"pricewatch/internal/scheduler"
)

type Server struct {
	Scheduler         cycleScheduler
	Logger            logger
	AuthSecretKey     jwk.Key
	AdminPasswordHash []byte
}

type cycleScheduler interface {
	Trigger() bool
	Running() bool
	LastResult() (scheduler.Result, bool)
}

type logger interface {
	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
}

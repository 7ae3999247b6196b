package inspector

import (
	"net/http"

	"github.com/Carmen-Shannon/oxy-rig/engine/profiler"
	"github.com/sirupsen/logrus"
)

// InspectorBuilderOption is a functional option for configuring an Inspector.
type InspectorBuilderOption func(i *inspector)

// WithLogger sets the logger for requests and stream clients.
//
// Parameters:
//   - l: the logrus logger
//
// Returns:
//   - InspectorBuilderOption: option function to apply
func WithLogger(l *logrus.Logger) InspectorBuilderOption {
	return func(i *inspector) {
		i.logger = l
	}
}

// WithProfiler serves the profiler's latest report at /json/stats.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - InspectorBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) InspectorBuilderOption {
	return func(i *inspector) {
		i.profiler = p
	}
}

// WithStreamEvery streams a pose frame every n scene ticks instead of every tick.
//
// Parameters:
//   - n: the tick divisor (minimum 1)
//
// Returns:
//   - InspectorBuilderOption: option function to apply
func WithStreamEvery(n uint64) InspectorBuilderOption {
	return func(i *inspector) {
		i.streamEvery = max(n, 1)
	}
}

// WithAnyOrigin accepts websocket upgrades from any origin when allowed is true. By default only
// same-origin requests may stream.
//
// Parameters:
//   - allowed: whether cross-origin streaming is allowed
//
// Returns:
//   - InspectorBuilderOption: option function to apply
func WithAnyOrigin(allowed bool) InspectorBuilderOption {
	return func(i *inspector) {
		if allowed {
			i.upgrader.CheckOrigin = func(*http.Request) bool { return true }
		}
	}
}

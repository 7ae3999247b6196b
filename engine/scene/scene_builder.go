package scene

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/sirupsen/logrus"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithActive sets whether the scene is ticked. Scenes are active by default.
//
// Parameters:
//   - active: whether the scene is active
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithActive(active bool) SceneBuilderOption {
	return func(s *scene) {
		s.active = active
	}
}

// WithComputeWorkers sets the number of worker goroutines used to tick independent rig groups.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}

// WithRegistry publishes the scene's rigs in an existing registry.
//
// Parameters:
//   - r: the registry
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRegistry(r nodecache.Registry) SceneBuilderOption {
	return func(s *scene) {
		s.registry = r
	}
}

// WithLogger sets the logger for the scene and the rigs it builds.
//
// Parameters:
//   - l: the logrus logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(l *logrus.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.logger = l
	}
}

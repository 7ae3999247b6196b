package rig

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/loader"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/sirupsen/logrus"
)

// RigBuilderOption is a functional option for Build.
type RigBuilderOption func(b *builder)

// WithRegistry publishes the rig in an existing registry instead of a private one, so modifiers
// can target nodes of other rigs.
//
// Parameters:
//   - r: the registry
//
// Returns:
//   - RigBuilderOption: option function to apply
func WithRegistry(r nodecache.Registry) RigBuilderOption {
	return func(b *builder) {
		b.registry = r
	}
}

// WithLoader imports glTF skeletons through a caching loader.
//
// Parameters:
//   - l: the loader
//
// Returns:
//   - RigBuilderOption: option function to apply
func WithLoader(l loader.Loader) RigBuilderOption {
	return func(b *builder) {
		b.loader = l
	}
}

// WithLogger sets the logger handed to the skeleton and the stack.
//
// Parameters:
//   - l: the logrus logger
//
// Returns:
//   - RigBuilderOption: option function to apply
func WithLogger(l *logrus.Logger) RigBuilderOption {
	return func(b *builder) {
		b.logger = l
	}
}

// WithSkinConsumer attaches a consumer of the skin transforms to the built skeleton.
//
// Parameters:
//   - c: the consumer
//
// Returns:
//   - RigBuilderOption: option function to apply
func WithSkinConsumer(c skeleton.SkinConsumer) RigBuilderOption {
	return func(b *builder) {
		b.consumer = c
	}
}

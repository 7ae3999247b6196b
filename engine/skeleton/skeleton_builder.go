package skeleton

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/sirupsen/logrus"
)

// SkeletonBuilderOption is a functional option for configuring a Skeleton.
// Use the With* functions to create options.
type SkeletonBuilderOption func(s *skeleton)

// WithName sets the skeleton's identifier, used in log fields.
//
// Parameters:
//   - name: the skeleton name
//
// Returns:
//   - SkeletonBuilderOption: option function to apply
func WithName(name string) SkeletonBuilderOption {
	return func(s *skeleton) {
		if name != "" {
			s.name = name
		}
	}
}

// WithWorldTransform attaches the skeleton to the world at construction.
//
// Parameters:
//   - t: the skeleton's world transform
//
// Returns:
//   - SkeletonBuilderOption: option function to apply
func WithWorldTransform(t common.Transform) SkeletonBuilderOption {
	return func(s *skeleton) {
		s.world = t
		s.attached = true
	}
}

// WithSkinConsumer registers the consumer notified on every Update.
//
// Parameters:
//   - c: the skin consumer
//
// Returns:
//   - SkeletonBuilderOption: option function to apply
func WithSkinConsumer(c SkinConsumer) SkeletonBuilderOption {
	return func(s *skeleton) {
		s.consumer = c
	}
}

// WithLogger sets the logger used for diagnostics. Defaults to the logrus standard logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SkeletonBuilderOption: option function to apply
func WithLogger(l *logrus.Logger) SkeletonBuilderOption {
	return func(s *skeleton) {
		if l != nil {
			s.baseLogger = l
		}
	}
}

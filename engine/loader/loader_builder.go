package loader

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/qmuntal/gltf"
	"github.com/sirupsen/logrus"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger is an option builder that sets the logger used by the Loader.
//
// Parameters:
//   - l: the logrus logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(l *logrus.Logger) LoaderBuilderOption {
	return func(ld *loader) {
		if l != nil {
			ld.log = logrus.NewEntry(l)
		}
	}
}

// WithSkeletonOptions is an option builder that sets options applied to every skeleton the Loader builds.
//
// Parameters:
//   - options: the skeleton builder options
//
// Returns:
//   - LoaderBuilderOption: a function that applies the skeleton options to a loader
func WithSkeletonOptions(options ...skeleton.SkeletonBuilderOption) LoaderBuilderOption {
	return func(l *loader) {
		l.skeletonOptions = append(l.skeletonOptions, options...)
	}
}

// WithDocument is an option builder that pre-populates the document cache.
//
// Parameters:
//   - key: the cache key for the document
//   - doc: the decoded document
//
// Returns:
//   - LoaderBuilderOption: a function that applies the document option to a loader
func WithDocument(key string, doc *gltf.Document) LoaderBuilderOption {
	return func(l *loader) {
		l.documentCache[key] = doc
	}
}

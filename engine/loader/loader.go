// Package loader imports skeletons from glTF 2.0 files.
package loader

import (
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/sirupsen/logrus"
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	log *logrus.Entry

	documentCache map[string]*gltf.Document

	skeletonOptions []skeleton.SkeletonBuilderOption
}

// Loader decodes glTF/GLB files and caches the decoded documents by path. Every Load builds a fresh
// skeleton from the cached document, so rigs never share pose state.
type Loader interface {
	// Load decodes a .gltf or .glb file, caching the document, and builds a skeleton from one of its skins.
	//
	// Parameters:
	//   - path: the file path
	//   - skinIndex: the skin to import
	//   - options: options forwarded to skeleton.NewSkeleton after the loader's own
	//
	// Returns:
	//   - *SkeletonAsset: the imported skeleton
	//   - error: a decode error, or ErrConfiguration for an unsupported extension or an invalid skin
	Load(path string, skinIndex int, options ...skeleton.SkeletonBuilderOption) (*SkeletonAsset, error)

	// LoadReader decodes a document from a stream and caches it under name.
	//
	// Parameters:
	//   - name: the cache key
	//   - r: the reader providing glTF JSON or GLB data
	//   - skinIndex: the skin to import
	//   - options: options forwarded to skeleton.NewSkeleton
	//
	// Returns:
	//   - *SkeletonAsset: the imported skeleton
	//   - error: a decode or import error
	LoadReader(name string, r io.Reader, skinIndex int, options ...skeleton.SkeletonBuilderOption) (*SkeletonAsset, error)

	// Document returns a cached document, nil if name was never loaded.
	Document(name string) *gltf.Document

	// SkinCount returns the number of skins of a cached document, -1 if it is not cached.
	SkinCount(name string) int

	// Evict drops a cached document so the next Load decodes the file again.
	Evict(name string)
}

var _ Loader = &loader{}

// NewLoader creates a Loader with an empty document cache.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		documentCache: make(map[string]*gltf.Document),
	}

	for _, option := range options {
		option(l)
	}

	if l.log == nil {
		l.log = logrus.NewEntry(logrus.StandardLogger())
	}
	l.log = l.log.WithField("component", "loader")
	return l
}

// LoadSkeleton decodes a glTF/GLB file without caching and imports one of its skins.
//
// Parameters:
//   - path: the file path
//   - skinIndex: the skin to import
//   - options: options forwarded to skeleton.NewSkeleton
//
// Returns:
//   - *SkeletonAsset: the imported skeleton
//   - error: a decode or import error
func LoadSkeleton(path string, skinIndex int, options ...skeleton.SkeletonBuilderOption) (*SkeletonAsset, error) {
	doc, err := openDocument(path)
	if err != nil {
		return nil, err
	}
	return SkeletonFromDocument(doc, skinIndex, options...)
}

func openDocument(path string) (*gltf.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
	default:
		return nil, errors.Wrapf(skeleton.ErrConfiguration, "unsupported model format %q", filepath.Ext(path))
	}
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return doc, nil
}

func (l *loader) Load(path string, skinIndex int, options ...skeleton.SkeletonBuilderOption) (*SkeletonAsset, error) {
	l.mu.RLock()
	doc, ok := l.documentCache[path]
	l.mu.RUnlock()

	if !ok {
		var err error
		doc, err = openDocument(path)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.documentCache[path] = doc
		l.mu.Unlock()
		l.log.WithFields(logrus.Fields{"path": path, "skins": len(doc.Skins), "nodes": len(doc.Nodes)}).Debug("decoded glTF document")
	}

	return l.build(path, doc, skinIndex, options)
}

func (l *loader) LoadReader(name string, r io.Reader, skinIndex int, options ...skeleton.SkeletonBuilderOption) (*SkeletonAsset, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", name)
	}

	l.mu.Lock()
	l.documentCache[name] = doc
	l.mu.Unlock()

	return l.build(name, doc, skinIndex, options)
}

func (l *loader) build(name string, doc *gltf.Document, skinIndex int, options []skeleton.SkeletonBuilderOption) (*SkeletonAsset, error) {
	opts := append(append([]skeleton.SkeletonBuilderOption{}, l.skeletonOptions...), options...)
	asset, err := SkeletonFromDocument(doc, skinIndex, opts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "importing skin %d of %s", skinIndex, name)
	}
	l.log.WithFields(logrus.Fields{"source": name, "skin": skinIndex, "bones": asset.Skeleton.BoneCount()}).Info("imported skeleton")
	return asset, nil
}

func (l *loader) Document(name string) *gltf.Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.documentCache[name]
}

func (l *loader) SkinCount(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	doc, ok := l.documentCache[name]
	if !ok {
		return -1
	}
	return len(doc.Skins)
}

func (l *loader) Evict(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.documentCache, name)
}

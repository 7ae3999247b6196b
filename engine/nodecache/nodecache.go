// Package nodecache resolves scene node paths to world transforms and caches the resolution per consumer.
package nodecache

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/pkg/errors"
)

// ErrRevalidated is returned by Ref.Transform on the tick a stale reference resolves again. It matches
// skeleton.ErrCacheStale, since the node is still unusable that tick, but signals recovery rather than failure.
var ErrRevalidated = errors.Wrap(skeleton.ErrCacheStale, "node cache revalidated")

// NodePath is a path-like reference to a node in the host scene tree.
type NodePath string

// Handle is an opaque node identity issued by a Resolver. The zero Handle never refers to a node.
type Handle uint64

// Resolver is the host scene tree as seen by the pose engine.
type Resolver interface {
	// Resolve looks up the node at path.
	//
	// Parameters:
	//   - path: the node path
	//
	// Returns:
	//   - Handle: the node identity
	//   - error: ErrInvalidReference if no node exists at path
	Resolve(path NodePath) (Handle, error)

	// GlobalTransform returns the world transform of a previously resolved node.
	//
	// Parameters:
	//   - h: the node identity
	//
	// Returns:
	//   - common.Transform: the node's world transform
	//   - bool: false if the node no longer exists
	GlobalTransform(h Handle) (common.Transform, bool)
}

// Ref caches the resolution of a single node path. A Ref starts unresolved; Resolve fills it and
// Transform reads through it, dropping back to unresolved when the node disappears.
// The zero Ref has an empty path and never resolves.
type Ref struct {
	path   NodePath
	handle Handle
	warned bool
}

// NewRef creates an unresolved reference to path.
//
// Parameters:
//   - path: the node path
//
// Returns:
//   - *Ref: the reference
func NewRef(path NodePath) *Ref {
	return &Ref{path: path}
}

// Path returns the referenced node path.
func (r *Ref) Path() NodePath {
	return r.path
}

// SetPath changes the referenced path and invalidates the cached resolution.
func (r *Ref) SetPath(path NodePath) {
	r.path = path
	r.Invalidate()
}

// Empty reports whether the reference has no path.
func (r *Ref) Empty() bool {
	return r.path == ""
}

// Resolved reports whether the reference currently holds a node identity.
func (r *Ref) Resolved() bool {
	return r.handle != 0
}

// Invalidate drops the cached resolution.
func (r *Ref) Invalidate() {
	r.handle = 0
}

// Resolve re-resolves the path through res. A path equal to self is rejected since a
// modifier may not target the skeleton it operates on.
//
// Parameters:
//   - res: the resolver
//   - self: the path of the owning skeleton, or "" if unknown
//
// Returns:
//   - error: ErrInvalidReference for an empty path, a self reference or a missing node
func (r *Ref) Resolve(res Resolver, self NodePath) error {
	r.handle = 0
	if res == nil {
		return errors.Wrap(skeleton.ErrInvalidReference, "no node resolver")
	}
	if r.path == "" {
		return errors.Wrap(skeleton.ErrInvalidReference, "empty node path")
	}
	if self != "" && r.path == self {
		return errors.Wrapf(skeleton.ErrInvalidReference, "node %q is the modified skeleton", r.path)
	}
	h, err := res.Resolve(r.path)
	if err != nil {
		return err
	}
	r.handle = h
	r.warned = false
	return nil
}

// Transform returns the world transform of the referenced node. An unresolved reference is revalidated
// and the call reports ErrCacheStale for this tick, as ErrRevalidated when the node was found again; a node
// that no longer exists invalidates the reference.
//
// Parameters:
//   - res: the resolver
//   - self: the path of the owning skeleton, or "" if unknown
//
// Returns:
//   - common.Transform: the node's world transform
//   - error: ErrCacheStale when the reference is not usable this tick, ErrRevalidated after it recovered
func (r *Ref) Transform(res Resolver, self NodePath) (common.Transform, error) {
	if !r.Resolved() {
		if err := r.Resolve(res, self); err != nil {
			return common.IdentityTransform(), errors.Wrapf(skeleton.ErrCacheStale, "node %q: %v", r.path, err)
		}
		return common.IdentityTransform(), errors.Wrapf(ErrRevalidated, "node %q", r.path)
	}

	t, alive := res.GlobalTransform(r.handle)
	if !alive {
		r.Invalidate()
		return common.IdentityTransform(), errors.Wrapf(skeleton.ErrCacheStale, "node %q no longer exists", r.path)
	}
	return t, nil
}

// ShouldWarn returns true the first time it is called after the reference went stale, so that
// a stale reference is reported once rather than every tick.
func (r *Ref) ShouldWarn() bool {
	if r.warned {
		return false
	}
	r.warned = true
	return true
}

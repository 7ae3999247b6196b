package nodecache

import (
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/pkg/errors"
)

// node is a registry entry. A node is either static (transform set by the host) or attached to a bone
// of a skeleton, in which case its transform follows the bone's current global pose.
type node struct {
	handle    Handle
	transform common.Transform

	skel     skeleton.Skeleton
	boneName string
	offset   common.Transform
	isRoot   bool // the node is the skeleton itself
}

// registry implements the Registry interface.
type registry struct {
	mu     *sync.RWMutex
	nodes  map[NodePath]*node
	byID   map[Handle]*node
	nextID Handle
}

// Registry is an in-memory Resolver for hosts without their own scene tree and for tests.
// Static nodes carry a world transform set by the host; bone nodes follow a skeleton bone.
// Safe for concurrent access, but bone nodes read their skeleton and must only be resolved
// from the goroutine that owns that skeleton.
type Registry interface {
	Resolver

	// Set creates or updates a static node.
	//
	// Parameters:
	//   - path: the node path
	//   - t: the node's world transform
	//
	// Returns:
	//   - Handle: the node identity
	Set(path NodePath, t common.Transform) Handle

	// AddSkeleton registers a skeleton as a node. Its transform is the skeleton's world transform.
	//
	// Parameters:
	//   - path: the node path
	//   - sk: the skeleton
	//
	// Returns:
	//   - Handle: the node identity
	AddSkeleton(path NodePath, sk skeleton.Skeleton) Handle

	// BindToBone creates or replaces a node that follows a bone. Its world transform is
	// world * boneGlobal * offset, evaluated on every query.
	//
	// Parameters:
	//   - path: the node path
	//   - sk: the skeleton owning the bone
	//   - boneName: the bone to follow
	//   - offset: a local offset applied in the bone's space
	//
	// Returns:
	//   - Handle: the node identity
	BindToBone(path NodePath, sk skeleton.Skeleton, boneName string, offset common.Transform) Handle

	// Remove deletes a node. Outstanding handles report the node as gone.
	Remove(path NodePath)

	// Paths returns every registered path in lexical order.
	Paths() []NodePath
}

var _ Registry = &registry{}

// NewRegistry creates an empty registry.
//
// Returns:
//   - Registry: the registry
func NewRegistry() Registry {
	return &registry{
		mu:    &sync.RWMutex{},
		nodes: make(map[NodePath]*node),
		byID:  make(map[Handle]*node),
	}
}

func (r *registry) Resolve(path NodePath) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[path]
	if !ok {
		return 0, errors.Wrapf(skeleton.ErrInvalidReference, "node %q not found", path)
	}
	return n.handle, nil
}

func (r *registry) GlobalTransform(h Handle) (common.Transform, bool) {
	r.mu.RLock()
	n, ok := r.byID[h]
	r.mu.RUnlock()
	if !ok {
		return common.IdentityTransform(), false
	}

	switch {
	case n.isRoot:
		world, _ := n.skel.WorldTransform()
		return world, true
	case n.skel != nil:
		idx := n.skel.FindBone(n.boneName)
		if idx < 0 {
			return common.IdentityTransform(), false
		}
		global, err := n.skel.BoneGlobalPose(idx)
		if err != nil {
			return common.IdentityTransform(), false
		}
		return n.skel.SkeletonToWorld(global.Mul(n.offset)), true
	}
	return n.transform, true
}

func (r *registry) Set(path NodePath, t common.Transform) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[path]; ok && n.skel == nil {
		n.transform = t
		return n.handle
	}
	return r.insert(path, &node{transform: t})
}

func (r *registry) AddSkeleton(path NodePath, sk skeleton.Skeleton) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(path, &node{skel: sk, isRoot: true})
}

func (r *registry) BindToBone(path NodePath, sk skeleton.Skeleton, boneName string, offset common.Transform) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(path, &node{skel: sk, boneName: boneName, offset: offset})
}

func (r *registry) Remove(path NodePath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[path]; ok {
		delete(r.byID, n.handle)
		delete(r.nodes, path)
	}
}

func (r *registry) Paths() []NodePath {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]NodePath, 0, len(r.nodes))
	for p := range r.nodes {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// insert replaces any node at path with n under a fresh handle. Callers hold the write lock.
func (r *registry) insert(path NodePath, n *node) Handle {
	if old, ok := r.nodes[path]; ok {
		delete(r.byID, old.handle)
	}
	r.nextID++
	n.handle = r.nextID
	r.nodes[path] = n
	r.byID[n.handle] = n
	return n.handle
}

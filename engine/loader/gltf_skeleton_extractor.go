package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
)

// SkeletonAsset is a skeleton built from one glTF skin.
type SkeletonAsset struct {
	// Skeleton is the built skeleton, topology already resolved.
	Skeleton skeleton.Skeleton
	// JointToBone maps the position of a joint in the skin's joint list to its bone index.
	JointToBone map[int]int
	// RootBones lists the bone indices without a parent bone.
	RootBones []int
}

// SkeletonFromDocument builds a skeleton from a skin of a decoded glTF document. Every joint node becomes a
// bone whose rest transform is the node's local TRS (or matrix); a joint's parent is the joint node
// listing it as a child, and joints without a joint parent become roots. Bones are added parent-first so
// bone indices follow a breadth-first walk from the roots.
//
// Parameters:
//   - doc: the decoded document
//   - skinIndex: the index of the skin to import
//   - options: options forwarded to skeleton.NewSkeleton; the skin name is used as the default skeleton name
//
// Returns:
//   - *SkeletonAsset: the skeleton and the joint-to-bone mapping
//   - error: ErrConfiguration if the skin or a joint index is invalid
func SkeletonFromDocument(doc *gltf.Document, skinIndex int, options ...skeleton.SkeletonBuilderOption) (*SkeletonAsset, error) {
	if doc == nil {
		return nil, errors.Wrap(skeleton.ErrConfiguration, "no glTF document")
	}
	if skinIndex < 0 || skinIndex >= len(doc.Skins) || doc.Skins[skinIndex] == nil {
		return nil, errors.Wrapf(skeleton.ErrConfiguration, "skin index %d out of range, document has %d skins", skinIndex, len(doc.Skins))
	}
	skin := doc.Skins[skinIndex]

	nodeToJoint := make(map[int]int, len(skin.Joints))
	for j, n := range skin.Joints {
		if int(n) >= len(doc.Nodes) || doc.Nodes[n] == nil {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "joint %d references invalid node %d", j, n)
		}
		nodeToJoint[int(n)] = j
	}

	parents := make([]int, len(skin.Joints))
	for j := range parents {
		parents[j] = -1
	}
	children := make(map[int][]int)
	for nodeIdx, node := range doc.Nodes {
		parentJoint, ok := nodeToJoint[nodeIdx]
		if !ok || node == nil {
			continue
		}
		for _, c := range node.Children {
			if childJoint, ok := nodeToJoint[int(c)]; ok && parents[childJoint] < 0 {
				parents[childJoint] = parentJoint
				children[parentJoint] = append(children[parentJoint], childJoint)
			}
		}
	}

	order := jointOrder(parents, children)

	opts := append([]skeleton.SkeletonBuilderOption{skeleton.WithName(common.Coalesce(skin.Name, fmt.Sprintf("skin_%d", skinIndex)))}, options...)
	sk := skeleton.NewSkeleton(opts...)

	asset := &SkeletonAsset{Skeleton: sk, JointToBone: make(map[int]int, len(order))}
	used := make(map[string]int)
	for _, j := range order {
		node := doc.Nodes[skin.Joints[j]]
		name := uniqueName(used, common.Coalesce(node.Name, fmt.Sprintf("bone_%d", j)))
		idx, err := sk.AddBone(name, nodeTransform(node))
		if err != nil {
			return nil, errors.WithMessagef(err, "joint %d", j)
		}
		asset.JointToBone[j] = idx
		if parents[j] < 0 {
			asset.RootBones = append(asset.RootBones, idx)
			continue
		}
		if err := sk.SetParent(idx, asset.JointToBone[parents[j]]); err != nil {
			return nil, errors.WithMessagef(err, "joint %d", j)
		}
	}
	sk.EnsureTopology()
	sk.EnsurePose()

	return asset, nil
}

// jointOrder walks the joint forest breadth-first from its roots. Joints unreachable from a root
// (a parent cycle in a malformed file) are appended as roots.
func jointOrder(parents []int, children map[int][]int) []int {
	order := make([]int, 0, len(parents))
	visited := make([]bool, len(parents))

	queue := make([]int, 0, len(parents))
	for j, p := range parents {
		if p < 0 {
			queue = append(queue, j)
		}
	}
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		if visited[j] {
			continue
		}
		visited[j] = true
		order = append(order, j)
		queue = append(queue, children[j]...)
	}

	for j := range parents {
		if !visited[j] {
			parents[j] = -1
			order = append(order, j)
		}
	}
	return order
}

// nodeTransform returns the local transform of a node. Zero-valued rotation and scale, as left by documents
// built in memory, are treated as the glTF defaults.
func nodeTransform(node *gltf.Node) common.Transform {
	if node.Matrix != [16]float32{} && node.Matrix != [16]float32(mgl32.Ident4()) {
		return common.TransformFromMat4(mgl32.Mat4(node.Matrix))
	}

	rotation := mgl32.QuatIdent()
	if node.Rotation != [4]float32{} {
		r := node.Rotation
		rotation = mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize()
	}
	scale := mgl32.Vec3{1, 1, 1}
	if node.Scale != [3]float32{} {
		scale = mgl32.Vec3(node.Scale)
	}
	return common.NewTransform(rotation, scale, mgl32.Vec3(node.Translation))
}

// uniqueName suffixes repeated bone names with a counter.
func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	candidate := fmt.Sprintf("%s_%d", name, n)
	for used[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	used[candidate] = 1
	return candidate
}

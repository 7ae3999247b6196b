package scene

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
)

// partition splits the rigs into groups that can tick concurrently. Two rigs share a group when one reads a
// node the other registered. Within a group, a rig ticks after the rigs it reads from; rigs caught in a
// cycle tick in the order they were added.
func (s *scene) partition() [][]*rig.Rig {
	rigs := make([]*rig.Rig, 0, len(s.order))
	for _, id := range s.order {
		rigs = append(rigs, s.rigs[id])
	}

	owner := make(map[nodecache.NodePath]int)
	for i, r := range rigs {
		for _, p := range r.OwnedPaths() {
			owner[p] = i
		}
	}

	parent := make([]int, len(rigs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	// deps[i] lists the rigs rig i reads from.
	deps := make([][]int, len(rigs))
	for i, r := range rigs {
		for _, p := range r.ReferencedPaths() {
			j, ok := owner[p]
			if !ok || j == i {
				continue
			}
			deps[i] = append(deps[i], j)
			if a, b := find(i), find(j); a != b {
				parent[max(a, b)] = min(a, b)
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range rigs {
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	groups := make([][]*rig.Rig, 0, len(roots))
	for _, root := range roots {
		group := make([]*rig.Rig, 0, len(members[root]))
		for _, i := range tickOrder(members[root], deps) {
			group = append(group, rigs[i])
		}
		groups = append(groups, group)
	}
	return groups
}

// tickOrder orders a group so each rig follows the rigs it reads from. Ties and cycles keep index order.
func tickOrder(group []int, deps [][]int) []int {
	done := make(map[int]bool, len(group))
	order := make([]int, 0, len(group))
	for len(order) < len(group) {
		progressed := false
		for _, i := range group {
			if done[i] {
				continue
			}
			ready := true
			for _, d := range deps[i] {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				order = append(order, i)
				progressed = true
				break
			}
		}
		if progressed {
			continue
		}
		// cycle: release the earliest remaining rig
		for _, i := range group {
			if !done[i] {
				done[i] = true
				order = append(order, i)
				break
			}
		}
	}
	return order
}

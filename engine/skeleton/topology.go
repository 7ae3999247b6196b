package skeleton

import (
	"container/heap"
	"sort"

	"github.com/Carmen-Shannon/oxy-rig/common"
)

// seqHeap is a min-heap of bone indices ordered by insertion sequence.
type seqHeap struct {
	idx   []int
	bones []bone
}

func (h *seqHeap) Len() int           { return len(h.idx) }
func (h *seqHeap) Less(i, j int) bool { return h.bones[h.idx[i]].seq < h.bones[h.idx[j]].seq }
func (h *seqHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *seqHeap) Push(x any)         { h.idx = append(h.idx, x.(int)) }
func (h *seqHeap) Pop() any {
	n := len(h.idx)
	v := h.idx[n-1]
	h.idx = h.idx[:n-1]
	return v
}

func (s *skeleton) TopologyVersion() uint64 {
	return s.topologyVersion
}

func (s *skeleton) OnTopologyChanged(fn func(TopologyEvent)) int {
	s.nextListenerID++
	s.listeners[s.nextListenerID] = fn
	return s.nextListenerID
}

func (s *skeleton) RemoveTopologyListener(id int) {
	delete(s.listeners, id)
}

func (s *skeleton) EnsureTopology() {
	if !s.topologyDirty {
		return
	}

	order := s.sortedOrder()

	// oldToNew maps positions in the current (unsorted) array to sorted positions.
	oldToNew := make([]int, len(s.bones))
	for newIdx, oldIdx := range order {
		oldToNew[oldIdx] = newIdx
	}

	sorted := make([]bone, len(s.bones))
	for newIdx, oldIdx := range order {
		b := s.bones[oldIdx]
		if b.parent >= 0 {
			b.parent = oldToNew[b.parent]
		}
		sorted[newIdx] = b
	}
	s.bones = sorted
	s.rebuildNameIndex()

	globalRest := make([]common.Transform, len(s.bones))
	for i := range s.bones {
		b := &s.bones[i]
		if b.parent >= 0 {
			globalRest[i] = globalRest[b.parent].Mul(b.restOrIdentity())
		} else {
			globalRest[i] = b.restOrIdentity()
		}
		b.restInverse = globalRest[i].AffineInverse()
	}

	remap := s.remapSinceLastResolution()

	s.topologyDirty = false
	s.markAllDirty()
	s.topologyVersion++
	s.stats.TopologyRebuilds++

	s.log.WithField("bones", len(s.bones)).Debug("topology resolved")

	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	event := TopologyEvent{Version: s.topologyVersion, Remap: remap}
	for _, id := range ids {
		if fn, ok := s.listeners[id]; ok {
			fn(event)
		}
	}
}

// sortedOrder returns the current bone indices ordered parent-before-child using Kahn's algorithm.
// Among bones that are ready at the same time the one inserted first is emitted first.
func (s *skeleton) sortedOrder() []int {
	children := make([][]int, len(s.bones))
	h := &seqHeap{bones: s.bones}
	for i := range s.bones {
		if p := s.bones[i].parent; p >= 0 {
			children[p] = append(children[p], i)
		} else {
			h.idx = append(h.idx, i)
		}
	}
	heap.Init(h)

	order := make([]int, 0, len(s.bones))
	for h.Len() > 0 {
		i := heap.Pop(h).(int)
		order = append(order, i)
		for _, c := range children[i] {
			heap.Push(h, c)
		}
	}
	return order
}

// remapSinceLastResolution maps indices of the previous resolution, and those AddBone returned since, to the
// current ones and records the new order.
func (s *skeleton) remapSinceLastResolution() map[int]int {
	posBySeq := make(map[uint64]int, len(s.bones))
	for i := range s.bones {
		posBySeq[s.bones[i].seq] = i
	}

	remap := make(map[int]int, len(s.lastOrder)+len(s.added))
	for oldIdx, seq := range s.lastOrder {
		if newIdx, ok := posBySeq[seq]; ok {
			remap[oldIdx] = newIdx
		} else {
			remap[oldIdx] = -1
		}
	}
	for _, a := range s.added {
		if _, taken := remap[a.idx]; taken {
			continue
		}
		if newIdx, ok := posBySeq[a.seq]; ok {
			remap[a.idx] = newIdx
		}
	}
	s.added = s.added[:0]

	s.lastOrder = s.lastOrder[:0]
	for i := range s.bones {
		s.lastOrder = append(s.lastOrder, s.bones[i].seq)
	}
	return remap
}

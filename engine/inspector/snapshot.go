package inspector

import (
	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/google/uuid"
)

// TransformView is the JSON form of a transform. Rotation is a unit quaternion as x, y, z, w.
type TransformView struct {
	Translation [3]float32 `json:"translation"`
	Rotation    [4]float32 `json:"rotation"`
	Scale       [3]float32 `json:"scale"`
}

// OverrideView is the JSON form of a local pose override.
type OverrideView struct {
	Transform  TransformView `json:"transform"`
	Amount     float32       `json:"amount"`
	Persistent bool          `json:"persistent"`
}

// BoneView is the JSON form of one bone.
type BoneView struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Parent   int           `json:"parent"`
	Children []int         `json:"children"`
	Enabled  bool          `json:"enabled"`
	Rest     TransformView `json:"rest"`
	Pose     TransformView `json:"pose"`
	Global   TransformView `json:"global"`
	Override *OverrideView `json:"override,omitempty"`
}

// ModifierView is the JSON form of a modification stack slot.
type ModifierView struct {
	Slot    int    `json:"slot"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
}

// RigSummary is a rig as listed in the scene.
type RigSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Bones     int       `json:"bones"`
	Modifiers int       `json:"modifiers"`
}

// RigView is the JSON form of a rig with its bones and modification stack.
type RigView struct {
	RigSummary
	Active         bool           `json:"active"`
	World          *TransformView `json:"world,omitempty"`
	Enabled        bool           `json:"enabled"`
	Strength       float32        `json:"strength"`
	Stack          []ModifierView `json:"stack"`
	Skeleton       []BoneView     `json:"skeleton"`
	Topology       uint64         `json:"topology_version"`
	Rebuilds       uint64         `json:"topology_rebuilds"`
	PoseRecomputes uint64         `json:"pose_recomputes"`
}

// PoseFrame is one streamed set of global bone poses.
type PoseFrame struct {
	Tick  uint64          `json:"tick"`
	Delta float32         `json:"delta"`
	Bones []TransformView `json:"bones"`
}

func transformView(t common.Transform) TransformView {
	q := t.Rotation()
	s := t.Scale()
	return TransformView{
		Translation: [3]float32{t.Origin.X(), t.Origin.Y(), t.Origin.Z()},
		Rotation:    [4]float32{q.V.X(), q.V.Y(), q.V.Z(), q.W},
		Scale:       [3]float32{s.X(), s.Y(), s.Z()},
	}
}

func summarize(id uuid.UUID, r *rig.Rig) RigSummary {
	return RigSummary{
		ID:        id,
		Name:      r.Name,
		Path:      string(r.Path),
		Bones:     r.Skeleton.BoneCount(),
		Modifiers: r.Stack.ModifierCount(),
	}
}

func boneView(sk skeleton.Skeleton, idx int) (BoneView, error) {
	name, err := sk.BoneName(idx)
	if err != nil {
		return BoneView{}, err
	}
	v := BoneView{Index: idx, Name: name}
	if v.Parent, err = sk.BoneParent(idx); err != nil {
		return BoneView{}, err
	}
	if v.Children, err = sk.BoneChildren(idx); err != nil {
		return BoneView{}, err
	}
	if v.Enabled, err = sk.BoneEnabled(idx); err != nil {
		return BoneView{}, err
	}
	rest, err := sk.BoneRest(idx)
	if err != nil {
		return BoneView{}, err
	}
	pose, err := sk.BoneLocalPose(idx)
	if err != nil {
		return BoneView{}, err
	}
	global, err := sk.BoneGlobalPose(idx)
	if err != nil {
		return BoneView{}, err
	}
	v.Rest, v.Pose, v.Global = transformView(rest), transformView(pose), transformView(global)

	o, err := sk.BoneLocalPoseOverride(idx)
	if err != nil {
		return BoneView{}, err
	}
	if o.Amount > 0 {
		v.Override = &OverrideView{Transform: transformView(o.Transform), Amount: o.Amount, Persistent: o.Persistent}
	}
	return v, nil
}

func rigView(id uuid.UUID, r *rig.Rig) (RigView, error) {
	sk := r.Skeleton
	sk.EnsurePose()
	v := RigView{
		RigSummary: summarize(id, r),
		Active:     sk.Active(),
		Enabled:    r.Stack.Enabled(),
		Strength:   r.Stack.Strength(),
		Topology:   sk.TopologyVersion(),
	}
	if world, ok := sk.WorldTransform(); ok {
		w := transformView(world)
		v.World = &w
	}
	stats := sk.Stats()
	v.Rebuilds, v.PoseRecomputes = stats.TopologyRebuilds, stats.PoseRecomputes

	v.Stack = make([]ModifierView, 0, r.Stack.ModifierCount())
	for slot, m := range r.Stack.Modifiers() {
		if m == nil {
			v.Stack = append(v.Stack, ModifierView{Slot: slot})
			continue
		}
		v.Stack = append(v.Stack, ModifierView{Slot: slot, Type: m.Type(), Enabled: m.Enabled(), State: m.State().String()})
	}

	v.Skeleton = make([]BoneView, 0, sk.BoneCount())
	for i := 0; i < sk.BoneCount(); i++ {
		b, err := boneView(sk, i)
		if err != nil {
			return RigView{}, err
		}
		v.Skeleton = append(v.Skeleton, b)
	}
	return v, nil
}

func poseFrame(tick uint64, delta float32, sk skeleton.Skeleton) PoseFrame {
	f := PoseFrame{Tick: tick, Delta: delta, Bones: make([]TransformView, 0, sk.BoneCount())}
	for i := 0; i < sk.BoneCount(); i++ {
		g, err := sk.BoneGlobalPose(i)
		if err != nil {
			break
		}
		f.Bones = append(f.Bones, transformView(g))
	}
	return f
}

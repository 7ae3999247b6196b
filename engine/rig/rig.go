package rig

import (
	"strings"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/loader"
	"github.com/Carmen-Shannon/oxy-rig/engine/modification"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Rig is a skeleton, the node registry it is published in, and its modification stack.
type Rig struct {
	Name     string
	Path     nodecache.NodePath
	Skeleton skeleton.Skeleton
	Stack    modification.Stack
	Registry nodecache.Registry
	Config   *Config
}

// builder carries the dependencies Build uses.
type builder struct {
	registry nodecache.Registry
	loader   loader.Loader
	logger   *logrus.Logger
	consumer skeleton.SkinConsumer
}

// Build creates the skeleton, registers it and its targets, builds the modification stack and sets it up.
//
// Parameters:
//   - cfg: a validated configuration
//   - options: functional options for the build
//
// Returns:
//   - *Rig: the rig
//   - error: ErrConfiguration if the configuration cannot be realized, or a glTF import error
func Build(cfg *Config, options ...RigBuilderOption) (*Rig, error) {
	if cfg == nil {
		return nil, configError("no rig configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &builder{}
	for _, opt := range options {
		opt(b)
	}
	if b.registry == nil {
		b.registry = nodecache.NewRegistry()
	}
	if b.logger == nil {
		b.logger = logrus.StandardLogger()
	}

	skOpts := []skeleton.SkeletonBuilderOption{
		skeleton.WithName(cfg.Name),
		skeleton.WithLogger(b.logger),
	}
	if b.consumer != nil {
		skOpts = append(skOpts, skeleton.WithSkinConsumer(b.consumer))
	}

	sk, err := b.skeleton(cfg, skOpts)
	if err != nil {
		return nil, err
	}
	world := common.IdentityTransform()
	if cfg.World != nil {
		world = cfg.World.Transform()
	}
	sk.SetWorldTransform(world)

	path := nodecache.NodePath(cfg.SkeletonPath())
	b.registry.AddSkeleton(path, sk)
	for _, t := range cfg.Targets {
		if t.Bone != "" {
			if sk.FindBone(t.Bone) < 0 {
				return nil, configError("target %q follows unknown bone %q", t.Path, t.Bone)
			}
			b.registry.BindToBone(nodecache.NodePath(t.Path), sk, t.Bone, t.Transform.Transform())
			continue
		}
		b.registry.Set(nodecache.NodePath(t.Path), t.Transform.Transform())
	}

	stOpts := []modification.StackBuilderOption{
		modification.WithSkeleton(sk, path),
		modification.WithResolver(b.registry),
		modification.WithLogger(b.logger),
	}
	if cfg.Stack.Enabled != nil {
		stOpts = append(stOpts, modification.WithEnabled(*cfg.Stack.Enabled))
	}
	st := modification.NewStack(stOpts...)
	if cfg.Stack.Strength != nil {
		if err := st.SetStrength(*cfg.Stack.Strength); err != nil {
			return nil, err
		}
	}
	for i := range cfg.Stack.Modifiers {
		m, err := buildModifier(&cfg.Stack.Modifiers[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "modifier %d", i)
		}
		st.AddModifier(m)
	}
	st.Setup()

	return &Rig{
		Name:     cfg.Name,
		Path:     path,
		Skeleton: sk,
		Stack:    st,
		Registry: b.registry,
		Config:   cfg,
	}, nil
}

// Tick runs the modification stack and publishes the resulting skin transforms.
//
// Parameters:
//   - delta: seconds elapsed since the previous tick
func (r *Rig) Tick(delta float32) {
	r.Skeleton.EnsurePose()
	r.Stack.Execute(delta)
	r.Skeleton.Update()
}

// Release removes the rig's nodes from its registry.
func (r *Rig) Release() {
	r.Registry.Remove(r.Path)
	for _, t := range r.Config.Targets {
		r.Registry.Remove(nodecache.NodePath(t.Path))
	}
}

func (b *builder) skeleton(cfg *Config, options []skeleton.SkeletonBuilderOption) (skeleton.Skeleton, error) {
	if cfg.GLTF != nil {
		var (
			asset *loader.SkeletonAsset
			err   error
		)
		if b.loader != nil {
			asset, err = b.loader.Load(cfg.GLTF.Path, cfg.GLTF.Skin, options...)
		} else {
			asset, err = loader.LoadSkeleton(cfg.GLTF.Path, cfg.GLTF.Skin, options...)
		}
		if err != nil {
			return nil, err
		}
		return asset.Skeleton, nil
	}

	sk := skeleton.NewSkeleton(options...)
	for _, bc := range cfg.Bones {
		idx, err := sk.AddBone(bc.Name, bc.Rest.Transform())
		if err != nil {
			return nil, err
		}
		if bc.DisableRest {
			if err := sk.SetBoneDisableRest(idx, true); err != nil {
				return nil, err
			}
		}
		if bc.CustomPose != nil {
			if err := sk.SetBoneCustomPose(idx, bc.CustomPose.Transform()); err != nil {
				return nil, err
			}
		}
		if bc.Disabled {
			if err := sk.SetBoneEnabled(idx, false); err != nil {
				return nil, err
			}
		}
	}
	for _, bc := range cfg.Bones {
		if bc.Parent == "" {
			continue
		}
		if err := sk.SetParent(sk.FindBone(bc.Name), sk.FindBone(bc.Parent)); err != nil {
			return nil, configError("bone %q: %v", bc.Name, err)
		}
	}
	sk.EnsureTopology()
	sk.EnsurePose()
	return sk, nil
}

func buildModifier(mc *ModifierConfig) (modification.Modifier, error) {
	target := nodecache.NodePath(mc.Target)
	var m modification.Modifier

	switch mc.Type {
	case TypeLookAt:
		forward, _ := parseAxis(mc.Forward, common.AxisPositiveY)
		look := modification.NewLookAt(target, mc.Bone,
			modification.WithLookAtForwardAxis(forward.Vector()),
			modification.WithLookAtLockedAxes(lockedAxes(mc.LockAxes)),
		)
		if mc.Constraint != nil {
			look.SetConstraint(constraint(mc.Constraint))
			look.SetConstraintInLocalSpace(mc.Constraint.Local)
		}
		if len(mc.AdditionalRotation) == 3 {
			look.SetAdditionalRotation(common.QuatFromEulerDegrees(vec3(mc.AdditionalRotation)))
		}
		look.SetPropagateInstantly(mc.PropagateInstantly)
		m = look

	case TypeCCDIK:
		forward, _ := parseAxis(mc.Forward, common.AxisPositiveY)
		ik := modification.NewCCDIK(target, modification.WithCCDIKForwardAxis(forward.Vector()))
		if mc.Tip != "" {
			ik.SetTipPath(nodecache.NodePath(mc.Tip))
		} else {
			ik.SetTipBone(mc.TipBone)
		}
		joints := make([]modification.CCDIKJoint, len(mc.Joints))
		for i, jc := range mc.Joints {
			mode, err := parseRotateMode(jc.Mode)
			if err != nil {
				return nil, err
			}
			axis, _ := parseAxis(jc.Axis, common.AxisPositiveZ)
			joints[i] = modification.CCDIKJoint{Bone: jc.Bone, Mode: mode, Axis: axis.Vector()}
			if jc.Constraint != nil {
				joints[i].Constraint = constraint(jc.Constraint)
				joints[i].ConstraintInLocalSpace = jc.Constraint.Local
			}
		}
		if err := ik.SetJoints(joints); err != nil {
			return nil, err
		}
		m = ik

	case TypeFABRIK:
		forward, _ := parseAxis(mc.Forward, common.AxisPositiveY)
		ik := modification.NewFABRIK(target, modification.WithFABRIKForwardAxis(forward.Vector()))
		if mc.Tolerance != 0 {
			if err := ik.SetChainTolerance(mc.Tolerance); err != nil {
				return nil, err
			}
		}
		if mc.MaxIterations != 0 {
			if err := ik.SetMaxIterations(mc.MaxIterations); err != nil {
				return nil, err
			}
		}
		joints := make([]modification.FABRIKJoint, len(mc.Joints))
		for i, jc := range mc.Joints {
			joints[i] = modification.FABRIKJoint{
				Bone:           jc.Bone,
				Length:         jc.Length,
				TipPath:        nodecache.NodePath(jc.Tip),
				Magnet:         vec3(jc.Magnet),
				UseTargetBasis: jc.UseTargetBasis,
			}
		}
		if err := ik.SetJoints(joints); err != nil {
			return nil, err
		}
		m = ik

	case TypeJiggle:
		forward, _ := parseAxis(mc.Forward, common.AxisPositiveY)
		j := modification.NewJiggle(target, modification.WithJiggleForwardAxis(forward.Vector()))
		if mc.Defaults != nil {
			if err := j.SetDefaults(jiggleParams(mc.Defaults)); err != nil {
				return nil, err
			}
		}
		joints := make([]modification.JiggleJoint, len(mc.Joints))
		for i, jc := range mc.Joints {
			joints[i] = modification.JiggleJoint{Bone: jc.Bone}
			if jc.Params != nil {
				joints[i].OverrideDefaults = true
				joints[i].Params = jiggleParams(jc.Params)
			}
		}
		if err := j.SetJoints(joints); err != nil {
			return nil, err
		}
		m = j

	default:
		return nil, configError("unknown modifier type %q", mc.Type)
	}

	if mc.Enabled != nil {
		m.SetEnabled(*mc.Enabled)
	}
	return m, nil
}

func parseRotateMode(s string) (modification.RotateMode, error) {
	switch strings.ToLower(s) {
	case "", "from-tip", "from_tip":
		return modification.RotateFromTip, nil
	case "from-joint", "from_joint":
		return modification.RotateFromJoint, nil
	case "free":
		return modification.RotateFree, nil
	}
	return modification.RotateFromTip, configError("unknown rotate mode %q", s)
}

func lockedAxes(axes []string) (x, y, z bool) {
	for _, a := range axes {
		switch strings.ToLower(a) {
		case "x":
			x = true
		case "y":
			y = true
		case "z":
			z = true
		}
	}
	return x, y, z
}

func constraint(c *ConstraintConfig) modification.Constraint {
	return modification.Constraint{
		Enabled: true,
		Min:     mgl32.DegToRad(c.Min),
		Max:     mgl32.DegToRad(c.Max),
		Invert:  c.Invert,
	}
}

func jiggleParams(c *JiggleParamsConfig) modification.JiggleParams {
	p := modification.DefaultJiggleParams()
	if c.Stiffness != nil {
		p.Stiffness = *c.Stiffness
	}
	if c.Mass != nil {
		p.Mass = *c.Mass
	}
	if c.Damping != nil {
		p.Damping = *c.Damping
	}
	if len(c.Gravity) == 3 {
		p.UseGravity = true
		p.Gravity = vec3(c.Gravity)
	}
	return p
}

// OwnedPaths returns the node paths the rig registered: its skeleton and its targets.
func (r *Rig) OwnedPaths() []nodecache.NodePath {
	paths := []nodecache.NodePath{r.Path}
	if r.Config == nil {
		return paths
	}
	for _, t := range r.Config.Targets {
		paths = append(paths, nodecache.NodePath(t.Path))
	}
	return paths
}

// ReferencedPaths returns the node paths the rig's modifiers read, deduplicated, in stack order.
func (r *Rig) ReferencedPaths() []nodecache.NodePath {
	if r.Config == nil {
		return nil
	}
	seen := make(map[string]bool)
	var paths []nodecache.NodePath
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		paths = append(paths, nodecache.NodePath(p))
	}
	for _, m := range r.Config.Stack.Modifiers {
		add(m.Target)
		add(m.Tip)
		for _, j := range m.Joints {
			add(j.Tip)
		}
	}
	return paths
}

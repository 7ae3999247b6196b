package rig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rig/engine/loader"
	"github.com/Carmen-Shannon/oxy-rig/engine/modification"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const neckYAML = `
name: puppet
bones:
  - name: root
  - name: neck
    parent: root
    rest:
      translation: [0, 1, 0]
  - name: head
    parent: neck
    rest:
      translation: [0, 1, 0]
targets:
  - path: /target
    transform:
      translation: [1, 2, 0]
  - path: /puppet/hat
    bone: head
    transform:
      translation: [0, 0.5, 0]
stack:
  modifiers:
    - type: lookat
      target: /target
      bone: neck
`

const neckTOML = `
name = "puppet"

[[bones]]
name = "root"

[[bones]]
name = "neck"
parent = "root"
[bones.rest]
translation = [0.0, 1.0, 0.0]

[[targets]]
path = "/target"
[targets.transform]
translation = [1.0, 2.0, 0.0]

[stack]
strength = 0.5

[[stack.modifiers]]
type = "lookat"
target = "/target"
bone = "neck"
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(neckYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "puppet", cfg.Name)
	assert.Equal(t, "/puppet", cfg.SkeletonPath())
	require.Len(t, cfg.Bones, 3)
	assert.Equal(t, "neck", cfg.Bones[2].Parent)
	require.Len(t, cfg.Stack.Modifiers, 1)
	assert.Equal(t, TypeLookAt, cfg.Stack.Modifiers[0].Type)
	assert.Nil(t, cfg.Stack.Strength)
}

func TestParseTOML(t *testing.T) {
	cfg, err := Parse([]byte(neckTOML), FormatTOML)
	require.NoError(t, err)

	require.Len(t, cfg.Bones, 2)
	assert.Equal(t, []float32{0, 1, 0}, cfg.Bones[1].Rest.Translation)
	require.NotNil(t, cfg.Stack.Strength)
	assert.InDelta(t, 0.5, *cfg.Stack.Strength, 1e-6)
	require.Len(t, cfg.Stack.Modifiers, 1)
	assert.Equal(t, "neck", cfg.Stack.Modifiers[0].Bone)
}

func TestParseRejectsInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"no name":          "bones: [{name: a}]",
		"unknown field":    "name: x\ncolour: red",
		"duplicate bone":   "name: x\nbones: [{name: a}, {name: a}]",
		"unknown parent":   "name: x\nbones: [{name: a, parent: b}]",
		"short vector":     "name: x\nbones: [{name: a, rest: {translation: [1, 2]}}]",
		"bones and gltf":   "name: x\nbones: [{name: a}]\ngltf: {path: a.glb}",
		"duplicate path":   "name: x\ntargets: [{path: /x}]",
		"strength":         "name: x\nstack: {strength: 2}",
		"unknown modifier": "name: x\nstack: {modifiers: [{type: spin, target: /t}]}",
		"lookat bone":      "name: x\nstack: {modifiers: [{type: lookat, target: /t}]}",
		"no target":        "name: x\nstack: {modifiers: [{type: lookat, bone: a}]}",
		"ccdik tip":        "name: x\nstack: {modifiers: [{type: ccdik, target: /t, joints: [{bone: a}]}]}",
		"no joints":        "name: x\nstack: {modifiers: [{type: fabrik, target: /t}]}",
		"bad axis":         "name: x\nstack: {modifiers: [{type: lookat, target: /t, bone: a, forward: w}]}",
		"bad lock axis":    "name: x\nstack: {modifiers: [{type: lookat, target: /t, bone: a, lock_axes: [q]}]}",
		"bad mode":         "name: x\nstack: {modifiers: [{type: ccdik, target: /t, tip_bone: b, joints: [{bone: a, mode: sideways}]}]}",
		"negative length":  "name: x\nstack: {modifiers: [{type: fabrik, target: /t, joints: [{bone: a, length: -1}]}]}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), FormatYAML)
			assert.True(t, errors.Is(err, skeleton.ErrConfiguration), "got %v", err)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("rigs/puppet.YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = FormatFromPath("puppet.toml")
	require.NoError(t, err)
	assert.Equal(t, FormatTOML, f)

	_, err = FormatFromPath("puppet.json")
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))
}

func TestMarshalKeepsModifiers(t *testing.T) {
	cfg, err := Parse([]byte(neckYAML), FormatYAML)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatTOML} {
		data, err := Marshal(cfg, format)
		require.NoError(t, err, format.String())
		back, err := Parse(data, format)
		require.NoError(t, err, format.String())
		assert.Equal(t, cfg.Stack.Modifiers[0].Bone, back.Stack.Modifiers[0].Bone, format.String())
		assert.Equal(t, cfg.Targets[1].Bone, back.Targets[1].Bone, format.String())
	}
}

func TestBuildAndTick(t *testing.T) {
	cfg, err := Parse([]byte(neckYAML), FormatYAML)
	require.NoError(t, err)

	r, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, nodecache.NodePath("/puppet"), r.Path)
	assert.Equal(t, 3, r.Skeleton.BoneCount())
	assert.True(t, r.Stack.IsSetup())
	assert.Equal(t, 1, r.Stack.ModifierCount())

	r.Tick(0.016)

	neck, err := r.Skeleton.BoneGlobalPose(r.Skeleton.FindBone("neck"))
	require.NoError(t, err)
	forward := neck.XformDirection(mgl32.Vec3{0, 1, 0}).Normalize()
	want := mgl32.Vec3{1, 1, 0}.Normalize()
	assert.Less(t, math32.Abs(1-forward.Dot(want)), float32(1e-4))

	hat, err := r.Registry.Resolve("/puppet/hat")
	require.NoError(t, err)
	hatWorld, ok := r.Registry.GlobalTransform(hat)
	require.True(t, ok)
	head, err := r.Skeleton.BoneGlobalPose(r.Skeleton.FindBone("head"))
	require.NoError(t, err)
	assert.True(t, hatWorld.Origin.ApproxEqualThreshold(head.Xform(mgl32.Vec3{0, 0.5, 0}), 1e-4))

	r.Release()
	assert.Empty(t, r.Registry.Paths())
}

func TestBuildHalfStrength(t *testing.T) {
	cfg, err := Parse([]byte(neckTOML), FormatTOML)
	require.NoError(t, err)

	r, err := Build(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r.Stack.Strength(), 1e-6)

	r.Tick(0.016)
	neck, err := r.Skeleton.BoneGlobalPose(r.Skeleton.FindBone("neck"))
	require.NoError(t, err)
	forward := neck.XformDirection(mgl32.Vec3{0, 1, 0}).Normalize()
	angle := math32.Acos(mgl32.Clamp(forward.Dot(mgl32.Vec3{0, 1, 0}), -1, 1))
	assert.InDelta(t, math32.Pi/8, angle, 1e-3)
}

func TestBuildModifiers(t *testing.T) {
	const src = `
name: arm
world:
  translation: [5, 0, 0]
bones:
  - name: shoulder
  - name: elbow
    parent: shoulder
    rest: {translation: [0, 1, 0]}
  - name: hand
    parent: elbow
    rest: {translation: [0, 1, 0]}
targets:
  - path: /goal
    transform: {translation: [6, 1, 0]}
stack:
  strength: 1
  modifiers:
    - type: ccdik
      target: /goal
      tip_bone: hand
      joints:
        - {bone: elbow, axis: z, constraint: {min: -90, max: 90}}
        - {bone: shoulder, axis: z}
    - type: fabrik
      enabled: false
      target: /goal
      tolerance: 0.001
      max_iterations: 20
      joints:
        - {bone: shoulder}
        - {bone: elbow}
        - {bone: hand, length: 0.5}
    - type: jiggle
      target: /goal
      defaults: {stiffness: 2, gravity: [0, -9.8, 0]}
      joints:
        - {bone: hand, params: {damping: 0.9}}
    - type: lookat
      target: /goal
      bone: hand
      lock_axes: [x]
      additional_rotation: [0, 90, 0]
      constraint: {min: -45, max: 45}
`
	cfg, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)

	r, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, 4, r.Stack.ModifierCount())

	m, err := r.Stack.Modifier(0)
	require.NoError(t, err)
	ik, ok := m.(modification.CCDIK)
	require.True(t, ok)
	joints := ik.Joints()
	require.Len(t, joints, 2)
	assert.Equal(t, modification.RotateFromTip, joints[0].Mode)
	assert.True(t, joints[0].Constraint.Enabled)
	assert.InDelta(t, math32.Pi/2, joints[0].Constraint.Max, 1e-5)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, joints[0].Axis)

	m, err = r.Stack.Modifier(1)
	require.NoError(t, err)
	fab, ok := m.(modification.FABRIK)
	require.True(t, ok)
	assert.False(t, fab.Enabled())
	assert.InDelta(t, 0.5, fab.Joints()[2].Length, 1e-6)
	assert.Equal(t, 20, fab.MaxIterations())

	m, err = r.Stack.Modifier(2)
	require.NoError(t, err)
	jig, ok := m.(modification.Jiggle)
	require.True(t, ok)
	assert.True(t, jig.Defaults().UseGravity)
	jj := jig.Joints()
	require.Len(t, jj, 1)
	assert.True(t, jj[0].OverrideDefaults)
	assert.InDelta(t, 0.9, jj[0].Params.Damping, 1e-6)

	for i := 0; i < 10; i++ {
		r.Tick(0.016)
	}
	for _, name := range []string{"shoulder", "elbow", "hand"} {
		g, err := r.Skeleton.BoneGlobalPose(r.Skeleton.FindBone(name))
		require.NoError(t, err)
		assert.False(t, math32.IsNaN(g.Origin.X()), name)
	}
}

func TestBuildBoneOptions(t *testing.T) {
	const src = `
name: arm
bones:
  - name: shoulder
  - name: elbow
    parent: shoulder
    rest: {translation: [0, 1, 0]}
    custom_pose: {rotation: [0, 0, 90]}
  - name: hand
    parent: elbow
    rest: {translation: [0, 1, 0]}
    disable_rest: true
targets:
  - path: /goal
    transform: {translation: [3, 1, 0]}
stack:
  modifiers:
    - type: lookat
      target: /goal
      bone: shoulder
      constraint: {min: 0, max: 10, local: true}
`
	cfg, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)
	require.NotNil(t, cfg.Bones[1].CustomPose)
	assert.True(t, cfg.Bones[2].DisableRest)
	assert.True(t, cfg.Stack.Modifiers[0].Constraint.Local)

	r, err := Build(cfg)
	require.NoError(t, err)
	sk := r.Skeleton

	disabled, err := sk.BoneDisableRest(sk.FindBone("hand"))
	require.NoError(t, err)
	assert.True(t, disabled)
	rest, err := sk.GlobalRest(sk.FindBone("hand"))
	require.NoError(t, err)
	assert.True(t, rest.Origin.ApproxEqualThreshold(mgl32.Vec3{0, 1, 0}, 1e-5))

	// the elbow's custom quarter turn swings the hand over to -X
	hand, err := sk.BoneGlobalPose(sk.FindBone("hand"))
	require.NoError(t, err)
	assert.True(t, hand.Origin.ApproxEqualThreshold(mgl32.Vec3{-1, 1, 0}, 1e-4), "hand %v", hand.Origin)

	m, err := r.Stack.Modifier(0)
	require.NoError(t, err)
	look, ok := m.(modification.LookAt)
	require.True(t, ok)
	assert.True(t, look.ConstraintInLocalSpace())

	_, err = Parse([]byte("name: x\nbones: [{name: a, custom_pose: {rotation: [1]}}]"), FormatYAML)
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))
}

func TestBuildRejectsUnknownBoneTarget(t *testing.T) {
	cfg := &Config{
		Name:    "x",
		Bones:   []BoneConfig{{Name: "a"}},
		Targets: []TargetConfig{{Path: "/t", Bone: "missing"}},
	}
	_, err := Build(cfg)
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))

	_, err = Build(nil)
	assert.True(t, errors.Is(err, skeleton.ErrConfiguration))
}

func TestBuildFromGLTF(t *testing.T) {
	doc := gltf.NewDocument()
	doc.Nodes = []*gltf.Node{
		{Name: "root", Children: []uint32{1}},
		{Name: "tail", Translation: [3]float32{0, 0, -1}},
	}
	doc.Skins = []*gltf.Skin{{Joints: []uint32{0, 1}}}

	cfg := &Config{
		Name: "cat",
		GLTF: &GLTFConfig{Path: "cat.gltf"},
		Targets: []TargetConfig{
			{Path: "/ball", Transform: TransformConfig{Translation: []float32{0, -1, -1}}},
		},
		Stack: StackConfig{Modifiers: []ModifierConfig{
			{Type: TypeLookAt, Target: "/ball", Bone: "root", Forward: "-z"},
		}},
	}

	reg := nodecache.NewRegistry()
	r, err := Build(cfg,
		WithLoader(loader.NewLoader(loader.WithDocument("cat.gltf", doc))),
		WithRegistry(reg),
	)
	require.NoError(t, err)
	assert.Same(t, reg, r.Registry)
	assert.Equal(t, "cat", r.Skeleton.Name())
	assert.Equal(t, 2, r.Skeleton.BoneCount())

	r.Tick(0.016)
	root, err := r.Skeleton.BoneGlobalPose(0)
	require.NoError(t, err)
	forward := root.XformDirection(mgl32.Vec3{0, 0, -1}).Normalize()
	want := mgl32.Vec3{0, -1, -1}.Normalize()
	assert.Less(t, math32.Abs(1-forward.Dot(want)), float32(1e-4))
}

func TestLoadResolvesGLTFPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: cat\ngltf: {path: models/cat.glb, skin: 1}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "models", "cat.glb"), cfg.GLTF.Path)
	assert.Equal(t, 1, cfg.GLTF.Skin)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "puppet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(neckYAML), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configs := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config, err error) {
			if err != nil {
				return
			}
			select {
			case configs <- cfg:
			default:
			}
		})
	}()

	renamed := []byte("name: marionette\nbones: [{name: root}]\n")
	var got *Config
	require.Eventually(t, func() bool {
		select {
		case got = <-configs:
			return got.Name == "marionette"
		default:
			_ = os.WriteFile(path, renamed, 0o644)
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
	assert.Len(t, got.Bones, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestRigPaths(t *testing.T) {
	cfg, err := Parse([]byte(neckYAML), FormatYAML)
	require.NoError(t, err)
	cfg.Stack.Modifiers = append(cfg.Stack.Modifiers, ModifierConfig{
		Type: TypeFABRIK, Target: "/target", Joints: []JointConfig{{Bone: "neck", Tip: "/puppet/hat"}},
	})

	r, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, []nodecache.NodePath{"/puppet", "/target", "/puppet/hat"}, r.OwnedPaths())
	assert.Equal(t, []nodecache.NodePath{"/target", "/puppet/hat"}, r.ReferencedPaths())
}

// Package rig describes a skeleton and its modification stack in a YAML or TOML file and builds the
// runtime objects from it.
package rig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is a rig file encoding.
type Format int

const (
	// FormatYAML selects YAML.
	FormatYAML Format = iota
	// FormatTOML selects TOML.
	FormatTOML
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	}
	return "unknown"
}

// FormatFromPath picks the format from a file extension.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Format: the format
//   - error: ErrConfiguration for an unknown extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return FormatYAML, errors.Wrapf(skeleton.ErrConfiguration, "unknown rig file extension %q", filepath.Ext(path))
}

// Modifier type discriminators.
const (
	TypeLookAt = "lookat"
	TypeCCDIK  = "ccdik"
	TypeFABRIK = "fabrik"
	TypeJiggle = "jiggle"
)

// Config is the file representation of a rig.
type Config struct {
	// Name names the skeleton. Required.
	Name string `yaml:"name" toml:"name"`
	// Path is the node path the skeleton is registered under. Defaults to "/" + Name.
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
	// World is the skeleton's world transform. Defaults to identity.
	World *TransformConfig `yaml:"world,omitempty" toml:"world,omitempty"`
	// Bones lists the bones. Mutually exclusive with GLTF.
	Bones []BoneConfig `yaml:"bones,omitempty" toml:"bones,omitempty"`
	// GLTF imports the bones from a skin of a glTF file.
	GLTF *GLTFConfig `yaml:"gltf,omitempty" toml:"gltf,omitempty"`
	// Targets are nodes registered alongside the skeleton.
	Targets []TargetConfig `yaml:"targets,omitempty" toml:"targets,omitempty"`
	// Stack is the modification stack.
	Stack StackConfig `yaml:"stack" toml:"stack"`
}

// TransformConfig is a translation, an Euler rotation in degrees (applied X, then Y, then Z) and a scale.
// Missing components default to zero translation, no rotation and unit scale.
type TransformConfig struct {
	Translation []float32 `yaml:"translation,omitempty" toml:"translation,omitempty"`
	Rotation    []float32 `yaml:"rotation,omitempty" toml:"rotation,omitempty"`
	Scale       []float32 `yaml:"scale,omitempty" toml:"scale,omitempty"`
}

// BoneConfig is one bone of a hand-described skeleton.
type BoneConfig struct {
	Name        string           `yaml:"name" toml:"name"`
	Parent      string           `yaml:"parent,omitempty" toml:"parent,omitempty"`
	Rest        TransformConfig  `yaml:"rest" toml:"rest"`
	Disabled    bool             `yaml:"disabled,omitempty" toml:"disabled,omitempty"`
	DisableRest bool             `yaml:"disable_rest,omitempty" toml:"disable_rest,omitempty"`
	CustomPose  *TransformConfig `yaml:"custom_pose,omitempty" toml:"custom_pose,omitempty"`
}

// GLTFConfig selects a skin of a glTF file. Relative paths are resolved against the rig file's directory.
type GLTFConfig struct {
	Path string `yaml:"path" toml:"path"`
	Skin int    `yaml:"skin" toml:"skin"`
}

// TargetConfig is a node registered with the rig. A target with a Bone follows that bone of the rig's
// skeleton, offset by Transform; otherwise it is a static node placed at Transform.
type TargetConfig struct {
	Path      string          `yaml:"path" toml:"path"`
	Bone      string          `yaml:"bone,omitempty" toml:"bone,omitempty"`
	Transform TransformConfig `yaml:"transform" toml:"transform"`
}

// StackConfig is the file representation of a modification stack.
type StackConfig struct {
	Enabled   *bool            `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	Strength  *float32         `yaml:"strength,omitempty" toml:"strength,omitempty"`
	Modifiers []ModifierConfig `yaml:"modifiers,omitempty" toml:"modifiers,omitempty"`
}

// ConstraintConfig is an angle limit in degrees. Local measures it against the bone's local rest.
type ConstraintConfig struct {
	Min    float32 `yaml:"min" toml:"min"`
	Max    float32 `yaml:"max" toml:"max"`
	Invert bool    `yaml:"invert,omitempty" toml:"invert,omitempty"`
	Local  bool    `yaml:"local,omitempty" toml:"local,omitempty"`
}

// JiggleParamsConfig overrides spring parameters. Missing fields keep the built-in defaults; a gravity
// vector enables gravity.
type JiggleParamsConfig struct {
	Stiffness *float32  `yaml:"stiffness,omitempty" toml:"stiffness,omitempty"`
	Mass      *float32  `yaml:"mass,omitempty" toml:"mass,omitempty"`
	Damping   *float32  `yaml:"damping,omitempty" toml:"damping,omitempty"`
	Gravity   []float32 `yaml:"gravity,omitempty" toml:"gravity,omitempty"`
}

// JointConfig is one joint of an IK chain or jiggle modifier. Fields apply to the modifier types noted.
type JointConfig struct {
	Bone string `yaml:"bone" toml:"bone"`

	// ccdik
	Mode       string            `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Axis       string            `yaml:"axis,omitempty" toml:"axis,omitempty"`
	Constraint *ConstraintConfig `yaml:"constraint,omitempty" toml:"constraint,omitempty"`

	// fabrik
	Length         float32   `yaml:"length,omitempty" toml:"length,omitempty"`
	Tip            string    `yaml:"tip,omitempty" toml:"tip,omitempty"`
	Magnet         []float32 `yaml:"magnet,omitempty" toml:"magnet,omitempty"`
	UseTargetBasis bool      `yaml:"use_target_basis,omitempty" toml:"use_target_basis,omitempty"`

	// jiggle
	Params *JiggleParamsConfig `yaml:"params,omitempty" toml:"params,omitempty"`
}

// ModifierConfig is one modification stack slot. Type selects the modifier; fields apply to the types noted.
type ModifierConfig struct {
	Type    string `yaml:"type" toml:"type"`
	Enabled *bool  `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	Target  string `yaml:"target" toml:"target"`
	Forward string `yaml:"forward,omitempty" toml:"forward,omitempty"`

	// lookat
	Bone               string            `yaml:"bone,omitempty" toml:"bone,omitempty"`
	Constraint         *ConstraintConfig `yaml:"constraint,omitempty" toml:"constraint,omitempty"`
	LockAxes           []string          `yaml:"lock_axes,omitempty" toml:"lock_axes,omitempty"`
	AdditionalRotation []float32         `yaml:"additional_rotation,omitempty" toml:"additional_rotation,omitempty"`
	PropagateInstantly bool              `yaml:"propagate_instantly,omitempty" toml:"propagate_instantly,omitempty"`

	// ccdik
	Tip     string `yaml:"tip,omitempty" toml:"tip,omitempty"`
	TipBone string `yaml:"tip_bone,omitempty" toml:"tip_bone,omitempty"`

	// fabrik
	Tolerance     float32 `yaml:"tolerance,omitempty" toml:"tolerance,omitempty"`
	MaxIterations int     `yaml:"max_iterations,omitempty" toml:"max_iterations,omitempty"`

	// jiggle
	Defaults *JiggleParamsConfig `yaml:"defaults,omitempty" toml:"defaults,omitempty"`

	// ccdik, fabrik, jiggle
	Joints []JointConfig `yaml:"joints,omitempty" toml:"joints,omitempty"`
}

// Load reads and validates a rig file, picking the format from its extension.
//
// Parameters:
//   - path: the rig file path
//
// Returns:
//   - *Config: the parsed configuration
//   - error: a read error, or ErrConfiguration for an invalid file
func Load(path string) (*Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading rig file %s", path)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, errors.WithMessagef(err, "rig file %s", path)
	}
	if cfg.GLTF != nil && cfg.GLTF.Path != "" && !filepath.IsAbs(cfg.GLTF.Path) {
		cfg.GLTF.Path = filepath.Join(filepath.Dir(path), cfg.GLTF.Path)
	}
	return cfg, nil
}

// Parse decodes and validates a rig description. Unknown fields are rejected.
//
// Parameters:
//   - data: the encoded description
//   - format: the encoding
//
// Returns:
//   - *Config: the parsed configuration
//   - error: ErrConfiguration for malformed or invalid input
func Parse(data []byte, format Format) (*Config, error) {
	cfg := new(Config)
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "decoding yaml: %v", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "decoding toml: %v", err)
		}
	default:
		return nil, errors.Wrapf(skeleton.ErrConfiguration, "unknown rig format %d", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes a configuration.
//
// Parameters:
//   - cfg: the configuration
//   - format: the encoding
//
// Returns:
//   - []byte: the encoded configuration
//   - error: an encoding error
func Marshal(cfg *Config, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, errors.Wrap(err, "encoding yaml")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "closing yaml encoder")
		}
		return buf.Bytes(), nil
	case FormatTOML:
		data, err := toml.Marshal(cfg)
		return data, errors.Wrap(err, "encoding toml")
	}
	return nil, errors.Wrapf(skeleton.ErrConfiguration, "unknown rig format %d", format)
}

// SkeletonPath returns the node path of the rig's skeleton.
func (c *Config) SkeletonPath() string {
	return common.Coalesce(c.Path, "/"+c.Name)
}

// Validate checks the configuration without building it.
//
// Returns:
//   - error: ErrConfiguration describing the first problem found
func (c *Config) Validate() error {
	if c.Name == "" {
		return configError("rig has no name")
	}
	if len(c.Bones) > 0 && c.GLTF != nil {
		return configError("rig %q sets both bones and gltf", c.Name)
	}
	if c.GLTF != nil && c.GLTF.Path == "" {
		return configError("rig %q: gltf path is empty", c.Name)
	}
	if c.World != nil {
		if err := c.World.validate("world"); err != nil {
			return err
		}
	}

	names := make(map[string]bool, len(c.Bones))
	for i, b := range c.Bones {
		if b.Name == "" {
			return configError("bone %d has no name", i)
		}
		if names[b.Name] {
			return configError("duplicate bone %q", b.Name)
		}
		names[b.Name] = true
		if err := b.Rest.validate("bone " + b.Name + " rest"); err != nil {
			return err
		}
		if b.CustomPose != nil {
			if err := b.CustomPose.validate("bone " + b.Name + " custom_pose"); err != nil {
				return err
			}
		}
	}
	for _, b := range c.Bones {
		if b.Parent != "" && !names[b.Parent] {
			return configError("bone %q has unknown parent %q", b.Name, b.Parent)
		}
	}

	paths := map[string]bool{c.SkeletonPath(): true}
	for i, t := range c.Targets {
		if t.Path == "" {
			return configError("target %d has no path", i)
		}
		if paths[t.Path] {
			return configError("duplicate node path %q", t.Path)
		}
		paths[t.Path] = true
		if err := t.Transform.validate("target " + t.Path); err != nil {
			return err
		}
	}

	if s := c.Stack.Strength; s != nil && (*s < 0 || *s > 1) {
		return configError("stack strength %v outside [0, 1]", *s)
	}
	for i := range c.Stack.Modifiers {
		if err := c.Stack.Modifiers[i].validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (m *ModifierConfig) validate(slot int) error {
	switch m.Type {
	case TypeLookAt:
		if m.Bone == "" {
			return configError("modifier %d (%s) has no bone", slot, m.Type)
		}
	case TypeCCDIK:
		if m.Tip == "" && m.TipBone == "" {
			return configError("modifier %d (%s) has no tip", slot, m.Type)
		}
	case TypeFABRIK, TypeJiggle:
	default:
		return configError("modifier %d has unknown type %q", slot, m.Type)
	}
	if m.Target == "" {
		return configError("modifier %d (%s) has no target", slot, m.Type)
	}
	if m.Type != TypeLookAt && len(m.Joints) == 0 {
		return configError("modifier %d (%s) has no joints", slot, m.Type)
	}
	if _, err := parseAxis(m.Forward, common.AxisPositiveY); err != nil {
		return errors.WithMessagef(err, "modifier %d", slot)
	}
	for _, a := range m.LockAxes {
		switch strings.ToLower(a) {
		case "x", "y", "z":
		default:
			return configError("modifier %d: unknown lock axis %q", slot, a)
		}
	}
	if err := checkVec3(m.AdditionalRotation, "additional_rotation"); err != nil {
		return errors.WithMessagef(err, "modifier %d", slot)
	}
	for j, joint := range m.Joints {
		if joint.Bone == "" {
			return configError("modifier %d joint %d has no bone", slot, j)
		}
		if _, err := parseRotateMode(joint.Mode); err != nil {
			return errors.WithMessagef(err, "modifier %d joint %d", slot, j)
		}
		if _, err := parseAxis(joint.Axis, common.AxisPositiveZ); err != nil {
			return errors.WithMessagef(err, "modifier %d joint %d", slot, j)
		}
		if joint.Length < 0 {
			return configError("modifier %d joint %d has negative length", slot, j)
		}
		if err := checkVec3(joint.Magnet, "magnet"); err != nil {
			return errors.WithMessagef(err, "modifier %d joint %d", slot, j)
		}
	}
	return nil
}

func (t TransformConfig) validate(what string) error {
	if err := checkVec3(t.Translation, "translation"); err != nil {
		return errors.WithMessage(err, what)
	}
	if err := checkVec3(t.Rotation, "rotation"); err != nil {
		return errors.WithMessage(err, what)
	}
	if err := checkVec3(t.Scale, "scale"); err != nil {
		return errors.WithMessage(err, what)
	}
	return nil
}

// Transform converts the configuration into a transform.
func (t TransformConfig) Transform() common.Transform {
	scale := mgl32.Vec3{1, 1, 1}
	if len(t.Scale) == 3 {
		scale = vec3(t.Scale)
	}
	return common.NewTransform(common.QuatFromEulerDegrees(vec3(t.Rotation)), scale, vec3(t.Translation))
}

func checkVec3(v []float32, field string) error {
	if len(v) != 0 && len(v) != 3 {
		return configError("%s needs 3 components, got %d", field, len(v))
	}
	return nil
}

func vec3(v []float32) mgl32.Vec3 {
	if len(v) != 3 {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{v[0], v[1], v[2]}
}

func parseAxis(s string, def common.Axis) (common.Axis, error) {
	if s == "" {
		return def, nil
	}
	a, ok := common.ParseAxis(s)
	if !ok {
		return def, configError("unknown axis %q", s)
	}
	return a, nil
}

func configError(format string, args ...any) error {
	return errors.Wrapf(skeleton.ErrConfiguration, format, args...)
}

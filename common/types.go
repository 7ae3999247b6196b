// package common contains plain math and value types shared by the rig engine. They are not interface-wrapped
// structs, just values that express commonly used data-types.
package common

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Axis names one of the six signed principal axes used to describe a bone's forward direction.
type Axis int

const (
	AxisPositiveX Axis = iota
	AxisPositiveY
	AxisPositiveZ
	AxisNegativeX
	AxisNegativeY
	AxisNegativeZ
)

// Vector returns the unit vector of the axis.
//
// Returns:
//   - mgl32.Vec3: the unit direction
func (a Axis) Vector() mgl32.Vec3 {
	switch a {
	case AxisPositiveX:
		return mgl32.Vec3{1, 0, 0}
	case AxisPositiveZ:
		return mgl32.Vec3{0, 0, 1}
	case AxisNegativeX:
		return mgl32.Vec3{-1, 0, 0}
	case AxisNegativeY:
		return mgl32.Vec3{0, -1, 0}
	case AxisNegativeZ:
		return mgl32.Vec3{0, 0, -1}
	default:
		return mgl32.Vec3{0, 1, 0}
	}
}

func (a Axis) String() string {
	switch a {
	case AxisPositiveX:
		return "+x"
	case AxisPositiveY:
		return "+y"
	case AxisPositiveZ:
		return "+z"
	case AxisNegativeX:
		return "-x"
	case AxisNegativeY:
		return "-y"
	case AxisNegativeZ:
		return "-z"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// ParseAxis parses an axis name such as "x", "+y" or "-z" (case-insensitive).
//
// Parameters:
//   - s: the axis name
//
// Returns:
//   - Axis: the parsed axis
//   - bool: false if the name is not recognized
func ParseAxis(s string) (Axis, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "+x":
		return AxisPositiveX, true
	case "y", "+y":
		return AxisPositiveY, true
	case "z", "+z":
		return AxisPositiveZ, true
	case "-x":
		return AxisNegativeX, true
	case "-y":
		return AxisNegativeY, true
	case "-z":
		return AxisNegativeZ, true
	}
	return AxisPositiveY, false
}

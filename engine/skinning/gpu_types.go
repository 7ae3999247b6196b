package skinning

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUSkinMatrixSource is the canonical WGSL definition of the SkinMatrix struct and its storage binding.
// Matches GPUSkinMatrix layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/skin_matrix.wgsl
var GPUSkinMatrixSource string

// GPUSkinMatrixSize is the byte size of one packed skin matrix.
const GPUSkinMatrixSize = 64

// GPUSkinMatrix is the GPU-aligned representation of one bone's skinning matrix, the world transform of
// the skeleton multiplied by the bone's final skin transform.
// Size: 64 bytes (mat4x4<f32>, column-major, std430 aligned).
type GPUSkinMatrix struct {
	Matrix [16]float32 // offset 0, size 64 (mat4x4<f32>)
}

// NewGPUSkinMatrix converts a column-major mgl32 matrix into its GPU representation.
func NewGPUSkinMatrix(m mgl32.Mat4) GPUSkinMatrix {
	return GPUSkinMatrix{Matrix: m}
}

// Size returns the size of the GPUSkinMatrix struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUSkinMatrix) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSkinMatrix struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUSkinMatrix) Marshal() []byte {
	buf := make([]byte, GPUSkinMatrixSize)
	g.MarshalInto(buf)
	return buf
}

// MarshalInto serializes the matrix into the first 64 bytes of buf.
//
// Parameters:
//   - buf: destination slice, at least 64 bytes long
func (g *GPUSkinMatrix) MarshalInto(buf []byte) {
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Matrix[i]))
	}
}

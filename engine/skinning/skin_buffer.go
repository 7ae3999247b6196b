package skinning

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rig/common"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// skinBuffer is the unexported implementation of SkinBuffer.
type skinBuffer struct {
	mu *sync.Mutex

	label   string
	binding int
	log     *logrus.Entry

	matrices []GPUSkinMatrix
	// staging holds the packed bytes of every matrix; staged writes slice into it.
	staging []byte

	dirty                bool
	dirtyStart, dirtyEnd int
	resized              bool

	// The following fields are GPU allocated resources and must be released when no longer needed.

	device    *wgpu.Device
	buffer    *wgpu.Buffer
	allocSize uint64

	uploads uint64
}

// SkinBuffer receives a skeleton's skinning transforms, packs them as std430 mat4x4<f32> values and
// uploads them into a GPU storage buffer. UpdateSkin may be called from any goroutine; only the
// matrices that changed since the previous upload are written.
type SkinBuffer interface {
	skeleton.SkinConsumer

	// Label returns the debug label of the buffer.
	Label() string

	// Binding returns the storage binding index the buffer is bound to.
	Binding() int

	// BoneCount returns the number of matrices currently held.
	BoneCount() int

	// Matrix returns the packed matrix of a bone.
	//
	// Parameters:
	//   - idx: the bone index
	//
	// Returns:
	//   - mgl32.Mat4: the skinning matrix, world transform included
	//   - error: ErrIndexOutOfRange if idx is invalid
	Matrix(idx int) (mgl32.Mat4, error)

	// Bytes returns a copy of the packed matrices.
	Bytes() []byte

	// StagedWrites drains the pending buffer writes. The whole buffer is returned as one write after
	// the bone count changed; otherwise a single write covers the changed range.
	//
	// Returns:
	//   - []BufferWrite: the pending writes, nil when nothing changed
	StagedWrites() []BufferWrite

	// Init binds the buffer to a device. The GPU buffer itself is created on the first Upload.
	//
	// Parameters:
	//   - device: the wgpu device
	Init(device *wgpu.Device)

	// Upload writes the pending changes to the GPU, (re)creating the storage buffer when it is missing
	// or too small.
	//
	// Parameters:
	//   - queue: the device queue
	//
	// Returns:
	//   - error: ErrNotReady if Init was not called, or the wgpu error
	Upload(queue *wgpu.Queue) error

	// LayoutEntry returns the bind group layout entry for the buffer, derived from the storage
	// declaration in GPUSkinMatrixSource and placed at the buffer's binding.
	//
	// Parameters:
	//   - visibility: the shader stages reading the matrices
	//
	// Returns:
	//   - wgpu.BindGroupLayoutEntry: the layout entry
	//   - error: ErrConfiguration if the WGSL declares no skin matrix storage
	LayoutEntry(visibility wgpu.ShaderStage) (wgpu.BindGroupLayoutEntry, error)

	// Buffer returns the GPU storage buffer, nil before the first Upload.
	Buffer() *wgpu.Buffer

	// Uploads returns how many times Upload wrote data to the GPU.
	Uploads() uint64

	// Release releases the GPU buffer.
	Release()
}

var _ SkinBuffer = &skinBuffer{}

// NewSkinBuffer creates a SkinBuffer with no matrices.
//
// Parameters:
//   - options: functional options for buffer configuration
//
// Returns:
//   - SkinBuffer: the buffer
func NewSkinBuffer(options ...SkinBufferBuilderOption) SkinBuffer {
	b := &skinBuffer{
		mu:    &sync.Mutex{},
		label: "skin",
	}

	for _, opt := range options {
		opt(b)
	}

	if b.log == nil {
		b.log = logrus.NewEntry(logrus.StandardLogger())
	}
	b.log = b.log.WithFields(logrus.Fields{"component": "skinning", "buffer": b.label})
	return b
}

func (b *skinBuffer) UpdateSkin(base common.Transform, finals []common.Transform) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(finals) != len(b.matrices) {
		b.matrices = make([]GPUSkinMatrix, len(finals))
		b.staging = make([]byte, len(finals)*GPUSkinMatrixSize)
		b.resized = true
		b.dirty = false
	}

	baseMat := base.Mat4()
	for i, f := range finals {
		m := NewGPUSkinMatrix(baseMat.Mul4(f.Mat4()))
		if !b.resized && m == b.matrices[i] {
			continue
		}
		b.matrices[i] = m
		m.MarshalInto(b.staging[i*GPUSkinMatrixSize:])
		b.markDirty(i)
	}
}

// markDirty extends the dirty range to include bone i.
func (b *skinBuffer) markDirty(i int) {
	if b.resized {
		return
	}
	if !b.dirty {
		b.dirty = true
		b.dirtyStart, b.dirtyEnd = i, i+1
		return
	}
	b.dirtyStart = min(b.dirtyStart, i)
	b.dirtyEnd = max(b.dirtyEnd, i+1)
}

func (b *skinBuffer) Label() string {
	return b.label
}

func (b *skinBuffer) Binding() int {
	return b.binding
}

func (b *skinBuffer) BoneCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.matrices)
}

func (b *skinBuffer) Matrix(idx int) (mgl32.Mat4, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx < 0 || idx >= len(b.matrices) {
		return mgl32.Ident4(), errors.Wrapf(skeleton.ErrIndexOutOfRange, "skin matrix %d, count %d", idx, len(b.matrices))
	}
	return mgl32.Mat4(b.matrices[idx].Matrix), nil
}

func (b *skinBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.staging))
	copy(out, b.staging)
	return out
}

func (b *skinBuffer) StagedWrites() []BufferWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drain()
}

// drain returns and clears the pending writes. Callers hold mu.
func (b *skinBuffer) drain() []BufferWrite {
	var writes []BufferWrite
	switch {
	case b.resized:
		data := make([]byte, len(b.staging))
		copy(data, b.staging)
		writes = []BufferWrite{{Binding: b.binding, Offset: 0, Data: data}}
	case b.dirty:
		start, end := b.dirtyStart*GPUSkinMatrixSize, b.dirtyEnd*GPUSkinMatrixSize
		data := make([]byte, end-start)
		copy(data, b.staging[start:end])
		writes = []BufferWrite{{Binding: b.binding, Offset: uint64(start), Data: data}}
	}
	b.resized = false
	b.dirty = false
	return writes
}

func (b *skinBuffer) Init(device *wgpu.Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device = device
}

func (b *skinBuffer) Upload(queue *wgpu.Queue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.device == nil || queue == nil {
		return errors.Wrapf(skeleton.ErrNotReady, "skin buffer %q is not initialized", b.label)
	}
	if len(b.staging) == 0 {
		b.drain()
		return nil
	}

	need := uint64(len(b.staging))
	if b.buffer == nil || b.allocSize < need {
		b.releaseBuffer()
		buf, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    b.label + " Skin Buffer",
			Contents: b.staging,
			Usage:    wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return errors.Wrapf(err, "creating skin buffer %q", b.label)
		}
		b.buffer = buf
		b.allocSize = need
		b.drain()
		b.uploads++
		b.log.WithField("bytes", need).Debug("skin buffer allocated")
		return nil
	}

	writes := b.drain()
	for _, w := range writes {
		if err := queue.WriteBuffer(b.buffer, w.Offset, w.Data); err != nil {
			return errors.Wrapf(err, "writing skin buffer %q", b.label)
		}
	}
	if len(writes) > 0 {
		b.uploads++
	}
	return nil
}

func (b *skinBuffer) Buffer() *wgpu.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer
}

func (b *skinBuffer) Uploads() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads
}

func (b *skinBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseBuffer()
	b.device = nil
}

func (b *skinBuffer) releaseBuffer() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
		b.allocSize = 0
	}
}

package skinning

import "github.com/sirupsen/logrus"

// SkinBufferBuilderOption is a functional option for configuring a SkinBuffer.
type SkinBufferBuilderOption func(b *skinBuffer)

// WithLabel sets the debug label used for the GPU buffer.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - SkinBufferBuilderOption: option function to apply
func WithLabel(label string) SkinBufferBuilderOption {
	return func(b *skinBuffer) {
		b.label = label
	}
}

// WithBinding sets the storage binding index reported in staged writes.
//
// Parameters:
//   - binding: the binding index
//
// Returns:
//   - SkinBufferBuilderOption: option function to apply
func WithBinding(binding int) SkinBufferBuilderOption {
	return func(b *skinBuffer) {
		b.binding = binding
	}
}

// WithLogger sets the logger used by the buffer.
//
// Parameters:
//   - l: the logrus logger
//
// Returns:
//   - SkinBufferBuilderOption: option function to apply
func WithLogger(l *logrus.Logger) SkinBufferBuilderOption {
	return func(b *skinBuffer) {
		if l != nil {
			b.log = logrus.NewEntry(l)
		}
	}
}

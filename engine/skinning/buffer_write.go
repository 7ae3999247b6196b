package skinning

// BufferWrite describes a single GPU buffer write operation targeting a specific binding at a given byte offset.
type BufferWrite struct {
	Binding int
	Offset  uint64
	Data    []byte
}

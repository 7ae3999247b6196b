package skeleton

import "github.com/pkg/errors"

// Error categories shared by the skeleton, the modification stack and the node cache.
// Callers match them with errors.Is; call sites wrap them with context.
var (
	// ErrIndexOutOfRange is returned when a bone index does not address an existing bone.
	ErrIndexOutOfRange = errors.New("bone index out of range")
	// ErrInvalidReference is returned when a parent, bone or node reference cannot be honored.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrConfiguration is returned when a setter receives a value outside its allowed domain.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotReady is returned when a pose is queried before the skeleton has been attached to a world transform.
	ErrNotReady = errors.New("skeleton not attached")
	// ErrCacheStale is returned when a cached node reference could not be resolved this tick.
	ErrCacheStale = errors.New("node cache stale")
)

func indexError(idx, count int) error {
	return errors.Wrapf(ErrIndexOutOfRange, "index %d, bone count %d", idx, count)
}

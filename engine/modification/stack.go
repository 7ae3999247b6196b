package modification

import (
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// stack implements the Stack interface.
type stack struct {
	sk       skeleton.Skeleton
	skPath   nodecache.NodePath
	resolver nodecache.Resolver

	modifiers []Modifier
	strength  float32
	enabled   bool
	setup     bool

	reported map[int]string // last error message logged per slot

	baseLogger *logrus.Logger
	log        *logrus.Entry
}

// Stack is an ordered list of modifier slots executed once per tick against a single skeleton.
// Slots may be empty. A Stack is single-threaded, like the skeleton it drives.
type Stack interface {
	// Skeleton returns the bound skeleton, or nil.
	Skeleton() skeleton.Skeleton

	// SkeletonPath returns the node path of the bound skeleton, used to reject modifiers targeting it.
	SkeletonPath() nodecache.NodePath

	// SetSkeleton binds the stack to a skeleton. Rebinding clears the setup flag.
	//
	// Parameters:
	//   - sk: the skeleton, or nil to unbind
	//   - path: the skeleton's node path, or "" if it has none
	SetSkeleton(sk skeleton.Skeleton, path nodecache.NodePath)

	// Resolver returns the node resolver used by modifiers.
	Resolver() nodecache.Resolver

	// SetResolver replaces the node resolver. Set-up modifiers re-resolve on their next tick.
	SetResolver(r nodecache.Resolver)

	// Logger returns the stack's log entry.
	Logger() *logrus.Entry

	// Setup binds every modifier to the stack. It is a no-op when already set up or when no skeleton is bound.
	Setup()

	// IsSetup reports whether Setup has completed.
	IsSetup() bool

	// Execute runs one tick: clears non-persistent overrides, then executes every enabled modifier in slot order.
	// It is a no-op while the stack is disabled, not set up, unbound or the skeleton is inactive.
	// Modifier failures are logged once per distinct error and never abort the remaining modifiers.
	//
	// Parameters:
	//   - delta: seconds elapsed since the previous tick
	Execute(delta float32)

	// Enabled reports whether the stack executes.
	Enabled() bool

	// SetEnabled enables or disables the stack.
	SetEnabled(enabled bool)

	// Strength returns the override amount used by modifiers.
	Strength() float32

	// SetStrength sets the override amount used by modifiers.
	//
	// Parameters:
	//   - strength: a value in [0, 1]
	//
	// Returns:
	//   - error: ErrConfiguration if strength is outside [0, 1]; the previous value is kept
	SetStrength(strength float32) error

	// AddModifier appends a modifier and sets it up if the stack already is.
	//
	// Parameters:
	//   - m: the modifier, may be nil to reserve an empty slot
	//
	// Returns:
	//   - int: the slot index
	AddModifier(m Modifier) int

	// SetModifier replaces the modifier in a slot.
	SetModifier(idx int, m Modifier) error

	// RemoveModifier deletes a slot, shifting later slots down.
	RemoveModifier(idx int) error

	// MoveModifier moves a slot to a new position, shifting the slots in between.
	MoveModifier(from, to int) error

	// Modifier returns the modifier in a slot, which may be nil.
	Modifier(idx int) (Modifier, error)

	// Modifiers returns a copy of the slot list.
	Modifiers() []Modifier

	// ModifierCount returns the number of slots.
	ModifierCount() int

	// SetModifierCount grows the slot list with empty slots or truncates it.
	//
	// Parameters:
	//   - n: the new slot count
	//
	// Returns:
	//   - error: ErrConfiguration if n is negative
	SetModifierCount(n int) error

	// EnableAllModifiers enables or disables every non-empty slot.
	EnableAllModifiers(enabled bool)
}

var _ Stack = &stack{}

// NewStack creates an enabled stack with strength 1.
//
// Parameters:
//   - options: functional options for stack configuration
//
// Returns:
//   - Stack: the newly created stack
func NewStack(options ...StackBuilderOption) Stack {
	s := &stack{
		strength:   1,
		enabled:    true,
		reported:   make(map[int]string),
		baseLogger: logrus.StandardLogger(),
	}

	for _, opt := range options {
		opt(s)
	}

	s.log = s.baseLogger.WithField("component", "modification")
	if s.sk != nil {
		s.log = s.log.WithField("skeleton", s.sk.Name())
	}
	return s
}

func (s *stack) Skeleton() skeleton.Skeleton {
	return s.sk
}

func (s *stack) SkeletonPath() nodecache.NodePath {
	return s.skPath
}

func (s *stack) SetSkeleton(sk skeleton.Skeleton, path nodecache.NodePath) {
	s.sk = sk
	s.skPath = path
	s.setup = false
	s.log = s.baseLogger.WithField("component", "modification")
	if sk != nil {
		s.log = s.log.WithField("skeleton", sk.Name())
	}
}

func (s *stack) Resolver() nodecache.Resolver {
	return s.resolver
}

func (s *stack) SetResolver(r nodecache.Resolver) {
	s.resolver = r
	if s.setup {
		for i, m := range s.modifiers {
			if m != nil {
				s.report(i, m, m.Setup(s))
			}
		}
	}
}

func (s *stack) Logger() *logrus.Entry {
	return s.log
}

func (s *stack) Setup() {
	if s.setup {
		return
	}
	if s.sk == nil {
		s.log.Warn("cannot set up modification stack: no skeleton bound")
		return
	}
	s.setup = true
	for i, m := range s.modifiers {
		if m != nil {
			s.report(i, m, m.Setup(s))
		}
	}
}

func (s *stack) IsSetup() bool {
	return s.setup
}

func (s *stack) Execute(delta float32) {
	if !s.enabled || !s.setup || s.sk == nil || !s.sk.Active() {
		return
	}

	s.sk.ClearNonPersistentOverrides()
	for i, m := range s.modifiers {
		if m == nil || !m.Enabled() {
			continue
		}
		s.report(i, m, m.Execute(delta))
	}
}

// report logs a modifier error once per distinct message per slot and forgets it on success.
// A target that just revalidated is a recovery and is logged at debug level.
func (s *stack) report(slot int, m Modifier, err error) {
	if err == nil {
		delete(s.reported, slot)
		return
	}
	if errors.Is(err, nodecache.ErrRevalidated) {
		delete(s.reported, slot)
		s.log.WithFields(logrus.Fields{"slot": slot, "modifier": m.Type()}).Debug("modifier target revalidated")
		return
	}
	msg := err.Error()
	if s.reported[slot] == msg {
		return
	}
	s.reported[slot] = msg
	s.log.WithFields(logrus.Fields{"slot": slot, "modifier": m.Type()}).WithError(err).Warn("modifier failed")
}

func (s *stack) Enabled() bool {
	return s.enabled
}

func (s *stack) SetEnabled(enabled bool) {
	s.enabled = enabled
}

func (s *stack) Strength() float32 {
	return s.strength
}

func (s *stack) SetStrength(strength float32) error {
	if strength < 0 || strength > 1 {
		return errors.Wrapf(skeleton.ErrConfiguration, "strength %v outside [0, 1]", strength)
	}
	s.strength = strength
	return nil
}

func (s *stack) AddModifier(m Modifier) int {
	s.modifiers = append(s.modifiers, m)
	idx := len(s.modifiers) - 1
	if s.setup && m != nil {
		s.report(idx, m, m.Setup(s))
	}
	return idx
}

func (s *stack) SetModifier(idx int, m Modifier) error {
	if err := s.checkSlot(idx); err != nil {
		return err
	}
	s.modifiers[idx] = m
	delete(s.reported, idx)
	if s.setup && m != nil {
		s.report(idx, m, m.Setup(s))
	}
	return nil
}

func (s *stack) RemoveModifier(idx int) error {
	if err := s.checkSlot(idx); err != nil {
		return err
	}
	s.modifiers = append(s.modifiers[:idx], s.modifiers[idx+1:]...)
	s.reported = make(map[int]string)
	return nil
}

func (s *stack) MoveModifier(from, to int) error {
	if err := s.checkSlot(from); err != nil {
		return err
	}
	if err := s.checkSlot(to); err != nil {
		return err
	}
	m := s.modifiers[from]
	s.modifiers = append(s.modifiers[:from], s.modifiers[from+1:]...)
	s.modifiers = append(s.modifiers[:to], append([]Modifier{m}, s.modifiers[to:]...)...)
	s.reported = make(map[int]string)
	return nil
}

func (s *stack) Modifier(idx int) (Modifier, error) {
	if err := s.checkSlot(idx); err != nil {
		return nil, err
	}
	return s.modifiers[idx], nil
}

func (s *stack) Modifiers() []Modifier {
	out := make([]Modifier, len(s.modifiers))
	copy(out, s.modifiers)
	return out
}

func (s *stack) ModifierCount() int {
	return len(s.modifiers)
}

func (s *stack) SetModifierCount(n int) error {
	if n < 0 {
		return errors.Wrapf(skeleton.ErrConfiguration, "modifier count %d is negative", n)
	}
	if n <= len(s.modifiers) {
		s.modifiers = s.modifiers[:n]
	} else {
		s.modifiers = append(s.modifiers, make([]Modifier, n-len(s.modifiers))...)
	}
	for slot := range s.reported {
		if slot >= n {
			delete(s.reported, slot)
		}
	}
	return nil
}

func (s *stack) EnableAllModifiers(enabled bool) {
	for _, m := range s.modifiers {
		if m != nil {
			m.SetEnabled(enabled)
		}
	}
}

func (s *stack) checkSlot(idx int) error {
	if idx < 0 || idx >= len(s.modifiers) {
		return errors.Wrapf(skeleton.ErrIndexOutOfRange, "modifier slot %d, count %d", idx, len(s.modifiers))
	}
	return nil
}

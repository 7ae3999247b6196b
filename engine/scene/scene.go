package scene

import (
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rig/engine/nodecache"
	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TickEvent describes a completed scene tick.
type TickEvent struct {
	Scene    string
	Tick     uint64
	Delta    float32
	Rigs     int
	Duration time.Duration
}

// Scene owns a set of rigs published in one node registry and ticks them together.
// Rigs that read each other's nodes are ticked in order on one worker; unrelated rigs tick in parallel.
// Scenes can be toggled via the Active flag; inactive scenes skip their ticks.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Active returns whether this scene is ticked.
	Active() bool

	// SetActive sets whether this scene is ticked.
	SetActive(active bool)

	// Registry returns the node registry shared by the scene's rigs.
	Registry() nodecache.Registry

	// Add builds a rig from its configuration into the scene's registry.
	//
	// Parameters:
	//   - cfg: the rig configuration
	//   - options: additional rig builder options; the scene supplies the registry and logger
	//
	// Returns:
	//   - uuid.UUID: the rig's ID
	//   - error: ErrConfiguration if the rig's node paths are already taken or the rig cannot be built
	Add(cfg *rig.Config, options ...rig.RigBuilderOption) (uuid.UUID, error)

	// Get returns a rig by ID, or nil if not found.
	//
	// Parameters:
	//   - id: the rig's ID
	//
	// Returns:
	//   - *rig.Rig: the rig or nil
	Get(id uuid.UUID) *rig.Rig

	// View calls fn with a rig while holding the scene's lock, so the rig is not ticked or read concurrently.
	// Skeleton reads may recompute cached poses, so plain read access is not enough.
	//
	// Parameters:
	//   - id: the rig's ID
	//   - fn: the function to call
	//
	// Returns:
	//   - bool: false if the rig is not found
	View(id uuid.UUID, fn func(r *rig.Rig)) bool

	// Locked calls fn while holding the scene's lock, e.g. to read bone-bound registry nodes between ticks.
	//
	// Parameters:
	//   - fn: the function to call
	Locked(fn func())

	// Find returns the ID of the first rig with the given name.
	//
	// Parameters:
	//   - name: the rig name
	//
	// Returns:
	//   - uuid.UUID: the rig's ID
	//   - bool: false if no rig has that name
	Find(name string) (uuid.UUID, bool)

	// Replace rebuilds the rig with the given ID from a new configuration, keeping its ID.
	// The old rig stays in place if the new one fails to build.
	//
	// Parameters:
	//   - id: the rig's ID
	//   - cfg: the new configuration
	//   - options: additional rig builder options
	//
	// Returns:
	//   - error: ErrInvalidReference for an unknown ID, or a build error
	Replace(id uuid.UUID, cfg *rig.Config, options ...rig.RigBuilderOption) error

	// Remove removes a rig and its nodes from the scene.
	//
	// Parameters:
	//   - id: the rig's ID
	Remove(id uuid.UUID)

	// Rigs returns the rig IDs in the order they were added.
	Rigs() []uuid.UUID

	// Count returns the number of rigs.
	Count() int

	// Clear removes all rigs.
	Clear()

	// Tick advances every rig by delta seconds. Does nothing while the scene is inactive.
	//
	// Parameters:
	//   - delta: seconds elapsed since the previous tick
	Tick(delta float32)

	// Ticks returns the number of completed ticks.
	Ticks() uint64

	// OnTick registers a listener called after every completed tick.
	//
	// Parameters:
	//   - fn: the listener
	//
	// Returns:
	//   - int: an ID for RemoveTickListener
	OnTick(fn func(TickEvent)) int

	// RemoveTickListener unregisters a tick listener.
	//
	// Parameters:
	//   - id: the listener ID returned by OnTick
	RemoveTickListener(id int)

	// Release stops the scene's worker pool. The scene must not be ticked afterwards.
	Release()
}

type scene struct {
	mu *sync.RWMutex

	name     string
	active   bool
	registry nodecache.Registry
	logger   *logrus.Logger
	log      *logrus.Entry

	rigs  map[uuid.UUID]*rig.Rig
	order []uuid.UUID

	// groups partitions the rigs into chains that must tick serially; rebuilt lazily after membership changes.
	groups      [][]*rig.Rig
	groupsDirty bool

	listeners    map[int]func(TickEvent)
	nextListener int
	ticks        uint64

	// computePool manages a bounded set of reusable goroutines for ticking rig groups.
	computePool    worker.DynamicWorkerPool
	computeWorkers int
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates an active Scene with its own node registry.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:             &sync.RWMutex{},
		name:           name,
		active:         true,
		rigs:           make(map[uuid.UUID]*rig.Rig),
		listeners:      make(map[int]func(TickEvent)),
		computeWorkers: max(runtime.NumCPU()-1, 1),
	}

	for _, option := range options {
		option(s)
	}

	if s.registry == nil {
		s.registry = nodecache.NewRegistry()
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.log = s.logger.WithFields(logrus.Fields{"component": "scene", "scene": name})

	// Initialize the compute pool after options so WithComputeWorkers can override the default.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *scene) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *scene) Registry() nodecache.Registry {
	return s.registry
}

func (s *scene) Add(cfg *rig.Config, options ...rig.RigBuilderOption) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.build(cfg, nil, options)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	s.rigs[id] = r
	s.order = append(s.order, id)
	s.groupsDirty = true
	s.log.WithFields(logrus.Fields{"rig": r.Name, "id": id}).Info("rig added")
	return id, nil
}

func (s *scene) Get(id uuid.UUID) *rig.Rig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rigs[id]
}

func (s *scene) View(id uuid.UUID, fn func(r *rig.Rig)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rigs[id]
	if !ok {
		return false
	}
	fn(r)
	return true
}

func (s *scene) Locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *scene) Find(name string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if s.rigs[id].Name == name {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (s *scene) Replace(id uuid.UUID, cfg *rig.Config, options ...rig.RigBuilderOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rigs[id]
	if !ok {
		return errors.Wrapf(skeleton.ErrInvalidReference, "rig %s not found", id)
	}

	// Build against the registry with the old rig's nodes withdrawn, restoring them on failure.
	old.Release()
	r, err := s.build(cfg, old, options)
	if err != nil {
		s.republish(old)
		return err
	}
	s.rigs[id] = r
	s.groupsDirty = true
	s.log.WithFields(logrus.Fields{"rig": r.Name, "id": id}).Info("rig replaced")
	return nil
}

func (s *scene) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rigs[id]
	if !ok {
		return
	}
	r.Release()
	delete(s.rigs, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.groupsDirty = true
	s.log.WithFields(logrus.Fields{"rig": r.Name, "id": id}).Info("rig removed")
}

func (s *scene) Rigs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, len(s.order))
	copy(out, s.order)
	return out
}

func (s *scene) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rigs)
}

func (s *scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rigs {
		r.Release()
	}
	s.rigs = make(map[uuid.UUID]*rig.Rig)
	s.order = nil
	s.groups = nil
	s.groupsDirty = false
}

func (s *scene) Tick(delta float32) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if s.groupsDirty {
		s.groups = s.partition()
		s.groupsDirty = false
	}
	groups := s.groups
	count := len(s.rigs)
	name := s.name

	start := time.Now()

	// Groups are independent and tick in parallel on the compute pool. A WaitGroup provides the
	// per-tick barrier; the write lock keeps rigs from being replaced mid-tick.
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		g := group
		s.computePool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				for _, r := range g {
					r.Tick(delta)
				}
				return nil, nil
			},
		})
	}
	wg.Wait()

	s.ticks++
	event := TickEvent{Scene: name, Tick: s.ticks, Delta: delta, Rigs: count, Duration: time.Since(start)}
	listeners := make([]func(TickEvent), 0, len(s.listeners))
	for id := 0; id < s.nextListener; id++ {
		if fn, ok := s.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

func (s *scene) Ticks() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks
}

func (s *scene) OnTick(fn func(TickEvent)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return id
}

func (s *scene) RemoveTickListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

func (s *scene) Release() {
	s.computePool.Stop()
}

// build creates a rig in the scene registry. Node paths owned by other rigs are rejected; skip is the
// rig being replaced, whose nodes have already been withdrawn.
func (s *scene) build(cfg *rig.Config, skip *rig.Rig, options []rig.RigBuilderOption) (*rig.Rig, error) {
	if cfg == nil {
		return nil, errors.Wrap(skeleton.ErrConfiguration, "no rig configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	owned := make(map[nodecache.NodePath]bool)
	for _, r := range s.rigs {
		if r == skip {
			continue
		}
		for _, p := range r.OwnedPaths() {
			owned[p] = true
		}
	}
	candidate := &rig.Rig{Path: nodecache.NodePath(cfg.SkeletonPath()), Config: cfg}
	for _, p := range candidate.OwnedPaths() {
		if owned[p] {
			return nil, errors.Wrapf(skeleton.ErrConfiguration, "node path %q is already used in scene %q", p, s.name)
		}
	}

	opts := append([]rig.RigBuilderOption{rig.WithRegistry(s.registry), rig.WithLogger(s.logger)}, options...)
	r, err := rig.Build(cfg, opts...)
	if err != nil {
		// Build may have registered some nodes before failing.
		(&rig.Rig{Path: candidate.Path, Registry: s.registry, Config: cfg}).Release()
		return nil, err
	}
	return r, nil
}

// republish puts a released rig's nodes back into the registry.
func (s *scene) republish(r *rig.Rig) {
	s.registry.AddSkeleton(r.Path, r.Skeleton)
	for _, t := range r.Config.Targets {
		path := nodecache.NodePath(t.Path)
		if t.Bone != "" {
			s.registry.BindToBone(path, r.Skeleton, t.Bone, t.Transform.Transform())
			continue
		}
		s.registry.Set(path, t.Transform.Transform())
	}
}

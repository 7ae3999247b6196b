package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rig/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type engine struct {
	mu *sync.RWMutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)

	scenes map[int]scene.Scene

	logger *logrus.Logger
	log    *logrus.Entry
}

// Engine drives the tick loop: every tick it advances the active scenes in ascending key order,
// then calls the tick callback.
type Engine interface {
	// Profiler returns the engine's profiler.
	Profiler() *profiler.Profiler

	// EnableProfiler turns on periodic tick statistics.
	EnableProfiler()

	// DisableProfiler turns off periodic tick statistics.
	DisableProfiler()

	// SetTickRate changes the tick rate, also while running.
	//
	// Parameters:
	//   - fps: target ticks per second; values <= 0 select 60
	SetTickRate(fps float64)

	// TickRate returns the interval between ticks.
	TickRate() time.Duration

	// SetTickCallback sets a function called after the scenes on every tick.
	//
	// Parameters:
	//   - callback: the function, receiving the elapsed seconds
	SetTickCallback(callback func(deltaTime float32))

	// AddScene registers a scene. Scenes tick in ascending key order.
	//
	// Parameters:
	//   - key: the ordering key
	//   - s: the scene
	AddScene(key int, s scene.Scene)

	// RemoveScene unregisters a scene.
	//
	// Parameters:
	//   - key: the scene's key
	RemoveScene(key int)

	// Scene returns the scene registered under key, or nil.
	Scene(key int) scene.Scene

	// Scenes returns a copy of the registered scenes.
	Scenes() map[int]scene.Scene

	// Step runs one tick synchronously.
	//
	// Parameters:
	//   - deltaTime: seconds to advance
	Step(deltaTime float32)

	// Run ticks at the tick rate until ctx is done or Quit is called. An engine runs once.
	//
	// Parameters:
	//   - ctx: stops the loop when done
	//
	// Returns:
	//   - error: ErrAlreadyRunning if Run is already active, otherwise nil
	Run(ctx context.Context) error

	// Running reports whether Run is active.
	Running() bool

	// Quit stops Run. Safe to call more than once.
	Quit()
}

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("engine already running")

var _ Engine = &engine{}

// NewEngine creates an engine ticking at 60Hz.
//
// Parameters:
//   - options: functional options to configure the engine
//
// Returns:
//   - Engine: the engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:               &sync.RWMutex{},
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		scenes:           make(map[int]scene.Scene),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	e.log = e.logger.WithField("component", "engine")
	e.profiler = profiler.NewProfiler(e.logger)
	return e
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	rate := e.engineTickRate
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.log.WithField("tick_rate", rate).Info("engine started")
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case <-e.quitChannel:
			e.log.Info("engine quit")
			return nil
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.Step(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.mu.Lock()
			e.engineTickRate = newRate
			e.mu.Unlock()
		}
	}
}

func (e *engine) Step(deltaTime float32) {
	start := time.Now()

	e.mu.RLock()
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	scenes := make([]scene.Scene, 0, len(keys))
	for _, k := range keys {
		scenes = append(scenes, e.scenes[k])
	}
	callback := e.tickCallback
	profiling := e.profilingEnabled
	e.mu.RUnlock()

	for _, s := range scenes {
		if s.Active() {
			s.Tick(deltaTime)
		}
	}
	if callback != nil {
		callback(deltaTime)
	}
	if profiling {
		e.profiler.Tick(time.Since(start))
	}
}

func (e *engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) SetTickRate(fps float64) {
	newRate := tickInterval(fps)

	e.mu.Lock()
	running := e.running
	if !running {
		e.engineTickRate = newRate
	}
	e.mu.Unlock()
	if !running {
		return
	}

	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) TickRate() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.engineTickRate
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

func tickInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}

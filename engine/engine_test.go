package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepTicksScenesInKeyOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()

	var mu sync.Mutex
	var order []string
	record := func(e scene.TickEvent) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, e.Scene)
	}

	front := scene.NewScene("front", scene.WithLogger(logger), scene.WithComputeWorkers(1))
	back := scene.NewScene("back", scene.WithLogger(logger), scene.WithComputeWorkers(1))
	hidden := scene.NewScene("hidden", scene.WithLogger(logger), scene.WithComputeWorkers(1), scene.WithActive(false))
	for _, s := range []scene.Scene{front, back, hidden} {
		s.OnTick(record)
		defer s.Release()
	}

	var callbackDelta float32
	e := NewEngine(
		WithLogger(logger),
		WithScene(10, front),
		WithScene(-5, back),
		WithScene(0, hidden),
		WithTickCallback(func(dt float32) { callbackDelta = dt }),
	)
	e.Step(0.25)

	assert.Equal(t, []string{"back", "front"}, order)
	assert.InDelta(t, 0.25, callbackDelta, 1e-6)

	e.RemoveScene(-5)
	assert.Nil(t, e.Scene(-5))
	assert.Len(t, e.Scenes(), 2)
}

func TestRunStopsOnQuitAndContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var ticks atomic.Int32
	e := NewEngine(WithLogger(logger), WithTickRate(200), WithProfiling(true))
	e.SetTickCallback(func(float32) { ticks.Add(1) })
	assert.Equal(t, 5*time.Millisecond, e.TickRate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, time.Millisecond)
	assert.True(t, e.Running())
	assert.ErrorIs(t, e.Run(ctx), ErrAlreadyRunning)

	e.SetTickRate(100)
	require.Eventually(t, func() bool { return e.TickRate() == 10*time.Millisecond }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.False(t, e.Running())

	// Quit also stops a fresh run and may be called twice.
	e.Quit()
	e.Quit()
	assert.NoError(t, e.Run(context.Background()))
}

func TestTickRateDefaults(t *testing.T) {
	e := NewEngine(WithTickRate(0))
	assert.Equal(t, time.Second/60, e.TickRate())
	e.SetTickRate(30)
	assert.Equal(t, time.Second/30, e.TickRate())
}

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Carmen-Shannon/oxy-rig/engine"
	"github.com/Carmen-Shannon/oxy-rig/engine/inspector"
	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/Carmen-Shannon/oxy-rig/engine/skinning"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	tickRate    float64
	workers     int
	inspect     string
	streamEvery uint64
	anyOrigin   bool
	watch       bool
	profile     bool
	skin        bool
}

// loadedRig is one rig file added to the scene.
type loadedRig struct {
	path    string
	id      uuid.UUID
	options []rig.RigBuilderOption
	skin    skinning.SkinBuffer
}

func readRunOptions(cmd *cobra.Command) (runOptions, error) {
	var (
		opts runOptions
		err  error
	)
	flags := cmd.Flags()
	if opts.tickRate, err = flags.GetFloat64("tick-rate"); err != nil {
		return opts, errors.Wrap(err, "reading --tick-rate flag")
	}
	if opts.workers, err = flags.GetInt("workers"); err != nil {
		return opts, errors.Wrap(err, "reading --workers flag")
	}
	if opts.inspect, err = flags.GetString("inspect"); err != nil {
		return opts, errors.Wrap(err, "reading --inspect flag")
	}
	if opts.streamEvery, err = flags.GetUint64("stream-every"); err != nil {
		return opts, errors.Wrap(err, "reading --stream-every flag")
	}
	if opts.anyOrigin, err = flags.GetBool("any-origin"); err != nil {
		return opts, errors.Wrap(err, "reading --any-origin flag")
	}
	if opts.watch, err = flags.GetBool("watch"); err != nil {
		return opts, errors.Wrap(err, "reading --watch flag")
	}
	if opts.profile, err = flags.GetBool("profile"); err != nil {
		return opts, errors.Wrap(err, "reading --profile flag")
	}
	if opts.skin, err = flags.GetBool("skin"); err != nil {
		return opts, errors.Wrap(err, "reading --skin flag")
	}
	if opts.tickRate <= 0 {
		return opts, errors.Errorf("--tick-rate must be positive, got %v", opts.tickRate)
	}
	return opts, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	opts, err := readRunOptions(cmd)
	if err != nil {
		return err
	}

	sceneOptions := []scene.SceneBuilderOption{scene.WithLogger(logger)}
	if opts.workers > 0 {
		sceneOptions = append(sceneOptions, scene.WithComputeWorkers(opts.workers))
	}
	s := scene.NewScene("oxyrig", sceneOptions...)
	defer s.Release()

	rigs, err := addRigs(s, args, opts.skin, logger)
	if err != nil {
		return err
	}

	engineOptions := []engine.EngineBuilderOption{
		engine.WithLogger(logger),
		engine.WithTickRate(opts.tickRate),
		engine.WithProfiling(opts.profile),
		engine.WithScene(0, s),
	}
	if opts.skin {
		engineOptions = append(engineOptions, engine.WithTickCallback(skinReporter(rigs, logger)))
	}
	eng := engine.NewEngine(engineOptions...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		bgErr   error
	)
	fail := func(err error) {
		errOnce.Do(func() { bgErr = err })
		cancel()
	}

	if opts.inspect != "" {
		inspectorOptions := []inspector.InspectorBuilderOption{
			inspector.WithLogger(logger),
			inspector.WithStreamEvery(opts.streamEvery),
			inspector.WithAnyOrigin(opts.anyOrigin),
		}
		if opts.profile {
			inspectorOptions = append(inspectorOptions, inspector.WithProfiler(eng.Profiler()))
		}
		ins := inspector.NewInspector(s, inspectorOptions...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ins.ListenAndServe(ctx, opts.inspect); err != nil {
				fail(err)
			}
		}()
	}

	if opts.watch {
		for _, lr := range rigs {
			wg.Add(1)
			go func(lr *loadedRig) {
				defer wg.Done()
				if err := rig.Watch(ctx, lr.path, reloader(s, lr, logger)); err != nil {
					fail(err)
				}
			}(lr)
		}
	}

	runErr := eng.Run(ctx)
	cancel()
	wg.Wait()
	for _, lr := range rigs {
		if lr.skin != nil {
			lr.skin.Release()
		}
	}
	if runErr != nil {
		return runErr
	}
	return bgErr
}

// addRigs loads every rig file into the scene. With skin set each rig is given a skin buffer.
func addRigs(s scene.Scene, paths []string, skin bool, logger *logrus.Logger) ([]*loadedRig, error) {
	rigs := make([]*loadedRig, 0, len(paths))
	for _, path := range paths {
		cfg, err := rig.Load(path)
		if err != nil {
			return nil, err
		}
		lr := &loadedRig{path: path}
		if skin {
			lr.skin = skinning.NewSkinBuffer(skinning.WithLabel(cfg.Name), skinning.WithLogger(logger))
			lr.options = append(lr.options, rig.WithSkinConsumer(lr.skin))
			entry, err := lr.skin.LayoutEntry(wgpu.ShaderStageVertex)
			if err != nil {
				return nil, err
			}
			logger.WithFields(logrus.Fields{
				"buffer":   cfg.Name,
				"binding":  entry.Binding,
				"min_size": entry.Buffer.MinBindingSize,
			}).Debug("skin layout")
		}
		if lr.id, err = s.Add(cfg, lr.options...); err != nil {
			return nil, errors.WithMessagef(err, "adding %s", path)
		}
		logger.WithFields(logrus.Fields{"file": path, "rig": cfg.Name, "id": lr.id}).Info("rig loaded")
		rigs = append(rigs, lr)
	}
	return rigs, nil
}

// reloader replaces a rig in the scene each time its file reloads. A broken file keeps the old rig running.
func reloader(s scene.Scene, lr *loadedRig, logger *logrus.Logger) func(*rig.Config, error) {
	log := logger.WithFields(logrus.Fields{"file": lr.path, "id": lr.id})
	return func(cfg *rig.Config, err error) {
		if err != nil {
			log.WithError(err).Warn("rig reload failed")
			return
		}
		if err := s.Replace(lr.id, cfg, lr.options...); err != nil {
			log.WithError(err).Warn("rig rebuild failed")
			return
		}
		log.Info("rig reloaded")
	}
}

// skinReporter drains each rig's staged skin writes after a tick and logs their size.
func skinReporter(rigs []*loadedRig, logger *logrus.Logger) func(float32) {
	log := logger.WithField("component", "skin")
	return func(float32) {
		for _, lr := range rigs {
			writes := lr.skin.StagedWrites()
			if len(writes) == 0 {
				continue
			}
			size := 0
			for _, w := range writes {
				size += len(w.Data)
			}
			log.WithFields(logrus.Fields{
				"buffer": lr.skin.Label(),
				"bones":  lr.skin.BoneCount(),
				"writes": len(writes),
				"bytes":  size,
			}).Debug("skin staged")
		}
	}
}

// Package inspector serves a read-mostly HTTP view of a scene's rigs: JSON snapshots, spew dumps,
// stack actions and a websocket stream of bone poses.
package inspector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rig/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/Carmen-Shannon/oxy-rig/engine/skeleton"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Inspector is an HTTP front end for one scene.
type Inspector interface {
	// Handler returns the routed handler with request logging and panic recovery.
	Handler() http.Handler

	// ListenAndServe serves the inspector until ctx is done.
	//
	// Parameters:
	//   - ctx: stops the server when done
	//   - addr: the listen address
	//
	// Returns:
	//   - error: a listen error, nil after a clean shutdown
	ListenAndServe(ctx context.Context, addr string) error

	// Close disconnects all stream clients.
	Close()
}

type inspector struct {
	mu *sync.Mutex

	scene    scene.Scene
	profiler *profiler.Profiler
	logger   *logrus.Logger
	log      *logrus.Entry
	dumper   *spew.ConfigState
	upgrader websocket.Upgrader

	streamEvery uint64
	clients     map[*client]bool
	logWriter   *io.PipeWriter
	handler     http.Handler
}

var _ Inspector = &inspector{}

// NewInspector creates an inspector for a scene.
//
// Parameters:
//   - s: the scene to inspect
//   - options: functional options to configure the inspector
//
// Returns:
//   - Inspector: the inspector
func NewInspector(s scene.Scene, options ...InspectorBuilderOption) Inspector {
	i := &inspector{
		mu:          &sync.Mutex{},
		scene:       s,
		streamEvery: 1,
		clients:     make(map[*client]bool),
	}
	for _, opt := range options {
		opt(i)
	}
	if i.logger == nil {
		i.logger = logrus.StandardLogger()
	}
	i.log = i.logger.WithField("component", "inspector")

	i.dumper = spew.NewDefaultConfig()
	i.dumper.DisableCapacities = true
	i.dumper.DisablePointerAddresses = true
	i.dumper.SortKeys = true

	r := mux.NewRouter()
	r.HandleFunc("/json/scene", i.handleScene).Methods(http.MethodGet)
	r.HandleFunc("/json/nodes", i.handleNodes).Methods(http.MethodGet)
	r.HandleFunc("/json/stats", i.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/json/rigs/{id}", i.handleRig).Methods(http.MethodGet)
	r.HandleFunc("/json/rigs/{id}/bones/{bone}", i.handleBone).Methods(http.MethodGet)
	r.HandleFunc("/dump/rigs/{id}", i.handleDump).Methods(http.MethodGet)
	r.HandleFunc("/action/rigs/{id}/{action}", i.handleAction).Methods(http.MethodPost)
	r.HandleFunc("/ws/rigs/{id}", i.handleStream)

	i.logWriter = i.logger.WriterLevel(logrus.DebugLevel)
	h := handlers.LoggingHandler(i.logWriter, r)
	i.handler = handlers.RecoveryHandler(handlers.RecoveryLogger(i.log), handlers.PrintRecoveryStack(true))(h)
	return i
}

func (i *inspector) Handler() http.Handler {
	return i.handler
}

func (i *inspector) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: i.handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		i.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			i.log.WithError(err).Warn("inspector shutdown")
		}
	}()

	i.log.WithField("addr", addr).Info("starting inspector")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serving inspector on %s", addr)
	}
	return nil
}

func (i *inspector) Close() {
	i.mu.Lock()
	clients := make([]*client, 0, len(i.clients))
	for c := range i.clients {
		clients = append(clients, c)
	}
	i.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (i *inspector) handleScene(w http.ResponseWriter, r *http.Request) {
	type sceneView struct {
		Name   string       `json:"name"`
		Active bool         `json:"active"`
		Ticks  uint64       `json:"ticks"`
		Rigs   []RigSummary `json:"rigs"`
	}
	v := sceneView{Name: i.scene.Name(), Active: i.scene.Active(), Ticks: i.scene.Ticks(), Rigs: []RigSummary{}}
	for _, id := range i.scene.Rigs() {
		i.scene.View(id, func(rg *rig.Rig) {
			v.Rigs = append(v.Rigs, summarize(id, rg))
		})
	}
	i.writeJSON(w, v)
}

func (i *inspector) handleNodes(w http.ResponseWriter, r *http.Request) {
	type nodeView struct {
		Path      string        `json:"path"`
		Transform TransformView `json:"transform"`
		Valid     bool          `json:"valid"`
	}
	reg := i.scene.Registry()
	nodes := []nodeView{}
	// Bone-bound nodes read skeletons, so resolve between ticks.
	i.scene.Locked(func() {
		for _, p := range reg.Paths() {
			h, err := reg.Resolve(p)
			if err != nil {
				continue
			}
			t, ok := reg.GlobalTransform(h)
			nodes = append(nodes, nodeView{Path: string(p), Transform: transformView(t), Valid: ok})
		}
	})
	i.writeJSON(w, nodes)
}

func (i *inspector) handleStats(w http.ResponseWriter, r *http.Request) {
	if i.profiler == nil {
		i.writeError(w, http.StatusNotFound, errors.New("profiling is not enabled"))
		return
	}
	i.writeJSON(w, i.profiler.Last())
}

func (i *inspector) handleRig(w http.ResponseWriter, r *http.Request) {
	id, ok := i.rigID(w, r)
	if !ok {
		return
	}
	var (
		v   RigView
		err error
	)
	if !i.scene.View(id, func(rg *rig.Rig) { v, err = rigView(id, rg) }) {
		i.writeError(w, http.StatusNotFound, errors.Errorf("rig %s not found", id))
		return
	}
	if err != nil {
		i.writeError(w, http.StatusInternalServerError, err)
		return
	}
	i.writeJSON(w, v)
}

func (i *inspector) handleBone(w http.ResponseWriter, r *http.Request) {
	id, ok := i.rigID(w, r)
	if !ok {
		return
	}
	bone := mux.Vars(r)["bone"]
	var (
		v   BoneView
		err error
	)
	found := i.scene.View(id, func(rg *rig.Rig) {
		idx := rg.Skeleton.FindBone(bone)
		if idx < 0 {
			if n, convErr := strconv.Atoi(bone); convErr == nil {
				idx = n
			}
		}
		rg.Skeleton.EnsurePose()
		v, err = boneView(rg.Skeleton, idx)
	})
	switch {
	case !found:
		i.writeError(w, http.StatusNotFound, errors.Errorf("rig %s not found", id))
	case err != nil:
		i.writeError(w, http.StatusNotFound, errors.WithMessagef(err, "bone %q", bone))
	default:
		i.writeJSON(w, v)
	}
}

func (i *inspector) handleDump(w http.ResponseWriter, r *http.Request) {
	id, ok := i.rigID(w, r)
	if !ok {
		return
	}
	var out string
	if !i.scene.View(id, func(rg *rig.Rig) {
		v, err := rigView(id, rg)
		if err != nil {
			out = i.dumper.Sdump(rg.Config, err)
			return
		}
		out = i.dumper.Sdump(rg.Config, v)
	}) {
		i.writeError(w, http.StatusNotFound, errors.Errorf("rig %s not found", id))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.WriteString(w, out); err != nil {
		i.log.WithError(err).Debug("writing dump")
	}
}

// handleAction toggles or resets a rig's modification stack.
func (i *inspector) handleAction(w http.ResponseWriter, r *http.Request) {
	id, ok := i.rigID(w, r)
	if !ok {
		return
	}
	action := mux.Vars(r)["action"]
	var err error
	if !i.scene.View(id, func(rg *rig.Rig) {
		switch action {
		case "enable":
			rg.Stack.SetEnabled(true)
		case "disable":
			rg.Stack.SetEnabled(false)
			rg.Skeleton.ClearAllOverrides()
		case "reset":
			rg.Skeleton.ClearAllOverrides()
			rg.Skeleton.ResetPoses()
		default:
			err = errors.Wrapf(skeleton.ErrConfiguration, "unknown action %q", action)
		}
	}) {
		i.writeError(w, http.StatusNotFound, errors.Errorf("rig %s not found", id))
		return
	}
	if err != nil {
		i.writeError(w, http.StatusBadRequest, err)
		return
	}
	i.log.WithFields(logrus.Fields{"rig": id, "action": action}).Info("rig action")
	i.writeJSON(w, map[string]string{"result": "ok"})
}

func (i *inspector) rigID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err == nil {
		return id, true
	}
	// Fall back to the rig name.
	if id, ok := i.scene.Find(raw); ok {
		return id, true
	}
	i.writeError(w, http.StatusNotFound, errors.Errorf("rig %q not found", raw))
	return uuid.Nil, false
}

func (i *inspector) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		i.writeError(w, http.StatusInternalServerError, errors.Wrap(err, "encoding response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		i.log.WithError(err).Debug("writing response")
	}
}

func (i *inspector) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	if _, werr := w.Write(data); werr != nil {
		i.log.WithError(werr).Debug("writing error response")
	}
	i.log.WithField("status", status).WithError(err).Debug("request failed")
}

package inspector

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rig/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	scene scene.Scene
	id    uuid.UUID
	srv   *httptest.Server
}

func newFixture(t *testing.T, options ...InspectorBuilderOption) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := scene.NewScene("inspect", scene.WithLogger(logger), scene.WithComputeWorkers(1))
	t.Cleanup(s.Release)

	id, err := s.Add(&rig.Config{
		Name: "puppet",
		Bones: []rig.BoneConfig{
			{Name: "root"},
			{Name: "neck", Parent: "root", Rest: rig.TransformConfig{Translation: []float32{0, 1, 0}}},
		},
		Targets: []rig.TargetConfig{
			{Path: "/goal", Transform: rig.TransformConfig{Translation: []float32{1, 2, 0}}},
			{Path: "/puppet/tip", Bone: "neck"},
		},
		Stack: rig.StackConfig{Modifiers: []rig.ModifierConfig{
			{Type: rig.TypeLookAt, Target: "/goal", Bone: "neck"},
		}},
	})
	require.NoError(t, err)
	s.Tick(0.016)

	ins := NewInspector(s, append([]InspectorBuilderOption{WithLogger(logger)}, options...)...)
	srv := httptest.NewServer(ins.Handler())
	t.Cleanup(func() {
		ins.Close()
		srv.Close()
	})
	return &fixture{scene: s, id: id, srv: srv}
}

func (f *fixture) get(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestSceneAndRigJSON(t *testing.T) {
	f := newFixture(t)

	var sv struct {
		Name  string       `json:"name"`
		Ticks uint64       `json:"ticks"`
		Rigs  []RigSummary `json:"rigs"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/json/scene", &sv))
	assert.Equal(t, "inspect", sv.Name)
	assert.Equal(t, uint64(1), sv.Ticks)
	require.Len(t, sv.Rigs, 1)
	assert.Equal(t, f.id, sv.Rigs[0].ID)
	assert.Equal(t, 2, sv.Rigs[0].Bones)

	var rv RigView
	require.Equal(t, http.StatusOK, f.get(t, "/json/rigs/"+f.id.String(), &rv))
	assert.Equal(t, "/puppet", rv.Path)
	require.Len(t, rv.Stack, 1)
	assert.Equal(t, "lookat", rv.Stack[0].Type)
	require.Len(t, rv.Skeleton, 2)
	assert.Equal(t, 0, rv.Skeleton[1].Parent)
	require.NotNil(t, rv.Skeleton[1].Override)
	assert.InDelta(t, 1, rv.Skeleton[1].Override.Amount, 1e-6)

	// rigs can be addressed by name as well
	var byName RigView
	require.Equal(t, http.StatusOK, f.get(t, "/json/rigs/puppet", &byName))
	assert.Equal(t, rv.ID, byName.ID)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/json/rigs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/json/rigs/nobody", nil))
}

func TestBoneJSON(t *testing.T) {
	f := newFixture(t)

	var bv BoneView
	require.Equal(t, http.StatusOK, f.get(t, "/json/rigs/puppet/bones/neck", &bv))
	assert.Equal(t, "neck", bv.Name)
	assert.InDelta(t, 1, bv.Global.Translation[1], 1e-5)

	var byIndex BoneView
	require.Equal(t, http.StatusOK, f.get(t, "/json/rigs/puppet/bones/0", &byIndex))
	assert.Equal(t, "root", byIndex.Name)
	assert.Equal(t, []int{1}, byIndex.Children)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/json/rigs/puppet/bones/tail", nil))
}

func TestNodesAndStats(t *testing.T) {
	f := newFixture(t)

	var nodes []struct {
		Path      string        `json:"path"`
		Transform TransformView `json:"transform"`
		Valid     bool          `json:"valid"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/json/nodes", &nodes))
	require.Len(t, nodes, 3)
	assert.Equal(t, "/goal", nodes[0].Path)
	assert.Equal(t, "/puppet", nodes[1].Path)
	assert.Equal(t, "/puppet/tip", nodes[2].Path)
	assert.True(t, nodes[2].Valid)
	assert.InDelta(t, 1, nodes[2].Transform.Translation[1], 1e-5)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/json/stats", nil))

	logger, _ := test.NewNullLogger()
	p := profiler.NewProfiler(logger)
	g := newFixture(t, WithProfiler(p))
	var sample profiler.Sample
	assert.Equal(t, http.StatusOK, g.get(t, "/json/stats", &sample))
}

func TestDumpAndActions(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/dump/rigs/puppet")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "puppet")
	assert.Contains(t, string(body), "lookat")

	post := func(action string) int {
		resp, err := http.Post(f.srv.URL+"/action/rigs/puppet/"+action, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, post("disable"))
	assert.False(t, f.scene.Get(f.id).Stack.Enabled())
	assert.Equal(t, http.StatusOK, post("enable"))
	assert.True(t, f.scene.Get(f.id).Stack.Enabled())
	assert.Equal(t, http.StatusOK, post("reset"))
	assert.Equal(t, http.StatusBadRequest, post("explode"))

	var bv BoneView
	require.Equal(t, http.StatusOK, f.get(t, "/json/rigs/puppet/bones/neck", &bv))
	assert.Nil(t, bv.Override)

	// actions are POST only
	assert.Equal(t, http.StatusMethodNotAllowed, f.get(t, "/action/rigs/puppet/enable", nil))
}

func TestStreamSendsFramesAfterTicks(t *testing.T) {
	f := newFixture(t, WithStreamEvery(2))

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/rigs/" + f.id.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			f.scene.Tick(0.016)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame PoseFrame
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, uint64(0), frame.Tick%2)
	require.Len(t, frame.Bones, 2)
	assert.InDelta(t, 1, frame.Bones[1].Translation[1], 1e-5)
	<-done

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws/rigs/nobody", nil)
	assert.Error(t, err)
}

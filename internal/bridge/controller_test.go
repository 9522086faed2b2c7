package bridge

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"github.com/danmuck/scenebridge/internal/protocol"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/danmuck/scenebridge/internal/scenefile"
	"github.com/danmuck/scenebridge/internal/testutil/testlog"
)

type staticSource struct {
	objects []*pipeline.Object
}

func (s *staticSource) PushableObjects(selectedOnly bool) []*pipeline.Object {
	var out []*pipeline.Object
	for _, o := range s.objects {
		if !selectedOnly || o.Selected {
			out = append(out, o)
		}
	}
	return out
}

func (s *staticSource) ReferencedAssets(objects []*pipeline.Object) []*pipeline.Asset {
	var out []*pipeline.Asset
	for _, o := range objects {
		if o.Mesh != nil {
			out = append(out, o.Mesh)
		}
	}
	return out
}

func (s *staticSource) UniqueLocalName(e pipeline.Entity) string {
	switch v := e.(type) {
	case *pipeline.Object:
		return v.ID
	case *pipeline.Asset:
		return v.ID
	}
	return ""
}

func twoObjectScene() *staticSource {
	quad := &pipeline.Asset{
		ID:        "mesh.quad",
		Positions: []float32{0, 0, 0, 100, 0, 0, 100, 100, 0, 0, 100, 0},
		Normals:   []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1},
		UVSets:    [][]float32{{0, 0, 1, 0, 1, 1, 0, 1}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Sections:  []pipeline.Section{{FirstIndex: 0, NumTriangles: 2}},
		Materials: []string{"default"},
	}
	return &staticSource{objects: []*pipeline.Object{
		{ID: "obj.empty", Transform: coords.Identity(), Mesh: &pipeline.Asset{ID: "mesh.empty"}},
		{ID: "obj.quad", Transform: coords.Translation(coords.Vec3{10, 20, 30}), Mesh: quad, Selected: true},
	}}
}

func fastControllerConfig(port int) ControllerConfig {
	cfg := DefaultControllerConfig()
	cfg.Port = port
	cfg.Session = fastSessionConfig()
	cfg.Session.BaseTimeout = 2 * time.Second
	return cfg
}

func startResponder(t *testing.T, applier Applier) (*Responder, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := NewResponder(applier, protocol.DefaultWriteOptions())
	go func() { _ = r.Serve(ln) }()
	t.Cleanup(func() {
		_ = r.Close()
		_ = ln.Close()
	})
	return r, ln.Addr().(*net.TCPAddr).Port
}

func TestControllerPushAllReachesPeer(t *testing.T) {
	testlog.Start(t)

	remote := scene.NewStore(coords.New(coords.DefaultConfig()))
	peer, port := startResponder(t, remote)

	obs := &recordingObserver{}
	ctrl := NewController(fastControllerConfig(port), twoObjectScene(), obs)
	defer ctrl.Close()

	if _, err := ctrl.PushAll(); !errors.Is(err, ErrSessionInactive) {
		t.Fatalf("expected ErrSessionInactive, got %v", err)
	}
	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if !ctrl.IsSessionActive() {
		t.Fatalf("session should be active")
	}

	sum, err := ctrl.PushAll()
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if sum.Meshes != 1 || sum.Nodes != 2 {
		t.Fatalf("summary=%+v", sum)
	}

	waitFor(t, "update at peer", func() bool { return peer.Received(protocol.StateUpdate) == 1 })
	waitFor(t, "push drained", func() bool { return !ctrl.IsPushInProgress() })
	waitFor(t, "push finished", func() bool {
		_, finished, _ := obs.snapshot()
		return len(finished) == 1
	})

	if got := peer.Received(protocol.StateSendMesh); got != 1 {
		t.Fatalf("peer meshes=%d", got)
	}
	if got := peer.Received(protocol.StateSendNode); got != 2 {
		t.Fatalf("peer nodes=%d", got)
	}
	if got := peer.Received(protocol.StateClear); got != 1 {
		t.Fatalf("peer clears=%d", got)
	}
	snap := remote.Snapshot()
	if _, ok := snap.Meshes["mesh.quad"]; !ok || len(snap.Meshes) != 1 {
		t.Fatalf("peer meshes=%v", snap.Meshes)
	}
	if remote.NodeCount() != 2 {
		t.Fatalf("peer node count=%d", remote.NodeCount())
	}

	progress, finished, _ := obs.snapshot()
	if len(progress) != 3 || progress[2] != [2]int{3, 3} {
		t.Fatalf("progress=%v", progress)
	}
	if len(finished) != 1 || finished[0] {
		t.Fatalf("finished=%v", finished)
	}
	if g, ok := ctrl.Registry().GlobalOf(registry.Items, "obj.quad"); !ok || g != "obj.quad" {
		t.Fatalf("registry global=%q ok=%v", g, ok)
	}

	ctrl.StopSession()
	if ctrl.IsSessionActive() {
		t.Fatalf("session should be stopped")
	}
}

func TestControllerPushSelectedSendsOnlySelection(t *testing.T) {
	testlog.Start(t)

	remote := scene.NewStore(coords.New(coords.DefaultConfig()))
	peer, port := startResponder(t, remote)

	obs := &recordingObserver{}
	ctrl := NewController(fastControllerConfig(port), twoObjectScene(), obs)
	defer ctrl.Close()
	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}
	sum, err := ctrl.PushSelected()
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if sum.Nodes != 1 || sum.Meshes != 1 || !sum.Selected {
		t.Fatalf("summary=%+v", sum)
	}
	waitFor(t, "update at peer", func() bool { return peer.Received(protocol.StateUpdate) == 1 })
	waitFor(t, "push drained", func() bool { return !ctrl.IsPushInProgress() })
	waitFor(t, "push finished", func() bool {
		_, finished, _ := obs.snapshot()
		return len(finished) == 1
	})

	_, finished, _ := obs.snapshot()
	if len(finished) != 1 || !finished[0] {
		t.Fatalf("finished=%v", finished)
	}
	if !ctrl.Status().PushSelected {
		t.Fatalf("status should report selected mode")
	}
}

func TestControllerRejectsOverlappingPush(t *testing.T) {
	testlog.Start(t)

	peer := startSilentPeer(t)
	port := peer.ln.Addr().(*net.TCPAddr).Port
	ctrl := NewController(fastControllerConfig(port), twoObjectScene(), nil)
	defer ctrl.Close()

	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := ctrl.PushAll(); err != nil {
		t.Fatalf("first push: %v", err)
	}
	// The silent peer never replies idle, so the bracket stays lazy.
	if !ctrl.IsPushInProgress() {
		t.Fatalf("push should be pending")
	}
	if _, err := ctrl.PushSelected(); !errors.Is(err, ErrPushInProgress) {
		t.Fatalf("expected ErrPushInProgress, got %v", err)
	}
}

func TestControllerReceivesRemoteScene(t *testing.T) {
	testlog.Start(t)

	peer, port := startResponder(t, nil)
	cfg, err := scene.EncodeConfig(scene.ConfigRecord{ResetMeshAsset: true, AssetUniqueNameIdent: "asset"})
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	peer.Enqueue(protocol.StateClear, cfg)
	peer.Enqueue(protocol.StateSendMesh, scene.EncodeMesh(scene.MeshRecord{
		UniqueName: "remote.tri",
		Indices:    []uint32{0, 1, 2},
		Vertices:   []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
	}))
	peer.Enqueue(protocol.StateSendNode, scene.EncodeNode(scene.NodeRecord{
		UniqueName: "remote.root",
		Transform:  coords.Identity(),
		Meshes:     []string{"remote.tri"},
	}))
	peer.Enqueue(protocol.StateUpdate, nil)

	ctrl := NewController(fastControllerConfig(port), &staticSource{}, nil)
	defer ctrl.Close()
	ready := make(chan scene.Snapshot, 1)
	ctrl.Store().OnReady(func(s scene.Snapshot) { ready <- s })

	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}

	var snap scene.Snapshot
	select {
	case snap = <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("scene never became ready")
	}
	if snap.Generation != 1 {
		t.Fatalf("generation=%d", snap.Generation)
	}
	if !snap.Config.ResetMeshAsset || !ctrl.Converter().AssetReset() {
		t.Fatalf("asset reset not applied: %+v", snap.Config)
	}
	if len(snap.Forest) != 1 || snap.Forest[0].Name != "remote.root" {
		t.Fatalf("forest=%+v", snap.Forest)
	}
	m, ok := snap.Meshes["remote.tri"]
	if !ok || m.VertexCount() != 3 {
		t.Fatalf("mesh=%+v ok=%v", m, ok)
	}
}

func TestControllerPushesReceivedObjectsUnderPeerNames(t *testing.T) {
	testlog.Start(t)

	remote := scene.NewStore(coords.New(coords.DefaultConfig()))
	peer, port := startResponder(t, remote)

	cfg, err := scene.EncodeConfig(scene.ConfigRecord{})
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	peer.Enqueue(protocol.StateClear, cfg)
	peer.Enqueue(protocol.StateSendMesh, scene.EncodeMesh(scene.MeshRecord{
		UniqueName:      "peer:mesh:0007",
		DisplayName:     "Tri",
		Indices:         []uint32{0, 1, 2},
		Vertices:        []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		MaterialIndices: []uint32{0, 0, 0},
		MaterialNames:   []string{"default"},
	}))
	peer.Enqueue(protocol.StateSendNode, scene.EncodeNode(scene.NodeRecord{
		UniqueName:  "peer:item:0042",
		DisplayName: "Root",
		Transform:   coords.Identity(),
		Meshes:      []string{"peer:mesh:0007"},
	}))
	peer.Enqueue(protocol.StateUpdate, nil)

	local, err := scenefile.Parse([]byte("objects:\n  - id: local.empty\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctrl := NewController(fastControllerConfig(port), local, nil)
	defer ctrl.Close()
	ready := make(chan scene.Snapshot, 1)
	ctrl.Store().OnReady(func(s scene.Snapshot) { ready <- s })

	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("scene never became ready")
	}

	if l, ok := ctrl.Registry().LocalOf(registry.Items, "peer:item:0042"); !ok || l != "Root" {
		t.Fatalf("item local=%q ok=%v", l, ok)
	}
	if l, ok := ctrl.Registry().LocalOf(registry.Assets, "peer:mesh:0007"); !ok || l != "Tri" {
		t.Fatalf("asset local=%q ok=%v", l, ok)
	}
	if _, ok := local.Object("Root"); !ok {
		t.Fatalf("received node not adopted into the local scene")
	}

	sum, err := ctrl.PushAll()
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if sum.Nodes != 2 || sum.Meshes != 1 {
		t.Fatalf("summary=%+v", sum)
	}

	waitFor(t, "push at peer", func() bool {
		return peer.Received(protocol.StateUpdate) == 1 && remote.NodeCount() == 2
	})
	snap := remote.Snapshot()
	if _, ok := snap.Meshes["peer:mesh:0007"]; !ok || len(snap.Meshes) != 1 {
		t.Fatalf("peer meshes=%v", snap.Meshes)
	}
	names := map[string]*scene.TreeNode{}
	for _, root := range snap.Forest {
		names[root.Name] = root
	}
	root, ok := names["peer:item:0042"]
	if !ok || len(names) != 2 {
		t.Fatalf("pushed roots=%v", names)
	}
	if _, ok := names["local.empty"]; !ok {
		t.Fatalf("local object lost its own name: %v", names)
	}
	if len(root.Record.Meshes) != 1 || root.Record.Meshes[0] != "peer:mesh:0007" {
		t.Fatalf("mesh reference=%v", root.Record.Meshes)
	}
}

func TestControllerStartSessionValidates(t *testing.T) {
	testlog.Start(t)

	ctrl := NewController(DefaultControllerConfig(), &staticSource{}, nil)
	defer ctrl.Close()
	if err := ctrl.StartSession(" ", 12000); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
	if err := ctrl.StartSession("127.0.0.1", 0); !errors.Is(err, ErrInvalidPort) {
		t.Fatalf("expected ErrInvalidPort, got %v", err)
	}
	if st := ctrl.Status(); st.Active || st.SessionID != "" {
		t.Fatalf("status=%+v", st)
	}
}

func TestResponderEnqueuePushDeliversScene(t *testing.T) {
	testlog.Start(t)

	peer, port := startResponder(t, nil)
	remotePipe := pipeline.New(twoObjectScene(), registry.New(), coords.New(coords.DefaultConfig()))
	sum, err := peer.EnqueuePush(remotePipe, false)
	if err != nil {
		t.Fatalf("enqueue push: %v", err)
	}
	if sum.Meshes != 1 || sum.Nodes != 2 {
		t.Fatalf("summary=%+v", sum)
	}

	ctrl := NewController(fastControllerConfig(port), &staticSource{}, nil)
	defer ctrl.Close()
	ready := make(chan scene.Snapshot, 1)
	ctrl.Store().OnReady(func(s scene.Snapshot) { ready <- s })
	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}

	select {
	case snap := <-ready:
		if len(snap.Forest) != 2 || len(snap.Meshes) != 1 {
			t.Fatalf("forest=%d meshes=%d", len(snap.Forest), len(snap.Meshes))
		}
		if _, ok := snap.Meshes["mesh.quad"]; !ok {
			t.Fatalf("meshes=%v", snap.Meshes)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("scene never became ready")
	}
}

package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/scenebridge/internal/bridge"
	"github.com/danmuck/scenebridge/internal/config"
	"github.com/danmuck/scenebridge/internal/protocol/session"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/danmuck/scenebridge/internal/scenefile"
	"github.com/danmuck/scenebridge/internal/testutil/testlog"
)

const peerScene = `
assets:
  - id: peer.cube
    primitive: cube
    size: 10
objects:
  - id: peer.box
    mesh: peer.cube
`

const bridgeScene = `
assets:
  - id: local.quad
    primitive: quad
    size: 20
objects:
  - id: local.root
    children: [local.plane]
  - id: local.plane
    mesh: local.quad
`

func TestPeerExchangesScenesWithBridge(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	scenePath := filepath.Join(dir, "peer.yaml")
	if err := os.WriteFile(scenePath, []byte(peerScene), 0o644); err != nil {
		t.Fatalf("write scene: %v", err)
	}
	dumpDir := filepath.Join(dir, "dump")

	cfg := config.DefaultPeerConfig()
	cfg.Scene = scenePath
	cfg.DumpDir = dumpDir
	p, err := newPeer(cfg)
	if err != nil {
		t.Fatalf("new peer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = p.responder.Serve(ln) }()
	t.Cleanup(func() { _ = p.responder.Close() })

	local, err := scenefile.Parse([]byte(bridgeScene))
	if err != nil {
		t.Fatalf("parse bridge scene: %v", err)
	}
	ctrlCfg := bridge.DefaultControllerConfig()
	ctrlCfg.Session = session.Config{
		DialTimeout:  time.Second,
		WriteTimeout: time.Second,
		BaseTimeout:  2 * time.Second,
		MaxAttempts:  3,
		IdleInterval: 10 * time.Millisecond,
		PollSlice:    5 * time.Millisecond,
	}
	ctrl := bridge.NewController(ctrlCfg, local, nil)
	defer ctrl.Close()
	received := make(chan scene.Snapshot, 1)
	ctrl.Store().OnReady(func(s scene.Snapshot) { received <- s })

	port := ln.Addr().(*net.TCPAddr).Port
	if err := ctrl.StartSession("127.0.0.1", port); err != nil {
		t.Fatalf("start session: %v", err)
	}

	select {
	case snap := <-received:
		if _, ok := snap.Meshes["peer.cube"]; !ok {
			t.Fatalf("bridge did not receive the peer mesh: %v", snap.Meshes)
		}
		if len(snap.Forest) != 1 || snap.Forest[0].Name != "peer.box" {
			t.Fatalf("unexpected forest: %+v", snap.Forest)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("bridge never received the peer scene")
	}

	if _, err := ctrl.PushAll(); err != nil {
		t.Fatalf("push: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var entries []os.DirEntry
	for {
		entries, _ = os.ReadDir(dumpDir)
		if len(entries) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer never dumped the pushed scene")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if entries[0].Name() != "scene-0001.yaml" {
		t.Fatalf("unexpected dump file: %s", entries[0].Name())
	}
	// The bridge adopted the peer's box and pushes it back under its own name.
	forest := p.store.Snapshot().Forest
	if got := scene.CountNodes(forest); got != 3 {
		t.Fatalf("peer nodes=%d", got)
	}
	found := false
	for _, root := range forest {
		found = found || root.Name == "peer.box"
	}
	if !found {
		t.Fatalf("peer.box not pushed back: %+v", forest)
	}
}

func TestNewPeerRejectsBadCodec(t *testing.T) {
	cfg := config.DefaultPeerConfig()
	cfg.Codec = "nope"
	if _, err := newPeer(cfg); err == nil {
		t.Fatalf("expected codec error")
	}
}

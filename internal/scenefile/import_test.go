package scenefile

import (
	"testing"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
	"github.com/danmuck/scenebridge/internal/testutil/testlog"
)

func receivedSnapshot(nodes ...scene.NodeRecord) scene.Snapshot {
	byName := make(map[string]scene.NodeRecord, len(nodes))
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		byName[n.UniqueName] = n
		order = append(order, n.UniqueName)
	}
	return scene.Snapshot{
		Generation: 1,
		Forest:     scene.BuildForest(byName, order),
		Meshes: map[string]scene.MeshRecord{
			"g:mesh:1": {
				UniqueName:      "g:mesh:1",
				DisplayName:     "mesh.cube",
				Indices:         []uint32{0, 1, 2, 2, 1, 0},
				Vertices:        []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
				UVs:             []float32{0, 0.25, 1, 0, 0, 1},
				Colors:          []float32{1, 0, 0, 0, 1, 0, 0, 0, 2},
				Tangents:        []float32{1, 0, 0, 0, 1, 0},
				MaterialIndices: []uint32{0, 0, 0, 1, 1, 1},
				MaterialNames:   []string{"a", "b"},
			},
		},
	}
}

func TestImportAdoptsReceivedScene(t *testing.T) {
	testlog.Start(t)

	s, err := Parse([]byte(sampleScene))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	conv := coords.New(coords.DefaultConfig())
	leafLocal := coords.Translation(coords.Vec3{10, 20, 30})
	snap := receivedSnapshot(
		scene.NodeRecord{UniqueName: "g:1", DisplayName: "box", Transform: coords.Identity(), Children: []string{"g:2"}},
		scene.NodeRecord{
			UniqueName:  "g:2",
			DisplayName: "Leaf",
			Transform:   conv.MatrixToRemote(leafLocal.Transpose(), false),
			Meshes:      []string{"g:mesh:1"},
		},
	)

	items, assets := s.Import(snap, conv)
	wantItems := []registry.Pair{{Local: "box-2", Global: "g:1"}, {Local: "Leaf", Global: "g:2"}}
	if len(items) != len(wantItems) {
		t.Fatalf("items=%v", items)
	}
	for i, p := range wantItems {
		if items[i] != p {
			t.Fatalf("item %d=%v want %v", i, items[i], p)
		}
	}
	if len(assets) != 1 || assets[0] != (registry.Pair{Local: "mesh.cube-2", Global: "g:mesh:1"}) {
		t.Fatalf("assets=%v", assets)
	}
	if s.Len() != 6 {
		t.Fatalf("len=%d", s.Len())
	}

	parent, ok := s.Object("box-2")
	if !ok {
		t.Fatalf("parent not adopted")
	}
	leaf, ok := s.Object("Leaf")
	if !ok || len(parent.Children) != 1 || parent.Children[0] != leaf {
		t.Fatalf("hierarchy lost: %+v", parent)
	}
	if leaf.Transform != leafLocal {
		t.Fatalf("transform=%v want %v", leaf.Transform, leafLocal)
	}

	a := leaf.Mesh
	if a == nil || a.ID != "mesh.cube-2" {
		t.Fatalf("mesh=%+v", a)
	}
	if len(a.Sections) != 2 || a.Sections[1] != (pipeline.Section{FirstIndex: 3, NumTriangles: 1, MaterialIndex: 1}) {
		t.Fatalf("sections=%+v", a.Sections)
	}
	if len(a.UVSets) != 1 || a.UVSets[0][1] != 0.75 {
		t.Fatalf("uvs=%v", a.UVSets)
	}
	if len(a.Colors) != 12 || a.Colors[0] != 255 || a.Colors[1] != 0 || a.Colors[10] != 255 || a.Colors[11] != 255 {
		t.Fatalf("colors=%v", a.Colors)
	}
	if len(a.TangentsX) != 3 || a.TangentsY[1] != 1 {
		t.Fatalf("tangents x=%v y=%v", a.TangentsX, a.TangentsY)
	}
}

func TestImportReplacesEarlierImport(t *testing.T) {
	testlog.Start(t)

	s, err := Parse([]byte(sampleScene))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	conv := coords.New(coords.DefaultConfig())
	first := receivedSnapshot(
		scene.NodeRecord{UniqueName: "g:1", DisplayName: "Parent", Transform: coords.Identity(), Children: []string{"g:2"}},
		scene.NodeRecord{UniqueName: "g:2", DisplayName: "Leaf", Transform: coords.Identity()},
	)
	s.Import(first, conv)

	// The leaf is renamed on the peer; its local ID stays put.
	second := receivedSnapshot(
		scene.NodeRecord{UniqueName: "g:2", DisplayName: "Renamed", Transform: coords.Identity()},
	)
	items, _ := s.Import(second, conv)
	if len(items) != 1 || items[0] != (registry.Pair{Local: "Leaf", Global: "g:2"}) {
		t.Fatalf("items=%v", items)
	}
	if _, ok := s.Object("Parent"); ok {
		t.Fatalf("object from the earlier import survived")
	}
	leaf, ok := s.Object("Leaf")
	if !ok || leaf.DisplayName != "Renamed" {
		t.Fatalf("leaf=%+v", leaf)
	}
	if s.Len() != 5 {
		t.Fatalf("len=%d", s.Len())
	}
	if got := s.PushableObjects(false); got[0].ID != "root" || got[4] != leaf {
		t.Fatalf("file objects should keep their order ahead of imports")
	}
}

package pipeline

import (
	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
)

// Entity is anything the shell can name: an *Object or an *Asset.
type Entity interface {
	entity()
}

// Object is a pushable scene item as the shell sees it.
type Object struct {
	ID          string
	DisplayName string
	// Transform is the local-space transform in local convention.
	Transform         coords.Mat4
	Mesh              *Asset
	MaterialOverrides []string
	Children          []*Object
	Selected          bool
}

// Section is a run of triangles sharing one material slot.
type Section struct {
	FirstIndex    uint32
	NumTriangles  uint32
	MaterialIndex uint32
}

// Asset is mesh geometry in local convention.
type Asset struct {
	ID          string
	DisplayName string
	AssetReset  bool
	Positions   []float32
	Normals     []float32
	TangentsX   []float32
	TangentsY   []float32
	// UVSets holds one packed uv buffer per set, each with one pair per vertex.
	UVSets [][]float32
	// Colors is packed RGBA, one quad per colored vertex.
	Colors    []uint8
	Indices   []uint32
	Sections  []Section
	Materials []string
}

func (*Object) entity() {}
func (*Asset) entity()  {}

// VertexCount returns the number of complete positions.
func (a *Asset) VertexCount() int {
	return len(a.Positions) / 3
}

// Source is the shell's view of the scene. Implementations must return
// objects and assets in a stable order.
type Source interface {
	PushableObjects(selectedOnly bool) []*Object
	ReferencedAssets(objects []*Object) []*Asset
	UniqueLocalName(e Entity) string
}

// Importer is implemented by sources that adopt scenes received from the
// peer. Import returns the local/global pairs of the adopted objects and
// assets.
type Importer interface {
	Import(snap scene.Snapshot, conv *coords.Converter) (items, assets []registry.Pair)
}

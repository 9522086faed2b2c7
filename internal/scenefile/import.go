package scenefile

import (
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
)

// Import adopts a received scene as local objects and assets so that a later
// push sends them back under the peer's names. Everything from an earlier
// import is replaced. A global name keeps the local ID it was first given.
// The returned pairs map each adopted local ID to its global name.
func (s *Scene) Import(snap scene.Snapshot, conv *coords.Converter) (items, assets []registry.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevAssets := make(map[string]string, len(s.importedAssets))
	for global, a := range s.importedAssets {
		prevAssets[global] = a.ID
		delete(s.assets, a.ID)
	}
	prevItems := make(map[string]string, len(s.importedItems))
	old := make(map[*pipeline.Object]struct{}, len(s.importedItems))
	for global, o := range s.importedItems {
		prevItems[global] = o.ID
		old[o] = struct{}{}
		delete(s.byID, o.ID)
	}
	objects := make([]*pipeline.Object, 0, len(s.objects))
	for _, o := range s.objects {
		if _, ok := old[o]; !ok {
			objects = append(objects, o)
		}
	}

	s.importedAssets = make(map[string]*pipeline.Asset, len(snap.Meshes))
	for _, global := range sortedKeys(snap.Meshes) {
		m := snap.Meshes[global]
		id := localID(prevAssets, global, m.DisplayName, func(c string) bool {
			_, taken := s.assets[c]
			return taken
		})
		a := assetFromRecord(id, m)
		s.assets[id] = a
		s.importedAssets[global] = a
		assets = append(assets, registry.Pair{Local: id, Global: global})
	}

	s.importedItems = make(map[string]*pipeline.Object)
	var adopt func(t *scene.TreeNode) *pipeline.Object
	adopt = func(t *scene.TreeNode) *pipeline.Object {
		if o, seen := s.importedItems[t.Name]; seen {
			return o
		}
		id := localID(prevItems, t.Name, t.Record.DisplayName, func(c string) bool {
			_, taken := s.byID[c]
			return taken
		})
		o := &pipeline.Object{
			ID:                id,
			DisplayName:       displayName(t.Record.DisplayName, id),
			Transform:         conv.MatrixToLocal(t.Record.Transform).Transpose(),
			MaterialOverrides: t.Record.MaterialOverrides,
		}
		if len(t.Record.Meshes) > 0 {
			o.Mesh = s.importedAssets[t.Record.Meshes[0]]
		}
		s.byID[id] = o
		s.importedItems[t.Name] = o
		objects = append(objects, o)
		items = append(items, registry.Pair{Local: id, Global: t.Name})
		for _, c := range t.Children {
			o.Children = append(o.Children, adopt(c))
		}
		return o
	}
	for _, root := range snap.Forest {
		adopt(root)
	}
	s.objects = objects
	return items, assets
}

// localID returns the ID global had before, or else its display name made
// unique with a numeric suffix.
func localID(prev map[string]string, global, display string, taken func(string) bool) string {
	if id, ok := prev[global]; ok && !taken(id) {
		return id
	}
	base := strings.TrimSpace(display)
	if base == "" {
		base = global
	}
	id := base
	for n := 2; taken(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}

// assetFromRecord rebuilds local geometry from a received mesh. Positions,
// normals and tangents are already in local convention.
func assetFromRecord(id string, m scene.MeshRecord) *pipeline.Asset {
	a := &pipeline.Asset{
		ID:          id,
		DisplayName: displayName(m.DisplayName, id),
		Positions:   m.Vertices,
		Normals:     m.Normals,
		Indices:     m.Indices,
		Sections:    sections(m.Indices, m.MaterialIndices),
		Materials:   m.MaterialNames,
	}
	for i := 0; i+scene.StrideTangent <= len(m.Tangents); i += scene.StrideTangent {
		a.TangentsX = append(a.TangentsX, m.Tangents[i:i+3]...)
		a.TangentsY = append(a.TangentsY, m.Tangents[i+3:i+6]...)
	}
	if verts := m.VertexCount(); verts > 0 {
		sets := len(m.UVs) / (scene.StrideUV * verts)
		for set := 0; set < sets; set++ {
			buf := make([]float32, 0, verts*scene.StrideUV)
			for v := 0; v < verts; v++ {
				at := (v*sets + set) * scene.StrideUV
				uv := coords.FlipUV(coords.Vec2{m.UVs[at], m.UVs[at+1]})
				buf = append(buf, uv[0], uv[1])
			}
			a.UVSets = append(a.UVSets, buf)
		}
	}
	for i := 0; i+scene.StrideColor <= len(m.Colors); i += scene.StrideColor {
		a.Colors = append(a.Colors, unitByte(m.Colors[i]), unitByte(m.Colors[i+1]), unitByte(m.Colors[i+2]), 255)
	}
	return a
}

// sections groups consecutive triangles that share a material index.
func sections(indices, mats []uint32) []pipeline.Section {
	var out []pipeline.Section
	for t := 0; t < len(indices)/scene.StrideIndex; t++ {
		first := t * scene.StrideIndex
		var mat uint32
		if first < len(mats) {
			mat = mats[first]
		}
		if n := len(out); n > 0 && out[n-1].MaterialIndex == mat {
			out[n-1].NumTriangles++
			continue
		}
		out = append(out, pipeline.Section{FirstIndex: uint32(first), NumTriangles: 1, MaterialIndex: mat})
	}
	return out
}

func unitByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}

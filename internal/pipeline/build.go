package pipeline

import (
	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/registry"
	"github.com/danmuck/scenebridge/internal/scene"
)

// assetResetCompensation undoes the quarter turn that asset reset bakes into
// vertex data, so the node transform stays consistent with its mesh.
var assetResetCompensation = coords.RotationX(-90)

func (p *Pipeline) buildNode(b *scene.Builder, o *Object) bool {
	local := p.src.UniqueLocalName(o)
	global, ok := p.reg.GlobalOf(registry.Items, local)
	if !ok {
		p.log.Warn().Str("local", local).Msg("node skipped: no global name")
		return false
	}

	rec := scene.NodeRecord{
		UniqueName:        global,
		DisplayName:       o.DisplayName,
		MaterialOverrides: o.MaterialOverrides,
	}

	reset := false
	if o.Mesh != nil {
		meshLocal := p.src.UniqueLocalName(o.Mesh)
		if g, ok := p.reg.GlobalOf(registry.Assets, meshLocal); ok {
			rec.Meshes = []string{g}
		} else {
			p.log.Debug().Str("local", meshLocal).Msg("mesh reference omitted: no global name")
		}
		reset = o.Mesh.AssetReset
	}

	m := o.Transform
	if reset {
		m = assetResetCompensation.Mul(m)
	}
	rec.Transform = p.conv.MatrixToRemote(m.Transpose(), reset)

	for _, c := range o.Children {
		if c == nil {
			continue
		}
		if g, ok := p.reg.GlobalOf(registry.Items, p.src.UniqueLocalName(c)); ok {
			rec.Children = append(rec.Children, g)
		}
	}

	b.WriteNode(rec)
	return true
}

func (p *Pipeline) buildMesh(b *scene.Builder, a *Asset) bool {
	local := p.src.UniqueLocalName(a)
	global, ok := p.reg.GlobalOf(registry.Assets, local)
	if !ok {
		p.log.Warn().Str("local", local).Msg("mesh skipped: no global name")
		return false
	}

	rec := scene.MeshRecord{
		UniqueName:    global,
		DisplayName:   a.DisplayName,
		Vertices:      p.conv.PositionsToRemote(a.Positions, a.AssetReset),
		Normals:       p.conv.DirectionsToRemote(a.Normals, a.AssetReset),
		Tangents:      p.tangents(a),
		UVs:           interleaveUVs(a),
		Colors:        unitColors(a.Colors),
		MaterialNames: a.Materials,
	}
	rec.Indices, rec.MaterialIndices = p.triangles(a)

	b.WriteMesh(rec)
	return true
}

// triangles expands every section into flat indices with one material index
// per index.
func (p *Pipeline) triangles(a *Asset) ([]uint32, []uint32) {
	var indices, mats []uint32
	for si, s := range a.Sections {
		end := uint64(s.FirstIndex) + uint64(s.NumTriangles)*3
		if end > uint64(len(a.Indices)) {
			p.log.Warn().
				Str("asset", a.ID).
				Int("section", si).
				Uint64("end", end).
				Int("indices", len(a.Indices)).
				Msg("section out of range")
			continue
		}
		for i := uint64(s.FirstIndex); i < end; i++ {
			indices = append(indices, a.Indices[i])
			mats = append(mats, s.MaterialIndex)
		}
	}
	return indices, mats
}

// tangents packs tangent and binormal per vertex (stride 6).
func (p *Pipeline) tangents(a *Asset) []float32 {
	n := min(len(a.TangentsX), len(a.TangentsY)) / 3
	tx := p.conv.DirectionsToRemote(a.TangentsX[:n*3], a.AssetReset)
	ty := p.conv.DirectionsToRemote(a.TangentsY[:n*3], a.AssetReset)
	out := make([]float32, 0, n*scene.StrideTangent)
	for i := 0; i < n; i++ {
		out = append(out, tx[i*3:i*3+3]...)
		out = append(out, ty[i*3:i*3+3]...)
	}
	return out
}

// interleaveUVs writes every uv set of vertex 0, then of vertex 1, and so on,
// flipping V.
func interleaveUVs(a *Asset) []float32 {
	verts := a.VertexCount()
	var out []float32
	for v := 0; v < verts; v++ {
		for _, set := range a.UVSets {
			if v*2+1 >= len(set) {
				continue
			}
			uv := coords.FlipUV(coords.Vec2{set[v*2], set[v*2+1]})
			out = append(out, uv[0], uv[1])
		}
	}
	return out
}

// unitColors converts packed RGBA bytes to RGB floats in [0, 1].
func unitColors(rgba []uint8) []float32 {
	n := len(rgba) / 4
	out := make([]float32, 0, n*scene.StrideColor)
	for i := 0; i < n; i++ {
		out = append(out,
			float32(rgba[i*4])/255,
			float32(rgba[i*4+1])/255,
			float32(rgba[i*4+2])/255,
		)
	}
	return out
}

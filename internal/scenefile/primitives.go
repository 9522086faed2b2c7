package scenefile

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/danmuck/scenebridge/internal/pipeline"
)

const defaultPrimitiveSize = 100

// generate fills a with built-in geometry, centered on the origin.
func generate(a *pipeline.Asset, kind string, size float32) error {
	if size <= 0 {
		size = defaultPrimitiveSize
	}
	h := size / 2
	switch kind {
	case "quad":
		a.Positions = []float32{-h, -h, 0, h, -h, 0, h, h, 0, -h, h, 0}
		a.Normals = []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1}
		a.UVSets = [][]float32{{0, 0, 1, 0, 1, 1, 0, 1}}
		a.Indices = []uint32{0, 1, 2, 0, 2, 3}
	case "cube":
		a.Positions = []float32{
			-h, -h, -h, h, -h, -h, h, h, -h, -h, h, -h,
			-h, -h, h, h, -h, h, h, h, h, -h, h, h,
		}
		a.Normals = cornerNormals(a.Positions)
		a.UVSets = [][]float32{{0, 0, 1, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 1}}
		a.Indices = []uint32{
			0, 2, 1, 0, 3, 2, // bottom
			4, 5, 6, 4, 6, 7, // top
			0, 1, 5, 0, 5, 4,
			1, 2, 6, 1, 6, 5,
			2, 3, 7, 2, 7, 6,
			3, 0, 4, 3, 4, 7,
		}
	default:
		return fmt.Errorf("%w: %q", ErrBadPrimitive, kind)
	}
	a.Sections = []pipeline.Section{{FirstIndex: 0, NumTriangles: uint32(len(a.Indices) / 3)}}
	if len(a.Materials) == 0 {
		a.Materials = []string{"default"}
	}
	return nil
}

// cornerNormals points each vertex away from the origin.
func cornerNormals(positions []float32) []float32 {
	out := make([]float32, len(positions))
	for i := 0; i+2 < len(positions); i += 3 {
		x, y, z := positions[i], positions[i+1], positions[i+2]
		l := math32.Sqrt(x*x + y*y + z*z)
		if l == 0 {
			continue
		}
		out[i], out[i+1], out[i+2] = x/l, y/l, z/l
	}
	return out
}

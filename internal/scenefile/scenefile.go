// Package scenefile loads a local scene from YAML and serves it to the push
// pipeline, and writes received scene snapshots back out as YAML.
package scenefile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/pipeline"
	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateID   = errors.New("scenefile: duplicate id")
	ErrUnknownAsset  = errors.New("scenefile: unknown asset")
	ErrUnknownObject = errors.New("scenefile: unknown object")
	ErrBadTransform  = errors.New("scenefile: transform must have 16 values")
	ErrBadPrimitive  = errors.New("scenefile: unknown primitive")
	ErrMissingID     = errors.New("scenefile: id required")
)

type fileScene struct {
	Assets  []fileAsset  `yaml:"assets"`
	Objects []fileObject `yaml:"objects"`
}

type fileSection struct {
	FirstIndex uint32 `yaml:"first_index"`
	Triangles  uint32 `yaml:"triangles"`
	Material   uint32 `yaml:"material"`
}

type fileAsset struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name"`
	AssetReset bool          `yaml:"asset_reset"`
	Primitive  string        `yaml:"primitive"`
	Size       float32       `yaml:"size"`
	Positions  []float32     `yaml:"positions"`
	Normals    []float32     `yaml:"normals"`
	TangentsX  []float32     `yaml:"tangents_x"`
	TangentsY  []float32     `yaml:"tangents_y"`
	UVs        [][]float32   `yaml:"uvs"`
	Colors     []uint8       `yaml:"colors"`
	Indices    []uint32      `yaml:"indices"`
	Sections   []fileSection `yaml:"sections"`
	Materials  []string      `yaml:"materials"`
}

type fileObject struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Mesh      string    `yaml:"mesh"`
	Selected  bool      `yaml:"selected"`
	Transform []float32 `yaml:"transform"`
	Translate []float32 `yaml:"translate"`
	RotateX   float32   `yaml:"rotate_x"`
	Materials []string  `yaml:"materials"`
	Children  []string  `yaml:"children"`
}

// Scene is an in-memory local scene. Objects keep file order, followed by any
// imported objects; assets are reported in first-reference order. Safe for
// concurrent use.
type Scene struct {
	mu      sync.RWMutex
	objects []*pipeline.Object
	byID    map[string]*pipeline.Object
	assets  map[string]*pipeline.Asset
	// imported* are keyed by the peer's global name.
	importedItems  map[string]*pipeline.Object
	importedAssets map[string]*pipeline.Asset
}

func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenefile: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenefile: %s: %w", path, err)
	}
	return s, nil
}

func Parse(data []byte) (*Scene, error) {
	var raw fileScene
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("scenefile: parse: %w", err)
	}

	s := &Scene{
		byID:   make(map[string]*pipeline.Object, len(raw.Objects)),
		assets: make(map[string]*pipeline.Asset, len(raw.Assets)),
	}
	for _, fa := range raw.Assets {
		a, err := fa.asset()
		if err != nil {
			return nil, err
		}
		if _, dup := s.assets[a.ID]; dup {
			return nil, fmt.Errorf("%w: asset %q", ErrDuplicateID, a.ID)
		}
		s.assets[a.ID] = a
	}

	for _, fo := range raw.Objects {
		id := strings.TrimSpace(fo.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: object", ErrMissingID)
		}
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("%w: object %q", ErrDuplicateID, id)
		}
		m, err := fo.transform()
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", id, err)
		}
		o := &pipeline.Object{
			ID:                id,
			DisplayName:       displayName(fo.Name, id),
			Transform:         m,
			MaterialOverrides: fo.Materials,
			Selected:          fo.Selected,
		}
		if ref := strings.TrimSpace(fo.Mesh); ref != "" {
			a, ok := s.assets[ref]
			if !ok {
				return nil, fmt.Errorf("%w: %q on object %q", ErrUnknownAsset, ref, id)
			}
			o.Mesh = a
		}
		s.byID[id] = o
		s.objects = append(s.objects, o)
	}

	// Children resolve after every object exists.
	for _, fo := range raw.Objects {
		parent := s.byID[strings.TrimSpace(fo.ID)]
		for _, ref := range fo.Children {
			child, ok := s.byID[strings.TrimSpace(ref)]
			if !ok {
				return nil, fmt.Errorf("%w: child %q of %q", ErrUnknownObject, ref, parent.ID)
			}
			parent.Children = append(parent.Children, child)
		}
	}
	return s, nil
}

func (fa fileAsset) asset() (*pipeline.Asset, error) {
	id := strings.TrimSpace(fa.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: asset", ErrMissingID)
	}
	a := &pipeline.Asset{
		ID:          id,
		DisplayName: displayName(fa.Name, id),
		AssetReset:  fa.AssetReset,
		Positions:   fa.Positions,
		Normals:     fa.Normals,
		TangentsX:   fa.TangentsX,
		TangentsY:   fa.TangentsY,
		UVSets:      fa.UVs,
		Colors:      fa.Colors,
		Indices:     fa.Indices,
		Materials:   fa.Materials,
	}
	for _, sec := range fa.Sections {
		a.Sections = append(a.Sections, pipeline.Section{
			FirstIndex:    sec.FirstIndex,
			NumTriangles:  sec.Triangles,
			MaterialIndex: sec.Material,
		})
	}
	if fa.Primitive != "" {
		if err := generate(a, fa.Primitive, fa.Size); err != nil {
			return nil, fmt.Errorf("asset %q: %w", id, err)
		}
	}
	return a, nil
}

func (fo fileObject) transform() (coords.Mat4, error) {
	if len(fo.Transform) > 0 {
		if len(fo.Transform) != 16 {
			return coords.Mat4{}, ErrBadTransform
		}
		var m coords.Mat4
		copy(m[:], fo.Transform)
		return m, nil
	}
	m := coords.Identity()
	if fo.RotateX != 0 {
		m = coords.RotationX(fo.RotateX)
	}
	if len(fo.Translate) == 3 {
		m = m.Mul(coords.Translation(coords.Vec3{fo.Translate[0], fo.Translate[1], fo.Translate[2]}))
	}
	return m, nil
}

func displayName(name, id string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return id
}

// PushableObjects returns objects in file order, optionally only selected.
func (s *Scene) PushableObjects(selectedOnly bool) []*pipeline.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*pipeline.Object, 0, len(s.objects))
	for _, o := range s.objects {
		if selectedOnly && !o.Selected {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ReferencedAssets returns the unique meshes of objects in first-reference
// order.
func (s *Scene) ReferencedAssets(objects []*pipeline.Object) []*pipeline.Asset {
	seen := make(map[*pipeline.Asset]struct{}, len(objects))
	var out []*pipeline.Asset
	for _, o := range objects {
		if o == nil || o.Mesh == nil {
			continue
		}
		if _, ok := seen[o.Mesh]; ok {
			continue
		}
		seen[o.Mesh] = struct{}{}
		out = append(out, o.Mesh)
	}
	return out
}

func (s *Scene) UniqueLocalName(e pipeline.Entity) string {
	switch v := e.(type) {
	case *pipeline.Object:
		return v.ID
	case *pipeline.Asset:
		return v.ID
	default:
		return ""
	}
}

// Select replaces the selection with ids. Unknown ids are reported.
func (s *Scene) Select(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := s.byID[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownObject, id)
		}
		want[id] = struct{}{}
	}
	for _, o := range s.objects {
		_, o.Selected = want[o.ID]
	}
	return nil
}

func (s *Scene) Object(id string) (*pipeline.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	return o, ok
}

func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

package scenefile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/scene"
	"gopkg.in/yaml.v3"
)

type SnapshotFile struct {
	Generation int            `yaml:"generation"`
	Config     ConfigEntry    `yaml:"config"`
	Nodes      []NodeEntry    `yaml:"nodes"`
	Meshes     []MeshEntry    `yaml:"meshes,omitempty"`
	Cameras    []CameraEntry  `yaml:"cameras,omitempty"`
	Lights     []LightEntry   `yaml:"lights,omitempty"`
	Textures   []TextureEntry `yaml:"textures,omitempty"`
	Materials  []string       `yaml:"materials,omitempty"`
}

type ConfigEntry struct {
	UseSubFolder         bool   `yaml:"use_sub_folder"`
	ActorUniqueNameIdent string `yaml:"actor_unique_name_ident,omitempty"`
	AssetUniqueNameIdent string `yaml:"asset_unique_name_ident,omitempty"`
	ResetMeshAsset       bool   `yaml:"reset_mesh_asset"`
}

type NodeEntry struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"`
	Translation [3]float32  `yaml:"translation,flow"`
	Meshes      []string    `yaml:"meshes,omitempty,flow"`
	Children    []NodeEntry `yaml:"children,omitempty"`
}

type MeshEntry struct {
	Name      string   `yaml:"name"`
	Vertices  int      `yaml:"vertices"`
	Triangles int      `yaml:"triangles"`
	Materials []string `yaml:"materials,omitempty,flow"`
}

type CameraEntry struct {
	Name        string  `yaml:"name"`
	FieldOfView float32 `yaml:"fov"`
	NearClip    float32 `yaml:"near"`
	FarClip     float32 `yaml:"far"`
}

type LightEntry struct {
	Name     string     `yaml:"name"`
	Kind     string     `yaml:"kind"`
	Position [3]float32 `yaml:"position,flow"`
	Rotation [3]float32 `yaml:"rotation,flow"`
}

type TextureEntry struct {
	Name   string `yaml:"name"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

// FromSnapshot flattens a received scene into its file form. Node
// translations are world positions in local convention.
func FromSnapshot(snap scene.Snapshot, conv *coords.Converter) SnapshotFile {
	out := SnapshotFile{
		Generation: snap.Generation,
		Config: ConfigEntry{
			UseSubFolder:         snap.Config.UseSubFolder,
			ActorUniqueNameIdent: snap.Config.ActorUniqueNameIdent,
			AssetUniqueNameIdent: snap.Config.AssetUniqueNameIdent,
			ResetMeshAsset:       snap.Config.ResetMeshAsset,
		},
	}
	for _, t := range snap.Forest {
		out.Nodes = append(out.Nodes, nodeEntry(t, conv))
	}
	for _, name := range sortedKeys(snap.Meshes) {
		m := snap.Meshes[name]
		out.Meshes = append(out.Meshes, MeshEntry{
			Name:      name,
			Vertices:  m.VertexCount(),
			Triangles: m.TriangleCount(),
			Materials: m.MaterialNames,
		})
	}
	for _, name := range sortedKeys(snap.Cameras) {
		c := snap.Cameras[name]
		out.Cameras = append(out.Cameras, CameraEntry{Name: name, FieldOfView: c.FieldOfView, NearClip: c.NearClip, FarClip: c.FarClip})
	}
	for _, name := range sortedKeys(snap.Lights) {
		l := snap.Lights[name]
		out.Lights = append(out.Lights, LightEntry{
			Name:     name,
			Kind:     string(l.Record.Kind),
			Position: [3]float32(l.Record.Position),
			Rotation: [3]float32{l.Rotation.Pitch, l.Rotation.Yaw, l.Rotation.Roll},
		})
	}
	for _, name := range sortedKeys(snap.Textures) {
		t := snap.Textures[name]
		out.Textures = append(out.Textures, TextureEntry{Name: name, Width: t.Width, Height: t.Height})
	}
	out.Materials = sortedKeys(snap.Materials)
	return out
}

func nodeEntry(t *scene.TreeNode, conv *coords.Converter) NodeEntry {
	e := NodeEntry{
		Name:        t.Name,
		Kind:        t.Kind.String(),
		Translation: [3]float32(scene.LocalWorld(conv, t).Origin()),
		Meshes:      t.Record.Meshes,
	}
	for _, c := range t.Children {
		e.Children = append(e.Children, nodeEntry(c, conv))
	}
	return e
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func WriteSnapshot(w io.Writer, snap scene.Snapshot, conv *coords.Converter) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(FromSnapshot(snap, conv)); err != nil {
		return fmt.Errorf("scenefile: encode snapshot: %w", err)
	}
	return enc.Close()
}

// SaveSnapshot writes snap to dir as scene-<generation>.yaml.
func SaveSnapshot(dir string, snap scene.Snapshot, conv *coords.Converter) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("scenefile: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("scene-%04d.yaml", snap.Generation))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("scenefile: %w", err)
	}
	if err := WriteSnapshot(f, snap, conv); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

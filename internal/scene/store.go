package scene

import (
	"sync"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/rs/zerolog"
)

// Light is a received light with its orientation resolved in local space.
type Light struct {
	Record   LightRecord
	Rotation coords.Rotator
}

// Snapshot is an immutable view of the received scene.
type Snapshot struct {
	Generation int
	Config     ConfigRecord
	Forest     []*TreeNode
	Meshes     map[string]MeshRecord
	Cameras    map[string]CameraRecord
	Lights     map[string]Light
	Textures   map[string]TextureRecord
	Materials  map[string]MaterialRecord
}

// LocalWorld returns the world transform of t in local convention (row
// vectors).
func LocalWorld(conv *coords.Converter, t *TreeNode) coords.Mat4 {
	return conv.MatrixToLocal(t.World).Transpose()
}

// Store accumulates records received from the peer. Mesh and light data are
// converted to local convention on arrival; node transforms are kept in
// remote convention until the graph is built. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	conv       *coords.Converter
	log        zerolog.Logger
	generation int
	config     ConfigRecord
	nodes      map[string]NodeRecord
	order      []string
	meshes     map[string]MeshRecord
	cameras    map[string]CameraRecord
	lights     map[string]Light
	textures   map[string]TextureRecord
	materials  map[string]MaterialRecord
	onReady    []func(Snapshot)
}

func NewStore(conv *coords.Converter) *Store {
	s := &Store{
		conv: conv,
		log:  logging.Component("scene.store"),
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.nodes = map[string]NodeRecord{}
	s.order = nil
	s.meshes = map[string]MeshRecord{}
	s.cameras = map[string]CameraRecord{}
	s.lights = map[string]Light{}
	s.textures = map[string]TextureRecord{}
	s.materials = map[string]MaterialRecord{}
	s.config = ConfigRecord{}
}

// OnReady registers fn to receive a snapshot each time the peer signals that
// a scene update is complete.
func (s *Store) OnReady(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = append(s.onReady, fn)
}

func (s *Store) ClearScene() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.generation++
	s.log.Debug().Int("generation", s.generation).Msg("scene cleared")
}

func (s *Store) ApplyConfig(payload []byte) error {
	cfg, err := DecodeConfig(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.conv.SetAssetReset(cfg.ResetMeshAsset)
	return nil
}

func (s *Store) ApplyNode(payload []byte) error {
	n, err := DecodeNode(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.UniqueName]; !ok {
		s.order = append(s.order, n.UniqueName)
	}
	s.nodes[n.UniqueName] = n
	return nil
}

func (s *Store) ApplyMesh(payload []byte) error {
	m, err := DecodeMesh(payload)
	if err != nil {
		return err
	}
	m.Vertices = s.conv.PositionsToLocal(m.Vertices)
	m.Normals = s.conv.DirectionsToLocal(m.Normals)
	m.Tangents = s.conv.DirectionsToLocal(m.Tangents)
	m.UVs = coords.FlipUVs(m.UVs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meshes[m.UniqueName] = m
	return nil
}

func (s *Store) ApplyCamera(payload []byte) error {
	c, err := DecodeCamera(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras[c.UniqueName] = c
	return nil
}

func (s *Store) ApplyLight(payload []byte) error {
	l, err := DecodeLight(payload)
	if err != nil {
		return err
	}
	l.Position = s.conv.PositionToLocal(l.Position)
	l.Direction = s.conv.DirectionToLocal(l.Direction)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights[l.UniqueName] = Light{Record: l, Rotation: coords.DirectionRotator(l.Direction)}
	return nil
}

func (s *Store) ApplyTexture(payload []byte) error {
	t, err := DecodeTexture(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textures[t.UniqueName] = t
	return nil
}

func (s *Store) ApplyMaterial(payload []byte) error {
	m, err := DecodeMaterial(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.UniqueName] = m
	return nil
}

// OnSceneReady builds the graph and hands a snapshot to every OnReady hook.
func (s *Store) OnSceneReady() {
	snap := s.Snapshot()
	s.mu.RLock()
	hooks := append([]func(Snapshot){}, s.onReady...)
	s.mu.RUnlock()
	s.log.Info().
		Int("generation", snap.Generation).
		Int("roots", len(snap.Forest)).
		Int("nodes", CountNodes(snap.Forest)).
		Int("meshes", len(snap.Meshes)).
		Msg("scene ready")
	for _, fn := range hooks {
		fn(snap)
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Generation: s.generation,
		Config:     s.config,
		Forest:     BuildForest(s.nodes, s.order),
		Meshes:     make(map[string]MeshRecord, len(s.meshes)),
		Cameras:    make(map[string]CameraRecord, len(s.cameras)),
		Lights:     make(map[string]Light, len(s.lights)),
		Textures:   make(map[string]TextureRecord, len(s.textures)),
		Materials:  make(map[string]MaterialRecord, len(s.materials)),
	}
	for k, v := range s.meshes {
		snap.Meshes[k] = v
	}
	for k, v := range s.cameras {
		snap.Cameras[k] = v
	}
	for k, v := range s.lights {
		snap.Lights[k] = v
	}
	for k, v := range s.textures {
		snap.Textures[k] = v
	}
	for k, v := range s.materials {
		snap.Materials[k] = v
	}
	return snap
}

// NodeCount returns the number of received node records.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

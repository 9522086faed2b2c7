// Package scene defines the records exchanged between peers, their codecs,
// reusable payload builders, and the store that materialises received
// records into a scene graph.
package scene

import "github.com/danmuck/scenebridge/internal/coords"

// Buffer strides, in elements per unit.
const (
	StrideIndex     = 3
	StrideVertex    = 3
	StrideNormal    = 3
	StrideUV        = 2
	StrideColor     = 3
	StrideTangent   = 6
	StrideMatIndex  = 1
	StrideTransform = 16
)

// NodeRecord is one scene item with a transform and name references.
type NodeRecord struct {
	UniqueName        string
	DisplayName       string
	Transform         coords.Mat4
	Meshes            []string
	Cameras           []string
	Lights            []string
	Children          []string
	MaterialOverrides []string
}

// MeshRecord is one geometry asset in remote conventions.
type MeshRecord struct {
	UniqueName      string
	DisplayName     string
	Indices         []uint32
	Vertices        []float32
	Normals         []float32
	UVs             []float32
	Colors          []float32
	Tangents        []float32
	MaterialIndices []uint32
	MaterialNames   []string
}

// VertexCount returns the number of complete vertices.
func (m MeshRecord) VertexCount() int {
	return len(m.Vertices) / StrideVertex
}

// TriangleCount returns the number of complete triangles.
func (m MeshRecord) TriangleCount() int {
	return len(m.Indices) / StrideIndex
}

type CameraRecord struct {
	UniqueName  string
	DisplayName string
	FieldOfView float32
	NearClip    float32
	FarClip     float32
}

type LightKind string

const (
	LightPoint       LightKind = "point"
	LightSpot        LightKind = "spot"
	LightDirectional LightKind = "directional"
)

type LightRecord struct {
	UniqueName  string
	DisplayName string
	Kind        LightKind
	Position    coords.Vec3
	Direction   coords.Vec3
	Color       coords.Vec3
	Intensity   float32
}

type TextureFormat uint32

const (
	TextureByte TextureFormat = iota
	TextureFloat
)

type ColorSpace uint32

const (
	ColorLinear ColorSpace = iota
	ColorSRGB
)

type TextureRecord struct {
	UniqueName  string
	DisplayName string
	Width       uint32
	Height      uint32
	Components  uint32
	Format      TextureFormat
	ColorSpace  ColorSpace
	Colors      []byte
	FColors     []float32
}

// Channel names a material input.
type Channel string

const (
	ChannelBaseColor        Channel = "base_color"
	ChannelMetallic         Channel = "metallic"
	ChannelOpacity          Channel = "opacity"
	ChannelEmissive         Channel = "emissive"
	ChannelNormal           Channel = "normal"
	ChannelSpecular         Channel = "specular"
	ChannelRoughness        Channel = "roughness"
	ChannelClearCoatRough   Channel = "clear_coat_roughness"
	ChannelClearCoatAmount  Channel = "clear_coat_amount"
	ChannelAmbientOcclusion Channel = "ambient_occlusion"
	ChannelSubsurfaceColor  Channel = "subsurface_color"
)

// MaterialInput is a constant effect value and an optional texture for one
// channel.
type MaterialInput struct {
	Channel Channel
	Effect  []float32
	Texture string
}

type MaterialRecord struct {
	UniqueName  string
	DisplayName string
	Inputs      []MaterialInput
}

// Input returns the input for ch, if present.
func (m MaterialRecord) Input(ch Channel) (MaterialInput, bool) {
	for _, in := range m.Inputs {
		if in.Channel == ch {
			return in, true
		}
	}
	return MaterialInput{}, false
}

// NodeKind is resolved once when a node record is applied.
type NodeKind uint8

const (
	KindGeneric NodeKind = iota
	KindMesh
	KindLight
	KindCamera
)

func (k NodeKind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindLight:
		return "light"
	case KindCamera:
		return "camera"
	default:
		return "generic"
	}
}

// Kind classifies a node by the references it carries. Cameras win over
// lights, lights over meshes.
func (n NodeRecord) Kind() NodeKind {
	switch {
	case len(n.Cameras) > 0:
		return KindCamera
	case len(n.Lights) > 0:
		return KindLight
	case len(n.Meshes) > 0:
		return KindMesh
	default:
		return KindGeneric
	}
}

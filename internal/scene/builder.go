package scene

import (
	"github.com/danmuck/scenebridge/internal/protocol/tlv"
	"github.com/zeebo/blake3"
)

// Builder is a reusable serialization buffer for one outgoing record.
type Builder struct {
	buf  []byte
	name string
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Reset empties the builder and keeps its capacity.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.name = ""
}

func (b *Builder) add(f tlv.Field) {
	b.buf = tlv.AppendField(b.buf, f)
}

func (b *Builder) addString(id uint16, v string) {
	b.add(tlv.String(id, v))
}

func (b *Builder) addStrings(id uint16, vs []string) {
	for _, v := range vs {
		b.add(tlv.String(id, v))
	}
}

// Name is the unique name of the record last written.
func (b *Builder) Name() string {
	return b.name
}

// Bytes returns the encoded record. The slice is reused after Reset.
func (b *Builder) Bytes() []byte {
	return b.buf
}

func (b *Builder) Len() int {
	return len(b.buf)
}

// Digest returns the BLAKE3-256 digest of the encoded record.
func (b *Builder) Digest() [32]byte {
	return blake3.Sum256(b.buf)
}

func (b *Builder) start(uniqueName, displayName string) {
	b.Reset()
	b.name = uniqueName
	b.addString(fieldUniqueName, uniqueName)
	b.addString(fieldDisplayName, displayName)
}

func (b *Builder) WriteNode(n NodeRecord) {
	b.start(n.UniqueName, n.DisplayName)
	b.add(tlv.F32s(nodeTransform, n.Transform[:]))
	b.addStrings(nodeMesh, n.Meshes)
	b.addStrings(nodeCamera, n.Cameras)
	b.addStrings(nodeLight, n.Lights)
	b.addStrings(nodeChild, n.Children)
	b.addStrings(nodeMaterialOverride, n.MaterialOverrides)
}

func (b *Builder) WriteMesh(m MeshRecord) {
	b.start(m.UniqueName, m.DisplayName)
	b.add(tlv.U32s(meshIndices, m.Indices))
	b.add(tlv.F32s(meshVertices, m.Vertices))
	b.add(tlv.F32s(meshNormals, m.Normals))
	b.add(tlv.F32s(meshUVs, m.UVs))
	b.add(tlv.F32s(meshColors, m.Colors))
	b.add(tlv.F32s(meshTangents, m.Tangents))
	b.add(tlv.U32s(meshMaterialIndices, m.MaterialIndices))
	b.addStrings(meshMaterialName, m.MaterialNames)
}

func (b *Builder) WriteCamera(c CameraRecord) {
	b.start(c.UniqueName, c.DisplayName)
	b.add(tlv.F32(cameraFieldOfView, c.FieldOfView))
	b.add(tlv.F32(cameraNearClip, c.NearClip))
	b.add(tlv.F32(cameraFarClip, c.FarClip))
}

func (b *Builder) WriteLight(l LightRecord) {
	b.start(l.UniqueName, l.DisplayName)
	b.addString(lightKind, string(l.Kind))
	b.add(tlv.F32s(lightPosition, l.Position[:]))
	b.add(tlv.F32s(lightDirection, l.Direction[:]))
	b.add(tlv.F32s(lightColor, l.Color[:]))
	b.add(tlv.F32(lightIntensity, l.Intensity))
}

func (b *Builder) WriteTexture(t TextureRecord) {
	b.start(t.UniqueName, t.DisplayName)
	b.add(tlv.U32(textureWidth, t.Width))
	b.add(tlv.U32(textureHeight, t.Height))
	b.add(tlv.U32(textureComponents, t.Components))
	b.add(tlv.U32(textureFormat, uint32(t.Format)))
	b.add(tlv.U32(textureColorSpace, uint32(t.ColorSpace)))
	if t.Format == TextureFloat {
		b.add(tlv.F32s(textureFColors, t.FColors))
	} else {
		b.add(tlv.Bytes(textureColors, t.Colors))
	}
}

func (b *Builder) WriteMaterial(m MaterialRecord) {
	b.start(m.UniqueName, m.DisplayName)
	for _, in := range m.Inputs {
		nested := tlv.EncodeFields([]tlv.Field{
			tlv.String(inputChannel, string(in.Channel)),
			tlv.F32s(inputEffect, in.Effect),
			tlv.String(inputTexture, in.Texture),
		})
		b.add(tlv.Bytes(materialInput, nested))
	}
}

// EncodeNode and friends encode into a fresh buffer.
func EncodeNode(n NodeRecord) []byte {
	b := NewBuilder()
	b.WriteNode(n)
	return b.Bytes()
}

func EncodeMesh(m MeshRecord) []byte {
	b := NewBuilder()
	b.WriteMesh(m)
	return b.Bytes()
}

func EncodeCamera(c CameraRecord) []byte {
	b := NewBuilder()
	b.WriteCamera(c)
	return b.Bytes()
}

func EncodeLight(l LightRecord) []byte {
	b := NewBuilder()
	b.WriteLight(l)
	return b.Bytes()
}

func EncodeTexture(t TextureRecord) []byte {
	b := NewBuilder()
	b.WriteTexture(t)
	return b.Bytes()
}

func EncodeMaterial(m MaterialRecord) []byte {
	b := NewBuilder()
	b.WriteMaterial(m)
	return b.Bytes()
}

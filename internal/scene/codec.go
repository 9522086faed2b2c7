package scene

import (
	"errors"
	"fmt"

	"github.com/danmuck/scenebridge/internal/coords"
	"github.com/danmuck/scenebridge/internal/protocol/tlv"
)

var (
	ErrMalformedRecord = errors.New("scene: malformed record")
	ErrMissingName     = errors.New("scene: record has no unique name")
)

// Decoding is lenient about absence and strict about shape: missing fields
// decode as empty values, while a field with the wrong type or length fails
// the whole record.

type fieldReader struct {
	kind string
	err  error
}

func (r *fieldReader) fail(f tlv.Field, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s field %d: %v", ErrMalformedRecord, r.kind, f.ID, err)
	}
}

func (r *fieldReader) str(f tlv.Field) string {
	if err := tlv.MustType(f, tlv.TypeString); err != nil {
		r.fail(f, err)
		return ""
	}
	return string(f.Value)
}

func (r *fieldReader) f32(f tlv.Field) float32 {
	v, err := tlv.AsF32(f)
	if err != nil {
		r.fail(f, err)
	}
	return v
}

func (r *fieldReader) f32s(f tlv.Field) []float32 {
	v, err := tlv.AsF32s(f)
	if err != nil {
		r.fail(f, err)
	}
	return v
}

func (r *fieldReader) u32(f tlv.Field) uint32 {
	v, err := tlv.AsU32(f)
	if err != nil {
		r.fail(f, err)
	}
	return v
}

func (r *fieldReader) u32s(f tlv.Field) []uint32 {
	v, err := tlv.AsU32s(f)
	if err != nil {
		r.fail(f, err)
	}
	return v
}

func (r *fieldReader) vec3(f tlv.Field) coords.Vec3 {
	v := r.f32s(f)
	if r.err == nil && len(v) != 3 {
		r.fail(f, fmt.Errorf("want 3 floats, got %d", len(v)))
		return coords.Vec3{}
	}
	var out coords.Vec3
	copy(out[:], v)
	return out
}

func (r *fieldReader) stride(f tlv.Field, n, stride int) {
	if r.err == nil && n%stride != 0 {
		r.fail(f, fmt.Errorf("length %d not a multiple of %d", n, stride))
	}
}

func decode(kind string, payload []byte) ([]tlv.Field, *fieldReader, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, kind, err)
	}
	return fields, &fieldReader{kind: kind}, nil
}

func finish(kind, uniqueName string, r *fieldReader) error {
	if r.err != nil {
		return r.err
	}
	if uniqueName == "" {
		return fmt.Errorf("%w: %s", ErrMissingName, kind)
	}
	return nil
}

func DecodeNode(payload []byte) (NodeRecord, error) {
	fields, r, err := decode("node", payload)
	if err != nil {
		return NodeRecord{}, err
	}
	n := NodeRecord{Transform: coords.Identity()}
	for _, f := range fields {
		switch f.ID {
		case fieldUniqueName:
			n.UniqueName = r.str(f)
		case fieldDisplayName:
			n.DisplayName = r.str(f)
		case nodeTransform:
			v := r.f32s(f)
			if r.err == nil && len(v) != StrideTransform {
				r.fail(f, fmt.Errorf("want %d floats, got %d", StrideTransform, len(v)))
			}
			copy(n.Transform[:], v)
		case nodeMesh:
			n.Meshes = append(n.Meshes, r.str(f))
		case nodeCamera:
			n.Cameras = append(n.Cameras, r.str(f))
		case nodeLight:
			n.Lights = append(n.Lights, r.str(f))
		case nodeChild:
			n.Children = append(n.Children, r.str(f))
		case nodeMaterialOverride:
			n.MaterialOverrides = append(n.MaterialOverrides, r.str(f))
		}
	}
	if err := finish("node", n.UniqueName, r); err != nil {
		return NodeRecord{}, err
	}
	return n, nil
}

func DecodeMesh(payload []byte) (MeshRecord, error) {
	fields, r, err := decode("mesh", payload)
	if err != nil {
		return MeshRecord{}, err
	}
	var m MeshRecord
	for _, f := range fields {
		switch f.ID {
		case fieldUniqueName:
			m.UniqueName = r.str(f)
		case fieldDisplayName:
			m.DisplayName = r.str(f)
		case meshIndices:
			m.Indices = r.u32s(f)
			r.stride(f, len(m.Indices), StrideIndex)
		case meshVertices:
			m.Vertices = r.f32s(f)
			r.stride(f, len(m.Vertices), StrideVertex)
		case meshNormals:
			m.Normals = r.f32s(f)
			r.stride(f, len(m.Normals), StrideNormal)
		case meshUVs:
			m.UVs = r.f32s(f)
			r.stride(f, len(m.UVs), StrideUV)
		case meshColors:
			m.Colors = r.f32s(f)
			r.stride(f, len(m.Colors), StrideColor)
		case meshTangents:
			m.Tangents = r.f32s(f)
			r.stride(f, len(m.Tangents), StrideTangent)
		case meshMaterialIndices:
			m.MaterialIndices = r.u32s(f)
		case meshMaterialName:
			m.MaterialNames = append(m.MaterialNames, r.str(f))
		}
	}
	if err := finish("mesh", m.UniqueName, r); err != nil {
		return MeshRecord{}, err
	}
	return m, nil
}

func DecodeCamera(payload []byte) (CameraRecord, error) {
	fields, r, err := decode("camera", payload)
	if err != nil {
		return CameraRecord{}, err
	}
	var c CameraRecord
	for _, f := range fields {
		switch f.ID {
		case fieldUniqueName:
			c.UniqueName = r.str(f)
		case fieldDisplayName:
			c.DisplayName = r.str(f)
		case cameraFieldOfView:
			c.FieldOfView = r.f32(f)
		case cameraNearClip:
			c.NearClip = r.f32(f)
		case cameraFarClip:
			c.FarClip = r.f32(f)
		}
	}
	if err := finish("camera", c.UniqueName, r); err != nil {
		return CameraRecord{}, err
	}
	return c, nil
}

func DecodeLight(payload []byte) (LightRecord, error) {
	fields, r, err := decode("light", payload)
	if err != nil {
		return LightRecord{}, err
	}
	l := LightRecord{Kind: LightPoint}
	for _, f := range fields {
		switch f.ID {
		case fieldUniqueName:
			l.UniqueName = r.str(f)
		case fieldDisplayName:
			l.DisplayName = r.str(f)
		case lightKind:
			if k := r.str(f); k != "" {
				l.Kind = LightKind(k)
			}
		case lightPosition:
			l.Position = r.vec3(f)
		case lightDirection:
			l.Direction = r.vec3(f)
		case lightColor:
			l.Color = r.vec3(f)
		case lightIntensity:
			l.Intensity = r.f32(f)
		}
	}
	if err := finish("light", l.UniqueName, r); err != nil {
		return LightRecord{}, err
	}
	return l, nil
}

func DecodeTexture(payload []byte) (TextureRecord, error) {
	fields, r, err := decode("texture", payload)
	if err != nil {
		return TextureRecord{}, err
	}
	var t TextureRecord
	for _, f := range fields {
		switch f.ID {
		case fieldUniqueName:
			t.UniqueName = r.str(f)
		case fieldDisplayName:
			t.DisplayName = r.str(f)
		case textureWidth:
			t.Width = r.u32(f)
		case textureHeight:
			t.Height = r.u32(f)
		case textureComponents:
			t.Components = r.u32(f)
		case textureFormat:
			t.Format = TextureFormat(r.u32(f))
		case textureColorSpace:
			t.ColorSpace = ColorSpace(r.u32(f))
		case textureColors:
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				r.fail(f, err)
			}
			t.Colors = f.Value
		case textureFColors:
			t.FColors = r.f32s(f)
		}
	}
	if err := finish("texture", t.UniqueName, r); err != nil {
		return TextureRecord{}, err
	}
	return t, nil
}

func DecodeMaterial(payload []byte) (MaterialRecord, error) {
	fields, r, err := decode("material", payload)
	if err != nil {
		return MaterialRecord{}, err
	}
	var m MaterialRecord
	for _, f := range fields {
		switch f.ID {
		case fieldUniqueName:
			m.UniqueName = r.str(f)
		case fieldDisplayName:
			m.DisplayName = r.str(f)
		case materialInput:
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				r.fail(f, err)
				continue
			}
			nested, err := tlv.DecodeFields(f.Value)
			if err != nil {
				r.fail(f, err)
				continue
			}
			var in MaterialInput
			for _, nf := range nested {
				switch nf.ID {
				case inputChannel:
					in.Channel = Channel(r.str(nf))
				case inputEffect:
					in.Effect = r.f32s(nf)
				case inputTexture:
					in.Texture = r.str(nf)
				}
			}
			m.Inputs = append(m.Inputs, in)
		}
	}
	if err := finish("material", m.UniqueName, r); err != nil {
		return MaterialRecord{}, err
	}
	return m, nil
}

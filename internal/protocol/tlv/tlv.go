package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrFieldType        = errors.New("tlv: field type mismatch")
	ErrFieldLength      = errors.New("tlv: invalid field length")
)

// Type IDs from tlv contract.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
	TypeF32    uint8 = 8
	TypeF32s   uint8 = 9
	TypeU32s   uint8 = 10
)

// Field is one decoded TLV field. A field ID may repeat for list values.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func EncodeField(f Field) []byte {
	return AppendField(make([]byte, 0, HeaderLen+len(f.Value)), f)
}

// AppendField appends the encoded field to dst and returns the extended slice.
func AppendField(dst []byte, f Field) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], f.ID)
	hdr[2] = f.Type
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(f.Value)))
	dst = append(dst, hdr[:]...)
	return append(dst, f.Value...)
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0)
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GetAll returns every field with id, in encoded order.
func GetAll(fields []Field, id uint16) []Field {
	var out []Field
	for _, f := range fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("%w: field %d got %d want %d", ErrFieldType, f.ID, f.Type, expected)
	}
	return nil
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func F32(id uint16, v float32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return Field{ID: id, Type: TypeF32, Value: buf}
}

func F32s(id uint16, v []float32) Field {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return Field{ID: id, Type: TypeF32s, Value: buf}
}

func U32s(id uint16, v []uint32) Field {
	buf := make([]byte, 4*len(v))
	for i, u := range v {
		binary.BigEndian.PutUint32(buf[i*4:], u)
	}
	return Field{ID: id, Type: TypeU32s, Value: buf}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

func U32FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: u32 length %d", ErrFieldLength, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func AsBool(f Field) (bool, error) {
	if err := MustType(f, TypeBool); err != nil {
		return false, err
	}
	if len(f.Value) != 1 {
		return false, fmt.Errorf("%w: bool length %d", ErrFieldLength, len(f.Value))
	}
	return f.Value[0] != 0, nil
}

func AsU32(f Field) (uint32, error) {
	if err := MustType(f, TypeU32); err != nil {
		return 0, err
	}
	return U32FromBytes(f.Value)
}

func AsF32(f Field) (float32, error) {
	if err := MustType(f, TypeF32); err != nil {
		return 0, err
	}
	u, err := U32FromBytes(f.Value)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

func AsF32s(f Field) ([]float32, error) {
	if err := MustType(f, TypeF32s); err != nil {
		return nil, err
	}
	if len(f.Value)%4 != 0 {
		return nil, fmt.Errorf("%w: f32 list length %d", ErrFieldLength, len(f.Value))
	}
	out := make([]float32, len(f.Value)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(f.Value[i*4:]))
	}
	return out, nil
}

func AsU32s(f Field) ([]uint32, error) {
	if err := MustType(f, TypeU32s); err != nil {
		return nil, err
	}
	if len(f.Value)%4 != 0 {
		return nil, fmt.Errorf("%w: u32 list length %d", ErrFieldLength, len(f.Value))
	}
	out := make([]uint32, len(f.Value)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(f.Value[i*4:])
	}
	return out, nil
}

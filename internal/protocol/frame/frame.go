package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	FixedHeaderLen        = 32
	Magic          uint32 = 0x53424231 // "SBB1"
	Version        uint16 = 1

	// FlagMore marks a frame that is followed by a continuation frame of the
	// same message.
	FlagMore uint16 = 0x0001
	// FlagReply marks frames sent by the answering peer.
	FlagReply uint16 = 0x0002
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrBodyTooLarge       = errors.New("frame: body too large")
	ErrRawLenMismatch     = errors.New("frame: raw length mismatch")
)

// Header is the fixed wire header.
type Header struct {
	Magic     uint32
	Version   uint16
	Flags     uint16
	MessageID uint64
	Codec     Codec
	RawLen    uint32
	BodyLen   uint64
}

// Frame is one wire frame. Body is always the decompressed content.
type Frame struct {
	Header Header
	Body   []byte
}

// More reports whether a continuation frame follows.
func (f Frame) More() bool {
	return f.Header.Flags&FlagMore != 0
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes: 256 * 1024 * 1024,
	}
}

// Max is the effective body cap. RawLen is a u32 on the wire, so larger
// configured limits are clamped.
func (l Limits) Max() uint64 {
	if l.MaxBodyBytes > math.MaxUint32 {
		return math.MaxUint32
	}
	return l.MaxBodyBytes
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Frame{}, ErrUnsupportedVersion
	}
	if h.BodyLen > limits.Max() || uint64(h.RawLen) > limits.Max() {
		return Frame{}, ErrBodyTooLarge
	}

	wire := make([]byte, h.BodyLen)
	if h.BodyLen > 0 {
		if _, err := io.ReadFull(r, wire); err != nil {
			return Frame{}, err
		}
	}

	body, err := Decompress(wire, h.Codec, int(h.RawLen))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, Body: body}, nil
}

// WriteFrame compresses f.Body with f.Header.Codec and writes header and body.
// Bodies that do not shrink are sent uncompressed.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Body)) > limits.Max() {
		return ErrBodyTooLarge
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.RawLen = uint32(len(f.Body))

	wire := f.Body
	if h.Codec != CodecNone && len(f.Body) > 0 {
		compressed, err := Compress(f.Body, h.Codec)
		switch {
		case IsIncompressible(err):
			h.Codec = CodecNone
		case err != nil:
			return err
		default:
			wire = compressed
		}
	} else {
		h.Codec = CodecNone
	}
	h.BodyLen = uint64(len(wire))

	buf := make([]byte, 0, FixedHeaderLen+len(wire))
	buf = append(buf, EncodeHeader(h)...)
	buf = append(buf, wire...)
	_, err := w.Write(buf)
	return err
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	buf[16] = byte(h.Codec)
	binary.BigEndian.PutUint32(buf[20:24], h.RawLen)
	binary.BigEndian.PutUint64(buf[24:32], h.BodyLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:     binary.BigEndian.Uint32(b[0:4]),
		Version:   binary.BigEndian.Uint16(b[4:6]),
		Flags:     binary.BigEndian.Uint16(b[6:8]),
		MessageID: binary.BigEndian.Uint64(b[8:16]),
		Codec:     Codec(b[16]),
		RawLen:    binary.BigEndian.Uint32(b[20:24]),
		BodyLen:   binary.BigEndian.Uint64(b[24:32]),
	}, nil
}

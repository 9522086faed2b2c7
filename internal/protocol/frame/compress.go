package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies how a frame body is compressed on the wire. Values are
// stored in the frame header and must not change.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
	// CodecBG4LZ4 groups bytes by position within 4-byte words before LZ4.
	// Vertex, normal and transform buffers are float32 runs and shrink well.
	CodecBG4LZ4 Codec = 3
)

var (
	ErrUnknownCodec   = errors.New("frame: unknown codec")
	errIncompressible = errors.New("frame: body is incompressible")
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecBG4LZ4:
		return "bg4_lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	case "bg4_lz4":
		return CodecBG4LZ4, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// IsIncompressible reports whether Compress gave up because the output would
// not be smaller than the input.
func IsIncompressible(err error) bool {
	return errors.Is(err, errIncompressible)
}

func Compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecLZ4:
		return compressLZ4(data)
	case CodecZstd:
		return compressZstd(data)
	case CodecBG4LZ4:
		return compressLZ4(bg4Transpose(data))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, codec)
	}
}

// Decompress reverses Compress. rawLen must equal the original length.
func Decompress(data []byte, codec Codec, rawLen int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(data) != rawLen {
			return nil, fmt.Errorf("%w: got=%d want=%d", ErrRawLenMismatch, len(data), rawLen)
		}
		return data, nil
	case CodecLZ4:
		return decompressLZ4(data, rawLen)
	case CodecZstd:
		return decompressZstd(data, rawLen)
	case CodecBG4LZ4:
		grouped, err := decompressLZ4(data, rawLen)
		if err != nil {
			return nil, err
		}
		return bg4Untranspose(grouped), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, codec)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("frame: lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(data []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("frame: lz4 decompress: %w", err)
	}
	if n != rawLen {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrRawLenMismatch, n, rawLen)
	}
	return dst, nil
}

// zstdWindow bounds the history a zstd frame may ask the decoder to keep.
// The encoder is pinned to the same window so every frame it writes decodes.
const zstdWindow = 8 << 20

// The encoder is safe for concurrent use. Decoders are pooled and run
// synchronously so that output can be bounded by rawLen.
var (
	zstdEncoder  *zstd.Encoder
	zstdDecoders = sync.Pool{
		New: func() any {
			d, err := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderLowmem(true),
				zstd.WithDecoderMaxWindow(zstdWindow),
			)
			if err != nil {
				panic("frame: zstd decoder init: " + err.Error())
			}
			return d
		},
	}
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithWindowSize(zstdWindow),
	)
	if err != nil {
		panic("frame: zstd encoder init: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}

// decompressZstd never produces more than rawLen bytes. A declared content
// size other than rawLen is rejected before any block is decoded, and output
// past rawLen stops the decode.
func decompressZstd(data []byte, rawLen int) ([]byte, error) {
	var zh zstd.Header
	if err := zh.Decode(data); err != nil {
		return nil, fmt.Errorf("frame: zstd header: %w", err)
	}
	if zh.HasFCS && zh.FrameContentSize != uint64(rawLen) {
		return nil, fmt.Errorf("%w: declared=%d want=%d", ErrRawLenMismatch, zh.FrameContentSize, rawLen)
	}
	if zh.WindowSize > zstdWindow {
		return nil, fmt.Errorf("frame: zstd window too large: %d", zh.WindowSize)
	}

	dec := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(dec)
	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("frame: zstd decompress: %w", err)
	}
	defer func() { _ = dec.Reset(nil) }()

	out := make([]byte, rawLen)
	if n, err := io.ReadFull(dec, out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: got=%d want=%d", ErrRawLenMismatch, n, rawLen)
		}
		return nil, fmt.Errorf("frame: zstd decompress: %w", err)
	}
	var extra [1]byte
	if n, _ := dec.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("%w: body expands past %d bytes", ErrRawLenMismatch, rawLen)
	}
	return out, nil
}

// bg4Transpose lays out byte 0 of every 4-byte group, then byte 1, and so on.
// Trailing bytes past the last full group are copied unchanged.
func bg4Transpose(data []byte) []byte {
	groups := len(data) / 4
	out := make([]byte, len(data))
	for i := 0; i < groups; i++ {
		out[i] = data[i*4]
		out[groups+i] = data[i*4+1]
		out[groups*2+i] = data[i*4+2]
		out[groups*3+i] = data[i*4+3]
	}
	copy(out[groups*4:], data[groups*4:])
	return out
}

func bg4Untranspose(data []byte) []byte {
	groups := len(data) / 4
	out := make([]byte, len(data))
	for i := 0; i < groups; i++ {
		out[i*4] = data[i]
		out[i*4+1] = data[groups+i]
		out[i*4+2] = data[groups*2+i]
		out[i*4+3] = data[groups*3+i]
	}
	copy(out[groups*4:], data[groups*4:])
	return out
}

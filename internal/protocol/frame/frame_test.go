package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/danmuck/scenebridge/internal/testutil/testlog"
	"github.com/klauspost/compress/zstd"
)

func floatBody(n int) []byte {
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(float32(i%16)*0.25))
	}
	return out
}

func TestReadWriteFrameRoundTripAllCodecs(t *testing.T) {
	testlog.Start(t)
	body := floatBody(512)
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd, CodecBG4LZ4} {
		in := Frame{Header: Header{MessageID: 42, Flags: FlagMore, Codec: codec}, Body: body}
		var buf bytes.Buffer
		if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
			t.Fatalf("codec=%s write frame: %v", codec, err)
		}
		if codec != CodecNone && buf.Len() >= FixedHeaderLen+len(body) {
			t.Fatalf("codec=%s expected compressed body, wire=%d", codec, buf.Len())
		}
		out, err := ReadFrame(&buf, DefaultLimits())
		if err != nil {
			t.Fatalf("codec=%s read frame: %v", codec, err)
		}
		if out.Header.MessageID != 42 || !out.More() {
			t.Fatalf("codec=%s header mismatch: %+v", codec, out.Header)
		}
		if !bytes.Equal(out.Body, body) {
			t.Fatalf("codec=%s body mismatch", codec)
		}
	}
}

func TestWriteFrameIncompressibleFallsBackToNone(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	in := Frame{Header: Header{Codec: CodecLZ4}, Body: []byte("*IDLE*")}
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	h, err := DecodeHeader(buf.Bytes()[:FixedHeaderLen])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.Codec != CodecNone {
		t.Fatalf("expected fallback to none, got %s", h.Codec)
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(out.Body) != "*IDLE*" {
		t.Fatalf("unexpected body: %q", out.Body)
	}
}

func TestReadFrameMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadFrameRejectsBadMagicAndOversize(t *testing.T) {
	testlog.Start(t)
	buf := EncodeHeader(Header{Magic: 1, Version: Version})
	if _, err := ReadFrame(bytes.NewReader(buf), DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
	buf = EncodeHeader(Header{Magic: Magic, Version: Version, BodyLen: 1 << 20, RawLen: 1 << 20})
	if _, err := ReadFrame(bytes.NewReader(buf), Limits{MaxBodyBytes: 1024}); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestBG4TransposeInverse(t *testing.T) {
	testlog.Start(t)
	in := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	grouped := bg4Transpose(in)
	if !bytes.Equal(grouped[:8], []byte{1, 5, 2, 6, 3, 7, 4, 8}) {
		t.Fatalf("unexpected grouping: %v", grouped)
	}
	if !bytes.Equal(bg4Untranspose(grouped), in) {
		t.Fatalf("untranspose did not restore input")
	}
}

func TestParseCodec(t *testing.T) {
	testlog.Start(t)
	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZstd, CodecBG4LZ4} {
		got, err := ParseCodec(c.String())
		if err != nil || got != c {
			t.Fatalf("ParseCodec(%q)=%v,%v", c.String(), got, err)
		}
	}
	if _, err := ParseCodec("brotli"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}

func zstdFrame(t *testing.T, wire []byte, rawLen uint32) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(EncodeHeader(Header{
		Magic:   Magic,
		Version: Version,
		Codec:   CodecZstd,
		RawLen:  rawLen,
		BodyLen: uint64(len(wire)),
	}))
	buf.Write(wire)
	return &buf
}

func TestReadFrameZstdStopsAtRawLen(t *testing.T) {
	testlog.Start(t)

	// A streamed frame carries no content size, so only the decode itself can
	// notice that 64 MiB of zeros does not fit in 16 bytes.
	var wire bytes.Buffer
	enc, err := zstd.NewWriter(&wire)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	zeros := make([]byte, 1<<20)
	for i := 0; i < 64; i++ {
		if _, err := enc.Write(zeros); err != nil {
			t.Fatalf("zstd write: %v", err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	_, err = ReadFrame(zstdFrame(t, wire.Bytes(), 16), Limits{MaxBodyBytes: 1 << 20})
	if !errors.Is(err, ErrRawLenMismatch) {
		t.Fatalf("expected ErrRawLenMismatch, got %v", err)
	}
}

func TestReadFrameZstdRejectsDeclaredSizeMismatch(t *testing.T) {
	testlog.Start(t)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	wire := enc.EncodeAll(make([]byte, 1<<20), nil)
	_ = enc.Close()

	_, err = ReadFrame(zstdFrame(t, wire, 16), Limits{MaxBodyBytes: 1 << 21})
	if !errors.Is(err, ErrRawLenMismatch) {
		t.Fatalf("expected ErrRawLenMismatch, got %v", err)
	}
}

func TestReadFrameZstdRejectsOversizedWindow(t *testing.T) {
	testlog.Start(t)

	var wire bytes.Buffer
	enc, err := zstd.NewWriter(&wire, zstd.WithWindowSize(64<<20))
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := enc.Write(make([]byte, 4096)); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	if _, err := ReadFrame(zstdFrame(t, wire.Bytes(), 4096), DefaultLimits()); err == nil {
		t.Fatalf("expected window size rejection")
	}
}

func TestReadFrameZstdShortBody(t *testing.T) {
	testlog.Start(t)

	wire, err := compressZstd(floatBody(256))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	_, err = ReadFrame(zstdFrame(t, wire, 2048), DefaultLimits())
	if !errors.Is(err, ErrRawLenMismatch) {
		t.Fatalf("expected ErrRawLenMismatch, got %v", err)
	}
}

func TestLimitsClampToWireRawLen(t *testing.T) {
	testlog.Start(t)

	if got := (Limits{MaxBodyBytes: 1 << 40}).Max(); got != math.MaxUint32 {
		t.Fatalf("max=%d want %d", got, uint64(math.MaxUint32))
	}
	if got := DefaultLimits().Max(); got != DefaultLimits().MaxBodyBytes {
		t.Fatalf("default limit changed: %d", got)
	}

	var buf bytes.Buffer
	buf.Write(EncodeHeader(Header{Magic: Magic, Version: Version, BodyLen: math.MaxUint32 + 1}))
	if _, err := ReadFrame(&buf, Limits{MaxBodyBytes: 1 << 40}); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

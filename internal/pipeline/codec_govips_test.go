//go:build govips && cgo

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

func newTestGovipsCodec(t *testing.T, opts CodecOptions) govipsCodec {
	t.Helper()

	if err := Startup(); err != nil {
		t.Fatalf("start libvips: %v", err)
	}
	return newGovipsCodec(opts)
}

func TestGovipsCodecRejectsMislabelledBody(t *testing.T) {
	codec := newTestGovipsCodec(t, CodecOptions{})

	_, err := codec.Decode(context.Background(), domain.SourceImage{
		Data:   buildTestPNG(t, 20, 20),
		Format: domain.FormatJPEG,
	})
	if kind := KindOf(err); kind != KindDecode {
		t.Fatalf("expected decode kind for png bytes declared as jpeg, got %s (%v)", kind, err)
	}
}

func TestGovipsCodecRejectsOversizedHeader(t *testing.T) {
	codec := newTestGovipsCodec(t, CodecOptions{})

	_, err := codec.Decode(context.Background(), domain.SourceImage{
		Data:   pngWithDeclaredSize(t, 200000, 200000),
		Format: domain.FormatPNG,
	})
	if kind := KindOf(err); kind != KindDecode {
		t.Fatalf("expected decode kind for oversized source, got %s (%v)", kind, err)
	}
}

func TestGovipsCodecDecodesResizesAndEncodes(t *testing.T) {
	codec := newTestGovipsCodec(t, CodecOptions{})

	buf, err := codec.Decode(context.Background(), domain.SourceImage{Data: buildTestJPEG(t, 40, 30), Format: domain.FormatJPEG})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	buf = codec.Resize(buf, 33, 17)
	if buf.Width() != 33 || buf.Height() != 17 {
		t.Fatalf("expected 33x17, got %dx%d", buf.Width(), buf.Height())
	}
	if _, err := codec.Encode(buf, domain.FormatPNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestGovipsCodecEncodeReportsResizeFailure(t *testing.T) {
	codec := newTestGovipsCodec(t, CodecOptions{})

	buf := codec.Resize(&vipsBuffer{err: errors.New("vips ran out of memory")}, 10, 10)
	_, err := codec.Encode(buf, domain.FormatPNG)
	if kind := KindOf(err); kind != KindEncode {
		t.Fatalf("expected encode kind, got %s (%v)", kind, err)
	}
	if !strings.Contains(err.Error(), "vips ran out of memory") {
		t.Fatalf("expected the resize cause in the error, got %v", err)
	}
}

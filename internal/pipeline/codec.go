package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

// PixelBuffer is a decoded raster owned by exactly one stage at a time.
// Buffers only flow between methods of the codec that produced them.
type PixelBuffer interface {
	Width() int
	Height() int
	Release()
}

// Codec covers the decode, resize and encode stages.
type Codec interface {
	Decode(ctx context.Context, src domain.SourceImage) (PixelBuffer, error)
	Resize(buf PixelBuffer, width, height int) PixelBuffer
	Encode(buf PixelBuffer, format domain.Format) ([]byte, error)
}

// DefaultMaxPixels bounds the decoded size of a source at roughly 50 megapixels.
const DefaultMaxPixels = 50_000_000

type CodecOptions struct {
	Filter         Filter
	JPEGQuality    int
	PNGCompression string
	// MaxPixels caps width*height of a source; zero or less means DefaultMaxPixels.
	MaxPixels      int64
}

func (o CodecOptions) jpegQuality() int {
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		return 80
	}
	return o.JPEGQuality
}

func (o CodecOptions) maxPixels() int64 {
	if o.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return o.MaxPixels
}

// checkSourceSize reads only the header of src, using the decoder for its
// declared format, and rejects images whose pixel count exceeds maxPixels.
// Decoders allocate the full raster up front, so this must run first.
func checkSourceSize(src domain.SourceImage, maxPixels int64) error {
	var (
		cfg image.Config
		err error
	)
	r := bytes.NewReader(src.Data)
	switch src.Format {
	case domain.FormatPNG:
		cfg, err = png.DecodeConfig(r)
	case domain.FormatJPEG:
		cfg, err = jpeg.DecodeConfig(r)
	case domain.FormatGIF:
		cfg, err = gif.DecodeConfig(r)
	default:
		return fmt.Errorf("no decoder for format %q", src.Format)
	}
	if err != nil {
		return fmt.Errorf("read %s header: %w", src.Format, err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("source has empty dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return fmt.Errorf("source is %dx%d, %d pixels exceeds limit %d", cfg.Width, cfg.Height, pixels, maxPixels)
	}
	return nil
}

type Filter string

const (
	FilterNearest    Filter = "nearest"
	FilterBilinear   Filter = "bilinear"
	FilterCatmullRom Filter = "catmullrom"
	FilterLanczos    Filter = "lanczos"
	FilterBox        Filter = "box"
)

// ParseFilter falls back to nearest-neighbour for empty or unknown names.
func ParseFilter(name string) Filter {
	switch f := Filter(strings.ToLower(strings.TrimSpace(name))); f {
	case FilterBilinear, FilterCatmullRom, FilterLanczos, FilterBox:
		return f
	default:
		return FilterNearest
	}
}

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

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelproxy/internal/domain"
	"golang.org/x/image/draw"
)

type rasterBuffer struct {
	img image.Image
}

func (b *rasterBuffer) Width() int  { return b.img.Bounds().Dx() }
func (b *rasterBuffer) Height() int { return b.img.Bounds().Dy() }
func (b *rasterBuffer) Release()    { b.img = nil }

type stdlibCodec struct {
	opts CodecOptions
}

func newStdlibCodec(opts CodecOptions) stdlibCodec {
	opts.Filter = ParseFilter(string(opts.Filter))
	return stdlibCodec{opts: opts}
}

func (c stdlibCodec) Decode(ctx context.Context, src domain.SourceImage) (PixelBuffer, error) {
	select {
	case <-ctx.Done():
		return nil, newError(KindDecode, ctx.Err())
	default:
	}

	if err := checkSourceSize(src, c.opts.maxPixels()); err != nil {
		return nil, newError(KindDecode, err)
	}

	img, err := decodeImage(src)
	if err != nil {
		return nil, newError(KindDecode, err)
	}
	return &rasterBuffer{img: img}, nil
}

func decodeImage(src domain.SourceImage) (image.Image, error) {
	r := bytes.NewReader(src.Data)
	switch src.Format {
	case domain.FormatPNG:
		return png.Decode(r)
	case domain.FormatJPEG:
		return jpeg.Decode(r)
	case domain.FormatGIF:
		// First frame only.
		return gif.Decode(r)
	default:
		return nil, fmt.Errorf("no decoder for format %q", src.Format)
	}
}

func (c stdlibCodec) Resize(buf PixelBuffer, width, height int) PixelBuffer {
	src := buf.(*rasterBuffer)
	out := resizeExact(src.img, width, height, c.opts.Filter)
	src.Release()
	return &rasterBuffer{img: out}
}

// resizeExact always returns a width×height image, ignoring the source aspect ratio.
func resizeExact(src image.Image, width, height int, filter Filter) image.Image {
	switch filter {
	case FilterLanczos:
		return imaging.Resize(src, width, height, imaging.Lanczos)
	case FilterBox:
		return imaging.Resize(src, width, height, imaging.Box)
	}

	var interp draw.Interpolator = draw.NearestNeighbor
	switch filter {
	case FilterBilinear:
		interp = draw.BiLinear
	case FilterCatmullRom:
		interp = draw.CatmullRom
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	interp.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (c stdlibCodec) Encode(buf PixelBuffer, format domain.Format) ([]byte, error) {
	src := buf.(*rasterBuffer)
	defer src.Release()

	var out bytes.Buffer
	switch format {
	case domain.FormatJPEG:
		if err := jpeg.Encode(&out, src.img, &jpeg.Options{Quality: c.opts.jpegQuality()}); err != nil {
			return nil, errorf(KindEncode, "encode jpeg: %w", err)
		}
	case domain.FormatPNG:
		encoder := png.Encoder{CompressionLevel: pngCompression(c.opts.PNGCompression)}
		if err := encoder.Encode(&out, src.img); err != nil {
			return nil, errorf(KindEncode, "encode png: %w", err)
		}
	default:
		return nil, errorf(KindEncode, "unsupported output format: %s", format)
	}

	return out.Bytes(), nil
}

func pngCompression(level string) png.CompressionLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "speed":
		return png.BestSpeed
	case "best":
		return png.BestCompression
	case "none":
		return png.NoCompression
	default:
		return png.DefaultCompression
	}
}

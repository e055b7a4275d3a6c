//go:build govips && cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelproxy/internal/domain"
)

// vipsBuffer holds either an image or the error that ended resizing. The
// error surfaces from Encode so that Resize can stay infallible.
type vipsBuffer struct {
	ref *vips.ImageRef
	err error
}

func (b *vipsBuffer) Width() int {
	if b.ref == nil {
		return 0
	}
	return b.ref.Width()
}

func (b *vipsBuffer) Height() int {
	if b.ref == nil {
		return 0
	}
	return b.ref.Height()
}

func (b *vipsBuffer) Release() {
	if b.ref != nil {
		b.ref.Close()
		b.ref = nil
	}
}

type govipsCodec struct {
	opts   CodecOptions
	kernel vips.Kernel
}

func newGovipsCodec(opts CodecOptions) govipsCodec {
	opts.Filter = ParseFilter(string(opts.Filter))
	return govipsCodec{opts: opts, kernel: kernelForFilter(opts.Filter)}
}

func (c govipsCodec) Decode(ctx context.Context, src domain.SourceImage) (PixelBuffer, error) {
	select {
	case <-ctx.Done():
		return nil, newError(KindDecode, ctx.Err())
	default:
	}

	want, ok := vipsImageType(src.Format)
	if !ok {
		return nil, errorf(KindDecode, "no decoder for format %q", src.Format)
	}
	if err := checkSourceSize(src, c.opts.maxPixels()); err != nil {
		return nil, newError(KindDecode, err)
	}

	ref, err := vips.NewImageFromBuffer(src.Data)
	if err != nil {
		return nil, errorf(KindDecode, "decode source image: %w", err)
	}
	// libvips picks its loader from the bytes; the declared type still decides.
	if got := ref.Format(); got != want {
		ref.Close()
		return nil, errorf(KindDecode, "declared %s but body is %s", src.Format, vips.ImageTypes[got])
	}
	return &vipsBuffer{ref: ref}, nil
}

func vipsImageType(format domain.Format) (vips.ImageType, bool) {
	switch format {
	case domain.FormatPNG:
		return vips.ImageTypePNG, true
	case domain.FormatJPEG:
		return vips.ImageTypeJPEG, true
	case domain.FormatGIF:
		return vips.ImageTypeGIF, true
	default:
		return vips.ImageTypeUnknown, false
	}
}

func (c govipsCodec) Resize(buf PixelBuffer, width, height int) PixelBuffer {
	vb := buf.(*vipsBuffer)
	if vb.err != nil || vb.ref == nil {
		return vb
	}
	if vb.ref.Width() == width && vb.ref.Height() == height {
		return vb
	}

	hScale := float64(width) / float64(vb.ref.Width())
	vScale := float64(height) / float64(vb.ref.Height())
	if err := vb.ref.ResizeWithVScale(hScale, vScale, c.kernel); err != nil {
		return c.resizeFallback(vb, width, height)
	}

	// libvips rounds the scaled size; trim or pad the last row or column.
	if vb.ref.Width() != width || vb.ref.Height() != height {
		if err := exactSize(vb.ref, width, height); err != nil {
			return c.resizeFallback(vb, width, height)
		}
	}
	return vb
}

// resizeFallback runs the stdlib resizer when libvips cannot produce an exact size.
func (c govipsCodec) resizeFallback(vb *vipsBuffer, width, height int) PixelBuffer {
	img, err := vb.ref.ToImage(nil)
	vb.Release()
	if err != nil {
		return &vipsBuffer{err: fmt.Errorf("export for fallback resize: %w", err)}
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, resizeExact(img, width, height, c.opts.Filter)); err != nil {
		return &vipsBuffer{err: fmt.Errorf("encode fallback resize: %w", err)}
	}
	ref, err := vips.NewImageFromBuffer(encoded.Bytes())
	if err != nil {
		return &vipsBuffer{err: fmt.Errorf("load fallback resize: %w", err)}
	}
	return &vipsBuffer{ref: ref}
}

func exactSize(ref *vips.ImageRef, width, height int) error {
	w, h := ref.Width(), ref.Height()
	if w > width || h > height {
		if err := ref.ExtractArea(0, 0, min(w, width), min(h, height)); err != nil {
			return err
		}
	}
	if ref.Width() < width || ref.Height() < height {
		if err := ref.Embed(0, 0, width, height, vips.ExtendCopy); err != nil {
			return err
		}
	}
	return nil
}

func (c govipsCodec) Encode(buf PixelBuffer, format domain.Format) ([]byte, error) {
	vb := buf.(*vipsBuffer)
	defer vb.Release()
	if vb.err != nil {
		return nil, errorf(KindEncode, "resize: %w", vb.err)
	}
	if vb.ref == nil {
		return nil, errorf(KindEncode, "no image to encode")
	}

	switch format {
	case domain.FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = c.opts.jpegQuality()
		data, _, err := vb.ref.ExportJpeg(params)
		if err != nil {
			return nil, errorf(KindEncode, "encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = vipsPNGCompression(c.opts.PNGCompression)
		data, _, err := vb.ref.ExportPng(params)
		if err != nil {
			return nil, errorf(KindEncode, "encode png: %w", err)
		}
		return data, nil
	default:
		return nil, errorf(KindEncode, "unsupported output format: %s", format)
	}
}

func kernelForFilter(filter Filter) vips.Kernel {
	switch filter {
	case FilterBilinear:
		return vips.KernelLinear
	case FilterCatmullRom:
		return vips.KernelCubic
	case FilterLanczos:
		return vips.KernelLanczos3
	case FilterBox:
		return vips.KernelLinear
	default:
		return vips.KernelNearest
	}
}

func vipsPNGCompression(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "speed":
		return 1
	case "best":
		return 9
	case "none":
		return 0
	default:
		return 6
	}
}

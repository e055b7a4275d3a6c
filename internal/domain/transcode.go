package domain

import (
	"net/url"
	"strings"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
)

const (
	MinDimension = 10
	MaxDimension = 9999
)

// ContentType returns the MIME type for f, or "" for an unknown format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return ""
	}
}

// IsOutput reports whether f may be requested as a transcode output.
func (f Format) IsOutput() bool {
	return f == FormatPNG || f == FormatJPEG
}

// FormatFromContentType maps a bare media type (no parameters) to a source format.
func FormatFromContentType(mediaType string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return FormatPNG, true
	case "image/jpeg":
		return FormatJPEG, true
	case "image/gif":
		return FormatGIF, true
	default:
		return "", false
	}
}

// FormatFromSegment maps the format segment of a request path.
func FormatFromSegment(segment string) (Format, bool) {
	switch segment {
	case "png":
		return FormatPNG, true
	case "jpg":
		return FormatJPEG, true
	default:
		return "", false
	}
}

type TranscodeRequest struct {
	OutputFormat Format
	Width        uint
	Height       uint
	SourceURL    *url.URL
}

type SourceImage struct {
	Data   []byte
	Format Format
}

package pipeline

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

const HealthCheckPath = "/health-check"

var transcodePath = regexp.MustCompile(`^/(png|jpg)/([0-9]{2,4})/([0-9]{2,4})/`)

var errMalformedPath = errors.New("path does not match /{png|jpg}/{width}/{height}/")

// ParseRequest extracts a transcode request from the request path and its raw
// query string. Every rejection is a KindParse error.
func ParseRequest(path, rawQuery string) (domain.TranscodeRequest, error) {
	m := transcodePath.FindStringSubmatch(path)
	if m == nil {
		return domain.TranscodeRequest{}, newError(KindParse, errMalformedPath)
	}

	format, ok := domain.FormatFromSegment(m[1])
	if !ok {
		return domain.TranscodeRequest{}, errorf(KindParse, "unsupported output format %q", m[1])
	}

	width, err := parseDimension(m[2])
	if err != nil {
		return domain.TranscodeRequest{}, errorf(KindParse, "width: %w", err)
	}
	height, err := parseDimension(m[3])
	if err != nil {
		return domain.TranscodeRequest{}, errorf(KindParse, "height: %w", err)
	}

	src, err := parseSource(rawQuery)
	if err != nil {
		return domain.TranscodeRequest{}, newError(KindParse, err)
	}

	return domain.TranscodeRequest{
		OutputFormat: format,
		Width:        width,
		Height:       height,
		SourceURL:    src,
	}, nil
}

func parseDimension(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	if v < domain.MinDimension || v > domain.MaxDimension {
		return 0, errors.New("dimension out of range")
	}
	return uint(v), nil
}

func parseSource(rawQuery string) (*url.URL, error) {
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, errors.New("unparsable query string")
	}

	raw := query.Get("src")
	if raw == "" {
		return nil, errors.New("src parameter is required")
	}

	src, err := url.Parse(raw)
	if err != nil {
		return nil, errors.New("src is not a valid URL")
	}
	if !src.IsAbs() || src.Host == "" {
		return nil, errors.New("src must be an absolute URL")
	}
	return src, nil
}

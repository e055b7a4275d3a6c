package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const acceptHeader = "image/png, image/jpeg, image/gif"

type Fetcher interface {
	Fetch(ctx context.Context, src *url.URL) (domain.SourceImage, error)
}

type HTTPFetcherConfig struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

type HTTPFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "pixelproxy"
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes:  cfg.MaxBytes,
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, src *url.URL) (domain.SourceImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.String(), nil)
	if err != nil {
		return domain.SourceImage{}, errorf(KindUnreachable, "build source request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.SourceImage{}, errorf(KindUnreachable, "get %s: %w", src.Redacted(), err)
	}
	// Closing without draining: a rejected response must not be downloaded.
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.SourceImage{}, errorf(KindBadStatus, "source returned status=%d", resp.StatusCode)
	}

	format, err := sourceFormat(resp.Header.Get("Content-Type"))
	if err != nil {
		return domain.SourceImage{}, err
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return domain.SourceImage{}, errorf(KindSourceTooLarge, "declared length %d exceeds %d", resp.ContentLength, f.maxBytes)
	}

	data, err := readBody(resp.Body, f.maxBytes)
	if err != nil {
		return domain.SourceImage{}, err
	}

	return domain.SourceImage{Data: data, Format: format}, nil
}

// sourceFormat is the content-type gate shared by every fetcher.
func sourceFormat(contentType string) (domain.Format, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", errorf(KindUnsupportedContentType, "missing content type")
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", errorf(KindUnsupportedContentType, "parse content type %q: %w", contentType, err)
	}
	format, ok := domain.FormatFromContentType(mediaType)
	if !ok {
		return "", errorf(KindUnsupportedContentType, "content type %q", mediaType)
	}
	return format, nil
}

func readBody(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, newError(KindBodyRead, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, newError(KindBodyRead, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errorf(KindSourceTooLarge, "body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

var errUnsupportedScheme = errors.New("unsupported source scheme")

// SchemeFetcher routes a source URL to the fetcher registered for its scheme.
type SchemeFetcher map[string]Fetcher

func (s SchemeFetcher) Fetch(ctx context.Context, src *url.URL) (domain.SourceImage, error) {
	fetcher, ok := s[strings.ToLower(src.Scheme)]
	if !ok || fetcher == nil {
		return domain.SourceImage{}, newError(KindUnreachable, fmt.Errorf("%w: %s", errUnsupportedScheme, src.Scheme))
	}
	return fetcher.Fetch(ctx, src)
}

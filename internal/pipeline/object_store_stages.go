package pipeline

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/storage"
)

const SchemeObjectStore = "s3"

type objectReader interface {
	StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectInfo, error)
	ReadObject(ctx context.Context, bucket, objectKey string, maxBytes int64) ([]byte, error)
}

// ObjectStoreFetcher serves s3://<bucket>/<key> sources. The stored content
// type is checked before the object body is requested.
type ObjectStoreFetcher struct {
	Storage  objectReader
	MaxBytes int64
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, src *url.URL) (domain.SourceImage, error) {
	if f.Storage == nil {
		return domain.SourceImage{}, errorf(KindUnreachable, "object storage is not configured")
	}

	bucket, key, err := splitObjectURL(src)
	if err != nil {
		return domain.SourceImage{}, newError(KindBadStatus, err)
	}

	info, err := f.Storage.StatObject(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return domain.SourceImage{}, newError(KindBadStatus, err)
		}
		return domain.SourceImage{}, newError(KindUnreachable, err)
	}

	format, err := sourceFormat(info.ContentType)
	if err != nil {
		return domain.SourceImage{}, err
	}
	if f.MaxBytes > 0 && info.Size > f.MaxBytes {
		return domain.SourceImage{}, errorf(KindSourceTooLarge, "object size %d exceeds %d", info.Size, f.MaxBytes)
	}

	data, err := f.Storage.ReadObject(ctx, bucket, key, f.MaxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectTooLarge) {
			return domain.SourceImage{}, newError(KindSourceTooLarge, err)
		}
		return domain.SourceImage{}, newError(KindBodyRead, err)
	}

	return domain.SourceImage{Data: data, Format: format}, nil
}

func splitObjectURL(src *url.URL) (string, string, error) {
	bucket := strings.TrimSpace(src.Host)
	key := strings.TrimPrefix(src.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.New("expected s3://<bucket>/<key>")
	}
	return bucket, key, nil
}

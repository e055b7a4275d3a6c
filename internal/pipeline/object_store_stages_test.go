package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/storage"
)

type fakeObjects struct {
	info    storage.ObjectInfo
	statErr error
	data    []byte
	reads   int
}

func (f *fakeObjects) StatObject(_ context.Context, _, _ string) (storage.ObjectInfo, error) {
	return f.info, f.statErr
}

func (f *fakeObjects) ReadObject(_ context.Context, _, _ string, _ int64) ([]byte, error) {
	f.reads++
	return f.data, nil
}

func TestObjectStoreFetcher(t *testing.T) {
	payload := buildTestPNG(t, 8, 8)
	objects := &fakeObjects{info: storage.ObjectInfo{ContentType: "image/png", Size: int64(len(payload))}, data: payload}

	src, err := ObjectStoreFetcher{Storage: objects}.Fetch(context.Background(), mustURL(t, "s3://sources/cats/a.png"))
	if err != nil {
		t.Fatalf("fetch returned error: %v", err)
	}
	if src.Format != domain.FormatPNG || len(src.Data) != len(payload) {
		t.Fatalf("unexpected source format=%s bytes=%d", src.Format, len(src.Data))
	}
}

func TestObjectStoreFetcherGatesContentTypeBeforeRead(t *testing.T) {
	objects := &fakeObjects{info: storage.ObjectInfo{ContentType: "application/pdf", Size: 10}}

	_, err := ObjectStoreFetcher{Storage: objects}.Fetch(context.Background(), mustURL(t, "s3://sources/doc.pdf"))
	if kind := KindOf(err); kind != KindUnsupportedContentType {
		t.Fatalf("expected unsupported_content_type, got %s", kind)
	}
	if objects.reads != 0 {
		t.Fatalf("expected object body to stay unread, got %d reads", objects.reads)
	}
}

func TestObjectStoreFetcherErrors(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		objects *fakeObjects
		max     int64
		kind    Kind
	}{
		{name: "missing key", raw: "s3://sources/", objects: &fakeObjects{}, kind: KindBadStatus},
		{name: "not found", raw: "s3://sources/a.png", objects: &fakeObjects{statErr: fmt.Errorf("stat: %w", storage.ErrObjectNotFound)}, kind: KindBadStatus},
		{name: "endpoint down", raw: "s3://sources/a.png", objects: &fakeObjects{statErr: errors.New("dial tcp: refused")}, kind: KindUnreachable},
		{name: "too large", raw: "s3://sources/a.png", objects: &fakeObjects{info: storage.ObjectInfo{ContentType: "image/png", Size: 1 << 20}}, max: 1024, kind: KindSourceTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ObjectStoreFetcher{Storage: tc.objects, MaxBytes: tc.max}.Fetch(context.Background(), mustURL(t, tc.raw))
			if kind := KindOf(err); kind != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, kind, err)
			}
		})
	}
}

func TestObjectStoreFetcherWithoutStorage(t *testing.T) {
	_, err := ObjectStoreFetcher{}.Fetch(context.Background(), mustURL(t, "s3://sources/a.png"))
	if kind := KindOf(err); kind != KindUnreachable {
		t.Fatalf("expected unreachable, got %s", kind)
	}
}

package pipeline

import (
	"testing"

	"github.com/dunamismax/pixelproxy/internal/domain"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest("/png/100/50/", "src=http%3A%2F%2Fexample.com%2Fphoto.jpg")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.OutputFormat != domain.FormatPNG {
		t.Fatalf("expected png, got %s", req.OutputFormat)
	}
	if req.Width != 100 || req.Height != 50 {
		t.Fatalf("expected 100x50, got %dx%d", req.Width, req.Height)
	}
	if req.SourceURL.String() != "http://example.com/photo.jpg" {
		t.Fatalf("unexpected source url %s", req.SourceURL)
	}

	req, err = ParseRequest("/jpg/9999/10/anything/here.jpg", "w=1&src=https%3A%2F%2Fcdn.example.com%2Fa.png%3Fv%3D2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.OutputFormat != domain.FormatJPEG {
		t.Fatalf("expected jpeg, got %s", req.OutputFormat)
	}
	if req.SourceURL.RawQuery != "v=2" {
		t.Fatalf("expected encoded src query to survive, got %q", req.SourceURL.RawQuery)
	}
}

func TestParseRequestRejects(t *testing.T) {
	const src = "src=http%3A%2F%2Fexample.com%2Fa.png"
	cases := []struct {
		name     string
		path     string
		rawQuery string
	}{
		{name: "root", path: "/", rawQuery: src},
		{name: "health check", path: "/health-check", rawQuery: src},
		{name: "gif output", path: "/gif/100/100/", rawQuery: src},
		{name: "jpeg spelling", path: "/jpeg/100/100/", rawQuery: src},
		{name: "upper case", path: "/PNG/100/100/", rawQuery: src},
		{name: "one digit width", path: "/png/1/100/", rawQuery: src},
		{name: "five digit height", path: "/png/100/10000/", rawQuery: src},
		{name: "below minimum", path: "/png/05/100/", rawQuery: src},
		{name: "missing trailing slash", path: "/png/100/100", rawQuery: src},
		{name: "prefix", path: "/x/png/100/100/", rawQuery: src},
		{name: "missing src", path: "/png/100/100/", rawQuery: ""},
		{name: "empty src", path: "/png/100/100/", rawQuery: "src="},
		{name: "relative src", path: "/png/100/100/", rawQuery: "src=%2Fimages%2Fa.png"},
		{name: "hostless src", path: "/png/100/100/", rawQuery: "src=http%3A%2F%2F%2Fa.png"},
		{name: "broken escape", path: "/png/100/100/", rawQuery: "src=%zz"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest(tc.path, tc.rawQuery)
			if err == nil {
				t.Fatal("expected parse error")
			}
			if kind := KindOf(err); kind != KindParse {
				t.Fatalf("expected parse kind, got %s", kind)
			}
		})
	}
}

package id

import (
	"context"
	"strings"
	"testing"
)

func TestNewIsUniqueHex(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if len(a) != 24 {
		t.Fatalf("expected 24 hex chars, got %d", len(a))
	}
}

func TestFromHeader(t *testing.T) {
	if got := FromHeader("abc-123"); got != "abc-123" {
		t.Fatalf("expected caller id to be kept, got %s", got)
	}
	for _, in := range []string{"", "   ", "bad\nid", strings.Repeat("a", 65)} {
		if got := FromHeader(in); got == in || len(got) != 24 {
			t.Fatalf("expected a fresh id for %q, got %q", in, got)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	if got := FromContext(context.Background()); got != "-" {
		t.Fatalf("expected placeholder, got %s", got)
	}
	ctx := NewContext(context.Background(), "req-1")
	if got := FromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %s", got)
	}
}

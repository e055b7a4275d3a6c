package id

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const Header = "X-Request-Id"

type contextKey struct{}

func New() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-fallback-id"
	}
	return hex.EncodeToString(b[:])
}

// FromHeader accepts a caller supplied id when it is short and printable,
// otherwise it mints a new one.
func FromHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > 64 {
		return New()
	}
	for _, r := range value {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return value
}

func NewContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

func FromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(contextKey{}).(string)
	if requestID == "" {
		return "-"
	}
	return requestID
}

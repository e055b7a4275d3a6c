package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object exceeds size limit")
)

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	UseSSL   bool
}

// ObjectInfo is the metadata needed to gate an object before reading it.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// Client reads source objects from any bucket the credentials can see.
type Client struct {
	minio *minio.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{minio: mc}, nil
}

func (c *Client) StatObject(ctx context.Context, bucket, objectKey string) (ObjectInfo, error) {
	info, err := c.minio.StatObject(ctx, bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("stat object %s/%s: %w", bucket, objectKey, ErrObjectNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("stat object %s/%s: %w", bucket, objectKey, err)
	}
	return ObjectInfo{ContentType: info.ContentType, Size: info.Size}, nil
}

// ReadObject reads at most maxBytes of the object; maxBytes <= 0 disables the cap.
func (c *Client) ReadObject(ctx context.Context, bucket, objectKey string, maxBytes int64) ([]byte, error) {
	obj, err := c.minio.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, objectKey, err)
	}
	defer obj.Close()

	var r io.Reader = obj
	if maxBytes > 0 {
		r = io.LimitReader(obj, maxBytes+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, objectKey, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, objectKey, ErrObjectTooLarge)
	}
	return data, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" || resp.Code == "NoSuchBucket"
}

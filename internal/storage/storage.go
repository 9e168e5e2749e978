// Package storage keeps the ledger document in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client reads and writes whole objects in one bucket. It implements ledger.ObjectStore.
type Client struct {
	client *minio.Client
	bucket string
}

// New creates a client for cfg.
func New(cfg shared.StorageConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: storage.endpoint and storage.bucket are required", shared.ErrInvalidConfig)
	}

	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &Client{client: cl, bucket: cfg.Bucket}, nil
}

// Bucket returns the configured bucket.
func (c *Client) Bucket() string { return c.bucket }

// Get returns the object body, or [shared.ErrRecordNotFound] when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(key, err)
	}
	return data, nil
}

// Put overwrites key with data.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

func classify(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || (resp.StatusCode == 404 && resp.Code != "NoSuchBucket")) {
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, key)
	}
	return fmt.Errorf("get %s: %w", key, err)
}

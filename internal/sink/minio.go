package sink

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds connection settings for an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Validate checks the settings needed to connect.
func (c MinioConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("access key and secret key are required")
	}
	return nil
}

// MinioRemote uploads objects to one bucket under a key prefix.
type MinioRemote struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioRemote connects to the store described by cfg.
func NewMinioRemote(cfg MinioConfig) (*MinioRemote, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
		// retry.Policy owns retries; one Publish attempt is one request.
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &MinioRemote{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Publish implements Remote.
func (m *MinioRemote) Publish(ctx context.Context, localPath, destination string) error {
	key := m.Key(destination)
	opts := minio.PutObjectOptions{ContentType: contentType(localPath)}
	if _, err := m.client.FPutObject(ctx, m.bucket, key, localPath, opts); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}
	return nil
}

// Key returns the object key for destination.
func (m *MinioRemote) Key(destination string) string {
	destination = strings.TrimLeft(destination, "/")
	if m.prefix == "" {
		return destination
	}
	return path.Join(m.prefix, destination)
}

// Check verifies that the bucket exists and the credentials can see it.
func (m *MinioRemote) Check(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket missing: %s", m.bucket)
	}
	return nil
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".wav":
		return "audio/wav"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

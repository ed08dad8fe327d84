// Package s3 is the storage backend for S3-compatible object stores.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Lllllllleong/pkrsplitter/internal/config"
	"github.com/Lllllllleong/pkrsplitter/internal/storage"
)

// Store is a storage backend over one bucket. Locations are object keys.
type Store struct {
	api    *minio.Client
	bucket string
}

var _ storage.Backend = (*Store)(nil)

// New creates a store for bucket from the S3 settings.
func New(cfg config.S3Config, bucket string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must be provided")
	}
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &Store{api: minioClient, bucket: bucket}, nil
}

// ListSources lists every object under root. The client pages through the
// listing on its own.
func (s *Store) ListSources(ctx context.Context, root string) ([]string, error) {
	prefix := root
	if !strings.HasSuffix(prefix, "/") && prefix != "" {
		prefix += "/"
	}

	var keys []string
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	for obj := range s.api.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, classifyErr("list", s.uri(root), obj.Err)
		}
		// Skip the "folder" itself
		if obj.Key == prefix {
			continue
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *Store) ReadText(ctx context.Context, location string) (string, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, location, minio.GetObjectOptions{})
	if err != nil {
		return "", classifyErr("read", s.uri(location), err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	content, err := io.ReadAll(obj)
	if err != nil {
		return "", classifyErr("read", s.uri(location), err)
	}
	return storage.DecodeText(location, content)
}

// ExistsUnder stops the listing after the first key.
func (s *Store) ExistsUnder(ctx context.Context, prefix string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
		MaxKeys:   1,
	}
	objects := s.api.ListObjects(ctx, s.bucket, opts)
	obj, ok := <-objects
	cancel()
	// Drain so the lister goroutine can exit.
	for range objects {
	}
	if !ok {
		return false, nil
	}
	if obj.Err != nil {
		return false, classifyErr("exists", s.uri(prefix), obj.Err)
	}
	return true, nil
}

// WriteRecord puts text as one object in a single request.
func (s *Store) WriteRecord(ctx context.Context, location, text string) error {
	_, err := s.api.PutObject(ctx, s.bucket, location, strings.NewReader(text), int64(len(text)), minio.PutObjectOptions{
		ContentType:      "text/plain; charset=utf-8",
		DisableMultipart: true,
	})
	if err != nil {
		return classifyErr("write", s.uri(location), err)
	}
	return nil
}

func (s *Store) uri(location string) string {
	return "s3://" + s.bucket + "/" + location
}

func classifyErr(op, uri string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NoSuchBucket", resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %v", storage.ErrNotFound, op, uri, err)
	default:
		return fmt.Errorf("%w: %s %s: %v", storage.ErrUnavailable, op, uri, err)
	}
}

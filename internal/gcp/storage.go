package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	pkrstorage "github.com/Lllllllleong/pkrsplitter/internal/storage"
)

// BucketStore is a storage backend over one Cloud Storage bucket. Locations
// are object names.
type BucketStore struct {
	bucket *storage.BucketHandle
	name   string
}

var _ pkrstorage.Backend = (*BucketStore)(nil)

// NewBucketStore wraps the named bucket of client.
func NewBucketStore(client *storage.Client, bucket string) (*BucketStore, error) {
	if client == nil {
		return nil, fmt.Errorf("a storage client must be provided")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must be provided")
	}
	return &BucketStore{bucket: client.Bucket(bucket), name: bucket}, nil
}

// Name is the bucket name.
func (b *BucketStore) Name() string { return b.name }

// ListSources follows pagination until every object under root is listed.
func (b *BucketStore) ListSources(ctx context.Context, root string) ([]string, error) {
	query := &storage.Query{Prefix: dirPrefix(root)}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("failed to build listing query: %w", err)
	}

	var names []string
	it := b.bucket.Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyErr("list", "gs://"+b.name+"/"+root, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (b *BucketStore) ReadText(ctx context.Context, location string) (string, error) {
	reader, err := b.bucket.Object(location).NewReader(ctx)
	if err != nil {
		return "", classifyErr("read", b.uri(location), err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", classifyErr("read", b.uri(location), err)
	}
	return pkrstorage.DecodeText(location, content)
}

// ExistsUnder asks for a single object name under prefix.
func (b *BucketStore) ExistsUnder(ctx context.Context, prefix string) (bool, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return false, fmt.Errorf("failed to build listing query: %w", err)
	}
	it := b.bucket.Objects(ctx, query)
	it.PageInfo().MaxSize = 1

	_, err := it.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, classifyErr("exists", b.uri(prefix), err)
	}
	return true, nil
}

// WriteRecord uploads text in a single request, replacing any existing object.
func (b *BucketStore) WriteRecord(ctx context.Context, location, text string) error {
	obj := b.bucket.Object(location).Retryer(storage.WithPolicy(storage.RetryAlways))
	writer := obj.NewWriter(ctx)
	writer.ChunkSize = 0
	writer.ContentType = "text/plain; charset=utf-8"

	if _, err := io.Copy(writer, strings.NewReader(text)); err != nil {
		_ = writer.Close()
		return classifyErr("write", b.uri(location), err)
	}
	if err := writer.Close(); err != nil {
		return classifyErr("finalize", b.uri(location), err)
	}
	return nil
}

func (b *BucketStore) uri(location string) string {
	return "gs://" + b.name + "/" + location
}

func dirPrefix(root string) string {
	if root == "" {
		return ""
	}
	return strings.TrimSuffix(root, "/") + "/"
}

// classifyErr maps Cloud Storage errors onto the backend error kinds.
func classifyErr(op, uri string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %s %s: %v", pkrstorage.ErrNotFound, op, uri, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s: %v", pkrstorage.ErrNotFound, op, uri, err)
	}
	return fmt.Errorf("%w: %s %s: %v", pkrstorage.ErrUnavailable, op, uri, err)
}

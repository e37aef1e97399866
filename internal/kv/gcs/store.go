// Package gcs keeps records as objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"expenses/internal/kv"
)

var _ kv.Store = (*Store)(nil)

type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// New opens a client for bucket. opts are passed to storage.NewClient, e.g.
// option.WithCredentialsFile.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s attrs: %w", s.name, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return b, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List fetches one page of object names. The cursor is the GCS page token.
func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = kv.DefaultPageSize
	}
	q := &storage.Query{Prefix: prefix}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return kv.Page{}, fmt.Errorf("select attrs: %w", err)
	}
	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(s.bucket.Objects(ctx, q), limit, cursor).NextPage(&attrs)
	if err != nil {
		return kv.Page{}, fmt.Errorf("list %s: %w", prefix, err)
	}
	return pageFrom(attrs, next), nil
}

func pageFrom(attrs []*storage.ObjectAttrs, next string) kv.Page {
	page := kv.Page{Keys: make([]string, 0, len(attrs)), Cursor: next, Complete: next == ""}
	for _, a := range attrs {
		// Prefix-only entries have no name.
		if a.Name != "" {
			page.Keys = append(page.Keys, a.Name)
		}
	}
	return page
}

// Package kv defines the key-value store contract the record and listing
// services are built on, plus helpers shared by every driver.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// MaxListPages bounds ListAll so a store that never reports completion
// cannot spin forever.
const MaxListPages = 10000

// DefaultPageSize is used when callers pass a non-positive limit.
const DefaultPageSize = 1000

var ErrTooManyPages = errors.New("kv: listing exceeded page limit")

// Page is one slice of a prefix listing.
type Page struct {
	Keys []string
	// Cursor resumes the listing; empty when there is nothing more.
	Cursor string
	// Complete is set when the store knows no keys remain.
	Complete bool
}

// Store is the external key-value store. Get reports a missing key with
// ok=false and a nil error; Delete of a missing key succeeds.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix, cursor string, limit int) (Page, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by stores holding connections.
type Closer interface {
	Close() error
}

// ListAll follows cursors until the store reports completion or stops
// returning a cursor. Keys seen on more than one page are reported once.
func ListAll(ctx context.Context, s Store, prefix string, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var (
		out    []string
		seen   = map[string]struct{}{}
		cursor string
	)
	for pages := 0; ; pages++ {
		if pages >= MaxListPages {
			return out, fmt.Errorf("%w: prefix %q after %d pages", ErrTooManyPages, prefix, pages)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.List(ctx, prefix, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, k := range page.Keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		if page.Complete || page.Cursor == "" || page.Cursor == cursor {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// PrefixEnd returns the smallest string greater than every key that starts
// with prefix, for range scans. It returns "" when no such bound exists.
func PrefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

// Package records maps a (namespace, week ending) identity onto a kv.Store
// and stamps createdAt/updatedAt on every write.
//
// Writes are a read-modify-write without any locking: two writers racing on
// the same week may both believe they created it, and the later write wins.
// Contention is one person editing one week, so last-write-wins is accepted.
package records

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"expenses/internal/core"
	"expenses/internal/kv"
)

// Store is the record store adapter.
type Store struct {
	kv       kv.Store
	now      func() time.Time
	pageSize int
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPageSize sets the page size used when scanning a namespace.
func WithPageSize(n int) Option {
	return func(s *Store) { s.pageSize = n }
}

func New(store kv.Store, opts ...Option) *Store {
	s := &Store{kv: store, now: time.Now, pageSize: kv.DefaultPageSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get loads one week. A missing key is (nil, false, nil).
func (s *Store) Get(ctx context.Context, namespace, weekEnding string) (*core.ExpenseRecord, bool, error) {
	ns, we, err := core.NormalizeIdentity(namespace, weekEnding)
	if err != nil {
		return nil, false, err
	}
	key := core.RecordKey(ns, we)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	rec, err := core.DecodeRecord(raw)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return &rec, true, nil
}

// Put replaces the week with body. namespace, weekEnding and both timestamps
// in body are ignored in favour of the canonical values; createdAt is carried
// over from the stored record when one can be read.
func (s *Store) Put(ctx context.Context, namespace, weekEnding string, body core.ExpenseRecord) (core.ExpenseRecord, error) {
	ns, we, err := core.NormalizeIdentity(namespace, weekEnding)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	key := core.RecordKey(ns, we)
	now := core.Timestamp(s.now())

	createdAt := now
	if prior, ok := s.lookupPrior(ctx, key); ok && prior.CreatedAt != "" {
		createdAt = prior.CreatedAt
	}

	rec := body
	rec.Namespace = ns
	rec.WeekEnding = we
	rec.CreatedAt = createdAt
	rec.UpdatedAt = now
	if rec.Entries == nil {
		rec.Entries = map[string]core.EntryValue{}
	}

	raw, err := core.EncodeRecord(rec)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	if err := s.kv.Put(ctx, key, raw); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("put %s: %w", key, err)
	}
	return rec, nil
}

// lookupPrior reads the stored record for key. Any failure, including an
// undecodable body, is reported as "no prior record".
func (s *Store) lookupPrior(ctx context.Context, key string) (core.ExpenseRecord, bool) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "Prior record read failed, treating as new", "key", key, "error", err)
		return core.ExpenseRecord{}, false
	}
	if !ok {
		return core.ExpenseRecord{}, false
	}
	rec, err := core.DecodeRecord(raw)
	if err != nil {
		slog.WarnContext(ctx, "Prior record unreadable, treating as new", "key", key, "error", err)
		return core.ExpenseRecord{}, false
	}
	return rec, true
}

// Delete removes the week. Deleting a missing week succeeds.
func (s *Store) Delete(ctx context.Context, namespace, weekEnding string) error {
	ns, we, err := core.NormalizeIdentity(namespace, weekEnding)
	if err != nil {
		return err
	}
	key := core.RecordKey(ns, we)
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// MostRecent loads the week with the greatest week ending in namespace.
// Weeks whose body cannot be read are skipped in favour of the next newest.
func (s *Store) MostRecent(ctx context.Context, namespace string) (*core.ExpenseRecord, bool, error) {
	ns, err := core.NormalizeNamespace(namespace)
	if err != nil {
		return nil, false, err
	}
	prefix := core.NamespacePrefix(ns)
	keys, err := kv.ListAll(ctx, s.kv, prefix, s.pageSize)
	if err != nil {
		return nil, false, err
	}

	weeks := make([]string, 0, len(keys))
	for _, k := range keys {
		if we, ok := strings.CutPrefix(k, prefix); ok && core.IsWeekEnding(we) {
			weeks = append(weeks, we)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(weeks)))

	for _, we := range weeks {
		rec, ok, err := s.Get(ctx, ns, we)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable week", "namespace", ns, "weekEnding", we, "error", err)
			continue
		}
		if ok {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

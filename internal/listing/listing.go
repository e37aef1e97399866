// Package listing builds the week and namespace indexes from key enumeration.
//
// ListWeeks does one store read per listed week to pick up display metadata
// (an N+1 pattern). Namespaces hold tens of weeks, so this is acceptable, but
// it is the first thing to revisit if they grow into the thousands.
package listing

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"expenses/internal/core"
	"expenses/internal/kv"
)

// WeekSummary is one row of a namespace's week list.
type WeekSummary struct {
	WeekEnding      string `json:"weekEnding"`
	BusinessPurpose string `json:"businessPurpose"`
	UpdatedAt       string `json:"updatedAt"`

	key string
}

// NamespaceSummary is one row of the all-namespaces view.
type NamespaceSummary struct {
	Namespace        string `json:"namespace"`
	LatestWeekEnding string `json:"weekEnding"`
	Weeks            int    `json:"weeks"`
}

type Service struct {
	kv          kv.Store
	pageSize    int
	concurrency int
}

type Option func(*Service)

// WithPageSize sets the List page size requested from the store.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// WithFetchConcurrency bounds parallel metadata reads. 1 fetches sequentially.
func WithFetchConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

func New(store kv.Store, opts ...Option) *Service {
	s := &Service{kv: store, pageSize: kv.DefaultPageSize, concurrency: 1}
	for _, o := range opts {
		o(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// ListWeeks returns the namespace's saved weeks, newest first. A blank or
// unknown namespace yields an empty slice.
func (s *Service) ListWeeks(ctx context.Context, namespace string) ([]WeekSummary, error) {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return []WeekSummary{}, nil
	}
	prefix := core.NamespacePrefix(ns)
	keys, err := kv.ListAll(ctx, s.kv, prefix, s.pageSize)
	if err != nil {
		return nil, err
	}

	weeks := make([]WeekSummary, 0, len(keys))
	for _, k := range keys {
		we, ok := strings.CutPrefix(k, prefix)
		if !ok || !core.IsWeekEnding(we) {
			slog.DebugContext(ctx, "Skipping key outside week scheme", "key", k)
			continue
		}
		weeks = append(weeks, WeekSummary{WeekEnding: we, key: k})
	}

	if err := s.fillMetadata(ctx, weeks); err != nil {
		return nil, err
	}
	SortWeeks(weeks)
	return weeks, nil
}

// fillMetadata reads each week's body. Read or decode failures leave the
// metadata empty; only context cancellation aborts.
func (s *Service) fillMetadata(ctx context.Context, weeks []WeekSummary) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range weeks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w := &weeks[i]
			raw, ok, err := s.kv.Get(gctx, w.key)
			if err != nil {
				slog.WarnContext(gctx, "Week metadata unavailable", "key", w.key, "error", err)
				return nil
			}
			if !ok {
				return nil
			}
			rec, err := core.DecodeRecord(raw)
			if err != nil {
				slog.WarnContext(gctx, "Week metadata unreadable", "key", w.key, "error", err)
				return nil
			}
			w.BusinessPurpose = rec.BusinessPurpose
			w.UpdatedAt = rec.UpdatedAt
			return nil
		})
	}
	return g.Wait()
}

// SortWeeks orders by week ending desc, then updatedAt desc with any value
// ahead of none, then key desc.
func SortWeeks(weeks []WeekSummary) {
	sort.SliceStable(weeks, func(i, j int) bool {
		a, b := weeks[i], weeks[j]
		if a.WeekEnding != b.WeekEnding {
			return a.WeekEnding > b.WeekEnding
		}
		if a.UpdatedAt != b.UpdatedAt {
			if a.UpdatedAt == "" || b.UpdatedAt == "" {
				return b.UpdatedAt == ""
			}
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.key > b.key
	})
}

// ListNamespaces groups every two-part key by namespace. Namespaces with the
// most recent week come first; ties sort by name.
func (s *Service) ListNamespaces(ctx context.Context) ([]NamespaceSummary, error) {
	keys, err := kv.ListAll(ctx, s.kv, core.KeyPrefix, s.pageSize)
	if err != nil {
		return nil, err
	}

	byNS := map[string]*NamespaceSummary{}
	for _, k := range keys {
		ns, we, ok := core.SplitKey(k)
		if !ok {
			continue
		}
		sum, found := byNS[ns]
		if !found {
			sum = &NamespaceSummary{Namespace: ns}
			byNS[ns] = sum
		}
		sum.Weeks++
		if we > sum.LatestWeekEnding {
			sum.LatestWeekEnding = we
		}
	}

	out := make([]NamespaceSummary, 0, len(byNS))
	for _, sum := range byNS {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LatestWeekEnding != out[j].LatestWeekEnding {
			return out[i].LatestWeekEnding > out[j].LatestWeekEnding
		}
		return out[i].Namespace < out[j].Namespace
	})
	return out, nil
}

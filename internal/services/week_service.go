package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
	"expenses/internal/listing"
	"expenses/internal/records"
)

// Publisher announces week changes to the export worker.
type Publisher interface {
	PublishWeekEvent(ctx context.Context, e *amqp.WeekEvent) error
}

const namespacesKey = "namespaces"

// WeekService orchestrates week operations across the record store, the
// listing index and the event publisher.
type WeekService struct {
	records    *records.Store
	listing    *listing.Service
	publisher  Publisher
	weeks      *cache.LRU[[]listing.WeekSummary]
	namespaces *cache.LRU[[]listing.NamespaceSummary]
	closers    []io.Closer
}

type Option func(*WeekService)

// WithPublisher enables change events. A nil publisher leaves them off.
func WithPublisher(p Publisher) Option {
	return func(s *WeekService) { s.publisher = p }
}

// WithListingCache caches listing results for ttl. Writes through this
// service invalidate the affected namespace; writes from other processes
// become visible after ttl.
func WithListingCache(ttl time.Duration, size int) Option {
	return func(s *WeekService) {
		if ttl <= 0 {
			return
		}
		s.weeks = cache.NewLRU[[]listing.WeekSummary](size, ttl)
		s.namespaces = cache.NewLRU[[]listing.NamespaceSummary](1, ttl)
	}
}

// WithCloser registers resources released by Close, in order.
func WithCloser(c io.Closer) Option {
	return func(s *WeekService) { s.closers = append(s.closers, c) }
}

func NewWeekService(rec *records.Store, list *listing.Service, opts ...Option) *WeekService {
	s := &WeekService{records: rec, listing: list}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Caches returns the listing caches so they can be registered for cleanup.
func (s *WeekService) Caches() []cache.Cleaner {
	if s.weeks == nil {
		return nil
	}
	return []cache.Cleaner{s.weeks, s.namespaces}
}

func (s *WeekService) Get(ctx context.Context, namespace, weekEnding string) (*core.ExpenseRecord, bool, error) {
	return s.records.Get(ctx, namespace, weekEnding)
}

func (s *WeekService) MostRecent(ctx context.Context, namespace string) (*core.ExpenseRecord, bool, error) {
	return s.records.MostRecent(ctx, namespace)
}

// Save writes the week, then publishes a put event without failing the
// request if publishing does.
func (s *WeekService) Save(ctx context.Context, namespace, weekEnding string, body core.ExpenseRecord) (core.ExpenseRecord, error) {
	rec, err := s.records.Put(ctx, namespace, weekEnding, body)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("save week: %w", err)
	}
	s.invalidate(rec.Namespace)
	s.publish(ctx, amqp.NewWeekEvent(amqp.OpPut, rec.Namespace, rec.WeekEnding, rec.UpdatedAt))
	return rec, nil
}

func (s *WeekService) Delete(ctx context.Context, namespace, weekEnding string) error {
	ns, we, err := core.NormalizeIdentity(namespace, weekEnding)
	if err != nil {
		return err
	}
	if err := s.records.Delete(ctx, ns, we); err != nil {
		return fmt.Errorf("delete week: %w", err)
	}
	s.invalidate(ns)
	s.publish(ctx, amqp.NewWeekEvent(amqp.OpDelete, ns, we, ""))
	return nil
}

// ListWeeks returns the namespace's weeks, from cache when enabled. The
// returned slice is shared with the cache and must not be modified.
func (s *WeekService) ListWeeks(ctx context.Context, namespace string) ([]listing.WeekSummary, error) {
	ns := strings.TrimSpace(namespace)
	key := "weeks:" + ns
	if s.weeks != nil {
		if weeks, ok := s.weeks.Get(key); ok {
			return weeks, nil
		}
	}
	weeks, err := s.listing.ListWeeks(ctx, ns)
	if err != nil {
		return nil, err
	}
	if s.weeks != nil {
		s.weeks.Set(key, weeks)
	}
	return weeks, nil
}

func (s *WeekService) ListNamespaces(ctx context.Context) ([]listing.NamespaceSummary, error) {
	if s.namespaces != nil {
		if all, ok := s.namespaces.Get(namespacesKey); ok {
			return all, nil
		}
	}
	all, err := s.listing.ListNamespaces(ctx)
	if err != nil {
		return nil, err
	}
	if s.namespaces != nil {
		s.namespaces.Set(namespacesKey, all)
	}
	return all, nil
}

func (s *WeekService) invalidate(namespace string) {
	if s.weeks == nil {
		return
	}
	s.weeks.Delete("weeks:" + namespace)
	s.namespaces.Delete(namespacesKey)
}

func (s *WeekService) publish(ctx context.Context, e *amqp.WeekEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishWeekEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish week event",
			"op", e.Op,
			"sync", e.Namespace,
			"weekEnding", e.WeekEnding,
			"error", err)
	}
}

// Close releases registered resources and reports every failure.
func (s *WeekService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close week service: %v", errs)
	}
	return nil
}

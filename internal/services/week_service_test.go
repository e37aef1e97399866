package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/kv/memory"
	"expenses/internal/listing"
	"expenses/internal/records"
)

type recordingPublisher struct {
	events []*amqp.WeekEvent
	err    error
}

func (p *recordingPublisher) PublishWeekEvent(_ context.Context, e *amqp.WeekEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newService(opts ...Option) (*WeekService, *memory.Store) {
	store := memory.New()
	return NewWeekService(records.New(store), listing.New(store), opts...), store
}

func TestSavePublishesAndSurvivesPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newService(WithPublisher(pub))
	ctx := context.Background()

	rec, err := svc.Save(ctx, "alice", "2024-06-08", core.ExpenseRecord{BusinessPurpose: "Trip"})
	if err != nil {
		t.Fatalf("Save should not fail on publish error: %v", err)
	}
	if err := svc.Delete(ctx, "alice", "2024-06-08"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.events))
	}
	put, del := pub.events[0], pub.events[1]
	if put.Op != amqp.OpPut || put.UpdatedAt != rec.UpdatedAt || put.Namespace != "alice" {
		t.Errorf("put event = %+v", put)
	}
	if del.Op != amqp.OpDelete || del.WeekEnding != "2024-06-08" {
		t.Errorf("delete event = %+v", del)
	}
}

func TestSaveRejectsBadIdentityWithoutPublishing(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(WithPublisher(pub))

	_, err := svc.Save(context.Background(), " ", "2024-06-08", core.ExpenseRecord{})
	if !errors.Is(err, core.ErrMissingNamespace) {
		t.Fatalf("expected ErrMissingNamespace, got %v", err)
	}
	if err := svc.Delete(context.Background(), "alice", "soon"); !errors.Is(err, core.ErrInvalidWeekEnding) {
		t.Fatalf("expected ErrInvalidWeekEnding, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no events expected, got %d", len(pub.events))
	}
}

func TestListingCacheInvalidatedOnWrite(t *testing.T) {
	svc, store := newService(WithListingCache(time.Hour, 8))
	ctx := context.Background()

	if _, err := svc.Save(ctx, "alice", "2024-01-06", core.ExpenseRecord{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	weeks, err := svc.ListWeeks(ctx, "alice")
	if err != nil || len(weeks) != 1 {
		t.Fatalf("ListWeeks = %v, %v", weeks, err)
	}

	// A write behind the service's back is served stale from cache.
	raw, _ := core.EncodeRecord(core.ExpenseRecord{Namespace: "alice", WeekEnding: "2023-12-30"})
	if err := store.Put(ctx, core.RecordKey("alice", "2023-12-30"), raw); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if weeks, _ := svc.ListWeeks(ctx, "alice"); len(weeks) != 1 {
		t.Fatalf("expected cached listing, got %d weeks", len(weeks))
	}
	if all, _ := svc.ListNamespaces(ctx); len(all) != 1 || all[0].Weeks != 2 {
		t.Fatalf("ListNamespaces = %+v", all)
	}

	if _, err := svc.Save(ctx, "alice", "2024-01-13", core.ExpenseRecord{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	weeks, _ = svc.ListWeeks(ctx, "alice")
	if len(weeks) != 3 || weeks[0].WeekEnding != "2024-01-13" {
		t.Fatalf("cache not invalidated: %+v", weeks)
	}
	if all, _ := svc.ListNamespaces(ctx); all[0].Weeks != 3 {
		t.Fatalf("namespaces cache not invalidated: %+v", all)
	}
	if len(svc.Caches()) != 2 {
		t.Fatal("expected both caches exposed for cleanup")
	}
}

func TestListingCacheKeyedOnTrimmedNamespace(t *testing.T) {
	svc, _ := newService(WithListingCache(time.Hour, 8))
	ctx := context.Background()

	if weeks, err := svc.ListWeeks(ctx, " alice"); err != nil || len(weeks) != 0 {
		t.Fatalf("ListWeeks = %v, %v", weeks, err)
	}
	if _, err := svc.Save(ctx, "alice", "2024-01-06", core.ExpenseRecord{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	for _, ns := range []string{" alice", "alice ", "alice"} {
		if weeks, _ := svc.ListWeeks(ctx, ns); len(weeks) != 1 {
			t.Errorf("ListWeeks(%q) = %d weeks, want 1", ns, len(weeks))
		}
	}
}

func TestClose(t *testing.T) {
	svc, _ := newService()
	if err := svc.Close(); err != nil {
		t.Fatalf("Close with nothing registered: %v", err)
	}

	var order []string
	svc, _ = newService(
		WithCloser(closerFunc(func() error { order = append(order, "amqp"); return errors.New("x") })),
		WithCloser(closerFunc(func() error { order = append(order, "store"); return nil })),
	)
	if err := svc.Close(); err == nil {
		t.Fatal("expected aggregated close error")
	}
	if len(order) != 2 || order[0] != "amqp" || order[1] != "store" {
		t.Fatalf("close order = %v", order)
	}
}

package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"expenses/internal/core"
	"expenses/internal/kv/memory"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *memory.Store, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 6, 8, 9, 0, 0, 0, time.UTC)}
	mem := memory.New()
	return New(mem, WithClock(clock.now)), mem, clock
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	if err := s.Delete(ctx, "alice", "2024-06-08"); err != nil {
		t.Fatalf("delete of missing week: %v", err)
	}
	if _, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Delete(ctx, "alice", "2024-06-08"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "alice", "2024-06-08"); ok {
		t.Fatal("record still present after delete")
	}
}

func TestCreatedAtIsPreserved(t *testing.T) {
	s, _, clock := newTestStore(t)
	ctx := context.Background()

	first, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{BusinessPurpose: "one"})
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	clock.advance(90 * time.Second)
	second, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{BusinessPurpose: "two"})
	if err != nil {
		t.Fatalf("second put: %v", err)
	}

	got, ok, err := s.Get(ctx, "alice", "2024-06-08")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.CreatedAt != first.CreatedAt {
		t.Errorf("createdAt = %s, want %s", got.CreatedAt, first.CreatedAt)
	}
	if got.UpdatedAt != second.UpdatedAt || got.UpdatedAt != "2024-06-08T09:01:30.000Z" {
		t.Errorf("updatedAt = %s", got.UpdatedAt)
	}
	if got.UpdatedAt < got.CreatedAt {
		t.Errorf("updatedAt %s before createdAt %s", got.UpdatedAt, got.CreatedAt)
	}
	if got.BusinessPurpose != "two" {
		t.Errorf("write did not replace body: %q", got.BusinessPurpose)
	}
}

func TestRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	body := core.ExpenseRecord{
		BusinessPurpose: "Client visit",
		Entries: map[string]core.EntryValue{
			"C18": core.Number(120.5),
			"C8":  core.Text("Home"),
		},
	}
	if _, err := s.Put(ctx, " alice ", "2024-06-08", body); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(ctx, "alice", "2024-06-08")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Namespace != "alice" || got.WeekEnding != "2024-06-08" {
		t.Fatalf("identity = %s/%s", got.Namespace, got.WeekEnding)
	}
	if got.BusinessPurpose != "Client visit" {
		t.Errorf("businessPurpose = %q", got.BusinessPurpose)
	}
	if v := got.Entries["C18"]; v.IsText || v.Num != 120.5 {
		t.Errorf("C18 = %+v", v)
	}
	if v := got.Entries["C8"]; !v.IsText || v.Str != "Home" {
		t.Errorf("C8 = %+v", v)
	}
}

func TestCanonicalFieldsOverrideBody(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	rec, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{
		Namespace:  "mallory",
		WeekEnding: "1999-01-02",
		CreatedAt:  "1999-01-01T00:00:00.000Z",
		UpdatedAt:  "1999-01-01T00:00:00.000Z",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.Namespace != "alice" || rec.WeekEnding != "2024-06-08" {
		t.Fatalf("identity not canonical: %+v", rec)
	}
	if rec.CreatedAt != "2024-06-08T09:00:00.000Z" || rec.UpdatedAt != rec.CreatedAt {
		t.Fatalf("timestamps not canonical: %s %s", rec.CreatedAt, rec.UpdatedAt)
	}
}

func TestPriorReadFailureIsNotFatal(t *testing.T) {
	s, mem, clock := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	clock.advance(time.Minute)
	mem.FailGet(core.RecordKey("alice", "2024-06-08"), errors.New("store unavailable"))

	rec, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{BusinessPurpose: "retry"})
	if err != nil {
		t.Fatalf("put with failing read: %v", err)
	}
	if rec.CreatedAt != rec.UpdatedAt {
		t.Fatalf("expected fresh createdAt when prior is unreadable, got %s / %s", rec.CreatedAt, rec.UpdatedAt)
	}

	if _, _, err := s.Get(ctx, "alice", "2024-06-08"); err == nil {
		t.Fatal("explicit Get should surface the store error")
	}
}

func TestCorruptPriorTreatedAsNew(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	_ = mem.Put(ctx, core.RecordKey("alice", "2024-06-08"), []byte(`{"createdAt": 17}`))
	rec, err := s.Put(ctx, "alice", "2024-06-08", core.ExpenseRecord{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.CreatedAt != "2024-06-08T09:00:00.000Z" {
		t.Fatalf("createdAt = %s", rec.CreatedAt)
	}
}

func TestIdentityValidation(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "  ", "2024-06-08", core.ExpenseRecord{}); !errors.Is(err, core.ErrMissingNamespace) {
		t.Fatalf("blank namespace: %v", err)
	}
	if _, err := s.Put(ctx, "alice", "", core.ExpenseRecord{}); !errors.Is(err, core.ErrMissingWeekEnding) {
		t.Fatalf("blank week: %v", err)
	}
	if _, _, err := s.Get(ctx, "alice", "soon"); !errors.Is(err, core.ErrInvalidWeekEnding) {
		t.Fatalf("bad week: %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("invalid input reached the store: %d keys", mem.Len())
	}
}

func TestMostRecent(t *testing.T) {
	s, mem, _ := newTestStore(t)
	ctx := context.Background()
	if _, ok, err := s.MostRecent(ctx, "alice"); ok || err != nil {
		t.Fatalf("empty namespace: ok=%v err=%v", ok, err)
	}
	for _, we := range []string{"2024-01-06", "2024-01-13", "2023-12-30"} {
		if _, err := s.Put(ctx, "alice", we, core.ExpenseRecord{BusinessPurpose: we}); err != nil {
			t.Fatalf("put %s: %v", we, err)
		}
	}
	_, _ = s.Put(ctx, "alicex", "2025-01-04", core.ExpenseRecord{})
	_ = mem.Put(ctx, "expenses:alice:notes", []byte(`{}`))

	rec, ok, err := s.MostRecent(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("most recent: ok=%v err=%v", ok, err)
	}
	if rec.WeekEnding != "2024-01-13" {
		t.Fatalf("most recent = %s", rec.WeekEnding)
	}

	mem.FailGet(core.RecordKey("alice", "2024-01-13"), errors.New("flaky"))
	rec, ok, err = s.MostRecent(ctx, "alice")
	if err != nil || !ok || rec.WeekEnding != "2024-01-06" {
		t.Fatalf("fallback: rec=%v ok=%v err=%v", rec, ok, err)
	}
}

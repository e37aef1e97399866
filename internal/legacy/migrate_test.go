package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"expenses/internal/core"
	"expenses/internal/kv/memory"
)

func newMigrator(t *testing.T, seed map[string]string) (*Migrator, *memory.Store) {
	t.Helper()
	mem := memory.New()
	for k, v := range seed {
		if err := mem.Put(context.Background(), k, []byte(v)); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
	m := NewMigrator(mem, 2)
	m.now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }
	return m, mem
}

func load(t *testing.T, mem *memory.Store, key string) (core.ExpenseRecord, bool) {
	t.Helper()
	raw, ok, err := mem.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	if !ok {
		return core.ExpenseRecord{}, false
	}
	rec, err := core.DecodeRecord(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", key, err)
	}
	return rec, true
}

func TestRunMigratesSinglePartKeys(t *testing.T) {
	m, mem := newMigrator(t, map[string]string{
		"expenses:alice":            `{"weekEnding":"2024-06-08","businessPurpose":"Visit","entries":{"C18":12},"createdAt":"2024-06-01T00:00:00.000Z"}`,
		"expenses:2024-06-15__bob":  `{"businessPurpose":"Conf","entries":{"C8":"Home"}}`,
		"expenses:carol:2024-06-08": `{"namespace":"carol","weekEnding":"2024-06-08","entries":{}}`,
		"expenses:nodate":           `{"businessPurpose":"?"}`,
		"expenses:dave:notes":       `{}`,
	})
	rep, err := m.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Scanned != 5 {
		t.Errorf("scanned = %d", rep.Scanned)
	}
	if rep.Count(ResultMigrated) != 2 || rep.Count(ResultFailed) != 1 {
		t.Fatalf("report = %+v", rep)
	}

	rec, ok := load(t, mem, "expenses:alice:2024-06-08")
	if !ok {
		t.Fatal("alice not migrated")
	}
	if rec.CreatedAt != "2024-06-01T00:00:00.000Z" || rec.UpdatedAt != "2024-07-01T12:00:00.000Z" {
		t.Errorf("timestamps = %s / %s", rec.CreatedAt, rec.UpdatedAt)
	}
	if rec.Entries["C18"].Num != 12 || rec.BusinessPurpose != "Visit" {
		t.Errorf("body lost: %+v", rec)
	}
	if _, ok := load(t, mem, "expenses:alice"); ok {
		t.Error("legacy key should be removed")
	}

	rec, ok = load(t, mem, "expenses:bob:2024-06-15")
	if !ok || rec.Entries["C8"].Str != "Home" || rec.Namespace != "bob" {
		t.Fatalf("bob = %+v ok=%v", rec, ok)
	}
	if _, ok := load(t, mem, "expenses:nodate"); !ok {
		t.Error("failed key must be left in place")
	}
}

func TestRunFlattensNestedData(t *testing.T) {
	m, mem := newMigrator(t, map[string]string{
		"expenses:alice:2024-06-08": `{"sync":"alice","weekEnding":"2024-06-08","businessPurpose":"Trip","updatedAt":"2024-06-09T08:00:00.000Z",
			"data":{"syncName":"alice","weekEnding":"2024-06-08","businessPurpose":"Trip","entries":{"C18":5.5}}}`,
	})
	rep, err := m.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Count(ResultFlattened) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	rec, _ := load(t, mem, "expenses:alice:2024-06-08")
	if rec.Entries["C18"].Num != 5.5 {
		t.Errorf("entries not lifted: %+v", rec.Entries)
	}
	if rec.CreatedAt != "2024-06-09T08:00:00.000Z" {
		t.Errorf("createdAt should fall back to legacy updatedAt, got %s", rec.CreatedAt)
	}
	if _, leftover := rec.Extra["data"]; leftover {
		t.Error("data should not survive flattening")
	}
	if _, leftover := rec.Extra["sync"]; leftover {
		t.Error("sync should not survive flattening")
	}
}

func TestRunDryRunAndConflicts(t *testing.T) {
	seed := map[string]string{
		"expenses:alice":            `{"weekEnding":"2024-06-08","businessPurpose":"old"}`,
		"expenses:alice:2024-06-08": `{"businessPurpose":"current","entries":{}}`,
		"expenses:bob":              `{"weekEnding":"2024-06-08"}`,
	}
	m, mem := newMigrator(t, seed)
	rep, err := m.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if rep.Count(ResultConflict) != 1 || rep.Count(ResultMigrated) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if mem.Len() != 3 {
		t.Fatalf("dry run wrote to the store: %d keys", mem.Len())
	}

	rep, err = m.Run(context.Background(), Options{Overwrite: true, Keep: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Count(ResultMigrated) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	rec, _ := load(t, mem, "expenses:alice:2024-06-08")
	if rec.BusinessPurpose != "old" {
		t.Errorf("overwrite not applied: %q", rec.BusinessPurpose)
	}
	if _, ok := load(t, mem, "expenses:alice"); !ok {
		t.Error("Keep should leave the legacy key")
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		body    string
		ns, we  string
		wantErr error
	}{
		{name: "sync field wins", id: "x", body: `{"sync":"alice","weekEnding":"2024-06-08"}`, ns: "alice", we: "2024-06-08"},
		{name: "date name id", id: "2024-06-08__bob", body: `{}`, ns: "bob", we: "2024-06-08"},
		{name: "nested data", id: "x", body: `{"data":{"syncName":"carol","weekEnding":"2024-06-15"}}`, ns: "carol", we: "2024-06-15"},
		{name: "bare id", id: "dave", body: `{"weekEnding":"2024-06-22"}`, ns: "dave", we: "2024-06-22"},
		{name: "date id", id: "2024-06-29", body: `{}`, ns: "2024-06-29", we: "2024-06-29"},
		{name: "no week", id: "erin", body: `{}`, wantErr: ErrNoWeekEnding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tt.body), &fields); err != nil {
				t.Fatalf("body: %v", err)
			}
			ns, we, err := Identity(tt.id, fields)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || ns != tt.ns || we != tt.we {
				t.Fatalf("got (%q, %q, %v)", ns, we, err)
			}
		})
	}
}

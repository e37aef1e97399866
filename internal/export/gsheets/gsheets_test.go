package gsheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"

	"expenses/internal/core"
)

type fakeGoogle struct {
	mu      sync.Mutex
	copied  map[string]any
	updates []map[string]any
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/copy"):
		_ = json.NewDecoder(r.Body).Decode(&f.copied)
		_, _ = w.Write([]byte(`{"id":"copy-1"}`))
	case strings.Contains(r.URL.Path, "values:batchUpdate"):
		var body struct {
			Data []map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.updates = body.Data
		_, _ = w.Write([]byte(`{"spreadsheetId":"copy-1"}`))
	case strings.Contains(r.URL.Path, "/values/"):
		_, _ = w.Write([]byte(`{"range":"'Week'!B10","values":[[0.5]]}`))
	case strings.HasSuffix(r.URL.Path, "/spreadsheets/copy-1"):
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Week"}}]}`))
	default:
		http.Error(w, `{"error":{"code":404,"message":"unexpected `+r.URL.Path+`"}}`, http.StatusNotFound)
	}
}

func TestExport(t *testing.T) {
	fake := &fakeGoogle{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	exp, err := New(ctx, Config{TemplateSpreadsheetID: "tpl", FolderID: "folder"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := exp.Export(ctx, core.ExpenseRecord{
		Namespace:       "alice",
		WeekEnding:      "2024-06-08",
		BusinessPurpose: "Client visit",
		Entries:         map[string]core.EntryValue{"C18": core.Number(120.5), "D10": core.Number(10)},
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if id != "copy-1" {
		t.Fatalf("id = %s", id)
	}
	if fake.copied["name"] != "Week 6-2 through 6-8 - Client visit" {
		t.Errorf("copy name = %v", fake.copied["name"])
	}

	got := map[string]any{}
	for _, vr := range fake.updates {
		vals := vr["values"].([]any)[0].([]any)
		got[vr["range"].(string)] = vals[0]
	}
	if got["'Week'!C18"] != 120.5 {
		t.Errorf("C18 = %v", got["'Week'!C18"])
	}
	if got["'Week'!H5"] != "Client visit" {
		t.Errorf("H5 = %v", got["'Week'!H5"])
	}
	if got["'Week'!D29"] != 5.0 || got["'Week'!J29"] != 5.0 {
		t.Errorf("mileage with template rate = %v / %v", got["'Week'!D29"], got["'Week'!J29"])
	}
}

func TestNewRequiresTemplate(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without template id")
	}
}

func TestA1QuotesSheetNames(t *testing.T) {
	if got := a1("Bob's week", "C7"); got != "'Bob''s week'!C7" {
		t.Fatalf("a1 = %s", got)
	}
}

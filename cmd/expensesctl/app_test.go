package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"expenses/internal/auth"
	"expenses/internal/config"
	"expenses/internal/core"
	"expenses/internal/kv/memory"
	"expenses/internal/records"
)

func newTestApp(t *testing.T, stdin string) (*App, *bytes.Buffer, *memory.Store) {
	t.Helper()
	store := memory.New()
	out := &bytes.Buffer{}
	app := &App{
		In:     strings.NewReader(stdin),
		Out:    out,
		Config: &config.Config{ListPageSize: 100, ListFetchConcurrency: 2},
		Store:  store,
	}
	return app, out, store
}

func seed(t *testing.T, store *memory.Store, namespace, weekEnding string, rec core.ExpenseRecord) {
	t.Helper()
	if _, err := records.New(store).Put(context.Background(), namespace, weekEnding, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func run(t *testing.T, app *App, args ...string) error {
	t.Helper()
	cmd := NewRootCommand(app)
	cmd.SetArgs(args)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Out)
	return cmd.ExecuteContext(context.Background())
}

func TestWeeksAndNamespacesCommands(t *testing.T) {
	app, out, store := newTestApp(t, "")
	seed(t, store, "alice", "2024-06-01", core.ExpenseRecord{BusinessPurpose: "Kickoff"})
	seed(t, store, "alice", "2024-06-08", core.ExpenseRecord{BusinessPurpose: "Client visit"})
	seed(t, store, "bob", "2024-06-08", core.ExpenseRecord{})

	if err := run(t, app, "weeks", "--sync", "alice"); err != nil {
		t.Fatalf("weeks: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Client visit") || strings.Index(text, "2024-06-08") > strings.Index(text, "2024-06-01") {
		t.Fatalf("weeks output:\n%s", text)
	}

	out.Reset()
	if err := run(t, app, "namespaces"); err != nil {
		t.Fatalf("namespaces: %v", err)
	}
	if !strings.Contains(out.String(), "alice") || !strings.Contains(out.String(), "bob") {
		t.Fatalf("namespaces output:\n%s", out)
	}

	if err := run(t, app, "weeks"); err == nil {
		t.Fatal("weeks without --sync should fail")
	}
}

func TestShowPrintsTotals(t *testing.T) {
	app, out, store := newTestApp(t, "")
	seed(t, store, "alice", "2024-06-08", core.ExpenseRecord{
		BusinessPurpose: "Client visit",
		Entries: map[string]core.EntryValue{
			"C18": core.Number(120.5),
			"D10": core.Number(10),
		},
	})

	if err := run(t, app, "show", "--sync", "alice"); err != nil {
		t.Fatalf("show: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Week ending 2024-06-08 - Client visit", "$120.5", "$7", "Week total: $127.5"} {
		if !strings.Contains(text, want) {
			t.Errorf("show output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	if err := run(t, app, "show", "--sync", "alice", "--sunday", "2024-06-02"); err != nil {
		t.Fatalf("show --sunday: %v", err)
	}
	if !strings.Contains(out.String(), "Week ending 2024-06-08") {
		t.Errorf("show --sunday output:\n%s", out)
	}

	if err := run(t, app, "show", "--sync", "nobody"); err == nil {
		t.Fatal("expected error for a sync name without weeks")
	}
}

func TestEditAppliesCommandsAndSaves(t *testing.T) {
	script := strings.Join([]string{
		"# a comment",
		"purpose Client visit",
		"set 18 SUN 120.50",
		"set 8 0 Home",
		"set 29 0 5",
		"set 42 MON $12",
		"clear 42 1",
		"bogus",
	}, "\n")
	app, out, store := newTestApp(t, script)

	if err := app.Edit(context.Background(), "alice", "2024-06-08", "", time.Hour); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	text := out.String()
	if strings.Count(text, "saved") != 1 {
		t.Errorf("expected one debounced save, got:\n%s", text)
	}
	if !strings.Contains(text, "row is computed") || !strings.Contains(text, `unknown command "bogus"`) {
		t.Errorf("expected edit errors reported, got:\n%s", text)
	}

	rec, ok, err := records.New(store).Get(context.Background(), "alice", "2024-06-08")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if rec.BusinessPurpose != "Client visit" || rec.Entries["C18"].Num != 120.5 || rec.Entries["C8"].Str != "Home" {
		t.Fatalf("saved record = %+v", rec)
	}
	if _, ok := rec.Entries["D42"]; ok {
		t.Errorf("cleared cell still saved: %v", rec.Entries)
	}
	if rec.FileBase != "Week 6-2 through 6-8 - Client visit" {
		t.Errorf("fileBase = %q", rec.FileBase)
	}
}

func TestEditRejectsBadWeek(t *testing.T) {
	tests := []struct {
		name       string
		weekEnding string
		sunday     string
	}{
		{"bad week", "June", ""},
		{"bad sunday", "", "June 2"},
		{"both", "2024-06-08", "2024-06-02"},
		{"neither", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := newTestApp(t, "")
			if err := app.Edit(context.Background(), "alice", tt.weekEnding, tt.sunday, time.Hour); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEditFromSunday(t *testing.T) {
	app, out, store := newTestApp(t, "set 18 SUN 40")
	if err := run(t, app, "edit", "--sync", "alice", "--sunday", "2024-06-02", "--autosave", "1h"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if strings.Contains(out.String(), "warning") {
		t.Errorf("unexpected warning:\n%s", out)
	}
	rec, ok, err := records.New(store).Get(context.Background(), "alice", "2024-06-08")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if rec.SundayDate != "2024-06-02" || rec.Entries["C18"].Num != 40 {
		t.Fatalf("saved record = %+v", rec)
	}

	if err := run(t, app, "edit", "--sync", "alice", "--sunday", "2024-06-02", "--week", "2024-06-08"); err == nil {
		t.Fatal("expected --week and --sunday to conflict")
	}
}

func TestEditWarnsOnNonSaturday(t *testing.T) {
	tests := []struct {
		weekEnding string
		warn       bool
	}{
		{"2024-06-08", false},
		{"2024-06-09", true},
		{"2024-06-05", true},
	}
	for _, tt := range tests {
		t.Run(tt.weekEnding, func(t *testing.T) {
			app, out, _ := newTestApp(t, "")
			if err := app.Edit(context.Background(), "alice", tt.weekEnding, "", time.Hour); err != nil {
				t.Fatalf("Edit: %v", err)
			}
			want := "warning: week ending " + tt.weekEnding + " is not a Saturday"
			if got := strings.Contains(out.String(), want); got != tt.warn {
				t.Errorf("warned = %v, want %v; output:\n%s", got, tt.warn, out)
			}
		})
	}
}

func TestExportWritesWorkbook(t *testing.T) {
	app, out, store := newTestApp(t, "")
	seed(t, store, "alice", "2024-06-08", core.ExpenseRecord{
		BusinessPurpose: "Client visit",
		Entries:         map[string]core.EntryValue{"C18": core.Number(120.5)},
	})

	tmpl := excelize.NewFile()
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "template.xlsx")
	if err := tmpl.SaveAs(tmplPath); err != nil {
		t.Fatalf("save template: %v", err)
	}
	tmpl.Close()

	if err := run(t, app, "export", "--sync", "alice", "--week", "2024-06-08"); err == nil {
		t.Fatal("expected error without a template")
	}

	dest := filepath.Join(dir, "out.xlsx")
	if err := run(t, app, "export", "--sync", "alice", "--template", tmplPath, "-o", dest); err != nil {
		t.Fatalf("export: %v", err)
	}
	if strings.TrimSpace(out.String()) != dest {
		t.Errorf("printed path = %q", out)
	}
	f, err := excelize.OpenFile(dest)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	if got, _ := f.GetCellValue(f.GetSheetName(0), "C18", excelize.Options{RawCellValue: true}); got != "120.5" {
		t.Errorf("C18 = %q", got)
	}
}

func TestMigrateLegacyCommand(t *testing.T) {
	app, out, store := newTestApp(t, "")
	ctx := context.Background()
	if err := store.Put(ctx, "expenses:alice", []byte(`{"weekEnding":"2024-06-08","entries":{"C18":12}}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := run(t, app, "migrate-legacy", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out.String(), "dry run: scanned 1 keys, migrated 1") {
		t.Fatalf("dry run output:\n%s", out)
	}
	if _, ok, _ := store.Get(ctx, core.RecordKey("alice", "2024-06-08")); ok {
		t.Fatal("dry run wrote a record")
	}

	out.Reset()
	if err := run(t, app, "migrate-legacy"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, ok, _ := store.Get(ctx, core.RecordKey("alice", "2024-06-08")); !ok {
		t.Fatalf("record not migrated:\n%s", out)
	}
	if _, ok, _ := store.Get(ctx, "expenses:alice"); ok {
		t.Error("legacy key kept without --keep")
	}
}

func TestTokenCommand(t *testing.T) {
	app, out, _ := newTestApp(t, "")
	if err := run(t, app, "token"); err == nil {
		t.Fatal("expected error with auth disabled")
	}

	app.Config.AuthUser, app.Config.AuthPass, app.Config.TokenSecret = "admin", "pw", "key"
	if err := run(t, app, "token"); err != nil {
		t.Fatalf("token: %v", err)
	}
	user, err := auth.New("admin", "pw", "key", 0).Verify(strings.TrimSpace(out.String()))
	if err != nil || user != "admin" {
		t.Fatalf("Verify = %q, %v", user, err)
	}
}

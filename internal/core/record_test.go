package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEntryValueJSON(t *testing.T) {
	var entries map[string]EntryValue
	if err := json.Unmarshal([]byte(`{"C18":120.5,"C8":"Home","D10":0}`), &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v := entries["C18"]; v.IsText || v.Num != 120.5 {
		t.Fatalf("C18 = %+v", v)
	}
	if v := entries["C8"]; !v.IsText || v.Str != "Home" {
		t.Fatalf("C8 = %+v", v)
	}
	if v := entries["D10"]; v.IsText || v.Num != 0 {
		t.Fatalf("D10 = %+v", v)
	}

	out, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"C18":120.5`) || !strings.Contains(string(out), `"C8":"Home"`) {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestEntryValueRejectsNonScalar(t *testing.T) {
	for _, body := range []string{`{"C18":true}`, `{"C18":[1]}`, `{"C18":{"a":1}}`} {
		var entries map[string]EntryValue
		err := json.Unmarshal([]byte(body), &entries)
		if !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("%s: expected ErrInvalidEntry, got %v", body, err)
		}
	}
}

func TestRecordDropsNullEntries(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"weekEnding":"2024-06-08","entries":{"C18":120.5,"C8":"Home","D18":null}}`))
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if _, ok := rec.Entries["D18"]; ok {
		t.Fatalf("null entry kept: %+v", rec.Entries)
	}
	if len(rec.Entries) != 2 {
		t.Fatalf("entries = %+v", rec.Entries)
	}
	out, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	if strings.Contains(string(out), "D18") {
		t.Fatalf("null entry re-encoded: %s", out)
	}
}

func TestRecordKeepsUnknownFields(t *testing.T) {
	in := `{"businessPurpose":"Trip","entries":{"C18":5},"state":{"18":{"0":"5"}},"sync":"alice"}`
	rec, err := DecodeRecord([]byte(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.BusinessPurpose != "Trip" || rec.Entries["C18"].Num != 5 {
		t.Fatalf("known fields lost: %+v", rec)
	}
	if _, ok := rec.Extra["state"]; !ok {
		t.Fatalf("expected state in Extra, got %v", rec.Extra)
	}

	rec.Namespace = "bob"
	rec.Extra["namespace"] = json.RawMessage(`"mallory"`)
	out, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["namespace"] != "bob" {
		t.Fatalf("owned field overridden by extra: %v", back["namespace"])
	}
	if _, ok := back["state"]; !ok {
		t.Fatalf("extra field dropped: %s", out)
	}
}

func TestRecordEncodesEmptyEntries(t *testing.T) {
	out, err := EncodeRecord(ExpenseRecord{Namespace: "a", WeekEnding: "2024-01-06"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(out), `"entries":{}`) {
		t.Fatalf("expected empty entries object: %s", out)
	}
}

func TestTimestampSortsLexically(t *testing.T) {
	a := Timestamp(time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC))
	b := Timestamp(time.Date(2024, 1, 6, 10, 0, 0, 5e6, time.UTC))
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
	if b != "2024-01-06T10:00:00.005Z" {
		t.Fatalf("unexpected format %s", b)
	}
}

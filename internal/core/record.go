package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout renders timestamps so that lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type (
	// EntryValue is a single cell value: a number for currency and mileage
	// columns, a string for free-text columns such as FROM/TO.
	EntryValue struct {
		Num    float64
		Str    string
		IsText bool

		null bool
	}

	// ExpenseRecord is one saved week of expenses for a namespace.
	ExpenseRecord struct {
		Namespace       string                `json:"namespace"`
		WeekEnding      string                `json:"weekEnding"`
		BusinessPurpose string                `json:"businessPurpose"`
		Entries         map[string]EntryValue `json:"entries"`
		SundayDate      string                `json:"sundayDate,omitempty"`
		FileBase        string                `json:"fileBase,omitempty"`
		CreatedAt       string                `json:"createdAt"`
		UpdatedAt       string                `json:"updatedAt"`

		// Extra carries body fields this service does not interpret. They are
		// stored and returned untouched.
		Extra map[string]json.RawMessage `json:"-"`
	}
)

var ErrInvalidEntry = errors.New("invalid entry value")

// Number returns a numeric entry value.
func Number(f float64) EntryValue { return EntryValue{Num: f} }

// Text returns a string entry value.
func Text(s string) EntryValue { return EntryValue{Str: s, IsText: true} }

// Interface returns the value as float64 or string.
func (v EntryValue) Interface() any {
	if v.IsText {
		return v.Str
	}
	return v.Num
}

func (v EntryValue) String() string {
	if v.IsText {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

func (v EntryValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Num)
}

func (v *EntryValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ErrInvalidEntry
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		*v = Text(s)
		return nil
	case 'n':
		if string(b) != "null" {
			return fmt.Errorf("%w: %s", ErrInvalidEntry, b)
		}
		*v = EntryValue{null: true}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, b)
	}
	*v = Number(f)
	return nil
}

// recordFields lists the JSON names ExpenseRecord owns; everything else lands in Extra.
var recordFields = map[string]struct{}{
	"namespace": {}, "weekEnding": {}, "businessPurpose": {}, "entries": {},
	"sundayDate": {}, "fileBase": {}, "createdAt": {}, "updatedAt": {},
}

type recordAlias ExpenseRecord

func (r ExpenseRecord) MarshalJSON() ([]byte, error) {
	a := recordAlias(r)
	if a.Entries == nil {
		a.Entries = map[string]EntryValue{}
	}
	known, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(r.Extra)+len(recordFields))
	for k, v := range r.Extra {
		if _, owned := recordFields[k]; !owned {
			merged[k] = v
		}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (r *ExpenseRecord) UnmarshalJSON(b []byte) error {
	var a recordAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, v := range a.Entries {
		if v.null {
			delete(a.Entries, k)
		}
	}
	for k := range recordFields {
		delete(all, k)
	}
	if len(all) > 0 {
		a.Extra = all
	} else {
		a.Extra = nil
	}
	*r = ExpenseRecord(a)
	return nil
}

// DecodeRecord parses a stored record body.
func DecodeRecord(b []byte) (ExpenseRecord, error) {
	var rec ExpenseRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return ExpenseRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec ExpenseRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

// Timestamp formats t in UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

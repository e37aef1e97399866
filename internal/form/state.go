package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"expenses/internal/core"
)

var (
	ErrUnknownRow    = errors.New("unknown row")
	ErrComputedRow   = errors.New("row is computed")
	ErrDayOutOfRange = errors.New("day out of range")
)

// Cell identifies one input: a layout row on a day, 0 = Sunday.
type Cell struct {
	Row int
	Day int
}

// State is the in-memory sheet for one week. It is not safe for concurrent use.
type State struct {
	Layout          Layout
	WeekEnding      string
	SundayDate      string
	BusinessPurpose string
	MileageRate     float64

	values map[Cell]string
}

func NewState(layout Layout) *State {
	if layout == nil {
		layout = DefaultLayout
	}
	return &State{Layout: layout, MileageRate: DefaultMileageRate, values: map[Cell]string{}}
}

// Set stores raw input for a cell. Computed rows cannot be set.
func (s *State) Set(row, day int, value string) error {
	if day < 0 || day >= Days {
		return fmt.Errorf("%w: %d", ErrDayOutOfRange, day)
	}
	r, ok := s.Layout.Row(row)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRow, row)
	}
	if r.Computed {
		return fmt.Errorf("%w: %d", ErrComputedRow, row)
	}
	if value == "" {
		delete(s.values, Cell{row, day})
		return nil
	}
	s.values[Cell{row, day}] = value
	return nil
}

// Value returns the raw input, or for a computed row the derived amount.
func (s *State) Value(row, day int) string {
	if r, ok := s.Layout.Row(row); ok && r.Computed {
		if m := s.Mileage(day); m != 0 {
			return strconv.FormatFloat(m, 'f', 2, 64)
		}
		return ""
	}
	return s.values[Cell{row, day}]
}

// Mileage is the day's business miles times the mileage rate.
func (s *State) Mileage(day int) float64 {
	return ParseNumber(s.values[Cell{MilesRow, day}]) * s.MileageRate
}

// DayTotal sums the currency rows for day, including derived mileage.
// Text rows and the miles row are not money and are left out.
func (s *State) DayTotal(day int) float64 {
	var sum float64
	for _, r := range s.Layout {
		if r.Kind != KindCurrency {
			continue
		}
		if r.Number == MileageRow {
			sum += s.Mileage(day)
			continue
		}
		sum += ParseNumber(s.values[Cell{r.Number, day}])
	}
	return sum
}

func (s *State) WeekTotal() float64 {
	var sum float64
	for d := 0; d < Days; d++ {
		sum += s.DayTotal(d)
	}
	return sum
}

// Entries serializes the sheet to cell addresses. Blank cells and the
// computed row are omitted; numeric rows become numbers.
func (s *State) Entries() map[string]core.EntryValue {
	out := make(map[string]core.EntryValue, len(s.values))
	for cell, raw := range s.values {
		r, ok := s.Layout.Row(cell.Row)
		if !ok || r.Computed || strings.TrimSpace(raw) == "" {
			continue
		}
		addr := Address(cell.Row, cell.Day)
		if r.Kind == KindText {
			out[addr] = core.Text(raw)
		} else {
			out[addr] = core.Number(ParseNumber(raw))
		}
	}
	return out
}

// Clear empties every input and the header fields.
func (s *State) Clear() {
	s.values = map[Cell]string{}
	s.BusinessPurpose = ""
	s.WeekEnding = ""
	s.SundayDate = ""
}

// Load replaces the whole state with rec. Nothing from the previous week
// survives. Records written by the old UI carry a row/day "state" object
// instead of entries; it is read when entries are empty.
func (s *State) Load(rec core.ExpenseRecord) {
	s.Clear()
	s.WeekEnding = rec.WeekEnding
	s.SundayDate = rec.SundayDate
	s.BusinessPurpose = rec.BusinessPurpose

	for addr, v := range rec.Entries {
		row, day, ok := ParseAddress(addr)
		if !ok {
			continue
		}
		_ = s.Set(row, day, v.String())
	}
	if len(rec.Entries) == 0 {
		s.loadRowState(rec.Extra["state"])
	}
}

func (s *State) loadRowState(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var rows map[string]map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return
	}
	for rk, days := range rows {
		row, err := strconv.Atoi(rk)
		if err != nil {
			continue
		}
		for dk, v := range days {
			day, err := strconv.Atoi(dk)
			if err != nil {
				continue
			}
			switch val := v.(type) {
			case string:
				_ = s.Set(row, day, val)
			case float64:
				_ = s.Set(row, day, strconv.FormatFloat(val, 'f', -1, 64))
			}
		}
	}
}

// Record builds the body saved for namespace.
func (s *State) Record(namespace string) core.ExpenseRecord {
	rec := core.ExpenseRecord{
		Namespace:       namespace,
		WeekEnding:      s.WeekEnding,
		SundayDate:      s.SundayDate,
		BusinessPurpose: strings.TrimSpace(s.BusinessPurpose),
		Entries:         s.Entries(),
	}
	rec.FileBase = core.FileBaseName(rec)
	return rec
}

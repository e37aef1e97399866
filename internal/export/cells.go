// Package export turns a saved week into the cell writes that fill the
// expense template. The xlsx and gsheets subpackages apply them to a local
// workbook and a Google Sheets copy respectively.
package export

import (
	"fmt"
	"sort"

	"expenses/internal/core"
	"expenses/internal/form"
)

const (
	WeekEndingCell       = "E5"
	WeekEndingCompatCell = "E4"
	PurposeCell          = "H5"
	RateCell             = "B10"
	MileageTotalCell     = "J29"
	DateRow              = 7
)

// Cell is one template write. Value is a float64 or a string.
type Cell struct {
	Addr  string
	Value any
}

// RateFrom accepts a template mileage rate only when it looks like a
// per-mile amount, falling back to the default otherwise.
func RateFrom(n float64) float64 {
	if n > 0 && n < 10 {
		return n
	}
	return form.DefaultMileageRate
}

// Cells lists every write for rec in template order: header, date row,
// user entries, then the derived mileage row and its total.
func Cells(rec core.ExpenseRecord, rate float64) ([]Cell, error) {
	weekEnding, err := core.ParseDate(rec.WeekEnding)
	if err != nil {
		return nil, fmt.Errorf("week ending: %w", err)
	}
	days, err := core.WeekDates(rec.WeekEnding, rec.SundayDate)
	if err != nil {
		return nil, fmt.Errorf("week dates: %w", err)
	}

	serial := core.ExcelSerial(weekEnding)
	cells := []Cell{
		{WeekEndingCell, serial},
		{WeekEndingCompatCell, serial},
		{PurposeCell, rec.BusinessPurpose},
	}
	for i, d := range days {
		cells = append(cells, Cell{form.Address(DateRow, i), core.ExcelSerial(d)})
	}

	addrs := make([]string, 0, len(rec.Entries))
	for addr := range rec.Entries {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		if row, _, ok := form.ParseAddress(addr); ok && row == form.MileageRow {
			continue
		}
		cells = append(cells, Cell{addr, rec.Entries[addr].Interface()})
	}

	var total float64
	for d := 0; d < form.Days; d++ {
		miles := rec.Entries[form.Address(form.MilesRow, d)]
		amount := milesValue(miles) * rate
		total += amount
		cells = append(cells, Cell{form.Address(form.MileageRow, d), amount})
	}
	cells = append(cells, Cell{MileageTotalCell, total})
	return cells, nil
}

func milesValue(v core.EntryValue) float64 {
	if v.IsText {
		return form.ParseNumber(v.Str)
	}
	return v.Num
}

// Package form holds the editable state of one week's expense sheet: which
// rows exist, what the user typed per day, and the totals derived from it.
package form

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindCurrency
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return "currency"
	}
}

// Row is one line of the sheet, addressed by its spreadsheet row number.
type Row struct {
	Number   int
	Label    string
	Kind     Kind
	Computed bool
}

type Layout []Row

const (
	FromRow    = 8
	ToRow      = 9
	MilesRow   = 10
	MileageRow = 29

	DefaultMileageRate = 0.70
	Days               = 7
)

// Columns maps day index (0 = Sunday) to its spreadsheet column.
var Columns = [Days]string{"C", "D", "E", "F", "G", "H", "I"}

// DefaultLayout is the row order of the expense template.
var DefaultLayout = Layout{
	{Number: FromRow, Label: "FROM", Kind: KindText},
	{Number: ToRow, Label: "TO", Kind: KindText},
	{Number: MilesRow, Label: "BUSINESS MILES DRIVEN", Kind: KindNumber},
	{Number: MileageRow, Label: "Personal Car Mileage", Kind: KindCurrency, Computed: true},
	{Number: 42, Label: "Breakfast", Kind: KindCurrency},
	{Number: 43, Label: "Lunch", Kind: KindCurrency},
	{Number: 44, Label: "Dinner", Kind: KindCurrency},
	{Number: 18, Label: "Airfare", Kind: KindCurrency},
	{Number: 25, Label: "Auto Rental", Kind: KindCurrency},
	{Number: 26, Label: "Auto Rental Fuel", Kind: KindCurrency},
	{Number: 19, Label: "Bus, Limo & Taxi", Kind: KindCurrency},
	{Number: 20, Label: "Lodging Room & Tax", Kind: KindCurrency},
	{Number: 21, Label: "Parking / Tolls", Kind: KindCurrency},
	{Number: 22, Label: "Tips", Kind: KindCurrency},
	{Number: 23, Label: "Laundry", Kind: KindCurrency},
	{Number: 34, Label: "Internet - Email", Kind: KindCurrency},
	{Number: 36, Label: "POSTAGE", Kind: KindCurrency},
	{Number: 38, Label: "PERISHABLE TOOLS", Kind: KindCurrency},
	{Number: 39, Label: "DUES & SUBSCRIPTIONS", Kind: KindCurrency},
}

// Row looks up a row by number.
func (l Layout) Row(number int) (Row, bool) {
	for _, r := range l {
		if r.Number == number {
			return r, true
		}
	}
	return Row{}, false
}

var addressPattern = regexp.MustCompile(`^([C-I])(\d+)$`)

// Address returns the cell address of row on day, e.g. Address(18, 0) == "C18".
func Address(row, day int) string {
	return fmt.Sprintf("%s%d", Columns[day], row)
}

// ParseAddress splits a day-column address into row and day index.
func ParseAddress(addr string) (row, day int, ok bool) {
	m := addressPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(addr)))
	if m == nil {
		return 0, 0, false
	}
	row, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return row, int(m[1][0] - 'C'), true
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// ParseNumber reads user input such as "$1,234.50" as 1234.5. Anything that
// does not parse after stripping is 0.
func ParseNumber(s string) float64 {
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// Package xlsx fills a local copy of the expense workbook template.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/xuri/excelize/v2"

	"expenses/internal/core"
	"expenses/internal/export"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var ErrNoTemplate = errors.New("no export template configured")

type Exporter struct {
	templatePath string
}

func New(templatePath string) *Exporter {
	return &Exporter{templatePath: templatePath}
}

// Enabled reports whether a template path is configured.
func (e *Exporter) Enabled() bool { return e != nil && e.templatePath != "" }

// FileName is the download name for rec.
func FileName(rec core.ExpenseRecord) string {
	return core.FileBaseName(rec) + ".xlsx"
}

// Export writes the filled workbook for rec to w. The template file is
// opened fresh on every call and never modified.
func (e *Exporter) Export(rec core.ExpenseRecord, w io.Writer) error {
	if !e.Enabled() {
		return ErrNoTemplate
	}
	f, err := excelize.OpenFile(e.templatePath)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer f.Close()

	if err := Fill(f, rec); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Fill applies rec to the first sheet of f and marks the workbook for a
// full recalculation when it is next opened.
func Fill(f *excelize.File, rec core.ExpenseRecord) error {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return errors.New("template has no sheets")
	}

	cells, err := export.Cells(rec, readRate(f, sheet))
	if err != nil {
		return err
	}
	for _, c := range cells {
		if _, _, err := excelize.CellNameToCoordinates(c.Addr); err != nil {
			slog.Warn("Skipping invalid cell address", "addr", c.Addr)
			continue
		}
		if err := setCell(f, sheet, c); err != nil {
			return fmt.Errorf("set %s: %w", c.Addr, err)
		}
	}

	full := true
	if err := f.SetCalcProps(&excelize.CalcPropsOptions{FullCalcOnLoad: &full}); err != nil {
		return fmt.Errorf("set calc props: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, c export.Cell) error {
	switch v := c.Value.(type) {
	case float64:
		return f.SetCellFloat(sheet, c.Addr, v, -1, 64)
	case string:
		return f.SetCellStr(sheet, c.Addr, v)
	default:
		return f.SetCellValue(sheet, c.Addr, v)
	}
}

func readRate(f *excelize.File, sheet string) float64 {
	raw, err := f.GetCellValue(sheet, export.RateCell, excelize.Options{RawCellValue: true})
	if err != nil {
		return export.RateFrom(0)
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return export.RateFrom(0)
	}
	return export.RateFrom(n)
}

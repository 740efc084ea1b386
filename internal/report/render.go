package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	fieldHeader = "שדה"
	valueHeader = "ערך"
	sheetName   = "Report"
)

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

// Markdown renders one "## Title" heading per section followed by a
// two-column field/value table.
func (r *Report) Markdown() string {
	if r.Empty() {
		return ""
	}
	var b strings.Builder
	for i, s := range r.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", fieldHeader, valueHeader)
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "| %s | %s |\n", cellEscaper.Replace(row.Field), cellEscaper.Replace(row.Summary))
		}
	}
	return b.String()
}

// WriteXLSX writes the report as a single right-to-left worksheet. Each
// section starts with a bold title row followed by its field/value rows.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rtl := true
	if err := f.SetSheetView(sheetName, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return fmt.Errorf("sheet view: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("title style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "B", 40); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	row := 1
	put := func(col int, v string) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, v)
	}

	if err := put(1, fieldHeader); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if err := put(2, valueHeader); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "B1", bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	row++

	if r != nil {
		for _, s := range r.Sections {
			if err := put(1, s.Title); err != nil {
				return fmt.Errorf("section %s: %w", s.Key, err)
			}
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetCellStyle(sheetName, cell, cell, bold); err != nil {
				return fmt.Errorf("section %s style: %w", s.Key, err)
			}
			row++
			for _, rw := range s.Rows {
				if err := put(1, rw.Field); err != nil {
					return fmt.Errorf("row %s: %w", rw.Field, err)
				}
				if err := put(2, rw.Summary); err != nil {
					return fmt.Errorf("row %s: %w", rw.Field, err)
				}
				row++
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

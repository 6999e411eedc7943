package audit

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	maxColWidth  = 60
)

// ExcelizeWriter implements ExcelWriter using excelize library.
type ExcelizeWriter struct {
	file    *excelize.File
	sheet   string
	row     int
	widths  []int
	headerStyle int
}

// NewExcelizeWriter creates a new Excel writer.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{file: excelize.NewFile()}
}

// AddSheet starts a new sheet. The workbook's default sheet is reused for the first one.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if utf8.RuneCountInString(name) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	w.flushWidths()

	if w.sheet == "" {
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.sheet = name
	w.row = 1
	w.widths = nil
	return nil
}

// WriteHeader writes bold column headers and freezes the header row.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	if w.headerStyle == 0 {
		style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		w.headerStyle = style
	}

	vals := make([]interface{}, len(columns))
	for i, c := range columns {
		vals[i] = c
	}
	if err := w.writeCells(vals); err != nil {
		return err
	}

	start, _ := excelize.CoordinatesToCellName(1, w.row)
	end, _ := excelize.CoordinatesToCellName(len(columns), w.row)
	if err := w.file.SetCellStyle(w.sheet, start, end, w.headerStyle); err != nil {
		return err
	}
	if err := w.file.SetPanes(w.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	w.row++
	return nil
}

// WriteRow writes a data row. Times are written as RFC3339 text.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	vals := make([]interface{}, len(row))
	for i, v := range row {
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339)
		}
		vals[i] = v
	}
	if err := w.writeCells(vals); err != nil {
		return err
	}
	w.row++
	return nil
}

func (w *ExcelizeWriter) writeCells(vals []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &vals); err != nil {
		return err
	}
	for i, v := range vals {
		n := utf8.RuneCountInString(fmt.Sprint(v)) + 2
		if n > maxColWidth {
			n = maxColWidth
		}
		for len(w.widths) <= i {
			w.widths = append(w.widths, 0)
		}
		if n > w.widths[i] {
			w.widths[i] = n
		}
	}
	return nil
}

// flushWidths sizes the current sheet's columns to their longest value.
func (w *ExcelizeWriter) flushWidths() {
	if w.sheet == "" {
		return
	}
	for i, width := range w.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			continue
		}
		_ = w.file.SetColWidth(w.sheet, col, col, float64(width))
	}
}

// Save writes the workbook to wr.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	w.flushWidths()
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

package datamanager

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/report"
)

// File formats accepted by Export and Import.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

func checkFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatCSV && format != FormatXLSX {
		return "", fmt.Errorf("%w: format must be csv or xlsx", shared.ErrValidation)
	}
	return format, nil
}

// readRows returns the header and data rows of an uploaded file. A UTF-8
// or UTF-16 byte order mark on CSV input is honoured and stripped.
func readRows(format string, r io.Reader) ([]string, [][]string, error) {
	var rows [][]string
	var err error
	switch format {
	case FormatCSV:
		cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err = cr.ReadAll()
	case FormatXLSX:
		rows, err = report.ReadFirstSheet(r)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read %s: %v", shared.ErrValidation, format, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: file has no header row", shared.ErrValidation)
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return header, rows[1:], nil
}

// rowRecord keeps the cells of known columns, omitting empty cells.
func rowRecord(t Table, header, row []string) Record {
	rec := Record{}
	for i, name := range header {
		if i >= len(row) {
			break
		}
		if _, ok := t.Column(name); !ok {
			continue
		}
		if cell := strings.TrimSpace(row[i]); cell != "" {
			rec[name] = cell
		}
	}
	return rec
}

func writeCSV(w io.Writer, t Table, rows []Record) error {
	cols := t.Visible()
	cw := csv.NewWriter(w)
	if err := cw.Write(columnNames(cols)); err != nil {
		return err
	}
	line := make([]string, len(cols))
	for _, rec := range rows {
		for i, c := range cols {
			line[i] = formatCell(c, rec[c.Name])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, t Table, rows []Record) error {
	cols := t.Visible()
	sheet := report.Sheet{Name: t.Name, Headers: columnNames(cols), Rows: make([][]any, len(rows))}
	for i, rec := range rows {
		line := make([]any, len(cols))
		for j, c := range cols {
			line[j] = rec[c.Name]
		}
		sheet.Rows[i] = line
	}
	return report.WriteWorkbook(w, sheet)
}

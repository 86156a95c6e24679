// Package catalog implements the staged import pipeline: parsing, field
// normalization, validation, type splitting and batching of vendor catalog
// exports.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseError is the only fatal error class of the pipeline. It aborts the run.
type ParseError struct {
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RawRow is an ordered header-to-cell mapping produced by a RowReader. It
// lives only until the normalizer consumes it.
type RawRow struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed cell under a canonical header name.
func (r *RawRow) Get(name string) string { return r.Values[name] }

// RowReader yields catalog rows one at a time so downstream stages never hold
// the whole document. Next returns io.EOF after the last row.
type RowReader interface {
	Headers() []string
	Next() (*RawRow, error)
}

// normalizeHeader lowers, trims and strips the template's required marker.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.ToLower(h))
	return strings.TrimSuffix(h, " *")
}

// CSVRowReader streams rows from a CSV document whose first non-empty line is
// the header. Quoting follows RFC 4180: a quoted field may contain commas and
// newlines, and "" denotes a literal quote.
type CSVRowReader struct {
	reader  *csv.Reader
	headers []string
}

// NewCSVRowReader reads the header row and prepares a streaming reader.
func NewCSVRowReader(r io.Reader) (*CSVRowReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Message: "missing header row"}
	}
	if err != nil {
		return nil, &ParseError{Line: 1, Message: err.Error(), Err: err}
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = normalizeHeader(h)
	}

	return &CSVRowReader{reader: cr, headers: headers}, nil
}

// Headers returns the normalized header names in file order.
func (p *CSVRowReader) Headers() []string { return p.headers }

// Next returns the next data row or io.EOF. Malformed quoting surfaces as a
// *ParseError.
func (p *CSVRowReader) Next() (*RawRow, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		line := 0
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			line = csvErr.StartLine
		}
		return nil, &ParseError{Line: line, Message: err.Error(), Err: err}
	}
	// Quoted fields may span physical lines; FieldPos gives the line the
	// record actually starts on.
	line, _ := p.reader.FieldPos(0)

	values := make(map[string]string, len(p.headers))
	for i, v := range record {
		if i < len(p.headers) {
			values[p.headers[i]] = strings.TrimSpace(v)
		}
	}
	return &RawRow{Line: line, Values: values}, nil
}

// XLSXRowReader serves rows from the first sheet of an Excel workbook,
// preferring a sheet named "Products" when present.
type XLSXRowReader struct {
	headers []string
	rows    [][]string
	next    int
}

// NewXLSXRowReader loads the workbook and positions the reader on the first
// data row.
func NewXLSXRowReader(r io.Reader) (*XLSXRowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("failed to open workbook: %v", err), Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Message: "no sheets found in workbook"}
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, "Products") {
			sheetName = name
			break
		}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("failed to read sheet %s: %v", sheetName, err), Err: err}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Message: "missing header row"}
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	return &XLSXRowReader{headers: headers, rows: rows[1:]}, nil
}

// Headers returns the normalized header names in sheet order.
func (p *XLSXRowReader) Headers() []string { return p.headers }

// Next returns the next data row or io.EOF. Rows with no non-empty cell are
// skipped.
func (p *XLSXRowReader) Next() (*RawRow, error) {
	for p.next < len(p.rows) {
		record := p.rows[p.next]
		p.next++

		values := make(map[string]string, len(p.headers))
		empty := true
		for i, v := range record {
			if i >= len(p.headers) {
				break
			}
			v = strings.TrimSpace(v)
			values[p.headers[i]] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		// +1 for the header row, rows are 1-indexed in the sheet
		return &RawRow{Line: p.next + 1, Values: values}, nil
	}
	return nil, io.EOF
}

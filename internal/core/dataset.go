package core

// dataset.go turns an uploaded CSV into a header plus rows held in memory.
//
// Input hygiene follows what spreadsheet exports need: a UTF-8 byte-order mark is
// dropped, invalid UTF-8 is replaced rather than rejected, and rows with no content
// are skipped. A row whose width differs from the header is an error naming its line.

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// File-level errors. All of them are validation failures.
var (
	ErrFileTooLarge = fmt.Errorf("%w: file too large", ErrValidation)
	ErrEmptyFile    = fmt.Errorf("%w: empty file: no header row", ErrValidation)
	ErrNoDataRows   = fmt.Errorf("%w: empty file: header has no data rows", ErrValidation)
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Dataset is a parsed CSV: the header and the data rows, each as wide as the header.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Column returns the values of the named column, or nil if the header lacks it.
func (d *Dataset) Column(name string) []string {
	pos := -1
	for i, h := range d.Header {
		if h == name {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil
	}
	out := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[pos]
	}
	return out
}

// ParseCSV reads a complete CSV document. maxBytes <= 0 disables the size check.
func ParseCSV(r io.Reader, maxBytes int64) (*Dataset, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}

	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	ds := &Dataset{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid csv: %v", err)}
		}
		if isEmptyRow(record) {
			continue
		}

		if ds.Header == nil {
			ds.Header = make([]string, len(record))
			for i, h := range record {
				ds.Header[i] = strings.TrimSpace(h)
			}
			continue
		}

		if len(record) != len(ds.Header) {
			line, _ := cr.FieldPos(0)
			return nil, validationf("invalid csv: line %d has %d fields, header has %d",
				line, len(record), len(ds.Header))
		}
		ds.Rows = append(ds.Rows, record)
	}

	if ds.Header == nil {
		return nil, ErrEmptyFile
	}
	if len(ds.Rows) == 0 {
		return nil, ErrNoDataRows
	}
	return ds, nil
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

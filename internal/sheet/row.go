// Package sheet reads published spreadsheet tables as rows keyed by header.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is one table record keyed by column header. A column missing from
// the record is null, which is distinct from an empty cell.
type Row map[string]string

// Get returns the cell for column and whether it is present.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// Value returns the cell for column, or nil when it is absent.
func (r Row) Value(column string) any {
	if v, ok := r[column]; ok {
		return v
	}
	return nil
}

// ErrNoHeader is returned for a table without a header record.
var ErrNoHeader = errors.New("sheet: table has no header row")

const bom = "\ufeff"

// ReadCSV parses a CSV table whose first record is the header. Records
// shorter than the header leave the trailing columns absent; extra cells
// are dropped.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("sheet: reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet: %w", err)
		}

		row := make(Row, len(header))
		for i, col := range header {
			if i >= len(record) {
				break
			}
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

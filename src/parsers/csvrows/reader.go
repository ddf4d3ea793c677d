// Package csvrows reads header-keyed CSV rows the way both report dialects
// need them.
package csvrows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/username/reportsync/src/logger"
)

const utf8BOM = "\ufeff"

// Row is one data row keyed by header name. Line is the 1-based line of the
// row in the text handed to Read. Err is set for a row the CSV reader
// rejected; such a row has no values.
type Row struct {
	Line   int
	Values []string
	Err    error
	header map[string]int
}

// Get returns the trimmed cell for a header name. present is false when the
// column is missing from the header or absent from a short row.
func (r Row) Get(field string) (value string, present bool) {
	idx, ok := r.header[field]
	if !ok || idx >= len(r.Values) {
		return "", false
	}
	return strings.TrimSpace(r.Values[idx]), true
}

// First returns the trimmed first cell of the row.
func (r Row) First() string {
	if len(r.Values) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Values[0])
}

// Read parses text with the first line as header. Malformed rows are returned
// in place with Err set and do not stop reading. An empty document yields no
// rows and no error.
func Read(text string) ([]Row, error) {
	text = strings.TrimPrefix(text, utf8BOM)
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headerRec, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	header := make(map[string]int, len(headerRec))
	for i, name := range headerRec {
		name = strings.TrimSpace(name)
		if _, dup := header[name]; !dup {
			header[name] = i
		}
	}

	var rows []Row
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.L.Debug("Skipping malformed CSV row", "line", parseErr.StartLine, "error", parseErr.Err)
				rows = append(rows, Row{Line: parseErr.StartLine, Err: err, header: header})
				continue
			}
			return rows, fmt.Errorf("failed to read CSV rows: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, Row{Line: line, Values: rec, header: header})
	}
	return rows, nil
}

// DropLeadingLines removes n banner lines ahead of the real header. The text
// is trimmed first and nothing is dropped unless more than n lines remain.
func DropLeadingLines(text string, n int) string {
	if n <= 0 {
		return text
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(text, utf8BOM)), "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[n:], "\n")
}

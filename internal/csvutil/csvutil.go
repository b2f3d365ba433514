// Package csvutil implements the CSV conventions shared by the import and
// export engines: UTF-8 byte-order mark on write, BOM tolerance on read,
// semicolon-joined multi-valued cells, and the reserved explicit-null
// indicator token.
package csvutil

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// NullIndicator is the reserved literal that explicitly clears a field
// during row-based updates, distinguished from an absent or empty cell
// (both of which leave the field unchanged).
const NullIndicator = "[NULL]"

// utf8BOM is prepended to generated files so spreadsheet tools detect the
// encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// multiValueSeparator joins multi-valued cells (phone numbers, tags).
const multiValueSeparator = ";"

// Encode writes the header and rows as CSV bytes prefixed with a UTF-8 BOM.
func Encode(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV output: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses CSV bytes into a header row and data rows, tolerating a
// leading UTF-8 BOM. Returns an error when the input is empty or
// malformed.
func Decode(data []byte) (header []string, rows [][]string, err error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // ragged rows are reported per row by the caller

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("malformed CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("CSV file has no header row")
	}

	return records[0], records[1:], nil
}

// JoinMulti joins multiple values into one cell.
func JoinMulti(values []string) string {
	return strings.Join(values, multiValueSeparator)
}

// SplitMulti splits a multi-valued cell, dropping empty entries.
func SplitMulti(cell string) []string {
	if cell == "" {
		return nil
	}
	parts := strings.Split(cell, multiValueSeparator)
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

// HeaderIndex maps normalized (lowercased, trimmed) column names to their
// positions.
func HeaderIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return index
}

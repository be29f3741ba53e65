// Package tabular parses operator-supplied CSV text into header-keyed rows.
//
// The parser is deliberately defensive: it knows nothing about location
// records or the remote catalog. It splits the input into lines, reads the
// first non-empty line as the header, and turns every following line into a
// map of header name to cell value. Rows whose field count does not match
// the header are skipped with a diagnostic instead of failing the whole
// parse, so a single damaged line never costs the operator the rest of the
// file.
package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when the input has fewer than two non-empty
// lines, i.e. there is no header plus at least one data row to work with.
var ErrEmptyInput = errors.New("input must contain a header row and at least one data row")

// Row maps a column header to the cell value for one parsed line.
// Column order is irrelevant; row order in the source file is preserved
// by the Rows slice in Result.
type Row map[string]string

// SkippedRow records a data line that was dropped because its field count
// did not match the header. Kept as a diagnostic for the operator.
type SkippedRow struct {
	LineNumber int      `json:"lineNumber"` // 1-based line number in the source file
	FieldCount int      `json:"fieldCount"`
	Expected   int      `json:"expected"`
	Fields     []string `json:"fields"`
}

func (s SkippedRow) String() string {
	return fmt.Sprintf("line %d: expected %d fields, got %d", s.LineNumber, s.Expected, s.FieldCount)
}

// Result holds the outcome of one parse: the header, the rows that matched
// it, and the diagnostics for rows that did not.
type Result struct {
	Header  []string
	Rows    []Row
	Skipped []SkippedRow
}

// Parse turns raw CSV text into an ordered sequence of header-keyed rows.
//
// The first non-empty line is the header; it is split with the same quoting
// rules as data lines. Data lines with a field count different from the
// header's are recorded in Skipped and processing continues. Parse fails
// only with ErrEmptyInput, when there is no header-plus-data to parse.
func Parse(text string) (*Result, error) {
	type numberedLine struct {
		no   int
		text string
	}

	var lines []numberedLine
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, numberedLine{no: i + 1, text: line})
	}

	if len(lines) < 2 {
		return nil, ErrEmptyInput
	}

	header := splitLine(lines[0].text)
	result := &Result{Header: header}

	for _, line := range lines[1:] {
		fields := splitLine(line.text)
		if len(fields) != len(header) {
			result.Skipped = append(result.Skipped, SkippedRow{
				LineNumber: line.no,
				FieldCount: len(fields),
				Expected:   len(header),
				Fields:     fields,
			})
			continue
		}

		row := make(Row, len(header))
		for i, name := range header {
			row[name] = fields[i]
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// splitLine splits one CSV line into fields, character by character.
//
// A '"' toggles quote mode. Inside quote mode a doubled '""' collapses to a
// single literal quote, and commas are part of the field. Outside quote
// mode a comma ends the current field. Each field is trimmed of surrounding
// whitespace after unquoting.
func splitLine(line string) []string {
	var fields []string
	var field strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				// Escaped quote inside a quoted field
				field.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}

		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()

		default:
			field.WriteRune(ch)
		}
	}

	fields = append(fields, strings.TrimSpace(field.String()))
	return fields
}

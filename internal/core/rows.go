package core

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// RowSource reads data rows out of a RawRowReader after reconciling the
// sheet's header row with the expected field list. Header cells are trimmed
// and stripped of any parenthesized remark before matching, so a column
// labelled "Gender (optional)" matches the field displayed as "Gender".
// Matching is case-insensitive, and columns may appear in any order.
type RowSource struct {
	reader  RawRowReader
	columns map[int]string // cell index -> field name
	line    int
}

// NewRowSource resolves the header row and positions the reader at the first
// data row. A header that cannot be reconciled returns *ColumnMismatchError.
func NewRowSource(reader RawRowReader, specs []FieldSpec, mode MatchMode) (*RowSource, error) {
	if err := reader.Rewind(); err != nil {
		return nil, fmt.Errorf("rewind source: %w", err)
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ColumnMismatchError{Missing: displayLabels(specs, false)}
	}
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}

	byLabel := make(map[string]FieldSpec, len(specs))
	for _, spec := range specs {
		byLabel[strings.ToLower(spec.Display())] = spec
	}

	columns := make(map[int]string)
	seen := make(map[string]bool)
	var unknown, duplicated []string

	for idx, cell := range header {
		label := normalizeHeaderCell(cell)
		if label == "" {
			continue
		}
		spec, ok := byLabel[strings.ToLower(label)]
		if !ok {
			unknown = append(unknown, label)
			continue
		}
		if seen[spec.Name] {
			duplicated = append(duplicated, spec.Display())
			continue
		}
		seen[spec.Name] = true
		columns[idx] = spec.Name
	}

	var missing []string
	for _, spec := range specs {
		if !seen[spec.Name] && !spec.Optional {
			missing = append(missing, spec.Display())
		}
	}

	switch mode {
	case MatchStrict:
		if len(missing) > 0 || len(unknown) > 0 || len(duplicated) > 0 {
			return nil, &ColumnMismatchError{Missing: missing, Unknown: unknown, Duplicated: duplicated}
		}
	default:
		if len(missing) > 0 {
			return nil, &ColumnMismatchError{Missing: missing}
		}
	}

	return &RowSource{reader: reader, columns: columns}, nil
}

// Next returns the next non-empty data row. Physically empty rows advance
// the line counter but are otherwise skipped, so line numbers keep matching
// what the user sees in the sheet. The second return is false once the
// source is exhausted.
func (s *RowSource) Next() (Row, bool, error) {
	for {
		cells, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return Row{}, false, nil
		}
		if err != nil {
			return Row{}, false, fmt.Errorf("read row %d: %w", s.line+1, err)
		}
		s.line++

		if rowIsEmpty(cells) {
			continue
		}

		fields := make(map[string]string, len(s.columns))
		for idx, name := range s.columns {
			if idx < len(cells) {
				fields[name] = strings.TrimSpace(cells[idx])
			} else {
				fields[name] = ""
			}
		}
		return Row{Line: s.line, Fields: fields}, true, nil
	}
}

// normalizeHeaderCell trims the cell and drops everything from the first
// opening parenthesis on, where templates carry per-column remarks.
func normalizeHeaderCell(cell string) string {
	cell = strings.TrimSpace(cell)
	if i := strings.IndexAny(cell, "(（"); i >= 0 {
		cell = cell[:i]
	}
	return strings.TrimSpace(cell)
}

func rowIsEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func displayLabels(specs []FieldSpec, includeOptional bool) []string {
	var labels []string
	for _, spec := range specs {
		if spec.Optional && !includeOptional {
			continue
		}
		labels = append(labels, spec.Display())
	}
	return labels
}

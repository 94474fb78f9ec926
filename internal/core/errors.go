package core

import (
	"fmt"
	"strings"
)

// ColumnMismatchError reports a header row that cannot be reconciled with
// the expected field list. It is fatal: no data rows are read.
type ColumnMismatchError struct {
	Missing    []string
	Unknown    []string
	Duplicated []string
}

func (e *ColumnMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unrecognized columns: %s", strings.Join(e.Unknown, ", ")))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, fmt.Sprintf("duplicated columns: %s", strings.Join(e.Duplicated, ", ")))
	}
	if len(parts) == 0 {
		return "import template does not match the expected columns"
	}
	return "import template does not match the expected columns: " + strings.Join(parts, "; ")
}

// MaxRowExceededError reports a sheet with more non-empty data rows than the
// configured cap. It is fatal: a partial import would be misleading.
type MaxRowExceededError struct {
	Max int
}

func (e *MaxRowExceededError) Error() string {
	return fmt.Sprintf("sheet exceeds the maximum of %d data rows", e.Max)
}

// DuplicateError reports two rows inside the batch carrying the same
// composite key.
type DuplicateError struct {
	Fields    []string // display labels of the key fields
	Line      int      // the later, rejected line
	FirstLine int      // the line seen first
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("original row %d: %s duplicates row %d, values must be unique within the sheet",
		e.Line, strings.Join(e.Fields, ", "), e.FirstLine)
}

// RowFailedError wraps the first per-row error when fail-fast is on.
type RowFailedError struct {
	Line     int
	Messages []string
}

func (e *RowFailedError) Error() string {
	return fmt.Sprintf("import aborted at row %d: %s", e.Line, strings.Join(e.Messages, "; "))
}

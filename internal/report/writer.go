// Package report writes error-report artifacts for rejected import rows.
//
// The artifact is a CSV shaped like the import template itself (one column
// per field, in spec order, using display labels) plus a trailing Errors
// column. A user can fix the flagged cells, delete nothing, and re-import
// the same file: tolerant header matching ignores the extra column.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/importkit/internal/core"
)

// ErrorsColumn is the header of the appended messages column.
const ErrorsColumn = "Errors"

// Writer emits artifacts under a fixed directory, one file per import run.
type Writer struct {
	dir string
}

// NewWriter builds a writer. The directory is created on first use.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write renders the rejected rows and returns the artifact path. Row values
// come from the original, pre-formatting snapshots, so the user sees what
// they typed.
func (w *Writer) Write(specs []core.FieldSpec, rejected []core.ErrorRecord) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(w.dir, uuid.NewString()+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	header := make([]string, 0, len(specs)+1)
	for _, spec := range specs {
		header = append(header, spec.Display())
	}
	header = append(header, ErrorsColumn)
	if err := cw.Write(header); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}

	for _, rec := range rejected {
		row := make([]string, 0, len(specs)+1)
		for _, spec := range specs {
			row = append(row, rec.Row.Fields[spec.Name])
		}
		row = append(row, strings.Join(rec.Messages, "; "))
		if err := cw.Write(row); err != nil {
			return "", fmt.Errorf("write report row %d: %w", rec.Line, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flush report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

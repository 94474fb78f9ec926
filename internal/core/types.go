package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/importkit/internal/dict"
)

// Row is one data row extracted from the source. Line is the 1-based position
// among the sheet's data rows and is the stable identity carried through
// every error message.
type Row struct {
	Line   int
	Fields map[string]string
}

// Clone returns a deep copy so formatting never mutates the original
// snapshot kept for error reporting.
func (r Row) Clone() Row {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Row{Line: r.Line, Fields: fields}
}

// FieldSpec defines one import column: how it is labelled in the sheet, how
// entered values are translated and validated, and what happens when the cell
// is left empty.
type FieldSpec struct {
	// Name is the field identifier used in rows, rules and persistence.
	Name string

	// DisplayName is the human label shown in the sheet header and in error
	// messages. Falls back to Name when empty.
	DisplayName string

	// Rules is a declarative validation expression evaluated against the
	// formatted value, in go-playground/validator tag syntax, e.g.
	// "required,max=50" or "email". Empty non-required values skip Rules.
	Rules string

	// Message overrides the failure text when Rules reject the value.
	Message string

	// DateFormat is a Go time layout. Values arriving as serialized native
	// date/time cells are rendered into this layout before Rules run.
	DateFormat string

	// Remark is hint text carried into templates and the error report.
	Remark string

	// Dictionary, when set, translates the entered label into its stored
	// code; a non-empty value missing from the dictionary rejects the row.
	Dictionary *dict.Dictionary

	// Optional marks a column the tolerant header match may omit.
	Optional bool

	// Default is injected when the cell is empty and the task runs in
	// insert mode. HasDefault distinguishes "default is the empty string"
	// from "no default configured".
	Default    string
	HasDefault bool
}

// Display returns the label used for this field in messages.
func (s FieldSpec) Display() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// MatchMode selects how the sheet's header row is reconciled against the
// expected field list.
type MatchMode int

const (
	// MatchTolerant maps the headers it recognizes and ignores the rest.
	// The default.
	MatchTolerant MatchMode = iota + 1

	// MatchStrict requires every non-optional field to appear exactly once
	// and rejects unrecognized or duplicated headers.
	MatchStrict
)

// RawRowReader produces raw cell slices, one per physical sheet row.
// Implementations must preserve empty rows so line numbers stay accurate,
// and must support rewinding to the first row for header resolution.
// Read returns io.EOF when the sheet is exhausted.
type RawRowReader interface {
	Read() ([]string, error)
	Rewind() error
}

// Persister receives the rows that survived every check. When the task is
// configured with a TxRunner and the transaction option is on, the call
// happens inside a transaction.
type Persister interface {
	Persist(ctx context.Context, rows []Row) error
}

// PersistFunc adapts a function to the Persister interface.
type PersistFunc func(ctx context.Context, rows []Row) error

func (f PersistFunc) Persist(ctx context.Context, rows []Row) error {
	return f(ctx, rows)
}

// TxRunner wraps a function in a transaction boundary: either everything the
// function persisted commits, or nothing does.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReportWriter emits a re-importable artifact of the rejected rows, each
// annotated with its error messages, and returns the artifact's path.
type ReportWriter interface {
	Write(specs []FieldSpec, rejected []ErrorRecord) (string, error)
}

// ErrorKind classifies what rejected a row.
type ErrorKind int

const (
	ErrKindFormat ErrorKind = iota + 1
	ErrKindDictionary
	ErrKindRule
	ErrKindDuplicate
)

// String returns the kind name used in logs and JSON responses.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindFormat:
		return "format"
	case ErrKindDictionary:
		return "dictionary"
	case ErrKindRule:
		return "rule"
	case ErrKindDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// FieldError is one per-field problem found while formatting a row.
type FieldError struct {
	Field   string
	Kind    ErrorKind
	Message string
}

// ErrorRecord collects everything wrong with one line. Messages from
// independent sources (formatting, duplicate detection, batch rules)
// accumulate rather than overwrite each other; Kind records the first cause.
type ErrorRecord struct {
	Line     int
	Row      Row // original snapshot, before formatting
	Kind     ErrorKind
	Messages []string
}

// ImportResult is the final partition of one import invocation.
type ImportResult struct {
	ID         string
	Accepted   []Row
	Rejected   []ErrorRecord
	TotalRows  int
	ReportPath string
	Duration   time.Duration
}

// Options tune one import invocation.
type Options struct {
	// MaxRows caps the number of non-empty data rows; exceeding it is a
	// fatal error, not a per-row one. Zero means no cap.
	MaxRows int

	// FailFast aborts the whole import on the first per-row error instead
	// of collecting it. Useful for synchronous imports that want to stop
	// early; leave off for background jobs.
	FailFast bool

	// UseTransaction wraps the persistence callback in the configured
	// TxRunner. Ignored when no runner is configured.
	UseTransaction bool

	// UseDefault selects insert mode: cells left empty after formatting
	// receive the field's configured default. When false (update mode)
	// empty cells are removed from the row entirely so the persister can
	// tell "clear this field" apart from "leave it alone".
	UseDefault bool

	// MatchMode selects strict or tolerant header matching. Zero value
	// means tolerant.
	MatchMode MatchMode

	// ReportInterval is the minimum time between progress callbacks.
	ReportInterval time.Duration
}

// Hooks are optional lifecycle callbacks. Any nil hook is skipped; a nil
// OnFailed re-raises the fatal error to the caller.
type Hooks struct {
	BeforeImport func(ctx context.Context) error
	AfterImport  func(accepted []Row, rejected []ErrorRecord)
	OnReport     func(line int)
	OnFailed     func(err error) error
}

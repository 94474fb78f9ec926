package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/importkit/internal/rules"
)

// Task orchestrates one import: header resolution, per-row formatting and
// duplicate detection, batched cross-reference rules, and persistence.
// Build one with NewTask and run it with Handle; a Task is not safe for
// concurrent Handle calls.
type Task struct {
	specs        []FieldSpec
	displayNames map[string]string
	formatter    *FieldFormatter
	dedup        *DuplicateDetector
	dupKeys      [][]string
	rules        []rules.Validator
	persister    Persister
	tx           TxRunner
	report       ReportWriter
	opts         Options
	hooks        Hooks
	log          *slog.Logger
}

// TaskOption configures optional collaborators.
type TaskOption func(*Task)

// WithRules attaches batched cross-reference validators, run in order after
// the per-row loop.
func WithRules(validators ...rules.Validator) TaskOption {
	return func(t *Task) { t.rules = append(t.rules, validators...) }
}

// WithPersister sets the destination for accepted rows.
func WithPersister(p Persister) TaskOption {
	return func(t *Task) { t.persister = p }
}

// WithTxRunner sets the transaction boundary used when
// Options.UseTransaction is on.
func WithTxRunner(tx TxRunner) TaskOption {
	return func(t *Task) { t.tx = tx }
}

// WithDuplicateKeys enables intra-batch duplicate detection on the given
// composite key field groups.
func WithDuplicateKeys(keys ...[]string) TaskOption {
	return func(t *Task) { t.dupKeys = append(t.dupKeys, keys...) }
}

// WithHooks attaches lifecycle callbacks.
func WithHooks(h Hooks) TaskOption {
	return func(t *Task) { t.hooks = h }
}

// WithReportWriter enables the error-report artifact for rejected rows.
func WithReportWriter(w ReportWriter) TaskOption {
	return func(t *Task) { t.report = w }
}

// WithLogger sets the task logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) TaskOption {
	return func(t *Task) { t.log = log }
}

// NewTask assembles a task from field specs, invocation options and optional
// collaborators.
func NewTask(specs []FieldSpec, opts Options, taskOpts ...TaskOption) *Task {
	t := &Task{
		specs: specs,
		opts:  opts,
	}
	for _, opt := range taskOpts {
		opt(t)
	}

	t.displayNames = make(map[string]string, len(specs))
	for _, spec := range specs {
		t.displayNames[spec.Name] = spec.Display()
	}
	t.formatter = NewFieldFormatter(specs, opts.UseDefault)
	t.dedup = NewDuplicateDetector(t.dupKeys, specs)
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// Handle runs the import pipeline over the reader's rows. Per-row errors end
// up in the result's Rejected partition; fatal conditions (schema mismatch,
// max-row, reader/store/persistence failures) abort with an error, routed
// through the OnFailed hook when one is set.
func (t *Task) Handle(ctx context.Context, reader RawRowReader) (*ImportResult, error) {
	start := time.Now()
	result, err := t.run(ctx, reader)
	if err != nil {
		t.log.Error("import failed", "error", err)
		if t.hooks.OnFailed != nil {
			return nil, t.hooks.OnFailed(err)
		}
		return nil, err
	}

	result.ID = uuid.NewString()
	result.Duration = time.Since(start)
	t.log.Info("import finished",
		"import_id", result.ID,
		"total", result.TotalRows,
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
		"duration", result.Duration)

	if t.hooks.AfterImport != nil {
		t.hooks.AfterImport(result.Accepted, result.Rejected)
	}
	return result, nil
}

func (t *Task) run(ctx context.Context, reader RawRowReader) (*ImportResult, error) {
	if t.hooks.BeforeImport != nil {
		if err := t.hooks.BeforeImport(ctx); err != nil {
			return nil, fmt.Errorf("before-import hook: %w", err)
		}
	}

	src, err := NewRowSource(reader, t.specs, t.opts.MatchMode)
	if err != nil {
		return nil, err
	}

	// Seen-key state is per run, so a Task reused for a second sheet does
	// not report duplicates against the first.
	t.dedup = NewDuplicateDetector(t.dupKeys, t.specs)

	accepted := make(map[int]Row)  // formatted rows still in the running
	originals := make(map[int]Row) // pre-format snapshots for reporting
	failures := make(map[int]*ErrorRecord)
	processed := 0
	lastReport := time.Now()

	for {
		row, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		processed++
		if t.opts.MaxRows > 0 && processed > t.opts.MaxRows {
			return nil, &MaxRowExceededError{Max: t.opts.MaxRows}
		}

		originals[row.Line] = row

		formatted, ferrs := t.formatter.Format(row)
		switch {
		case len(ferrs) > 0:
			msgs := make([]string, len(ferrs))
			for i, fe := range ferrs {
				msgs[i] = fmt.Sprintf("original row %d: %s", row.Line, fe.Message)
			}
			if t.opts.FailFast {
				return nil, &RowFailedError{Line: row.Line, Messages: msgs}
			}
			failures[row.Line] = &ErrorRecord{Line: row.Line, Row: row, Kind: ferrs[0].Kind, Messages: msgs}

		default:
			if dupErr := t.dedup.Check(formatted); dupErr != nil {
				if t.opts.FailFast {
					return nil, &RowFailedError{Line: row.Line, Messages: []string{dupErr.Error()}}
				}
				failures[row.Line] = &ErrorRecord{Line: row.Line, Row: row, Kind: ErrKindDuplicate, Messages: []string{dupErr.Error()}}
				break
			}
			accepted[row.Line] = formatted
		}

		if t.hooks.OnReport != nil && t.opts.ReportInterval > 0 && time.Since(lastReport) >= t.opts.ReportInterval {
			t.hooks.OnReport(row.Line)
			lastReport = time.Now()
		}
	}

	if err := t.validateRules(ctx, accepted, originals, failures); err != nil {
		return nil, err
	}

	rows := orderedRows(accepted)
	if t.persister != nil && len(rows) > 0 {
		persist := func(ctx context.Context) error { return t.persister.Persist(ctx, rows) }
		if t.tx != nil && t.opts.UseTransaction {
			err = t.tx.RunInTx(ctx, persist)
		} else {
			err = persist(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("persist rows: %w", err)
		}
	}

	rejected := orderedRecords(failures)
	result := &ImportResult{Accepted: rows, Rejected: rejected, TotalRows: processed}

	if t.report != nil && len(rejected) > 0 {
		path, err := t.report.Write(t.specs, rejected)
		if err != nil {
			t.log.Warn("error report not written", "error", err)
		} else {
			result.ReportPath = path
		}
	}
	return result, nil
}

// validateRules runs every rule against the same accepted set, so a row
// flagged by one rule is still visible to the next and messages from
// independent rules accumulate. Flagged rows are demoted afterwards.
func (t *Task) validateRules(ctx context.Context, accepted, originals map[int]Row, failures map[int]*ErrorRecord) error {
	if len(t.rules) == 0 || len(accepted) == 0 {
		return nil
	}

	batch := make(rules.Rows, len(accepted))
	for line, row := range accepted {
		batch[line] = rules.Row(row.Fields)
	}

	flagged := make(map[int]bool)
	for _, rv := range t.rules {
		ok, err := rv.Validate(ctx, batch, t.displayNames)
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		errs := rv.Errors()
		if t.opts.FailFast {
			line := minLine(errs)
			return &RowFailedError{Line: line, Messages: errs[line]}
		}
		for line, msgs := range errs {
			rec := failures[line]
			if rec == nil {
				rec = &ErrorRecord{Line: line, Row: originals[line], Kind: ErrKindRule}
				failures[line] = rec
			}
			rec.Messages = append(rec.Messages, msgs...)
			flagged[line] = true
		}
	}

	for line := range flagged {
		delete(accepted, line)
	}
	return nil
}

func orderedRows(byLine map[int]Row) []Row {
	rows := make([]Row, 0, len(byLine))
	for _, row := range byLine {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Line < rows[j].Line })
	return rows
}

func orderedRecords(byLine map[int]*ErrorRecord) []ErrorRecord {
	records := make([]ErrorRecord, 0, len(byLine))
	for _, rec := range byLine {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Line < records[j].Line })
	return records
}

func minLine(errs map[int][]string) int {
	first := -1
	for line := range errs {
		if first < 0 || line < first {
			first = line
		}
	}
	return first
}

package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/importkit/internal/rules"
)

// staticStore implements rules.Query by returning the same records for every
// batched query; the rule's own grouping decides which rows they affect.
type staticStore struct {
	records []rules.Record
	calls   int
}

func (s *staticStore) Select(context.Context, rules.BatchQuery) ([]rules.Record, error) {
	s.calls++
	return s.records, nil
}

type capturingPersister struct {
	rows []Row
	err  error
}

func (p *capturingPersister) Persist(_ context.Context, rows []Row) error {
	if p.err != nil {
		return p.err
	}
	p.rows = append(p.rows, rows...)
	return nil
}

type capturingTxRunner struct {
	calls int
	err   error
}

func (tx *capturingTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.calls++
	if tx.err != nil {
		return tx.err
	}
	return fn(ctx)
}

func taskSpecs() []FieldSpec {
	return []FieldSpec{
		{Name: "name", DisplayName: "Name", Rules: "required"},
		{Name: "email", DisplayName: "Email"},
	}
}

func userSheet(rows ...[]string) *sliceReader {
	all := append([][]string{{"Name", "Email"}}, rows...)
	return &sliceReader{rows: all}
}

func TestTaskPartitionsRows(t *testing.T) {
	store := &staticStore{records: []rules.Record{{"email": "taken@example.com"}}}
	unique, err := rules.NewUnique(store, rules.Config{KeyGroups: []rules.KeyGroup{rules.Key("email")}})
	if err != nil {
		t.Fatalf("NewUnique: %v", err)
	}

	persister := &capturingPersister{}
	task := NewTask(taskSpecs(), Options{},
		WithDuplicateKeys([]string{"name"}),
		WithRules(unique),
		WithPersister(persister))

	result, err := task.Handle(context.Background(), userSheet(
		[]string{"alice", "a@example.com"},     // line 1: clean
		[]string{"alice", "b@example.com"},     // line 2: duplicate name
		[]string{"carol", "taken@example.com"}, // line 3: email already stored
		[]string{"", "d@example.com"},          // line 4: required name missing
	))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if result.TotalRows != 4 {
		t.Errorf("TotalRows = %d, want 4", result.TotalRows)
	}
	if len(result.Accepted) != 1 || result.Accepted[0].Line != 1 {
		t.Fatalf("Accepted = %+v, want only line 1", result.Accepted)
	}
	if len(persister.rows) != 1 || persister.rows[0].Fields["name"] != "alice" {
		t.Errorf("persisted = %+v, want only the clean row", persister.rows)
	}

	if len(result.Rejected) != 3 {
		t.Fatalf("Rejected = %+v, want lines 2, 3 and 4", result.Rejected)
	}
	byLine := make(map[int]ErrorRecord)
	for _, rec := range result.Rejected {
		byLine[rec.Line] = rec
	}
	if rec := byLine[2]; rec.Kind != ErrKindDuplicate {
		t.Errorf("line 2 kind = %v, want duplicate", rec.Kind)
	}
	if rec := byLine[3]; rec.Kind != ErrKindRule ||
		!strings.Contains(rec.Messages[0], "original row 3: Email already exists") {
		t.Errorf("line 3 = %+v, want the unique-rule message", rec)
	}
	if rec := byLine[4]; rec.Kind != ErrKindFormat {
		t.Errorf("line 4 kind = %v, want format", rec.Kind)
	}
	if result.ID == "" {
		t.Error("result has no ID")
	}
}

func TestTaskBatchesRuleQueries(t *testing.T) {
	store := &staticStore{}
	unique, err := rules.NewUnique(store, rules.Config{KeyGroups: []rules.KeyGroup{rules.Key("email")}})
	if err != nil {
		t.Fatalf("NewUnique: %v", err)
	}

	var sheet [][]string
	for i := 0; i < 40; i++ {
		sheet = append(sheet, []string{"user" + string(rune('a'+i%26)) + string(rune('a'+i/26)), "u" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + "@example.com"})
	}
	task := NewTask(taskSpecs(), Options{}, WithRules(unique))

	if _, err := task.Handle(context.Background(), userSheet(sheet...)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if store.calls != 1 {
		t.Errorf("store round trips = %d, want 1 for the whole batch", store.calls)
	}
}

func TestTaskMaxRows(t *testing.T) {
	task := NewTask(taskSpecs(), Options{MaxRows: 2})

	_, err := task.Handle(context.Background(), userSheet(
		[]string{"a", ""}, []string{"b", ""}, []string{"c", ""},
	))
	var maxErr *MaxRowExceededError
	if !errors.As(err, &maxErr) {
		t.Fatalf("Handle error = %v, want *MaxRowExceededError", err)
	}
	if maxErr.Max != 2 {
		t.Errorf("Max = %d, want 2", maxErr.Max)
	}
}

func TestTaskFailFast(t *testing.T) {
	persister := &capturingPersister{}
	task := NewTask(taskSpecs(), Options{FailFast: true}, WithPersister(persister))

	_, err := task.Handle(context.Background(), userSheet(
		[]string{"alice", ""},
		[]string{"", "x@example.com"}, // first failure: required name missing
		[]string{"bob", ""},
	))
	var rowErr *RowFailedError
	if !errors.As(err, &rowErr) {
		t.Fatalf("Handle error = %v, want *RowFailedError", err)
	}
	if rowErr.Line != 2 {
		t.Errorf("aborted at line %d, want 2", rowErr.Line)
	}
	if len(persister.rows) != 0 {
		t.Errorf("persisted %d rows after abort, want none", len(persister.rows))
	}
}

func TestTaskFailFastDuplicate(t *testing.T) {
	task := NewTask(taskSpecs(), Options{FailFast: true},
		WithDuplicateKeys([]string{"name"}))

	_, err := task.Handle(context.Background(), userSheet(
		[]string{"alice", "a@example.com"},
		[]string{"alice", "b@example.com"},
	))
	var rowErr *RowFailedError
	if !errors.As(err, &rowErr) {
		t.Fatalf("Handle error = %v, want *RowFailedError", err)
	}
	if rowErr.Line != 2 {
		t.Errorf("aborted at line %d, want 2", rowErr.Line)
	}
	if len(rowErr.Messages) != 1 || !strings.Contains(rowErr.Messages[0], "duplicates row 1") {
		t.Errorf("Messages = %v, want the duplicate message", rowErr.Messages)
	}
}

func TestTaskReuse(t *testing.T) {
	// A Task serving one sheet after another must judge each on its own:
	// no phantom duplicates from the first run, no stale rule errors.
	store := &staticStore{records: []rules.Record{{"email": "taken@example.com"}}}
	unique, err := rules.NewUnique(store, rules.Config{KeyGroups: []rules.KeyGroup{rules.Key("email")}})
	if err != nil {
		t.Fatalf("NewUnique: %v", err)
	}
	task := NewTask(taskSpecs(), Options{},
		WithDuplicateKeys([]string{"name"}),
		WithRules(unique))

	first, err := task.Handle(context.Background(), userSheet(
		[]string{"alice", "a@example.com"},
		[]string{"bob", "taken@example.com"},
	))
	if err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if len(first.Accepted) != 1 || len(first.Rejected) != 1 {
		t.Fatalf("first partition = %+v", first)
	}

	second, err := task.Handle(context.Background(), userSheet(
		[]string{"alice", "fresh@example.com"},
	))
	if err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if len(second.Accepted) != 1 || len(second.Rejected) != 0 {
		t.Errorf("second partition = %+v, want the row accepted", second)
	}
}

func TestTaskColumnMismatchIsFatal(t *testing.T) {
	task := NewTask(taskSpecs(), Options{})

	_, err := task.Handle(context.Background(), &sliceReader{rows: [][]string{
		{"Nickname", "Email"},
	}})
	var mismatch *ColumnMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Handle error = %v, want *ColumnMismatchError", err)
	}
}

func TestTaskTransaction(t *testing.T) {
	t.Run("wraps persistence when requested", func(t *testing.T) {
		tx := &capturingTxRunner{}
		persister := &capturingPersister{}
		task := NewTask(taskSpecs(), Options{UseTransaction: true},
			WithPersister(persister), WithTxRunner(tx))

		if _, err := task.Handle(context.Background(), userSheet([]string{"alice", ""})); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if tx.calls != 1 {
			t.Errorf("tx calls = %d, want 1", tx.calls)
		}
		if len(persister.rows) != 1 {
			t.Errorf("persisted = %d rows, want 1", len(persister.rows))
		}
	})

	t.Run("skips the runner when not requested", func(t *testing.T) {
		tx := &capturingTxRunner{}
		task := NewTask(taskSpecs(), Options{},
			WithPersister(&capturingPersister{}), WithTxRunner(tx))

		if _, err := task.Handle(context.Background(), userSheet([]string{"alice", ""})); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if tx.calls != 0 {
			t.Errorf("tx calls = %d, want 0", tx.calls)
		}
	})

	t.Run("persistence failure is fatal", func(t *testing.T) {
		task := NewTask(taskSpecs(), Options{},
			WithPersister(&capturingPersister{err: errors.New("connection reset")}))

		_, err := task.Handle(context.Background(), userSheet([]string{"alice", ""}))
		if err == nil || !strings.Contains(err.Error(), "persist rows") {
			t.Fatalf("Handle error = %v, want wrapped persistence failure", err)
		}
	})
}

func TestTaskHooks(t *testing.T) {
	t.Run("before-import error aborts", func(t *testing.T) {
		task := NewTask(taskSpecs(), Options{}, WithHooks(Hooks{
			BeforeImport: func(context.Context) error { return errors.New("quota exhausted") },
		}))

		_, err := task.Handle(context.Background(), userSheet([]string{"alice", ""}))
		if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
			t.Fatalf("Handle error = %v, want the hook's failure", err)
		}
	})

	t.Run("after-import receives the partition", func(t *testing.T) {
		var gotAccepted, gotRejected int
		task := NewTask(taskSpecs(), Options{}, WithHooks(Hooks{
			AfterImport: func(accepted []Row, rejected []ErrorRecord) {
				gotAccepted, gotRejected = len(accepted), len(rejected)
			},
		}))

		if _, err := task.Handle(context.Background(), userSheet(
			[]string{"alice", ""},
			[]string{"", "x@example.com"}, // required name missing
		)); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if gotAccepted != 1 || gotRejected != 1 {
			t.Errorf("AfterImport got (%d, %d), want (1, 1)", gotAccepted, gotRejected)
		}
	})

	t.Run("on-failed can translate the error", func(t *testing.T) {
		translated := errors.New("import unavailable")
		task := NewTask(taskSpecs(), Options{MaxRows: 1}, WithHooks(Hooks{
			OnFailed: func(error) error { return translated },
		}))

		_, err := task.Handle(context.Background(), userSheet(
			[]string{"a", ""}, []string{"b", ""},
		))
		if !errors.Is(err, translated) {
			t.Fatalf("Handle error = %v, want the translated error", err)
		}
	})

	t.Run("on-failed can swallow the error", func(t *testing.T) {
		task := NewTask(taskSpecs(), Options{MaxRows: 1}, WithHooks(Hooks{
			OnFailed: func(error) error { return nil },
		}))

		result, err := task.Handle(context.Background(), userSheet(
			[]string{"a", ""}, []string{"b", ""},
		))
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if result != nil {
			t.Errorf("result = %+v, want nil after a swallowed failure", result)
		}
	})

	t.Run("progress fires at the configured interval", func(t *testing.T) {
		var reports []int
		task := NewTask(taskSpecs(), Options{ReportInterval: time.Nanosecond}, WithHooks(Hooks{
			OnReport: func(line int) { reports = append(reports, line) },
		}))

		if _, err := task.Handle(context.Background(), userSheet(
			[]string{"a", ""}, []string{"b", ""}, []string{"c", ""},
		)); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if len(reports) == 0 {
			t.Error("no progress callbacks fired")
		}
	})
}

func TestTaskRuleMessagesAccumulate(t *testing.T) {
	// Two independent rules flag the same line; both messages survive.
	store := &staticStore{records: []rules.Record{{"email": "taken@example.com", "name": "carol"}}}
	uniqueEmail, err := rules.NewUnique(store, rules.Config{KeyGroups: []rules.KeyGroup{rules.Key("email")}})
	if err != nil {
		t.Fatalf("NewUnique: %v", err)
	}
	uniqueName, err := rules.NewUnique(store, rules.Config{KeyGroups: []rules.KeyGroup{rules.Key("name")}})
	if err != nil {
		t.Fatalf("NewUnique: %v", err)
	}

	task := NewTask(taskSpecs(), Options{}, WithRules(uniqueEmail, uniqueName))

	result, err := task.Handle(context.Background(), userSheet(
		[]string{"carol", "taken@example.com"},
	))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("Rejected = %+v, want one record", result.Rejected)
	}
	if got := len(result.Rejected[0].Messages); got != 2 {
		t.Errorf("messages = %d, want 2 (one per rule)", got)
	}
}

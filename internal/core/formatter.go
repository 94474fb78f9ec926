package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// nativeDateLayouts are the serializations a spreadsheet reader produces for
// typed date/time cells. Values already entered as text pass through
// untouched and are judged by the field's Rules instead.
var nativeDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FieldFormatter normalizes and validates a single row against the field
// specs. Formatting runs in a fixed order: dictionary substitution first,
// then date rendering, then the declarative rules, and finally default
// injection (insert mode) or empty-field elision (update mode).
//
// Rule expressions use go-playground/validator tag syntax and are evaluated
// per value; an unknown tag in a spec is a programming error and panics the
// first time the field is validated, which surfaces during definition tests
// rather than in production imports.
type FieldFormatter struct {
	specs      []FieldSpec
	useDefault bool
	validate   *validator.Validate

	// precomputed "must be one of" texts, keyed by field name
	dictMessages map[string]string
}

// NewFieldFormatter builds a formatter. useDefault selects insert mode
// (empty cells receive configured defaults) over update mode (empty cells
// are removed from the row).
func NewFieldFormatter(specs []FieldSpec, useDefault bool) *FieldFormatter {
	f := &FieldFormatter{
		specs:        specs,
		useDefault:   useDefault,
		validate:     validator.New(),
		dictMessages: make(map[string]string),
	}
	for _, spec := range specs {
		if spec.Dictionary != nil {
			f.dictMessages[spec.Name] = fmt.Sprintf("%s must be one of: %s",
				spec.Display(), strings.Join(spec.Dictionary.Keys(), ", "))
		}
	}
	return f
}

// Format returns the formatted copy of the row, or the list of per-field
// errors when any check fails. The input row is never mutated. A row that
// fails returns a zero Row; callers keep their original snapshot for
// reporting.
func (f *FieldFormatter) Format(row Row) (Row, []FieldError) {
	out := row.Clone()
	var errs []FieldError

	for _, spec := range f.specs {
		value, present := out.Fields[spec.Name]
		if !present {
			continue
		}

		if spec.Dictionary != nil && value != "" {
			code, ok := spec.Dictionary.Get(value)
			if !ok {
				errs = append(errs, FieldError{
					Field:   spec.Name,
					Kind:    ErrKindDictionary,
					Message: f.dictMessages[spec.Name],
				})
				continue
			}
			value = code
			out.Fields[spec.Name] = value
		}

		if spec.DateFormat != "" && value != "" {
			if t, ok := parseNativeDate(value); ok {
				value = t.Format(spec.DateFormat)
				out.Fields[spec.Name] = value
			}
		}

		if spec.Rules == "" {
			continue
		}
		if value == "" && !strings.Contains(spec.Rules, "required") {
			continue
		}
		if err := f.validate.Var(value, spec.Rules); err != nil {
			errs = append(errs, f.ruleError(spec, err))
		}
	}

	if len(errs) > 0 {
		return Row{}, errs
	}

	for _, spec := range f.specs {
		if v, present := out.Fields[spec.Name]; present && v == "" {
			if f.useDefault {
				if spec.HasDefault {
					out.Fields[spec.Name] = spec.Default
				}
			} else {
				delete(out.Fields, spec.Name)
			}
		}
	}

	return out, nil
}

func (f *FieldFormatter) ruleError(spec FieldSpec, err error) FieldError {
	if spec.Message != "" {
		return FieldError{Field: spec.Name, Kind: ErrKindFormat, Message: fmt.Sprintf("%s %s", spec.Display(), spec.Message)}
	}

	var verrs validator.ValidationErrors
	msg := fmt.Sprintf("%s is invalid", spec.Display())
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s fails the %s=%s check", spec.Display(), fe.Tag(), fe.Param())
		} else {
			msg = fmt.Sprintf("%s fails the %s check", spec.Display(), fe.Tag())
		}
	}
	return FieldError{Field: spec.Name, Kind: ErrKindFormat, Message: msg}
}

func parseNativeDate(value string) (time.Time, bool) {
	for _, layout := range nativeDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

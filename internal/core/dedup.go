package core

import (
	"github.com/JonMunkholm/importkit/internal/rowkey"
)

// DuplicateDetector flags rows inside one batch that carry the same value
// for any configured composite key. State accumulates across Check calls, so
// one detector instance covers exactly one import invocation.
type DuplicateDetector struct {
	groups []dupGroup
}

type dupGroup struct {
	fields []string
	labels []string
	seen   map[string]int // composite key -> first line
}

// NewDuplicateDetector builds a detector for the given key field groups.
// Display labels for messages are resolved through specs; fields without a
// spec fall back to their raw name.
func NewDuplicateDetector(keys [][]string, specs []FieldSpec) *DuplicateDetector {
	displays := make(map[string]string, len(specs))
	for _, spec := range specs {
		displays[spec.Name] = spec.Display()
	}

	d := &DuplicateDetector{}
	for _, fields := range keys {
		g := dupGroup{
			fields: fields,
			labels: make([]string, len(fields)),
			seen:   make(map[string]int),
		}
		for i, f := range fields {
			if label, ok := displays[f]; ok {
				g.labels[i] = label
			} else {
				g.labels[i] = f
			}
		}
		d.groups = append(d.groups, g)
	}
	return d
}

// Check records the row's keys and returns a DuplicateError when any key was
// already seen on an earlier line. Rows missing a value for any field of a
// key are exempt from that key.
func (d *DuplicateDetector) Check(row Row) *DuplicateError {
	for i := range d.groups {
		g := &d.groups[i]
		values, ok := rowkey.Values(row.Fields, g.fields)
		if !ok {
			continue
		}
		key := rowkey.Join(values)
		if first, dup := g.seen[key]; dup {
			return &DuplicateError{Fields: g.labels, Line: row.Line, FirstLine: first}
		}
		g.seen[key] = row.Line
	}
	return nil
}

package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Equal asserts that, when a row's key matches a stored record, the row and
// the record agree on a configured set of fields. Rows whose key matches
// nothing are not checked here: there is nothing to compare against, and
// existence is Exists's job.
//
// Compared fields may be plain columns or dot-paths through a declared
// relation ("category.code"); dot-paths require a matching entry in
// Config.Relations and cause the store to load that relation for the
// batched query.
type Equal struct {
	*batch

	// alias → store field, in deterministic order
	equalFields [][2]string

	// emptyPasses turns this into EmptyOrEqual: an empty value on either
	// side is "no assertion" rather than a mismatch.
	emptyPasses bool
}

// NewEqual builds an Equal rule. equalFields maps row field aliases to the
// store fields (optionally relation dot-paths) they must agree with.
func NewEqual(q Query, cfg Config, equalFields map[string]string) (*Equal, error) {
	b, err := newBatch(q, cfg, "does not match the existing record, please correct it")
	if err != nil {
		return nil, err
	}
	if len(equalFields) == 0 {
		return nil, fmt.Errorf("equal rule requires at least one compared field")
	}

	aliases := make([]string, 0, len(equalFields))
	for alias := range equalFields {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	r := &Equal{batch: b}
	for _, alias := range aliases {
		field := equalFields[alias]
		if rel, ok := splitRelation(field); ok {
			if _, declared := cfg.Relations[rel]; !declared {
				return nil, fmt.Errorf("equal rule references relation %q on field %q but no relation is configured", rel, field)
			}
		}
		r.equalFields = append(r.equalFields, [2]string{alias, field})
	}
	return r, nil
}

// splitRelation returns the relation name of a dot-path field.
func splitRelation(field string) (string, bool) {
	if i := strings.IndexByte(field, '.'); i > 0 {
		return field[:i], true
	}
	return "", false
}

// Validate issues one batched query per key-group and compares each matched
// record against its row, producing one message per mismatched field.
func (r *Equal) Validate(ctx context.Context, rows Rows, displayNames map[string]string) (bool, error) {
	return r.run(ctx, rows, r.prepare, nil, func(g attrGroup, groups map[string][]Record, e lineEntry) []string {
		group, ok := groups[e.key]
		if !ok {
			return nil
		}
		rec := group[0]

		var bodies []string
		for _, ef := range r.equalFields {
			alias, field := ef[0], ef[1]

			stored := stringify(rec.Get(field))
			entered := e.row[alias]

			if r.emptyPasses && (stored == "" || entered == "") {
				continue
			}
			if stored == entered {
				continue
			}

			label := alias
			if dn, ok := displayNames[alias]; ok && dn != "" {
				label = dn
			}
			bodies = append(bodies, label+" "+r.message(alias))
		}
		return bodies
	})
}

// prepare widens the select set with the compared fields. Relations are
// attached only for key-groups whose compared fields actually use a dot-path,
// so queries without relation traversal stay plain.
func (r *Equal) prepare(q *BatchQuery, _ attrGroup) {
	seenRel := make(map[string]bool)
	for _, ef := range r.equalFields {
		field := ef[1]
		if !containsField(q.Select, field) {
			q.Select = append(q.Select, field)
		}
		if rel, ok := splitRelation(field); ok && !seenRel[rel] {
			seenRel[rel] = true
			q.Relations = append(q.Relations, r.cfg.Relations[rel])
		}
	}
}

func containsField(fields []string, f string) bool {
	for _, have := range fields {
		if have == f {
			return true
		}
	}
	return false
}

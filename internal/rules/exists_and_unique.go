package rules

import (
	"context"
	"fmt"
	"sort"
)

// ExistsAndUnique asserts that a row's key resolves to exactly one stored
// record, with a second chance when it resolves to several: a set of
// optional disambiguator fields, compared only when the row supplies them.
//
// The match runs in two phases per row:
//
//  1. Group the fetched records by the primary key-group. No group: the row
//     fails as not-found. One record: success.
//  2. Several records: filter the group by the disambiguator values the row
//     actually filled in. No values supplied: not-unique (there is no way to
//     tell the candidates apart). Filtered to zero: not-found (the key
//     matched, the disambiguators matched nothing). Filtered to one:
//     success. Still several: not-unique.
type ExistsAndUnique struct {
	*batch

	// alias → store column, in deterministic order
	disambiguators [][2]string

	notFoundMsg  string
	notUniqueMsg string
}

// ExistsAndUniqueOption tweaks the rule's messages.
type ExistsAndUniqueOption func(*ExistsAndUnique)

// WithNotFoundMessage overrides the not-found failure text.
func WithNotFoundMessage(msg string) ExistsAndUniqueOption {
	return func(r *ExistsAndUnique) { r.notFoundMsg = msg }
}

// WithNotUniqueMessage overrides the not-unique failure text.
func WithNotUniqueMessage(msg string) ExistsAndUniqueOption {
	return func(r *ExistsAndUnique) { r.notUniqueMsg = msg }
}

// NewExistsAndUnique builds the rule. disambiguators lists the optional row
// fields used to tell apart multiple records matching the same primary key;
// they are translated through cfg.Aliases like key-group fields.
func NewExistsAndUnique(q Query, cfg Config, disambiguators []string, opts ...ExistsAndUniqueOption) (*ExistsAndUnique, error) {
	b, err := newBatch(q, cfg, "")
	if err != nil {
		return nil, err
	}

	r := &ExistsAndUnique{
		batch:        b,
		notFoundMsg:  "no matching record found",
		notUniqueMsg: "matches more than one record",
	}

	sorted := append([]string(nil), disambiguators...)
	sort.Strings(sorted)
	for _, alias := range sorted {
		if alias == "" {
			return nil, fmt.Errorf("exists-and-unique rule has an empty disambiguator field")
		}
		r.disambiguators = append(r.disambiguators, [2]string{alias, cfg.column(alias)})
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Validate issues one batched query per key-group and applies the two-phase
// match to every planned row.
func (r *ExistsAndUnique) Validate(ctx context.Context, rows Rows, displayNames map[string]string) (bool, error) {
	return r.run(ctx, rows, r.prepare, r.extraConds, func(_ attrGroup, groups map[string][]Record, e lineEntry) []string {
		ok, msg := r.checkGroup(groups, e)
		if ok {
			return nil
		}
		return []string{msg}
	})
}

// prepare selects the disambiguator columns so phase 2 can compare them.
func (r *ExistsAndUnique) prepare(q *BatchQuery, _ attrGroup) {
	for _, d := range r.disambiguators {
		if !containsField(q.Select, d[1]) {
			q.Select = append(q.Select, d[1])
		}
	}
}

// extraConds narrows each row's branch by the disambiguator values the row
// supplied, so the batched query fetches only plausible candidates.
func (r *ExistsAndUnique) extraConds(row Row) []Cond {
	var conds []Cond
	for _, d := range r.disambiguators {
		if v, ok := row[d[0]]; ok && v != "" {
			conds = append(conds, Cond{Field: d[1], Op: "=", Value: v})
		}
	}
	return conds
}

func (r *ExistsAndUnique) checkGroup(groups map[string][]Record, e lineEntry) (bool, string) {
	group, ok := groups[e.key]
	if !ok {
		return false, r.notFoundMsg
	}
	if len(group) == 1 {
		return true, ""
	}

	supplied := make([][2]string, 0, len(r.disambiguators))
	for _, d := range r.disambiguators {
		if v, ok := e.row[d[0]]; ok && v != "" {
			supplied = append(supplied, [2]string{d[1], v})
		}
	}
	if len(supplied) == 0 {
		return false, r.notUniqueMsg
	}

	matched := 0
	for _, rec := range group {
		agrees := true
		for _, s := range supplied {
			if stringify(rec.Get(s[0])) != s[1] {
				agrees = false
				break
			}
		}
		if agrees {
			matched++
		}
	}

	switch {
	case matched == 0:
		return false, r.notFoundMsg
	case matched > 1:
		return false, r.notUniqueMsg
	default:
		return true, ""
	}
}

package rules

import "context"

// Unique asserts that no stored record matches a row's key-group values: the
// inverse of Exists, used to keep imported values from colliding with data
// already in the store. IgnoreFields typically carries the row's own
// identifier so an update import does not collide with itself.
type Unique struct {
	*batch
}

// NewUnique builds a Unique rule.
func NewUnique(q Query, cfg Config) (*Unique, error) {
	b, err := newBatch(q, cfg, "already exists, remove duplicates before importing")
	if err != nil {
		return nil, err
	}
	return &Unique{batch: b}, nil
}

// Validate issues one batched query per key-group and flags every row whose
// key matched a stored record.
func (r *Unique) Validate(ctx context.Context, rows Rows, displayNames map[string]string) (bool, error) {
	return r.run(ctx, rows, nil, nil, func(g attrGroup, groups map[string][]Record, e lineEntry) []string {
		if _, ok := groups[e.key]; !ok {
			return nil
		}
		return []string{displayLabel(g.aliases, displayNames) + " " + r.message(g.name)}
	})
}

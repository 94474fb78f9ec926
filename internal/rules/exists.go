package rules

import "context"

// Exists asserts that every row's key-group values match a stored record.
// Typical use: an import that references entities which must already be in
// the system (a book row naming its category, a user row naming a
// department).
//
//	rule, err := rules.NewExists(store, rules.Config{
//	    KeyGroups: []rules.KeyGroup{rules.Key("id_number", "user_type")},
//	    Wheres:    []rules.Cond{{Field: "department_id", Op: "=", Value: 123}},
//	    Messages:  map[string]string{"id_number": "id number is not registered"},
//	})
type Exists struct {
	*batch
}

// NewExists builds an Exists rule. The config must declare at least one
// key-group.
func NewExists(q Query, cfg Config) (*Exists, error) {
	b, err := newBatch(q, cfg, "does not exist, make sure the data is present before importing")
	if err != nil {
		return nil, err
	}
	return &Exists{batch: b}, nil
}

// Validate issues one batched query per key-group and flags every row whose
// key matched no stored record.
func (r *Exists) Validate(ctx context.Context, rows Rows, displayNames map[string]string) (bool, error) {
	return r.run(ctx, rows, nil, nil, func(g attrGroup, groups map[string][]Record, e lineEntry) []string {
		if _, ok := groups[e.key]; ok {
			return nil
		}
		return []string{displayLabel(g.aliases, displayNames) + " " + r.message(g.name)}
	})
}

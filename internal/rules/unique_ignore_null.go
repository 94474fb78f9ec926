package rules

import "sort"

// NewUniqueIgnoreFieldNull builds a Unique rule whose ignore conditions also
// match records where the ignored column is NULL. Useful when the identifier
// column is nullable: a plain "col != value" comparison silently drops NULL
// rows from the exclusion, so records without an identifier would still
// collide.
//
// ignoreNull maps each ignore field to whether NULL stored values should be
// treated as "different from the row" (true) or excluded the plain way
// (false).
func NewUniqueIgnoreFieldNull(q Query, cfg Config, ignoreNull map[string]bool) (*Unique, error) {
	fields := make([]string, 0, len(ignoreNull))
	for f := range ignoreNull {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	cfg.IgnoreFields = fields

	rule, err := NewUnique(q, cfg)
	if err != nil {
		return nil, err
	}
	rule.ignoreNull = ignoreNull
	return rule, nil
}

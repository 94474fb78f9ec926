package rules

// NewEmptyOrEqual builds an Equal variant that only fails when both sides of
// a comparison are non-empty and disagree: a NULL/empty stored field asserts
// nothing, and an empty cell in the sheet asserts nothing. Use it for fields
// the importer may leave blank to mean "keep whatever the system has".
func NewEmptyOrEqual(q Query, cfg Config, equalFields map[string]string) (*Equal, error) {
	rule, err := NewEqual(q, cfg, equalFields)
	if err != nil {
		return nil, err
	}
	rule.emptyPasses = true
	return rule, nil
}

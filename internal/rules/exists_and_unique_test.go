package rules

import (
	"context"
	"testing"
)

func TestExistsAndUnique(t *testing.T) {
	tests := []struct {
		name           string
		records        []Record
		row            Row
		disambiguators []string
		wantOK         bool
		fragment       string
	}{
		{
			name:    "exactly one match succeeds",
			records: []Record{{"name": "foo"}},
			row:     Row{"name": "foo"},
			wantOK:  true,
		},
		{
			name:     "zero matches is not found",
			records:  nil,
			row:      Row{"name": "foo"},
			wantOK:   false,
			fragment: "no matching record found",
		},
		{
			name:     "multiple matches without disambiguator is not unique",
			records:  []Record{{"name": "foo"}, {"name": "foo"}},
			row:      Row{"name": "foo"},
			wantOK:   false,
			fragment: "matches more than one record",
		},
		{
			name:           "multiple matches disambiguated to one succeeds",
			records:        []Record{{"name": "foo", "id": "1"}, {"name": "foo", "id": "2"}},
			row:            Row{"name": "foo", "id": "1"},
			disambiguators: []string{"id"},
			wantOK:         true,
		},
		{
			name:           "disambiguator matching no candidate is not found",
			records:        []Record{{"name": "foo", "id": "1"}, {"name": "foo", "id": "2"}},
			row:            Row{"name": "foo", "id": "3"},
			disambiguators: []string{"id"},
			wantOK:         false,
			fragment:       "no matching record found",
		},
		{
			name:           "disambiguator matching several candidates is not unique",
			records:        []Record{{"name": "foo", "id": "2"}, {"name": "foo", "id": "2"}},
			row:            Row{"name": "foo", "id": "2"},
			disambiguators: []string{"id"},
			wantOK:         false,
			fragment:       "matches more than one record",
		},
		{
			name:           "row without disambiguator value stays ambiguous",
			records:        []Record{{"name": "foo", "id": "1"}, {"name": "foo", "id": "2"}},
			row:            Row{"name": "foo", "id": ""},
			disambiguators: []string{"id"},
			wantOK:         false,
			fragment:       "matches more than one record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{records: tt.records}
			rule, err := NewExistsAndUnique(store,
				Config{KeyGroups: []KeyGroup{Key("name")}}, tt.disambiguators)
			if err != nil {
				t.Fatalf("NewExistsAndUnique: %v", err)
			}

			ok, err := rule.Validate(context.Background(), oneRow(tt.row), nil)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("Validate = %v, want %v (errors: %v)", ok, tt.wantOK, rule.Errors())
			}
			if tt.fragment != "" {
				assertLineError(t, rule.Errors(), 1, tt.fragment)
			}
		})
	}
}

func TestExistsAndUniqueCustomMessages(t *testing.T) {
	store := &fakeStore{}
	rule, err := NewExistsAndUnique(store,
		Config{KeyGroups: []KeyGroup{Key("name")}}, nil,
		WithNotFoundMessage("no user goes by that name"),
		WithNotUniqueMessage("several users go by that name"))
	if err != nil {
		t.Fatalf("NewExistsAndUnique: %v", err)
	}

	ok, err := rule.Validate(context.Background(), oneRow(Row{"name": "foo"}), nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("Validate = true, want not-found")
	}
	assertLineError(t, rule.Errors(), 1, "original row 1: no user goes by that name")
}

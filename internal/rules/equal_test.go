package rules

import (
	"context"
	"testing"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name     string
		records  []Record
		row      Row
		wantOK   bool
		fragment string
	}{
		{
			name:    "no matching record is not checked",
			records: nil,
			row:     Row{"isbn": "123", "category_code": "A1"},
			wantOK:  true,
		},
		{
			name:    "matching record with equal field",
			records: []Record{{"isbn": "123", "category_code": "A1"}},
			row:     Row{"isbn": "123", "category_code": "A1"},
			wantOK:  true,
		},
		{
			name:     "matching record with differing field",
			records:  []Record{{"isbn": "123", "category_code": "A1"}},
			row:      Row{"isbn": "123", "category_code": "B2"},
			wantOK:   false,
			fragment: "category_code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{records: tt.records}
			rule, err := NewEqual(store, Config{KeyGroups: []KeyGroup{Key("isbn")}},
				map[string]string{"category_code": "category_code"})
			if err != nil {
				t.Fatalf("NewEqual: %v", err)
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

func TestEqualOneErrorPerDifferingField(t *testing.T) {
	store := &fakeStore{records: []Record{{"isbn": "123", "a": "1", "b": "2"}}}
	rule, err := NewEqual(store, Config{KeyGroups: []KeyGroup{Key("isbn")}},
		map[string]string{"a": "a", "b": "b"})
	if err != nil {
		t.Fatalf("NewEqual: %v", err)
	}

	ok, err := rule.Validate(context.Background(), oneRow(Row{"isbn": "123", "a": "x", "b": "y"}), nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("Validate = true, want two mismatches")
	}
	if got := len(rule.Errors()[1]); got != 2 {
		t.Errorf("errors for line 1 = %d, want 2 (one per differing field)", got)
	}
}

func TestEqualThroughRelation(t *testing.T) {
	// The category code lives on a related table; the record carries it
	// under the dot-path key the store produced for the join.
	store := &fakeStore{records: []Record{{
		"isbn":          "123",
		"category.code": "A1",
	}}}

	cfg := Config{
		KeyGroups: []KeyGroup{Key("isbn")},
		Relations: map[string]Relation{
			"category": {
				Name:       "category",
				Kind:       RelationBelongsTo,
				Table:      "categories",
				LocalKey:   "category_id",
				ForeignKey: "id",
			},
		},
	}
	rule, err := NewEqual(store, cfg, map[string]string{"category_code": "category.code"})
	if err != nil {
		t.Fatalf("NewEqual: %v", err)
	}

	ok, err := rule.Validate(context.Background(), oneRow(Row{"isbn": "123", "category_code": "B2"}), nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok {
		t.Fatal("Validate = true, want mismatch through relation")
	}

	// The batched query must have asked the store to load the relation.
	if len(store.queries) != 1 {
		t.Fatalf("store round trips = %d, want 1", len(store.queries))
	}
	q := store.queries[0]
	if len(q.Relations) != 1 || q.Relations[0].Name != "category" {
		t.Errorf("query relations = %+v, want the category relation attached", q.Relations)
	}
	if !containsField(q.Select, "category.code") {
		t.Errorf("query select %v does not include the dot-path field", q.Select)
	}
}

func TestEmptyOrEqual(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		row     Row
		wantOK  bool
	}{
		{
			name:    "stored field empty passes regardless of row value",
			records: []Record{{"isbn": "123", "code": nil}},
			row:     Row{"isbn": "123", "code": "B2"},
			wantOK:  true,
		},
		{
			name:    "row field empty passes regardless of stored value",
			records: []Record{{"isbn": "123", "code": "A1"}},
			row:     Row{"isbn": "123", "code": ""},
			wantOK:  true,
		},
		{
			name:    "both non-empty and equal passes",
			records: []Record{{"isbn": "123", "code": "A1"}},
			row:     Row{"isbn": "123", "code": "A1"},
			wantOK:  true,
		},
		{
			name:    "both non-empty and unequal fails",
			records: []Record{{"isbn": "123", "code": "A1"}},
			row:     Row{"isbn": "123", "code": "B2"},
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{records: tt.records}
			rule, err := NewEmptyOrEqual(store, Config{KeyGroups: []KeyGroup{Key("isbn")}},
				map[string]string{"code": "code"})
			if err != nil {
				t.Fatalf("NewEmptyOrEqual: %v", err)
			}

			ok, err := rule.Validate(context.Background(), oneRow(tt.row), nil)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("Validate = %v, want %v (errors: %v)", ok, tt.wantOK, rule.Errors())
			}
		})
	}
}

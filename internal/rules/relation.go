package rules

import "fmt"

// RelationKind identifies how a related table is reached from the base table.
// The set is closed: rules and stores branch on it explicitly, and an
// unrecognized kind is a configuration error at rule construction, not a
// runtime surprise.
type RelationKind int

const (
	// RelationBelongsTo: the base table holds the related table's key
	// (base.local_key = related.foreign_key, e.g. books.category_id).
	RelationBelongsTo RelationKind = iota + 1

	// RelationHasMany: the related table holds the base table's key
	// (related.foreign_key = base.local_key).
	RelationHasMany

	// RelationManyToMany: base and related tables are linked through a join
	// table carrying a key for each side.
	RelationManyToMany

	// RelationThrough: the related table is reached through a bridging table
	// (base -> through -> related).
	RelationThrough
)

// String returns the kind name for error messages.
func (k RelationKind) String() string {
	switch k {
	case RelationBelongsTo:
		return "belongs-to"
	case RelationHasMany:
		return "has-many"
	case RelationManyToMany:
		return "many-to-many"
	case RelationThrough:
		return "through"
	default:
		return fmt.Sprintf("relation-kind(%d)", int(k))
	}
}

// Relation describes one named relation that equality rules may traverse with
// a dot-path ("category.code"). Which key columns are required depends on the
// kind; Validate enforces the combination.
type Relation struct {
	Name string
	Kind RelationKind

	// Table is the related table.
	Table string

	// LocalKey is the column on the base table used to reach the relation.
	LocalKey string

	// ForeignKey is the column on the related table (or, for many-to-many
	// and through relations, on the far side) matched against.
	ForeignKey string

	// Join table plumbing for RelationManyToMany.
	JoinTable      string
	JoinLocalKey   string // join-table column matching base.LocalKey
	JoinForeignKey string // join-table column matching related.ForeignKey

	// Bridging table plumbing for RelationThrough.
	ThroughTable      string
	ThroughLocalKey   string // through-table column matching base.LocalKey
	ThroughForeignKey string // through-table column matching related.ForeignKey
}

// Validate checks that the relation carries every key its kind requires.
func (r Relation) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("relation missing name")
	}
	if r.Table == "" {
		return fmt.Errorf("relation %q missing table", r.Name)
	}
	if r.LocalKey == "" || r.ForeignKey == "" {
		return fmt.Errorf("relation %q (%s) missing local/foreign key", r.Name, r.Kind)
	}

	switch r.Kind {
	case RelationBelongsTo, RelationHasMany:
		return nil
	case RelationManyToMany:
		if r.JoinTable == "" || r.JoinLocalKey == "" || r.JoinForeignKey == "" {
			return fmt.Errorf("relation %q (%s) missing join table keys", r.Name, r.Kind)
		}
		return nil
	case RelationThrough:
		if r.ThroughTable == "" || r.ThroughLocalKey == "" || r.ThroughForeignKey == "" {
			return fmt.Errorf("relation %q (%s) missing through table keys", r.Name, r.Kind)
		}
		return nil
	default:
		return fmt.Errorf("relation %q has unrecognized kind %s", r.Name, r.Kind)
	}
}

// BaseKey returns the base-table column a store must select (and join on) to
// resolve this relation.
func (r Relation) BaseKey() (string, error) {
	switch r.Kind {
	case RelationBelongsTo, RelationHasMany, RelationManyToMany, RelationThrough:
		return r.LocalKey, nil
	default:
		return "", fmt.Errorf("relation %q has unrecognized kind %s", r.Name, r.Kind)
	}
}

package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/importkit/internal/rowkey"
)

// Row is one accepted import row, keyed by field alias (the name the import
// definition uses for the column).
type Row map[string]string

// Rows maps source line numbers to rows. Line numbers are the stable identity
// used for error reporting.
type Rows map[int]Row

// Validator is the contract every batch rule satisfies.
//
// Validate runs the rule over the whole row set, issuing one store query per
// key-group, and reports whether every row passed. Per-line failure messages
// accumulate in Errors. The returned error is reserved for store failures,
// which abort the import; row-level problems never surface there.
type Validator interface {
	Validate(ctx context.Context, rows Rows, displayNames map[string]string) (bool, error)
	Errors() map[int][]string
}

// Cond is a single comparison pushed into the store query.
type Cond struct {
	Field string
	Op    string // "=", "!=", ">", ">=", "<", "<=", "in"
	Value any

	// OrNull widens a "!=" condition to also match NULL stored values.
	OrNull bool
}

// Branch is the conjunction of conditions contributed by one row. Branches
// are OR-combined by the store.
type Branch struct {
	Conds []Cond
}

// BatchQuery describes one batched lookup for one key-group: select the named
// fields from every record matching the static wheres and at least one
// per-row branch, with the listed relations loaded so dot-path fields
// ("category.code") can be resolved.
type BatchQuery struct {
	Select    []string
	Wheres    []Cond
	Branches  []Branch
	Relations []Relation
}

// Query executes batched lookups. Implementations must run the whole
// BatchQuery as a single round trip; internal/postgres does so with one
// disjunctive SELECT.
type Query interface {
	Select(ctx context.Context, q BatchQuery) ([]Record, error)
}

// Record is one stored record returned from a batched lookup. Relation data
// appears either under a flat dot-path key ("category.code") or as a nested
// map under the relation name; Get resolves both.
type Record map[string]any

// Get returns the value at a field name or dot-path, or nil when absent.
func (r Record) Get(path string) any {
	if v, ok := r[path]; ok {
		return v
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(r)
	for _, p := range parts {
		m, ok := toMap(cur)
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// stringify renders a stored value for comparison against row input, which is
// always textual. NULL renders as the empty string so emptiness checks line
// up on both sides.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// KeyGroup names a set of row fields whose combined value forms one lookup
// key. An empty Name defaults to the first field.
type KeyGroup struct {
	Name   string
	Fields []string
}

// Key is shorthand for a key-group named after its first field.
func Key(fields ...string) KeyGroup {
	return KeyGroup{Fields: fields}
}

// Config carries the declarative part shared by every rule.
type Config struct {
	// KeyGroups are the lookup keys; each issues one batched query.
	KeyGroups []KeyGroup

	// Wheres are static filters applied to every batched query.
	Wheres []Cond

	// IgnoreFields exclude records whose column equals the row's own value,
	// typically the row's current identifier during an update import.
	IgnoreFields []string

	// Aliases translate row field names to store column names.
	Aliases map[string]string

	// Messages override the failure text per key-group name (or, for
	// equality rules, per compared field alias).
	Messages map[string]string

	// Relations declares, by name, every relation a dot-path may traverse.
	Relations map[string]Relation
}

func (c Config) column(alias string) string {
	if col, ok := c.Aliases[alias]; ok {
		return col
	}
	return alias
}

// attrGroup is a resolved key-group: row aliases paired with store columns.
type attrGroup struct {
	name    string
	aliases []string
	columns []string
}

// lineEntry records one row planned into a batched query.
type lineEntry struct {
	line int
	key  string
	row  Row
}

// batch is the engine shared by all rules: it plans one query per key-group,
// groups the returned records by composite key, and lets the concrete rule
// decide per line whether the grouped records satisfy it.
type batch struct {
	query      Query
	cfg        Config
	groups     []attrGroup
	ignoreNull map[string]bool
	errs       map[int][]string
	defaultMsg string
}

func newBatch(q Query, cfg Config, defaultMsg string) (*batch, error) {
	if q == nil {
		return nil, fmt.Errorf("rule requires a store query")
	}
	if len(cfg.KeyGroups) == 0 {
		return nil, fmt.Errorf("rule requires at least one key-group")
	}
	for _, rel := range cfg.Relations {
		if err := rel.Validate(); err != nil {
			return nil, err
		}
	}

	b := &batch{
		query:      q,
		cfg:        cfg,
		errs:       make(map[int][]string),
		defaultMsg: defaultMsg,
	}
	for _, kg := range cfg.KeyGroups {
		if len(kg.Fields) == 0 {
			return nil, fmt.Errorf("key-group %q has no fields", kg.Name)
		}
		g := attrGroup{name: kg.Name, aliases: kg.Fields}
		if g.name == "" {
			g.name = kg.Fields[0]
		}
		for _, alias := range kg.Fields {
			g.columns = append(g.columns, cfg.column(alias))
		}
		b.groups = append(b.groups, g)
	}
	return b, nil
}

// Errors returns the per-line failure messages accumulated so far.
func (b *batch) Errors() map[int][]string {
	return b.errs
}

// plan builds the batched query for one key-group. Rows missing any key value
// are skipped entirely: absent data cannot be cross-checked. extra, when
// non-nil, contributes additional per-row conditions (used by
// ExistsAndUnique's disambiguators). Lines come back in ascending order so
// error output is deterministic.
func (b *batch) plan(rows Rows, g attrGroup, extra func(Row) []Cond) (BatchQuery, []lineEntry) {
	lines := make([]lineEntry, 0, len(rows))

	order := make([]int, 0, len(rows))
	for line := range rows {
		order = append(order, line)
	}
	sort.Ints(order)

	q := BatchQuery{
		Select: append([]string(nil), g.columns...),
		Wheres: b.cfg.Wheres,
	}

	for _, line := range order {
		row := rows[line]
		values, ok := rowkey.Values(row, g.aliases)
		if !ok {
			continue
		}

		branch := Branch{}
		for i, col := range g.columns {
			branch.Conds = append(branch.Conds, Cond{Field: col, Op: "=", Value: values[i]})
		}
		for _, f := range b.cfg.IgnoreFields {
			v, ok := row[f]
			if !ok || v == "" {
				continue
			}
			branch.Conds = append(branch.Conds, Cond{
				Field:  b.cfg.column(f),
				Op:     "!=",
				Value:  v,
				OrNull: b.ignoreNull[f],
			})
		}
		if extra != nil {
			branch.Conds = append(branch.Conds, extra(row)...)
		}

		q.Branches = append(q.Branches, branch)
		lines = append(lines, lineEntry{line: line, key: rowkey.Join(values), row: row})
	}

	return q, lines
}

// groupRecords buckets fetched records by the same composite key the rows
// were planned with.
func groupRecords(records []Record, columns []string) map[string][]Record {
	groups := make(map[string][]Record, len(records))
	for _, rec := range records {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = stringify(rec.Get(col))
		}
		key := rowkey.Join(values)
		groups[key] = append(groups[key], rec)
	}
	return groups
}

// checkFunc inspects the record groups for one planned line and returns the
// failure bodies for that line; an empty slice means the line passes.
type checkFunc func(g attrGroup, groups map[string][]Record, e lineEntry) []string

// run executes the shared pipeline: plan, query once, group, check, collect.
// prepare, when non-nil, lets the rule extend the query (extra selects,
// relations); extra adds per-row conditions.
func (b *batch) run(ctx context.Context, rows Rows, prepare func(*BatchQuery, attrGroup), extra func(Row) []Cond, check checkFunc) (bool, error) {
	// Errors describe the current row set only; a validator reused across
	// batches must not carry messages from an earlier run.
	b.errs = make(map[int][]string)

	for _, g := range b.groups {
		q, lines := b.plan(rows, g, extra)
		if len(lines) == 0 {
			continue
		}
		if prepare != nil {
			prepare(&q, g)
		}

		records, err := b.query.Select(ctx, q)
		if err != nil {
			return false, fmt.Errorf("batch rule query (%s): %w", g.name, err)
		}

		groups := groupRecords(records, g.columns)
		for _, e := range lines {
			for _, body := range check(g, groups, e) {
				b.errs[e.line] = append(b.errs[e.line], fmt.Sprintf("original row %d: %s", e.line, body))
			}
		}
	}
	return len(b.errs) == 0, nil
}

// message returns the configured failure text for a key-group or field alias.
func (b *batch) message(name string) string {
	if m, ok := b.cfg.Messages[name]; ok {
		return m
	}
	return b.defaultMsg
}

// displayLabel joins the display names of a key-group's fields for messages.
func displayLabel(aliases []string, displayNames map[string]string) string {
	parts := make([]string, len(aliases))
	for i, alias := range aliases {
		if dn, ok := displayNames[alias]; ok && dn != "" {
			parts[i] = dn
		} else {
			parts[i] = alias
		}
	}
	return strings.Join(parts, ", ")
}

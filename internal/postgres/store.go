// Package postgres backs the rule engine and persistence with PostgreSQL
// via pgx. A Store turns one batched rule query into one SQL statement, and
// a TxRunner provides the transaction boundary for persistence.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/importkit/internal/rules"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// Store executes batched rule queries against one table. The base table is
// aliased "t" and each requested relation is LEFT JOINed under its relation
// name, so dot-path fields like "category.code" select straight off the
// join.
type Store struct {
	db    DBTX
	table string
}

// NewStore builds a store over db for the given table.
func NewStore(db DBTX, table string) *Store {
	return &Store{db: db, table: table}
}

// Select runs one SQL statement for the whole batch: the static conditions
// ANDed with the OR of every per-row branch. Result columns come back keyed
// by their requested field name, dot-paths included.
func (s *Store) Select(ctx context.Context, q rules.BatchQuery) ([]rules.Record, error) {
	sql, args, err := s.build(q)
	if err != nil {
		return nil, fmt.Errorf("build query for %s: %w", s.table, err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []rules.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		rec := make(rules.Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = values[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) build(q rules.BatchQuery) (string, []any, error) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	for i, f := range q.Select {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(column(f))
		b.WriteString(` AS "`)
		b.WriteString(f)
		b.WriteString(`"`)
	}

	b.WriteString(" FROM ")
	b.WriteString(s.table)
	b.WriteString(" AS t")

	for _, rel := range q.Relations {
		writeJoin(&b, rel)
	}

	var clauses []string
	for _, c := range q.Wheres {
		clause, err := renderCond(c, &args)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(q.Branches) > 0 {
		var ors []string
		for _, br := range q.Branches {
			var ands []string
			for _, c := range br.Conds {
				clause, err := renderCond(c, &args)
				if err != nil {
					return "", nil, err
				}
				ands = append(ands, clause)
			}
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	return b.String(), args, nil
}

// column qualifies a field reference: base-table fields live under the "t"
// alias, dot-paths under their relation's alias.
func column(field string) string {
	if name, rest, ok := strings.Cut(field, "."); ok {
		return name + "." + rest
	}
	return "t." + field
}

func renderCond(c rules.Cond, args *[]any) (string, error) {
	col := column(c.Field)
	*args = append(*args, c.Value)
	placeholder := fmt.Sprintf("$%d", len(*args))

	switch c.Op {
	case "", "=":
		return col + " = " + placeholder, nil
	case "!=":
		if c.OrNull {
			return "(" + col + " IS NULL OR " + col + " <> " + placeholder + ")", nil
		}
		return col + " <> " + placeholder, nil
	case ">", ">=", "<", "<=":
		return col + " " + c.Op + " " + placeholder, nil
	case "in":
		// pgx binds slice values through ANY.
		return col + " = ANY(" + placeholder + ")", nil
	default:
		return "", fmt.Errorf("condition on %s has unsupported operator %q", c.Field, c.Op)
	}
}

func writeJoin(b *strings.Builder, rel rules.Relation) {
	switch rel.Kind {
	case rules.RelationBelongsTo, rules.RelationHasMany:
		fmt.Fprintf(b, " LEFT JOIN %s AS %s ON %s.%s = t.%s",
			rel.Table, rel.Name, rel.Name, rel.ForeignKey, rel.LocalKey)

	case rules.RelationManyToMany:
		join := rel.Name + "_join"
		fmt.Fprintf(b, " LEFT JOIN %s AS %s ON %s.%s = t.%s",
			rel.JoinTable, join, join, rel.JoinLocalKey, rel.LocalKey)
		fmt.Fprintf(b, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			rel.Table, rel.Name, rel.Name, rel.ForeignKey, join, rel.JoinForeignKey)

	case rules.RelationThrough:
		through := rel.Name + "_through"
		fmt.Fprintf(b, " LEFT JOIN %s AS %s ON %s.%s = t.%s",
			rel.ThroughTable, through, through, rel.ThroughLocalKey, rel.LocalKey)
		fmt.Fprintf(b, " LEFT JOIN %s AS %s ON %s.%s = %s.%s",
			rel.Table, rel.Name, rel.Name, rel.ForeignKey, through, rel.ThroughForeignKey)
	}
}

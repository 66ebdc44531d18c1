package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Filter accumulates AND-ed equality predicates with positional arguments.
type Filter struct {
	clauses []string
	args    []any
}

// Eq adds column = value. Column names must be trusted constants.
func (f *Filter) Eq(column string, value any) {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf("%s = $%d", column, len(f.args)))
}

// Where renders the WHERE clause, or an empty string when no predicate was added.
func (f *Filter) Where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// Args returns the positional arguments collected so far.
func (f *Filter) Args() []any {
	return append([]any(nil), f.args...)
}

// Page appends LIMIT/OFFSET placeholders and returns the full argument list.
func (f *Filter) Page(limit, offset int) (string, []any) {
	n := len(f.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), append(f.Args(), limit, offset)
}

// Exists reports whether table holds a row with id. Table must be a trusted constant.
func Exists(ctx context.Context, q Querier, table string, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists)
	return exists, err
}

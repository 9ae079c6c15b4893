package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresSource reads and writes tables over a direct PostgreSQL connection
type PostgresSource struct {
	db *sqlx.DB
}

// NewPostgresSource creates a SQL-backed data source
func NewPostgresSource(db *sqlx.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Select(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := BuildSelectSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func (s *PostgresSource) Insert(ctx context.Context, table string, rows []Row) ([]Row, error) {
	var inserted []Row
	for _, r := range rows {
		cols := sortedKeys(r)
		placeholders := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, c := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = sqlValue(r[c])
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			pq.QuoteIdentifier(table), quoteColumns(cols), strings.Join(placeholders, ", "))

		result, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		out, err := scanRows(result)
		result.Close()
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, out...)
	}
	return inserted, nil
}

func (s *PostgresSource) Update(ctx context.Context, table string, values Row, where Predicate) ([]Row, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("update %s: no values", table)
	}
	if where == nil {
		return nil, fmt.Errorf("update %s: refusing to update without a filter", table)
	}
	cols := sortedKeys(values)
	args := make([]any, 0, len(cols))
	sets := make([]string, len(cols))
	for i, c := range cols {
		args = append(args, sqlValue(values[c]))
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), len(args))
	}

	cond, err := renderPredicate(where, &args)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		pq.QuoteIdentifier(table), strings.Join(sets, ", "), cond)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *PostgresSource) Delete(ctx context.Context, table string, where Predicate) error {
	if where == nil {
		return fmt.Errorf("delete from %s: refusing to delete without a filter", table)
	}
	var args []any
	cond, err := renderPredicate(where, &args)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", pq.QuoteIdentifier(table), cond)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// BuildSelectSQL renders q as a parameterized SELECT statement
func BuildSelectSQL(q Query) (string, []any, error) {
	if q.Table == "" {
		return "", nil, fmt.Errorf("query has no table")
	}

	cols := "*"
	if len(q.Columns) > 0 {
		cols = quoteColumns(q.Columns)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", cols, pq.QuoteIdentifier(q.Table))

	var args []any
	if q.Where != nil {
		cond, err := renderPredicate(q.Where, &args)
		if err != nil {
			return "", nil, err
		}
		query += " WHERE " + cond
	}

	if len(q.OrderBy) > 0 {
		parts := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts[i] = pq.QuoteIdentifier(o.Field) + " " + dir
		}
		query += " ORDER BY " + strings.Join(parts, ", ")
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args, nil
}

// renderPredicate writes p as SQL, appending its operands to args.
// Junctions are always parenthesized so the tree shape survives operator precedence.
func renderPredicate(p Predicate, args *[]any) (string, error) {
	switch v := p.(type) {
	case Junction:
		left, err := renderPredicate(v.Left, args)
		if err != nil {
			return "", err
		}
		right, err := renderPredicate(v.Right, args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, v.Logic, right), nil
	case Comparison:
		return renderComparison(v, args)
	default:
		return "", fmt.Errorf("unsupported predicate %T", p)
	}
}

func renderComparison(c Comparison, args *[]any) (string, error) {
	col := pq.QuoteIdentifier(c.Field)
	next := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	switch c.Op {
	case OpIsNull:
		return col + " IS NULL", nil
	case OpIsNotNull:
		return col + " IS NOT NULL", nil
	case OpEquals:
		return fmt.Sprintf("%s = %s", col, next(sqlValue(c.Value))), nil
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", col, next(sqlValue(c.Value))), nil
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, next(sqlValue(c.Value))), nil
	case OpGreaterEq:
		return fmt.Sprintf("%s >= %s", col, next(sqlValue(c.Value))), nil
	case OpLessThan:
		return fmt.Sprintf("%s < %s", col, next(sqlValue(c.Value))), nil
	case OpLessEq:
		return fmt.Sprintf("%s <= %s", col, next(sqlValue(c.Value))), nil
	case OpContains:
		return fmt.Sprintf("%s::text ILIKE '%%' || %s || '%%'", col, next(Stringify(c.Value))), nil
	case OpStartsWith:
		return fmt.Sprintf("%s::text ILIKE %s || '%%'", col, next(Stringify(c.Value))), nil
	case OpEndsWith:
		return fmt.Sprintf("%s::text ILIKE '%%' || %s", col, next(Stringify(c.Value))), nil
	case OpIn:
		return fmt.Sprintf("%s::text = ANY(%s)", col, next(pq.Array(stringValues(c.Value)))), nil
	case OpNotIn:
		return fmt.Sprintf("%s::text != ALL(%s)", col, next(pq.Array(stringValues(c.Value)))), nil
	case OpBetween:
		bounds := Values(c.Value)
		if len(bounds) != 2 {
			return "", fmt.Errorf("between on %s needs two bounds, got %d", c.Field, len(bounds))
		}
		lo := next(sqlValue(bounds[0]))
		hi := next(sqlValue(bounds[1]))
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil
	}
	return "", fmt.Errorf("unsupported operator %q", c.Op)
}

func scanRows(rows *sqlx.Rows) ([]Row, error) {
	var results []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		results = append(results, Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return results, nil
}

func stringValues(v any) []string {
	vals := Values(v)
	out := make([]string, len(vals))
	for i, x := range vals {
		out[i] = Stringify(x)
	}
	return out
}

// sqlValue passes slices and maps through pq so they bind as arrays
func sqlValue(v any) any {
	switch t := v.(type) {
	case []string:
		return pq.Array(t)
	case []any:
		return pq.Array(stringValues(t))
	}
	return v
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

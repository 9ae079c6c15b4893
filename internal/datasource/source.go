package datasource

import (
	"context"
	"errors"
)

// ErrNoRows is returned by single-row lookups that match nothing
var ErrNoRows = errors.New("no rows in result set")

// Row is one record keyed by column name
type Row map[string]any

// Order sorts query results by one column
type Order struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// Query selects columns from a table
type Query struct {
	Table   string
	Columns []string
	Where   Predicate
	OrderBy []Order
	Limit   int
}

// Source is a tabular data store: the hosted REST interface or a direct SQL connection
type Source interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)
	Update(ctx context.Context, table string, values Row, where Predicate) ([]Row, error)
	Delete(ctx context.Context, table string, where Predicate) error
}

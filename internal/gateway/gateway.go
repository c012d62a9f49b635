package gateway

import (
	"context"
	"database/sql"
	"fmt"
)

type Row map[string]any

type Executor interface {
	Execute(ctx context.Context, sqlText string) ([]Row, error)
}

// QueryError carries the driver diagnostic for a statement that could not be
// executed or read back.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Gateway runs caller-supplied SQL verbatim on a pooled database handle.
type Gateway struct {
	db *sql.DB
}

func New(db *sql.DB) *Gateway {
	return &Gateway{db: db}
}

func (g *Gateway) Execute(ctx context.Context, sqlText string) ([]Row, error) {
	rows, err := g.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &QueryError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{SQL: sqlText, Err: fmt.Errorf("query columns: %w", err)}
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, &QueryError{SQL: sqlText, Err: fmt.Errorf("scan row: %w", err)}
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: sqlText, Err: fmt.Errorf("iterate rows: %w", err)}
	}
	return result, nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

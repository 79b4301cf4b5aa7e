package remote

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the production Querier, backed by a pgx connection pool.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier connects to the warehouse. The pool handles reconnects;
// a dropped session surfaces as a per-statement error, not a fatal state.
func NewPgxQuerier(ctx context.Context, dsn string) (*PgxQuerier, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PgxQuerier{pool: pool}, nil
}

// Close releases the pool.
func (p *PgxQuerier) Close() {
	p.pool.Close()
}

// Ping verifies connectivity.
func (p *PgxQuerier) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Query runs a statement and materializes every row as a Row keyed by
// lower-case column name.
func (p *PgxQuerier) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := p.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = strings.ToLower(f.Name)
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs a statement returning no rows.
func (p *PgxQuerier) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := p.pool.Exec(ctx, stmt, args...)
	return err
}

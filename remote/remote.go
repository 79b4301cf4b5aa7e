/*
Package remote adapts the slow data warehouse behind a narrow query
interface, decoding its loosely-typed rows into governance values.

PURPOSE:
  Everything that talks to the warehouse lives here: the Querier seam the
  rest of the system depends on, the typed Warehouse facade over it, and
  the pgx-backed production implementation.

LATENCY MODEL:
  Warehouse calls take seconds. Callers treat every method here as slow
  and remote: the service layer reads from the local mirror and reaches
  the warehouse only through refreshes and background syncs.

SEE ALSO:
  - warehouse.go: typed statements over Querier
  - pgx.go: production Querier over a pgx connection pool
*/
package remote

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one warehouse result row, keyed by lower-case column name.
type Row map[string]any

// Querier executes statements against the warehouse. Implemented by
// PgxQuerier in production and by fakes in tests.
type Querier interface {
	// Query runs a statement returning rows.
	Query(ctx context.Context, stmt string, args ...any) ([]Row, error)
	// Exec runs a statement returning no rows.
	Exec(ctx context.Context, stmt string, args ...any) error
}

// =============================================================================
// ROW DECODING
// =============================================================================
//
// Warehouse drivers surface values with driver-dependent dynamic types, so
// each accessor normalizes the common representations instead of asserting
// one concrete type.

func (r Row) str(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) int64(col string) int64 {
	switch v := r[col].(type) {
	case nil:
		return 0
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func (r Row) int64Ptr(col string) *int64 {
	if r[col] == nil {
		return nil
	}
	n := r.int64(col)
	return &n
}

func (r Row) boolean(col string) bool {
	switch v := r[col].(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v == "true" || v == "t" || v == "1" || v == "Y"
	default:
		return false
	}
}

func (r Row) timePtr(col string) *time.Time {
	switch v := r[col].(type) {
	case nil:
		return nil
	case time.Time:
		u := v.UTC()
		return &u
	case string:
		if v == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil
		}
		return &t
	default:
		return nil
	}
}

func (r Row) at(col string) time.Time {
	if t := r.timePtr(col); t != nil {
		return *t
	}
	return time.Time{}
}

func (r Row) amount(col string) decimal.Decimal {
	switch v := r[col].(type) {
	case nil:
		return decimal.Zero
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.NewFromInt(v)
	default:
		d, err := decimal.NewFromString(fmt.Sprint(v))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
}

func (r Row) amountPtr(col string) *decimal.Decimal {
	if r[col] == nil {
		return nil
	}
	d := r.amount(col)
	return &d
}

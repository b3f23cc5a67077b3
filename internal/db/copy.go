// Package db holds the Postgres bulk-write helpers behind the store: COPY of
// append-only records and temp-table merges for upserts.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// RowFunc flattens one record into column values, in column order.
type RowFunc[T any] func(T) []any

// source streams items through row without materializing [][]any.
func source[T any](items []T, row RowFunc[T]) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		return row(items[i]), nil
	})
}

// CopyRecords appends items to table with the COPY protocol and returns the
// number of rows written.
func CopyRecords[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, row RowFunc[T]) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, source(items, row))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy %d rows into %s", len(items), table)
	}
	return n, nil
}

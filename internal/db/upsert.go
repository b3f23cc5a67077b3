package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes an upsert of staged rows into Table keyed on Key.
type Merge struct {
	Table   string
	Columns []string
	Key     []string
	// Update lists the columns overwritten on conflict; nil means every
	// non-key column.
	Update []string
	// Keep lists update columns that retain the stored value when the
	// incoming one is NULL.
	Keep []string
}

// Validate reports an unusable merge definition.
func (m Merge) Validate() error {
	switch {
	case m.Table == "":
		return eris.New("db: merge: table is required")
	case len(m.Columns) == 0:
		return eris.Errorf("db: merge into %s: no columns", m.Table)
	case len(m.Key) == 0:
		return eris.Errorf("db: merge into %s: no key columns", m.Table)
	}
	return nil
}

func (m Merge) updateColumns() []string {
	if m.Update != nil {
		return m.Update
	}
	key := make(map[string]bool, len(m.Key))
	for _, k := range m.Key {
		key[k] = true
	}
	var cols []string
	for _, c := range m.Columns {
		if !key[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// stage is the temp table rows are copied into before the merge.
func (m Merge) stage() string {
	return "_tmp_upsert_" + strings.ReplaceAll(m.Table, ".", "_")
}

// statement renders the INSERT ... ON CONFLICT that folds the stage table
// into the target.
func (m Merge) statement() string {
	target := qualified(m.Table)
	keep := make(map[string]bool, len(m.Keep))
	for _, c := range m.Keep {
		keep[c] = true
	}
	sets := make([]string, 0, len(m.Columns))
	for _, col := range m.updateColumns() {
		q := pgx.Identifier{col}.Sanitize()
		if keep[col] {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", q, q, target, q))
		} else {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
	}
	cols := identList(m.Columns)
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, pgx.Identifier{m.stage()}.Sanitize(), identList(m.Key), action)
}

// Upsert stages items in a temp table with COPY and merges them into the
// target in one transaction. Items sharing a key must be collapsed by the
// caller; Postgres rejects a merge that touches a row twice.
func Upsert[T any](ctx context.Context, pool Pool, m Merge, items []T, row RowFunc[T]) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{m.stage()}.Sanitize(), qualified(m.Table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s: create stage", m.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{m.stage()}, m.Columns, source(items, row)); err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s: copy stage", m.Table)
	}
	tag, err := tx.Exec(ctx, m.statement())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit")
	}
	return tag.RowsAffected(), nil
}

// qualified quotes a table name, honoring a schema prefix.
func qualified(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scale struct {
	number   string
	capacity string
	due      any
}

func scaleRow(s scale) []any { return []any{s.number, s.capacity, s.due} }

var scaleMerge = Merge{
	Table:   "instruments",
	Columns: []string{"inmetro_number", "capacity", "next_verification_at"},
	Key:     []string{"inmetro_number"},
	Keep:    []string{"next_verification_at"},
}

func TestMerge_Validate(t *testing.T) {
	tests := []struct {
		name string
		m    Merge
		want string
	}{
		{"no table", Merge{Columns: []string{"a"}, Key: []string{"a"}}, "table is required"},
		{"no columns", Merge{Table: "instruments", Key: []string{"a"}}, "no columns"},
		{"no key", Merge{Table: "instruments", Columns: []string{"a"}}, "no key columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, scaleMerge.Validate())
}

func TestMerge_Statement(t *testing.T) {
	got := scaleMerge.statement()
	assert.Equal(t,
		`INSERT INTO "instruments" ("inmetro_number", "capacity", "next_verification_at") `+
			`SELECT "inmetro_number", "capacity", "next_verification_at" FROM "_tmp_upsert_instruments" `+
			`ON CONFLICT ("inmetro_number") DO UPDATE SET "capacity" = EXCLUDED."capacity", `+
			`"next_verification_at" = COALESCE(EXCLUDED."next_verification_at", "instruments"."next_verification_at")`,
		got)
}

func TestMerge_StatementKeyOnly(t *testing.T) {
	m := Merge{Table: "public.tags", Columns: []string{"name"}, Key: []string{"name"}}
	assert.Equal(t,
		`INSERT INTO "public"."tags" ("name") SELECT "name" FROM "_tmp_upsert_public_tags" ON CONFLICT ("name") DO NOTHING`,
		m.statement())
}

func TestUpsert_Empty(t *testing.T) {
	n, err := Upsert[scale](context.Background(), nil, scaleMerge, nil, scaleRow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_InvalidMerge(t *testing.T) {
	_, err := Upsert(context.Background(), nil, Merge{Table: "instruments"}, []scale{{number: "1"}}, scaleRow)
	require.Error(t, err)
}

func TestUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_instruments" \(LIKE "instruments" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_instruments"}, scaleMerge.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("inmetro_number"\) DO UPDATE SET "capacity" = EXCLUDED."capacity"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := Upsert(context.Background(), mock, scaleMerge, []scale{{"123", "30t", nil}, {"456", "60t", nil}}, scaleRow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RollsBackOnMergeError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_instruments"}, scaleMerge.Columns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "instruments"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = Upsert(context.Background(), mock, scaleMerge, []scale{{"123", "30t", nil}}, scaleRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: merge into instruments")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQualified(t *testing.T) {
	assert.Equal(t, `"instruments"`, qualified("instruments"))
	assert.Equal(t, `"public"."instruments"`, qualified("public.instruments"))
}

package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	instrument int64
	kind       string
}

func eventRow(e event) []any { return []any{e.instrument, e.kind} }

var eventColumns = []string{"instrument_id", "event_type"}

func TestCopyRecords_Empty(t *testing.T) {
	n, err := CopyRecords[event](context.Background(), nil, "instrument_history", eventColumns, nil, eventRow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"instrument_history"}, eventColumns).WillReturnResult(2)

	n, err := CopyRecords(context.Background(), mock, "instrument_history", eventColumns,
		[]event{{1, "initial"}, {2, "rejection"}}, eventRow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRecords_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"instrument_history"}, eventColumns).WillReturnError(errors.New("disk full"))

	_, err = CopyRecords(context.Background(), mock, "instrument_history", eventColumns, []event{{1, "initial"}}, eventRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy 1 rows into instrument_history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

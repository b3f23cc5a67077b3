package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetOwner_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM owners o WHERE o.id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetOwner(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListOwners_BuildsArgs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM owners o WHERE true AND o.priority = \$1 AND \(o.legal_name ILIKE \$2`).
		WithArgs("critical", "%agro%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY CASE o.priority .* LIMIT \$3 OFFSET \$4`).
		WithArgs("critical", "%agro%", 25, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	owners, total, err := s.ListOwners(context.Background(), model.OwnerFilter{Priority: model.PriorityCritical, Search: "agro"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, owners)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionStatus_AlreadyConverted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE owners SET lead_status = \$1, updated_at = \$2 WHERE id = \$3 AND lead_status = \$4`).
		WithArgs("contacted", pgxmock.AnyArg(), int64(1), "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT lead_status FROM owners WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"lead_status"}).AddRow("converted"))
	mock.ExpectRollback()

	err := s.TransitionStatus(context.Background(), model.StatusChange{
		OwnerID: 1, FromStatus: model.LeadStatusNew, ToStatus: model.LeadStatusContacted,
	})
	assert.True(t, apperr.Is(err, apperr.CodeAlreadyConverted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ConvertOwner_RecordsChange(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE owners SET lead_status = \$1, converted_to_customer_id = \$2`).
		WithArgs("converted", int64(9), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(1), "negotiating").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO status_changes`).
		WithArgs(int64(1), "negotiating", "converted", "", "user", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.ConvertOwner(context.Background(), 9, model.StatusChange{
		OwnerID: 1, FromStatus: model.LeadStatusNegotiating, Source: model.ChangeSourceUser, ChangedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteOwner_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM owners WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteOwner(context.Background(), 5)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertInstruments_BulkPath(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_instruments"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_instruments"}, instrumentUpsert.Columns).
		WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("inmetro_number"\) DO UPDATE SET .*"next_verification_at" = COALESCE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertInstruments(context.Background(), []model.Instrument{
		{LocationID: 1, InmetroNumber: "X-1", CurrentStatus: model.InstrumentApproved},
		{LocationID: 1, InmetroNumber: "X-1", CurrentStatus: model.InstrumentRejected},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendHistory_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"instrument_history"}, historyCopyColumns).
		WillReturnResult(2)

	now := time.Now()
	n, err := s.AppendHistory(context.Background(), []model.HistoryEntry{
		{InstrumentID: 1, EventType: model.HistoryInitial, EventDate: now},
		{InstrumentID: 2, EventType: model.HistoryInitial, EventDate: now},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertQueueItems_CountsInserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO contact_queue .* ON CONFLICT \(owner_id, queue_date\) DO NOTHING`).
		WithArgs(int64(1), "2026-01-05", 1, "urgent", "overdue", "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO contact_queue`).
		WithArgs(int64(2), "2026-01-05", 2, "high", "expiring_30d", "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := s.InsertQueueItems(context.Background(), []model.ContactQueueItem{
		{OwnerID: 1, QueueDate: "2026-01-05", Position: 1, Priority: model.PriorityUrgent, Reason: "overdue"},
		{OwnerID: 2, QueueDate: "2026-01-05", Position: 2, Priority: model.PriorityHigh, Reason: "expiring_30d"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseQueueItem_AlreadyClosed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectQuery(`UPDATE contact_queue SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status = 'pending'`).
		WithArgs("skipped", pgxmock.AnyArg(), int64(3)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT id, owner_id, queue_date, position, priority, reason, status, created_at, updated_at FROM contact_queue WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "queue_date", "position", "priority", "reason", "status", "created_at", "updated_at"}).
			AddRow(int64(3), int64(1), "2026-01-05", 1, model.PriorityHigh, "overdue", model.QueueStatusContacted, now, now))

	_, err := s.CloseQueueItem(context.Background(), 3, model.QueueStatusSkipped)
	assert.True(t, apperr.Is(err, apperr.CodeQueueItemClosed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LinkCustomer(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE owners SET converted_to_customer_id = \$1, updated_at = \$2 WHERE id = \$3 AND converted_to_customer_id IS NULL`).
		WithArgs(int64(7), pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	linked, err := s.LinkCustomer(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementWebhookFailures(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE webhooks SET failure_count = failure_count \+ 1`).
		WithArgs(pgxmock.AnyArg(), int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.IncrementWebhookFailures(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgArgs(t *testing.T) {
	var a pgArgs
	assert.Equal(t, "$1", a.add("x"))
	assert.Equal(t, "$2", a.add(2))
	assert.Equal(t, pgArgs{"x", 2}, a)
}

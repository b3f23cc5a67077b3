package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

func (s *SQLiteStore) InsertQueueItems(ctx context.Context, items []model.ContactQueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	var inserted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO contact_queue (owner_id, queue_date, position, priority, reason, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (owner_id, queue_date) DO NOTHING`,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare queue insert")
		}
		defer stmt.Close()

		for _, it := range items {
			status := it.Status
			if status == "" {
				status = model.QueueStatusPending
			}
			res, err := stmt.ExecContext(ctx,
				it.OwnerID, it.QueueDate, it.Position, string(it.Priority), it.Reason, string(status), now, now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert queue item for owner %d", it.OwnerID)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

func (s *SQLiteStore) ListQueue(ctx context.Context, date string) ([]model.ContactQueueItem, error) {
	var out []model.ContactQueueItem
	err := s.eachRow(ctx,
		`SELECT `+queueColumns+` FROM contact_queue WHERE queue_date = ? ORDER BY position, id`,
		[]any{date}, func(r scannable) error {
			q, err := scanQueueItem(r)
			if err != nil {
				return err
			}
			out = append(out, *q)
			return nil
		})
	return out, eris.Wrapf(err, "sqlite: list queue %s", date)
}

func (s *SQLiteStore) GetQueueItem(ctx context.Context, id int64) (*model.ContactQueueItem, error) {
	q, err := scanQueueItem(s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM contact_queue WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("queue item", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get queue item %d", id)
	}
	return q, nil
}

func (s *SQLiteStore) CloseQueueItem(ctx context.Context, id int64, status model.QueueStatus) (*model.ContactQueueItem, error) {
	var out *model.ContactQueueItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE contact_queue SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
			string(status), time.Now().UTC(), id,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: close queue item %d", id)
		}
		n, _ := res.RowsAffected()

		out, err = scanQueueItem(tx.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM contact_queue WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("queue item", id)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: reload queue item %d", id)
		}
		if n == 0 {
			return queueItemClosed(out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func queueItemClosed(q *model.ContactQueueItem) error {
	return apperr.Newf(apperr.KindConflict, apperr.CodeQueueItemClosed, "queue item %d is already %s", q.ID, q.Status)
}

func (s *SQLiteStore) CreateInteraction(ctx context.Context, in *model.Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (owner_id, channel, result, notes, scheduled_follow_up, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		in.OwnerID, string(in.Channel), string(in.Result), in.Notes, utcPtr(in.ScheduledFollowUp), in.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create interaction for owner %d", in.OwnerID)
	}
	in.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: interaction id")
}

func (s *SQLiteStore) ListInteractions(ctx context.Context, ownerID int64) ([]model.Interaction, error) {
	var out []model.Interaction
	err := s.eachRow(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
		[]any{ownerID}, func(r scannable) error {
			in, err := scanInteraction(r)
			if err != nil {
				return err
			}
			out = append(out, *in)
			return nil
		})
	return out, eris.Wrap(err, "sqlite: list interactions")
}

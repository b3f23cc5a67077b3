package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/model"
)

func (s *PostgresStore) InsertQueueItems(ctx context.Context, items []model.ContactQueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	var inserted int
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, it := range items {
			status := it.Status
			if status == "" {
				status = model.QueueStatusPending
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO contact_queue (owner_id, queue_date, position, priority, reason, status, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
				 ON CONFLICT (owner_id, queue_date) DO NOTHING`,
				it.OwnerID, it.QueueDate, it.Position, string(it.Priority), it.Reason, string(status), now,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: insert queue item for owner %d", it.OwnerID)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	return inserted, err
}

func (s *PostgresStore) ListQueue(ctx context.Context, date string) ([]model.ContactQueueItem, error) {
	var out []model.ContactQueueItem
	err := pgEach(ctx, s.pool,
		`SELECT `+queueColumns+` FROM contact_queue WHERE queue_date = $1 ORDER BY position, id`,
		[]any{date}, func(r scannable) error {
			q, err := scanQueueItem(r)
			if err != nil {
				return err
			}
			out = append(out, *q)
			return nil
		})
	return out, eris.Wrapf(err, "postgres: list queue %s", date)
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id int64) (*model.ContactQueueItem, error) {
	q, err := scanQueueItem(s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM contact_queue WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "queue item", id, "postgres: get queue item")
	}
	return q, nil
}

func (s *PostgresStore) CloseQueueItem(ctx context.Context, id int64, status model.QueueStatus) (*model.ContactQueueItem, error) {
	q, err := scanQueueItem(s.pool.QueryRow(ctx,
		`UPDATE contact_queue SET status = $1, updated_at = $2 WHERE id = $3 AND status = 'pending'
		 RETURNING `+queueColumns,
		string(status), time.Now().UTC(), id,
	))
	if err == nil {
		return q, nil
	}
	if !isNoRows(err) {
		return nil, eris.Wrapf(err, "postgres: close queue item %d", id)
	}

	current, err := s.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, queueItemClosed(current)
}

func (s *PostgresStore) CreateInteraction(ctx context.Context, in *model.Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO interactions (owner_id, channel, result, notes, scheduled_follow_up, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		in.OwnerID, string(in.Channel), string(in.Result), in.Notes, utcPtr(in.ScheduledFollowUp), in.CreatedAt.UTC(),
	).Scan(&in.ID)
	return eris.Wrapf(err, "postgres: create interaction for owner %d", in.OwnerID)
}

func (s *PostgresStore) ListInteractions(ctx context.Context, ownerID int64) ([]model.Interaction, error) {
	var out []model.Interaction
	err := pgEach(ctx, s.pool,
		`SELECT `+interactionColumns+` FROM interactions WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`,
		[]any{ownerID}, func(r scannable) error {
			in, err := scanInteraction(r)
			if err != nil {
				return err
			}
			out = append(out, *in)
			return nil
		})
	return out, eris.Wrap(err, "postgres: list interactions")
}

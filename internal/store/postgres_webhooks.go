package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/model"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, w *model.WebhookConfig) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO webhooks (event_type, url, secret, is_active, failure_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $5) RETURNING id`,
		w.EventType, w.URL, w.Secret, w.IsActive, now,
	).Scan(&w.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: create webhook")
	}
	w.CreatedAt, w.UpdatedAt = now, now
	w.FailureCount = 0
	w.HasSecret = w.Secret != ""
	return nil
}

func (s *PostgresStore) GetWebhook(ctx context.Context, id int64) (*model.WebhookConfig, error) {
	w, err := scanWebhook(s.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "webhook", id, "postgres: get webhook")
	}
	return w, nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, filter WebhookFilter) ([]model.WebhookConfig, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE true`
	var args pgArgs
	if filter.EventType != "" {
		query += ` AND event_type = ` + args.add(filter.EventType)
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}

	var out []model.WebhookConfig
	err := pgEach(ctx, s.pool, query+` ORDER BY id`, args, func(r scannable) error {
		w, err := scanWebhook(r)
		if err != nil {
			return err
		}
		out = append(out, *w)
		return nil
	})
	return out, eris.Wrap(err, "postgres: list webhooks")
}

func (s *PostgresStore) UpdateWebhook(ctx context.Context, id int64, patch model.WebhookPatch) (*model.WebhookConfig, error) {
	var args pgArgs
	set := `updated_at = ` + args.add(time.Now().UTC())
	if patch.EventType != nil {
		set += `, event_type = ` + args.add(*patch.EventType)
	}
	if patch.URL != nil {
		set += `, url = ` + args.add(*patch.URL)
	}
	if patch.Secret != nil {
		set += `, secret = ` + args.add(*patch.Secret)
	}
	if patch.IsActive != nil {
		set += `, is_active = ` + args.add(*patch.IsActive)
		if *patch.IsActive {
			set += `, failure_count = 0`
		}
	}
	query := `UPDATE webhooks SET ` + set + ` WHERE id = ` + args.add(id) + ` RETURNING ` + webhookColumns

	w, err := scanWebhook(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFoundOr(err, "webhook", id, "postgres: update webhook")
	}
	return w, nil
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete webhook %d", id)
	}
	return checkTag(tag, "webhook", id)
}

func (s *PostgresStore) RecordDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event_id, event_type, status, response_code, retry_count, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		d.WebhookID, d.EventID, d.EventType, string(d.Status), d.ResponseCode, d.RetryCount, d.Error, d.CreatedAt.UTC(),
	).Scan(&d.ID)
	return eris.Wrapf(err, "postgres: record delivery for webhook %d", d.WebhookID)
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]model.WebhookDelivery, error) {
	var out []model.WebhookDelivery
	err := pgEach(ctx, s.pool,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE webhook_id = $1 ORDER BY id DESC LIMIT $2`,
		[]any{webhookID, pageLimit(limit)}, func(r scannable) error {
			d, err := scanDelivery(r)
			if err != nil {
				return err
			}
			out = append(out, *d)
			return nil
		})
	return out, eris.Wrap(err, "postgres: list deliveries")
}

func (s *PostgresStore) MarkWebhookTriggered(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE webhooks SET last_triggered_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark webhook %d triggered", id)
	}
	return checkTag(tag, "webhook", id)
}

func (s *PostgresStore) IncrementWebhookFailures(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhooks SET failure_count = failure_count + 1, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment webhook %d failures", id)
	}
	return checkTag(tag, "webhook", id)
}

// --- jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, j *model.Job) error {
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = model.JobRunning
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, kind, status, total, succeeded, failed, skipped, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, string(j.Kind), string(j.Status), j.Total, j.Succeeded, j.Failed, j.Skipped, j.Error,
		j.StartedAt.UTC(), utcPtr(j.FinishedAt),
	)
	return eris.Wrapf(err, "postgres: create job %s", j.ID)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, j *model.Job) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, total = $2, succeeded = $3, failed = $4, skipped = $5, error = $6, finished_at = $7 WHERE id = $8`,
		string(j.Status), j.Total, j.Succeeded, j.Failed, j.Skipped, j.Error, utcPtr(j.FinishedAt), j.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", j.ID)
	}
	return checkTag(tag, "job", j.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "job", id, "postgres: get job")
	}
	return j, nil
}

// --- customers ---

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO customers (name, document, email, city, external_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		c.Name, c.Document, c.Email, c.City, c.ExternalID, c.CreatedAt.UTC(),
	).Scan(&c.ID)
	return eris.Wrap(err, "postgres: create customer")
}

func (s *PostgresStore) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "customer", id, "postgres: get customer")
	}
	return c, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	var out []model.Customer
	err := pgEach(ctx, s.pool, `SELECT `+customerColumns+` FROM customers ORDER BY id`, nil, func(r scannable) error {
		c, err := scanCustomer(r)
		if err != nil {
			return err
		}
		out = append(out, *c)
		return nil
	})
	return out, eris.Wrap(err, "postgres: list customers")
}

func (s *PostgresStore) SetCustomerExternalID(ctx context.Context, id int64, externalID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE customers SET external_id = $1 WHERE id = $2`, externalID, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set customer %d external id", id)
	}
	return checkTag(tag, "customer", id)
}

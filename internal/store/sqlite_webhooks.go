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

func (s *SQLiteStore) CreateWebhook(ctx context.Context, w *model.WebhookConfig) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (event_type, url, secret, is_active, failure_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		w.EventType, w.URL, w.Secret, w.IsActive, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create webhook")
	}
	w.ID, err = res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: webhook id")
	}
	w.CreatedAt, w.UpdatedAt = now, now
	w.FailureCount = 0
	w.HasSecret = w.Secret != ""
	return nil
}

func (s *SQLiteStore) GetWebhook(ctx context.Context, id int64) (*model.WebhookConfig, error) {
	w, err := scanWebhook(s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("webhook", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get webhook %d", id)
	}
	return w, nil
}

func (s *SQLiteStore) ListWebhooks(ctx context.Context, filter WebhookFilter) ([]model.WebhookConfig, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE 1=1`
	var args []any
	if filter.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, filter.EventType)
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}

	var out []model.WebhookConfig
	err := s.eachRow(ctx, query+` ORDER BY id`, args, func(r scannable) error {
		w, err := scanWebhook(r)
		if err != nil {
			return err
		}
		out = append(out, *w)
		return nil
	})
	return out, eris.Wrap(err, "sqlite: list webhooks")
}

func (s *SQLiteStore) UpdateWebhook(ctx context.Context, id int64, patch model.WebhookPatch) (*model.WebhookConfig, error) {
	set := `updated_at = ?`
	args := []any{time.Now().UTC()}
	if patch.EventType != nil {
		set += `, event_type = ?`
		args = append(args, *patch.EventType)
	}
	if patch.URL != nil {
		set += `, url = ?`
		args = append(args, *patch.URL)
	}
	if patch.Secret != nil {
		set += `, secret = ?`
		args = append(args, *patch.Secret)
	}
	if patch.IsActive != nil {
		set += `, is_active = ?`
		args = append(args, *patch.IsActive)
		if *patch.IsActive {
			// Re-enabling a subscriber starts its failure count over.
			set += `, failure_count = 0`
		}
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE webhooks SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update webhook %d", id)
	}
	if err := checkRowsAffected(res, "webhook", id); err != nil {
		return nil, err
	}
	return s.GetWebhook(ctx, id)
}

func (s *SQLiteStore) DeleteWebhook(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE webhook_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete deliveries of webhook %d", id)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete webhook %d", id)
		}
		return checkRowsAffected(res, "webhook", id)
	})
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event_id, event_type, status, response_code, retry_count, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.WebhookID, d.EventID, d.EventType, string(d.Status), d.ResponseCode, d.RetryCount, d.Error, d.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record delivery for webhook %d", d.WebhookID)
	}
	d.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: delivery id")
}

func (s *SQLiteStore) ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]model.WebhookDelivery, error) {
	var out []model.WebhookDelivery
	err := s.eachRow(ctx,
		`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE webhook_id = ? ORDER BY id DESC LIMIT ?`,
		[]any{webhookID, pageLimit(limit)}, func(r scannable) error {
			d, err := scanDelivery(r)
			if err != nil {
				return err
			}
			out = append(out, *d)
			return nil
		})
	return out, eris.Wrap(err, "sqlite: list deliveries")
}

func (s *SQLiteStore) MarkWebhookTriggered(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE webhooks SET last_triggered_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark webhook %d triggered", id)
	}
	return checkRowsAffected(res, "webhook", id)
}

func (s *SQLiteStore) IncrementWebhookFailures(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET failure_count = failure_count + 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment webhook %d failures", id)
	}
	return checkRowsAffected(res, "webhook", id)
}

// --- jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now().UTC()
	}
	if j.Status == "" {
		j.Status = model.JobRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, status, total, succeeded, failed, skipped, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Kind), string(j.Status), j.Total, j.Succeeded, j.Failed, j.Skipped, j.Error,
		j.StartedAt.UTC(), utcPtr(j.FinishedAt),
	)
	return eris.Wrapf(err, "sqlite: create job %s", j.ID)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, j *model.Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, total = ?, succeeded = ?, failed = ?, skipped = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(j.Status), j.Total, j.Succeeded, j.Failed, j.Skipped, j.Error, utcPtr(j.FinishedAt), j.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", j.ID)
	}
	return checkRowsAffected(res, "job", j.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return j, nil
}

// --- customers ---

func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *model.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, document, email, city, external_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Document, c.Email, c.City, c.ExternalID, c.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: create customer")
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: customer id")
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id int64) (*model.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("customer", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get customer %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	var out []model.Customer
	err := s.eachRow(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY id`, nil, func(r scannable) error {
		c, err := scanCustomer(r)
		if err != nil {
			return err
		}
		out = append(out, *c)
		return nil
	})
	return out, eris.Wrap(err, "sqlite: list customers")
}

func (s *SQLiteStore) SetCustomerExternalID(ctx context.Context, id int64, externalID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET external_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set customer %d external id", id)
	}
	return checkRowsAffected(res, "customer", id)
}

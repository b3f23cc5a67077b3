package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

func (s *SQLiteStore) UpsertOwner(ctx context.Context, o *model.Owner) (bool, error) {
	now := time.Now().UTC()
	if o.LeadStatus == "" {
		o.LeadStatus = model.LeadStatusNew
	}
	if o.Priority == "" {
		o.Priority = model.PriorityLow
	}

	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM owners WHERE type = ? AND document = ?`,
			string(o.Type), o.Document,
		).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				`INSERT INTO owners (type, legal_name, trade_name, document, phone, phone2, email,
				 contact_source, notes, lead_status, priority, priority_reason, estimated_revenue, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				string(o.Type), o.LegalName, o.TradeName, o.Document, o.Phone, o.Phone2, o.Email,
				o.ContactSource, o.Notes, string(o.LeadStatus), string(o.Priority), o.PriorityReason,
				o.EstimatedRevenue, now, now,
			)
			if err != nil {
				return eris.Wrap(err, "sqlite: insert owner")
			}
			id, err = res.LastInsertId()
			if err != nil {
				return eris.Wrap(err, "sqlite: owner id")
			}
			o.CreatedAt = now
			created = true
		case err != nil:
			return eris.Wrap(err, "sqlite: find owner")
		default:
			// Registry refresh: names and revenue track the extract, contact
			// fields are only filled when empty.
			_, err = tx.ExecContext(ctx,
				`UPDATE owners SET legal_name = ?,
				 trade_name = CASE WHEN ? = '' THEN trade_name ELSE ? END,
				 phone = CASE WHEN phone = '' THEN ? ELSE phone END,
				 email = CASE WHEN email = '' THEN ? ELSE email END,
				 estimated_revenue = COALESCE(?, estimated_revenue),
				 updated_at = ?
				 WHERE id = ?`,
				o.LegalName, o.TradeName, o.TradeName, o.Phone, o.Email, o.EstimatedRevenue, now, id,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: update owner %d", id)
			}
		}
		o.ID = id
		o.UpdatedAt = now
		return nil
	})
	return created, err
}

func (s *SQLiteStore) GetOwner(ctx context.Context, id int64) (*model.Owner, error) {
	o, err := scanOwner(s.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners o WHERE o.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("owner", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get owner %d", id)
	}

	o.Locations, err = s.ListLocations(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *SQLiteStore) ListOwners(ctx context.Context, filter model.OwnerFilter) ([]model.Owner, int, error) {
	where := ` WHERE 1=1`
	var args []any

	if filter.Priority != "" {
		where += ` AND o.priority = ?`
		args = append(args, string(filter.Priority))
	}
	if filter.LeadStatus != "" {
		where += ` AND o.lead_status = ?`
		args = append(args, string(filter.LeadStatus))
	}
	if filter.Type != "" {
		where += ` AND o.type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.City != "" {
		where += ` AND EXISTS (SELECT 1 FROM locations l WHERE l.owner_id = o.id AND LOWER(l.address_city) = LOWER(?))`
		args = append(args, filter.City)
	}
	if filter.Search != "" {
		where += ` AND (o.legal_name LIKE ? OR o.trade_name LIKE ? OR o.document LIKE ?)`
		like := "%" + likeEscape(filter.Search) + "%"
		args = append(args, like, like, like)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM owners o`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count owners")
	}

	query := `SELECT ` + ownerColumns + ` FROM owners o` + where +
		` ORDER BY ` + priorityOrder + `, o.id LIMIT ? OFFSET ?`
	args = append(args, pageLimit(filter.Limit), max(filter.Offset, 0))

	owners, err := s.queryOwners(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	if err := s.loadLocations(ctx, owners); err != nil {
		return nil, 0, err
	}
	return owners, total, nil
}

func (s *SQLiteStore) AllOwners(ctx context.Context) ([]model.Owner, error) {
	owners, err := s.queryOwners(ctx, `SELECT `+ownerColumns+` FROM owners o ORDER BY o.id`)
	if err != nil {
		return nil, err
	}
	if err := s.loadLocations(ctx, owners); err != nil {
		return nil, err
	}
	return owners, nil
}

func (s *SQLiteStore) queryOwners(ctx context.Context, query string, args ...any) ([]model.Owner, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list owners")
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan owner")
		}
		owners = append(owners, *o)
	}
	return owners, eris.Wrap(rows.Err(), "sqlite: list owners iterate")
}

func (s *SQLiteStore) loadLocations(ctx context.Context, owners []model.Owner) error {
	if len(owners) == 0 {
		return nil
	}
	ids := make([]int64, len(owners))
	for i := range owners {
		ids[i] = owners[i].ID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE owner_id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: load locations")
	}
	defer rows.Close()

	var locs []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return eris.Wrap(err, "sqlite: scan location")
		}
		locs = append(locs, *l)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "sqlite: load locations iterate")
	}
	attachLocations(owners, locs)
	return nil
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, id int64, upd model.ContactUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE owners SET
		 phone = COALESCE(NULLIF(?, ''), phone),
		 phone2 = COALESCE(NULLIF(?, ''), phone2),
		 email = COALESCE(NULLIF(?, ''), email),
		 contact_source = COALESCE(NULLIF(?, ''), contact_source),
		 contact_enriched_at = ?, updated_at = ?
		 WHERE id = ?`,
		upd.Phone, upd.Phone2, upd.Email, upd.Source, upd.EnrichedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %d", id)
	}
	return checkRowsAffected(res, "owner", id)
}

func (s *SQLiteStore) UpdatePriority(ctx context.Context, id int64, p model.Priority, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE owners SET priority = ?, priority_reason = ?, priority_refreshed_at = ? WHERE id = ?`,
		string(p), reason, at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update priority %d", id)
	}
	return checkRowsAffected(res, "owner", id)
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, change model.StatusChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE owners SET lead_status = ?, updated_at = ? WHERE id = ? AND lead_status = ?`,
			string(change.ToStatus), time.Now().UTC(), change.OwnerID, string(change.FromStatus),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: transition owner %d", change.OwnerID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.staleStatus(ctx, tx, change.OwnerID)
		}
		return insertStatusChangeSQLite(ctx, tx, change)
	})
}

func (s *SQLiteStore) ConvertOwner(ctx context.Context, customerID int64, change model.StatusChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE owners SET lead_status = ?, converted_to_customer_id = ?, converted_at = ?, updated_at = ?
			 WHERE id = ? AND lead_status = ?
			 AND (converted_to_customer_id IS NULL OR converted_to_customer_id = ?)`,
			string(model.LeadStatusConverted), customerID, change.ChangedAt.UTC(), time.Now().UTC(),
			change.OwnerID, string(change.FromStatus), customerID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: convert owner %d", change.OwnerID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return s.staleStatus(ctx, tx, change.OwnerID)
		}
		change.ToStatus = model.LeadStatusConverted
		return insertStatusChangeSQLite(ctx, tx, change)
	})
}

// staleStatus explains why a conditional status update matched no row.
func (s *SQLiteStore) staleStatus(ctx context.Context, tx *sql.Tx, id int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT lead_status FROM owners WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("owner", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read status %d", id)
	}
	if model.LeadStatus(status) == model.LeadStatusConverted {
		return apperr.AlreadyConverted(id)
	}
	return apperr.ConcurrentModification(id)
}

func insertStatusChangeSQLite(ctx context.Context, tx *sql.Tx, c model.StatusChange) error {
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO status_changes (owner_id, from_status, to_status, note, source, changed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.OwnerID, string(c.FromStatus), string(c.ToStatus), c.Note, c.Source, c.ChangedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert status change")
}

func (s *SQLiteStore) LinkCustomer(ctx context.Context, id, customerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE owners SET converted_to_customer_id = ?, updated_at = ? WHERE id = ? AND converted_to_customer_id IS NULL`,
		customerID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: link owner %d", id)
	}
	n, err := res.RowsAffected()
	return n > 0, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteOwner(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM instrument_history WHERE instrument_id IN
			 (SELECT i.id FROM instruments i JOIN locations l ON l.id = i.location_id WHERE l.owner_id = ?)`,
			`DELETE FROM instruments WHERE location_id IN (SELECT id FROM locations WHERE owner_id = ?)`,
			`DELETE FROM locations WHERE owner_id = ?`,
			`DELETE FROM contact_queue WHERE owner_id = ?`,
			`DELETE FROM interactions WHERE owner_id = ?`,
			`DELETE FROM status_changes WHERE owner_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return eris.Wrapf(err, "sqlite: delete owner %d children", id)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM owners WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete owner %d", id)
		}
		return checkRowsAffected(res, "owner", id)
	})
}

func (s *SQLiteStore) ListStatusChanges(ctx context.Context, ownerID int64) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statusChangeColumns+` FROM status_changes WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list status changes")
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		c, err := scanStatusChange(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status change")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list status changes iterate")
}

func (s *SQLiteStore) LeadStats(ctx context.Context) (*model.LeadStats, error) {
	st := newStats()

	rows, err := s.db.QueryContext(ctx,
		`SELECT lead_status, priority, converted_to_customer_id IS NOT NULL, created_at, converted_at FROM owners`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
	}
	defer rows.Close()

	var days []float64
	for rows.Next() {
		var (
			status      model.LeadStatus
			priority    model.Priority
			linked      bool
			createdAt   time.Time
			convertedAt *time.Time
		)
		if err := rows.Scan(&status, &priority, &linked, &createdAt, &convertedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead stats")
		}
		st.Total++
		st.ByStatus[status]++
		st.ByPriority[priority]++
		if linked {
			st.Linked++
		}
		if status == model.LeadStatusConverted && convertedAt != nil {
			days = append(days, convertedAt.Sub(createdAt).Hours()/24)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats iterate")
	}
	buildStats(st, days)
	return st, nil
}

func (s *SQLiteStore) LeadSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.LeadSnapshot, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.ActiveOnly {
		where += ` AND o.lead_status NOT IN ('converted', 'lost')`
	}
	if filter.OwnerIDs != nil {
		if len(filter.OwnerIDs) == 0 {
			return nil, nil
		}
		where += ` AND o.id IN (` + placeholders(len(filter.OwnerIDs)) + `)`
		args = append(args, int64Args(filter.OwnerIDs)...)
	}

	idx := newSnapshotIndex()
	if err := s.eachRow(ctx, `SELECT o.id, o.lead_status FROM owners o`+where+` ORDER BY o.id`, args, func(r scannable) error {
		var id int64
		var status model.LeadStatus
		if err := r.Scan(&id, &status); err != nil {
			return err
		}
		idx.addOwner(id, status)
		return nil
	}); err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot owners")
	}
	if len(idx.ids()) == 0 {
		return nil, nil
	}

	in := ` IN (` + placeholders(len(idx.ids())) + `)`
	ownerArgs := int64Args(idx.ids())

	if err := s.eachRow(ctx,
		`SELECT `+instrumentColumns+` FROM instruments i JOIN locations l ON l.id = i.location_id
		 WHERE l.owner_id`+in+` ORDER BY i.id`, ownerArgs, func(r scannable) error {
			inst, err := scanInstrument(r)
			if err != nil {
				return err
			}
			idx.addInstrument(*inst)
			return nil
		}); err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot instruments")
	}

	if err := s.eachRow(ctx,
		`SELECT l.owner_id, h.instrument_id, h.event_date FROM instrument_history h
		 JOIN instruments i ON i.id = h.instrument_id JOIN locations l ON l.id = i.location_id
		 WHERE h.event_type = 'rejection' AND l.owner_id`+in, ownerArgs, func(r scannable) error {
			var ownerID, instrumentID int64
			var at time.Time
			if err := r.Scan(&ownerID, &instrumentID, &at); err != nil {
				return err
			}
			idx.addRejection(ownerID, instrumentID, at)
			return nil
		}); err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot rejections")
	}

	if err := s.eachRow(ctx,
		`SELECT owner_id, created_at, scheduled_follow_up FROM interactions
		 WHERE owner_id`+in+` ORDER BY owner_id, created_at, id`, ownerArgs, func(r scannable) error {
			var ownerID int64
			var at time.Time
			var followUp *time.Time
			if err := r.Scan(&ownerID, &at, &followUp); err != nil {
				return err
			}
			idx.addInteraction(ownerID, at, followUp)
			return nil
		}); err != nil {
		return nil, eris.Wrap(err, "sqlite: snapshot interactions")
	}

	return idx.list(), nil
}

// eachRow runs query and calls fn for every row. The rows are closed before
// it returns, so fn must not issue queries of its own.
func (s *SQLiteStore) eachRow(ctx context.Context, query string, args []any, fn func(scannable) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// likeEscape is applied to free-text search before it reaches LIKE.
func likeEscape(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

func (s *PostgresStore) UpsertOwner(ctx context.Context, o *model.Owner) (bool, error) {
	now := time.Now().UTC()
	if o.LeadStatus == "" {
		o.LeadStatus = model.LeadStatusNew
	}
	if o.Priority == "" {
		o.Priority = model.PriorityLow
	}

	// xmax = 0 only for freshly inserted tuples.
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO owners (type, legal_name, trade_name, document, phone, phone2, email,
		 contact_source, notes, lead_status, priority, priority_reason, estimated_revenue, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		 ON CONFLICT (type, document) DO UPDATE SET
		   legal_name = EXCLUDED.legal_name,
		   trade_name = CASE WHEN EXCLUDED.trade_name = '' THEN owners.trade_name ELSE EXCLUDED.trade_name END,
		   phone = CASE WHEN owners.phone = '' THEN EXCLUDED.phone ELSE owners.phone END,
		   email = CASE WHEN owners.email = '' THEN EXCLUDED.email ELSE owners.email END,
		   estimated_revenue = COALESCE(EXCLUDED.estimated_revenue, owners.estimated_revenue),
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, (xmax = 0)`,
		string(o.Type), o.LegalName, o.TradeName, o.Document, o.Phone, o.Phone2, o.Email,
		o.ContactSource, o.Notes, string(o.LeadStatus), string(o.Priority), o.PriorityReason,
		o.EstimatedRevenue, now,
	).Scan(&o.ID, &o.CreatedAt, &created)
	if err != nil {
		return false, eris.Wrap(err, "postgres: upsert owner")
	}
	o.UpdatedAt = now
	return created, nil
}

func (s *PostgresStore) GetOwner(ctx context.Context, id int64) (*model.Owner, error) {
	o, err := scanOwner(s.pool.QueryRow(ctx,
		`SELECT `+ownerColumns+` FROM owners o WHERE o.id = $1`, id,
	))
	if err != nil {
		return nil, notFoundOr(err, "owner", id, "postgres: get owner")
	}
	o.Locations, err = s.ListLocations(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) ListOwners(ctx context.Context, filter model.OwnerFilter) ([]model.Owner, int, error) {
	where := ` WHERE true`
	var args pgArgs

	if filter.Priority != "" {
		where += ` AND o.priority = ` + args.add(string(filter.Priority))
	}
	if filter.LeadStatus != "" {
		where += ` AND o.lead_status = ` + args.add(string(filter.LeadStatus))
	}
	if filter.Type != "" {
		where += ` AND o.type = ` + args.add(string(filter.Type))
	}
	if filter.City != "" {
		where += ` AND EXISTS (SELECT 1 FROM locations l WHERE l.owner_id = o.id AND lower(l.address_city) = lower(` + args.add(filter.City) + `))`
	}
	if filter.Search != "" {
		p := args.add("%" + likeEscape(filter.Search) + "%")
		where += ` AND (o.legal_name ILIKE ` + p + ` OR o.trade_name ILIKE ` + p + ` OR o.document ILIKE ` + p + `)`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM owners o`+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count owners")
	}

	query := `SELECT ` + ownerColumns + ` FROM owners o` + where + ` ORDER BY ` + priorityOrder + `, o.id`
	query += ` LIMIT ` + args.add(pageLimit(filter.Limit))
	query += ` OFFSET ` + args.add(max(filter.Offset, 0))

	owners, err := s.queryOwners(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return owners, total, nil
}

func (s *PostgresStore) AllOwners(ctx context.Context) ([]model.Owner, error) {
	return s.queryOwners(ctx, `SELECT `+ownerColumns+` FROM owners o ORDER BY o.id`)
}

func (s *PostgresStore) queryOwners(ctx context.Context, query string, args ...any) ([]model.Owner, error) {
	var owners []model.Owner
	err := pgEach(ctx, s.pool, query, args, func(r scannable) error {
		o, err := scanOwner(r)
		if err != nil {
			return err
		}
		owners = append(owners, *o)
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list owners")
	}
	if len(owners) == 0 {
		return owners, nil
	}

	ids := make([]int64, len(owners))
	for i, o := range owners {
		ids[i] = o.ID
	}
	var locs []model.Location
	err = pgEach(ctx, s.pool,
		`SELECT `+locationColumns+` FROM locations WHERE owner_id = ANY($1) ORDER BY id`,
		[]any{ids}, func(r scannable) error {
			l, err := scanLocation(r)
			if err != nil {
				return err
			}
			locs = append(locs, *l)
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load locations")
	}
	attachLocations(owners, locs)
	return owners, nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, id int64, upd model.ContactUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE owners SET
		 phone = COALESCE(NULLIF($1, ''), phone),
		 phone2 = COALESCE(NULLIF($2, ''), phone2),
		 email = COALESCE(NULLIF($3, ''), email),
		 contact_source = COALESCE(NULLIF($4, ''), contact_source),
		 contact_enriched_at = $5, updated_at = $6
		 WHERE id = $7`,
		upd.Phone, upd.Phone2, upd.Email, upd.Source, upd.EnrichedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %d", id)
	}
	return checkTag(tag, "owner", id)
}

func (s *PostgresStore) UpdatePriority(ctx context.Context, id int64, p model.Priority, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE owners SET priority = $1, priority_reason = $2, priority_refreshed_at = $3 WHERE id = $4`,
		string(p), reason, at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update priority %d", id)
	}
	return checkTag(tag, "owner", id)
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, change model.StatusChange) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE owners SET lead_status = $1, updated_at = $2 WHERE id = $3 AND lead_status = $4`,
			string(change.ToStatus), time.Now().UTC(), change.OwnerID, string(change.FromStatus),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: transition owner %d", change.OwnerID)
		}
		if tag.RowsAffected() == 0 {
			return staleStatusPostgres(ctx, tx, change.OwnerID)
		}
		return insertStatusChangePostgres(ctx, tx, change)
	})
}

func (s *PostgresStore) ConvertOwner(ctx context.Context, customerID int64, change model.StatusChange) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE owners SET lead_status = $1, converted_to_customer_id = $2, converted_at = $3, updated_at = $4
			 WHERE id = $5 AND lead_status = $6
			 AND (converted_to_customer_id IS NULL OR converted_to_customer_id = $2)`,
			string(model.LeadStatusConverted), customerID, change.ChangedAt.UTC(), time.Now().UTC(),
			change.OwnerID, string(change.FromStatus),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: convert owner %d", change.OwnerID)
		}
		if tag.RowsAffected() == 0 {
			return staleStatusPostgres(ctx, tx, change.OwnerID)
		}
		change.ToStatus = model.LeadStatusConverted
		return insertStatusChangePostgres(ctx, tx, change)
	})
}

// staleStatusPostgres explains why a conditional status update matched no row.
func staleStatusPostgres(ctx context.Context, tx pgx.Tx, id int64) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT lead_status FROM owners WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("owner", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read status %d", id)
	}
	if model.LeadStatus(status) == model.LeadStatusConverted {
		return apperr.AlreadyConverted(id)
	}
	return apperr.ConcurrentModification(id)
}

func insertStatusChangePostgres(ctx context.Context, tx pgx.Tx, c model.StatusChange) error {
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO status_changes (owner_id, from_status, to_status, note, source, changed_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.OwnerID, string(c.FromStatus), string(c.ToStatus), c.Note, c.Source, c.ChangedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert status change")
}

func (s *PostgresStore) LinkCustomer(ctx context.Context, id, customerID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE owners SET converted_to_customer_id = $1, updated_at = $2 WHERE id = $3 AND converted_to_customer_id IS NULL`,
		customerID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: link owner %d", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteOwner(ctx context.Context, id int64) error {
	// ON DELETE CASCADE removes locations, instruments, history, queue
	// items, interactions and status changes.
	tag, err := s.pool.Exec(ctx, `DELETE FROM owners WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete owner %d", id)
	}
	return checkTag(tag, "owner", id)
}

func (s *PostgresStore) ListStatusChanges(ctx context.Context, ownerID int64) ([]model.StatusChange, error) {
	var out []model.StatusChange
	err := pgEach(ctx, s.pool,
		`SELECT `+statusChangeColumns+` FROM status_changes WHERE owner_id = $1 ORDER BY id`,
		[]any{ownerID}, func(r scannable) error {
			c, err := scanStatusChange(r)
			if err != nil {
				return err
			}
			out = append(out, *c)
			return nil
		})
	return out, eris.Wrap(err, "postgres: list status changes")
}

func (s *PostgresStore) LeadStats(ctx context.Context) (*model.LeadStats, error) {
	st := newStats()
	var days []float64
	err := pgEach(ctx, s.pool,
		`SELECT lead_status, priority, converted_to_customer_id IS NOT NULL, created_at, converted_at FROM owners`,
		nil, func(r scannable) error {
			var (
				status      model.LeadStatus
				priority    model.Priority
				linked      bool
				createdAt   time.Time
				convertedAt *time.Time
			)
			if err := r.Scan(&status, &priority, &linked, &createdAt, &convertedAt); err != nil {
				return err
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
			return nil
		})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}
	buildStats(st, days)
	return st, nil
}

func (s *PostgresStore) LeadSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.LeadSnapshot, error) {
	where := ` WHERE true`
	var args pgArgs
	if filter.ActiveOnly {
		where += ` AND o.lead_status NOT IN ('converted', 'lost')`
	}
	if filter.OwnerIDs != nil {
		if len(filter.OwnerIDs) == 0 {
			return nil, nil
		}
		where += ` AND o.id = ANY(` + args.add(filter.OwnerIDs) + `)`
	}

	idx := newSnapshotIndex()
	if err := pgEach(ctx, s.pool, `SELECT o.id, o.lead_status FROM owners o`+where+` ORDER BY o.id`, args, func(r scannable) error {
		var id int64
		var status model.LeadStatus
		if err := r.Scan(&id, &status); err != nil {
			return err
		}
		idx.addOwner(id, status)
		return nil
	}); err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot owners")
	}
	if len(idx.ids()) == 0 {
		return nil, nil
	}
	ownerArgs := []any{idx.ids()}

	if err := pgEach(ctx, s.pool,
		`SELECT `+instrumentColumns+` FROM instruments i JOIN locations l ON l.id = i.location_id
		 WHERE l.owner_id = ANY($1) ORDER BY i.id`, ownerArgs, func(r scannable) error {
			inst, err := scanInstrument(r)
			if err != nil {
				return err
			}
			idx.addInstrument(*inst)
			return nil
		}); err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot instruments")
	}

	if err := pgEach(ctx, s.pool,
		`SELECT l.owner_id, h.instrument_id, max(h.event_date) FROM instrument_history h
		 JOIN instruments i ON i.id = h.instrument_id JOIN locations l ON l.id = i.location_id
		 WHERE h.event_type = 'rejection' AND l.owner_id = ANY($1)
		 GROUP BY l.owner_id, h.instrument_id`, ownerArgs, func(r scannable) error {
			var ownerID, instrumentID int64
			var at time.Time
			if err := r.Scan(&ownerID, &instrumentID, &at); err != nil {
				return err
			}
			idx.addRejection(ownerID, instrumentID, at)
			return nil
		}); err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot rejections")
	}

	if err := pgEach(ctx, s.pool,
		`SELECT DISTINCT ON (owner_id) owner_id, created_at, scheduled_follow_up FROM interactions
		 WHERE owner_id = ANY($1) ORDER BY owner_id, created_at DESC, id DESC`, ownerArgs, func(r scannable) error {
			var ownerID int64
			var at time.Time
			var followUp *time.Time
			if err := r.Scan(&ownerID, &at, &followUp); err != nil {
				return err
			}
			idx.addInteraction(ownerID, at, followUp)
			return nil
		}); err != nil {
		return nil, eris.Wrap(err, "postgres: snapshot interactions")
	}

	return idx.list(), nil
}

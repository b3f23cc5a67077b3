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

func (s *SQLiteStore) UpsertLocation(ctx context.Context, l *model.Location) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO locations (owner_id, location_key, address_street, address_number, address_district,
		 address_city, address_state, address_zip, latitude, longitude, distance_from_base_km,
		 farm_name, state_registration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, location_key) DO UPDATE SET
		   address_street = excluded.address_street,
		   address_number = excluded.address_number,
		   address_district = excluded.address_district,
		   address_city = excluded.address_city,
		   address_state = excluded.address_state,
		   address_zip = excluded.address_zip,
		   latitude = COALESCE(excluded.latitude, locations.latitude),
		   longitude = COALESCE(excluded.longitude, locations.longitude),
		   distance_from_base_km = COALESCE(excluded.distance_from_base_km, locations.distance_from_base_km),
		   farm_name = excluded.farm_name,
		   state_registration = excluded.state_registration
		 RETURNING id, created_at`,
		l.OwnerID, l.Key, l.AddressStreet, l.AddressNumber, l.AddressDistrict,
		l.AddressCity, l.AddressState, l.AddressZip, ptrArg(l.Latitude), ptrArg(l.Longitude), ptrArg(l.DistanceFromBaseKM),
		l.FarmName, l.StateRegistration, now,
	).Scan(&l.ID, &l.CreatedAt)
	return eris.Wrapf(err, "sqlite: upsert location for owner %d", l.OwnerID)
}

func (s *SQLiteStore) ListLocations(ctx context.Context, ownerID int64) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE owner_id = ? ORDER BY id`, ownerID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list locations")
	}
	defer rows.Close()

	var out []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list locations iterate")
}

func (s *SQLiteStore) UpsertInstruments(ctx context.Context, instruments []model.Instrument) (int64, error) {
	if len(instruments) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO instruments (location_id, inmetro_number, instrument_type, capacity, current_status,
			 last_verification_at, next_verification_at, last_executor, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (inmetro_number) DO UPDATE SET
			   location_id = excluded.location_id,
			   instrument_type = excluded.instrument_type,
			   capacity = excluded.capacity,
			   current_status = excluded.current_status,
			   last_verification_at = COALESCE(excluded.last_verification_at, instruments.last_verification_at),
			   next_verification_at = COALESCE(excluded.next_verification_at, instruments.next_verification_at),
			   last_executor = excluded.last_executor,
			   updated_at = excluded.updated_at`,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare instrument upsert")
		}
		defer stmt.Close()

		for _, in := range instruments {
			status := in.CurrentStatus
			if status == "" {
				status = model.InstrumentUnknown
			}
			res, err := stmt.ExecContext(ctx,
				in.LocationID, in.InmetroNumber, in.InstrumentType, in.Capacity, string(status),
				utcPtr(in.LastVerificationAt), utcPtr(in.NextVerificationAt), in.LastExecutor, now, now,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert instrument %s", in.InmetroNumber)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) InstrumentIDs(ctx context.Context, numbers []string) (map[string]int64, error) {
	out := make(map[string]int64, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	args := make([]any, len(numbers))
	for i, n := range numbers {
		args[i] = n
	}
	err := s.eachRow(ctx,
		`SELECT inmetro_number, id FROM instruments WHERE inmetro_number IN (`+placeholders(len(numbers))+`)`,
		args, func(r scannable) error {
			var num string
			var id int64
			if err := r.Scan(&num, &id); err != nil {
				return err
			}
			out[num] = id
			return nil
		})
	return out, eris.Wrap(err, "sqlite: instrument ids")
}

func (s *SQLiteStore) GetInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	return getInstrumentSQLite(ctx, s.db, id)
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getInstrumentSQLite(ctx context.Context, q sqliteQuerier, id int64) (*model.Instrument, error) {
	in, err := scanInstrument(q.QueryRowContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments i JOIN locations l ON l.id = i.location_id WHERE i.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("instrument", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get instrument %d", id)
	}
	return in, nil
}

func (s *SQLiteStore) ListInstruments(ctx context.Context, ownerID int64) ([]model.Instrument, error) {
	var out []model.Instrument
	err := s.eachRow(ctx,
		`SELECT `+instrumentColumns+` FROM instruments i JOIN locations l ON l.id = i.location_id
		 WHERE l.owner_id = ? ORDER BY i.id`, []any{ownerID}, func(r scannable) error {
			in, err := scanInstrument(r)
			if err != nil {
				return err
			}
			out = append(out, *in)
			return nil
		})
	return out, eris.Wrap(err, "sqlite: list instruments")
}

func (s *SQLiteStore) UpdateInstrument(ctx context.Context, id int64, upd model.InstrumentUpdate, entry model.HistoryEntry) (*model.Instrument, error) {
	set := `updated_at = ?`
	args := []any{time.Now().UTC()}
	if upd.Status != nil {
		set += `, current_status = ?`
		args = append(args, string(*upd.Status))
	}
	if upd.LastVerificationAt != nil {
		set += `, last_verification_at = ?`
		args = append(args, upd.LastVerificationAt.UTC())
	}
	if upd.NextVerificationAt != nil {
		set += `, next_verification_at = ?`
		args = append(args, upd.NextVerificationAt.UTC())
	}
	if upd.Executor != nil {
		set += `, last_executor = ?`
		args = append(args, *upd.Executor)
	}
	args = append(args, id)

	var out *model.Instrument
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE instruments SET `+set+` WHERE id = ?`, args...)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update instrument %d", id)
		}
		if err := checkRowsAffected(res, "instrument", id); err != nil {
			return err
		}
		entry.InstrumentID = id
		if err := insertHistorySQLite(ctx, tx, entry); err != nil {
			return err
		}
		out, err = getInstrumentSQLite(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if err := insertHistorySQLite(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

func insertHistorySQLite(ctx context.Context, tx *sql.Tx, e model.HistoryEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO instrument_history (instrument_id, event_type, event_date, result, executor, competitor_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.InstrumentID, string(e.EventType), e.EventDate.UTC(), e.Result, e.Executor, ptrArg(e.CompetitorName), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert history for instrument %d", e.InstrumentID)
}

func (s *SQLiteStore) ListHistory(ctx context.Context, instrumentID int64) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	err := s.eachRow(ctx,
		`SELECT `+historyColumns+` FROM instrument_history WHERE instrument_id = ? ORDER BY event_date, id`,
		[]any{instrumentID}, func(r scannable) error {
			h, err := scanHistory(r)
			if err != nil {
				return err
			}
			out = append(out, *h)
			return nil
		})
	return out, eris.Wrap(err, "sqlite: list history")
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

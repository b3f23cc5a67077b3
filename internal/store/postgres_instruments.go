package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/db"
	"github.com/sells-group/lead-intel/internal/geo"
	"github.com/sells-group/lead-intel/internal/model"
)

func (s *PostgresStore) UpsertLocation(ctx context.Context, l *model.Location) error {
	var point []byte
	if l.Latitude != nil && l.Longitude != nil && geo.ValidCoords(*l.Latitude, *l.Longitude) {
		var err error
		if point, err = geo.EncodePoint(*l.Latitude, *l.Longitude); err != nil {
			return err
		}
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO locations (owner_id, location_key, address_street, address_number, address_district,
		 address_city, address_state, address_zip, latitude, longitude, distance_from_base_km, geom,
		 farm_name, state_registration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, ST_GeomFromEWKB($12), $13, $14, $15)
		 ON CONFLICT (owner_id, location_key) DO UPDATE SET
		   address_street = EXCLUDED.address_street,
		   address_number = EXCLUDED.address_number,
		   address_district = EXCLUDED.address_district,
		   address_city = EXCLUDED.address_city,
		   address_state = EXCLUDED.address_state,
		   address_zip = EXCLUDED.address_zip,
		   latitude = COALESCE(EXCLUDED.latitude, locations.latitude),
		   longitude = COALESCE(EXCLUDED.longitude, locations.longitude),
		   distance_from_base_km = COALESCE(EXCLUDED.distance_from_base_km, locations.distance_from_base_km),
		   geom = COALESCE(EXCLUDED.geom, locations.geom),
		   farm_name = EXCLUDED.farm_name,
		   state_registration = EXCLUDED.state_registration
		 RETURNING id, created_at`,
		l.OwnerID, l.Key, l.AddressStreet, l.AddressNumber, l.AddressDistrict,
		l.AddressCity, l.AddressState, l.AddressZip, l.Latitude, l.Longitude, l.DistanceFromBaseKM, point,
		l.FarmName, l.StateRegistration, time.Now().UTC(),
	).Scan(&l.ID, &l.CreatedAt)
	return eris.Wrapf(err, "postgres: upsert location for owner %d", l.OwnerID)
}

func (s *PostgresStore) ListLocations(ctx context.Context, ownerID int64) ([]model.Location, error) {
	var out []model.Location
	err := pgEach(ctx, s.pool,
		`SELECT `+locationColumns+` FROM locations WHERE owner_id = $1 ORDER BY id`,
		[]any{ownerID}, func(r scannable) error {
			l, err := scanLocation(r)
			if err != nil {
				return err
			}
			out = append(out, *l)
			return nil
		})
	return out, eris.Wrap(err, "postgres: list locations")
}

var instrumentUpsert = db.Merge{
	Table: "instruments",
	Columns: []string{
		"location_id", "inmetro_number", "instrument_type", "capacity", "current_status",
		"last_verification_at", "next_verification_at", "last_executor", "created_at", "updated_at",
	},
	Key: []string{"inmetro_number"},
	Update: []string{
		"location_id", "instrument_type", "capacity", "current_status",
		"last_verification_at", "next_verification_at", "last_executor", "updated_at",
	},
	Keep: []string{"last_verification_at", "next_verification_at"},
}

func (s *PostgresStore) UpsertInstruments(ctx context.Context, instruments []model.Instrument) (int64, error) {
	if len(instruments) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	// One row per inmetro number; the last occurrence wins.
	pos := make(map[string]int, len(instruments))
	batch := make([]model.Instrument, 0, len(instruments))
	for _, in := range instruments {
		if i, ok := pos[in.InmetroNumber]; ok {
			batch[i] = in
			continue
		}
		pos[in.InmetroNumber] = len(batch)
		batch = append(batch, in)
	}

	n, err := db.Upsert(ctx, s.pool, instrumentUpsert, batch, func(in model.Instrument) []any {
		status := in.CurrentStatus
		if status == "" {
			status = model.InstrumentUnknown
		}
		return []any{
			in.LocationID, in.InmetroNumber, in.InstrumentType, in.Capacity, string(status),
			utcPtr(in.LastVerificationAt), utcPtr(in.NextVerificationAt), in.LastExecutor, now, now,
		}
	})
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert instruments")
	}
	return n, nil
}

func (s *PostgresStore) InstrumentIDs(ctx context.Context, numbers []string) (map[string]int64, error) {
	out := make(map[string]int64, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	err := pgEach(ctx, s.pool,
		`SELECT inmetro_number, id FROM instruments WHERE inmetro_number = ANY($1)`,
		[]any{numbers}, func(r scannable) error {
			var num string
			var id int64
			if err := r.Scan(&num, &id); err != nil {
				return err
			}
			out[num] = id
			return nil
		})
	return out, eris.Wrap(err, "postgres: instrument ids")
}

func (s *PostgresStore) GetInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	return getInstrumentPostgres(ctx, s.pool, id)
}

func getInstrumentPostgres(ctx context.Context, q pgQuerier, id int64) (*model.Instrument, error) {
	in, err := scanInstrument(q.QueryRow(ctx,
		`SELECT `+instrumentColumns+` FROM instruments i JOIN locations l ON l.id = i.location_id WHERE i.id = $1`, id,
	))
	if err != nil {
		return nil, notFoundOr(err, "instrument", id, "postgres: get instrument")
	}
	return in, nil
}

func (s *PostgresStore) ListInstruments(ctx context.Context, ownerID int64) ([]model.Instrument, error) {
	var out []model.Instrument
	err := pgEach(ctx, s.pool,
		`SELECT `+instrumentColumns+` FROM instruments i JOIN locations l ON l.id = i.location_id
		 WHERE l.owner_id = $1 ORDER BY i.id`, []any{ownerID}, func(r scannable) error {
			in, err := scanInstrument(r)
			if err != nil {
				return err
			}
			out = append(out, *in)
			return nil
		})
	return out, eris.Wrap(err, "postgres: list instruments")
}

func (s *PostgresStore) UpdateInstrument(ctx context.Context, id int64, upd model.InstrumentUpdate, entry model.HistoryEntry) (*model.Instrument, error) {
	var args pgArgs
	set := `updated_at = ` + args.add(time.Now().UTC())
	if upd.Status != nil {
		set += `, current_status = ` + args.add(string(*upd.Status))
	}
	if upd.LastVerificationAt != nil {
		set += `, last_verification_at = ` + args.add(upd.LastVerificationAt.UTC())
	}
	if upd.NextVerificationAt != nil {
		set += `, next_verification_at = ` + args.add(upd.NextVerificationAt.UTC())
	}
	if upd.Executor != nil {
		set += `, last_executor = ` + args.add(*upd.Executor)
	}
	query := `UPDATE instruments SET ` + set + ` WHERE id = ` + args.add(id)

	var out *model.Instrument
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "postgres: update instrument %d", id)
		}
		if err := checkTag(tag, "instrument", id); err != nil {
			return err
		}
		entry.InstrumentID = id
		if _, err := tx.Exec(ctx,
			`INSERT INTO instrument_history (instrument_id, event_type, event_date, result, executor, competitor_name, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			historyRow(entry)...,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert history for instrument %d", id)
		}
		out, err = getInstrumentPostgres(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var historyCopyColumns = []string{"instrument_id", "event_type", "event_date", "result", "executor", "competitor_name", "created_at"}

func historyRow(e model.HistoryEntry) []any {
	return []any{
		e.InstrumentID, string(e.EventType), e.EventDate.UTC(), e.Result, e.Executor, ptrArg(e.CompetitorName), time.Now().UTC(),
	}
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error) {
	n, err := db.CopyRecords(ctx, s.pool, "instrument_history", historyCopyColumns, entries, historyRow)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append history")
	}
	return n, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, instrumentID int64) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	err := pgEach(ctx, s.pool,
		`SELECT `+historyColumns+` FROM instrument_history WHERE instrument_id = $1 ORDER BY event_date, id`,
		[]any{instrumentID}, func(r scannable) error {
			h, err := scanHistory(r)
			if err != nil {
				return err
			}
			out = append(out, *h)
			return nil
		})
	return out, eris.Wrap(err, "postgres: list history")
}

package store

import (
	"github.com/sells-group/lead-intel/internal/model"
)

// Column lists and scanners shared by both backends. Both *sql.Row and
// pgx.Row satisfy scannable, and both drivers fill pointer destinations
// with nil for NULL.

const ownerColumns = `o.id, o.type, o.legal_name, o.trade_name, o.document,
	o.phone, o.phone2, o.email, o.contact_source, o.contact_enriched_at, o.notes,
	o.lead_status, o.converted_to_customer_id, o.converted_at,
	o.priority, o.priority_reason, o.priority_refreshed_at, o.estimated_revenue,
	o.created_at, o.updated_at,
	(SELECT COUNT(*) FROM instruments i JOIN locations l ON l.id = i.location_id WHERE l.owner_id = o.id)`

func scanOwner(row scannable) (*model.Owner, error) {
	var o model.Owner
	err := row.Scan(
		&o.ID, &o.Type, &o.LegalName, &o.TradeName, &o.Document,
		&o.Phone, &o.Phone2, &o.Email, &o.ContactSource, &o.ContactEnrichedAt, &o.Notes,
		&o.LeadStatus, &o.ConvertedToCustomerID, &o.ConvertedAt,
		&o.Priority, &o.PriorityReason, &o.PriorityRefreshedAt, &o.EstimatedRevenue,
		&o.CreatedAt, &o.UpdatedAt,
		&o.InstrumentsCount,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const locationColumns = `id, owner_id, location_key, address_street, address_number,
	address_district, address_city, address_state, address_zip,
	latitude, longitude, distance_from_base_km, farm_name, state_registration, created_at`

func scanLocation(row scannable) (*model.Location, error) {
	var l model.Location
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Key, &l.AddressStreet, &l.AddressNumber,
		&l.AddressDistrict, &l.AddressCity, &l.AddressState, &l.AddressZip,
		&l.Latitude, &l.Longitude, &l.DistanceFromBaseKM, &l.FarmName, &l.StateRegistration, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const instrumentColumns = `i.id, i.location_id, l.owner_id, i.inmetro_number, i.instrument_type,
	i.capacity, i.current_status, i.last_verification_at, i.next_verification_at,
	i.last_executor, i.created_at, i.updated_at`

func scanInstrument(row scannable) (*model.Instrument, error) {
	var in model.Instrument
	err := row.Scan(
		&in.ID, &in.LocationID, &in.OwnerID, &in.InmetroNumber, &in.InstrumentType,
		&in.Capacity, &in.CurrentStatus, &in.LastVerificationAt, &in.NextVerificationAt,
		&in.LastExecutor, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

const historyColumns = `id, instrument_id, event_type, event_date, result, executor, competitor_name, created_at`

func scanHistory(row scannable) (*model.HistoryEntry, error) {
	var h model.HistoryEntry
	err := row.Scan(&h.ID, &h.InstrumentID, &h.EventType, &h.EventDate, &h.Result, &h.Executor, &h.CompetitorName, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const queueColumns = `id, owner_id, queue_date, position, priority, reason, status, created_at, updated_at`

func scanQueueItem(row scannable) (*model.ContactQueueItem, error) {
	var q model.ContactQueueItem
	err := row.Scan(&q.ID, &q.OwnerID, &q.QueueDate, &q.Position, &q.Priority, &q.Reason, &q.Status, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

const interactionColumns = `id, owner_id, channel, result, notes, scheduled_follow_up, created_at`

func scanInteraction(row scannable) (*model.Interaction, error) {
	var in model.Interaction
	err := row.Scan(&in.ID, &in.OwnerID, &in.Channel, &in.Result, &in.Notes, &in.ScheduledFollowUp, &in.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

const statusChangeColumns = `id, owner_id, from_status, to_status, note, source, changed_at`

func scanStatusChange(row scannable) (*model.StatusChange, error) {
	var c model.StatusChange
	err := row.Scan(&c.ID, &c.OwnerID, &c.FromStatus, &c.ToStatus, &c.Note, &c.Source, &c.ChangedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const webhookColumns = `id, event_type, url, secret, is_active, failure_count, last_triggered_at, created_at, updated_at`

func scanWebhook(row scannable) (*model.WebhookConfig, error) {
	var w model.WebhookConfig
	err := row.Scan(&w.ID, &w.EventType, &w.URL, &w.Secret, &w.IsActive, &w.FailureCount, &w.LastTriggeredAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.HasSecret = w.Secret != ""
	return &w, nil
}

const deliveryColumns = `id, webhook_id, event_id, event_type, status, response_code, retry_count, error, created_at`

func scanDelivery(row scannable) (*model.WebhookDelivery, error) {
	var d model.WebhookDelivery
	err := row.Scan(&d.ID, &d.WebhookID, &d.EventID, &d.EventType, &d.Status, &d.ResponseCode, &d.RetryCount, &d.Error, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const jobColumns = `id, kind, status, total, succeeded, failed, skipped, error, started_at, finished_at`

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Kind, &j.Status, &j.Total, &j.Succeeded, &j.Failed, &j.Skipped, &j.Error, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

const customerColumns = `id, name, document, email, city, external_id, created_at`

func scanCustomer(row scannable) (*model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Document, &c.Email, &c.City, &c.ExternalID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// attachLocations distributes locs onto owners by owner id.
func attachLocations(owners []model.Owner, locs []model.Location) {
	idx := make(map[int64]int, len(owners))
	for i := range owners {
		idx[owners[i].ID] = i
	}
	for _, l := range locs {
		if i, ok := idx[l.OwnerID]; ok {
			owners[i].Locations = append(owners[i].Locations, l)
		}
	}
}

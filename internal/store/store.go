// Package store persists owners, instruments, the contact queue, webhooks
// and job records. SQLiteStore and PostgresStore implement the same
// contract; conditional updates carry the concurrency guarantees so they hold
// across process restarts.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/model"
)

// SnapshotFilter selects owners for LeadSnapshots.
type SnapshotFilter struct {
	OwnerIDs   []int64
	ActiveOnly bool
}

// WebhookFilter selects subscribers for ListWebhooks.
type WebhookFilter struct {
	EventType  string
	ActiveOnly bool
}

// OwnerStore persists owners and their lifecycle.
type OwnerStore interface {
	// UpsertOwner inserts o or updates the registry fields of the owner with
	// the same (type, document). It sets o.ID and reports whether a row was
	// created.
	UpsertOwner(ctx context.Context, o *model.Owner) (bool, error)
	GetOwner(ctx context.Context, id int64) (*model.Owner, error)
	// ListOwners returns one page of owners with locations and instrument
	// counts, plus the total number of matches.
	ListOwners(ctx context.Context, filter model.OwnerFilter) ([]model.Owner, int, error)
	// AllOwners returns every owner with its locations.
	AllOwners(ctx context.Context) ([]model.Owner, error)
	UpdateContact(ctx context.Context, id int64, upd model.ContactUpdate) error
	UpdatePriority(ctx context.Context, id int64, p model.Priority, reason string, at time.Time) error
	// TransitionStatus moves the owner from change.FromStatus to
	// change.ToStatus and records change. It fails with a concurrent
	// modification error when the stored status is no longer FromStatus.
	TransitionStatus(ctx context.Context, change model.StatusChange) error
	// ConvertOwner sets the CRM link, status converted and converted_at in
	// one conditional update and records change. An owner already converted
	// fails with an already-converted error.
	ConvertOwner(ctx context.Context, customerID int64, change model.StatusChange) error
	// LinkCustomer sets the CRM link only when none is held. It reports
	// whether the link was written.
	LinkCustomer(ctx context.Context, id, customerID int64) (bool, error)
	// DeleteOwner removes the owner with its locations, instruments,
	// history, queue items, interactions and status changes.
	DeleteOwner(ctx context.Context, id int64) error
	ListStatusChanges(ctx context.Context, ownerID int64) ([]model.StatusChange, error)
	LeadStats(ctx context.Context) (*model.LeadStats, error)
	LeadSnapshots(ctx context.Context, filter SnapshotFilter) ([]model.LeadSnapshot, error)
}

// InstrumentStore persists locations, instruments and their history.
type InstrumentStore interface {
	// UpsertLocation inserts l or updates the location with the same
	// (owner_id, key), setting l.ID.
	UpsertLocation(ctx context.Context, l *model.Location) error
	ListLocations(ctx context.Context, ownerID int64) ([]model.Location, error)
	// UpsertInstruments inserts or updates instruments keyed by
	// inmetro_number.
	UpsertInstruments(ctx context.Context, instruments []model.Instrument) (int64, error)
	// InstrumentIDs maps the given inmetro numbers to stored ids. Unknown
	// numbers are absent from the result.
	InstrumentIDs(ctx context.Context, numbers []string) (map[string]int64, error)
	GetInstrument(ctx context.Context, id int64) (*model.Instrument, error)
	ListInstruments(ctx context.Context, ownerID int64) ([]model.Instrument, error)
	// UpdateInstrument applies upd and appends entry in one transaction.
	UpdateInstrument(ctx context.Context, id int64, upd model.InstrumentUpdate, entry model.HistoryEntry) (*model.Instrument, error)
	AppendHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error)
	ListHistory(ctx context.Context, instrumentID int64) ([]model.HistoryEntry, error)
}

// QueueStore persists the daily contact queue and interactions.
type QueueStore interface {
	// InsertQueueItems inserts items, silently dropping any that collide
	// with an existing (owner_id, queue_date). It returns the number
	// inserted.
	InsertQueueItems(ctx context.Context, items []model.ContactQueueItem) (int, error)
	ListQueue(ctx context.Context, date string) ([]model.ContactQueueItem, error)
	GetQueueItem(ctx context.Context, id int64) (*model.ContactQueueItem, error)
	// CloseQueueItem moves a pending item to status. Items no longer
	// pending fail with a queue-item-closed error.
	CloseQueueItem(ctx context.Context, id int64, status model.QueueStatus) (*model.ContactQueueItem, error)
	CreateInteraction(ctx context.Context, in *model.Interaction) error
	ListInteractions(ctx context.Context, ownerID int64) ([]model.Interaction, error)
}

// WebhookStore persists subscribers and delivery attempts.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *model.WebhookConfig) error
	GetWebhook(ctx context.Context, id int64) (*model.WebhookConfig, error)
	ListWebhooks(ctx context.Context, filter WebhookFilter) ([]model.WebhookConfig, error)
	UpdateWebhook(ctx context.Context, id int64, patch model.WebhookPatch) (*model.WebhookConfig, error)
	DeleteWebhook(ctx context.Context, id int64) error
	RecordDelivery(ctx context.Context, d *model.WebhookDelivery) error
	ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]model.WebhookDelivery, error)
	MarkWebhookTriggered(ctx context.Context, id int64, at time.Time) error
	IncrementWebhookFailures(ctx context.Context, id int64) error
}

// JobStore persists batch job status records.
type JobStore interface {
	CreateJob(ctx context.Context, j *model.Job) error
	UpdateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// CustomerStore persists the local CRM customer mirror.
type CustomerStore interface {
	CreateCustomer(ctx context.Context, c *model.Customer) error
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	SetCustomerExternalID(ctx context.Context, id int64, externalID string) error
}

// Store is the full persistence contract.
type Store interface {
	OwnerStore
	InstrumentStore
	QueueStore
	WebhookStore
	JobStore
	CustomerStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, databaseURL string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// pageLimit clamps a requested page size.
func pageLimit(limit int) int {
	if limit <= 0 {
		return 25
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// priorityOrder ranks the cached priority column; it matches model.Priority.Rank.
const priorityOrder = `CASE o.priority WHEN 'critical' THEN 0 WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'normal' THEN 3 WHEN 'low' THEN 4 ELSE 5 END`

// buildStats finishes a LeadStats from per-owner conversion durations.
func buildStats(st *model.LeadStats, convertDays []float64) {
	converted := st.ByStatus[model.LeadStatusConverted]
	if st.Total > 0 {
		st.ConversionRate = float64(converted) / float64(st.Total)
	}
	st.ConvertedMeasured = len(convertDays)
	if len(convertDays) > 0 {
		var sum float64
		for _, d := range convertDays {
			sum += d
		}
		st.AvgDaysToConvert = sum / float64(len(convertDays))
	}
}

func newStats() *model.LeadStats {
	st := &model.LeadStats{
		ByStatus:   make(map[model.LeadStatus]int),
		ByPriority: make(map[model.Priority]int),
	}
	for _, s := range model.AllLeadStatuses() {
		st.ByStatus[s] = 0
	}
	return st
}

// snapshotIndex assembles LeadSnapshots from the separately loaded rows.
type snapshotIndex struct {
	order []int64
	byID  map[int64]*model.LeadSnapshot
}

func newSnapshotIndex() *snapshotIndex {
	return &snapshotIndex{byID: make(map[int64]*model.LeadSnapshot)}
}

func (x *snapshotIndex) addOwner(id int64, status model.LeadStatus) {
	x.order = append(x.order, id)
	x.byID[id] = &model.LeadSnapshot{OwnerID: id, LeadStatus: status}
}

func (x *snapshotIndex) addInstrument(in model.Instrument) {
	if s, ok := x.byID[in.OwnerID]; ok {
		s.Instruments = append(s.Instruments, in)
	}
}

func (x *snapshotIndex) addRejection(ownerID, instrumentID int64, at time.Time) {
	s, ok := x.byID[ownerID]
	if !ok {
		return
	}
	for i := range s.Instruments {
		in := &s.Instruments[i]
		if in.ID == instrumentID && (in.RejectedAt == nil || at.After(*in.RejectedAt)) {
			t := at
			in.RejectedAt = &t
		}
	}
}

// addInteraction must be called in ascending (created_at, id) order so the
// last call per owner is its latest interaction.
func (x *snapshotIndex) addInteraction(ownerID int64, at time.Time, followUp *time.Time) {
	s, ok := x.byID[ownerID]
	if !ok {
		return
	}
	t := at
	s.LastInteractionAt = &t
	s.FollowUpAt = followUp
}

func (x *snapshotIndex) list() []model.LeadSnapshot {
	out := make([]model.LeadSnapshot, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, *x.byID[id])
	}
	return out
}

func (x *snapshotIndex) ids() []int64 {
	return x.order
}

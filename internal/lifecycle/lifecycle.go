// Package lifecycle owns the lead state machine: status transitions,
// conversion into CRM customers, deletion, interactions and the cached
// priority that instrument changes invalidate.
package lifecycle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
)

// Store is the persistence the manager needs.
type Store interface {
	GetOwner(ctx context.Context, id int64) (*model.Owner, error)
	TransitionStatus(ctx context.Context, change model.StatusChange) error
	ConvertOwner(ctx context.Context, customerID int64, change model.StatusChange) error
	LinkCustomer(ctx context.Context, id, customerID int64) (bool, error)
	DeleteOwner(ctx context.Context, id int64) error
	ListStatusChanges(ctx context.Context, ownerID int64) ([]model.StatusChange, error)
	LeadStats(ctx context.Context) (*model.LeadStats, error)
	LeadSnapshots(ctx context.Context, filter store.SnapshotFilter) ([]model.LeadSnapshot, error)
	UpdatePriority(ctx context.Context, id int64, p model.Priority, reason string, at time.Time) error
	GetInstrument(ctx context.Context, id int64) (*model.Instrument, error)
	UpdateInstrument(ctx context.Context, id int64, upd model.InstrumentUpdate, entry model.HistoryEntry) (*model.Instrument, error)
	CreateInteraction(ctx context.Context, in *model.Interaction) error
}

// CustomerDirectory creates or finds the CRM customer for an owner.
type CustomerDirectory interface {
	EnsureCustomer(ctx context.Context, o *model.Owner) (*model.Customer, error)
}

// Manager applies lifecycle operations. Every mutation of an owner holds
// that owner's lock for its duration.
type Manager struct {
	store  Store
	dir    CustomerDirectory
	scorer *scoring.Scorer
	locks  *ownerlock.Locker
	pub    events.Publisher
	now    func() time.Time
	loc    *time.Location
	log    *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher sets the event sink. The default discards events.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.pub = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLocation sets the zone that defines "today" for scoring.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// New returns a Manager.
func New(st Store, dir CustomerDirectory, scorer *scoring.Scorer, locks *ownerlock.Locker, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		dir:    dir,
		scorer: scorer,
		locks:  locks,
		pub:    events.Nop{},
		now:    time.Now,
		loc:    time.UTC,
		log:    zap.L().With(zap.String("component", "lifecycle")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) today() time.Time {
	return m.now().In(m.loc)
}

// StatusRequest asks for a lifecycle transition. Channel and Result, when
// both set, also log an Interaction carrying Note.
type StatusRequest struct {
	Status  model.LeadStatus
	Note    string
	Channel model.Channel
	Result  model.InteractionResult
	Source  string
}

// Conversion is the outcome of Convert.
type Conversion struct {
	OwnerID     int64     `json:"owner_id"`
	CustomerID  int64     `json:"customer_id"`
	ConvertedAt time.Time `json:"converted_at"`
}

// UpdateStatus moves an owner along the funnel and returns it. Requests for
// converted are routed through Convert.
func (m *Manager) UpdateStatus(ctx context.Context, ownerID int64, req StatusRequest) (*model.Owner, error) {
	if !req.Status.Valid() {
		return nil, apperr.Validation("unknown lead status %q", req.Status)
	}
	if err := validateInteraction(req.Channel, req.Result); err != nil {
		return nil, err
	}
	if req.Source == "" {
		req.Source = model.ChangeSourceUser
	}

	if req.Status == model.LeadStatusConverted {
		if _, err := m.Convert(ctx, ownerID, req.Source, req.Note); err != nil {
			return nil, err
		}
	} else if err := m.transition(ctx, ownerID, req); err != nil {
		return nil, err
	}

	if req.Channel != "" {
		if _, err := m.RecordInteraction(ctx, model.Interaction{
			OwnerID: ownerID,
			Channel: req.Channel,
			Result:  req.Result,
			Notes:   req.Note,
		}); err != nil {
			return nil, err
		}
	}
	return m.store.GetOwner(ctx, ownerID)
}

func (m *Manager) transition(ctx context.Context, ownerID int64, req StatusRequest) error {
	release, err := m.locks.Acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	o, err := m.store.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if o.LeadStatus == model.LeadStatusConverted {
		return apperr.AlreadyConverted(ownerID)
	}
	if err := CanTransition(o.LeadStatus, req.Status); err != nil {
		return err
	}

	change := model.StatusChange{
		OwnerID:    ownerID,
		FromStatus: o.LeadStatus,
		ToStatus:   req.Status,
		Note:       req.Note,
		Source:     req.Source,
		ChangedAt:  m.now().UTC(),
	}
	if err := m.store.TransitionStatus(ctx, change); err != nil {
		return err
	}

	m.log.Info("lifecycle: status changed",
		zap.Int64("owner_id", ownerID),
		zap.String("from", string(change.FromStatus)),
		zap.String("to", string(change.ToStatus)),
	)
	m.pub.Publish(ctx, events.LeadStatusChanged{
		OwnerID:    ownerID,
		FromStatus: string(change.FromStatus),
		ToStatus:   string(change.ToStatus),
		Note:       change.Note,
		Source:     change.Source,
	})
	return nil
}

// Convert turns an owner into a CRM customer, at most once. An existing
// authoritative link is reused; otherwise the directory finds or creates the
// customer.
func (m *Manager) Convert(ctx context.Context, ownerID int64, source, note string) (*Conversion, error) {
	if source == "" {
		source = model.ChangeSourceUser
	}
	release, err := m.locks.Acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := m.store.GetOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	switch o.LeadStatus {
	case model.LeadStatusConverted:
		return nil, apperr.AlreadyConverted(ownerID)
	case model.LeadStatusLost:
		return nil, apperr.InvalidTransition(string(o.LeadStatus), string(model.LeadStatusConverted))
	}

	var customerID int64
	if o.ConvertedToCustomerID != nil {
		customerID = *o.ConvertedToCustomerID
	} else {
		c, err := m.dir.EnsureCustomer(ctx, o)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindUpstream, apperr.CodeProviderFailure, "customer directory unavailable")
		}
		customerID = c.ID
	}

	at := m.now().UTC()
	if err := m.convertLocked(ctx, o, customerID, source, note, at); err != nil {
		return nil, err
	}
	return &Conversion{OwnerID: ownerID, CustomerID: customerID, ConvertedAt: at}, nil
}

// convertLocked must be called with the owner's lock held.
func (m *Manager) convertLocked(ctx context.Context, o *model.Owner, customerID int64, source, note string, at time.Time) error {
	change := model.StatusChange{
		OwnerID:    o.ID,
		FromStatus: o.LeadStatus,
		ToStatus:   model.LeadStatusConverted,
		Note:       note,
		Source:     source,
		ChangedAt:  at,
	}
	if err := m.store.ConvertOwner(ctx, customerID, change); err != nil {
		return err
	}

	m.log.Info("lifecycle: owner converted",
		zap.Int64("owner_id", o.ID),
		zap.Int64("customer_id", customerID),
		zap.String("source", source),
	)
	m.pub.Publish(ctx, events.LeadConverted{
		OwnerID:     o.ID,
		CustomerID:  customerID,
		Document:    o.Document,
		LegalName:   o.LegalName,
		Source:      source,
		ConvertedAt: at,
	})
	return nil
}

// LinkFromMatch records an authoritative cross-reference hit. An owner still
// at new is converted; one the user already advanced only gains the link.
// Owners holding a link are left alone.
func (m *Manager) LinkFromMatch(ctx context.Context, ownerID, customerID int64) (linked, converted bool, err error) {
	release, err := m.locks.Acquire(ctx, ownerID)
	if err != nil {
		return false, false, err
	}
	defer release()

	o, err := m.store.GetOwner(ctx, ownerID)
	if err != nil {
		return false, false, err
	}
	if o.Linked() {
		return false, false, nil
	}
	if o.LeadStatus == model.LeadStatusNew {
		if err := m.convertLocked(ctx, o, customerID, model.ChangeSourceXref, "", m.now().UTC()); err != nil {
			return false, false, err
		}
		return true, true, nil
	}
	linked, err = m.store.LinkCustomer(ctx, ownerID, customerID)
	return linked, false, err
}

// Delete removes an owner and everything it owns. An owner with a CRM link
// is only deleted when force is set.
func (m *Manager) Delete(ctx context.Context, ownerID int64, force bool) error {
	release, err := m.locks.Acquire(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	o, err := m.store.GetOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if o.Linked() && !force {
		return apperr.ConversionConflict(ownerID)
	}
	if err := m.store.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}

	m.log.Info("lifecycle: owner deleted", zap.Int64("owner_id", ownerID), zap.Bool("force", force))
	m.pub.Publish(ctx, events.LeadDeleted{
		OwnerID:    ownerID,
		Document:   o.Document,
		CustomerID: o.ConvertedToCustomerID,
		Forced:     force && o.Linked(),
	})
	return nil
}

// RecordInteraction appends a contact attempt and refreshes the owner's
// priority, since a contact clears a recent-rejection alert.
func (m *Manager) RecordInteraction(ctx context.Context, in model.Interaction) (*model.Interaction, error) {
	if in.Channel == "" || in.Result == "" {
		return nil, apperr.Validation("channel and result are required")
	}
	if err := validateInteraction(in.Channel, in.Result); err != nil {
		return nil, err
	}
	if _, err := m.store.GetOwner(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	in.ID = 0
	in.CreatedAt = m.now().UTC()
	if err := m.store.CreateInteraction(ctx, &in); err != nil {
		return nil, err
	}

	m.pub.Publish(ctx, events.InteractionCreated{
		InteractionID:     in.ID,
		OwnerID:           in.OwnerID,
		Channel:           string(in.Channel),
		Result:            string(in.Result),
		ScheduledFollowUp: in.ScheduledFollowUp,
	})
	if _, err := m.RefreshPriority(ctx, in.OwnerID); err != nil {
		m.log.Warn("lifecycle: refresh priority after interaction", zap.Int64("owner_id", in.OwnerID), zap.Error(err))
	}
	return &in, nil
}

func validateInteraction(ch model.Channel, res model.InteractionResult) error {
	if ch == "" && res == "" {
		return nil
	}
	if !ch.Valid() {
		return apperr.Validation("unknown channel %q", ch)
	}
	if !res.Valid() {
		return apperr.Validation("unknown interaction result %q", res)
	}
	return nil
}

// UpdateInstrumentStatus applies a verification outcome or schedule change
// to an instrument, appends the matching history entry and recomputes the
// owner's cached priority.
func (m *Manager) UpdateInstrumentStatus(ctx context.Context, instrumentID int64, upd model.InstrumentUpdate) (*model.Instrument, scoring.Result, error) {
	if upd.Status == nil && upd.LastVerificationAt == nil && upd.NextVerificationAt == nil && upd.Executor == nil {
		return nil, scoring.Result{}, apperr.Validation("instrument update has no fields")
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, scoring.Result{}, apperr.Validation("unknown instrument status %q", *upd.Status)
	}

	current, err := m.store.GetInstrument(ctx, instrumentID)
	if err != nil {
		return nil, scoring.Result{}, err
	}

	release, err := m.locks.Acquire(ctx, current.OwnerID)
	if err != nil {
		return nil, scoring.Result{}, err
	}
	defer release()

	if upd.EventDate.IsZero() {
		upd.EventDate = m.now().UTC()
	}
	entry := model.HistoryEntry{
		InstrumentID:   instrumentID,
		EventType:      model.HistoryVerification,
		EventDate:      upd.EventDate,
		CompetitorName: upd.CompetitorName,
	}
	if upd.Status != nil {
		entry.EventType = model.HistoryEventFor(*upd.Status)
		entry.Result = string(*upd.Status)
	}
	if upd.Executor != nil {
		entry.Executor = *upd.Executor
	}

	inst, err := m.store.UpdateInstrument(ctx, instrumentID, upd, entry)
	if err != nil {
		return nil, scoring.Result{}, err
	}
	res, err := m.RefreshPriority(ctx, current.OwnerID)
	if err != nil {
		return nil, scoring.Result{}, err
	}
	return inst, res, nil
}

// RefreshPriority rescores one owner and caches the result.
func (m *Manager) RefreshPriority(ctx context.Context, ownerID int64) (scoring.Result, error) {
	snaps, err := m.store.LeadSnapshots(ctx, store.SnapshotFilter{OwnerIDs: []int64{ownerID}})
	if err != nil {
		return scoring.Result{}, err
	}
	if len(snaps) == 0 {
		return scoring.Result{}, apperr.NotFound("owner", ownerID)
	}
	return m.cache(ctx, snaps[0])
}

// RefreshAll rescores every owner. It returns the number refreshed.
func (m *Manager) RefreshAll(ctx context.Context) (int, error) {
	snaps, err := m.store.LeadSnapshots(ctx, store.SnapshotFilter{})
	if err != nil {
		return 0, err
	}
	for i, s := range snaps {
		if _, err := m.cache(ctx, s); err != nil {
			return i, err
		}
	}
	return len(snaps), nil
}

func (m *Manager) cache(ctx context.Context, s model.LeadSnapshot) (scoring.Result, error) {
	res := m.scorer.Score(scoring.InputFromSnapshot(s), m.today())
	if err := m.store.UpdatePriority(ctx, s.OwnerID, res.Priority, res.Reason, m.now().UTC()); err != nil {
		return scoring.Result{}, eris.Wrapf(err, "lifecycle: cache priority for owner %d", s.OwnerID)
	}
	return res, nil
}

// Stats returns funnel counts, conversion rate and average days to convert.
func (m *Manager) Stats(ctx context.Context) (*model.LeadStats, error) {
	return m.store.LeadStats(ctx)
}

// StatusHistory returns the recorded transitions of an owner.
func (m *Manager) StatusHistory(ctx context.Context, ownerID int64) ([]model.StatusChange, error) {
	if _, err := m.store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	return m.store.ListStatusChanges(ctx, ownerID)
}

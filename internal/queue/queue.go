// Package queue builds the daily contact queue: active owners ranked by
// priority, deduplicated per calendar date.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/jobs"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
)

// Store is the persistence the generator needs.
type Store interface {
	jobs.Store
	LeadSnapshots(ctx context.Context, filter store.SnapshotFilter) ([]model.LeadSnapshot, error)
	ListQueue(ctx context.Context, date string) ([]model.ContactQueueItem, error)
	InsertQueueItems(ctx context.Context, items []model.ContactQueueItem) (int, error)
	GetQueueItem(ctx context.Context, id int64) (*model.ContactQueueItem, error)
	CloseQueueItem(ctx context.Context, id int64, status model.QueueStatus) (*model.ContactQueueItem, error)
}

// Result is the outcome of one Generate call.
type Result struct {
	Date    string                   `json:"date"`
	JobID   string                   `json:"job_id"`
	Created int                      `json:"created"`
	Items   []model.ContactQueueItem `json:"items"`
}

// Generator creates and updates queue items.
type Generator struct {
	store  Store
	scorer *scoring.Scorer
	locks  *ownerlock.Locker
	pub    events.Publisher
	loc    *time.Location
	log    *zap.Logger

	mu    sync.Mutex
	dates map[string]*dateEntry
}

type dateEntry struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Generator.
type Option func(*Generator)

// WithPublisher sets the event sink.
func WithPublisher(p events.Publisher) Option {
	return func(g *Generator) { g.pub = p }
}

// WithLocation sets the zone queue dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// New returns a Generator.
func New(st Store, scorer *scoring.Scorer, locks *ownerlock.Locker, opts ...Option) *Generator {
	g := &Generator{
		store:  st,
		scorer: scorer,
		locks:  locks,
		pub:    events.Nop{},
		loc:    time.UTC,
		log:    zap.L().With(zap.String("component", "queue")),
		dates:  make(map[string]*dateEntry),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Today returns the current queue date.
func (g *Generator) Today() string {
	return time.Now().In(g.loc).Format(model.DateLayout)
}

// ParseDate validates a queue date and returns it as midnight in the
// generator's zone.
func (g *Generator) ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, date, g.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid queue date %q, want YYYY-MM-DD", date)
	}
	return d, nil
}

// lockDate serializes generators for one date. Entries are dropped once no
// caller holds or waits on them.
func (g *Generator) lockDate(date string) (unlock func()) {
	g.mu.Lock()
	e, ok := g.dates[date]
	if !ok {
		e = &dateEntry{}
		g.dates[date] = e
	}
	e.refs++
	g.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		g.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(g.dates, date)
		}
		g.mu.Unlock()
	}
}

// Generate builds the queue for date and returns the full item set for that
// date. Owners already queued for the date are left alone, so repeated or
// concurrent calls converge on the same set. A positive limit caps the
// day's total, counting items already present; zero means unbounded.
func (g *Generator) Generate(ctx context.Context, date string, limit int) (*Result, error) {
	day, err := g.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, apperr.Validation("limit must not be negative")
	}

	unlock := g.lockDate(date)
	defer unlock()

	tracker, err := jobs.Start(ctx, g.store, model.JobQueueGenerate, 0)
	if err != nil {
		return nil, err
	}
	res, err := g.generate(ctx, date, day, limit, tracker)
	job := tracker.Finish(ctx, err)
	if err != nil {
		return nil, err
	}

	g.log.Info("queue: generated",
		zap.String("date", date),
		zap.String("job_id", job.ID),
		zap.Int("created", res.Created),
		zap.Int("total", len(res.Items)),
	)
	g.pub.Publish(ctx, events.QueueGenerated{
		Date:    date,
		JobID:   job.ID,
		Created: res.Created,
		Total:   len(res.Items),
	})
	return res, nil
}

func (g *Generator) generate(ctx context.Context, date string, day time.Time, limit int, tracker *jobs.Tracker) (*Result, error) {
	existing, err := g.store.ListQueue(ctx, date)
	if err != nil {
		return nil, err
	}
	queued := make(map[int64]bool, len(existing))
	for _, it := range existing {
		queued[it.OwnerID] = true
	}

	snaps, err := g.store.LeadSnapshots(ctx, store.SnapshotFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	var candidates []scoring.Result
	for _, s := range snaps {
		if queued[s.OwnerID] || deferred(s, date, g.loc) {
			continue
		}
		candidates = append(candidates, g.scorer.Score(scoring.InputFromSnapshot(s), day))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scoring.Less(candidates[i], candidates[j])
	})

	if limit > 0 {
		room := max(limit-len(existing), 0)
		if len(candidates) > room {
			candidates = candidates[:room]
		}
	}
	tracker.SetTotal(len(candidates))

	items := make([]model.ContactQueueItem, 0, len(candidates))
	for i, c := range candidates {
		items = append(items, model.ContactQueueItem{
			OwnerID:   c.OwnerID,
			QueueDate: date,
			Position:  len(existing) + i + 1,
			Priority:  c.Priority,
			Reason:    c.Reason,
			Status:    model.QueueStatusPending,
		})
	}

	created, err := g.store.InsertQueueItems(ctx, items)
	if err != nil {
		return nil, eris.Wrapf(err, "queue: insert items for %s", date)
	}
	tracker.Add(created, 0, len(items)-created)

	all, err := g.store.ListQueue(ctx, date)
	if err != nil {
		return nil, err
	}
	return &Result{Date: date, JobID: tracker.ID(), Created: created, Items: all}, nil
}

// deferred reports whether the owner's latest interaction schedules a
// follow-up after date.
func deferred(s model.LeadSnapshot, date string, loc *time.Location) bool {
	if s.FollowUpAt == nil {
		return false
	}
	return model.CalendarDate(*s.FollowUpAt, loc) > date
}

// List returns the queue for date in position order.
func (g *Generator) List(ctx context.Context, date string) ([]model.ContactQueueItem, error) {
	if _, err := g.ParseDate(date); err != nil {
		return nil, err
	}
	return g.store.ListQueue(ctx, date)
}

// MarkItem closes a pending item as contacted or skipped. Closed items
// cannot be reopened.
func (g *Generator) MarkItem(ctx context.Context, id int64, status model.QueueStatus) (*model.ContactQueueItem, error) {
	if status != model.QueueStatusContacted && status != model.QueueStatusSkipped {
		return nil, apperr.Validation("queue status must be contacted or skipped, got %q", status)
	}
	item, err := g.store.GetQueueItem(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := g.locks.Acquire(ctx, item.OwnerID)
	if err != nil {
		return nil, err
	}
	defer release()

	updated, err := g.store.CloseQueueItem(ctx, id, status)
	if err != nil {
		return nil, err
	}
	g.pub.Publish(ctx, events.QueueItemUpdated{
		ItemID:    updated.ID,
		OwnerID:   updated.OwnerID,
		QueueDate: updated.QueueDate,
		Status:    string(updated.Status),
	})
	return updated, nil
}

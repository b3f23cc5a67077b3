// Package importer loads owners, locations, instruments and their initial
// history from registry extracts. Sources are local files or http(s) and ftp
// URLs; CSV and XLSX formats are supported.
package importer

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/geo"
	"github.com/sells-group/lead-intel/internal/jobs"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/scoring"
)

const (
	defaultBatchSize = 500
	maxRowErrors     = 50
)

// Store is the persistence an import needs.
type Store interface {
	jobs.Store
	UpsertOwner(ctx context.Context, o *model.Owner) (bool, error)
	UpsertLocation(ctx context.Context, l *model.Location) error
	UpsertInstruments(ctx context.Context, instruments []model.Instrument) (int64, error)
	InstrumentIDs(ctx context.Context, numbers []string) (map[string]int64, error)
	AppendHistory(ctx context.Context, entries []model.HistoryEntry) (int64, error)
}

// Rescorer refreshes an owner's cached priority after its instruments change.
type Rescorer interface {
	RefreshPriority(ctx context.Context, ownerID int64) (scoring.Result, error)
}

// RowError describes one rejected extract row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Result summarizes an import run.
type Result struct {
	JobID          string     `json:"job_id"`
	Rows           int        `json:"rows"`
	Rejected       int        `json:"rejected"`
	OwnersCreated  int        `json:"owners_created"`
	OwnersUpdated  int        `json:"owners_updated"`
	Locations      int        `json:"locations"`
	Instruments    int        `json:"instruments"`
	NewInstruments int        `json:"new_instruments"`
	Rescored       int        `json:"rescored"`
	Errors         []RowError `json:"errors,omitempty"`
}

// Options tunes one import.
type Options struct {
	// Sheet selects an XLSX sheet by name; empty means the first sheet.
	Sheet     string
	BatchSize int
}

// Importer runs registry imports.
type Importer struct {
	store    Store
	rescorer Rescorer
	fetcher  *Fetcher
	base     geo.Base
	now      func() time.Time
	log      *zap.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithBase sets the point location distances are measured from.
func WithBase(b geo.Base) Option {
	return func(im *Importer) { im.base = b }
}

// WithFetcher replaces the default source fetcher.
func WithFetcher(f *Fetcher) Option {
	return func(im *Importer) { im.fetcher = f }
}

// WithClock sets the time source for initial history dates.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// New returns an Importer.
func New(st Store, rescorer Rescorer, opts ...Option) *Importer {
	im := &Importer{
		store:    st,
		rescorer: rescorer,
		fetcher:  NewFetcher("", 0),
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "importer")),
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// run holds the state of one import.
type run struct {
	res       *Result
	owners    map[string]int64 // "type|document" -> id
	locations map[string]int64 // "owner|key" -> id
	touched   map[int64]struct{}
	pending   []model.Instrument
}

// Import loads src and rescores every owner it touched. Rows that fail
// validation are counted and reported; store failures abort the run.
func (im *Importer) Import(ctx context.Context, src string, opts Options) (*Result, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	path, cleanup, err := im.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, apperr.CodeProviderFailure, "fetch extract")
	}
	defer cleanup()

	tracker, err := jobs.Start(ctx, im.store, model.JobImport, 0)
	if err != nil {
		return nil, err
	}

	r := &run{
		res:       &Result{JobID: tracker.ID()},
		owners:    make(map[string]int64),
		locations: make(map[string]int64),
		touched:   make(map[int64]struct{}),
	}

	err = im.load(ctx, path, opts, r, tracker)
	if err == nil {
		err = im.rescore(ctx, r)
	}
	tracker.SetTotal(r.res.Rows)
	job := tracker.Finish(context.WithoutCancel(ctx), err)
	if err != nil {
		return r.res, err
	}

	im.log.Info("import complete",
		zap.String("job_id", job.ID),
		zap.Int("rows", r.res.Rows),
		zap.Int("rejected", r.res.Rejected),
		zap.Int("owners_created", r.res.OwnersCreated),
		zap.Int("new_instruments", r.res.NewInstruments),
	)
	return r.res, nil
}

func (im *Importer) load(ctx context.Context, path string, opts Options, r *run, tracker *jobs.Tracker) error {
	parseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows, errs := streamRows(parseCtx, path, opts.Sheet)
	fail := func(err error) error {
		cancel()
		for range rows {
		}
		return err
	}
	for raw := range rows {
		r.res.Rows++
		rec, err := parseRecord(raw)
		if err != nil {
			r.reject(raw.line, err)
			tracker.Add(0, 1, 0)
			continue
		}
		if err := im.apply(ctx, rec, raw.line, r); err != nil {
			return fail(err)
		}
		tracker.Add(1, 0, 0)
		if len(r.pending) >= opts.BatchSize {
			if err := im.flush(ctx, r); err != nil {
				return fail(err)
			}
		}
	}
	if err := <-errs; err != nil {
		return err
	}
	return im.flush(ctx, r)
}

func (r *run) reject(line int, err error) {
	r.res.Rejected++
	if len(r.res.Errors) < maxRowErrors {
		r.res.Errors = append(r.res.Errors, RowError{Line: line, Message: apperr.MessageOf(err)})
	}
}

// apply upserts the owner and location of rec once per run and queues its
// instrument for the next batch.
func (im *Importer) apply(ctx context.Context, rec *record, line int, r *run) error {
	ownerKey := string(rec.Owner.Type) + "|" + rec.Owner.Document
	ownerID, seen := r.owners[ownerKey]
	if !seen {
		o := rec.Owner
		created, err := im.store.UpsertOwner(ctx, &o)
		if err != nil {
			return eris.Wrapf(err, "importer: line %d: upsert owner", line)
		}
		if created {
			r.res.OwnersCreated++
		} else {
			r.res.OwnersUpdated++
		}
		ownerID = o.ID
		r.owners[ownerKey] = ownerID
	}

	r.touched[ownerID] = struct{}{}

	locKey := strconv.FormatInt(ownerID, 10) + "|" + rec.Location.Key
	locID, seen := r.locations[locKey]
	if !seen {
		l := rec.Location
		l.OwnerID = ownerID
		l.DistanceFromBaseKM = im.base.DistanceFrom(l.Latitude, l.Longitude)
		if err := im.store.UpsertLocation(ctx, &l); err != nil {
			return eris.Wrapf(err, "importer: line %d: upsert location", line)
		}
		r.res.Locations++
		locID = l.ID
		r.locations[locKey] = locID
	}

	if rec.Instrument != nil {
		in := *rec.Instrument
		in.LocationID = locID
		in.OwnerID = ownerID
		r.pending = append(r.pending, in)
	}
	return nil
}

// flush upserts the pending instruments and appends an initial history
// entry for each one the store did not hold before.
func (im *Importer) flush(ctx context.Context, r *run) error {
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil

	// Later rows win when an extract repeats an inmetro number.
	byNumber := make(map[string]int, len(batch))
	var instruments []model.Instrument
	for _, in := range batch {
		if i, ok := byNumber[in.InmetroNumber]; ok {
			instruments[i] = in
			continue
		}
		byNumber[in.InmetroNumber] = len(instruments)
		instruments = append(instruments, in)
	}
	numbers := make([]string, len(instruments))
	for i, in := range instruments {
		numbers[i] = in.InmetroNumber
	}

	before, err := im.store.InstrumentIDs(ctx, numbers)
	if err != nil {
		return eris.Wrap(err, "importer: look up instruments")
	}
	if _, err := im.store.UpsertInstruments(ctx, instruments); err != nil {
		return eris.Wrapf(err, "importer: upsert %d instruments", len(instruments))
	}
	after, err := im.store.InstrumentIDs(ctx, numbers)
	if err != nil {
		return eris.Wrap(err, "importer: look up instruments")
	}
	r.res.Instruments += len(instruments)

	var entries []model.HistoryEntry
	for _, in := range instruments {
		if _, existed := before[in.InmetroNumber]; existed {
			continue
		}
		id, ok := after[in.InmetroNumber]
		if !ok {
			continue
		}
		at := im.now().UTC()
		if in.LastVerificationAt != nil {
			at = *in.LastVerificationAt
		}
		entries = append(entries, model.HistoryEntry{
			InstrumentID: id,
			EventType:    model.HistoryInitial,
			EventDate:    at,
			Result:       string(in.CurrentStatus),
			Executor:     in.LastExecutor,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	n, err := im.store.AppendHistory(ctx, entries)
	if err != nil {
		return eris.Wrap(err, "importer: append initial history")
	}
	r.res.NewInstruments += int(n)
	return nil
}

func (im *Importer) rescore(ctx context.Context, r *run) error {
	if im.rescorer == nil {
		return nil
	}
	ids := make([]int64, 0, len(r.touched))
	for id := range r.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := im.rescorer.RefreshPriority(ctx, id); err != nil {
			return eris.Wrapf(err, "importer: rescore owner %d", id)
		}
		r.res.Rescored++
	}
	return nil
}

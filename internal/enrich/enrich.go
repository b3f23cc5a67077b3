// Package enrich fills owner contact fields from the contact provider with
// bounded concurrency and per-owner outcome tallies.
package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/jobs"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/resilience"
	"github.com/sells-group/lead-intel/pkg/contactapi"
)

// Outcome is the result of enriching one owner.
type Outcome string

const (
	Enriched Outcome = "enriched"
	Failed   Outcome = "failed"
	Skipped  Outcome = "skipped"
)

// Stats tallies a batch.
type Stats struct {
	Enriched int `json:"enriched"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func (s *Stats) add(o Outcome) {
	switch o {
	case Enriched:
		s.Enriched++
	case Failed:
		s.Failed++
	case Skipped:
		s.Skipped++
	}
}

// BatchResult is returned by EnrichBatch.
type BatchResult struct {
	JobID string `json:"job_id"`
	Stats Stats  `json:"stats"`
}

// Store is the persistence the enricher needs.
type Store interface {
	jobs.Store
	GetOwner(ctx context.Context, id int64) (*model.Owner, error)
	UpdateContact(ctx context.Context, id int64, upd model.ContactUpdate) error
}

// Config controls batch behavior.
type Config struct {
	Concurrency int
	Timeout     time.Duration
	Freshness   time.Duration
	Retry       resilience.RetryConfig
	Breaker     resilience.CircuitBreakerConfig
}

// DefaultConfig returns the defaults: 5 workers, 15s per call, 30 day
// freshness, one retry.
func DefaultConfig() Config {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	return Config{
		Concurrency: 5,
		Timeout:     15 * time.Second,
		Freshness:   30 * 24 * time.Hour,
		Retry:       retry,
		Breaker:     resilience.DefaultCircuitBreakerConfig(),
	}
}

// Enricher runs provider lookups.
type Enricher struct {
	store    Store
	provider contactapi.Client
	locks    *ownerlock.Locker
	pub      events.Publisher
	cfg      Config
	breaker  *resilience.CircuitBreaker
	now      func() time.Time
	log      *zap.Logger

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithPublisher sets the event sink.
func WithPublisher(p events.Publisher) Option {
	return func(e *Enricher) { e.pub = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New returns an Enricher. Zero Config fields take DefaultConfig values.
func New(st Store, provider contactapi.Client, locks *ownerlock.Locker, cfg Config, opts ...Option) *Enricher {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("contactapi", "lookup")
	}
	cfg.Breaker.ShouldTrip = func(err error) bool {
		return err != nil && !errors.Is(err, contactapi.ErrNoData)
	}

	e := &Enricher{
		store:    st,
		provider: provider,
		locks:    locks,
		pub:      events.Nop{},
		cfg:      cfg,
		breaker:  resilience.NewCircuitBreaker(cfg.Breaker),
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "enrich")),
		inflight: make(map[int64]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// claim marks an owner in flight. It reports false when another call
// already holds it.
func (e *Enricher) claim(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Enricher) unclaim(id int64) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}

// EnrichOne enriches a single owner. Owners enriched within the freshness
// window, or already being enriched, are skipped unless force is set for
// the former. Provider failures return an upstream error alongside Failed.
func (e *Enricher) EnrichOne(ctx context.Context, ownerID int64, force bool) (Outcome, error) {
	if !e.claim(ownerID) {
		return Skipped, nil
	}
	defer e.unclaim(ownerID)

	o, err := e.store.GetOwner(ctx, ownerID)
	if err != nil {
		return Failed, err
	}
	if !force && o.ContactEnrichedAt != nil && e.now().Sub(*o.ContactEnrichedAt) < e.cfg.Freshness {
		return Skipped, nil
	}

	contact, err := e.lookup(ctx, o.Document)
	if err != nil {
		return Failed, apperr.Wrap(err, apperr.KindUpstream, apperr.CodeProviderFailure, "contact provider lookup failed")
	}

	// The lock covers only the write, never the provider call.
	release, err := e.locks.Acquire(ctx, ownerID)
	if err != nil {
		return Failed, err
	}
	defer release()

	at := e.now().UTC()
	if err := e.store.UpdateContact(ctx, ownerID, model.ContactUpdate{
		Phone:      contact.Phone,
		Phone2:     contact.Phone2,
		Email:      contact.Email,
		Source:     contact.Source,
		EnrichedAt: at,
	}); err != nil {
		return Failed, err
	}

	e.pub.Publish(ctx, events.LeadEnriched{
		OwnerID:       ownerID,
		ContactSource: contact.Source,
		HasPhone:      contact.Phone != "" || contact.Phone2 != "",
		HasEmail:      contact.Email != "",
		EnrichedAt:    at,
	})
	return Enriched, nil
}

func (e *Enricher) lookup(ctx context.Context, document string) (*contactapi.Contact, error) {
	return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*contactapi.Contact, error) {
		return resilience.DoVal(ctx, e.cfg.Retry, func(ctx context.Context) (*contactapi.Contact, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
			return e.provider.Lookup(callCtx, document)
		})
	})
}

// EnrichBatch enriches ids on a bounded worker pool. Individual failures are
// tallied and never abort the batch. Duplicate ids are processed once.
func (e *Enricher) EnrichBatch(ctx context.Context, ids []int64, force bool) (*BatchResult, error) {
	ids = dedupe(ids)
	tracker, err := jobs.Start(ctx, e.store, model.JobEnrichBatch, len(ids))
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		stats Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			outcome, err := e.EnrichOne(gctx, id, force)
			if err != nil {
				e.log.Warn("enrich: owner failed", zap.Int64("owner_id", id), zap.Error(err))
			}
			mu.Lock()
			stats.add(outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	tracker.Add(stats.Enriched, stats.Failed, stats.Skipped)
	job := tracker.Finish(ctx, nil)
	e.log.Info("enrich: batch complete",
		zap.String("job_id", job.ID),
		zap.Int("enriched", stats.Enriched),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return &BatchResult{JobID: job.ID, Stats: stats}, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/api"
	"github.com/sells-group/lead-intel/internal/config"
	"github.com/sells-group/lead-intel/internal/crm"
	"github.com/sells-group/lead-intel/internal/enrich"
	"github.com/sells-group/lead-intel/internal/geo"
	"github.com/sells-group/lead-intel/internal/importer"
	"github.com/sells-group/lead-intel/internal/lifecycle"
	"github.com/sells-group/lead-intel/internal/ownerlock"
	"github.com/sells-group/lead-intel/internal/queue"
	"github.com/sells-group/lead-intel/internal/resilience"
	"github.com/sells-group/lead-intel/internal/scoring"
	"github.com/sells-group/lead-intel/internal/store"
	"github.com/sells-group/lead-intel/internal/webhook"
	"github.com/sells-group/lead-intel/internal/xref"
	"github.com/sells-group/lead-intel/pkg/contactapi"
	"github.com/sells-group/lead-intel/pkg/salesforce"
)

// app holds the wired components shared by every command.
type app struct {
	Store      store.Store
	Dispatcher *webhook.Dispatcher
	Lifecycle  *lifecycle.Manager
	Queue      *queue.Generator
	Enricher   *enrich.Enricher
	Matcher    *xref.Matcher
	Webhooks   *webhook.Service
	Importer   *importer.Importer
}

// newApp opens the store, migrates it and wires the services from c.
func newApp(ctx context.Context, c *config.Config) (*app, error) {
	loc, err := time.LoadLocation(c.Queue.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "load timezone %q", c.Queue.Timezone)
	}
	scorer, err := newScorer(c.Scoring)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	dir, err := newDirectory(c.Salesforce, st)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	disp := webhook.NewDispatcher(st, webhookConfig(c.Webhook))
	locks := ownerlock.New(time.Duration(c.Locks.WaitMs) * time.Millisecond)

	mgr := lifecycle.New(st, dir, scorer, locks,
		lifecycle.WithPublisher(disp),
		lifecycle.WithLocation(loc),
	)
	copts := []contactapi.Option{contactapi.WithRateLimit(c.Enrich.RatePerSec)}
	if c.Enrich.BaseURL != "" {
		copts = append(copts, contactapi.WithBaseURL(c.Enrich.BaseURL))
	}
	provider := contactapi.NewClient(c.Enrich.Key, copts...)

	a := &app{
		Store:      st,
		Dispatcher: disp,
		Lifecycle:  mgr,
		Queue:      queue.New(st, scorer, locks, queue.WithPublisher(disp), queue.WithLocation(loc)),
		Enricher:   enrich.New(st, provider, locks, enrichConfig(c.Enrich), enrich.WithPublisher(disp)),
		Matcher:    xref.NewMatcher(st, dir, mgr, st),
		Webhooks:   webhook.NewService(st),
		Importer: importer.New(st, mgr,
			importer.WithBase(geo.Base{Latitude: c.Base.Latitude, Longitude: c.Base.Longitude}),
			importer.WithFetcher(importer.NewFetcher(c.Import.TempDir, time.Duration(c.Import.TimeoutSecs)*time.Second)),
		),
	}
	return a, nil
}

// Close drains pending webhook deliveries and closes the store.
func (a *app) Close(ctx context.Context) {
	if err := a.Dispatcher.Close(ctx); err != nil {
		zap.L().Warn("webhook dispatcher close", zap.Error(err))
	}
	if err := a.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

// server builds the HTTP API over a.
func (a *app) server(c *config.Config) *api.Server {
	return api.NewServer(api.Deps{
		Store:     a.Store,
		Lifecycle: a.Lifecycle,
		Queue:     a.Queue,
		Enricher:  a.Enricher,
		Matcher:   a.Matcher,
		Webhooks:  a.Webhooks,
	}, api.Options{
		CORSOrigins:   c.Server.CORSOrigins,
		PageSize:      c.Server.PageSize,
		DailyCapacity: c.Queue.DailyCapacity,
	})
}

func newScorer(c config.ScoringConfig) (*scoring.Scorer, error) {
	sc := scoring.Config{
		RejectedWindowDays: c.RejectedWindowDays,
		HighWindowDays:     c.HighWindowDays,
		NormalWindowDays:   c.NormalWindowDays,
	}
	if c.ConfigPath != "" {
		var err error
		if sc, err = scoring.LoadConfig(c.ConfigPath, sc); err != nil {
			return nil, err
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return scoring.New(sc), nil
}

func newDirectory(c config.SalesforceConfig, st store.Store) (crm.Directory, error) {
	local := crm.NewLocalDirectory(st)
	if !c.Enabled {
		return local, nil
	}
	sf, err := salesforce.Connect(salesforce.JWTConfig{
		LoginURL: c.LoginURL,
		Username: c.Username,
		ClientID: c.ClientID,
		KeyPath:  c.KeyPath,
	}, salesforce.WithRateLimit(c.RatePerSec))
	if err != nil {
		return nil, eris.Wrap(err, "connect salesforce")
	}
	return crm.NewSalesforceMirror(local, sf, st), nil
}

func enrichConfig(c config.EnrichConfig) enrich.Config {
	return enrich.Config{
		Concurrency: c.Concurrency,
		Timeout:     time.Duration(c.TimeoutSecs) * time.Second,
		Freshness:   time.Duration(c.FreshnessDays) * 24 * time.Hour,
		Retry:       resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs),
		Breaker:     resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs),
	}
}

func webhookConfig(c config.WebhookConfig) webhook.Config {
	backoff := make([]time.Duration, len(c.BackoffSecs))
	for i, s := range c.BackoffSecs {
		backoff[i] = time.Duration(s) * time.Second
	}
	return webhook.Config{
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		MaxAttempts: c.MaxAttempts,
		Backoff:     backoff,
		Timeout:     time.Duration(c.TimeoutSecs) * time.Second,
	}
}

// Package webhook delivers events to subscribers asynchronously, with
// signed payloads, a retry schedule and one delivery record per attempt.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/resilience"
	"github.com/sells-group/lead-intel/internal/store"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	ListWebhooks(ctx context.Context, filter store.WebhookFilter) ([]model.WebhookConfig, error)
	RecordDelivery(ctx context.Context, d *model.WebhookDelivery) error
	MarkWebhookTriggered(ctx context.Context, id int64, at time.Time) error
	IncrementWebhookFailures(ctx context.Context, id int64) error
}

// Config controls delivery.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     []time.Duration
	Timeout     time.Duration
}

// DefaultConfig returns 4 workers, 5 attempts and a 1s, 5s, 30s, 5m
// schedule.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   256,
		MaxAttempts: 5,
		Backoff:     []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 5 * time.Minute},
		Timeout:     10 * time.Second,
	}
}

type delivery struct {
	hook model.WebhookConfig
	env  events.Envelope
	body []byte
}

// Dispatcher fans events out to subscribers on a worker pool. It implements
// events.Publisher.
type Dispatcher struct {
	store  Store
	cfg    Config
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
	log    *zap.Logger

	queue  chan delivery
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher starts cfg.Workers delivery goroutines. Call Close to stop
// them.
func NewDispatcher(st Store, cfg Config, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		store:  st,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "webhook")),
		queue:  make(chan delivery, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(d)
	}
	for range cfg.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Publish implements events.Publisher. Failures are logged, never returned
// to the caller.
func (d *Dispatcher) Publish(ctx context.Context, e events.Event) {
	if _, err := d.Dispatch(ctx, e); err != nil {
		d.log.Error("webhook: dispatch failed", zap.String("event_type", e.EventType()), zap.Error(err))
	}
}

// Dispatch enqueues a delivery for every active subscriber of the event's
// type and returns the number enqueued without waiting for delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, e events.Event) (int, error) {
	env, err := events.Wrap(e, d.now())
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return 0, eris.Wrapf(err, "webhook: marshal envelope %s", env.ID)
	}

	hooks, err := d.store.ListWebhooks(context.WithoutCancel(ctx), store.WebhookFilter{EventType: env.EventType, ActiveOnly: true})
	if err != nil {
		return 0, eris.Wrapf(err, "webhook: list subscribers for %s", env.EventType)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, eris.New("webhook: dispatcher closed")
	}

	n := 0
	for _, h := range hooks {
		select {
		case d.queue <- delivery{hook: h, env: env, body: body}:
			n++
		default:
			d.log.Error("webhook: queue full, delivery dropped",
				zap.Int64("webhook_id", h.ID),
				zap.String("event_id", env.ID),
			)
			d.record(&model.WebhookDelivery{
				WebhookID: h.ID,
				EventID:   env.ID,
				EventType: env.EventType,
				Status:    model.DeliveryExhausted,
				Error:     "delivery queue full",
			})
			if err := d.store.IncrementWebhookFailures(context.WithoutCancel(ctx), h.ID); err != nil {
				d.log.Error("webhook: increment failures", zap.Int64("webhook_id", h.ID), zap.Error(err))
			}
		}
	}
	return n, nil
}

// Close stops accepting events and waits for queued deliveries. When ctx
// ends first, pending retries are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

// deliver runs the retry schedule for one subscriber. Exhausting it bumps
// the subscriber's failure count exactly once.
func (d *Dispatcher) deliver(job delivery) {
	ctx := d.ctx
	logger := d.log.With(
		zap.Int64("webhook_id", job.hook.ID),
		zap.String("event_id", job.env.ID),
		zap.String("event_type", job.env.EventType),
	)

	if err := d.store.MarkWebhookTriggered(ctx, job.hook.ID, d.now().UTC()); err != nil {
		logger.Warn("webhook: mark triggered", zap.Error(err))
	}

	retry := resilience.FromSchedule(d.cfg.MaxAttempts, d.cfg.Backoff)
	retry.OnRetry = func(attempt int, err error) {
		logger.Warn("webhook: attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	if d.sleep != nil {
		retry.Sleep = d.sleep
	}

	attempt := 0
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		attempt++
		code, err := d.post(ctx, job)
		rec := &model.WebhookDelivery{
			WebhookID:    job.hook.ID,
			EventID:      job.env.ID,
			EventType:    job.env.EventType,
			Status:       model.DeliverySucceeded,
			ResponseCode: code,
			RetryCount:   attempt - 1,
		}
		if err != nil {
			rec.Status = model.DeliveryFailed
			if attempt >= d.cfg.MaxAttempts {
				rec.Status = model.DeliveryExhausted
			}
			rec.Error = err.Error()
		}
		d.record(rec)
		return err
	})
	if err == nil {
		return
	}
	if attempt < d.cfg.MaxAttempts {
		logger.Warn("webhook: delivery abandoned on shutdown", zap.Int("attempts", attempt))
		return
	}

	logger.Error("webhook: delivery exhausted", zap.Int("attempts", attempt), zap.Error(err))
	if ierr := d.store.IncrementWebhookFailures(context.WithoutCancel(ctx), job.hook.ID); ierr != nil {
		logger.Error("webhook: increment failures", zap.Error(ierr))
	}
}

func (d *Dispatcher) post(ctx context.Context, job delivery) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.hook.URL, bytes.NewReader(job.body))
	if err != nil {
		return 0, eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", job.env.EventType)
	req.Header.Set("X-Webhook-Delivery", job.env.ID)
	if job.hook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(job.hook.Secret, job.body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "webhook: request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, eris.Errorf("webhook: subscriber returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) record(rec *model.WebhookDelivery) {
	rec.CreatedAt = d.now().UTC()
	if err := d.store.RecordDelivery(context.WithoutCancel(d.ctx), rec); err != nil {
		d.log.Error("webhook: record delivery",
			zap.Int64("webhook_id", rec.WebhookID),
			zap.String("event_id", rec.EventID),
			zap.Error(err),
		)
	}
}

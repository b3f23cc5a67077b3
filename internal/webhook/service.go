package webhook

import (
	"context"
	"net/url"
	"strings"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/events"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/store"
)

// ServiceStore is the persistence subscriber management needs.
type ServiceStore interface {
	CreateWebhook(ctx context.Context, w *model.WebhookConfig) error
	GetWebhook(ctx context.Context, id int64) (*model.WebhookConfig, error)
	ListWebhooks(ctx context.Context, filter store.WebhookFilter) ([]model.WebhookConfig, error)
	UpdateWebhook(ctx context.Context, id int64, patch model.WebhookPatch) (*model.WebhookConfig, error)
	DeleteWebhook(ctx context.Context, id int64) error
	ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]model.WebhookDelivery, error)
}

// Service manages subscribers. Failure counts and trigger times are
// maintained by the Dispatcher only.
type Service struct {
	store ServiceStore
}

// NewService returns a Service.
func NewService(st ServiceStore) *Service {
	return &Service{store: st}
}

// CreateRequest registers a subscriber. IsActive defaults to true.
type CreateRequest struct {
	EventType string
	URL       string
	Secret    string
	IsActive  *bool
}

// Create validates and stores a subscriber.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.WebhookConfig, error) {
	if err := validateEventType(req.EventType); err != nil {
		return nil, err
	}
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	if err := ValidateSecret(req.Secret); err != nil {
		return nil, err
	}

	w := &model.WebhookConfig{
		EventType: req.EventType,
		URL:       strings.TrimSpace(req.URL),
		Secret:    req.Secret,
		IsActive:  true,
	}
	if req.IsActive != nil {
		w.IsActive = *req.IsActive
	}
	if err := s.store.CreateWebhook(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Get returns one subscriber.
func (s *Service) Get(ctx context.Context, id int64) (*model.WebhookConfig, error) {
	return s.store.GetWebhook(ctx, id)
}

// List returns subscribers, optionally for one event type.
func (s *Service) List(ctx context.Context, eventType string) ([]model.WebhookConfig, error) {
	if eventType != "" {
		if err := validateEventType(eventType); err != nil {
			return nil, err
		}
	}
	return s.store.ListWebhooks(ctx, store.WebhookFilter{EventType: eventType})
}

// Update applies patch. Re-activating a subscriber resets its failure count.
func (s *Service) Update(ctx context.Context, id int64, patch model.WebhookPatch) (*model.WebhookConfig, error) {
	if patch.EventType == nil && patch.URL == nil && patch.Secret == nil && patch.IsActive == nil {
		return nil, apperr.Validation("webhook patch has no fields")
	}
	if patch.EventType != nil {
		if err := validateEventType(*patch.EventType); err != nil {
			return nil, err
		}
	}
	if patch.URL != nil {
		if err := validateURL(*patch.URL); err != nil {
			return nil, err
		}
		u := strings.TrimSpace(*patch.URL)
		patch.URL = &u
	}
	if patch.Secret != nil {
		if err := ValidateSecret(*patch.Secret); err != nil {
			return nil, err
		}
	}
	return s.store.UpdateWebhook(ctx, id, patch)
}

// Delete removes a subscriber and its delivery history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteWebhook(ctx, id)
}

// Deliveries returns the most recent delivery attempts for a subscriber.
func (s *Service) Deliveries(ctx context.Context, id int64, limit int) ([]model.WebhookDelivery, error) {
	if _, err := s.store.GetWebhook(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListDeliveries(ctx, id, limit)
}

func validateEventType(t string) error {
	if !events.Known(t) {
		return apperr.Newf(apperr.KindValidation, apperr.CodeInvalidWebhook,
			"unknown event type %q (known: %s)", t, strings.Join(events.Types(), ", "))
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.Newf(apperr.KindValidation, apperr.CodeInvalidWebhook, "url %q must be an absolute http(s) URL", raw)
	}
	return nil
}

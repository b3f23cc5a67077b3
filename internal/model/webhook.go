package model

import "time"

// WebhookConfig registers a subscriber for one event type.
type WebhookConfig struct {
	ID              int64      `json:"id" db:"id"`
	EventType       string     `json:"event_type" db:"event_type"`
	URL             string     `json:"url" db:"url"`
	Secret          string     `json:"-" db:"secret"`
	HasSecret       bool       `json:"has_secret" db:"-"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	FailureCount    int        `json:"failure_count" db:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// WebhookPatch carries the operator-editable fields of a subscriber.
// Nil fields are left unchanged.
type WebhookPatch struct {
	EventType *string
	URL       *string
	Secret    *string
	IsActive  *bool
}

// DeliveryStatus is the outcome of a single delivery attempt.
type DeliveryStatus string

const (
	DeliverySucceeded DeliveryStatus = "succeeded"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// WebhookDelivery records one delivery attempt.
type WebhookDelivery struct {
	ID           int64          `json:"id" db:"id"`
	WebhookID    int64          `json:"webhook_id" db:"webhook_id"`
	EventID      string         `json:"event_id" db:"event_id"`
	EventType    string         `json:"event_type" db:"event_type"`
	Status       DeliveryStatus `json:"status" db:"status"`
	ResponseCode int            `json:"response_code,omitempty" db:"response_code"`
	RetryCount   int            `json:"retry_count" db:"retry_count"`
	Error        string         `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// Package events defines the versioned payloads emitted by the lead engine.
// Each event type has exactly one payload schema; subscribers receive it
// wrapped in an Envelope carrying the type and schema version.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Event type names.
const (
	TypeLeadConverted      = "lead.converted"
	TypeLeadDeleted        = "lead.deleted"
	TypeLeadStatusChanged  = "lead.status_changed"
	TypeLeadEnriched       = "lead.enriched"
	TypeQueueGenerated     = "queue.generated"
	TypeQueueItemUpdated   = "queue.item_updated"
	TypeInteractionCreated = "interaction.created"
)

// Types returns every known event type.
func Types() []string {
	return []string{
		TypeLeadConverted,
		TypeLeadDeleted,
		TypeLeadStatusChanged,
		TypeLeadEnriched,
		TypeQueueGenerated,
		TypeQueueItemUpdated,
		TypeInteractionCreated,
	}
}

// Known reports whether t names an event type.
func Known(t string) bool {
	for _, k := range Types() {
		if k == t {
			return true
		}
	}
	return false
}

// Event is implemented by every payload type.
type Event interface {
	EventType() string
	Version() int
}

// Publisher accepts events for delivery. Publish must not block on
// delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}

// LeadConverted is emitted once per owner when it becomes a customer.
type LeadConverted struct {
	OwnerID     int64     `json:"owner_id"`
	CustomerID  int64     `json:"customer_id"`
	Document    string    `json:"document"`
	LegalName   string    `json:"legal_name"`
	Source      string    `json:"source"`
	ConvertedAt time.Time `json:"converted_at"`
}

func (LeadConverted) EventType() string { return TypeLeadConverted }
func (LeadConverted) Version() int      { return 1 }

// LeadDeleted is emitted after an owner and its dependents are removed.
type LeadDeleted struct {
	OwnerID    int64  `json:"owner_id"`
	Document   string `json:"document"`
	CustomerID *int64 `json:"customer_id,omitempty"`
	Forced     bool   `json:"forced"`
}

func (LeadDeleted) EventType() string { return TypeLeadDeleted }
func (LeadDeleted) Version() int      { return 1 }

// LeadStatusChanged is emitted for every lifecycle transition other than
// conversion.
type LeadStatusChanged struct {
	OwnerID    int64  `json:"owner_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Note       string `json:"note,omitempty"`
	Source     string `json:"source"`
}

func (LeadStatusChanged) EventType() string { return TypeLeadStatusChanged }
func (LeadStatusChanged) Version() int      { return 1 }

// LeadEnriched is emitted when the provider returned contact data.
type LeadEnriched struct {
	OwnerID       int64     `json:"owner_id"`
	ContactSource string    `json:"contact_source"`
	HasPhone      bool      `json:"has_phone"`
	HasEmail      bool      `json:"has_email"`
	EnrichedAt    time.Time `json:"enriched_at"`
}

func (LeadEnriched) EventType() string { return TypeLeadEnriched }
func (LeadEnriched) Version() int      { return 1 }

// QueueGenerated is emitted after a generation run.
type QueueGenerated struct {
	Date    string `json:"date"`
	JobID   string `json:"job_id"`
	Created int    `json:"created"`
	Total   int    `json:"total"`
}

func (QueueGenerated) EventType() string { return TypeQueueGenerated }
func (QueueGenerated) Version() int      { return 1 }

// QueueItemUpdated is emitted when an item leaves pending.
type QueueItemUpdated struct {
	ItemID    int64  `json:"item_id"`
	OwnerID   int64  `json:"owner_id"`
	QueueDate string `json:"queue_date"`
	Status    string `json:"status"`
}

func (QueueItemUpdated) EventType() string { return TypeQueueItemUpdated }
func (QueueItemUpdated) Version() int      { return 1 }

// InteractionCreated is emitted for each logged contact attempt.
type InteractionCreated struct {
	InteractionID     int64      `json:"interaction_id"`
	OwnerID           int64      `json:"owner_id"`
	Channel           string     `json:"channel"`
	Result            string     `json:"result"`
	ScheduledFollowUp *time.Time `json:"scheduled_follow_up,omitempty"`
}

func (InteractionCreated) EventType() string { return TypeInteractionCreated }
func (InteractionCreated) Version() int      { return 1 }

// Envelope is the wire form delivered to subscribers.
type Envelope struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Wrap builds an envelope for e with a fresh id.
func Wrap(e Event, at time.Time) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, eris.Wrapf(err, "events: marshal %s", e.EventType())
	}
	return Envelope{
		ID:         uuid.NewString(),
		EventType:  e.EventType(),
		Version:    e.Version(),
		OccurredAt: at.UTC(),
		Data:       data,
	}, nil
}

// Decode returns the typed payload of env.
func Decode(env Envelope) (Event, error) {
	var e Event
	switch env.EventType {
	case TypeLeadConverted:
		e = &LeadConverted{}
	case TypeLeadDeleted:
		e = &LeadDeleted{}
	case TypeLeadStatusChanged:
		e = &LeadStatusChanged{}
	case TypeLeadEnriched:
		e = &LeadEnriched{}
	case TypeQueueGenerated:
		e = &QueueGenerated{}
	case TypeQueueItemUpdated:
		e = &QueueItemUpdated{}
	case TypeInteractionCreated:
		e = &InteractionCreated{}
	default:
		return nil, eris.Errorf("events: unknown event type %q", env.EventType)
	}
	if err := json.Unmarshal(env.Data, e); err != nil {
		return nil, eris.Wrapf(err, "events: decode %s", env.EventType)
	}
	return e, nil
}

package model

import "time"

// QueueStatus is the state of a contact queue item.
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusContacted QueueStatus = "contacted"
	QueueStatusSkipped   QueueStatus = "skipped"
)

// Valid reports whether s is a known queue status.
func (s QueueStatus) Valid() bool {
	return s == QueueStatusPending || s == QueueStatusContacted || s == QueueStatusSkipped
}

// DateLayout is the calendar-date format used for queue dates.
const DateLayout = "2006-01-02"

// FollowUpDate anchors the calendar date of t at noon UTC. The anchor falls
// on the same date in every zone from UTC-11 to UTC+11, so date-only
// follow-ups need no marker of their own.
func FollowUpDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// CalendarDate returns the date t falls on in loc.
func CalendarDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ContactQueueItem is a single day's work item for one owner.
type ContactQueueItem struct {
	ID        int64       `json:"id" db:"id"`
	OwnerID   int64       `json:"owner_id" db:"owner_id"`
	QueueDate string      `json:"queue_date" db:"queue_date"`
	Position  int         `json:"position" db:"position"`
	Priority  Priority    `json:"priority" db:"priority"`
	Reason    string      `json:"reason" db:"reason"`
	Status    QueueStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Channel is the medium of a prospecting contact.
type Channel string

const (
	ChannelPhone    Channel = "phone"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelVisit    Channel = "visit"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelPhone, ChannelWhatsApp, ChannelEmail, ChannelVisit:
		return true
	}
	return false
}

// InteractionResult is the outcome of a prospecting contact.
type InteractionResult string

const (
	ResultInterested    InteractionResult = "interested"
	ResultNotInterested InteractionResult = "not_interested"
	ResultNoAnswer      InteractionResult = "no_answer"
	ResultCallback      InteractionResult = "callback"
	ResultConverted     InteractionResult = "converted"
)

// Valid reports whether r is a known result.
func (r InteractionResult) Valid() bool {
	switch r {
	case ResultInterested, ResultNotInterested, ResultNoAnswer, ResultCallback, ResultConverted:
		return true
	}
	return false
}

// Interaction is an immutable log record of a contact attempt.
type Interaction struct {
	ID                int64             `json:"id" db:"id"`
	OwnerID           int64             `json:"owner_id" db:"owner_id"`
	Channel           Channel           `json:"channel" db:"channel"`
	Result            InteractionResult `json:"result" db:"result"`
	Notes             string            `json:"notes,omitempty" db:"notes"`
	ScheduledFollowUp *time.Time        `json:"scheduled_follow_up,omitempty" db:"scheduled_follow_up"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}

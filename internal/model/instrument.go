package model

import "time"

// InstrumentStatus is the result of an instrument's most recent verification.
type InstrumentStatus string

const (
	InstrumentApproved InstrumentStatus = "approved"
	InstrumentRejected InstrumentStatus = "rejected"
	InstrumentRepaired InstrumentStatus = "repaired"
	InstrumentUnknown  InstrumentStatus = "unknown"
)

// Valid reports whether s is a known instrument status.
func (s InstrumentStatus) Valid() bool {
	switch s {
	case InstrumentApproved, InstrumentRejected, InstrumentRepaired, InstrumentUnknown:
		return true
	}
	return false
}

// Instrument is a regulated measuring device at a location.
type Instrument struct {
	ID                 int64            `json:"id" db:"id"`
	LocationID         int64            `json:"location_id" db:"location_id"`
	OwnerID            int64            `json:"owner_id" db:"-"`
	InmetroNumber      string           `json:"inmetro_number" db:"inmetro_number"`
	InstrumentType     string           `json:"instrument_type,omitempty" db:"instrument_type"`
	Capacity           string           `json:"capacity,omitempty" db:"capacity"`
	CurrentStatus      InstrumentStatus `json:"current_status" db:"current_status"`
	LastVerificationAt *time.Time       `json:"last_verification_at,omitempty" db:"last_verification_at"`
	NextVerificationAt *time.Time       `json:"next_verification_at,omitempty" db:"next_verification_at"`
	LastExecutor       string           `json:"last_executor,omitempty" db:"last_executor"`

	// RejectedAt is the date of the latest rejection in the instrument's
	// history, populated by reads that feed scoring.
	RejectedAt *time.Time `json:"rejected_at,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HistoryEventType classifies an instrument history entry.
type HistoryEventType string

const (
	HistoryVerification HistoryEventType = "verification"
	HistoryRepair       HistoryEventType = "repair"
	HistoryRejection    HistoryEventType = "rejection"
	HistoryInitial      HistoryEventType = "initial"
)

// Valid reports whether t is a known history event type.
func (t HistoryEventType) Valid() bool {
	switch t {
	case HistoryVerification, HistoryRepair, HistoryRejection, HistoryInitial:
		return true
	}
	return false
}

// HistoryEntry is an append-only audit record for an instrument.
type HistoryEntry struct {
	ID             int64            `json:"id" db:"id"`
	InstrumentID   int64            `json:"instrument_id" db:"instrument_id"`
	EventType      HistoryEventType `json:"event_type" db:"event_type"`
	EventDate      time.Time        `json:"event_date" db:"event_date"`
	Result         string           `json:"result,omitempty" db:"result"`
	Executor       string           `json:"executor,omitempty" db:"executor"`
	CompetitorName *string          `json:"competitor_name,omitempty" db:"competitor_name"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// InstrumentUpdate describes a status or schedule change to an instrument.
// Nil fields are left unchanged.
type InstrumentUpdate struct {
	Status             *InstrumentStatus
	LastVerificationAt *time.Time
	NextVerificationAt *time.Time
	Executor           *string
	CompetitorName     *string
	EventDate          time.Time
}

// HistoryEventFor maps a status change onto the history event it produces.
func HistoryEventFor(status InstrumentStatus) HistoryEventType {
	switch status {
	case InstrumentRejected:
		return HistoryRejection
	case InstrumentRepaired:
		return HistoryRepair
	default:
		return HistoryVerification
	}
}

// Package scoring derives an owner's priority tier from its instruments.
// Everything here is pure: no I/O, and "today" is always passed in.
package scoring

import (
	"time"

	"github.com/sells-group/lead-intel/internal/model"
)

// Reason codes explain which rule produced a tier.
const (
	ReasonRejectedRecent = "rejected_recent"
	ReasonOverdue        = "overdue"
	ReasonExpiring30d    = "expiring_30d"
	ReasonExpiring90d    = "expiring_90d"
	ReasonNoExpiryData   = "no_expiry_data"
	ReasonNoDeadline     = "no_deadline"
	ReasonNoInstruments  = "no_instruments"
)

// Input is everything Score needs to know about one owner.
type Input struct {
	OwnerID           int64
	Instruments       []model.Instrument
	LastInteractionAt *time.Time
}

// InputFromSnapshot adapts a store snapshot.
func InputFromSnapshot(s model.LeadSnapshot) Input {
	return Input{
		OwnerID:           s.OwnerID,
		Instruments:       s.Instruments,
		LastInteractionAt: s.LastInteractionAt,
	}
}

// Result is the scored tier with the fields used to order owners within it.
type Result struct {
	OwnerID          int64          `json:"owner_id"`
	Priority         model.Priority `json:"priority"`
	Reason           string         `json:"reason"`
	SoonestDue       *time.Time     `json:"soonest_due,omitempty"`
	InstrumentsCount int            `json:"instruments_count"`
}

// Scorer applies a Config.
type Scorer struct {
	cfg Config
}

// New returns a Scorer for cfg.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the windows in use.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score computes the tier with the default windows.
func Score(in Input, today time.Time) Result {
	return New(DefaultConfig()).Score(in, today)
}

// Score returns the most urgent tier found across all of the owner's
// instruments.
func (s *Scorer) Score(in Input, today time.Time) Result {
	res := Result{
		OwnerID:          in.OwnerID,
		Priority:         model.PriorityLow,
		Reason:           ReasonNoInstruments,
		InstrumentsCount: len(in.Instruments),
	}
	if len(in.Instruments) == 0 {
		return res
	}
	res.Reason = ReasonNoDeadline

	day := calendarDay(today)
	rejectedSince := day.AddDate(0, 0, -s.cfg.RejectedWindowDays)
	highUntil := day.AddDate(0, 0, s.cfg.HighWindowDays+1)
	normalUntil := day.AddDate(0, 0, s.cfg.NormalWindowDays+1)

	consider := func(p model.Priority, reason string) {
		if p.Rank() < res.Priority.Rank() {
			res.Priority, res.Reason = p, reason
		}
	}

	for i := range in.Instruments {
		inst := &in.Instruments[i]
		if due := inst.NextVerificationAt; due != nil && (res.SoonestDue == nil || due.Before(*res.SoonestDue)) {
			t := *due
			res.SoonestDue = &t
		}

		if inst.CurrentStatus == model.InstrumentRejected {
			if at := rejectionDate(inst); at != nil && !dateOf(*at).Before(rejectedSince) &&
				(in.LastInteractionAt == nil || in.LastInteractionAt.Before(*at)) {
				consider(model.PriorityCritical, ReasonRejectedRecent)
				continue
			}
		}

		if inst.NextVerificationAt == nil {
			consider(model.PriorityNormal, ReasonNoExpiryData)
			continue
		}
		due := dateOf(*inst.NextVerificationAt)
		switch {
		case due.Before(day):
			consider(model.PriorityUrgent, ReasonOverdue)
		case due.Before(highUntil):
			consider(model.PriorityHigh, ReasonExpiring30d)
		case due.Before(normalUntil):
			consider(model.PriorityNormal, ReasonExpiring90d)
		}
	}
	return res
}

// rejectionDate prefers the history rejection date and falls back to the
// last verification.
func rejectionDate(inst *model.Instrument) *time.Time {
	if inst.RejectedAt != nil {
		return inst.RejectedAt
	}
	return inst.LastVerificationAt
}

// calendarDay is today's date in its own location, as a UTC midnight.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dateOf truncates a stored timestamp to its UTC date. Verification dates
// are persisted as UTC midnights.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Less orders a before b: more urgent tier first, then the soonest due date
// (owners without one go last), then more instruments, then lower owner id.
func Less(a, b Result) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	switch {
	case a.SoonestDue != nil && b.SoonestDue == nil:
		return true
	case a.SoonestDue == nil && b.SoonestDue != nil:
		return false
	case a.SoonestDue != nil && !a.SoonestDue.Equal(*b.SoonestDue):
		return a.SoonestDue.Before(*b.SoonestDue)
	}
	if a.InstrumentsCount != b.InstrumentsCount {
		return a.InstrumentsCount > b.InstrumentsCount
	}
	return a.OwnerID < b.OwnerID
}

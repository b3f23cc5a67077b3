package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OwnerType distinguishes individuals (CPF) from companies (CNPJ).
type OwnerType string

const (
	OwnerTypePF OwnerType = "PF"
	OwnerTypePJ OwnerType = "PJ"
)

// Valid reports whether t is a known owner type.
func (t OwnerType) Valid() bool {
	return t == OwnerTypePF || t == OwnerTypePJ
}

// LeadStatus is the lifecycle state of an owner.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusNegotiating LeadStatus = "negotiating"
	LeadStatusConverted   LeadStatus = "converted"
	LeadStatusLost        LeadStatus = "lost"
)

// AllLeadStatuses returns every lifecycle state in progression order.
func AllLeadStatuses() []LeadStatus {
	return []LeadStatus{
		LeadStatusNew,
		LeadStatusContacted,
		LeadStatusNegotiating,
		LeadStatusConverted,
		LeadStatusLost,
	}
}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	for _, v := range AllLeadStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusConverted || s == LeadStatusLost
}

// Priority is the derived urgency tier of an owner.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank orders priorities; lower is more urgent. Unknown values rank last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	return p.Rank() < 5
}

// Owner is a prospective or existing customer sourced from registry data.
type Owner struct {
	ID          int64     `json:"id" db:"id"`
	Type        OwnerType `json:"type" db:"type"`
	LegalName   string    `json:"legal_name" db:"legal_name"`
	TradeName   string    `json:"trade_name,omitempty" db:"trade_name"`
	Document    string    `json:"document" db:"document"`

	// Contact
	Phone             string     `json:"phone,omitempty" db:"phone"`
	Phone2            string     `json:"phone2,omitempty" db:"phone2"`
	Email             string     `json:"email,omitempty" db:"email"`
	ContactSource     string     `json:"contact_source,omitempty" db:"contact_source"`
	ContactEnrichedAt *time.Time `json:"contact_enriched_at,omitempty" db:"contact_enriched_at"`
	Notes             string     `json:"notes,omitempty" db:"notes"`

	// Lifecycle
	LeadStatus            LeadStatus `json:"lead_status" db:"lead_status"`
	ConvertedToCustomerID *int64     `json:"converted_to_customer_id,omitempty" db:"converted_to_customer_id"`
	ConvertedAt           *time.Time `json:"converted_at,omitempty" db:"converted_at"`

	// Cached scoring output, refreshed whenever instruments change.
	Priority            Priority   `json:"priority" db:"priority"`
	PriorityReason      string     `json:"priority_reason,omitempty" db:"priority_reason"`
	PriorityRefreshedAt *time.Time `json:"priority_refreshed_at,omitempty" db:"priority_refreshed_at"`

	EstimatedRevenue decimal.NullDecimal `json:"estimated_revenue" db:"estimated_revenue"`

	// Read-side aggregates populated by list queries.
	InstrumentsCount int        `json:"instruments_count" db:"-"`
	Locations        []Location `json:"locations,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DisplayName returns the trade name when present, else the legal name.
func (o *Owner) DisplayName() string {
	if o.TradeName != "" {
		return o.TradeName
	}
	return o.LegalName
}

// Linked reports whether the owner holds a CRM link.
func (o *Owner) Linked() bool {
	return o.ConvertedToCustomerID != nil
}

// PrimaryCity returns the city of the first location, if any.
func (o *Owner) PrimaryCity() string {
	for _, l := range o.Locations {
		if l.AddressCity != "" {
			return l.AddressCity
		}
	}
	return ""
}

// Location is a physical site belonging to an owner.
type Location struct {
	ID                 int64    `json:"id" db:"id"`
	OwnerID            int64    `json:"owner_id" db:"owner_id"`
	Key                string   `json:"-" db:"location_key"`
	AddressStreet      string   `json:"address_street,omitempty" db:"address_street"`
	AddressNumber      string   `json:"address_number,omitempty" db:"address_number"`
	AddressDistrict    string   `json:"address_district,omitempty" db:"address_district"`
	AddressCity        string   `json:"address_city,omitempty" db:"address_city"`
	AddressState       string   `json:"address_state,omitempty" db:"address_state"`
	AddressZip         string   `json:"address_zip,omitempty" db:"address_zip"`
	Latitude           *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude          *float64 `json:"longitude,omitempty" db:"longitude"`
	DistanceFromBaseKM *float64 `json:"distance_from_base_km,omitempty" db:"distance_from_base_km"`
	FarmName           string   `json:"farm_name,omitempty" db:"farm_name"`
	StateRegistration  string   `json:"state_registration,omitempty" db:"state_registration"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StatusChange is an append-only record of one lifecycle transition.
type StatusChange struct {
	ID         int64      `json:"id" db:"id"`
	OwnerID    int64      `json:"owner_id" db:"owner_id"`
	FromStatus LeadStatus `json:"from_status" db:"from_status"`
	ToStatus   LeadStatus `json:"to_status" db:"to_status"`
	Note       string     `json:"note,omitempty" db:"note"`
	Source     string     `json:"source" db:"source"`
	ChangedAt  time.Time  `json:"changed_at" db:"changed_at"`
}

// Status change sources.
const (
	ChangeSourceUser = "user"
	ChangeSourceXref = "xref"
)

// ContactUpdate carries the fields written by an enrichment run. Empty
// strings leave the stored value untouched.
type ContactUpdate struct {
	Phone      string
	Phone2     string
	Email      string
	Source     string
	EnrichedAt time.Time
}

// OwnerFilter specifies criteria for listing owners.
type OwnerFilter struct {
	Priority   Priority   `json:"priority,omitempty"`
	LeadStatus LeadStatus `json:"lead_status,omitempty"`
	City       string     `json:"city,omitempty"`
	Type       OwnerType  `json:"type,omitempty"`
	Search     string     `json:"search,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// LeadSnapshot is the per-owner input to scoring and queue generation.
type LeadSnapshot struct {
	OwnerID           int64
	LeadStatus        LeadStatus
	Instruments       []Instrument
	LastInteractionAt *time.Time
	// FollowUpAt is the scheduled follow-up of the owner's latest
	// interaction, if it set one.
	FollowUpAt *time.Time
}

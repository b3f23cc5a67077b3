package model

import "time"

// JobKind names a background or batch operation.
type JobKind string

const (
	JobEnrichBatch   JobKind = "enrich_batch"
	JobQueueGenerate JobKind = "queue_generate"
	JobXref          JobKind = "xref"
	JobImport        JobKind = "import"
)

// JobStatus is the state of a job record.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is an explicit status record for a batch operation, polled by callers
// instead of exposing process-level "is running" flags.
type Job struct {
	ID         string     `json:"id" db:"id"`
	Kind       JobKind    `json:"kind" db:"kind"`
	Status     JobStatus  `json:"status" db:"status"`
	Total      int        `json:"total" db:"total"`
	Succeeded  int        `json:"succeeded" db:"succeeded"`
	Failed     int        `json:"failed" db:"failed"`
	Skipped    int        `json:"skipped" db:"skipped"`
	Error      string     `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Customer is the local mirror of a CRM customer record.
type Customer struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Document   string    `json:"document,omitempty" db:"document"`
	Email      string    `json:"email,omitempty" db:"email"`
	City       string    `json:"city,omitempty" db:"city"`
	ExternalID string    `json:"external_id,omitempty" db:"external_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// LeadStats summarizes the lead pipeline.
type LeadStats struct {
	Total             int                `json:"total"`
	ByStatus          map[LeadStatus]int `json:"by_status"`
	ByPriority        map[Priority]int   `json:"by_priority"`
	Linked            int                `json:"linked"`
	ConversionRate    float64            `json:"conversion_rate"`
	AvgDaysToConvert  float64            `json:"avg_days_to_convert"`
	ConvertedMeasured int                `json:"converted_measured"`
}

// Package jobs tracks batch operations as explicit job records that callers
// poll, replacing process-level "is running" flags.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/model"
)

// Store is the persistence a Tracker needs.
type Store interface {
	CreateJob(ctx context.Context, j *model.Job) error
	UpdateJob(ctx context.Context, j *model.Job) error
}

// Tracker accumulates counts for one running job.
type Tracker struct {
	store Store

	mu  sync.Mutex
	job model.Job
}

// Start persists a running job of kind and returns its tracker.
func Start(ctx context.Context, st Store, kind model.JobKind, total int) (*Tracker, error) {
	t := &Tracker{
		store: st,
		job: model.Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    model.JobRunning,
			Total:     total,
			StartedAt: time.Now().UTC(),
		},
	}
	if err := st.CreateJob(ctx, &t.job); err != nil {
		return nil, eris.Wrapf(err, "jobs: start %s", kind)
	}
	return t, nil
}

// ID returns the job id.
func (t *Tracker) ID() string {
	return t.job.ID
}

// SetTotal replaces the expected item count.
func (t *Tracker) SetTotal(n int) {
	t.mu.Lock()
	t.job.Total = n
	t.mu.Unlock()
}

// Add increments the outcome counters.
func (t *Tracker) Add(succeeded, failed, skipped int) {
	t.mu.Lock()
	t.job.Succeeded += succeeded
	t.job.Failed += failed
	t.job.Skipped += skipped
	t.mu.Unlock()
}

// Finish marks the job completed, or failed when err is non-nil, and
// returns the final record. A failure to persist the final state is logged;
// the job's own outcome is what callers act on.
func (t *Tracker) Finish(ctx context.Context, err error) model.Job {
	t.mu.Lock()
	now := time.Now().UTC()
	t.job.FinishedAt = &now
	t.job.Status = model.JobCompleted
	if err != nil {
		t.job.Status = model.JobFailed
		t.job.Error = err.Error()
	}
	job := t.job
	t.mu.Unlock()

	if uerr := t.store.UpdateJob(context.WithoutCancel(ctx), &job); uerr != nil {
		zap.L().Warn("jobs: update failed",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Error(uerr),
		)
	}
	return job
}

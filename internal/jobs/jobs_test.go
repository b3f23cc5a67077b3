package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/model"
)

type memStore struct {
	created []model.Job
	updated []model.Job
	failOn  string
}

func (m *memStore) CreateJob(_ context.Context, j *model.Job) error {
	if m.failOn == "create" {
		return errors.New("db down")
	}
	m.created = append(m.created, *j)
	return nil
}

func (m *memStore) UpdateJob(_ context.Context, j *model.Job) error {
	if m.failOn == "update" {
		return errors.New("db down")
	}
	m.updated = append(m.updated, *j)
	return nil
}

func TestTracker_Lifecycle(t *testing.T) {
	st := &memStore{}
	tr, err := Start(context.Background(), st, model.JobEnrichBatch, 3)
	require.NoError(t, err)
	require.Len(t, st.created, 1)
	assert.Equal(t, model.JobRunning, st.created[0].Status)
	assert.NotEmpty(t, tr.ID())

	tr.Add(2, 0, 0)
	tr.Add(0, 1, 0)
	job := tr.Finish(context.Background(), nil)

	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 2, job.Succeeded)
	assert.Equal(t, 1, job.Failed)
	assert.NotNil(t, job.FinishedAt)
	require.Len(t, st.updated, 1)
	assert.Equal(t, tr.ID(), st.updated[0].ID)
}

func TestTracker_FinishWithError(t *testing.T) {
	st := &memStore{}
	tr, err := Start(context.Background(), st, model.JobImport, 0)
	require.NoError(t, err)
	tr.SetTotal(10)

	job := tr.Finish(context.Background(), errors.New("bad file"))
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "bad file", job.Error)
	assert.Equal(t, 10, job.Total)
}

func TestTracker_StoreErrors(t *testing.T) {
	_, err := Start(context.Background(), &memStore{failOn: "create"}, model.JobXref, 0)
	assert.ErrorContains(t, err, "jobs: start xref")

	st := &memStore{}
	tr, err := Start(context.Background(), st, model.JobXref, 0)
	require.NoError(t, err)
	st.failOn = "update"
	job := tr.Finish(context.Background(), nil)
	assert.Equal(t, model.JobCompleted, job.Status)
}

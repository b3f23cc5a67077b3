package xref

import (
	"context"
	"sync"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

type fakeOwners struct {
	owners []model.Owner
}

func (f *fakeOwners) GetOwner(_ context.Context, id int64) (*model.Owner, error) {
	for i := range f.owners {
		if f.owners[i].ID == id {
			o := f.owners[i]
			return &o, nil
		}
	}
	return nil, apperr.NotFound("owner", id)
}

func (f *fakeOwners) AllOwners(context.Context) ([]model.Owner, error) {
	return append([]model.Owner(nil), f.owners...), nil
}

type fakeCustomers struct {
	customers []model.Customer
}

func (f *fakeCustomers) ListCustomers(context.Context) ([]model.Customer, error) {
	return f.customers, nil
}

// fakeLinker links through the fakeOwners slice so reruns see the link.
type fakeLinker struct {
	mu     sync.Mutex
	owners *fakeOwners
	calls  int
	fail   map[int64]error
}

func (f *fakeLinker) LinkFromMatch(_ context.Context, ownerID, customerID int64) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[ownerID]; err != nil {
		return false, false, err
	}
	for i := range f.owners.owners {
		o := &f.owners.owners[i]
		if o.ID != ownerID {
			continue
		}
		if o.ConvertedToCustomerID != nil {
			return false, false, nil
		}
		id := customerID
		o.ConvertedToCustomerID = &id
		if o.LeadStatus == model.LeadStatusNew {
			o.LeadStatus = model.LeadStatusConverted
			return true, true, nil
		}
		return true, false, nil
	}
	return false, false, apperr.NotFound("owner", ownerID)
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]model.Job
}

func (f *fakeJobs) CreateJob(_ context.Context, j *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobs == nil {
		f.jobs = make(map[string]model.Job)
	}
	f.jobs[j.ID] = *j
	return nil
}

func (f *fakeJobs) UpdateJob(_ context.Context, j *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = *j
	return nil
}

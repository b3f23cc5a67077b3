// Package crm is the narrow interface to the customer master. The local
// directory keeps customers in the store; the Salesforce mirror decorates
// it and pushes new customers upstream as Accounts.
package crm

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/pkg/document"
)

// Directory reads and extends the customer master.
type Directory interface {
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	// EnsureCustomer returns the customer holding the owner's document,
	// creating it when absent.
	EnsureCustomer(ctx context.Context, o *model.Owner) (*model.Customer, error)
}

// Store is the persistence behind LocalDirectory.
type Store interface {
	CreateCustomer(ctx context.Context, c *model.Customer) error
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	SetCustomerExternalID(ctx context.Context, id int64, externalID string) error
}

// LocalDirectory is a Directory over the customers table.
type LocalDirectory struct {
	store Store

	// mu serializes EnsureCustomer so two conversions of owners sharing a
	// document create one customer.
	mu sync.Mutex
}

// NewLocalDirectory returns a LocalDirectory over st.
func NewLocalDirectory(st Store) *LocalDirectory {
	return &LocalDirectory{store: st}
}

func (d *LocalDirectory) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	cs, err := d.store.ListCustomers(ctx)
	return cs, eris.Wrap(err, "crm: list customers")
}

func (d *LocalDirectory) EnsureCustomer(ctx context.Context, o *model.Owner) (*model.Customer, error) {
	doc := document.Normalize(o.Document)
	if doc == "" {
		return nil, eris.Errorf("crm: owner %d has no document", o.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cs, err := d.store.ListCustomers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "crm: list customers")
	}
	for i := range cs {
		if document.Normalize(cs[i].Document) == doc {
			return &cs[i], nil
		}
	}

	c := &model.Customer{
		Name:     o.LegalName,
		Document: doc,
		Email:    o.Email,
		City:     o.PrimaryCity(),
	}
	if err := d.store.CreateCustomer(ctx, c); err != nil {
		return nil, eris.Wrapf(err, "crm: create customer for owner %d", o.ID)
	}
	return c, nil
}

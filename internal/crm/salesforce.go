package crm

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/pkg/salesforce"
)

// SalesforceMirror decorates a Directory, recording the Salesforce Account
// id of every ensured customer. An Account already holding the document is
// refreshed instead of duplicated. Salesforce failures are logged and leave the
// local customer without an external id; the next EnsureCustomer retries.
type SalesforceMirror struct {
	next  Directory
	sf    salesforce.Client
	store Store
	log   *zap.Logger
}

// NewSalesforceMirror wraps next.
func NewSalesforceMirror(next Directory, sf salesforce.Client, st Store) *SalesforceMirror {
	return &SalesforceMirror{
		next:  next,
		sf:    sf,
		store: st,
		log:   zap.L().With(zap.String("component", "crm.salesforce")),
	}
}

func (m *SalesforceMirror) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return m.next.ListCustomers(ctx)
}

func (m *SalesforceMirror) EnsureCustomer(ctx context.Context, o *model.Owner) (*model.Customer, error) {
	c, err := m.next.EnsureCustomer(ctx, o)
	if err != nil || c.ExternalID != "" {
		return c, err
	}

	fields := map[string]any{
		"Name": c.Name,
		"Type": "Customer",
	}
	if o.Phone != "" {
		fields["Phone"] = o.Phone
	}
	if c.City != "" {
		fields["BillingCity"] = c.City
	}

	id, created, err := salesforce.UpsertAccountByDocument(ctx, m.sf, c.Document, fields)
	if err != nil {
		m.log.Warn("crm: salesforce mirror failed",
			zap.Int64("customer_id", c.ID),
			zap.Int64("owner_id", o.ID),
			zap.Error(err),
		)
		return c, nil
	}
	if err := m.store.SetCustomerExternalID(ctx, c.ID, id); err != nil {
		m.log.Warn("crm: store external id failed", zap.Int64("customer_id", c.ID), zap.Error(err))
		return c, nil
	}
	c.ExternalID = id
	m.log.Info("crm: customer mirrored",
		zap.Int64("customer_id", c.ID),
		zap.String("account_id", id),
		zap.Bool("created", created),
	)
	return c, nil
}

package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// UpdateAccount updates an Account record with the given fields.
func UpdateAccount(ctx context.Context, c Client, accountID string, fields map[string]any) error {
	if accountID == "" {
		return eris.New("sf: account id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Account", accountID, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update account %s", accountID))
	}
	return nil
}

// CreateAccount creates a new Account record and returns the new Salesforce ID.
func CreateAccount(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if fields["Name"] == nil || fields["Name"] == "" {
		return "", eris.New("sf: account Name is required")
	}
	id, err := c.InsertOne(ctx, "Account", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create account")
	}
	return id, nil
}

// UpsertAccountByDocument returns the id of the Account holding doc. An
// existing Account is refreshed with fields; otherwise one is created from
// them. created reports which path ran.
func UpsertAccountByDocument(ctx context.Context, c Client, doc string, fields map[string]any) (id string, created bool, err error) {
	if doc == "" {
		return "", false, eris.New("sf: document is required")
	}
	existing, err := FindAccountByDocument(ctx, c, doc)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		if len(fields) > 0 {
			if err := UpdateAccount(ctx, c, existing.ID, fields); err != nil {
				return "", false, err
			}
		}
		return existing.ID, false, nil
	}
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record[DocumentField] = doc
	id, err = CreateAccount(ctx, c, record)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

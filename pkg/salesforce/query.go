package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// DocumentField is the Account custom field holding the digits-only CPF or
// CNPJ.
const DocumentField = "Documento__c"

// Account represents a Salesforce Account record.
type Account struct {
	ID          string `json:"Id" salesforce:"Id"`
	Name        string `json:"Name" salesforce:"Name"`
	Document    string `json:"Documento__c" salesforce:"Documento__c"`
	Phone       string `json:"Phone" salesforce:"Phone"`
	BillingCity string `json:"BillingCity" salesforce:"BillingCity"`
	Type        string `json:"Type" salesforce:"Type"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{"Id", "Name", DocumentField, "Phone", "BillingCity", "Type"}

// FindAccountByDocument queries Salesforce for an Account with the given
// document. Returns nil if no account is found.
func FindAccountByDocument(ctx context.Context, c Client, doc string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE %s = '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		DocumentField,
		escapeSoql(doc),
	)
	return findOne(ctx, c, soql, "document "+doc)
}

func findOne(ctx context.Context, c Client, soql, what string) (*Account, error) {
	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by %s", what))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

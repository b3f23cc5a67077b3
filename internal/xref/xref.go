// Package xref matches owners against the CRM customer set. Only a document
// match is authoritative; email and name matches are advisory and never
// change owner state.
package xref

import (
	"github.com/sells-group/lead-intel/internal/model"
)

// Method names the rule that produced a match.
type Method string

const (
	MethodDocument Method = "document"
	MethodEmail    Method = "email"
	MethodNameCity Method = "name_city"
)

// Confidence per method.
const (
	ConfidenceDocument = 1.0
	ConfidenceEmail    = 0.8
	ConfidenceNameCity = 0.5
)

// Match is the outcome of matching one owner. CustomerID is nil when
// nothing matched.
type Match struct {
	CustomerID   *int64  `json:"linked_customer_id"`
	CustomerName string  `json:"customer_name,omitempty"`
	Confidence   float64 `json:"confidence"`
	Method       Method  `json:"method,omitempty"`
}

// Authoritative reports whether the match may set a durable link.
func (m Match) Authoritative() bool {
	return m.CustomerID != nil && m.Method == MethodDocument
}

// Index is a read-only lookup over customers. When several customers share a
// key the one listed first wins.
type Index struct {
	byDocument map[string]*model.Customer
	byEmail    map[string]*model.Customer
	byNameCity map[string]*model.Customer
	size       int
}

// NewIndex builds an index over customers.
func NewIndex(customers []model.Customer) *Index {
	x := &Index{
		byDocument: make(map[string]*model.Customer),
		byEmail:    make(map[string]*model.Customer),
		byNameCity: make(map[string]*model.Customer),
		size:       len(customers),
	}
	for i := range customers {
		c := &customers[i]
		if d := NormalizeDocument(c.Document); d != "" {
			putFirst(x.byDocument, d, c)
		}
		if e := NormalizeEmail(c.Email); e != "" {
			putFirst(x.byEmail, e, c)
		}
		if k := nameCityKey(c.Name, c.City); k != "" {
			putFirst(x.byNameCity, k, c)
		}
	}
	return x
}

// Len returns the number of indexed customers.
func (x *Index) Len() int {
	return x.size
}

func putFirst(m map[string]*model.Customer, key string, c *model.Customer) {
	if _, ok := m[key]; !ok {
		m[key] = c
	}
}

func nameCityKey(name, city string) string {
	n, c := NormalizeName(name), NormalizeCity(city)
	if n == "" || c == "" {
		return ""
	}
	return n + "|" + c
}

// Match applies the rules in order: document, email, then legal or trade
// name within any of the owner's cities.
func (x *Index) Match(o *model.Owner) Match {
	if d := NormalizeDocument(o.Document); d != "" {
		if c, ok := x.byDocument[d]; ok {
			return hit(c, MethodDocument, ConfidenceDocument)
		}
	}
	if e := NormalizeEmail(o.Email); e != "" {
		if c, ok := x.byEmail[e]; ok {
			return hit(c, MethodEmail, ConfidenceEmail)
		}
	}
	for _, name := range []string{o.LegalName, o.TradeName} {
		for _, l := range o.Locations {
			if k := nameCityKey(name, l.AddressCity); k != "" {
				if c, ok := x.byNameCity[k]; ok {
					return hit(c, MethodNameCity, ConfidenceNameCity)
				}
			}
		}
	}
	return Match{}
}

func hit(c *model.Customer, m Method, conf float64) Match {
	id := c.ID
	return Match{CustomerID: &id, CustomerName: c.Name, Confidence: conf, Method: m}
}

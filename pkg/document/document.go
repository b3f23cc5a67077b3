// Package document normalizes and validates Brazilian taxpayer documents
// (CPF for individuals, CNPJ for companies).
package document

import (
	"strings"

	"github.com/rotisserie/eris"
)

const (
	CPFLength  = 11
	CNPJLength = 14
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = eris.New("invalid document")

// Normalize strips everything except ASCII digits, so "123.456.789-09" and
// "12345678909" normalize identically.
func Normalize(doc string) string {
	var b strings.Builder
	b.Grow(len(doc))
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Kind returns "PF" for a CPF-length document, "PJ" for CNPJ-length, or ""
// otherwise. The input is normalized first.
func Kind(doc string) string {
	switch len(Normalize(doc)) {
	case CPFLength:
		return "PF"
	case CNPJLength:
		return "PJ"
	default:
		return ""
	}
}

// Validate normalizes doc and checks its length and check digits for the
// given owner type ("PF" or "PJ"). It returns the normalized form.
func Validate(ownerType, doc string) (string, error) {
	n := Normalize(doc)
	switch ownerType {
	case "PF":
		if !ValidCPF(n) {
			return "", eris.Wrapf(ErrInvalid, "document: CPF %q", doc)
		}
	case "PJ":
		if !ValidCNPJ(n) {
			return "", eris.Wrapf(ErrInvalid, "document: CNPJ %q", doc)
		}
	default:
		return "", eris.Wrapf(ErrInvalid, "document: unknown owner type %q", ownerType)
	}
	return n, nil
}

// ValidCPF reports whether n (digits only) is a CPF with valid check digits.
func ValidCPF(n string) bool {
	if len(n) != CPFLength || repeated(n) {
		return false
	}
	d1 := mod11(n[:9], []int{10, 9, 8, 7, 6, 5, 4, 3, 2})
	d2 := mod11(n[:10], []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2})
	return int(n[9]-'0') == d1 && int(n[10]-'0') == d2
}

// ValidCNPJ reports whether n (digits only) is a CNPJ with valid check digits.
func ValidCNPJ(n string) bool {
	if len(n) != CNPJLength || repeated(n) {
		return false
	}
	d1 := mod11(n[:12], []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	d2 := mod11(n[:13], []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2})
	return int(n[12]-'0') == d1 && int(n[13]-'0') == d2
}

func mod11(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// repeated rejects sequences like 000.000.000-00 that pass the checksum.
func repeated(n string) bool {
	for i := 1; i < len(n); i++ {
		if n[i] != n[0] {
			return false
		}
	}
	return true
}

// Format renders a normalized document with the conventional punctuation.
// Inputs of unexpected length are returned unchanged.
func Format(n string) string {
	switch len(n) {
	case CPFLength:
		return n[0:3] + "." + n[3:6] + "." + n[6:9] + "-" + n[9:11]
	case CNPJLength:
		return n[0:2] + "." + n[2:5] + "." + n[5:8] + "/" + n[8:12] + "-" + n[12:14]
	default:
		return n
	}
}

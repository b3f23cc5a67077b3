package xref

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-intel/pkg/document"
)

// legalSuffixes lists Brazilian legal entity suffixes stripped during name
// normalization. Matching runs after punctuation removal, so "S/A" and
// "S.A." both arrive as "S A" or "SA".
var legalSuffixes = []string{
	" LTDA", " LIMITADA",
	" EIRELI",
	" EPP",
	" ME",
	" MEI",
	" SA", " S A",
	" SS",
	" E CIA",
	" CIA",
}

// ambiguousSuffixes double as surnames or words ("MARIA SA"). They are only
// stripped when at least two words remain.
var ambiguousSuffixes = map[string]bool{
	" ME": true,
	" SA": true, " S A": true,
	" SS": true,
}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	punctRe      = regexp.MustCompile(`[^A-Z0-9 ]+`)
)

// foldAccents maps "JOÃO" to "JOAO".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName standardizes an owner or customer name for matching:
// uppercase, accents folded, punctuation dropped, legal suffixes stripped
// (repeatedly, so "X COMERCIO LTDA ME" loses both) and spaces collapsed.
// A name is never reduced to a single word by an ambiguous suffix.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(foldAccents(name))
	name = strings.NewReplacer(
		"&", " E ",
		"/", " ",
		"-", " ",
		".", "",
	).Replace(name)
	name = punctRe.ReplaceAllString(name, "")
	name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))

	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range legalSuffixes {
			if !strings.HasSuffix(name, suffix) || len(name) <= len(suffix) {
				continue
			}
			rest := strings.TrimSpace(strings.TrimSuffix(name, suffix))
			if ambiguousSuffixes[suffix] && len(strings.Fields(rest)) < 2 {
				continue
			}
			name = rest
			stripped = true
			break
		}
	}
	return name
}

// NormalizeCity folds a city name to a comparable token.
func NormalizeCity(city string) string {
	city = strings.ToUpper(foldAccents(strings.TrimSpace(city)))
	city = punctRe.ReplaceAllString(strings.ReplaceAll(city, "-", " "), "")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(city, " "))
}

// NormalizeEmail lowercases and trims an address. Strings without an "@"
// normalize to empty so they never match.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

// NormalizeDocument reduces a CPF or CNPJ to its digits. Values that are not
// a CPF or CNPJ length normalize to empty.
func NormalizeDocument(doc string) string {
	n := document.Normalize(doc)
	if len(n) != document.CPFLength && len(n) != document.CNPJLength {
		return ""
	}
	return n
}

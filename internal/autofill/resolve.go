// Package autofill maps a business-registry lookup onto template fields by
// keyword matching on field names.
//
// The mapping is a best-effort convenience, not a general-purpose mapper. It
// only looks at names: any field whose name happens to contain a keyword gets
// filled, and a field named in an unexpected way is missed. Results are meant
// as pending suggestions the user reviews before submitting.
package autofill

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/fiche/internal/models"
)

type attr int

const (
	attrNone attr = iota
	attrName
	attrAddress
	attrCity
	attrPostalCode
	attrTaxID
	attrIdentifier
)

type rule struct {
	attr     attr
	keywords []string
	exclude  bool
}

// Keywords are stored folded (lower case, no accents). Order matters: the
// first matching rule wins.
var rules = []rule{
	{attr: attrName, keywords: []string{"raison sociale", "societe", "entreprise", "etablissement"}},
	{attr: attrAddress, keywords: []string{"adresse", "siege"}, exclude: true},
	{attr: attrCity, keywords: []string{"ville", "commune"}, exclude: true},
	{attr: attrPostalCode, keywords: []string{"cp", "postal"}, exclude: true},
	{attr: attrTaxID, keywords: []string{"tva"}},
}

// Site-address words; a field naming one of them describes a work site, not
// the registered office.
var siteWords = []string{"travaux", "chantier", "installation"}

// Resolve returns field name -> value for the fields it could match. info may
// be nil when the lookup found nothing; company id fields still receive the
// raw identifier. Empty attributes are never returned so they cannot blank
// out a value the user already typed.
func Resolve(fields []models.Field, identifier string, info *models.CompanyInfo) map[string]any {
	out := make(map[string]any)
	for _, f := range fields {
		if f.Type == models.FileList || f.Type == models.SectionHeader {
			continue
		}
		if _, done := out[f.Name]; done {
			continue
		}
		v := value(match(f), identifier, info)
		if v != "" {
			out[f.Name] = v
		}
	}
	return out
}

func match(f models.Field) attr {
	name := Fold(f.Name)
	for _, r := range rules {
		if r.exclude && containsAny(name, siteWords) {
			continue
		}
		if containsAny(name, r.keywords) {
			return r.attr
		}
	}
	if f.Type == models.CompanyID {
		return attrIdentifier
	}
	return attrNone
}

func value(a attr, identifier string, info *models.CompanyInfo) string {
	if a == attrIdentifier {
		return strings.TrimSpace(identifier)
	}
	if info == nil {
		return ""
	}
	switch a {
	case attrName:
		return info.Name
	case attrAddress:
		return info.Address
	case attrCity:
		return info.City
	case attrPostalCode:
		return info.PostalCode
	case attrTaxID:
		return info.TaxID
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Fold lower-cases s and strips diacritics, so "Siège Social" folds to
// "siege social".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

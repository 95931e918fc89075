package autofill

import (
	"testing"

	"github.com/starford/fiche/internal/models"
)

var acme = &models.CompanyInfo{
	Name:       "NewCo",
	Address:    "1 Rue de la Paix",
	City:       "Paris",
	PostalCode: "75002",
	TaxID:      "FR12345678901",
}

func TestResolveKeywordTable(t *testing.T) {
	fields := []models.Field{
		{Name: "Raison sociale", Type: models.ShortText},
		{Name: "Adresse du siège", Type: models.Address},
		{Name: "Adresse Travaux", Type: models.WorkAddress},
		{Name: "Ville", Type: models.ShortText},
		{Name: "Commune chantier", Type: models.ShortText},
		{Name: "Code postal", Type: models.ShortText},
		{Name: "N° TVA", Type: models.ShortText},
		{Name: "SIRET", Type: models.CompanyID},
		{Name: "Commentaire", Type: models.LongText},
		{Name: "Photos entreprise", Type: models.FileList},
		{Name: "Société", Type: models.SectionHeader},
	}
	got := Resolve(fields, " 123 456 789 00012 ", acme)
	want := map[string]any{
		"Raison sociale":   "NewCo",
		"Adresse du siège": "1 Rue de la Paix",
		"Ville":            "Paris",
		"Code postal":      "75002",
		"N° TVA":           "FR12345678901",
		"SIRET":            "123 456 789 00012",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestResolveIsAccentInsensitive(t *testing.T) {
	fields := []models.Field{
		{Name: "SOCIETE", Type: models.ShortText},
		{Name: "Siege", Type: models.ShortText},
		{Name: "Établissement", Type: models.ShortText},
	}
	got := Resolve(fields, "x", acme)
	if got["SOCIETE"] != "NewCo" || got["Siege"] != acme.Address || got["Établissement"] != "NewCo" {
		t.Errorf("got %v", got)
	}
}

func TestResolveFirstRuleWins(t *testing.T) {
	// Both the company-name and city keywords appear; the name rule is first.
	fields := []models.Field{{Name: "Entreprise ville", Type: models.ShortText}}
	if got := Resolve(fields, "x", acme); got["Entreprise ville"] != "NewCo" {
		t.Errorf("got %v", got)
	}
	// A company id field whose name matches a keyword takes the keyword.
	fields = []models.Field{{Name: "TVA intracom", Type: models.CompanyID}}
	if got := Resolve(fields, "x", acme); got["TVA intracom"] != acme.TaxID {
		t.Errorf("got %v", got)
	}
}

func TestResolveWithoutLookupResult(t *testing.T) {
	fields := []models.Field{
		{Name: "Société", Type: models.ShortText},
		{Name: "SIRET", Type: models.CompanyID},
	}
	got := Resolve(fields, "55210055400013", nil)
	if len(got) != 1 || got["SIRET"] != "55210055400013" {
		t.Errorf("got %v", got)
	}
}

func TestResolveSkipsEmptyAttributes(t *testing.T) {
	fields := []models.Field{{Name: "Ville", Type: models.ShortText}}
	if got := Resolve(fields, "x", &models.CompanyInfo{Name: "A"}); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestFold(t *testing.T) {
	for in, want := range map[string]string{
		"Société":       "societe",
		" Siège Social": "siege social",
		"ÉTABLISSEMENT": "etablissement",
		"plain":         "plain",
	} {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

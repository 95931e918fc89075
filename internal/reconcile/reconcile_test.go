package reconcile

import (
	"errors"
	"testing"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

func base() []models.Field {
	return []models.Field{
		{Name: "Société", Type: models.ShortText, Required: true},
		{Name: "Adresse", Type: models.Address},
		{Name: "Photos", Type: models.FileList},
	}
}

func names(fields []models.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func equalNames(t *testing.T, got []models.Field, want ...string) {
	t.Helper()
	g := names(got)
	if len(g) != len(want) {
		t.Fatalf("names = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("names = %v, want %v", g, want)
		}
	}
}

func TestAppend(t *testing.T) {
	in := base()
	out, err := Append(in, models.Field{Name: "  Ville ", Type: models.ShortText, RequiredForExport: true})
	if err != nil {
		t.Fatal(err)
	}
	equalNames(t, out, "Société", "Adresse", "Photos", "Ville")
	if out[3].RequiredForExport {
		t.Error("required_for_export kept on a text field")
	}
	if len(in) != 3 {
		t.Error("input slice mutated")
	}
}

func TestAppendRejectsBadFields(t *testing.T) {
	if _, err := Append(base(), models.Field{Name: " ", Type: models.ShortText}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("empty name err = %v", err)
	}
	if _, err := Append(base(), models.Field{Name: "X", Type: models.FieldType(99)}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad type err = %v", err)
	}
}

func TestCollisionRules(t *testing.T) {
	if _, err := Append(base(), models.Field{Name: "Adresse", Type: models.ShortText}); !errors.Is(err, apperr.ErrFieldCollision) {
		t.Errorf("same name, different type err = %v", err)
	}
	out, err := Append(base(), models.Field{Name: "Adresse", Type: models.Address})
	if err != nil {
		t.Fatalf("same name, same type should coexist: %v", err)
	}
	if len(out) != 4 {
		t.Errorf("len = %d", len(out))
	}
	if _, err := Append(base(), models.Field{Name: "Photos", Type: models.SectionHeader}); err != nil {
		t.Errorf("section header may reuse a name: %v", err)
	}
}

func TestRemoveLeavesOthers(t *testing.T) {
	out, err := Remove(base(), "Adresse")
	if err != nil {
		t.Fatal(err)
	}
	equalNames(t, out, "Société", "Photos")
	if _, err := Remove(base(), "Inconnu"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown name err = %v", err)
	}
	if _, err := Remove(base()); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("no names err = %v", err)
	}
}

func TestReorderIsPermutation(t *testing.T) {
	out, err := Reorder(base(), []int{2, 0, 1})
	if err != nil {
		t.Fatal(err)
	}
	equalNames(t, out, "Photos", "Société", "Adresse")
	if !out[1].Required {
		t.Error("flags lost on reorder")
	}
	for _, bad := range [][]int{{0, 1}, {0, 0, 1}, {0, 1, 3}, {-1, 0, 1}} {
		if _, err := Reorder(base(), bad); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("Reorder(%v) err = %v", bad, err)
		}
	}
}

func TestSetFlags(t *testing.T) {
	yes, no := true, false
	out, err := SetFlags(base(), 2, &yes, &yes)
	if err != nil {
		t.Fatal(err)
	}
	if !out[2].Required || !out[2].RequiredForExport {
		t.Errorf("flags = %+v", out[2])
	}
	out, err = SetFlags(out, 0, &no, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Required {
		t.Error("required not cleared")
	}
	if _, err := SetFlags(base(), 0, nil, &yes); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("export flag on text err = %v", err)
	}
	if _, err := SetFlags(base(), 9, &yes, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("bad position err = %v", err)
	}
}

func TestRenameReportsOrphanedKey(t *testing.T) {
	out, n, err := Rename(base(), 0, "Raison sociale")
	if err != nil {
		t.Fatal(err)
	}
	equalNames(t, out, "Raison sociale", "Adresse", "Photos")
	if n == nil || n.OrphanedKey != "Société" || n.NewKey != "Raison sociale" {
		t.Errorf("notice = %+v", n)
	}
	if _, n, _ := Rename(base(), 0, "Société"); n != nil {
		t.Error("no-op rename should not report data loss")
	}
	if _, _, err := Rename(base(), 0, "Adresse"); !errors.Is(err, apperr.ErrFieldCollision) {
		t.Errorf("rename into collision err = %v", err)
	}
}

func TestRetype(t *testing.T) {
	out, err := Retype(base(), 1, models.WorkAddress)
	if err != nil {
		t.Fatal(err)
	}
	if out[1].Type != models.WorkAddress {
		t.Errorf("type = %v", out[1].Type)
	}
	withExport := base()
	withExport[2].RequiredForExport = true
	out, err = Retype(withExport, 2, models.ShortText)
	if err != nil {
		t.Fatal(err)
	}
	if out[2].RequiredForExport {
		t.Error("export flag kept after retype away from file list")
	}
}

func TestReplaceValidatesWholeList(t *testing.T) {
	if _, err := Replace([]models.Field{{Name: "A", Type: models.Date}, {Name: "A", Type: models.Number}}); !errors.Is(err, apperr.ErrFieldCollision) {
		t.Errorf("err = %v", err)
	}
	out, err := Replace([]models.Field{{Name: "Infos", Type: models.SectionHeader, Required: true}})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Required {
		t.Error("section header kept required flag")
	}
}

func TestApplyDispatch(t *testing.T) {
	ft := models.Number
	res, err := Apply(base(), Op{Kind: KindRetype, Position: 0, Type: &ft})
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields[0].Type != models.Number {
		t.Errorf("fields = %+v", res.Fields)
	}
	res, err = Apply(base(), Op{Kind: KindRename, Position: 1, Name: "Siège"})
	if err != nil || res.Notice == nil {
		t.Fatalf("rename: %+v, %v", res, err)
	}
	if _, err := Apply(base(), Op{Kind: "explode"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown kind err = %v", err)
	}
	if _, err := Apply(base(), Op{Kind: KindAppend}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("append without field err = %v", err)
	}
}

package form

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/starford/fiche/internal/models"
)

func testTemplate(fields ...models.Field) *models.Template {
	return &models.Template{ID: "tpl1", Name: "Chantier", ActivityID: "act1", Fields: fields}
}

func widgetByName(t *testing.T, f Form, name string) Widget {
	t.Helper()
	for _, w := range f.Widgets {
		if w.Name == name {
			return w
		}
	}
	t.Fatalf("no widget named %q", name)
	return Widget{}
}

func TestKeyRoundTrip(t *testing.T) {
	k := Key{TemplateID: "tpl1", Position: 3, FieldName: "Adresse / Siège", Generation: 7}
	back, err := ParseKey(k.String())
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if back != k {
		t.Errorf("round trip = %+v, want %+v", back, k)
	}
	for _, bad := range []string{"", "tpl1/x/Nom/g0", "tpl1/0/Nom/0", "tpl1/0/Nom"} {
		if _, err := ParseKey(bad); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("ParseKey(%q) err = %v", bad, err)
		}
	}
}

func TestRenderCoversEveryFieldType(t *testing.T) {
	var fields []models.Field
	for _, ft := range models.AllFieldTypes() {
		fields = append(fields, models.Field{Name: ft.String(), Type: ft, Required: true})
	}
	tpl := testTemplate(fields...)
	f := Render(NewState(), tpl, nil)
	if len(f.Widgets) != len(fields) {
		t.Fatalf("widgets = %d, want %d", len(f.Widgets), len(fields))
	}
	for _, w := range f.Widgets {
		if w.Type == models.SectionHeader {
			if !w.Break || w.Key != "" || w.Required {
				t.Errorf("section header rendered as %+v", w)
			}
			continue
		}
		if w.Key == "" {
			t.Errorf("%v widget has no key", w.Type)
		}
	}
	// Validate and normalize must also accept every type.
	_ = Validate(Collect(NewState(), tpl, nil))
	for _, ft := range models.AllFieldTypes() {
		_ = normalize(ft, "x")
	}
}

func TestUndeclaredFieldTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for undeclared field type")
		}
	}()
	bindingOf(models.FieldType(len(models.AllFieldTypes())))
}

func TestOrphanTolerance(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Nom", Type: models.ShortText},
		models.Field{Name: "Montant", Type: models.Number},
		models.Field{Name: "Signé", Type: models.Checkbox},
	)
	rec := &models.Record{ID: "r1", TemplateID: "tpl1", Data: models.Data{
		"Nom":      "Dupont",
		"Ancien":   "orphan value",
		"Supprimé": []any{"/files/x.pdf"},
		"Montant":  0.0,
	}}
	st := NewState()
	f := Render(st, tpl, rec)
	if len(f.Widgets) != 3 {
		t.Fatalf("widgets = %d", len(f.Widgets))
	}
	if w := widgetByName(t, f, "Nom"); w.Value != "Dupont" || w.Source != SourceRecord {
		t.Errorf("Nom = %+v", w)
	}
	if w := widgetByName(t, f, "Montant"); w.Value != 0.0 {
		t.Errorf("Montant = %#v, want 0", w.Value)
	}
	if w := widgetByName(t, f, "Signé"); w.Value != false || w.Source != SourceDefault {
		t.Errorf("Signé = %+v", w)
	}

	data := Apply(rec.Data, Collect(st, tpl, rec))
	if data["Ancien"] != "orphan value" {
		t.Error("orphaned key dropped on save")
	}
	if _, ok := data["Supprimé"]; !ok {
		t.Error("orphaned file key dropped on save")
	}
	if rec.Data["Signé"] != nil {
		t.Error("Apply mutated the source record")
	}
}

func TestGenerationIsolation(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Nom", Type: models.ShortText},
		models.Field{Name: "Photos", Type: models.FileList},
		models.Field{Name: "Adresse Travaux", Type: models.WorkAddress},
	)
	st := NewState()
	f := Render(st, tpl, nil)
	nomKey := widgetByName(t, f, "Nom").Key
	if err := st.SetValue(tpl, "", nomKey, "Martin"); err != nil {
		t.Fatal(err)
	}
	if err := st.AddUploads(tpl, "", widgetByName(t, f, "Photos").Key, "/files/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCopyMain(tpl, "", widgetByName(t, f, "Adresse Travaux").Key, true); err != nil {
		t.Fatal(err)
	}

	sub := Collect(st, tpl, nil)
	if sub.Entries[0].Value != "Martin" {
		t.Fatalf("collected %+v", sub.Entries[0])
	}
	if gen := st.Complete(tpl.ID); gen != 1 {
		t.Fatalf("generation = %d, want 1", gen)
	}

	next := Render(st, tpl, nil)
	if next.Generation != 1 {
		t.Errorf("next generation = %d", next.Generation)
	}
	if w := widgetByName(t, next, "Nom"); w.Value != "" || w.Key == nomKey {
		t.Errorf("previous value bled into new form: %+v", w)
	}
	if w := widgetByName(t, next, "Photos"); len(w.Uploads) != 0 {
		t.Errorf("uploads bled into new form: %v", w.Uploads)
	}
	if w := widgetByName(t, next, "Adresse Travaux"); w.CopyMain {
		t.Error("copy toggle bled into new form")
	}
	if err := st.SetValue(tpl, "", nomKey, "late write"); !errors.Is(err, ErrStaleKey) {
		t.Errorf("stale key write err = %v", err)
	}
}

func TestRequiredFieldGate(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Nom", Type: models.ShortText, Required: true},
		models.Field{Name: "Quantité", Type: models.Number, Required: true},
		models.Field{Name: "Infos", Type: models.SectionHeader, Required: true},
		models.Field{Name: "Notes", Type: models.LongText},
	)
	st := NewState()
	f := Render(st, tpl, nil)
	_ = st.SetValue(tpl, "", widgetByName(t, f, "Quantité").Key, 0)

	v := Validate(Collect(st, tpl, nil))
	if len(v) != 1 {
		t.Fatalf("violations = %+v, want exactly one", v)
	}
	if v[0].Field != "Nom" || v[0].Position != 0 {
		t.Errorf("violation = %+v", v[0])
	}
}

func TestRequiredFileList(t *testing.T) {
	tpl := testTemplate(models.Field{Name: "Kbis", Type: models.FileList, Required: true})

	if v := Validate(Collect(NewState(), tpl, nil)); len(v) != 1 {
		t.Errorf("empty file list: violations = %+v", v)
	}

	rec := &models.Record{ID: "r1", Data: models.Data{"Kbis": []string{"/files/kbis.pdf"}}}
	if v := Validate(Collect(NewState(), tpl, rec)); len(v) != 0 {
		t.Errorf("attached file should satisfy required: %+v", v)
	}

	st := NewState()
	f := Render(st, tpl, nil)
	_ = st.AddUploads(tpl, "", f.Widgets[0].Key, "/files/new.pdf")
	if v := Validate(Collect(st, tpl, nil)); len(v) != 0 {
		t.Errorf("upload should satisfy required: %+v", v)
	}
}

func TestTypeConstraints(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Montant", Type: models.Number},
		models.Field{Name: "Début", Type: models.Date},
		models.Field{Name: "Accord", Type: models.Checkbox, Required: true},
	)
	st := NewState()
	f := Render(st, tpl, nil)
	_ = st.SetValue(tpl, "", f.Widgets[0].Key, "douze")
	_ = st.SetValue(tpl, "", f.Widgets[1].Key, "14/10/2026")

	v := Validate(Collect(st, tpl, nil))
	if len(v) != 3 {
		t.Fatalf("violations = %+v", v)
	}

	_ = st.SetValue(tpl, "", f.Widgets[0].Key, "12,5")
	_ = st.SetValue(tpl, "", f.Widgets[1].Key, "2026-10-14")
	_ = st.SetValue(tpl, "", f.Widgets[2].Key, "true")
	sub := Collect(st, tpl, nil)
	if v := Validate(sub); len(v) != 0 {
		t.Fatalf("violations = %+v", v)
	}
	if sub.Entries[0].Value != 12.5 {
		t.Errorf("number = %#v", sub.Entries[0].Value)
	}
}

func TestAddressPropagation(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Adresse", Type: models.Address},
		models.Field{Name: "Adresse Travaux", Type: models.WorkAddress},
	)
	st := NewState()
	f := Render(st, tpl, nil)
	addrKey, workKey := f.Widgets[0].Key, f.Widgets[1].Key

	if err := st.SetValue(tpl, "", addrKey, "12 Rue X"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetCopyMain(tpl, "", workKey, true); err != nil {
		t.Fatal(err)
	}
	f = Render(st, tpl, nil)
	work := f.Widgets[1]
	if work.Value != "12 Rue X" || !work.ReadOnly || work.Source != SourceMain {
		t.Fatalf("work address = %+v", work)
	}
	if err := st.SetValue(tpl, "", workKey, "elsewhere"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("write while copying err = %v", err)
	}

	// Recomputed on every render while checked.
	_ = st.SetValue(tpl, "", addrKey, "14 Rue Y")
	if got := Render(st, tpl, nil).Widgets[1].Value; got != "14 Rue Y" {
		t.Errorf("copied value not recomputed: %v", got)
	}

	_ = st.SetCopyMain(tpl, "", workKey, false)
	if err := st.SetValue(tpl, "", workKey, "3 Impasse Z"); err != nil {
		t.Fatal(err)
	}
	f = Render(st, tpl, nil)
	if f.Widgets[0].Value != "14 Rue Y" {
		t.Errorf("editing work address changed main address: %v", f.Widgets[0].Value)
	}
	if f.Widgets[1].Value != "3 Impasse Z" || f.Widgets[1].ReadOnly {
		t.Errorf("work address = %+v", f.Widgets[1])
	}
}

func TestAddressFoldIsLeftToRight(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Travaux 1", Type: models.WorkAddress},
		models.Field{Name: "Adresse siège", Type: models.ShortText},
		models.Field{Name: "Travaux 2", Type: models.WorkAddress},
		models.Field{Name: "Adresse facturation", Type: models.Address},
		models.Field{Name: "Adresse chantier", Type: models.ShortText},
		models.Field{Name: "Travaux 3", Type: models.WorkAddress},
	)
	rec := &models.Record{ID: "r1", Data: models.Data{
		"Adresse siège":       "1 Siège",
		"Adresse facturation": "2 Facture",
		"Adresse chantier":    "3 Chantier",
	}}
	st := NewState()
	f := Render(st, tpl, rec)
	for _, pos := range []int{0, 2, 5} {
		_ = st.SetCopyMain(tpl, "r1", f.Widgets[pos].Key, true)
	}
	f = Render(st, tpl, rec)
	want := map[int]string{0: "", 2: "1 Siège", 5: "2 Facture"}
	for pos, addr := range want {
		if got := f.Widgets[pos].Value; got != addr {
			t.Errorf("widget %d = %q, want %q", pos, got, addr)
		}
	}
}

func TestAutofillPendingPriority(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Société", Type: models.ShortText},
		models.Field{Name: "Ville", Type: models.ShortText},
	)
	rec := &models.Record{ID: "r1", Data: models.Data{"Société": "OldCo", "Ville": "Lyon"}}
	st := NewState()
	Render(st, tpl, rec)
	st.SetPending(tpl.ID, rec.ID, map[string]any{"Société": "NewCo"})

	f := Render(st, tpl, rec)
	if w := f.Widgets[0]; w.Value != "NewCo" || w.Source != SourceAutofill {
		t.Errorf("Société = %+v", w)
	}
	if f.Widgets[1].Value != "Lyon" {
		t.Errorf("Ville = %v", f.Widgets[1].Value)
	}
	if rec.Data["Société"] != "OldCo" {
		t.Error("render changed the stored record")
	}

	// Pending is consumed; the value now lives in widget state.
	f = Render(st, tpl, rec)
	if w := f.Widgets[0]; w.Value != "NewCo" || w.Source != SourceState {
		t.Errorf("second render = %+v", w)
	}

	// A new-record form of the same template is untouched.
	if v := Render(st, tpl, nil).Widgets[0].Value; v != "" {
		t.Errorf("pending leaked into new form: %v", v)
	}
}

func TestReorderPreservesBindings(t *testing.T) {
	fields := []models.Field{
		{Name: "A", Type: models.ShortText},
		{Name: "B", Type: models.ShortText},
		{Name: "C", Type: models.Number},
	}
	rec := &models.Record{ID: "r1", Data: models.Data{"A": "a", "B": "b", "C": 3.0}}
	st := NewState()
	tpl := testTemplate(fields...)
	Render(st, tpl, rec)

	tpl = testTemplate(fields[2], fields[0], fields[1])
	f := Render(st, tpl, rec)
	for _, w := range f.Widgets {
		if want := rec.Data[w.Name]; w.Value != want {
			t.Errorf("%s at %d = %v, want %v", w.Name, w.Position, w.Value, want)
		}
	}
}

func TestDuplicateNamesBindByPosition(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Nom", Type: models.ShortText},
		models.Field{Name: "Nom", Type: models.ShortText},
	)
	st := NewState()
	f := Render(st, tpl, nil)
	if f.Widgets[0].Key == f.Widgets[1].Key {
		t.Fatal("duplicate names share a widget key")
	}
	_ = st.SetValue(tpl, "", f.Widgets[0].Key, "first")
	f = Render(st, tpl, nil)
	if f.Widgets[1].Value != "" {
		t.Errorf("second widget cross-bound to first: %v", f.Widgets[1].Value)
	}
}

func TestSchemaChangeInvalidatesKey(t *testing.T) {
	tpl := testTemplate(models.Field{Name: "Nom", Type: models.ShortText})
	st := NewState()
	key := Render(st, tpl, nil).Widgets[0].Key
	renamed := testTemplate(models.Field{Name: "Raison sociale", Type: models.ShortText})
	if err := st.SetValue(renamed, "", key, "x"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("err = %v", err)
	}
}

func TestApplyMergesFileLists(t *testing.T) {
	tpl := testTemplate(models.Field{Name: "Photos", Type: models.FileList})
	rec := &models.Record{ID: "r1", Data: models.Data{"Photos": []any{"/files/a.jpg"}}}
	st := NewState()
	f := Render(st, tpl, rec)
	if len(f.Widgets[0].Attached) != 1 || f.Widgets[0].Value != nil {
		t.Fatalf("file widget = %+v", f.Widgets[0])
	}
	_ = st.AddUploads(tpl, "r1", f.Widgets[0].Key, "/files/b.jpg", "/files/a.jpg")
	data := Apply(rec.Data, Collect(st, tpl, rec))
	urls := data["Photos"].([]string)
	if len(urls) != 2 || urls[0] != "/files/a.jpg" || urls[1] != "/files/b.jpg" {
		t.Errorf("Photos = %v", urls)
	}
}

func TestStateSurvivesJSON(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Nom", Type: models.ShortText},
		models.Field{Name: "Photos", Type: models.FileList},
	)
	st := NewState()
	f := Render(st, tpl, nil)
	_ = st.SetValue(tpl, "", f.Widgets[0].Key, "Durand")
	_ = st.AddUploads(tpl, "", f.Widgets[1].Key, "/files/p.jpg")

	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	var back State
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	f = Render(&back, tpl, nil)
	if f.Widgets[0].Value != "Durand" || len(f.Widgets[1].Uploads) != 1 {
		t.Errorf("reloaded form = %+v", f.Widgets)
	}
}

func TestResetKeepsGeneration(t *testing.T) {
	tpl := testTemplate(models.Field{Name: "Nom", Type: models.ShortText})
	st := NewState()
	f := Render(st, tpl, nil)
	_ = st.SetValue(tpl, "", f.Widgets[0].Key, "x")
	st.Reset(tpl.ID, "")
	f2 := Render(st, tpl, nil)
	if f2.Widgets[0].Value != "" || f2.Generation != f.Generation {
		t.Errorf("after reset = %+v", f2)
	}
}

func TestRenderRereadsRecord(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Société", Type: models.ShortText},
		models.Field{Name: "Signé", Type: models.Checkbox},
		models.Field{Name: "Ville", Type: models.ShortText},
	)
	st := NewState()
	rec := &models.Record{ID: "r1", Data: models.Data{"Société": "OldCo", "Signé": false, "Ville": "Lyon"}}
	f := Render(st, tpl, rec)
	_ = st.SetValue(tpl, "r1", widgetByName(t, f, "Ville").Key, "Nantes")

	// The record changes elsewhere between two renders of the same form.
	rec = &models.Record{ID: "r1", Data: models.Data{"Société": "NewCo", "Signé": true, "Ville": "Lyon"}}
	f = Render(st, tpl, rec)
	if w := widgetByName(t, f, "Société"); w.Value != "NewCo" || w.Source != SourceRecord {
		t.Errorf("Société = %+v", w)
	}
	if w := widgetByName(t, f, "Signé"); w.Value != true || w.Source != SourceRecord {
		t.Errorf("Signé = %+v", w)
	}
	if w := widgetByName(t, f, "Ville"); w.Value != "Nantes" || w.Source != SourceState {
		t.Errorf("Ville = %+v", w)
	}

	data := Apply(rec.Data, Collect(st, tpl, rec))
	if data["Société"] != "NewCo" || data["Signé"] != true || data["Ville"] != "Nantes" {
		t.Errorf("saved %v", data)
	}
}

func TestRetypedValueKeptOnSubmit(t *testing.T) {
	tpl := testTemplate(
		models.Field{Name: "Pièces", Type: models.ShortText},
		models.Field{Name: "Signé", Type: models.Checkbox},
		models.Field{Name: "Nom", Type: models.ShortText},
	)
	list := []any{"/files/a.pdf", "/files/b.pdf"}
	rec := &models.Record{ID: "r1", Data: models.Data{"Pièces": list, "Signé": list, "Nom": "Dupont"}}
	st := NewState()

	f := Render(st, tpl, rec)
	for _, name := range []string{"Pièces", "Signé"} {
		w := widgetByName(t, f, name)
		if w.Source != SourceUnreadable {
			t.Errorf("%s source = %q, want unreadable", name, w.Source)
		}
		if s, ok := w.Value.(string); ok && s != "" {
			t.Errorf("%s rendered %q", name, s)
		}
	}

	_ = st.SetValue(tpl, "r1", widgetByName(t, f, "Nom").Key, "Durand")
	data := Apply(rec.Data, Collect(st, tpl, rec))
	got, ok := data["Pièces"].([]any)
	if !ok || len(got) != 2 || got[0] != "/files/a.pdf" {
		t.Errorf("Pièces = %#v, want the stored list", data["Pièces"])
	}
	if _, ok := data["Signé"].([]any); !ok {
		t.Errorf("Signé = %#v, want the stored list", data["Signé"])
	}
	if data["Nom"] != "Durand" {
		t.Errorf("Nom = %v", data["Nom"])
	}

	// A user edit replaces the unreadable value.
	f = Render(st, tpl, rec)
	_ = st.SetValue(tpl, "r1", widgetByName(t, f, "Pièces").Key, "voir dossier")
	data = Apply(rec.Data, Collect(st, tpl, rec))
	if data["Pièces"] != "voir dossier" {
		t.Errorf("edited Pièces = %#v", data["Pièces"])
	}
}

package export

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

type fakeMerger struct {
	calls int
	got   []string
	out   []byte
	err   error
}

func (m *fakeMerger) Merge(_ context.Context, urls []string) ([]byte, error) {
	m.calls++
	m.got = urls
	return m.out, m.err
}

func exportTemplate() *models.Template {
	return &models.Template{ID: "t1", Fields: []models.Field{
		{Name: "Kbis", Type: models.FileList, RequiredForExport: true},
		{Name: "Nom", Type: models.ShortText},
		{Name: "Photos", Type: models.FileList},
		{Name: "Devis", Type: models.FileList, RequiredForExport: true},
	}}
}

func TestComposeBlocksWithoutCallingMerger(t *testing.T) {
	m := &fakeMerger{}
	rec := &models.Record{Data: models.Data{"Photos": []string{"/files/p.jpg"}}}
	_, err := NewComposer(m).Compose(context.Background(), exportTemplate(), rec)

	var blocked *apperr.ExportBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("err = %v, want ExportBlockedError", err)
	}
	if len(blocked.Fields) != 2 || blocked.Fields[0] != "Kbis" || blocked.Fields[1] != "Devis" {
		t.Errorf("blocked fields = %v", blocked.Fields)
	}
	if !errors.Is(err, apperr.ErrExportBlocked) {
		t.Error("error does not match ErrExportBlocked")
	}
	if m.calls != 0 {
		t.Errorf("merger called %d times", m.calls)
	}
}

func TestComposeOrdersByFieldAndReturnsBytes(t *testing.T) {
	m := &fakeMerger{out: []byte("%PDF merged")}
	rec := &models.Record{Data: models.Data{
		"Devis":  []any{"/files/d.pdf"},
		"Photos": []string{"/files/p1.jpg", "/files/p2.png"},
		"Kbis":   "/files/k.pdf",
		"Nom":    "ignored",
	}}
	out, err := NewComposer(m).Compose(context.Background(), exportTemplate(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "%PDF merged" {
		t.Errorf("out = %q", out)
	}
	want := []string{"/files/k.pdf", "/files/p1.jpg", "/files/p2.png", "/files/d.pdf"}
	if len(m.got) != len(want) {
		t.Fatalf("urls = %v", m.got)
	}
	for i := range want {
		if m.got[i] != want[i] {
			t.Fatalf("urls = %v, want %v", m.got, want)
		}
	}
}

func TestComposeLeavesEmptyListToMerger(t *testing.T) {
	tpl := &models.Template{Fields: []models.Field{{Name: "Photos", Type: models.FileList}}}
	m := &fakeMerger{err: fmt.Errorf("%w: no documents", apperr.ErrMergeFailed)}
	_, err := NewComposer(m).Compose(context.Background(), tpl, &models.Record{Data: models.Data{}})
	if m.calls != 1 || len(m.got) != 0 {
		t.Errorf("merger calls = %d with %v", m.calls, m.got)
	}
	if !errors.Is(err, apperr.ErrMergeFailed) {
		t.Errorf("err = %v, want the merger's error", err)
	}
}

func TestComposeWrapsMergeFailure(t *testing.T) {
	m := &fakeMerger{err: errors.New("corrupt pdf")}
	rec := &models.Record{Data: models.Data{"Kbis": []string{"a"}, "Devis": []string{"b"}}}
	_, err := NewComposer(m).Compose(context.Background(), exportTemplate(), rec)
	if !errors.Is(err, apperr.ErrMergeFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestDocumentsReadsSharedNameOnce(t *testing.T) {
	tpl := &models.Template{Fields: []models.Field{
		{Name: "Photos", Type: models.FileList},
		{Name: "Annexes", Type: models.FileList},
		{Name: "Photos", Type: models.FileList},
	}}
	rec := &models.Record{Data: models.Data{
		"Photos":  []string{"a", "b"},
		"Annexes": []string{"b", "c"},
	}}
	urls, err := Documents(tpl, rec)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "b", "c"}
	if len(urls) != len(want) {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("urls = %v, want %v", urls, want)
		}
	}
}

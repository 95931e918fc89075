// Package export assembles a record's attached documents into one file.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

// Merger turns an ordered list of document URLs (PDF or image) into one
// document.
type Merger interface {
	Merge(ctx context.Context, urls []string) ([]byte, error)
}

// Composer decides whether a record can be exported and in what order its
// documents go. It performs no conversion itself.
type Composer struct {
	merger Merger
}

// NewComposer returns a Composer handing documents to m.
func NewComposer(m Merger) *Composer {
	return &Composer{merger: m}
}

// Documents returns the record's file URLs in template field order. When any
// field flagged required_for_export is empty it returns a single
// *apperr.ExportBlockedError naming all of them. A URL listed by two fields
// appears twice; a record with no documents yields an empty list and the
// merger decides what that means.
func Documents(tpl *models.Template, rec *models.Record) ([]string, error) {
	var (
		urls    []string
		missing []string
		// Fields sharing a name read the same record key, so only the first
		// one contributes its list.
		read = make(map[string]bool)
	)
	for _, f := range tpl.Fields {
		if f.Type != models.FileList || read[f.Name] {
			continue
		}
		read[f.Name] = true
		list := models.AsURLs(rec.Data[f.Name])
		if len(list) == 0 {
			if f.BlocksExport() {
				missing = append(missing, f.Name)
			}
			continue
		}
		urls = append(urls, list...)
	}
	if len(missing) > 0 {
		return nil, &apperr.ExportBlockedError{Fields: missing}
	}
	return urls, nil
}

// Compose returns the merged document bytes exactly as the merger produced
// them. The merger is never called when export is blocked.
func (c *Composer) Compose(ctx context.Context, tpl *models.Template, rec *models.Record) ([]byte, error) {
	urls, err := Documents(tpl, rec)
	if err != nil {
		return nil, err
	}
	out, err := c.merger.Merge(ctx, urls)
	if err != nil {
		if errors.Is(err, apperr.ErrMergeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrMergeFailed, err)
	}
	return out, nil
}

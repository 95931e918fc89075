// Package pdfmerge fetches PDF and image documents and merges them into a
// single PDF with pdfcpu.
package pdfmerge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/safehttp"
	"github.com/starford/fiche/internal/storage"
)

const defaultMaxDocument = 32 << 20

// Files resolves URLs issued by local storage.
type Files interface {
	PathOf(url string) (string, bool)
	Read(path string) ([]byte, error)
}

// Kind is the detected type of a fetched document.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
)

// Merger implements export.Merger.
type Merger struct {
	files       Files
	http        *http.Client
	logger      *slog.Logger
	maxDocument int64
}

// New returns a Merger reading local URLs from files and fetching http(s)
// URLs with httpClient. A nil client defaults to one that refuses internal
// addresses; a nil logger to slog.Default().
func New(files Files, httpClient *http.Client, logger *slog.Logger) *Merger {
	if httpClient == nil {
		httpClient = safehttp.NewClient(30 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{files: files, http: httpClient, logger: logger, maxDocument: defaultMaxDocument}
}

// Merge fetches every URL in order, turns images into one-page PDFs and
// concatenates the result. Any fetch or conversion failure aborts the merge
// with apperr.ErrMergeFailed. When ctx carries a storage owner, local files
// of other companies are refused.
func (m *Merger) Merge(ctx context.Context, urls []string) ([]byte, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no documents", apperr.ErrMergeFailed)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	parts := make([]io.ReadSeeker, 0, len(urls))
	for _, u := range urls {
		data, err := m.fetch(ctx, u)
		if err != nil {
			m.logger.Warn("export: fetch document", slog.String("url", u), slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: fetch %s: %w", apperr.ErrMergeFailed, u, err)
		}
		switch Detect(data, u) {
		case KindPDF:
			parts = append(parts, bytes.NewReader(data))
		case KindImage:
			page, err := imagePage(data, conf)
			if err != nil {
				return nil, fmt.Errorf("%w: convert %s: %w", apperr.ErrMergeFailed, u, err)
			}
			parts = append(parts, bytes.NewReader(page))
		default:
			return nil, fmt.Errorf("%w: %s is neither a PDF nor an image", apperr.ErrMergeFailed, u)
		}
	}

	if len(parts) == 1 {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, parts[0]); err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrMergeFailed, err)
		}
		return buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := api.MergeRaw(parts, &out, false, conf); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrMergeFailed, err)
	}
	return out.Bytes(), nil
}

func imagePage(data []byte, conf *model.Configuration) ([]byte, error) {
	var out bytes.Buffer
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, &out, []io.Reader{bytes.NewReader(data)}, imp, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (m *Merger) fetch(ctx context.Context, u string) ([]byte, error) {
	if m.files != nil {
		if p, ok := m.files.PathOf(u); ok {
			if owner, scoped := storage.OwnerFrom(ctx); scoped && storage.Owner(p) != owner {
				return nil, fmt.Errorf("%w: %s belongs to another company", apperr.ErrForbidden, u)
			}
			return m.files.Read(p)
		}
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return nil, fmt.Errorf("%w: unsupported url %q", apperr.ErrInvalid, u)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxDocument+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > m.maxDocument {
		return nil, fmt.Errorf("document larger than %d bytes", m.maxDocument)
	}
	return data, nil
}

// Detect sniffs data and falls back to the URL's extension for formats the
// sniffer does not know (TIFF).
func Detect(data []byte, u string) Kind {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return KindPDF
	}
	switch http.DetectContentType(data) {
	case "image/jpeg", "image/png", "image/webp":
		return KindImage
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".tif", ".tiff":
		return KindImage
	}
	return KindUnknown
}

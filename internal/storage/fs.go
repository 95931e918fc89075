package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/checksum"
)

const hashPrefixLen = 12

// FS implements Provider backed by the local file system.
type FS struct {
	root      string // absolute path to the upload directory
	urlPrefix string // URL path the API serves root under, e.g. "/files/"
}

// NewFS creates a new FS provider rooted at the given directory, which is
// created if missing. urlPrefix is prepended to every issued URL.
func NewFS(root, urlPrefix string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &FS{root: abs, urlPrefix: urlPrefix}, nil
}

// safePath resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", apperr.ErrInvalid)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: absolute paths not allowed: %s", apperr.ErrInvalid, rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: path escapes storage root: %s", apperr.ErrInvalid, rel)
	}
	return abs, nil
}

// Upload writes data to <dir of path>/<sha256 prefix>-<sanitised base name>.
// Uploading identical bytes under the same name twice yields the same URL.
func (f *FS) Upload(data []byte, p string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", apperr.ErrUploadFailed)
	}
	dir, base := path.Split(filepath.ToSlash(p))
	name := checksum.Short(data, hashPrefixLen) + "-" + SanitizeName(base)
	rel := path.Join(strings.Trim(dir, "/"), name)
	if err := f.write(rel, data); err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrUploadFailed, err)
	}
	return f.urlPrefix + escapePath(rel), nil
}

// Read returns the raw bytes of a stored file.
func (f *FS) Read(p string) ([]byte, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", p, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return data, nil
}

// Delete removes a stored file. Deleting a missing file is not an error.
func (f *FS) Delete(p string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

// PathOf strips the URL prefix and unescapes the remainder.
func (f *FS) PathOf(u string) (string, bool) {
	if parsed, err := url.Parse(u); err == nil && parsed.IsAbs() {
		u = parsed.EscapedPath()
	}
	rest, ok := strings.CutPrefix(u, f.urlPrefix)
	if !ok || rest == "" {
		return "", false
	}
	p, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	if _, err := f.safePath(p); err != nil {
		return "", false
	}
	return p, true
}

// write atomically writes content: tmp file → fsync → rename.
func (f *FS) write(p string, content []byte) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fiche-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// SanitizeName keeps letters, digits, dot, dash and underscore of the base
// name and replaces everything else with an underscore.
func SanitizeName(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.TrimLeft(b.String(), ".")
	if s == "" {
		return "file"
	}
	return s
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

package seed

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the seed directory and re-applies
// changed files until ctx is cancelled. Removing a seed file never deletes
// its template: stored records still refer to it.
func (s *Seeder) Watch(ctx context.Context, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, s.dir); err != nil {
		return err
	}

	s.logger.Info("seed watcher: started", slog.String("root", s.dir))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("seed watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						s.logger.Warn("seed watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					s.applyDir(ctx, ev.Name, cb)
					continue
				}
			}

			if !IsSeedFile(ev.Name) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				s.applyFile(ctx, ev.Name, cb)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path; the new one arrives as Create.
				s.forget(ev.Name)
				s.logger.Info("seed watcher: file removed, template kept", slog.String("path", ev.Name))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("seed watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// applyDir applies seed files found in a newly created directory.
func (s *Seeder) applyDir(ctx context.Context, dir string, cb EventCallback) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !IsSeedFile(p) {
			return nil
		}
		s.applyFile(ctx, p, cb)
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/dmarkelov/notesync/internal/logging"
)

// DirStore is the production Store: a directory on the local
// filesystem, watched recursively with fsnotify.
type DirStore struct {
	fs     afero.Fs
	root   string
	logger logging.Logger

	ignoreMu sync.RWMutex
	ignore   []string

	watcher *fsnotify.Watcher
	events  chan Event
	done    chan struct{}
}

// NewDirStore opens (creating if needed) the directory at root and
// starts watching it and all its subdirectories.
func NewDirStore(root string, ignore []string, logger logging.Logger) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("error resolving root: %w", err)
	}
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("error creating root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}

	s := &DirStore{
		fs:      fs,
		root:    abs,
		ignore:  ignore,
		logger:  logger.With("component", "store"),
		watcher: watcher,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}

	if err := s.watchTree(abs); err != nil {
		watcher.Close()
		return nil, err
	}

	go s.loop()
	return s, nil
}

func (s *DirStore) Read(path string) ([]byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, s.abs(path))
}

func (s *DirStore) Write(path string, content []byte, mtime time.Time) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	full := s.abs(path)
	if dir := filepath.Dir(full); dir != s.root {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, full, content, 0o644); err != nil {
		return fmt.Errorf("error writing file: %w", err)
	}
	if err := s.fs.Chtimes(full, mtime, mtime); err != nil {
		return fmt.Errorf("error setting mtime: %w", err)
	}
	return nil
}

func (s *DirStore) Remove(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := s.fs.Remove(s.abs(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing file: %w", err)
	}
	return nil
}

func (s *DirStore) Stat(path string) (Entry, error) {
	if err := ValidatePath(path); err != nil {
		return Entry{}, err
	}
	info, err := s.fs.Stat(s.abs(path))
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: path, Mtime: info.ModTime(), Size: info.Size()}, nil
}

func (s *DirStore) List() ([]Entry, error) {
	var entries []Entry
	err := afero.Walk(s.fs, s.root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.root, name)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if s.ignored(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		entries = append(entries, Entry{Path: rel, Mtime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}
	return entries, nil
}

func (s *DirStore) Events() <-chan Event {
	return s.events
}

func (s *DirStore) Close() error {
	close(s.done)
	return s.watcher.Close()
}

// AddIgnore adds a glob pattern at runtime. It applies to future
// watcher events and scans; files already indexed are unaffected.
func (s *DirStore) AddIgnore(pattern string) {
	s.ignoreMu.Lock()
	s.ignore = append(s.ignore, pattern)
	s.ignoreMu.Unlock()
}

func (s *DirStore) ignored(rel string) bool {
	s.ignoreMu.RLock()
	defer s.ignoreMu.RUnlock()
	return Ignored(rel, s.ignore)
}

func (s *DirStore) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// watchTree registers the directory and every subdirectory with the
// watcher. fsnotify watches are not recursive.
func (s *DirStore) watchTree(dir string) error {
	return afero.Walk(s.fs, dir, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, name)
		if relErr == nil && rel != "." && s.ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(name); err != nil {
			return fmt.Errorf("error watching %s: %w", name, err)
		}
		return nil
	})
}

func (s *DirStore) loop() {
	ctx := context.Background()
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(ctx, "watcher error", "error", err)
		case <-s.done:
			return
		}
	}
}

func (s *DirStore) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(s.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)
	if s.ignored(rel) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := s.fs.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// New directory: watch it and report any files that landed
			// inside before the watch was in place.
			if err := s.watchTree(ev.Name); err != nil {
				s.logger.Warn(context.Background(), "watch failed", "path", rel, "error", err)
			}
			s.emitTree(ev.Name)
			return
		}
		s.emit(Event{Op: OpWrite, Path: rel})
	case ev.Op.Has(fsnotify.Write):
		s.emit(Event{Op: OpWrite, Path: rel})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		s.emit(Event{Op: OpRemove, Path: rel})
	}
}

func (s *DirStore) emitTree(dir string) {
	afero.Walk(s.fs, dir, func(name string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, name)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !s.ignored(rel) {
			s.emit(Event{Op: OpWrite, Path: rel})
		}
		return nil
	})
}

func (s *DirStore) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

var _ Store = (*DirStore)(nil)

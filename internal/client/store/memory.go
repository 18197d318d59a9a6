package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// MemStore is an in-memory Store used by engine tests. Every write and
// remove is surfaced as an event, the same shape DirStore produces via
// fsnotify.
type MemStore struct {
	mu     sync.Mutex
	fs     afero.Fs
	ignore []string

	events chan Event
	closed bool
}

func NewMemStore(ignore []string) *MemStore {
	return &MemStore{
		fs:     afero.NewMemMapFs(),
		ignore: ignore,
		events: make(chan Event, 256),
	}
}

func (s *MemStore) Read(path string) ([]byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, "/"+path)
}

func (s *MemStore) Write(path string, content []byte, mtime time.Time) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	full := "/" + path
	if dir := filepath.Dir(full); dir != "/" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := afero.WriteFile(s.fs, full, content, 0o644); err != nil {
		return err
	}
	if err := s.fs.Chtimes(full, mtime, mtime); err != nil {
		return err
	}
	s.emit(Event{Op: OpWrite, Path: path})
	return nil
}

func (s *MemStore) Remove(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Remove("/" + path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	s.emit(Event{Op: OpRemove, Path: path})
	return nil
}

func (s *MemStore) Stat(path string) (Entry, error) {
	if err := ValidatePath(path); err != nil {
		return Entry{}, err
	}
	info, err := s.fs.Stat("/" + path)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: path, Mtime: info.ModTime(), Size: info.Size()}, nil
}

// AddIgnore adds a glob pattern at runtime, mirroring DirStore.
func (s *MemStore) AddIgnore(pattern string) {
	s.mu.Lock()
	s.ignore = append(s.ignore, pattern)
	s.mu.Unlock()
}

func (s *MemStore) List() ([]Entry, error) {
	s.mu.Lock()
	ignore := make([]string, len(s.ignore))
	copy(ignore, s.ignore)
	s.mu.Unlock()

	var entries []Entry
	err := afero.Walk(s.fs, "/", func(name string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(name), "/")
		if Ignored(rel, ignore) {
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

func (s *MemStore) Events() <-chan Event {
	return s.events
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemStore) emit(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

var _ Store = (*MemStore)(nil)

// Package store abstracts the synchronized directory: reading, writing
// and enumerating files by their relative slash-separated paths, and
// reporting external changes as events.
package store

import (
	"time"
)

// Op classifies a change to a file in the synchronized directory.
type Op int

const (
	OpWrite Op = iota
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one observed change. Path is relative to the store root and
// always slash-separated.
type Event struct {
	Op   Op
	Path string
}

// Entry describes one existing file.
type Entry struct {
	Path  string
	Mtime time.Time
	Size  int64
}

// Store is the synchronized directory as the engine sees it. Paths are
// relative, slash-separated, and never escape the root. Implementations
// must be safe for concurrent use.
type Store interface {
	Read(path string) ([]byte, error)
	// Write creates parent directories as needed and sets the file's
	// mtime, so a remotely applied version keeps its original timestamp.
	Write(path string, content []byte, mtime time.Time) error
	Remove(path string) error
	Stat(path string) (Entry, error)
	List() ([]Entry, error)
	// Events emits changes made outside the engine (editors, file
	// managers). Writes performed through this Store also surface here;
	// the engine deduplicates by content hash.
	Events() <-chan Event
	Close() error
}

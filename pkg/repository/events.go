package repository

import (
	"sync"

	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/store"
)

// EventKind identifies what an Event reports.
type EventKind string

const (
	// EventProgress reports a streamed transfer snapshot
	EventProgress EventKind = "progress"

	EventDirectoryCreated EventKind = "directory.created"
	EventDirectoryDeleted EventKind = "directory.deleted"
	EventAssetCreated     EventKind = "asset.created"
	EventAssetUpdated     EventKind = "asset.updated"
	EventAssetInfoUpdated EventKind = "asset.info_updated"
	EventAssetDeleted     EventKind = "asset.deleted"
)

// Event is delivered to listeners after the subscriber gate passes.
type Event struct {
	Kind EventKind `json:"kind"`
	Path string    `json:"path"`

	// Info is the node's info at the time of the event. For a create that
	// is still transferring it is nil; for deletes it is the last known info.
	Info *store.Info `json:"info,omitempty"`

	// Progress is set for EventProgress only
	Progress *progress.Snapshot `json:"progress,omitempty"`

	CorrelationID string `json:"correlation_id"`
}

// Listener receives events. It runs on the goroutine of the operation that
// produced the event and must not block.
type Listener func(Event)

// listenerList is an ordered observer list owned by one Repository.
type listenerList struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []listenerEntry
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// add appends fn and returns a function that removes it.
func (l *listenerList) add(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listenerList) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

// notify calls every listener in registration order.
func (l *listenerList) notify(ev Event) {
	l.mu.RLock()
	entries := l.entries
	l.mu.RUnlock()

	for _, e := range entries {
		e.fn(ev)
	}
}

func (l *listenerList) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

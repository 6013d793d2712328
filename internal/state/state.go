// Package state is the scoped key/value store behind the state.* operation
// family. Values are scoped by (scope, key, windowId) so per-window state
// cannot leak across windows; workspace-level state uses an empty window id.
package state

import (
	"sync"

	"go.uber.org/zap"

	"uicp/internal/protocol"
)

// entryKey addresses one stored value.
type entryKey struct {
	Scope    string
	Key      string
	WindowID string
}

// Watcher observes changes to one state entry. Called synchronously from
// Set, after the value is stored.
type Watcher func(scope, key string, value any)

// Store is the in-memory state backend. Reads are concurrent; writes are
// serialized by the engine along with the rest of batch application.
type Store struct {
	mu       sync.RWMutex
	values   map[entryKey]any
	watchers map[entryKey][]Watcher
	logger   *zap.Logger
}

// NewStore creates an empty state store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		values:   make(map[entryKey]any),
		watchers: make(map[entryKey][]Watcher),
		logger:   logger,
	}
}

// Set stores a value and notifies watchers of the entry.
func (s *Store) Set(p protocol.StateSetParams) {
	k := entryKey{Scope: p.Scope, Key: p.Key, WindowID: p.WindowID}

	s.mu.Lock()
	s.values[k] = p.Value
	watchers := make([]Watcher, len(s.watchers[k]))
	copy(watchers, s.watchers[k])
	s.mu.Unlock()

	for _, w := range watchers {
		w(p.Scope, p.Key, p.Value)
	}
}

// Get returns the stored value and whether the entry exists.
func (s *Store) Get(p protocol.StateGetParams) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[entryKey{Scope: p.Scope, Key: p.Key, WindowID: p.WindowID}]
	return v, ok
}

// Watch registers a watcher for an entry and returns it immediately with
// the current value if one exists.
func (s *Store) Watch(p protocol.StateWatchParams, w Watcher) {
	k := entryKey{Scope: p.Scope, Key: p.Key, WindowID: p.WindowID}

	s.mu.Lock()
	s.watchers[k] = append(s.watchers[k], w)
	current, ok := s.values[k]
	s.mu.Unlock()

	if ok {
		w(p.Scope, p.Key, current)
	}
}

// Unwatch removes every watcher registered for an entry.
func (s *Store) Unwatch(p protocol.StateUnwatchParams) {
	k := entryKey{Scope: p.Scope, Key: p.Key, WindowID: p.WindowID}
	s.mu.Lock()
	delete(s.watchers, k)
	s.mu.Unlock()
}

// DropWindow removes all values and watchers belonging to a window.
// Called when the window closes.
func (s *Store) DropWindow(id protocol.WindowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.values {
		if k.WindowID == string(id) {
			delete(s.values, k)
		}
	}
	for k := range s.watchers {
		if k.WindowID == string(id) {
			delete(s.watchers, k)
		}
	}
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

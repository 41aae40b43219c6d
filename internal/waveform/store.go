package waveform

import (
	"bytes"
	"sync"
)

// ChannelState is everything kept per channel: the sliding buffer and the
// reusable render sink. buf is guarded by mu; frame by frameMu so a render
// storing its output never waits on ingest.
type ChannelState struct {
	mu  sync.Mutex
	buf *ChannelBuffer

	frameMu sync.Mutex
	frame   bytes.Buffer
}

// Store is the lookup abstraction for channel state. Implementations need not
// be safe for concurrent use; Manager guards every call.
type Store interface {
	GetChannel(key ChannelKey) (*ChannelState, bool)
	SetChannel(key ChannelKey, st *ChannelState)
	ListChannelKeys() []ChannelKey
	Len() int
}

// InMemoryStore is a map-backed Store.
type InMemoryStore struct {
	channels map[ChannelKey]*ChannelState
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		channels: make(map[ChannelKey]*ChannelState),
	}
}

// GetChannel implements Store.GetChannel.
func (s *InMemoryStore) GetChannel(key ChannelKey) (*ChannelState, bool) {
	st, ok := s.channels[key]
	return st, ok
}

// SetChannel implements Store.SetChannel.
func (s *InMemoryStore) SetChannel(key ChannelKey, st *ChannelState) {
	s.channels[key] = st
}

// ListChannelKeys implements Store.ListChannelKeys.
func (s *InMemoryStore) ListChannelKeys() []ChannelKey {
	keys := make([]ChannelKey, 0, len(s.channels))
	for k := range s.channels {
		keys = append(keys, k)
	}
	return keys
}

// Len implements Store.Len.
func (s *InMemoryStore) Len() int {
	return len(s.channels)
}

package waveform

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the retained history per channel when none is configured.
const DefaultWindow = time.Minute

// Manager owns the channel map. The map is guarded by mu; each channel's
// buffer has its own lock so appends on one channel never wait on another
// channel's render copy.
type Manager struct {
	mu     sync.RWMutex
	store  Store
	window time.Duration
	log    *slog.Logger
}

// NewManager returns a Manager retaining window of history per channel with a
// default in-memory store. If window <= 0, DefaultWindow is used.
func NewManager(window time.Duration, log *slog.Logger) *Manager {
	return NewManagerWithStore(NewInMemoryStore(), window, log)
}

// NewManagerWithStore constructs a Manager that uses the given Store.
func NewManagerWithStore(store Store, window time.Duration, log *slog.Logger) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:  store,
		window: window,
		log:    log.With("component", "buffer-manager"),
	}
}

// Window returns the retained duration per channel.
func (m *Manager) Window() time.Duration { return m.window }

// Append merges p into its channel's buffer, creating the channel (and its
// render sink) on first sight. Packets are validated here, once; malformed
// packets never create a channel or reach a buffer.
func (m *Manager) Append(p Packet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	key := p.Key()

	m.mu.RLock()
	st, ok := m.store.GetChannel(key)
	m.mu.RUnlock()
	if ok {
		return m.appendLocked(st, p)
	}

	m.mu.Lock()
	if st, ok = m.store.GetChannel(key); ok {
		m.mu.Unlock()
		return m.appendLocked(st, p)
	}
	buf := NewChannelBuffer(p, m.window)
	m.store.SetChannel(key, &ChannelState{buf: buf})
	m.mu.Unlock()

	m.log.Info("new channel", slog.String("channel", key.String()),
		slog.Float64("sample_rate", p.SampleRate),
		slog.Int("capacity", buf.Capacity()))
	return nil
}

func (m *Manager) appendLocked(st *ChannelState, p Packet) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.buf.Append(p); err != nil {
		return err
	}
	m.log.Debug("packet merged",
		slog.String("channel", st.buf.Key().String()),
		slog.Int("samples", len(p.Samples)),
		slog.Int("buffered", st.buf.Len()))
	return nil
}

// Snapshot returns a copy of the channel's current series.
func (m *Manager) Snapshot(key ChannelKey) (Snapshot, bool) {
	st, ok := m.channel(key)
	if !ok {
		return Snapshot{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.buf.Snapshot(), true
}

// Keys returns every channel that has accepted at least one packet, sorted by
// their dotted form.
func (m *Manager) Keys() []ChannelKey {
	m.mu.RLock()
	keys := m.store.ListChannelKeys()
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of known channels. Used for metrics.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Len()
}

func (m *Manager) channel(key ChannelKey) (*ChannelState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetChannel(key)
}

// Package connectivity tracks whether the backend is reachable and tells
// subscribers when that changes.
package connectivity

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounce collapses reachability flaps shorter than this window.
const DefaultDebounce = 1500 * time.Millisecond

// Monitor holds a debounced online flag. Raw reports go through Report; a
// change is committed only after it has held for the debounce window, and
// subscribers hear about each committed change exactly once.
type Monitor struct {
	debounce time.Duration
	logger   *zap.Logger

	// notifyMu orders commits so subscribers see changes in commit order.
	notifyMu sync.Mutex

	mu       sync.Mutex
	online   bool
	observed bool
	gen      uint64
	timer    *time.Timer
	closed   bool
	nextID   int
	subs     map[int]func(bool)
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(initial bool, debounce time.Duration, logger *zap.Logger) *Monitor {
	if debounce < 0 {
		debounce = 0
	}
	return &Monitor{
		debounce: debounce,
		logger:   logger,
		online:   initial,
		observed: initial,
		subs:     make(map[int]func(bool)),
	}
}

// IsOnline returns the committed (debounced) state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Report feeds a raw reachability observation.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	if m.closed || online == m.observed {
		m.mu.Unlock()
		return
	}
	m.observed = online
	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if m.debounce == 0 {
		m.mu.Unlock()
		m.commit(gen)
		return
	}
	m.timer = time.AfterFunc(m.debounce, func() { m.commit(gen) })
	m.mu.Unlock()
}

// commit applies the observation of generation gen if no newer report
// superseded it and it differs from the committed state.
func (m *Monitor) commit(gen uint64) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.closed || gen != m.gen || m.observed == m.online {
		m.mu.Unlock()
		return
	}
	m.online = m.observed
	online := m.online
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers fn for committed state changes and returns a function
// that removes it. Calls are serialized in commit order. fn must not block
// or call Report.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close stops pending notifications. Later reports are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

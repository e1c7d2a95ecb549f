package idle

import (
	"context"
	"sync"
	"time"
)

// Marker is the shared last-activity timestamp of one browser profile or
// session. Writes are last-writer-wins; every write is broadcast to watchers.
type Marker interface {
	Load(ctx context.Context) (at time.Time, ok bool, err error)
	Touch(ctx context.Context, at time.Time) error
	Clear(ctx context.Context) error
	// Watch calls fn for every write until stop is called or ctx ends.
	Watch(ctx context.Context, fn func(time.Time)) (stop func(), err error)
}

// Markers hands out the marker for a session id.
type Markers interface {
	For(sessionID string) Marker
}

// MemoryMarker is an in-process Marker. Watchers run synchronously in Touch.
type MemoryMarker struct {
	mu       sync.Mutex
	at       time.Time
	set      bool
	watchers map[int]func(time.Time)
	nextID   int
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{watchers: make(map[int]func(time.Time))}
}

func (m *MemoryMarker) Load(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.at, m.set, nil
}

func (m *MemoryMarker) Touch(_ context.Context, at time.Time) error {
	m.mu.Lock()
	m.at = at
	m.set = true
	fns := make([]func(time.Time), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(at)
	}
	return nil
}

func (m *MemoryMarker) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at = time.Time{}
	m.set = false
	return nil
}

func (m *MemoryMarker) Watch(ctx context.Context, fn func(time.Time)) (func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

// MemoryMarkers keeps one MemoryMarker per session in process memory.
type MemoryMarkers struct {
	mu      sync.Mutex
	markers map[string]*MemoryMarker
}

func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{markers: make(map[string]*MemoryMarker)}
}

func (m *MemoryMarkers) For(sessionID string) Marker {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.markers[sessionID]
	if !ok {
		mk = NewMemoryMarker()
		m.markers[sessionID] = mk
	}
	return mk
}

package idle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketplace-auth/internal/logger"
)

// Event is a user interaction reported to the monitor.
type Event string

const (
	EventPointerMove Event = "pointermove"
	EventKeyDown     Event = "keydown"
	EventScroll      Event = "scroll"
	EventTouchStart  Event = "touchstart"
	EventClick       Event = "click"
	EventWheel       Event = "wheel"
)

// Qualifies reports whether the event counts as user activity.
func (e Event) Qualifies() bool {
	switch e {
	case EventPointerMove, EventKeyDown, EventScroll, EventTouchStart, EventClick, EventWheel:
		return true
	}
	return false
}

// Hooks are the side effects of state transitions. Nil hooks are skipped.
type Hooks struct {
	OnWarn   func(remaining time.Duration) error
	OnActive func() error
	OnLogout func() error
}

// Reporter receives hook failures; the monitor never propagates them.
type Reporter interface {
	Report(err error, fields map[string]any)
}

type logReporter struct{}

func (logReporter) Report(err error, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["error"] = err.Error()
	logger.Error("idle monitor hook failed", fields)
}

type MonitorOption func(*Monitor)

func WithMonitorClock(c Clock) MonitorOption {
	return func(m *Monitor) { m.clock = c }
}

func WithReporter(r Reporter) MonitorOption {
	return func(m *Monitor) { m.reporter = r }
}

// Monitor is the warn-then-logout inactivity state machine for one tab.
// Every tab sharing a Marker recomputes its deadline from the newest
// timestamp it has seen, so activity in any tab keeps all of them alive.
type Monitor struct {
	policy   Policy
	marker   Marker
	hooks    Hooks
	clock    Clock
	reporter Reporter

	mu      sync.Mutex
	state   State
	last    time.Time
	running bool
	timer   Timer // pending warn or logout deadline
	gen     uint64
	unwatch func()
}

func NewMonitor(policy Policy, marker Marker, hooks Hooks, opts ...MonitorOption) (*Monitor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if marker == nil {
		marker = NewMemoryMarker()
	}

	m := &Monitor{
		policy:   policy,
		marker:   marker,
		hooks:    hooks,
		clock:    RealClock,
		reporter: logReporter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start arms the monitor from the shared marker, seeding it with now when
// empty, and subscribes to writes from other tabs. Calling Start on a
// running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	at, ok, err := m.marker.Load(ctx)
	if err != nil {
		m.reporter.Report(err, map[string]any{"op": "load"})
		ok = false
	}

	now := m.clock.Now()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.state = StateActive
	if ok {
		m.last = at
	} else {
		m.last = now
	}
	m.scheduleLocked(now)
	m.mu.Unlock()

	if !ok {
		if err := m.marker.Touch(ctx, now); err != nil {
			m.reporter.Report(err, map[string]any{"op": "touch"})
		}
	}

	stop, err := m.marker.Watch(ctx, m.observe)
	if err != nil {
		// Still works for this tab, just without cross-tab sync.
		m.reporter.Report(err, map[string]any{"op": "watch"})
		return nil
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		stop()
		return nil
	}
	m.unwatch = stop
	m.mu.Unlock()
	return nil
}

// Observe feeds a UI event; non-qualifying events are ignored.
func (m *Monitor) Observe(e Event) {
	if e.Qualifies() {
		m.Activity()
	}
}

// Activity records user activity in this tab and publishes it to the others.
func (m *Monitor) Activity() {
	now := m.clock.Now()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	wasWarned := m.state == StateWarned
	m.last = now
	m.state = StateActive
	m.scheduleLocked(now)
	m.mu.Unlock()

	if err := m.marker.Touch(context.Background(), now); err != nil {
		m.reporter.Report(err, map[string]any{"op": "touch"})
	}

	if wasWarned {
		m.runHook("active", m.hooks.OnActive)
	}
}

// StaySignedIn is the explicit answer to the warning.
func (m *Monitor) StaySignedIn() {
	m.Activity()
}

// SessionEnded tears the monitor down when the session ends elsewhere.
func (m *Monitor) SessionEnded() {
	m.Stop()
}

// Stop cancels pending deadlines and the marker subscription.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	m.state = StateActive
	m.cancelLocked()
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// observe handles a marker write, possibly from another tab.
func (m *Monitor) observe(at time.Time) {
	m.mu.Lock()
	if !m.running || !at.After(m.last) {
		m.mu.Unlock()
		return
	}
	wasWarned := m.state == StateWarned
	m.last = at
	m.state = StateActive
	m.scheduleLocked(m.clock.Now())
	m.mu.Unlock()

	if wasWarned {
		m.runHook("active", m.hooks.OnActive)
	}
}

func (m *Monitor) fire(gen uint64) {
	m.mu.Lock()
	if !m.running || gen != m.gen {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	elapsed := now.Sub(m.last)

	var action func()
	switch m.policy.StateAt(elapsed) {
	case StateLoggedOut:
		m.state = StateLoggedOut
		m.running = false
		m.cancelLocked()
		unwatch := m.unwatch
		m.unwatch = nil
		action = func() {
			if unwatch != nil {
				unwatch()
			}
			m.runHook("logout", m.hooks.OnLogout)
		}
	case StateWarned:
		if m.state == StateActive {
			m.state = StateWarned
			remaining := m.policy.Remaining(elapsed)
			if m.hooks.OnWarn != nil {
				action = func() {
					m.runHook("warn", func() error { return m.hooks.OnWarn(remaining) })
				}
			}
		}
		m.scheduleLocked(now)
	default:
		m.scheduleLocked(now)
	}
	m.mu.Unlock()

	if action != nil {
		action()
	}
}

// scheduleLocked replaces the pending deadline with the next one for the
// current state and last activity.
func (m *Monitor) scheduleLocked(now time.Time) {
	m.cancelLocked()

	deadline := m.last.Add(m.policy.WarnAfter())
	if m.state == StateWarned {
		deadline = m.last.Add(m.policy.IdleLimit)
	}

	delay := deadline.Sub(now)
	if delay < 0 {
		delay = 0
	}

	gen := m.gen
	m.timer = m.clock.AfterFunc(delay, func() { m.fire(gen) })
}

func (m *Monitor) cancelLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) runHook(name string, fn func() error) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.reporter.Report(fmt.Errorf("idle: %s hook panicked: %v", name, r), map[string]any{"hook": name})
		}
	}()
	if err := fn(); err != nil {
		m.reporter.Report(err, map[string]any{"hook": name})
	}
}

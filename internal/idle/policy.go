package idle

import (
	"errors"
	"time"
)

const (
	DefaultIdleLimit     = 3 * time.Minute
	DefaultWarningWindow = time.Minute
)

type State int

const (
	StateActive State = iota
	StateWarned
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateWarned:
		return "WARNED"
	case StateLoggedOut:
		return "LOGGED_OUT"
	default:
		return "ACTIVE"
	}
}

// Policy holds the idle limit and the warning window that precedes it.
type Policy struct {
	IdleLimit     time.Duration
	WarningWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{IdleLimit: DefaultIdleLimit, WarningWindow: DefaultWarningWindow}
}

func (p Policy) Validate() error {
	if p.IdleLimit <= 0 || p.WarningWindow <= 0 {
		return errors.New("idle: limit and warning window must be positive")
	}
	if p.WarningWindow >= p.IdleLimit {
		return errors.New("idle: warning window must be shorter than the idle limit")
	}
	return nil
}

// WarnAfter is the inactivity after which the warning is shown.
func (p Policy) WarnAfter() time.Duration {
	return p.IdleLimit - p.WarningWindow
}

// StateAt returns the state implied by elapsed inactivity.
func (p Policy) StateAt(elapsed time.Duration) State {
	switch {
	case elapsed >= p.IdleLimit:
		return StateLoggedOut
	case elapsed >= p.WarnAfter():
		return StateWarned
	default:
		return StateActive
	}
}

// Remaining is the idle budget left before logout, never negative.
func (p Policy) Remaining(elapsed time.Duration) time.Duration {
	if r := p.IdleLimit - elapsed; r > 0 {
		return r
	}
	return 0
}

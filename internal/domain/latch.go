package domain

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// LatchState is the banner state tracked by AlertLatch.
type LatchState int

const (
	LatchHidden LatchState = iota
	LatchShown
	LatchDismissed
)

func (s LatchState) String() string {
	switch s {
	case LatchHidden:
		return "hidden"
	case LatchShown:
		return "shown"
	case LatchDismissed:
		return "dismissed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON responses.
func (s LatchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DismissalScope controls how long a dismissal suppresses the banner.
type DismissalScope int

const (
	// ScopeEpisode clears a dismissal when alert_active goes false or the
	// connection drops, including a drop that is reconnected.
	ScopeEpisode DismissalScope = iota
	// ScopeSession keeps a dismissal for the lifetime of the latch.
	ScopeSession
)

func (s DismissalScope) String() string {
	if s == ScopeSession {
		return "session"
	}
	return "episode"
}

// ParseDismissalScope accepts "episode" or "session".
func ParseDismissalScope(s string) (DismissalScope, error) {
	switch s {
	case "episode":
		return ScopeEpisode, nil
	case "session":
		return ScopeSession, nil
	default:
		return ScopeEpisode, fmt.Errorf("unknown dismissal scope %q", s)
	}
}

// AlertLatch decides whether the alert banner is shown. It follows the
// upstream alert_active flag, not the classifier; the two stay independent.
//
// AlertLatch is not safe for concurrent use. Owners serialize access.
type AlertLatch struct {
	clock     clockwork.Clock
	scope     DismissalScope
	state     LatchState
	dismissed bool
	hasSample bool

	lastLevel          AlertLevel
	lastDismissedLevel *AlertLevel
	dismissedAt        time.Time
}

// NewAlertLatch returns a hidden latch with the given dismissal scope. The
// clock stamps dismissals; nil uses real time.
func NewAlertLatch(scope DismissalScope, clock clockwork.Clock) *AlertLatch {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AlertLatch{clock: clock, scope: scope}
}

// OnSample advances the latch for a newly accepted sample and its classified level.
func (l *AlertLatch) OnSample(s TelemetrySample, level AlertLevel) LatchState {
	l.hasSample = true
	l.lastLevel = level

	if !s.AlertActive {
		l.state = LatchHidden
		if l.scope == ScopeEpisode {
			l.dismissed = false
		}
		return l.state
	}

	if l.dismissed {
		l.state = LatchDismissed
	} else {
		l.state = LatchShown
	}
	return l.state
}

// OnStatus reacts to connection status changes. In episode scope any drop
// ends the episode (Reconnecting, Disconnected or Failed), so the next active
// sample shows again even after a successful reconnect.
func (l *AlertLatch) OnStatus(status ConnectionStatus) LatchState {
	if l.scope != ScopeEpisode {
		return l.state
	}
	switch status {
	case StatusReconnecting, StatusDisconnected, StatusFailed:
		l.dismissed = false
		if l.state == LatchDismissed {
			l.state = LatchHidden
		}
	}
	return l.state
}

// Dismiss suppresses the banner for the current alert. It is a no-op
// returning false unless the banner is shown.
func (l *AlertLatch) Dismiss() bool {
	if l.state != LatchShown {
		return false
	}
	l.state = LatchDismissed
	l.dismissed = true
	level := l.lastLevel
	l.lastDismissedLevel = &level
	l.dismissedAt = l.clock.Now()
	return true
}

// State returns the current latch state.
func (l *AlertLatch) State() LatchState { return l.state }

// Scope returns the configured dismissal scope.
func (l *AlertLatch) Scope() DismissalScope { return l.scope }

// Visible reports whether the banner should be rendered under the given
// connection status. A latch that has never seen a sample is never visible.
func (l *AlertLatch) Visible(status ConnectionStatus) bool {
	return l.state == LatchShown && l.hasSample && status.Live()
}

// LastDismissedLevel returns the classified level at the most recent
// dismissal, and false if the banner was never dismissed.
func (l *AlertLatch) LastDismissedLevel() (AlertLevel, bool) {
	if l.lastDismissedLevel == nil {
		return LevelSafe, false
	}
	return *l.lastDismissedLevel, true
}

// DismissedAt returns when the banner was last dismissed, or the zero time.
func (l *AlertLatch) DismissedAt() time.Time { return l.dismissedAt }

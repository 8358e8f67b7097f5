// Package store holds the latest telemetry sample and connection status.
package store

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Sample     *domain.TelemetrySample
	ReceivedAt time.Time
	Status     domain.ConnectionStatus
}

// Store keeps only the most recent valid sample. A single writer updates it
// while any number of readers take snapshots.
type Store struct {
	clock clockwork.Clock

	mu         sync.RWMutex
	sample     *domain.TelemetrySample
	receivedAt time.Time
	status     domain.ConnectionStatus
}

// New returns an empty store. A nil clock uses real time.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{clock: clock, status: domain.StatusDisconnected}
}

// Update validates s and, if valid, replaces the stored sample and stamps the
// receipt time. An invalid sample leaves the store untouched.
func (st *Store) Update(s domain.TelemetrySample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sample = &s
	st.receivedAt = st.clock.Now()
	return nil
}

// SetStatus records the latest connection status.
func (st *Store) SetStatus(status domain.ConnectionStatus) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status = status
}

// Current returns the stored sample, nil before the first valid one, and the
// connection status.
func (st *Store) Current() (*domain.TelemetrySample, domain.ConnectionStatus) {
	snap := st.Snapshot()
	return snap.Sample, snap.Status
}

// Snapshot returns a copy that later updates do not affect.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	snap := Snapshot{ReceivedAt: st.receivedAt, Status: st.status}
	if st.sample != nil {
		s := *st.sample
		snap.Sample = &s
	}
	return snap
}

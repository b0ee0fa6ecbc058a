// Package mailsync drives the recurring, overlap-safe mailbox
// synchronization loop and projects per-folder thread counts for the UI.
package mailsync

import (
	"sync"
	"time"
)

// State tracks per-account sync progress. It is shared between
// schedulers, manual triggers, and projectors so all of them observe
// the same Idle/Syncing flag. At most one sync is in flight per account.
type State struct {
	mu       sync.Mutex
	syncing  map[int64]bool
	lastSync map[int64]time.Time
}

// NewState constructs an empty sync state registry.
func NewState() *State {
	return &State{
		syncing:  make(map[int64]bool),
		lastSync: make(map[int64]time.Time),
	}
}

// TryBegin transitions the account Idle -> Syncing. It reports false
// when a sync is already in flight; callers must drop the attempt, not
// queue it.
func (s *State) TryBegin(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing[accountID] {
		return false
	}
	s.syncing[accountID] = true
	return true
}

// End transitions the account back to Idle. Called on both success and
// failure paths; success records the completion time.
func (s *State) End(accountID int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.syncing, accountID)
	if ok {
		s.lastSync[accountID] = time.Now()
	}
}

// IsSyncing reports whether a sync is in flight for the account.
func (s *State) IsSyncing(accountID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing[accountID]
}

// LastSync returns the completion time of the account's last successful
// sync, zero if none.
func (s *State) LastSync(accountID int64) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync[accountID]
}

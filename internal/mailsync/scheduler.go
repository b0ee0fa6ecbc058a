package mailsync

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Syncer triggers a provider-side synchronization for one account.
// Implemented by service.MailService.
type Syncer interface {
	SyncEmails(ctx context.Context, accountID int64) error
}

// Invalidator receives cache-invalidation signals keyed by account.
// Implemented by Projector.
type Invalidator interface {
	Invalidate(accountID int64)
}

// InvalidateFunc adapts a function to the Invalidator interface.
type InvalidateFunc func(accountID int64)

// Invalidate calls f.
func (f InvalidateFunc) Invalidate(accountID int64) { f(accountID) }

// Scheduler runs the recurring sync loop for one selected account.
// Transitions are Idle -> Syncing -> Idle; a tick arriving while
// Syncing is dropped, never deferred. On successful completion exactly
// one invalidation is emitted so dependent count reads refresh.
type Scheduler struct {
	syncer     Syncer
	state      *State
	invalidate Invalidator
	interval   time.Duration
	log        *zap.Logger

	trigger chan struct{}
}

// NewScheduler constructs a scheduler. interval <= 0 falls back to 30s.
func NewScheduler(syncer Syncer, state *State, inval Invalidator, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		syncer:     syncer,
		state:      state,
		invalidate: inval,
		interval:   interval,
		log:        log,
		trigger:    make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate sync outside the timer. The request
// is dropped when one is already pending; the in-flight guard in
// syncOnce drops it again if a sync is running when it fires.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run executes the sync loop for accountID until ctx is canceled. An
// initial sync fires immediately on start. Failures are logged and the
// next tick stays eligible; they never halt the loop.
func (s *Scheduler) Run(ctx context.Context, accountID int64) {
	if accountID == 0 {
		s.log.Warn("scheduler dormant: no account selected")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.syncOnce(ctx, accountID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx, accountID)
		case <-s.trigger:
			s.syncOnce(ctx, accountID)
		}
	}
}

// syncOnce performs a single guarded sync attempt. The Idle/Syncing
// flag is cleared on every path; invalidation fires only after success,
// and never after the session context is gone (stale-callback guard).
func (s *Scheduler) syncOnce(ctx context.Context, accountID int64) {
	if !s.state.TryBegin(accountID) {
		s.log.Debug("sync already in flight, tick dropped", zap.Int64("accountID", accountID))
		return
	}

	err := s.syncer.SyncEmails(ctx, accountID)
	s.state.End(accountID, err == nil)

	if ctx.Err() != nil {
		// session tore down while the sync was in flight
		return
	}
	if err != nil {
		s.log.Warn("sync failed", zap.Int64("accountID", accountID), zap.Error(err))
		return
	}

	s.log.Debug("sync completed", zap.Int64("accountID", accountID))
	if s.invalidate != nil {
		s.invalidate.Invalidate(accountID)
	}
}

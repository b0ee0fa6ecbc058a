package mailsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/model"
)

// SessionConfig carries one UI session's selection and timing knobs.
// The selection is explicit constructor input; there is no ambient
// selected-account state.
type SessionConfig struct {
	AccountID    int64
	Tab          model.Folder
	SyncInterval time.Duration
	CountRefresh time.Duration
}

// Session bundles the scheduler and projector goroutines for one
// selected account. Stopping the session cancels both; an in-flight
// sync completion after Stop cannot mutate session state.
type Session struct {
	AccountID int64
	Tab       model.Folder
	Scheduler *Scheduler
	Projector *Projector

	cancel context.CancelFunc
	done   chan struct{}
}

// StartSession spins up the sync loop and count refresher for one
// selection. state is shared across sessions so per-account
// self-exclusion holds even when two sessions select the same account.
func StartSession(ctx context.Context, syncer Syncer, reader CountReader, state *State, cfg SessionConfig, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)

	projector := NewProjector(reader, state, cfg.AccountID, cfg.Tab, cfg.CountRefresh, log)
	scheduler := NewScheduler(syncer, state, projector, cfg.SyncInterval, log)

	sess := &Session{
		AccountID: cfg.AccountID,
		Tab:       cfg.Tab,
		Scheduler: scheduler,
		Projector: projector,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(sess.done)
		go projector.Run(ctx)
		scheduler.Run(ctx, cfg.AccountID)
	}()

	return sess
}

// Stop tears the session down and stops its timers. Safe to call more
// than once.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

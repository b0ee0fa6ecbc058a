package mailsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/model"
)

// CountState qualifies a projected folder count.
type CountState int

const (
	// CountLoading means no fresh value is available yet.
	CountLoading CountState = iota
	// CountSyncing means a sync is in flight; the numeric value is
	// withheld rather than shown possibly stale.
	CountSyncing
	// CountReady means the count is fresh and displayable.
	CountReady
)

// CountReader reads thread counts from the store. Implemented by
// service.MailService.
type CountReader interface {
	GetNumThreads(ctx context.Context, accountID int64, tab model.Folder) (int, error)
}

// SyncStatus reports whether an account is currently syncing.
// Implemented by *State.
type SyncStatus interface {
	IsSyncing(accountID int64) bool
}

// Projector keeps per-folder thread counts fresh for one selected
// (account, tab) pair. The selection is fixed at construction, session
// scoped; with an empty selection the projector stays dormant and
// issues no queries at all.
type Projector struct {
	reader  CountReader
	status  SyncStatus
	refresh time.Duration
	log     *zap.Logger

	accountID int64
	tab       model.Folder

	mu     sync.Mutex
	counts map[model.Folder]int
}

// NewProjector constructs a projector for one selection.
// refresh <= 0 falls back to 5s.
func NewProjector(reader CountReader, status SyncStatus, accountID int64, tab model.Folder, refresh time.Duration, log *zap.Logger) *Projector {
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	return &Projector{
		reader:    reader,
		status:    status,
		refresh:   refresh,
		log:       log,
		accountID: accountID,
		tab:       tab,
		counts:    make(map[model.Folder]int),
	}
}

// Dormant reports whether the selection is incomplete. A dormant
// projector never queries the store.
func (p *Projector) Dormant() bool {
	return p.accountID == 0 || !p.tab.Valid()
}

// Run refreshes counts on a fixed interval until ctx is canceled.
// Dormant projectors return immediately without issuing queries.
func (p *Projector) Run(ctx context.Context) {
	if p.Dormant() {
		p.log.Debug("projector dormant: selection incomplete")
		return
	}

	p.refreshOnce(ctx)

	ticker := time.NewTicker(p.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshOnce(ctx)
		}
	}
}

// Count returns the projected count for one folder. While a sync is in
// flight for the account every folder reports CountSyncing; after an
// invalidation the value is CountLoading until the next refresh lands.
func (p *Projector) Count(folder model.Folder) (int, CountState) {
	if p.Dormant() {
		return 0, CountLoading
	}
	if p.status.IsSyncing(p.accountID) {
		return 0, CountSyncing
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.counts[folder]
	if !ok {
		return 0, CountLoading
	}
	return n, CountReady
}

// Invalidate drops cached counts for the account so the next read is
// Loading rather than a stale number presented as fresh.
func (p *Projector) Invalidate(accountID int64) {
	if accountID != p.accountID {
		return
	}
	p.mu.Lock()
	p.counts = make(map[model.Folder]int)
	p.mu.Unlock()
}

// RefreshNow forces one refresh pass outside the timer.
func (p *Projector) RefreshNow(ctx context.Context) {
	if p.Dormant() {
		return
	}
	p.refreshOnce(ctx)
}

func (p *Projector) refreshOnce(ctx context.Context) {
	fresh := make(map[model.Folder]int, len(model.Folders))
	for _, folder := range model.Folders {
		n, err := p.reader.GetNumThreads(ctx, p.accountID, folder)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("count refresh failed",
				zap.Int64("accountID", p.accountID),
				zap.String("folder", string(folder)),
				zap.Error(err),
			)
			return
		}
		fresh[folder] = n
	}

	p.mu.Lock()
	p.counts = fresh
	p.mu.Unlock()
}

// Package httpserver exposes the web mail HTTP/JSON API.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avolkov87/mailhub/internal/errs"
	"github.com/avolkov87/mailhub/internal/mailsync"
	"github.com/avolkov87/mailhub/internal/model"
	"github.com/avolkov87/mailhub/internal/repository"
	"github.com/avolkov87/mailhub/internal/service"
)

// Server wires services into HTTP handlers and owns per-user sync
// sessions.
type Server struct {
	links    service.LinkService
	mail     service.MailService
	accounts repository.AccountRepository
	state    *mailsync.State
	log      *zap.Logger

	syncInterval time.Duration
	countRefresh time.Duration

	// baseCtx parents all session contexts so server shutdown tears
	// every session down.
	baseCtx context.Context

	mu       sync.Mutex
	sessions map[string]*mailsync.Session
}

// New constructs the HTTP server with injected services.
func New(
	ctx context.Context,
	links service.LinkService,
	mail service.MailService,
	accounts repository.AccountRepository,
	state *mailsync.State,
	syncInterval, countRefresh time.Duration,
	log *zap.Logger,
) *Server {
	return &Server{
		links:        links,
		mail:         mail,
		accounts:     accounts,
		state:        state,
		log:          log,
		syncInterval: syncInterval,
		countRefresh: countRefresh,
		baseCtx:      ctx,
		sessions:     make(map[string]*mailsync.Session),
	}
}

// Handler builds the route table with middleware applied.
func (s *Server) Handler(verifier SessionVerifier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	authed := Auth(verifier)
	mux.Handle("GET /api/auth/authorize-url", authed(http.HandlerFunc(s.handleAuthorizeURL)))
	mux.Handle("GET /api/callback", authed(http.HandlerFunc(s.handleCallback)))
	mux.Handle("POST /api/session", authed(http.HandlerFunc(s.handleStartSession)))
	mux.Handle("DELETE /api/session", authed(http.HandlerFunc(s.handleStopSession)))
	mux.Handle("GET /api/threads/count", authed(http.HandlerFunc(s.handleThreadCount)))
	mux.Handle("POST /api/sync", authed(http.HandlerFunc(s.handleSync)))
	mux.Handle("GET /api/messages/{id}", authed(http.HandlerFunc(s.handleMessage)))

	var h http.Handler = mux
	h = Logging(s.log)(h)
	h = Recover(s.log)(h)
	return h
}

// Shutdown stops all running sessions.
func (s *Server) Shutdown() {
	s.mu.Lock()
	sessions := make([]*mailsync.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*mailsync.Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}

func (s *Server) handleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	serviceType := r.URL.Query().Get("serviceType")
	if serviceType != "Google" && serviceType != "Office365" {
		http.Error(w, "unknown serviceType", http.StatusBadRequest)
		return
	}

	u, err := s.links.AuthorizeURL(r.Context(), userID, serviceType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	acc, err := s.links.LinkAccount(r.Context(), userID, code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": acc.ID,
		"email":     acc.EmailAddress,
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		AccountID int64        `json:"accountId"`
		Tab       model.Folder `json:"tab"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.AccountID == 0 || !req.Tab.Valid() {
		http.Error(w, "accountId and tab are required", http.StatusBadRequest)
		return
	}
	if _, err := service.GetOwnedAccount(r.Context(), s.accounts, userID, req.AccountID); err != nil {
		s.writeError(w, err)
		return
	}

	sess := mailsync.StartSession(s.baseCtx, s.mail, s.mail, s.state, mailsync.SessionConfig{
		AccountID:    req.AccountID,
		Tab:          req.Tab,
		SyncInterval: s.syncInterval,
		CountRefresh: s.countRefresh,
	}, s.log)

	s.mu.Lock()
	prev := s.sessions[userID]
	s.sessions[userID] = sess
	s.mu.Unlock()
	if prev != nil {
		// switching accounts stops the old timer before the new one reports
		prev.Stop()
	}

	writeJSON(w, http.StatusOK, map[string]any{"accountId": req.AccountID, "tab": req.Tab})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	s.mu.Lock()
	sess := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) session(userID string) *mailsync.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

func (s *Server) handleThreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	accountID, err := strconv.ParseInt(r.URL.Query().Get("accountId"), 10, 64)
	if err != nil || accountID == 0 {
		http.Error(w, "bad accountId", http.StatusBadRequest)
		return
	}
	tab := model.Folder(r.URL.Query().Get("tab"))
	if !tab.Valid() {
		http.Error(w, "bad tab", http.StatusBadRequest)
		return
	}
	if _, err := service.GetOwnedAccount(r.Context(), s.accounts, userID, accountID); err != nil {
		s.writeError(w, err)
		return
	}

	// prefer the session projector for its freshness guarantees
	if sess := s.session(userID); sess != nil && sess.AccountID == accountID {
		n, st := sess.Projector.Count(tab)
		switch st {
		case mailsync.CountSyncing:
			writeJSON(w, http.StatusOK, map[string]any{"state": "syncing"})
		case mailsync.CountLoading:
			writeJSON(w, http.StatusOK, map[string]any{"state": "loading"})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"state": "ready", "count": n})
		}
		return
	}

	n, err := s.mail.GetNumThreads(r.Context(), accountID, tab)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": "ready", "count": n})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		AccountID int64 `json:"accountId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if _, err := service.GetOwnedAccount(r.Context(), s.accounts, userID, req.AccountID); err != nil {
		s.writeError(w, err)
		return
	}

	if sess := s.session(userID); sess != nil && sess.AccountID == req.AccountID {
		sess.Scheduler.TriggerNow()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	// no session: run one guarded sync inline
	if !s.state.TryBegin(req.AccountID) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "in progress", "detail": errs.ErrSyncInProgress.Error()})
		return
	}
	err := s.mail.SyncEmails(r.Context(), req.AccountID)
	s.state.End(req.AccountID, err == nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "synced"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())
	messageID := r.PathValue("id")
	accountID, err := strconv.ParseInt(r.URL.Query().Get("accountId"), 10, 64)
	if err != nil || accountID == 0 {
		http.Error(w, "bad accountId", http.StatusBadRequest)
		return
	}
	if _, err := service.GetOwnedAccount(r.Context(), s.accounts, userID, accountID); err != nil {
		s.writeError(w, err)
		return
	}

	raw, err := s.mail.GetMessage(r.Context(), accountID, messageID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// writeError maps sentinel errors to HTTP statuses with human-readable
// reasons.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrAuthRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	case errors.Is(err, errs.ErrQuotaExceeded):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": "you have reached the maximum number of accounts for your subscription",
		})
	case errors.Is(err, errs.ErrMissingPrimaryEmail):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "no primary email found for user"})
	case errors.Is(err, errs.ErrExchangeFailed):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "account linking failed, please try again"})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

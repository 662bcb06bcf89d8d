package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"opsdesk/api/internal/archive"
	"opsdesk/api/internal/auth"
	"opsdesk/api/internal/config"
	"opsdesk/api/internal/export"
	"opsdesk/api/internal/identity"
	"opsdesk/api/internal/knowledge"
	"opsdesk/api/internal/localcache"
	"opsdesk/api/internal/notify"
	"opsdesk/api/internal/rbac"
	"opsdesk/api/internal/search"
	"opsdesk/api/internal/store"
	"opsdesk/api/internal/util"
)

const (
	feedLimit = 50
	// revokedKey marks signed-out token ids in the local cache.
	revokedKey = "revoked_session"
)

// Deps are the collaborators built by the composition root. Search, Archive
// and Summarizer are optional.
type Deps struct {
	Backend    store.Backend
	Cache      localcache.Cache
	Mirror     *store.Mirror
	Search     *search.Service
	Archive    *archive.Service
	Exporter   *export.Service
	Summarizer knowledge.Summarizer
	Logger     zerolog.Logger
}

// Session is one signed-in client: its active profile, the policy derived
// from it and its own document workflow.
type Session struct {
	ID        string
	Holder    *identity.Holder
	Policy    rbac.Policy
	Workflow  *knowledge.Workflow
	Feed      *notify.Feed
	ExpiresAt time.Time
}

func (s *Session) Profile() store.Profile {
	profile, _ := s.Holder.ActiveProfile()
	return profile
}

type Service struct {
	cfg      config.Config
	deps     Deps
	auth     *identity.Authenticator
	log      zerolog.Logger
	now      func() time.Time
	mu       sync.Mutex
	sessions map[string]*Session
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.Mirror == nil && deps.Cache != nil {
		deps.Mirror = store.NewMirror(deps.Cache)
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewService()
	}
	return &Service{
		cfg:      cfg,
		deps:     deps,
		auth:     identity.NewAuthenticator(deps.Backend),
		log:      deps.Logger.With().Str("component", "app").Logger(),
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.deps.Backend.Ping(ctx)
}

// PingCache checks the cache when it is backed by a server. In-process and
// file caches report remote as false.
func (s *Service) PingCache(ctx context.Context) (remote bool, err error) {
	pinger, ok := s.deps.Cache.(localcache.Pinger)
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

func (s *Service) Mode() store.Mode {
	return s.deps.Backend.Mode()
}

// SearchIndexHealthy reports false when no index is configured.
func (s *Service) SearchIndexHealthy() (configured, healthy bool) {
	if s.deps.Search == nil {
		return false, false
	}
	return true, s.deps.Search.IndexHealthy()
}

// Login checks the credentials, opens a session and loads its documents.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email and password are required", nil)
	}
	profile, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  profile.ID,
		Name: profile.DisplayName,
		Role: profile.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return "", nil, err
	}

	session := s.newSession(jti, expiresAt)
	if err := session.Holder.Set(ctx, profile); err != nil {
		s.log.Warn().Err(err).Str("session_id", jti).Msg("cache active profile")
	}
	session.Workflow.LoadDocuments(ctx)

	s.mu.Lock()
	s.pruneLocked(now)
	s.sessions[jti] = session
	s.mu.Unlock()

	s.log.Info().Str("profile_id", profile.ID).Str("session_id", jti).Msg("signed in")
	return token, session, nil
}

// SessionFromToken resolves a bearer token. Sessions lost on restart are
// rebuilt from the cached profile and then refreshed from the backend.
func (s *Service) SessionFromToken(ctx context.Context, token string) (*Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return nil, err
	}

	if s.revoked(ctx, claims.JTI) {
		return nil, auth.ErrInvalidToken
	}

	s.mu.Lock()
	session, ok := s.sessions[claims.JTI]
	s.mu.Unlock()
	if ok {
		return session, nil
	}

	session = s.newSession(claims.JTI, time.Unix(claims.Exp, 0))
	restored := session.Holder.Restore(ctx)
	if restored && session.Profile().ID != claims.Sub {
		restored = false
	}

	profile, err := s.deps.Backend.GetProfile(ctx, claims.Sub)
	switch {
	case err == nil:
		if !profile.Active {
			_ = session.Holder.Clear(ctx)
			return nil, identity.ErrInactiveProfile
		}
		if err := session.Holder.Set(ctx, profile); err != nil {
			s.log.Warn().Err(err).Str("session_id", claims.JTI).Msg("cache active profile")
		}
	case errors.Is(err, store.ErrNotFound):
		_ = session.Holder.Clear(ctx)
		return nil, auth.ErrInvalidToken
	case !restored:
		return nil, err
	default:
		s.log.Warn().Err(err).Str("session_id", claims.JTI).Msg("refresh profile, using cached copy")
	}
	session.Workflow.LoadDocuments(ctx)

	s.mu.Lock()
	if existing, ok := s.sessions[claims.JTI]; ok {
		session = existing
	} else {
		s.sessions[claims.JTI] = session
	}
	s.mu.Unlock()
	return session, nil
}

// Logout clears the session's profile and drops its state.
func (s *Service) Logout(ctx context.Context, session *Session) {
	if session == nil {
		return
	}
	if err := session.Holder.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("clear cached profile")
	}
	session.Workflow.Reset()
	s.mu.Lock()
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	// The marker only has to outlive the token it revokes.
	ttl := session.ExpiresAt.Sub(s.now())
	if s.deps.Cache != nil && ttl > 0 {
		err := localcache.SetWithTTL(ctx, s.deps.Cache, revokedKey+":"+session.ID, session.ExpiresAt.UTC().Format(time.RFC3339), ttl)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("record revoked session")
		}
	}
}

func (s *Service) revoked(ctx context.Context, jti string) bool {
	if s.deps.Cache == nil {
		return false
	}
	_, err := s.deps.Cache.Get(ctx, revokedKey+":"+jti)
	return err == nil
}

func (s *Service) newSession(id string, expiresAt time.Time) *Session {
	holder := identity.NewHolder(s.deps.Cache, id)
	feed := notify.NewFeed(feedLimit)
	opts := knowledge.Options{
		Backend:  s.deps.Backend,
		Mirror:   s.deps.Mirror,
		Actor:    holder,
		Notifier: notify.Multi{feed, notify.NewLogSink(s.deps.Logger)},
		Logger:   s.deps.Logger.With().Str("session_id", id).Logger(),
		Timeout:  s.cfg.RequestTimeout,
	}
	if s.deps.Search != nil {
		opts.Searcher = s.deps.Search
		opts.Indexer = s.deps.Search
	}
	if s.deps.Archive != nil {
		opts.Archiver = s.deps.Archive
	}
	if s.deps.Summarizer != nil {
		opts.Summarizer = s.deps.Summarizer
	}
	return &Session{
		ID:        id,
		Holder:    holder,
		Policy:    rbac.NewPolicy(holder),
		Workflow:  knowledge.New(opts),
		Feed:      feed,
		ExpiresAt: expiresAt,
	}
}

func (s *Service) pruneLocked(now time.Time) {
	for id, session := range s.sessions {
		if !session.ExpiresAt.IsZero() && now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

// LookupDocument reads a document without counting a view.
func (s *Service) LookupDocument(ctx context.Context, id string) (store.Document, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.deps.Backend.GetDocument(ctx, id)
}

func (s *Service) Export(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	doc, err := s.LookupDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.deps.Exporter.Export(ctx, doc, format)
}

// History lists archived commits of a document, empty when archiving is off.
func (s *Service) History(id string, limit int) ([]archive.Commit, error) {
	if s.deps.Archive == nil {
		return []archive.Commit{}, nil
	}
	return s.deps.Archive.History(id, limit)
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// HistoryContent returns the archived markdown of a document at a commit.
func (s *Service) HistoryContent(id, hash string) (string, error) {
	if s.deps.Archive == nil {
		return "", errNotFound
	}
	content, err := s.deps.Archive.ContentAt(id, hash)
	if err != nil {
		s.log.Debug().Err(err).Str("document_id", id).Str("hash", hash).Msg("read archived content")
		return "", errNotFound
	}
	return content, nil
}

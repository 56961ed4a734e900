package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type AuthProvider interface {
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Session, error)
	SignOut(ctx context.Context, token string) error
	UpdateUserMetadata(ctx context.Context, token string, metadata map[string]string) (*domain.User, error)
}

type ProfileStore interface {
	Get(ctx context.Context, id string) (*domain.Profile, error)
	Create(ctx context.Context, profile *domain.Profile) error
	Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error)
}

// AuthResult is what Login and Register report back. Token and Profile are
// set only on success.
type AuthResult struct {
	domain.Result
	Token   string          `json:"access_token,omitempty"`
	Profile *domain.Profile `json:"user,omitempty"`
}

type ProfileResult struct {
	domain.Result
	Profile *domain.Profile `json:"user,omitempty"`
}

const defaultCacheTTL = time.Minute

type entry struct {
	userID    string
	profile   *domain.Profile
	expiresAt time.Time
	cachedAt  time.Time
}

type Option func(*Holder)

// WithCacheTTL bounds how long a resolved identity is reused before the
// session and profile are read again, so role changes made elsewhere take
// effect without a session event.
func WithCacheTTL(ttl time.Duration) Option {
	return func(h *Holder) {
		h.cacheTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Holder) {
		h.now = now
	}
}

// Holder mirrors the auth backend's sessions and keeps the resolved identity
// for every live token. Session-change notifications keep it current.
type Holder struct {
	auth     AuthProvider
	profiles ProfileStore
	logger   *slog.Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	tokens  map[string]map[string]struct{}
}

func NewHolder(auth AuthProvider, profiles ProfileStore, logger *slog.Logger, opts ...Option) *Holder {
	h := &Holder{
		auth:     auth,
		profiles: profiles,
		logger:   logger,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
		entries:  make(map[string]entry),
		tokens:   make(map[string]map[string]struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Identity returns the profile behind token, or nil when the token names no
// live session.
func (h *Holder) Identity(ctx context.Context, token string) (*domain.Profile, error) {
	if token == "" {
		return nil, nil
	}

	h.mu.RLock()
	e, ok := h.entries[token]
	h.mu.RUnlock()
	if ok && h.fresh(e, h.now()) {
		return e.profile, nil
	}

	return h.Restore(ctx, token)
}

// Sweep drops every cached identity whose session has expired and returns how
// many were removed.
func (h *Holder) Sweep() int {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for token, e := range h.entries {
		if now.Before(e.expiresAt) {
			continue
		}
		h.drop(token, e)
		removed++
	}
	return removed
}

// Run sweeps expired identities every interval until ctx is cancelled.
func (h *Holder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := h.Sweep(); removed > 0 {
				h.logger.Debug("swept expired sessions", "count", removed)
			}
		}
	}
}

func (h *Holder) fresh(e entry, now time.Time) bool {
	return now.Before(e.expiresAt) && now.Sub(e.cachedAt) < h.cacheTTL
}

// Restore asks the auth backend for the session behind token and loads its
// profile, synthesizing one from the user metadata when no row exists.
func (h *Holder) Restore(ctx context.Context, token string) (*domain.Profile, error) {
	session, err := h.auth.GetSession(ctx, token)
	if err != nil {
		return nil, domain.Remote("get session", err)
	}
	if session == nil {
		h.forget(token)
		return nil, nil
	}

	profile := h.loadProfile(ctx, session.User)
	h.remember(token, profile, session.ExpiresAt)

	return profile, nil
}

func (h *Holder) Login(ctx context.Context, email, password string) AuthResult {
	session, err := h.auth.SignIn(ctx, email, password)
	if err != nil {
		return AuthResult{Result: h.fail("login", err)}
	}

	profile := h.loadProfile(ctx, session.User)
	h.remember(session.Token, profile, session.ExpiresAt)

	h.logger.Info("user logged in", "user_id", profile.ID)
	return AuthResult{Result: domain.OK(), Token: session.Token, Profile: profile}
}

func (h *Holder) Register(ctx context.Context, email, password, name string) AuthResult {
	session, err := h.auth.SignUp(ctx, email, password, map[string]string{"name": name})
	if err != nil {
		return AuthResult{Result: h.fail("register", err)}
	}

	profile := &domain.Profile{
		ID:    session.User.ID,
		Email: session.User.Email,
		Name:  name,
	}
	if err := h.profiles.Create(ctx, profile); err != nil {
		h.logger.Error("failed to insert profile", "error", err, "user_id", profile.ID)
		return AuthResult{Result: domain.FailWith(domain.Remote("insert profile", err), "Database error saving new user: "+err.Error())}
	}

	h.remember(session.Token, profile, session.ExpiresAt)

	h.logger.Info("user registered", "user_id", profile.ID)
	return AuthResult{Result: domain.OK(), Token: session.Token, Profile: profile}
}

func (h *Holder) Logout(ctx context.Context, token string) domain.Result {
	if err := h.auth.SignOut(ctx, token); err != nil {
		return h.fail("logout", err)
	}

	h.forget(token)
	return domain.OK()
}

// UpdateProfile changes the caller's name or avatar, first in the profile row
// and then in the auth user's metadata.
func (h *Holder) UpdateProfile(ctx context.Context, token string, update domain.ProfileUpdate) ProfileResult {
	current, err := h.Identity(ctx, token)
	if err != nil {
		return ProfileResult{Result: h.fail("update profile", err)}
	}
	if current == nil {
		return ProfileResult{Result: domain.FailWith(domain.ErrUnauthenticated, "You must be logged in to update your profile")}
	}

	profile, err := h.profiles.Update(ctx, current.ID, update)
	if errors.Is(err, domain.ErrNotFound) {
		profile, err = h.createFrom(ctx, current, update)
	}
	if err != nil {
		return ProfileResult{Result: h.fail("update profile", domain.Remote("update profile", err))}
	}

	metadata := map[string]string{"name": profile.Name}
	if update.Avatar != nil {
		metadata["avatar"] = profile.Avatar
	}
	if _, err := h.auth.UpdateUserMetadata(ctx, token, metadata); err != nil {
		return ProfileResult{Result: h.fail("update user metadata", err)}
	}

	h.mu.Lock()
	if e, ok := h.entries[token]; ok {
		e.profile = profile
		h.entries[token] = e
	}
	h.mu.Unlock()

	return ProfileResult{Result: domain.OK(), Profile: profile}
}

// HandleSessionEvent applies one session-change notification. Malformed
// payloads are logged and skipped.
func (h *Holder) HandleSessionEvent(ctx context.Context, payload []byte) error {
	var event domain.SessionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn("skipping malformed session event", "error", err)
		return nil
	}

	switch event.Type {
	case domain.SessionSignedIn:
		if event.Token == "" {
			return nil
		}
		if _, err := h.Restore(ctx, event.Token); err != nil {
			return fmt.Errorf("restore session for %s: %w", event.UserID, err)
		}
	case domain.SessionSignedOut:
		if event.Token != "" {
			h.forget(event.Token)
		} else {
			h.forgetUser(event.UserID)
		}
	case domain.SessionUserUpdated:
		for _, token := range h.userTokens(event.UserID) {
			if _, err := h.Restore(ctx, token); err != nil {
				return fmt.Errorf("reload session for %s: %w", event.UserID, err)
			}
		}
	default:
		h.logger.Debug("ignoring session event", "type", event.Type)
	}

	return nil
}

func (h *Holder) loadProfile(ctx context.Context, user domain.User) *domain.Profile {
	profile, err := h.profiles.Get(ctx, user.ID)
	if err != nil {
		h.logger.Warn("failed to load profile", "error", err, "user_id", user.ID)
	}
	if profile != nil {
		return profile
	}

	return &domain.Profile{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Metadata["name"],
		IsAdmin: false,
	}
}

func (h *Holder) createFrom(ctx context.Context, current *domain.Profile, update domain.ProfileUpdate) (*domain.Profile, error) {
	profile := *current
	if update.Name != nil {
		profile.Name = *update.Name
	}
	if update.Avatar != nil {
		profile.Avatar = *update.Avatar
	}

	if err := h.profiles.Create(ctx, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// fail reports err as a failed backend call, keeping the backend's own
// message for the caller.
func (h *Holder) fail(op string, err error) domain.Result {
	h.logger.Warn(op+" failed", "error", err)

	if errors.Is(err, domain.ErrUnauthenticated) {
		return domain.Fail(err)
	}

	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return domain.FailWith(remote, remote.Err.Error())
	}
	return domain.FailWith(domain.Remote(op, err), err.Error())
}

func (h *Holder) remember(token string, profile *domain.Profile, expiresAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.entries[token]; ok && old.userID != profile.ID {
		h.drop(token, old)
	}
	h.entries[token] = entry{userID: profile.ID, profile: profile, expiresAt: expiresAt, cachedAt: h.now()}
	if h.tokens[profile.ID] == nil {
		h.tokens[profile.ID] = make(map[string]struct{})
	}
	h.tokens[profile.ID][token] = struct{}{}
}

func (h *Holder) forget(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[token]; ok {
		h.drop(token, e)
	}
}

// drop removes token from both indexes. h.mu must be held.
func (h *Holder) drop(token string, e entry) {
	delete(h.entries, token)
	delete(h.tokens[e.userID], token)
	if len(h.tokens[e.userID]) == 0 {
		delete(h.tokens, e.userID)
	}
}

func (h *Holder) forgetUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for token := range h.tokens[userID] {
		delete(h.entries, token)
	}
	delete(h.tokens, userID)
}

func (h *Holder) userTokens(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	tokens := make([]string, 0, len(h.tokens[userID]))
	for token := range h.tokens[userID] {
		tokens = append(tokens, token)
	}
	return tokens
}

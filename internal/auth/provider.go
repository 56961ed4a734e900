package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Provider keeps users and their sessions in Postgres and announces every
// session change on the publisher.
type Provider struct {
	pool      *pgxpool.Pool
	publisher Publisher
	ttl       time.Duration
	logger    *slog.Logger
}

func NewProvider(pool *pgxpool.Pool, publisher Publisher, ttl time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		pool:      pool,
		publisher: publisher,
		ttl:       ttl,
		logger:    logger,
	}
}

// GetSession returns nil when token does not name a live session.
func (p *Provider) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	session := &domain.Session{Token: token}

	err := p.pool.QueryRow(ctx, `
		SELECT s.expires_at, u.id, u.email, u.metadata
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > NOW()
	`, token).Scan(&session.ExpiresAt, &session.User.ID, &session.User.Email, &session.User.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	return session, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var (
		user domain.User
		hash string
	)

	err := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, metadata
		FROM users
		WHERE email = $1
	`, normalizeEmail(email)).Scan(&user.ID, &user.Email, &hash, &user.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	session, err := createSession(ctx, p.pool, user, p.ttl)
	if err != nil {
		return nil, err
	}

	p.announce(ctx, domain.SessionSignedIn, user.ID, session.Token)
	return session, nil
}

// SignUp creates the user and its first session together.
func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if metadata == nil {
		metadata = map[string]string{}
	}

	session, err := withTx(ctx, p.pool, func(tx pgx.Tx) (*domain.Session, error) {
		user := domain.User{
			ID:       uuid.New().String(),
			Email:    normalizeEmail(email),
			Metadata: metadata,
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, metadata)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO NOTHING
		`, user.ID, user.Email, string(hash), user.Metadata)
		if err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, domain.ErrEmailTaken
		}

		return createSession(ctx, tx, user, p.ttl)
	})
	if err != nil {
		return nil, err
	}

	p.announce(ctx, domain.SessionSignedIn, session.User.ID, session.Token)
	return session, nil
}

func (p *Provider) SignOut(ctx context.Context, token string) error {
	var userID string

	err := p.pool.QueryRow(ctx, `
		DELETE FROM sessions
		WHERE token = $1
		RETURNING user_id
	`, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("delete session: %w", err)
	}

	p.announce(ctx, domain.SessionSignedOut, userID, token)
	return nil
}

// UpdateUserMetadata merges metadata into the metadata of the session's user.
func (p *Provider) UpdateUserMetadata(ctx context.Context, token string, metadata map[string]string) (*domain.User, error) {
	var user domain.User

	err := p.pool.QueryRow(ctx, `
		UPDATE users u
		SET metadata = u.metadata || $2::jsonb, updated_at = NOW()
		FROM sessions s
		WHERE s.token = $1 AND s.expires_at > NOW() AND u.id = s.user_id
		RETURNING u.id, u.email, u.metadata
	`, token, metadata).Scan(&user.ID, &user.Email, &user.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("update user metadata: %w", err)
	}

	p.announce(ctx, domain.SessionUserUpdated, user.ID, "")
	return &user, nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createSession(ctx context.Context, db queryer, user domain.User, ttl time.Duration) (*domain.Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	session := &domain.Session{Token: token, User: user}
	err = db.QueryRow(ctx, `
		INSERT INTO sessions (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING expires_at
	`, token, user.ID, time.Now().Add(ttl).UTC()).Scan(&session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return session, nil
}

func (p *Provider) announce(ctx context.Context, kind domain.SessionEventType, userID, token string) {
	if p.publisher == nil {
		return
	}

	event := domain.SessionEvent{
		Type:      kind,
		UserID:    userID,
		Token:     token,
		Timestamp: time.Now().UTC(),
	}
	if err := p.publisher.Publish(ctx, userID, event); err != nil {
		p.logger.Error("failed to publish session event", "error", err, "type", kind, "user_id", userID)
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

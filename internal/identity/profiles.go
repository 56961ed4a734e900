package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Get returns nil when the user has no profile row.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*domain.Profile, error) {
	profile := &domain.Profile{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, is_admin, avatar
		FROM profiles
		WHERE id = $1
	`, id).Scan(&profile.ID, &profile.Email, &profile.Name, &profile.IsAdmin, &profile.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return profile, nil
}

func (r *ProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, name, is_admin, avatar)
		VALUES ($1, $2, $3, $4, $5)
	`, profile.ID, profile.Email, profile.Name, profile.IsAdmin, profile.Avatar)
	return err
}

// Update applies the non-nil fields of update and returns the stored row.
func (r *ProfileRepository) Update(ctx context.Context, id string, update domain.ProfileUpdate) (*domain.Profile, error) {
	profile := &domain.Profile{}

	err := r.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET name = COALESCE($2, name), avatar = COALESCE($3, avatar), updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, name, is_admin, avatar
	`, id, update.Name, update.Avatar).Scan(&profile.ID, &profile.Email, &profile.Name, &profile.IsAdmin, &profile.Avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return profile, nil
}

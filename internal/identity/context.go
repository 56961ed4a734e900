package identity

import (
	"context"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type profileKey struct{}

func WithProfile(ctx context.Context, profile *domain.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, profile)
}

// FromContext returns the identity attached to ctx, or nil for anonymous
// requests.
func FromContext(ctx context.Context) *domain.Profile {
	profile, _ := ctx.Value(profileKey{}).(*domain.Profile)
	return profile
}

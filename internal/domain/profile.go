package domain

import "time"

type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	Avatar  string `json:"avatar,omitempty"`
}

// ProfileUpdate carries the profile fields a user may change on their own
// account. Nil fields are left untouched.
type ProfileUpdate struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

type User struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata,omitempty"`
}

type Session struct {
	Token     string    `json:"access_token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

package domain

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser   Role = "USER"
	RoleArtist Role = "ARTIST"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole normalises s into a Role. An empty string yields RoleUser.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RoleUser:
		return RoleUser, true
	case RoleArtist:
		return RoleArtist, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleArtist, RoleAdmin:
		return true
	default:
		return false
	}
}

// Account models a registered platform user.
type Account struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Active       bool       `json:"is_active"`
	Blocked      bool       `json:"is_blocked"`
	RefreshToken string     `json:"-"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	LoginState
}

// NormalizeEmail lower-cases and trims an email address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmailIdentifier reports whether a login identifier names an email.
// Usernames cannot contain '@', so the two lookups never overlap.
func IsEmailIdentifier(identifier string) bool {
	return strings.Contains(identifier, "@")
}

// AccountView is the sanitized projection returned to clients. It never
// carries the password hash or refresh token.
type AccountView struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
}

// View returns the sanitized projection of a.
func (a *Account) View() AccountView {
	return AccountView{
		ID:       a.ID,
		Name:     a.Name,
		Username: a.Username,
		Email:    a.Email,
		Role:     a.Role,
	}
}

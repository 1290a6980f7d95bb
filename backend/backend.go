package backend

import (
	"context"

	"github.com/inkspine/bookstore/users"
)

// AuthResponse is the normalized result of every session endpoint: the opaque
// bearer token and the authoritative user record, always issued together.
type AuthResponse struct {
	Token string      `json:"token"`
	User  *users.User `json:"user"`
}

// Credentials identify an account to the backend. Shoppers and booksellers
// log in with email+password; admins with username+password.
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Registration is the payload for the backend registration endpoint. The
// ExternalSubject cross-references the identity created at the external
// provider in phase 1 of registration.
type Registration struct {
	Email           string         `json:"email"`
	Username        string         `json:"username"`
	Password        string         `json:"password"`
	Role            users.RoleType `json:"role"`
	Profile         users.Profile  `json:"profile,omitempty"`
	ExternalSubject string         `json:"external_subject"`
}

// ExternalProfile carries the external identity's stable handle and profile
// attributes to the social-login endpoint, which finds or provisions the
// matching backend user.
type ExternalProfile struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// Client wraps the four backend session endpoints. The backend is the source
// of truth for roles, active status and bearer tokens.
type Client interface {
	Register(ctx context.Context, reg Registration) (*AuthResponse, error)
	Login(ctx context.Context, creds Credentials) (*AuthResponse, error)
	AdminLogin(ctx context.Context, creds Credentials) (*AuthResponse, error)
	SocialLogin(ctx context.Context, profile ExternalProfile) (*AuthResponse, error)
	RefreshProfile(ctx context.Context, token string) (*users.User, error)
}

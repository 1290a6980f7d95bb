package session

import (
	"github.com/inkspine/bookstore/identity"
	"github.com/inkspine/bookstore/users"
)

// Status is the lifecycle state of the reconciled session.
type Status string

const (
	// StatusUnresolved is the initial state, before any recovery attempt.
	StatusUnresolved Status = "unresolved"
	// StatusResolving means an operation is in flight.
	StatusResolving Status = "resolving"
	// StatusAuthenticated means the session is fully populated and consistent.
	StatusAuthenticated Status = "authenticated"
	// StatusAnonymous is the terminal-stable state with no session.
	StatusAnonymous Status = "anonymous"
)

// Session is the reconciled, UI-facing identity. BackendUser and BearerToken
// are always present together; ExternalIdentity is absent for admin sessions.
type Session struct {
	ExternalIdentity *identity.Identity `json:"external_identity,omitempty"`
	BackendUser      *users.User        `json:"backend_user,omitempty"`
	BearerToken      string             `json:"bearer_token,omitempty"`
	Status           Status             `json:"status"`
}

func (s Session) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// Role returns the backend role, or "" when no user is present.
func (s Session) Role() users.RoleType {
	if s.BackendUser == nil {
		return ""
	}
	return s.BackendUser.Role
}

// Clone returns a deep copy so readers never share mutable state with the
// bridge.
func (s Session) Clone() Session {
	out := s
	if s.ExternalIdentity != nil {
		ident := *s.ExternalIdentity
		out.ExternalIdentity = &ident
	}
	if s.BackendUser != nil {
		user := *s.BackendUser
		if s.BackendUser.Profile != nil {
			user.Profile = make(users.Profile, len(s.BackendUser.Profile))
			for k, v := range s.BackendUser.Profile {
				user.Profile[k] = v
			}
		}
		out.BackendUser = &user
	}
	return out
}

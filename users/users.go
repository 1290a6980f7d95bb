package users

import (
	"strings"
)

// RoleType represents a backend account role
type RoleType string

const (
	RoleShopper    RoleType = "shopper"    // Regular storefront customer
	RoleBookseller RoleType = "bookseller" // Runs a store, manages catalog listings
	RoleAdmin      RoleType = "admin"      // Backend-only account, never linked to the external identity provider
)

// Valid reports whether the role is one the backend can issue
func (r RoleType) Valid() bool {
	switch r {
	case RoleShopper, RoleBookseller, RoleAdmin:
		return true
	}
	return false
}

// Profile is the free-form, role-dependent part of the user record.
// Booksellers carry their store name here.
type Profile map[string]string

const profileStoreNameKey = "store_name"

func (p Profile) StoreName() string {
	return p[profileStoreNameKey]
}

func (p Profile) SetStoreName(name string) {
	p[profileStoreNameKey] = name
}

// User is the application backend's authoritative account record.
type User struct {
	ID       string   `json:"id,omitempty"`       // Unique identifier for the user
	Username string   `json:"username,omitempty"` // Unique username
	Email    string   `json:"email,omitempty"`    // User's email address
	Role     RoleType `json:"role,omitempty"`     // Account role (shopper, bookseller, admin)
	Profile  Profile  `json:"profile,omitempty"`  // Role-dependent profile data
	IsActive bool     `json:"is_active"`          // Disabled accounts are rejected by the backend on login
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsBookseller() bool {
	return u.Role == RoleBookseller
}

func (u *User) IsShopper() bool {
	return u.Role == RoleShopper
}

// DisplayName derives a presentable name from the backend record. Admin
// sessions have no external identity, so this is all the UI ever gets.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

package identity

import "context"

// Identity is the external provider's view of an account. It carries no
// application capability on its own; the backend user record is always the
// authority for roles and access.
type Identity struct {
	Subject string `json:"subject"` // Stable provider-issued handle
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ProfileUpdate carries the attributes that can be changed at the provider.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Email       *string
	DisplayName *string
}

// SessionChangeFunc is invoked whenever the provider's own session state
// changes. A nil identity means the provider session ended.
type SessionChangeFunc func(*Identity)

// Client wraps the external identity provider. Used for shopper and
// bookseller accounts only; admin accounts never touch it.
type Client interface {
	// CreateIdentity registers a new credential identity at the provider.
	CreateIdentity(ctx context.Context, email, password string) (*Identity, error)

	// SignIn authenticates an existing credential identity.
	SignIn(ctx context.Context, email, password string) (*Identity, error)

	// SignInFederated runs the provider's federated consent flow and blocks
	// until it completes, fails, or the context is cancelled.
	SignInFederated(ctx context.Context) (*Identity, error)

	// SignOut ends the provider session. Best-effort: the returned error is
	// for logging only and must never block a logout.
	SignOut(ctx context.Context) error

	// DeleteIdentity removes a provider identity. Used as the compensating
	// action when backend registration fails after the identity was created.
	DeleteIdentity(ctx context.Context, ident *Identity) error

	// UpdateProfile pushes profile attribute changes to the provider.
	UpdateProfile(ctx context.Context, ident *Identity, update ProfileUpdate) error

	// OnSessionChange registers a callback for out-of-band provider session
	// changes. The returned function unsubscribes.
	OnSessionChange(fn SessionChangeFunc) (unsubscribe func())
}

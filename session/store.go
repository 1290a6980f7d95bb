package session

import "github.com/inkspine/bookstore/users"

// Credentials is the persisted pair: the opaque bearer token and the
// serialized backend user. The two are written and cleared together; a store
// must never hold one without the other.
type Credentials struct {
	Token string      `json:"token"`
	User  *users.User `json:"user"`
}

// Store is the durable persistence for the current session's credentials.
// The IdentityBridge is its sole writer; validity of a persisted token is
// decided only by whether the backend accepts it on the next request.
type Store interface {
	// Read returns the persisted pair, or nil when nothing (or a partial
	// pair) is persisted.
	Read() (*Credentials, error)

	// Write persists token and user atomically.
	Write(token string, user *users.User) error

	// Clear removes the pair unconditionally. It never fails.
	Clear()
}

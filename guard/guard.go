// Package guard decides whether a navigation target is permitted for the
// current session. Guards are read-only gates: they never mutate the session.
package guard

import (
	"net/url"

	"github.com/inkspine/bookstore/session"
	"github.com/inkspine/bookstore/users"
)

// Entry points guards redirect to.
const (
	LoginPath      = "/login"
	AdminEntryPath = "/admin/login"
)

// Decision is the outcome of a guard check. Exactly one of Allow, Loading or
// a non-empty RedirectTo applies.
type Decision struct {
	Allow bool
	// Loading means the session is still resolving; render a neutral loading
	// state instead of redirecting, since recovery may yet succeed from a
	// persisted token.
	Loading    bool
	RedirectTo string
}

// Authenticated permits any authenticated session. Otherwise it redirects to
// the login page, recording the original target so login can return there.
func Authenticated(sess session.Session, target string) Decision {
	if loading(sess) {
		return Decision{Loading: true}
	}
	if sess.IsAuthenticated() {
		return Decision{Allow: true}
	}
	return Decision{RedirectTo: loginRedirect(target)}
}

// AdminOnly permits an authenticated admin session; everything else is
// redirected to the admin entry point.
func AdminOnly(sess session.Session, _ string) Decision {
	if loading(sess) {
		return Decision{Loading: true}
	}
	if sess.IsAuthenticated() && sess.Role() == users.RoleAdmin {
		return Decision{Allow: true}
	}
	return Decision{RedirectTo: AdminEntryPath}
}

// BooksellerOnly permits an authenticated bookseller session. While the
// bridge is still resolving at navigation time it renders a neutral loading
// state; resolving is never treated as anonymous.
func BooksellerOnly(sess session.Session, target string) Decision {
	if loading(sess) {
		return Decision{Loading: true}
	}
	if sess.IsAuthenticated() && sess.Role() == users.RoleBookseller {
		return Decision{Allow: true}
	}
	if sess.IsAuthenticated() {
		// Wrong role: sending the user to login would loop, so land them on
		// the storefront.
		return Decision{RedirectTo: "/"}
	}
	return Decision{RedirectTo: loginRedirect(target)}
}

func loading(sess session.Session) bool {
	return sess.Status == session.StatusResolving || sess.Status == session.StatusUnresolved
}

func loginRedirect(target string) string {
	if target == "" || target == LoginPath {
		return LoginPath
	}
	return LoginPath + "?redirect=" + url.QueryEscape(target)
}

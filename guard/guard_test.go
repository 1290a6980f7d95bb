package guard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkspine/bookstore/guard"
	"github.com/inkspine/bookstore/session"
	"github.com/inkspine/bookstore/users"
)

func sessionWithRole(role users.RoleType) session.Session {
	return session.Session{
		BackendUser: &users.User{ID: "user-1", Email: "user@example.com", Role: role, IsActive: true},
		BearerToken: "token-1",
		Status:      session.StatusAuthenticated,
	}
}

func anonymous() session.Session {
	return session.Session{Status: session.StatusAnonymous}
}

func TestAuthenticatedGuard(t *testing.T) {
	tests := []struct {
		name     string
		sess     session.Session
		target   string
		allow    bool
		loading  bool
		redirect string
	}{
		{name: "shopper allowed", sess: sessionWithRole(users.RoleShopper), target: "/account", allow: true},
		{name: "bookseller allowed", sess: sessionWithRole(users.RoleBookseller), target: "/account", allow: true},
		{name: "admin allowed", sess: sessionWithRole(users.RoleAdmin), target: "/account", allow: true},
		{name: "anonymous redirects to login", sess: anonymous(), target: "/account", redirect: "/login?redirect=%2Faccount"},
		{name: "anonymous without target", sess: anonymous(), target: "", redirect: "/login"},
		{name: "resolving is loading", sess: session.Session{Status: session.StatusResolving}, target: "/account", loading: true},
		{name: "unresolved is loading", sess: session.Session{Status: session.StatusUnresolved}, target: "/account", loading: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := guard.Authenticated(tc.sess, tc.target)
			require.Equal(t, tc.allow, d.Allow)
			require.Equal(t, tc.loading, d.Loading)
			require.Equal(t, tc.redirect, d.RedirectTo)
		})
	}
}

func TestAdminOnlyGuard(t *testing.T) {
	tests := []struct {
		name     string
		sess     session.Session
		allow    bool
		loading  bool
		redirect string
	}{
		{name: "admin allowed", sess: sessionWithRole(users.RoleAdmin), allow: true},
		{name: "shopper redirected to admin entry", sess: sessionWithRole(users.RoleShopper), redirect: guard.AdminEntryPath},
		{name: "bookseller redirected to admin entry", sess: sessionWithRole(users.RoleBookseller), redirect: guard.AdminEntryPath},
		{name: "anonymous redirected to admin entry", sess: anonymous(), redirect: guard.AdminEntryPath},
		{name: "resolving is loading", sess: session.Session{Status: session.StatusResolving}, loading: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := guard.AdminOnly(tc.sess, "/admin/dashboard")
			require.Equal(t, tc.allow, d.Allow)
			require.Equal(t, tc.loading, d.Loading)
			require.Equal(t, tc.redirect, d.RedirectTo)
		})
	}
}

func TestBooksellerOnlyGuard(t *testing.T) {
	tests := []struct {
		name     string
		sess     session.Session
		allow    bool
		loading  bool
		redirect string
	}{
		{name: "bookseller allowed", sess: sessionWithRole(users.RoleBookseller), allow: true},
		{name: "shopper lands on storefront", sess: sessionWithRole(users.RoleShopper), redirect: "/"},
		{name: "admin lands on storefront", sess: sessionWithRole(users.RoleAdmin), redirect: "/"},
		{name: "anonymous redirects to login", sess: anonymous(), redirect: "/login?redirect=%2Fseller%2Fdashboard"},
		{name: "resolving is loading", sess: session.Session{Status: session.StatusResolving}, loading: true},
		{name: "unresolved is loading", sess: session.Session{Status: session.StatusUnresolved}, loading: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := guard.BooksellerOnly(tc.sess, "/seller/dashboard")
			require.Equal(t, tc.allow, d.Allow)
			require.Equal(t, tc.loading, d.Loading)
			require.Equal(t, tc.redirect, d.RedirectTo)
		})
	}
}

// A resolving session must never be bounced to a login page, whatever the
// guard: recovery may still authenticate it.
func TestResolvingNeverRedirects(t *testing.T) {
	resolving := session.Session{Status: session.StatusResolving}

	for _, check := range []func(session.Session, string) guard.Decision{
		guard.Authenticated, guard.AdminOnly, guard.BooksellerOnly,
	} {
		d := check(resolving, "/somewhere")
		require.True(t, d.Loading)
		require.Empty(t, d.RedirectTo)
	}
}

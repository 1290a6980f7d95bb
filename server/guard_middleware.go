package server

import (
	"net/http"

	"github.com/inkspine/bookstore/guard"
	"github.com/inkspine/bookstore/session"
)

type guardFunc func(sess session.Session, target string) guard.Decision

// RequireAuthenticated gates a route behind any authenticated session.
func (s *Server) RequireAuthenticated() func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(guard.Authenticated)
}

// RequireAdmin gates a route behind an authenticated admin session.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(guard.AdminOnly)
}

// RequireBookseller gates a route behind an authenticated bookseller session.
func (s *Server) RequireBookseller() func(http.HandlerFunc) http.HandlerFunc {
	return s.guardMiddleware(guard.BooksellerOnly)
}

func (s *Server) guardMiddleware(check guardFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			decision := check(s.bridge.Snapshot(), r.URL.RequestURI())
			switch {
			case decision.Allow:
				next(w, r)
			case decision.Loading:
				s.renderLoading(w)
			default:
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
			}
		}
	}
}

// renderLoading shows a neutral holding page while the session is still
// resolving. The page re-requests itself rather than redirecting, so a
// recovering session is never bounced to login.
func (s *Server) renderLoading(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><meta http-equiv="refresh" content="1"><title>Loading</title></head>
<body><p>Restoring your session&hellip;</p></body>
</html>
`))
}

package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

// IndexHandler renders the storefront landing page
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("index.html")
	if err != nil {
		panic("Failed to parse index template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.bridge.Snapshot()

		data := map[string]interface{}{
			"Authenticated": sess.IsAuthenticated(),
			"DisplayName":   "",
		}
		if sess.BackendUser != nil {
			data["DisplayName"] = sess.BackendUser.DisplayName()
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render index template")
		}
	}
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("login.html")
	if err != nil {
		panic("Failed to parse login template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		// Already signed in: no reason to show the form
		if s.bridge.Snapshot().IsAuthenticated() {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}

		data := map[string]interface{}{
			"Error":    r.URL.Query().Get("error"),
			"Email":    r.URL.Query().Get("email"),
			"Redirect": r.URL.Query().Get("redirect"),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}

// AdminLoginPageHandler displays the staff login page (GET /admin/login)
func (s *Server) AdminLoginPageHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("admin_login.html")
	if err != nil {
		panic("Failed to parse admin login template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"Error": r.URL.Query().Get("error"),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render admin login template")
			http.Error(w, "Failed to render admin login page", http.StatusInternalServerError)
		}
	}
}

// AccountHandler renders the signed-in user's account page
func (s *Server) AccountHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("account.html")
	if err != nil {
		panic("Failed to parse account template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.bridge.Snapshot()
		if sess.BackendUser == nil {
			// Guard should have caught this; treat as a race with logout
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		data := map[string]interface{}{
			"DisplayName":   sess.BackendUser.DisplayName(),
			"Email":         sess.BackendUser.Email,
			"Role":          string(sess.BackendUser.Role),
			"ExternalEmail": "",
		}
		if sess.ExternalIdentity != nil {
			data["ExternalEmail"] = sess.ExternalIdentity.Email
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render account template")
		}
	}
}

// SellerDashboardHandler renders the bookseller dashboard
func (s *Server) SellerDashboardHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("seller_dashboard.html")
	if err != nil {
		panic("Failed to parse seller dashboard template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.bridge.Snapshot()
		if sess.BackendUser == nil {
			http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
			return
		}

		storeName := sess.BackendUser.Profile.StoreName()
		if storeName == "" {
			storeName = sess.BackendUser.DisplayName() + "'s store"
		}

		data := map[string]interface{}{
			"StoreName":   storeName,
			"DisplayName": sess.BackendUser.DisplayName(),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render seller dashboard template")
		}
	}
}

// AdminDashboardHandler renders the admin dashboard
func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	tmpl, err := ParseTemplate("admin_dashboard.html")
	if err != nil {
		panic("Failed to parse admin dashboard template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.bridge.Snapshot()
		if sess.BackendUser == nil {
			http.Redirect(w, r, RouteAdminLogin, http.StatusSeeOther)
			return
		}

		data := map[string]interface{}{
			"DisplayName": sess.BackendUser.DisplayName(),
			"Username":    sess.BackendUser.Username,
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := tmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render admin dashboard template")
		}
	}
}

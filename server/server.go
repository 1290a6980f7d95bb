package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/inkspine/bookstore/bridge"
	"github.com/inkspine/bookstore/identity"
	"github.com/inkspine/bookstore/internal/config"
)

// Server is the storefront HTTP surface. It consumes the bridge's session
// snapshots and bearer token but never writes the session directly; all
// writes funnel through the bridge.
type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	bridge *bridge.Bridge

	// oidc powers the federated begin/callback routes; nil disables them.
	oidc *identity.OidcClient
}

func New(cfg config.Config, br *bridge.Bridge, oidcClient *identity.OidcClient) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		config: cfg,
		bridge: br,
		oidc:   oidcClient,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET /{$}", ChainMiddleware(s.IndexHandler(), s.HTMLMiddleware()...))

	// LOGIN
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAdminLogin, ChainMiddleware(s.AdminLoginPageHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthAdminLogin, ChainMiddleware(s.AdminLoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// REGISTRATION
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))

	// FEDERATED SIGN-IN
	s.RegisterRouteFunc("GET "+RouteAuthSocial, s.SocialBeginHandler())
	s.RegisterRouteFunc("GET "+RouteAuthCallback, s.SocialCallbackHandler())

	// SESSION API
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthProfile, ChainMiddleware(s.ProfileUpdateHandler(), s.APIMiddleware()...))

	// Guarded storefront routes
	s.RegisterRouteHandler("GET "+RouteAccount, ChainMiddleware(s.AccountHandler(), s.HTMLMiddleware(s.RequireAuthenticated())...))
	s.RegisterRouteHandler("GET "+RouteSellerDashboard, ChainMiddleware(s.SellerDashboardHandler(), s.HTMLMiddleware(s.RequireBookseller())...))
	s.RegisterRouteHandler("GET "+RouteAdminDashboard, ChainMiddleware(s.AdminDashboardHandler(), s.HTMLMiddleware(s.RequireAdmin())...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}

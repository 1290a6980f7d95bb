package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteLogin          = "/login"
	RouteAdminLogin     = "/admin/login"
	RouteAuthLogin      = "/auth/login"
	RouteAuthAdminLogin = "/auth/admin/login"
	RouteAuthLogout     = "/auth/logout"

	// Auth Routes - Registration
	RouteAuthRegister = "/auth/register"

	// Auth Routes - Federated (social) sign-in
	RouteAuthSocial   = "/auth/social"
	RouteAuthCallback = "/auth/callback"

	// Session API
	RouteAuthSession = "/auth/session"
	RouteAuthRefresh = "/auth/refresh"
	RouteAuthProfile = "/auth/profile"

	// Guarded storefront routes
	RouteAccount         = "/account"
	RouteSellerDashboard = "/seller/dashboard"
	RouteAdminDashboard  = "/admin/dashboard"
)

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/bridge"
	"github.com/inkspine/bookstore/identity"
	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/internal/utils"
	"github.com/inkspine/bookstore/users"
)

const contentTypeJSON = "application/json; charset=utf-8"

// sessionResponse is the wire shape of a reconciled session. The bearer token
// stays server-side; clients see only the resolved identity.
type sessionResponse struct {
	Status     string            `json:"status"`
	User       *users.User       `json:"user,omitempty"`
	External   *externalIdentity `json:"external_identity,omitempty"`
	Enrichment string            `json:"enrichment,omitempty"`
}

type externalIdentity struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
}

// LoginHandler processes the shopper/bookseller login submission
// (POST /auth/login)
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Password == "" {
			writeJSONError(w, "invalid_request", "Email and password are required", http.StatusBadRequest)
			return
		}

		result, err := s.bridge.Login(r.Context(), backend.Credentials{Email: req.Email, Password: req.Password}, bridge.LoginTypeCredential)
		if err != nil {
			writeBridgeError(w, err)
			return
		}

		writeSession(w, sessionFromResult(result))
	}
}

// AdminLoginHandler processes the admin login submission
// (POST /auth/admin/login)
func (s *Server) AdminLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			writeJSONError(w, "invalid_request", "Username and password are required", http.StatusBadRequest)
			return
		}

		result, err := s.bridge.Login(r.Context(), backend.Credentials{Username: req.Username, Password: req.Password}, bridge.LoginTypeAdmin)
		if err != nil {
			writeBridgeError(w, err)
			return
		}

		writeSession(w, sessionFromResult(result))
	}
}

// RegisterHandler processes a new shopper or bookseller registration
// (POST /auth/register)
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email     string `json:"email"`
			Username  string `json:"username"`
			Password  string `json:"password"`
			Role      string `json:"role"`
			StoreName string `json:"store_name,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}
		if req.Email == "" || req.Username == "" || req.Password == "" {
			writeJSONError(w, "invalid_request", "Email, username and password are required", http.StatusBadRequest)
			return
		}

		role := users.RoleType(req.Role)
		if req.Role == "" {
			role = users.RoleShopper
		}

		newUser := bridge.NewUser{
			Email:    req.Email,
			Username: req.Username,
			Password: req.Password,
			Role:     role,
		}
		if req.StoreName != "" {
			newUser.Profile = users.Profile{}
			newUser.Profile.SetStoreName(req.StoreName)
		}

		result, err := s.bridge.Register(r.Context(), newUser)
		if err != nil {
			writeBridgeError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sessionFromResult(result))
	}
}

// LogoutHandler ends the session (POST /auth/logout). Logging out when
// already anonymous succeeds without side effects.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.bridge.Logout(r.Context()); err != nil {
			// Local state is already cleared; the provider sign-out failed.
			log.Warn().Err(err).Msg("logout completed locally; external sign-out failed")
		}
		writeSession(w, sessionFromSnapshot(s))
	}
}

// SessionHandler reports the current reconciled session (GET /auth/session)
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeSession(w, sessionFromSnapshot(s))
	}
}

// RefreshHandler revalidates the persisted token against the backend
// (POST /auth/refresh)
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.bridge.RefreshProfile(r.Context()); err != nil {
			writeBridgeError(w, err)
			return
		}
		writeSession(w, sessionFromSnapshot(s))
	}
}

// ProfileUpdateHandler pushes display-name/email changes to the external
// provider account (POST /auth/profile)
func (s *Server) ProfileUpdateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email       string `json:"email"`
			DisplayName string `json:"display_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse request body", http.StatusBadRequest)
			return
		}

		var update identity.ProfileUpdate
		if req.Email != "" {
			update.Email = utils.Ptr(req.Email)
		}
		if req.DisplayName != "" {
			update.DisplayName = utils.Ptr(req.DisplayName)
		}
		if update.Email == nil && update.DisplayName == nil {
			writeJSONError(w, "invalid_request", "Nothing to update", http.StatusBadRequest)
			return
		}

		if err := s.bridge.UpdateExternalProfile(r.Context(), update); err != nil {
			writeBridgeError(w, err)
			return
		}
		writeSession(w, sessionFromSnapshot(s))
	}
}

// SocialBeginHandler starts the federated sign-in by redirecting to the
// provider's authorization endpoint (GET /auth/social)
func (s *Server) SocialBeginHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.oidc == nil {
			writeJSONError(w, "unavailable", "Federated sign-in is not configured", http.StatusServiceUnavailable)
			return
		}

		authURL, _, err := s.oidc.BeginFederated(r.Context())
		if err != nil {
			log.Err(err).Msg("failed to begin federated sign-in")
			writeJSONError(w, "server_error", "Failed to start federated sign-in", http.StatusBadGateway)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// SocialCallbackHandler completes the federated sign-in: it exchanges the
// authorization code, then registers or signs the user in at the backend
// (GET /auth/callback)
func (s *Server) SocialCallbackHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.oidc == nil {
			writeJSONError(w, "unavailable", "Federated sign-in is not configured", http.StatusServiceUnavailable)
			return
		}

		query := r.URL.Query()
		if providerErr := query.Get("error"); providerErr != "" {
			http.Redirect(w, r, RouteLogin+"?error="+url.QueryEscape(providerErr), http.StatusSeeOther)
			return
		}

		state := query.Get("state")
		code := query.Get("code")
		if state == "" || code == "" {
			writeJSONError(w, "invalid_request", "Missing state or code parameter", http.StatusBadRequest)
			return
		}

		ident, err := s.oidc.CompleteFederated(r.Context(), state, code)
		if err != nil {
			log.Err(err).Msg("federated sign-in exchange failed")
			http.Redirect(w, r, RouteLogin+"?error=social_failed", http.StatusSeeOther)
			return
		}

		if _, err := s.bridge.SocialLoginWith(r.Context(), ident); err != nil {
			log.Err(err).Msg("federated sign-in rejected by backend")
			http.Redirect(w, r, RouteLogin+"?error=social_failed", http.StatusSeeOther)
			return
		}

		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func sessionFromResult(result *bridge.Result) sessionResponse {
	resp := sessionResponse{
		Status:     string(result.Session.Status),
		User:       result.Session.BackendUser,
		Enrichment: string(result.Enrichment),
	}
	if ext := result.Session.ExternalIdentity; ext != nil {
		resp.External = &externalIdentity{Subject: ext.Subject, Email: ext.Email, Name: ext.Name}
	}
	return resp
}

func sessionFromSnapshot(s *Server) sessionResponse {
	sess := s.bridge.Snapshot()
	resp := sessionResponse{
		Status: string(sess.Status),
		User:   sess.BackendUser,
	}
	if ext := sess.ExternalIdentity; ext != nil {
		resp.External = &externalIdentity{Subject: ext.Subject, Email: ext.Email, Name: ext.Name}
	}
	return resp
}

func writeSession(w http.ResponseWriter, resp sessionResponse) {
	w.Header().Set("Content-Type", contentTypeJSON)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeBridgeError maps the session error taxonomy onto HTTP statuses.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		writeJSONError(w, "invalid_credentials", "Invalid email or password", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUnauthorized):
		writeJSONError(w, "unauthorized", "Session is no longer valid", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrInactiveAccount):
		writeJSONError(w, "inactive_account", "Account is not active", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrDuplicateAccount):
		writeJSONError(w, "duplicate_account", "An account already exists for this email", http.StatusConflict)
	case errors.Is(err, apperrors.ErrWeakCredential):
		writeJSONError(w, "weak_credential", "Password does not meet strength requirements", http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrValidation):
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrOperationInFlight):
		writeJSONError(w, "operation_in_flight", "Another session operation is in progress", http.StatusConflict)
	case errors.Is(err, apperrors.ErrSuperseded):
		writeJSONError(w, "superseded", "Operation was superseded by a newer session change", http.StatusConflict)
	case errors.Is(err, apperrors.ErrFederatedCancelled):
		writeJSONError(w, "cancelled", "Federated sign-in was cancelled", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrInconsistentIdentity):
		writeJSONError(w, "inconsistent_identity", "No account matches this sign-in", http.StatusConflict)
	case errors.Is(err, apperrors.ErrUserNotFound), errors.Is(err, apperrors.ErrIdentityNotFound), errors.Is(err, apperrors.ErrNotFound):
		writeJSONError(w, "not_found", "No matching account", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrNetwork):
		writeJSONError(w, "upstream_unavailable", "Upstream service unavailable", http.StatusBadGateway)
	default:
		log.Err(err).Msg("session operation failed")
		writeJSONError(w, "server_error", "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// Package backendtest provides an in-process implementation of the bookstore
// backend's session endpoints, for development and for testing the HTTP
// client against real wire traffic. It issues HMAC-signed JWT bearer tokens
// and stores bcrypt credential hashes, mirroring the production backend's
// behavior of invalidating tokens when a role or active flag changes.
package backendtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/users"
)

const tokenExpiry = 24 * time.Hour

type record struct {
	user            *users.User
	passwordHash    string
	externalSubject string
	tokenVersion    int
}

type Server struct {
	mu         sync.Mutex
	byID       map[string]*record
	byEmail    map[string]*record
	byUsername map[string]*record
	bySubject  map[string]*record
	signingKey []byte
	mux        *http.ServeMux
}

func NewServer() *Server {
	s := &Server{
		byID:       make(map[string]*record),
		byEmail:    make(map[string]*record),
		byUsername: make(map[string]*record),
		bySubject:  make(map[string]*record),
		signingKey: []byte(uuid.NewString()),
		mux:        http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/session/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/session/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/session/admin/login", s.handleAdminLogin)
	s.mux.HandleFunc("POST /api/session/social", s.handleSocialLogin)
	s.mux.HandleFunc("GET /api/session/profile", s.handleProfile)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SeedUser stores an account as if it had registered earlier.
func (s *Server) SeedUser(user *users.User, password, externalSubject string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &record{user: user, passwordHash: string(hash), externalSubject: externalSubject}
	s.byID[user.ID] = rec
	s.byEmail[user.Email] = rec
	if user.Username != "" {
		s.byUsername[user.Username] = rec
	}
	if externalSubject != "" {
		s.bySubject[externalSubject] = rec
	}
	return nil
}

// SetActive flips the active flag and bumps the token version, invalidating
// every bearer token issued before the change.
func (s *Server) SetActive(email string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byEmail[email]; ok {
		rec.user.IsActive = active
		rec.tokenVersion++
	}
}

// SetRole changes the account role and bumps the token version.
func (s *Server) SetRole(email string, role users.RoleType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byEmail[email]; ok {
		rec.user.Role = role
		rec.tokenVersion++
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg backend.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeFailure(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}
	if reg.Email == "" || reg.Password == "" {
		writeFailure(w, http.StatusBadRequest, "validation", "email and password are required")
		return
	}
	if reg.Role == users.RoleAdmin || !reg.Role.Valid() {
		writeFailure(w, http.StatusBadRequest, "validation", "role not registrable")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.MinCost)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.mu.Lock()
	if _, ok := s.byEmail[reg.Email]; ok {
		s.mu.Unlock()
		writeFailure(w, http.StatusConflict, "duplicate", "email already registered")
		return
	}
	user := &users.User{
		ID:       uuid.NewString(),
		Username: reg.Username,
		Email:    reg.Email,
		Role:     reg.Role,
		Profile:  reg.Profile,
		IsActive: true,
	}
	rec := &record{user: user, passwordHash: string(hash), externalSubject: reg.ExternalSubject}
	s.byID[user.ID] = rec
	s.byEmail[reg.Email] = rec
	if reg.Username != "" {
		s.byUsername[reg.Username] = rec
	}
	if reg.ExternalSubject != "" {
		s.bySubject[reg.ExternalSubject] = rec
	}
	s.mu.Unlock()

	s.writeAuthResponse(w, rec)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds backend.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeFailure(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	s.mu.Lock()
	rec, ok := s.byEmail[creds.Email]
	s.mu.Unlock()

	if !ok || rec.user.IsAdmin() || bcrypt.CompareHashAndPassword([]byte(rec.passwordHash), []byte(creds.Password)) != nil {
		writeFailure(w, http.StatusUnauthorized, "invalid_credentials", "email or password incorrect")
		return
	}
	if !rec.user.IsActive {
		writeFailure(w, http.StatusForbidden, "inactive", "account is disabled")
		return
	}
	s.writeAuthResponse(w, rec)
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var creds backend.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeFailure(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	s.mu.Lock()
	rec, ok := s.byUsername[creds.Username]
	s.mu.Unlock()

	if !ok || !rec.user.IsAdmin() || bcrypt.CompareHashAndPassword([]byte(rec.passwordHash), []byte(creds.Password)) != nil {
		writeFailure(w, http.StatusUnauthorized, "invalid_credentials", "username or password incorrect")
		return
	}
	if !rec.user.IsActive {
		writeFailure(w, http.StatusForbidden, "inactive", "account is disabled")
		return
	}
	s.writeAuthResponse(w, rec)
}

func (s *Server) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	var profile backend.ExternalProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeFailure(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}
	if profile.Subject == "" {
		writeFailure(w, http.StatusBadRequest, "validation", "external subject is required")
		return
	}

	s.mu.Lock()
	rec, ok := s.bySubject[profile.Subject]
	if !ok {
		user := &users.User{
			ID:       uuid.NewString(),
			Username: profile.Name,
			Email:    profile.Email,
			Role:     users.RoleShopper,
			IsActive: true,
		}
		rec = &record{user: user, externalSubject: profile.Subject}
		s.byID[user.ID] = rec
		s.byEmail[profile.Email] = rec
		s.bySubject[profile.Subject] = rec
	}
	active := rec.user.IsActive
	s.mu.Unlock()

	if !active {
		writeFailure(w, http.StatusForbidden, "inactive", "account is disabled")
		return
	}
	s.writeAuthResponse(w, rec)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !token.Valid {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "token rejected")
		return
	}

	sub, _ := claims["sub"].(string)
	ver, _ := claims["ver"].(float64)

	s.mu.Lock()
	rec, ok := s.byID[sub]
	s.mu.Unlock()

	// A token minted before a role/status change carries a stale version and
	// is rejected, matching the production backend.
	if !ok || int(ver) != rec.tokenVersion || !rec.user.IsActive {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "token rejected")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec.user)
}

func (s *Server) writeAuthResponse(w http.ResponseWriter, rec *record) {
	s.mu.Lock()
	claims := jwt.MapClaims{
		"sub": rec.user.ID,
		"ver": rec.tokenVersion,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenExpiry).Unix(),
	}
	user := rec.user
	s.mu.Unlock()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(backend.AuthResponse{Token: signed, User: user})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

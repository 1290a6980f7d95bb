package backendfakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/inkspine/bookstore/backend"
	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/users"
)

var _ backend.Client = (*FakeClient)(nil)

type account struct {
	user     *users.User
	password string
}

// FakeClient is an in-memory double for the application backend with real
// login/registration semantics, so bridge tests exercise the same failure
// taxonomy the HTTP client produces.
type FakeClient struct {
	lock sync.Mutex

	byEmail    map[string]*account
	byUsername map[string]*account
	bySubject  map[string]*account // external subject -> account
	tokens     map[string]string   // bearer token -> user id
	nextToken  int

	// Scriptable failures; when set, the matching method returns the error.
	RegisterErr       error
	LoginErr          error
	AdminLoginErr     error
	SocialLoginErr    error
	RefreshProfileErr error

	RegisterCalls       int
	LoginCalls          int
	AdminLoginCalls     int
	SocialLoginCalls    int
	RefreshProfileCalls int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		byEmail:    make(map[string]*account),
		byUsername: make(map[string]*account),
		bySubject:  make(map[string]*account),
		tokens:     make(map[string]string),
	}
}

// AddUser seeds a backend account. externalSubject may be empty for accounts
// with no provider identity (admins).
func (c *FakeClient) AddUser(user *users.User, password, externalSubject string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	acc := &account{user: user, password: password}
	c.byEmail[user.Email] = acc
	if user.Username != "" {
		c.byUsername[user.Username] = acc
	}
	if externalSubject != "" {
		c.bySubject[externalSubject] = acc
	}
}

// RevokeAllTokens invalidates every issued bearer token, as the backend does
// on a role or status change.
func (c *FakeClient) RevokeAllTokens() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tokens = make(map[string]string)
}

// IssueToken mints a valid bearer token for a seeded user, as if from an
// earlier login that was persisted.
func (c *FakeClient) IssueToken(email string) string {
	c.lock.Lock()
	defer c.lock.Unlock()

	acc, ok := c.byEmail[email]
	if !ok {
		return ""
	}
	return c.issueLocked(acc)
}

func (c *FakeClient) issueLocked(acc *account) string {
	c.nextToken++
	token := fmt.Sprintf("token-%d", c.nextToken)
	c.tokens[token] = acc.user.ID
	return token
}

func (c *FakeClient) Register(_ context.Context, reg backend.Registration) (*backend.AuthResponse, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.RegisterCalls++

	if c.RegisterErr != nil {
		return nil, c.RegisterErr
	}
	if reg.Role == users.RoleAdmin || !reg.Role.Valid() {
		return nil, errors.Wrap(apperrors.ErrValidation, "[FakeClient.Register] role not registrable")
	}
	if _, ok := c.byEmail[reg.Email]; ok {
		return nil, errors.Wrap(apperrors.ErrDuplicateAccount, "[FakeClient.Register] email already registered")
	}

	user := &users.User{
		ID:       fmt.Sprintf("user-%d", len(c.byEmail)+1),
		Username: reg.Username,
		Email:    reg.Email,
		Role:     reg.Role,
		Profile:  reg.Profile,
		IsActive: true,
	}
	acc := &account{user: user, password: reg.Password}
	c.byEmail[reg.Email] = acc
	if reg.Username != "" {
		c.byUsername[reg.Username] = acc
	}
	if reg.ExternalSubject != "" {
		c.bySubject[reg.ExternalSubject] = acc
	}

	return &backend.AuthResponse{Token: c.issueLocked(acc), User: user}, nil
}

func (c *FakeClient) Login(_ context.Context, creds backend.Credentials) (*backend.AuthResponse, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.LoginCalls++

	if c.LoginErr != nil {
		return nil, c.LoginErr
	}
	acc, ok := c.byEmail[creds.Email]
	if !ok || acc.password != creds.Password {
		return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[FakeClient.Login]")
	}
	if acc.user.IsAdmin() {
		// Admins use the dedicated endpoint.
		return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[FakeClient.Login] admin account")
	}
	if !acc.user.IsActive {
		return nil, errors.Wrap(apperrors.ErrInactiveAccount, "[FakeClient.Login]")
	}
	return &backend.AuthResponse{Token: c.issueLocked(acc), User: acc.user}, nil
}

func (c *FakeClient) AdminLogin(_ context.Context, creds backend.Credentials) (*backend.AuthResponse, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.AdminLoginCalls++

	if c.AdminLoginErr != nil {
		return nil, c.AdminLoginErr
	}
	acc, ok := c.byUsername[creds.Username]
	if !ok || acc.password != creds.Password || !acc.user.IsAdmin() {
		return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[FakeClient.AdminLogin]")
	}
	if !acc.user.IsActive {
		return nil, errors.Wrap(apperrors.ErrInactiveAccount, "[FakeClient.AdminLogin]")
	}
	return &backend.AuthResponse{Token: c.issueLocked(acc), User: acc.user}, nil
}

func (c *FakeClient) SocialLogin(_ context.Context, profile backend.ExternalProfile) (*backend.AuthResponse, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.SocialLoginCalls++

	if c.SocialLoginErr != nil {
		return nil, c.SocialLoginErr
	}

	acc, ok := c.bySubject[profile.Subject]
	if !ok {
		// Provision a shopper for a first-time social sign-in.
		user := &users.User{
			ID:       fmt.Sprintf("user-%d", len(c.byEmail)+1),
			Username: profile.Name,
			Email:    profile.Email,
			Role:     users.RoleShopper,
			IsActive: true,
		}
		acc = &account{user: user}
		c.byEmail[profile.Email] = acc
		c.bySubject[profile.Subject] = acc
	}
	if !acc.user.IsActive {
		return nil, errors.Wrap(apperrors.ErrInactiveAccount, "[FakeClient.SocialLogin]")
	}
	return &backend.AuthResponse{Token: c.issueLocked(acc), User: acc.user}, nil
}

func (c *FakeClient) RefreshProfile(_ context.Context, token string) (*users.User, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.RefreshProfileCalls++

	if c.RefreshProfileErr != nil {
		return nil, c.RefreshProfileErr
	}
	userID, ok := c.tokens[token]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[FakeClient.RefreshProfile]")
	}
	for _, acc := range c.byEmail {
		if acc.user.ID == userID {
			if !acc.user.IsActive {
				return nil, errors.Wrap(apperrors.ErrUnauthorized, "[FakeClient.RefreshProfile] account inactive")
			}
			return acc.user, nil
		}
	}
	return nil, errors.Wrap(apperrors.ErrUnauthorized, "[FakeClient.RefreshProfile] user removed")
}

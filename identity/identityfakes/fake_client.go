package identityfakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/inkspine/bookstore/identity"
	apperrors "github.com/inkspine/bookstore/internal/errors"
)

var _ identity.Client = (*FakeClient)(nil)

// FakeClient is an in-memory scriptable double for the external identity
// provider. Every method counts its invocations so tests can assert that the
// admin path never touches the provider.
type FakeClient struct {
	lock sync.Mutex

	identities map[string]*identity.Identity // email -> identity
	passwords  map[string]string             // email -> password

	// Scriptable failures; when set, the matching method returns the error.
	CreateIdentityErr  error
	SignInErr          error
	SignInFederatedErr error
	SignOutErr         error
	DeleteIdentityErr  error
	UpdateProfileErr   error

	// FederatedIdentity is returned by SignInFederated when no error is set.
	FederatedIdentity *identity.Identity

	subscribers map[int]identity.SessionChangeFunc
	nextSubID   int

	// Invocation counters
	CreateIdentityCalls  int
	SignInCalls          int
	SignInFederatedCalls int
	SignOutCalls         int
	DeleteIdentityCalls  int
	UpdateProfileCalls   int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		identities:  make(map[string]*identity.Identity),
		passwords:   make(map[string]string),
		subscribers: make(map[int]identity.SessionChangeFunc),
	}
}

// Calls returns the total number of invocations across all provider methods.
func (c *FakeClient) Calls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.CreateIdentityCalls + c.SignInCalls + c.SignInFederatedCalls +
		c.SignOutCalls + c.DeleteIdentityCalls + c.UpdateProfileCalls
}

// AddIdentity seeds an existing provider identity.
func (c *FakeClient) AddIdentity(ident *identity.Identity, password string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.identities[ident.Email] = ident
	c.passwords[ident.Email] = password
}

// HasIdentity reports whether an identity exists for the email.
func (c *FakeClient) HasIdentity(email string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.identities[email]
	return ok
}

func (c *FakeClient) CreateIdentity(_ context.Context, email, password string) (*identity.Identity, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.CreateIdentityCalls++

	if c.CreateIdentityErr != nil {
		return nil, c.CreateIdentityErr
	}
	if _, ok := c.identities[email]; ok {
		return nil, errors.Wrap(apperrors.ErrDuplicateAccount, "[FakeClient.CreateIdentity]")
	}

	ident := &identity.Identity{Subject: "ext-" + email, Email: email}
	c.identities[email] = ident
	c.passwords[email] = password
	return ident, nil
}

func (c *FakeClient) SignIn(_ context.Context, email, password string) (*identity.Identity, error) {
	c.lock.Lock()
	c.SignInCalls++

	if c.SignInErr != nil {
		c.lock.Unlock()
		return nil, c.SignInErr
	}
	ident, ok := c.identities[email]
	if !ok {
		c.lock.Unlock()
		return nil, errors.Wrap(apperrors.ErrIdentityNotFound, "[FakeClient.SignIn]")
	}
	if c.passwords[email] != password {
		c.lock.Unlock()
		return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[FakeClient.SignIn]")
	}
	c.lock.Unlock()

	c.FireSessionChange(ident)
	return ident, nil
}

func (c *FakeClient) SignInFederated(_ context.Context) (*identity.Identity, error) {
	c.lock.Lock()
	c.SignInFederatedCalls++

	if c.SignInFederatedErr != nil {
		c.lock.Unlock()
		return nil, c.SignInFederatedErr
	}
	ident := c.FederatedIdentity
	if ident == nil {
		c.lock.Unlock()
		return nil, errors.Wrap(apperrors.ErrFederatedCancelled, "[FakeClient.SignInFederated] no federated identity scripted")
	}
	c.identities[ident.Email] = ident
	c.lock.Unlock()

	c.FireSessionChange(ident)
	return ident, nil
}

func (c *FakeClient) SignOut(_ context.Context) error {
	c.lock.Lock()
	c.SignOutCalls++
	err := c.SignOutErr
	c.lock.Unlock()

	if err != nil {
		return err
	}
	c.FireSessionChange(nil)
	return nil
}

func (c *FakeClient) DeleteIdentity(_ context.Context, ident *identity.Identity) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.DeleteIdentityCalls++

	if c.DeleteIdentityErr != nil {
		return c.DeleteIdentityErr
	}
	if _, ok := c.identities[ident.Email]; !ok {
		return errors.Wrap(apperrors.ErrIdentityNotFound, "[FakeClient.DeleteIdentity]")
	}
	delete(c.identities, ident.Email)
	delete(c.passwords, ident.Email)
	return nil
}

func (c *FakeClient) UpdateProfile(_ context.Context, ident *identity.Identity, update identity.ProfileUpdate) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.UpdateProfileCalls++

	if c.UpdateProfileErr != nil {
		return c.UpdateProfileErr
	}
	stored, ok := c.identities[ident.Email]
	if !ok {
		return errors.Wrap(apperrors.ErrIdentityNotFound, "[FakeClient.UpdateProfile]")
	}
	if update.DisplayName != nil {
		stored.Name = *update.DisplayName
	}
	if update.Email != nil {
		delete(c.identities, stored.Email)
		stored.Email = *update.Email
		c.identities[stored.Email] = stored
	}
	return nil
}

func (c *FakeClient) OnSessionChange(fn identity.SessionChangeFunc) (unsubscribe func()) {
	c.lock.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.lock.Unlock()

	return func() {
		c.lock.Lock()
		delete(c.subscribers, id)
		c.lock.Unlock()
	}
}

// FireSessionChange delivers a provider session-change notification to all
// subscribers, as the real provider does out-of-band.
func (c *FakeClient) FireSessionChange(ident *identity.Identity) {
	c.lock.Lock()
	fns := make([]identity.SessionChangeFunc, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.lock.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}

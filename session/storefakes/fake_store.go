package storefakes

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/inkspine/bookstore/session"
	"github.com/inkspine/bookstore/users"
)

var _ session.Store = (*FakeStore)(nil)

// FakeStore is an in-memory Store with injectable failures and counters so
// tests can assert atomicity and exactly-once clearing.
type FakeStore struct {
	lock sync.Mutex

	creds *session.Credentials

	ReadErr  error
	WriteErr error

	WriteCalls int
	ClearCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (s *FakeStore) Read() (*session.Credentials, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	if s.creds == nil {
		return nil, nil
	}
	creds := *s.creds
	return &creds, nil
}

func (s *FakeStore) Write(token string, user *users.User) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.WriteCalls++

	if s.WriteErr != nil {
		return s.WriteErr
	}
	if token == "" || user == nil {
		return errors.New("[FakeStore.Write] token and user must both be present")
	}
	s.creds = &session.Credentials{Token: token, User: user}
	return nil
}

func (s *FakeStore) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ClearCalls++
	s.creds = nil
}

// Stored returns the persisted pair without counting as a Read.
func (s *FakeStore) Stored() *session.Credentials {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.creds
}

// Seed stores a pair directly, bypassing counters.
func (s *FakeStore) Seed(token string, user *users.User) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.creds = &session.Credentials{Token: token, User: user}
}

package bridge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/bridge"
	"github.com/inkspine/bookstore/identity"
	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/session"
	"github.com/inkspine/bookstore/users"
)

func TestRecoverWithValidToken(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)

	token := f.backend.IssueToken(testEmail)
	f.store.Seed(token, user)

	require.NoError(t, f.bridge.Recover(context.Background()))

	snap := f.bridge.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	require.Equal(t, testEmail, snap.BackendUser.Email)
	require.Equal(t, token, snap.BearerToken)
}

func TestRecoverWithStaleTokenSettlesAnonymous(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)

	f.store.Seed("stale-token", user)

	require.NoError(t, f.bridge.Recover(context.Background()))

	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Nil(t, f.store.Stored())
	// One refresh attempt, no retry.
	require.Equal(t, 1, f.backend.RefreshProfileCalls)
}

func TestRecoverWithEmptyStore(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.bridge.Recover(context.Background()))

	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Equal(t, 0, f.backend.RefreshProfileCalls)
}

func TestRecoverWithUnreadableStore(t *testing.T) {
	f := setupTestFixture(t)
	f.store.ReadErr = apperrors.ErrInternal

	require.NoError(t, f.bridge.Recover(context.Background()))

	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Equal(t, 1, f.store.ClearCalls)
}

func TestRecoverIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)
	f.store.Seed(f.backend.IssueToken(testEmail), user)

	require.NoError(t, f.bridge.Recover(context.Background()))
	require.NoError(t, f.bridge.Recover(context.Background()))

	require.Equal(t, 1, f.backend.RefreshProfileCalls)
}

func TestRecoverRefreshedProfileSupersedesStoredCopy(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)
	token := f.backend.IssueToken(testEmail)

	// The stored copy has a stale role; the backend's answer wins.
	staleCopy := *user
	staleCopy.Role = users.RoleShopper
	f.store.Seed(token, &staleCopy)
	user.Role = users.RoleBookseller

	require.NoError(t, f.bridge.Recover(context.Background()))

	require.Equal(t, users.RoleBookseller, f.bridge.Snapshot().Role())
}

// refreshSignalBackend fires a provider session-change notification while the
// profile refresh is in flight, reproducing the startup race between the two
// recovery signals.
type refreshSignalBackend struct {
	backend.Client
	fire func()
}

func (b *refreshSignalBackend) RefreshProfile(ctx context.Context, token string) (*users.User, error) {
	b.fire()
	return b.Client.RefreshProfile(ctx, token)
}

func TestRecoverAttachesExternalSignalArrivingMidRefresh(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)
	token := f.backend.IssueToken(testEmail)
	f.store.Seed(token, user)

	ident := &identity.Identity{Subject: testSubject, Email: testEmail}
	racing := &refreshSignalBackend{
		Client: f.backend,
		fire:   func() { f.identity.FireSessionChange(ident) },
	}
	br, err := bridge.New(bridge.Deps{
		Store:    f.store,
		Backend:  racing,
		Identity: f.identity,
	})
	require.NoError(t, err)

	require.NoError(t, br.Recover(context.Background()))

	snap := br.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	require.NotNil(t, snap.ExternalIdentity)
	require.Equal(t, testSubject, snap.ExternalIdentity.Subject)
}

func TestRecoverSignsOutExternalSignalWhenBackendRejects(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)
	f.store.Seed("stale-token", user)

	ident := &identity.Identity{Subject: testSubject, Email: testEmail}
	racing := &refreshSignalBackend{
		Client: f.backend,
		fire:   func() { f.identity.FireSessionChange(ident) },
	}
	br, err := bridge.New(bridge.Deps{
		Store:    f.store,
		Backend:  racing,
		Identity: f.identity,
	})
	require.NoError(t, err)

	require.NoError(t, br.Recover(context.Background()))

	// The positive external signal was not corroborated: anonymous, and the
	// orphan identity is signed out.
	require.Equal(t, session.StatusAnonymous, br.Snapshot().Status)
	require.Equal(t, 1, f.identity.SignOutCalls)
}

func TestRecoverAdminSessionNeverCarriesExternalIdentity(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.seedAdmin(t)
	token := f.backend.IssueToken(admin.Email)
	f.store.Seed(token, admin)

	ident := &identity.Identity{Subject: "ext-stray", Email: "stray@example.com"}
	racing := &refreshSignalBackend{
		Client: f.backend,
		fire:   func() { f.identity.FireSessionChange(ident) },
	}
	br, err := bridge.New(bridge.Deps{
		Store:    f.store,
		Backend:  racing,
		Identity: f.identity,
	})
	require.NoError(t, err)

	require.NoError(t, br.Recover(context.Background()))

	snap := br.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	require.Nil(t, snap.ExternalIdentity)
	require.Equal(t, 1, f.identity.SignOutCalls)
}

func TestOrphanExternalSignalAfterAnonymousRecovery(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.bridge.Recover(context.Background()))
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)

	// A live provider identity with no backend session grants nothing.
	f.identity.FireSessionChange(&identity.Identity{Subject: "ext-stray", Email: "stray@example.com"})

	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Equal(t, 1, f.identity.SignOutCalls)
}

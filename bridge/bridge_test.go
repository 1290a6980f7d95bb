package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/backend/backendfakes"
	"github.com/inkspine/bookstore/bridge"
	"github.com/inkspine/bookstore/identity"
	"github.com/inkspine/bookstore/identity/identityfakes"
	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/internal/utils"
	"github.com/inkspine/bookstore/session"
	"github.com/inkspine/bookstore/session/storefakes"
	"github.com/inkspine/bookstore/users"
)

const (
	testEmail    = "jane.reader@example.com"
	testUsername = "janereader"
	testPassword = "Correct-Horse-42"
	testSubject  = "ext-jane.reader@example.com"

	adminUsername = "storeadmin"
	adminPassword = "admin-pass-99!"
)

// testFixture holds all bridge dependencies
type testFixture struct {
	store    *storefakes.FakeStore
	backend  *backendfakes.FakeClient
	identity *identityfakes.FakeClient
	bridge   *bridge.Bridge
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		store:    storefakes.NewFakeStore(),
		backend:  backendfakes.NewFakeClient(),
		identity: identityfakes.NewFakeClient(),
	}

	br, err := bridge.New(bridge.Deps{
		Store:    f.store,
		Backend:  f.backend,
		Identity: f.identity,
	})
	require.NoError(t, err)
	f.bridge = br

	return f
}

// seedShopper creates a matching backend account and provider identity, as a
// completed registration leaves behind.
func (f *testFixture) seedShopper(t *testing.T) *users.User {
	t.Helper()

	user := &users.User{
		ID:       "user-jane",
		Username: testUsername,
		Email:    testEmail,
		Role:     users.RoleShopper,
		IsActive: true,
	}
	f.backend.AddUser(user, testPassword, testSubject)
	f.identity.AddIdentity(&identity.Identity{Subject: testSubject, Email: testEmail}, testPassword)
	return user
}

func (f *testFixture) seedAdmin(t *testing.T) *users.User {
	t.Helper()

	admin := &users.User{
		ID:       "user-admin",
		Username: adminUsername,
		Email:    "admin@inkspine.example",
		Role:     users.RoleAdmin,
		IsActive: true,
	}
	f.backend.AddUser(admin, adminPassword, "")
	return admin
}

func TestRegisterCreatesBothRecordsAndAuthenticates(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    testEmail,
		Username: testUsername,
		Password: testPassword,
		Role:     users.RoleShopper,
	})
	require.NoError(t, err)
	require.Equal(t, bridge.EnrichmentFull, result.Enrichment)
	require.Equal(t, session.StatusAuthenticated, result.Session.Status)
	require.NotNil(t, result.Session.BackendUser)
	require.Equal(t, testEmail, result.Session.BackendUser.Email)
	require.NotNil(t, result.Session.ExternalIdentity)

	require.True(t, f.identity.HasIdentity(testEmail))

	stored := f.store.Stored()
	require.NotNil(t, stored)
	require.NotEmpty(t, stored.Token)
	require.NotNil(t, stored.User)
}

func TestRegisterBooksellerCarriesStoreName(t *testing.T) {
	f := setupTestFixture(t)

	profile := users.Profile{}
	profile.SetStoreName("Marginalia Books")

	result, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    "seller@example.com",
		Username: "marginalia",
		Password: testPassword,
		Role:     users.RoleBookseller,
		Profile:  profile,
	})
	require.NoError(t, err)
	require.Equal(t, users.RoleBookseller, result.Session.BackendUser.Role)
	require.Equal(t, "Marginalia Books", result.Session.BackendUser.Profile.StoreName())
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    testEmail,
		Username: testUsername,
		Password: testPassword,
		Role:     users.RoleAdmin,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Equal(t, 0, f.identity.Calls())
	require.Equal(t, 0, f.backend.RegisterCalls)
}

// Credential policy is the provider's, not the bridge's: any password the
// provider accepts proceeds through both phases.
func TestRegisterShortPasswordAccepted(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    "a@b.com",
		Password: "secret1",
		Role:     users.RoleShopper,
	})
	require.NoError(t, err)
	require.Equal(t, session.StatusAuthenticated, result.Session.Status)
	require.Equal(t, 1, f.identity.CreateIdentityCalls)
	require.True(t, f.identity.HasIdentity("a@b.com"))
	require.NotNil(t, f.store.Stored())
}

func TestRegisterShortPasswordStillReachesBackendAndRollsBack(t *testing.T) {
	f := setupTestFixture(t)

	// The backend already has this email.
	f.backend.AddUser(&users.User{
		ID:       "user-existing",
		Username: "someoneelse",
		Email:    "a@b.com",
		Role:     users.RoleShopper,
		IsActive: true,
	}, "other-password-1!", "ext-other")

	_, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    "a@b.com",
		Password: "secret1",
		Role:     users.RoleShopper,
	})
	require.ErrorIs(t, err, apperrors.ErrDuplicateAccount)

	// Phase 1 ran; the duplicate failure in phase 2 compensated it away.
	require.Equal(t, 1, f.identity.CreateIdentityCalls)
	require.Equal(t, 1, f.backend.RegisterCalls)
	require.False(t, f.identity.HasIdentity("a@b.com"))
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
}

func TestRegisterSurfacesProviderWeakCredential(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.CreateIdentityErr = apperrors.ErrWeakCredential

	_, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    testEmail,
		Username: testUsername,
		Password: "pw",
		Role:     users.RoleShopper,
	})
	require.ErrorIs(t, err, apperrors.ErrWeakCredential)
	// Phase 1 failed, so phase 2 never ran and there is nothing to compensate.
	require.Equal(t, 0, f.backend.RegisterCalls)
	require.Equal(t, 0, f.identity.DeleteIdentityCalls)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
}

func TestRegisterDuplicateBackendRollsBackExternalIdentity(t *testing.T) {
	f := setupTestFixture(t)

	// The backend already has this email; the provider does not.
	f.backend.AddUser(&users.User{
		ID:       "user-existing",
		Username: "someoneelse",
		Email:    testEmail,
		Role:     users.RoleShopper,
		IsActive: true,
	}, "other-password-1!", "ext-other")

	_, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    testEmail,
		Username: testUsername,
		Password: testPassword,
		Role:     users.RoleShopper,
	})
	require.ErrorIs(t, err, apperrors.ErrDuplicateAccount)

	// The compensating delete removed the freshly created identity.
	require.Equal(t, 1, f.identity.CreateIdentityCalls)
	require.Equal(t, 1, f.identity.DeleteIdentityCalls)
	require.False(t, f.identity.HasIdentity(testEmail))

	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Nil(t, f.store.Stored())
}

func TestRegisterCompensationFailureStillReturnsOriginalError(t *testing.T) {
	f := setupTestFixture(t)

	f.backend.RegisterErr = apperrors.ErrDuplicateAccount
	f.identity.DeleteIdentityErr = apperrors.ErrNetwork

	_, err := f.bridge.Register(context.Background(), bridge.NewUser{
		Email:    testEmail,
		Username: testUsername,
		Password: testPassword,
		Role:     users.RoleShopper,
	})
	// The caller sees the step failure, not the compensation failure.
	require.ErrorIs(t, err, apperrors.ErrDuplicateAccount)
	require.Equal(t, 1, f.identity.DeleteIdentityCalls)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
}

func TestLoginFullEnrichment(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	result, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)
	require.Equal(t, bridge.EnrichmentFull, result.Enrichment)
	require.Equal(t, session.StatusAuthenticated, result.Session.Status)
	require.NotNil(t, result.Session.ExternalIdentity)
	require.Equal(t, testSubject, result.Session.ExternalIdentity.Subject)

	stored := f.store.Stored()
	require.NotNil(t, stored)
	require.Equal(t, result.Session.BearerToken, stored.Token)
}

func TestLoginDegradedWhenExternalSignInFails(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)
	f.identity.SignInErr = apperrors.ErrNetwork

	result, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)
	require.Equal(t, bridge.EnrichmentDegraded, result.Enrichment)
	require.ErrorIs(t, result.EnrichmentErr, apperrors.ErrNetwork)
	require.Equal(t, session.StatusAuthenticated, result.Session.Status)
	require.Nil(t, result.Session.ExternalIdentity)

	// The session still persisted: backend data alone is sufficient.
	require.NotNil(t, f.store.Stored())
}

func TestLoginBadCredentialsSettlesAnonymous(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: "wrong-password",
	}, bridge.LoginTypeCredential)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	// The external provider was never consulted.
	require.Equal(t, 0, f.identity.SignInCalls)
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)
	user.IsActive = false

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.ErrorIs(t, err, apperrors.ErrInactiveAccount)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
}

func TestAdminLoginNeverTouchesProvider(t *testing.T) {
	f := setupTestFixture(t)
	f.seedAdmin(t)

	result, err := f.bridge.Login(context.Background(), backend.Credentials{
		Username: adminUsername,
		Password: adminPassword,
	}, bridge.LoginTypeAdmin)
	require.NoError(t, err)
	require.Equal(t, bridge.EnrichmentNone, result.Enrichment)
	require.Equal(t, session.StatusAuthenticated, result.Session.Status)
	require.Nil(t, result.Session.ExternalIdentity)
	require.True(t, result.Session.BackendUser.IsAdmin())

	require.Equal(t, 0, f.identity.Calls())
}

func TestAdminCannotUseShopperLogin(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.seedAdmin(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    admin.Email,
		Password: adminPassword,
	}, bridge.LoginTypeCredential)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Equal(t, 0, f.identity.Calls())
}

func TestSocialLoginProvisionsShopper(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.FederatedIdentity = &identity.Identity{
		Subject: "google-123",
		Email:   "social@example.com",
		Name:    "Social Reader",
	}

	result, err := f.bridge.SocialLogin(context.Background())
	require.NoError(t, err)
	require.Equal(t, bridge.EnrichmentFull, result.Enrichment)
	require.Equal(t, session.StatusAuthenticated, result.Session.Status)
	require.Equal(t, users.RoleShopper, result.Session.BackendUser.Role)
	require.NotNil(t, result.Session.ExternalIdentity)
	require.Equal(t, "google-123", result.Session.ExternalIdentity.Subject)
}

func TestSocialLoginBackendRejectionSignsOutProvider(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.FederatedIdentity = &identity.Identity{
		Subject: "google-123",
		Email:   "social@example.com",
	}
	f.backend.SocialLoginErr = apperrors.ErrInactiveAccount

	_, err := f.bridge.SocialLogin(context.Background())
	require.ErrorIs(t, err, apperrors.ErrInactiveAccount)

	// Rollback: the provider session must not outlive the failed exchange.
	require.Equal(t, 1, f.identity.SignOutCalls)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Nil(t, f.store.Stored())
}

func TestSocialLoginUnprovisionableSubjectIsInconsistent(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.FederatedIdentity = &identity.Identity{
		Subject: "google-123",
		Email:   "social@example.com",
	}
	f.backend.SocialLoginErr = apperrors.ErrUserNotFound

	_, err := f.bridge.SocialLogin(context.Background())
	require.ErrorIs(t, err, apperrors.ErrInconsistentIdentity)
	require.Equal(t, 1, f.identity.SignOutCalls)
}

func TestSocialLoginCancelled(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.bridge.SocialLogin(context.Background())
	require.ErrorIs(t, err, apperrors.ErrFederatedCancelled)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Equal(t, 0, f.backend.SocialLoginCalls)
}

func TestRefreshProfilePicksUpRoleChange(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	user.Role = users.RoleBookseller

	refreshed, err := f.bridge.RefreshProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, users.RoleBookseller, refreshed.Role)

	snap := f.bridge.Snapshot()
	require.Equal(t, users.RoleBookseller, snap.Role())
	require.Equal(t, session.StatusAuthenticated, snap.Status)
}

func TestRefreshProfileInvalidTokenTearsDownSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	f.backend.RevokeAllTokens()

	_, err = f.bridge.RefreshProfile(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Nil(t, f.store.Stored())
	// The linked external identity was signed out best-effort.
	require.Equal(t, 1, f.identity.SignOutCalls)
}

func TestRefreshProfileTransientFailureKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	f.backend.RefreshProfileErr = apperrors.ErrNetwork

	_, err = f.bridge.RefreshProfile(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNetwork)

	snap := f.bridge.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	require.NotNil(t, f.store.Stored())
}

func TestRefreshProfileWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.bridge.RefreshProfile(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Equal(t, 0, f.backend.RefreshProfileCalls)
}

func TestLogoutClearsSynchronouslyAndOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	var observed []session.Status
	f.bridge.OnChange(func(s session.Session) {
		observed = append(observed, s.Status)
	})

	require.NoError(t, f.bridge.Logout(context.Background()))
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Nil(t, f.store.Stored())
	require.Equal(t, 1, f.store.ClearCalls)
	require.Equal(t, 1, f.identity.SignOutCalls)

	// The change notification already carried the anonymous state: local
	// clearing precedes the provider sign-out.
	require.NotEmpty(t, observed)
	require.Equal(t, session.StatusAnonymous, observed[0])

	// Logging out again is a no-op.
	require.NoError(t, f.bridge.Logout(context.Background()))
	require.Equal(t, 1, f.store.ClearCalls)
	require.Equal(t, 1, f.identity.SignOutCalls)
}

func TestLogoutSignOutFailureStillClears(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	f.identity.SignOutErr = apperrors.ErrNetwork

	err = f.bridge.Logout(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.Equal(t, session.StatusAnonymous, f.bridge.Snapshot().Status)
	require.Nil(t, f.store.Stored())
}

func TestLogoutWithoutExternalIdentitySkipsSignOut(t *testing.T) {
	f := setupTestFixture(t)
	f.seedAdmin(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Username: adminUsername,
		Password: adminPassword,
	}, bridge.LoginTypeAdmin)
	require.NoError(t, err)

	require.NoError(t, f.bridge.Logout(context.Background()))
	require.Equal(t, 0, f.identity.Calls())
}

// blockingBackend wraps a backend client, holding Login until released so
// tests can observe mid-operation behaviour deterministically.
type blockingBackend struct {
	backend.Client
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Login(ctx context.Context, creds backend.Credentials) (*backend.AuthResponse, error) {
	close(b.entered)
	<-b.release
	return b.Client.Login(ctx, creds)
}

func TestConcurrentOperationRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	blocking := &blockingBackend{
		Client:  f.backend,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	br, err := bridge.New(bridge.Deps{
		Store:    f.store,
		Backend:  blocking,
		Identity: f.identity,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := br.Login(context.Background(), backend.Credentials{
			Email:    testEmail,
			Password: testPassword,
		}, bridge.LoginTypeCredential)
		done <- err
	}()

	<-blocking.entered
	require.Equal(t, session.StatusResolving, br.Snapshot().Status)

	// A second operation while the first is resolving is rejected outright.
	_, err = br.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.ErrorIs(t, err, apperrors.ErrOperationInFlight)

	close(blocking.release)
	require.NoError(t, <-done)
	require.Equal(t, session.StatusAuthenticated, br.Snapshot().Status)
}

func TestLogoutSupersedesInFlightLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	blocking := &blockingBackend{
		Client:  f.backend,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	br, err := bridge.New(bridge.Deps{
		Store:    f.store,
		Backend:  blocking,
		Identity: f.identity,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := br.Login(context.Background(), backend.Credentials{
			Email:    testEmail,
			Password: testPassword,
		}, bridge.LoginTypeCredential)
		done <- err
	}()

	<-blocking.entered
	require.NoError(t, br.Logout(context.Background()))
	require.Equal(t, session.StatusAnonymous, br.Snapshot().Status)

	close(blocking.release)

	// The login's late result is discarded, never resurrecting the session.
	err = <-done
	require.ErrorIs(t, err, apperrors.ErrSuperseded)
	require.Equal(t, session.StatusAnonymous, br.Snapshot().Status)
	require.Nil(t, f.store.Stored())
}

func TestUpdateExternalProfile(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	err = f.bridge.UpdateExternalProfile(context.Background(), identity.ProfileUpdate{
		DisplayName: utils.Ptr("Jane the Reader"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.identity.UpdateProfileCalls)

	snap := f.bridge.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	require.Equal(t, "Jane the Reader", snap.ExternalIdentity.Name)
}

func TestUpdateExternalProfileRequiresExternalIdentity(t *testing.T) {
	f := setupTestFixture(t)
	f.seedAdmin(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Username: adminUsername,
		Password: adminPassword,
	}, bridge.LoginTypeAdmin)
	require.NoError(t, err)

	err = f.bridge.UpdateExternalProfile(context.Background(), identity.ProfileUpdate{
		DisplayName: utils.Ptr("New Name"),
	})
	require.ErrorIs(t, err, apperrors.ErrIdentityNotFound)
	require.Equal(t, 0, f.identity.UpdateProfileCalls)
	require.Equal(t, session.StatusAuthenticated, f.bridge.Snapshot().Status)
}

func TestUpdateExternalProfileProviderFailureKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	f.identity.UpdateProfileErr = apperrors.ErrNetwork

	err = f.bridge.UpdateExternalProfile(context.Background(), identity.ProfileUpdate{
		DisplayName: utils.Ptr("New Name"),
	})
	require.ErrorIs(t, err, apperrors.ErrNetwork)

	snap := f.bridge.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	require.NotEqual(t, "New Name", snap.ExternalIdentity.Name)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	snap := f.bridge.Snapshot()
	snap.BackendUser.Email = "tampered@example.com"

	require.Equal(t, testEmail, f.bridge.Snapshot().BackendUser.Email)
}

func TestProviderSignOutSignalDropsExternalIdentityOnly(t *testing.T) {
	f := setupTestFixture(t)
	f.seedShopper(t)

	require.NoError(t, f.bridge.Recover(context.Background()))

	_, err := f.bridge.Login(context.Background(), backend.Credentials{
		Email:    testEmail,
		Password: testPassword,
	}, bridge.LoginTypeCredential)
	require.NoError(t, err)

	// The provider session expires out-of-band.
	f.identity.FireSessionChange(nil)

	// Deadline for the asynchronous notification to settle.
	require.Eventually(t, func() bool {
		snap := f.bridge.Snapshot()
		return snap.Status == session.StatusAuthenticated && snap.ExternalIdentity == nil
	}, time.Second, 10*time.Millisecond)
}

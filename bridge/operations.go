package bridge

import (
	"context"

	"github.com/pkg/errors"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/identity"
	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/session"
	"github.com/inkspine/bookstore/users"
)

// NewUser is the registration input for shopper and bookseller accounts.
// Admin accounts are provisioned out-of-band and never pass through here.
type NewUser struct {
	Email    string
	Username string
	Password string
	Role     users.RoleType
	Profile  users.Profile
}

// Register runs the two-phase registration saga: create the external identity,
// then register at the backend with the identity's handle. If the backend
// rejects the registration, the external identity is deleted so no orphan
// survives a failed registration. Credential policy belongs to the provider;
// a rejected password surfaces as the phase-1 failure.
func (b *Bridge) Register(ctx context.Context, newUser NewUser) (*Result, error) {
	if newUser.Role == users.RoleAdmin || !newUser.Role.Valid() {
		return nil, errors.Wrap(apperrors.ErrValidation, "[Bridge.Register] role not registrable")
	}

	seq, prev, err := b.beginOp()
	if err != nil {
		return nil, errors.Wrap(err, "[Bridge.Register]")
	}

	var (
		ident *identity.Identity
		resp  *backend.AuthResponse
	)

	sagaErr := b.runSaga(ctx, []sagaStep{
		{
			name: "create external identity",
			run: func(ctx context.Context) error {
				created, err := b.deps.Identity.CreateIdentity(ctx, newUser.Email, newUser.Password)
				if err != nil {
					return errors.Wrap(err, "[Bridge.Register] CreateIdentity")
				}
				ident = created
				return nil
			},
			compensate: func(ctx context.Context) error {
				return b.deps.Identity.DeleteIdentity(ctx, ident)
			},
		},
		{
			name: "backend registration",
			run: func(ctx context.Context) error {
				registered, err := b.deps.Backend.Register(ctx, backend.Registration{
					Email:           newUser.Email,
					Username:        newUser.Username,
					Password:        newUser.Password,
					Role:            newUser.Role,
					Profile:         newUser.Profile,
					ExternalSubject: ident.Subject,
				})
				if err != nil {
					return errors.Wrap(err, "[Bridge.Register] backend registration")
				}
				resp = registered
				return nil
			},
		},
	})
	if sagaErr != nil {
		b.failOp(seq, prev)
		return nil, sagaErr
	}

	return b.completeAuth(seq, resp, ident, EnrichmentFull, nil)
}

// Login authenticates against the backend first, since it is authoritative
// for roles and active status. Only then, for non-admin logins, does it sign
// in at the external provider to obtain the identity handle. The external
// step is best-effort enrichment, not a hard dependency.
func (b *Bridge) Login(ctx context.Context, creds backend.Credentials, loginType LoginType) (*Result, error) {
	seq, prev, err := b.beginOp()
	if err != nil {
		return nil, errors.Wrap(err, "[Bridge.Login]")
	}

	if loginType == LoginTypeAdmin {
		resp, err := b.deps.Backend.AdminLogin(ctx, creds)
		if err != nil {
			b.failOp(seq, prev)
			return nil, errors.Wrap(err, "[Bridge.Login] admin login")
		}
		return b.completeAuth(seq, resp, nil, EnrichmentNone, nil)
	}

	resp, err := b.deps.Backend.Login(ctx, creds)
	if err != nil {
		b.failOp(seq, prev)
		return nil, errors.Wrap(err, "[Bridge.Login] backend login")
	}

	ident, signInErr := b.deps.Identity.SignIn(ctx, creds.Email, creds.Password)
	if signInErr != nil {
		b.logger.Warn().Err(signInErr).Msg("external sign-in failed after backend accepted credentials; continuing on backend data alone")
		return b.completeAuth(seq, resp, nil, EnrichmentDegraded, signInErr)
	}

	return b.completeAuth(seq, resp, ident, EnrichmentFull, nil)
}

// SocialLogin establishes the external identity first (the provider performs
// the credential challenge), then exchanges its handle at the backend's
// social-login endpoint.
func (b *Bridge) SocialLogin(ctx context.Context) (*Result, error) {
	seq, prev, err := b.beginOp()
	if err != nil {
		return nil, errors.Wrap(err, "[Bridge.SocialLogin]")
	}

	ident, err := b.deps.Identity.SignInFederated(ctx)
	if err != nil {
		b.failOp(seq, prev)
		return nil, errors.Wrap(err, "[Bridge.SocialLogin] federated sign-in")
	}

	return b.socialExchange(ctx, seq, prev, ident)
}

// SocialLoginWith completes a social login for an identity the caller already
// established (e.g. via the federated callback route).
func (b *Bridge) SocialLoginWith(ctx context.Context, ident *identity.Identity) (*Result, error) {
	seq, prev, err := b.beginOp()
	if err != nil {
		return nil, errors.Wrap(err, "[Bridge.SocialLoginWith]")
	}
	return b.socialExchange(ctx, seq, prev, ident)
}

func (b *Bridge) socialExchange(ctx context.Context, seq uint64, prev session.Session, ident *identity.Identity) (*Result, error) {
	resp, err := b.deps.Backend.SocialLogin(ctx, backend.ExternalProfile{
		Subject: ident.Subject,
		Email:   ident.Email,
		Name:    ident.Name,
	})
	if err != nil {
		// The registration rollback pattern applied to the social path: a
		// signed-in external identity with no backend record must not
		// survive the failure.
		if signOutErr := b.deps.Identity.SignOut(ctx); signOutErr != nil {
			b.logger.Error().Err(signOutErr).
				Str("subject", ident.Subject).
				Msg("external sign-out failed after social-login rollback")
		}
		b.failOp(seq, prev)
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return nil, errors.Wrap(apperrors.ErrInconsistentIdentity, "[Bridge.SocialLogin] backend refused to provision for external subject")
		}
		return nil, errors.Wrap(err, "[Bridge.SocialLogin] backend social login")
	}

	return b.completeAuth(seq, resp, ident, EnrichmentFull, nil)
}

// RefreshProfile re-reads the backend profile for the authenticated session,
// mutating it in place so role and active-flag changes become visible. An
// unauthorized response means the token was invalidated server-side and the
// session is torn down.
func (b *Bridge) RefreshProfile(ctx context.Context) (*users.User, error) {
	seq, prev, err := b.beginOp()
	if err != nil {
		return nil, errors.Wrap(err, "[Bridge.RefreshProfile]")
	}

	if prev.Status != session.StatusAuthenticated {
		b.finishOp(seq, func() { b.sess = prev })
		return nil, errors.Wrap(apperrors.ErrUnauthorized, "[Bridge.RefreshProfile] no authenticated session")
	}

	user, err := b.deps.Backend.RefreshProfile(ctx, prev.BearerToken)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthorized) {
			b.finishOp(seq, func() {
				b.deps.Store.Clear()
				b.sess = session.Session{Status: session.StatusAnonymous}
			})
			if prev.ExternalIdentity != nil {
				if signOutErr := b.deps.Identity.SignOut(ctx); signOutErr != nil {
					b.logger.Warn().Err(signOutErr).Msg("best-effort external sign-out failed after token invalidation")
				}
			}
			return nil, errors.Wrap(err, "[Bridge.RefreshProfile] token invalidated")
		}
		// Transient failure: the existing session is left undisturbed.
		b.finishOp(seq, func() { b.sess = prev })
		return nil, errors.Wrap(err, "[Bridge.RefreshProfile] backend refresh")
	}

	applied := b.finishOp(seq, func() {
		if writeErr := b.deps.Store.Write(prev.BearerToken, user); writeErr != nil {
			b.logger.Warn().Err(writeErr).Msg("session persist failed; session will not survive a reload")
		}
		b.sess = session.Session{
			ExternalIdentity: prev.ExternalIdentity,
			BackendUser:      user,
			BearerToken:      prev.BearerToken,
			Status:           session.StatusAuthenticated,
		}
	})
	if !applied {
		return nil, errors.Wrap(apperrors.ErrSuperseded, "[Bridge.RefreshProfile]")
	}
	return user, nil
}

// UpdateExternalProfile pushes changed attributes to the provider account and
// mirrors them on the session's external identity. Admin sessions have no
// external identity and are rejected.
func (b *Bridge) UpdateExternalProfile(ctx context.Context, update identity.ProfileUpdate) error {
	seq, prev, err := b.beginOp()
	if err != nil {
		return errors.Wrap(err, "[Bridge.UpdateExternalProfile]")
	}

	if prev.Status != session.StatusAuthenticated || prev.ExternalIdentity == nil {
		b.finishOp(seq, func() { b.sess = prev })
		return errors.Wrap(apperrors.ErrIdentityNotFound, "[Bridge.UpdateExternalProfile] no external identity on session")
	}

	if err := b.deps.Identity.UpdateProfile(ctx, prev.ExternalIdentity, update); err != nil {
		b.finishOp(seq, func() { b.sess = prev })
		return errors.Wrap(err, "[Bridge.UpdateExternalProfile] provider update")
	}

	applied := b.finishOp(seq, func() {
		b.sess = prev
		if update.Email != nil {
			b.sess.ExternalIdentity.Email = *update.Email
		}
		if update.DisplayName != nil {
			b.sess.ExternalIdentity.Name = *update.DisplayName
		}
	})
	if !applied {
		return errors.Wrap(apperrors.ErrSuperseded, "[Bridge.UpdateExternalProfile]")
	}
	return nil
}

// Logout clears local state and storage synchronously first, so the UI (and
// every guard) observes logged-out status before the network sign-out is even
// issued. The provider sign-out that follows is best-effort: its failure is
// returned for logging but never re-establishes the session. Calling Logout
// again while a previous call is still completing is a no-op.
func (b *Bridge) Logout(ctx context.Context) error {
	b.mu.Lock()
	if b.sess.Status == session.StatusAnonymous {
		b.mu.Unlock()
		return nil
	}
	hadExternal := b.sess.ExternalIdentity != nil

	// Supersede any in-flight operation; its result will be discarded.
	b.seq++
	b.opActive = false
	b.pendingExternal = nil
	b.sess = session.Session{Status: session.StatusAnonymous}
	b.deps.Store.Clear()
	b.mu.Unlock()

	b.notifyChange()

	if !hadExternal {
		return nil
	}
	if err := b.deps.Identity.SignOut(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("external sign-out failed after logout; session already cleared")
		return errors.Wrap(err, "[Bridge.Logout] external sign-out")
	}
	return nil
}

// completeAuth installs a successful authentication result. Store write and
// session replacement happen as one atomic step under the bridge lock.
func (b *Bridge) completeAuth(seq uint64, resp *backend.AuthResponse, ident *identity.Identity, enrichment Enrichment, enrichmentErr error) (*Result, error) {
	var snap session.Session
	applied := b.finishOp(seq, func() {
		if err := b.deps.Store.Write(resp.Token, resp.User); err != nil {
			b.logger.Warn().Err(err).Msg("session persist failed; session will not survive a reload")
		}
		if resp.User.IsAdmin() {
			// Admin sessions are backend-only; never attach an external
			// identity to one.
			ident = nil
			enrichment = EnrichmentNone
		}
		b.sess = session.Session{
			ExternalIdentity: ident,
			BackendUser:      resp.User,
			BearerToken:      resp.Token,
			Status:           session.StatusAuthenticated,
		}
		snap = b.sess.Clone()
	})
	if !applied {
		return nil, errors.Wrap(apperrors.ErrSuperseded, "[bridge.completeAuth] result discarded")
	}

	return &Result{Session: snap, Enrichment: enrichment, EnrichmentErr: enrichmentErr}, nil
}

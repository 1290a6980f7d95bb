package bridge

import (
	"context"

	"github.com/pkg/errors"

	"github.com/inkspine/bookstore/identity"
	"github.com/inkspine/bookstore/session"
)

// Recover runs the startup reconciliation once: it subscribes to the external
// provider's session-change notifications and independently attempts a backend
// profile refresh with any persisted bearer token. The two signals race; a
// successful backend refresh always wins over a positive external signal, and
// a positive external signal is only attached once the backend corroborates
// it. Resolving to anonymous is a normal outcome, not an error.
func (b *Bridge) Recover(ctx context.Context) error {
	b.mu.Lock()
	if b.recovered {
		b.mu.Unlock()
		return nil
	}
	b.recovered = true
	b.mu.Unlock()

	seq, _, err := b.beginOp()
	if err != nil {
		return errors.Wrap(err, "[Bridge.Recover]")
	}

	// Subscribe before the refresh is issued, so a provider notification can
	// never be missed. The subscription outlives recovery and keeps handling
	// out-of-band provider changes for the life of the bridge.
	unsub := b.deps.Identity.OnSessionChange(b.handleSessionChange)
	b.mu.Lock()
	b.unsubscribe = unsub
	b.mu.Unlock()

	creds, readErr := b.deps.Store.Read()
	if readErr != nil {
		b.logger.Warn().Err(readErr).Msg("session store unreadable at startup")
	}
	if creds == nil {
		orphan := b.resolveAnonymous(seq, readErr != nil)
		b.teardownOrphan(ctx, orphan)
		return nil
	}

	user, refreshErr := b.deps.Backend.RefreshProfile(ctx, creds.Token)
	if refreshErr != nil {
		// Stale or rejected token: clear storage and settle anonymous. Not
		// retried; the next login starts fresh.
		b.logger.Info().Err(refreshErr).Msg("startup profile refresh failed; session not recovered")
		orphan := b.resolveAnonymous(seq, true)
		b.teardownOrphan(ctx, orphan)
		return nil
	}

	var orphan *identity.Identity
	applied := b.finishOp(seq, func() {
		var ident *identity.Identity
		if b.pendingExternal != nil {
			if user.IsAdmin() {
				orphan = b.pendingExternal
			} else {
				ident = b.pendingExternal
			}
		}
		if writeErr := b.deps.Store.Write(creds.Token, user); writeErr != nil {
			b.logger.Warn().Err(writeErr).Msg("session persist failed during recovery")
		}
		b.sess = session.Session{
			ExternalIdentity: ident,
			BackendUser:      user,
			BearerToken:      creds.Token,
			Status:           session.StatusAuthenticated,
		}
	})
	if !applied {
		return nil
	}
	b.teardownOrphan(ctx, orphan)
	return nil
}

// resolveAnonymous settles a failed recovery, returning any parked positive
// external signal so the caller can sign it out.
func (b *Bridge) resolveAnonymous(seq uint64, clearStore bool) (orphan *identity.Identity) {
	b.finishOp(seq, func() {
		orphan = b.pendingExternal
		if clearStore {
			b.deps.Store.Clear()
		}
		b.sess = session.Session{Status: session.StatusAnonymous}
	})
	return orphan
}

// teardownOrphan signs out an external identity that the backend did not
// corroborate. It grants no application capability and must not be presented
// to the UI as logged in.
func (b *Bridge) teardownOrphan(ctx context.Context, orphan *identity.Identity) {
	if orphan == nil {
		return
	}
	b.logger.Warn().Str("subject", orphan.Subject).Msg("external identity has no backend counterpart; signing out")
	if err := b.deps.Identity.SignOut(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("best-effort external sign-out failed")
	}
}

// Package bridge reconciles the external identity provider and the
// application backend into one consistent Session. It is the only writer of
// the session store and the only component that may call both clients in the
// same transaction.
package bridge

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/inkspine/bookstore/backend"
	"github.com/inkspine/bookstore/identity"
	apperrors "github.com/inkspine/bookstore/internal/errors"
	"github.com/inkspine/bookstore/session"
)

// LoginType selects the request shape and target endpoint for Login.
type LoginType string

const (
	// LoginTypeCredential is the email+password login for shoppers and
	// booksellers.
	LoginTypeCredential LoginType = "credential"
	// LoginTypeAdmin is the username+password login against the admin-only
	// endpoint. It never touches the external provider.
	LoginTypeAdmin LoginType = "admin"
)

// Enrichment reports whether the external identity was attached to an
// otherwise complete backend authentication.
type Enrichment string

const (
	// EnrichmentFull means the external identity is linked.
	EnrichmentFull Enrichment = "full"
	// EnrichmentDegraded means the backend accepted the credentials but the
	// external sign-in failed; the session is authenticated on backend data
	// alone.
	EnrichmentDegraded Enrichment = "degraded"
	// EnrichmentNone means no external identity applies (admin sessions).
	EnrichmentNone Enrichment = "none"
)

// Result is the outcome of a successful authentication operation.
type Result struct {
	Session    session.Session
	Enrichment Enrichment
	// EnrichmentErr is set when Enrichment is EnrichmentDegraded.
	EnrichmentErr error
}

// Deps holds the bridge's collaborator dependencies.
type Deps struct {
	Store    session.Store   // Durable persistence of the credential pair
	Backend  backend.Client  // Application backend session endpoints
	Identity identity.Client // External identity provider
}

// Bridge owns the session reconciliation state machine. Construct exactly one
// per running client and pass it by reference to consumers; there are no
// package-level globals.
type Bridge struct {
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	sess     session.Session
	seq      uint64 // monotonic operation sequence; stale results are discarded
	opActive bool
	// pendingExternal parks a positive provider signal that arrived while an
	// operation was resolving, until the backend result corroborates it.
	pendingExternal *identity.Identity
	recovered       bool
	unsubscribe     func()
	onChange        []func(session.Session)
}

// Option configures the Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for compensation and best-effort failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New constructs the bridge in the unresolved state. Recover must be called
// once at application startup.
func New(deps Deps, options ...Option) (*Bridge, error) {
	if deps.Store == nil {
		return nil, errors.New("[bridge.New] Store is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("[bridge.New] Backend client is required")
	}
	if deps.Identity == nil {
		return nil, errors.New("[bridge.New] Identity client is required")
	}

	b := &Bridge{
		deps:   deps,
		logger: zerolog.Nop(),
		sess:   session.Session{Status: session.StatusUnresolved},
	}

	for _, opt := range options {
		opt(b)
	}

	return b, nil
}

// Snapshot returns a consistent copy of the current session. Partial writes
// are never observable.
func (b *Bridge) Snapshot() session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess.Clone()
}

// OnChange registers a callback invoked with a session snapshot after every
// state change.
func (b *Bridge) OnChange(fn func(session.Session)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = append(b.onChange, fn)
}

// Close unsubscribes from provider session-change notifications.
func (b *Bridge) Close() {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// beginOp marks the start of a top-level operation. A second invocation while
// one is resolving is rejected outright so its writes can never interleave
// with the first invocation's writes.
func (b *Bridge) beginOp() (seq uint64, prev session.Session, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opActive {
		return 0, session.Session{}, errors.Wrap(apperrors.ErrOperationInFlight, "[bridge.beginOp]")
	}
	b.opActive = true
	b.seq++
	prev = b.sess.Clone()
	b.sess.Status = session.StatusResolving
	return b.seq, prev, nil
}

// finishOp applies an operation's result, unless the operation was superseded
// (its sequence number is stale), in which case the result is discarded.
// apply runs under the bridge lock, so session mutation and store writes are
// a single atomic step to every reader.
func (b *Bridge) finishOp(seq uint64, apply func()) (applied bool) {
	b.mu.Lock()
	if seq != b.seq {
		b.mu.Unlock()
		return false
	}
	b.opActive = false
	apply()
	b.pendingExternal = nil
	b.mu.Unlock()

	b.notifyChange()
	return true
}

// failOp resolves a failed operation: back to anonymous when the caller was
// not authenticated before, otherwise the previous session is restored
// untouched.
func (b *Bridge) failOp(seq uint64, prev session.Session) {
	b.finishOp(seq, func() {
		if prev.Status == session.StatusAuthenticated {
			b.sess = prev
			return
		}
		b.sess = session.Session{Status: session.StatusAnonymous}
	})
}

func (b *Bridge) notifyChange() {
	b.mu.Lock()
	fns := make([]func(session.Session), len(b.onChange))
	copy(fns, b.onChange)
	snap := b.sess.Clone()
	b.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// handleSessionChange receives the provider's out-of-band session
// notifications for the life of the bridge.
func (b *Bridge) handleSessionChange(ident *identity.Identity) {
	b.mu.Lock()

	if b.opActive {
		// An operation is resolving; park the signal for its completion.
		b.pendingExternal = ident
		b.mu.Unlock()
		return
	}

	if ident == nil {
		// Provider session ended independently (e.g. expired). Backend data
		// alone keeps the session authenticated.
		if b.sess.ExternalIdentity != nil {
			b.sess.ExternalIdentity = nil
			b.mu.Unlock()
			b.notifyChange()
			return
		}
		b.mu.Unlock()
		return
	}

	if b.sess.Status == session.StatusAuthenticated && b.sess.BackendUser != nil && !b.sess.BackendUser.IsAdmin() {
		b.sess.ExternalIdentity = ident
		b.mu.Unlock()
		b.notifyChange()
		return
	}
	b.mu.Unlock()

	// A live external identity with no backend counterpart grants no
	// capability and must not be presented as logged in.
	b.logger.Warn().Str("subject", ident.Subject).Msg("external identity without backend session; signing out")
	if err := b.deps.Identity.SignOut(context.Background()); err != nil {
		b.logger.Warn().Err(err).Msg("best-effort external sign-out failed")
	}
}

package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	apperrors "github.com/inkspine/bookstore/internal/errors"
)

const (
	stateLength    = 32
	verifierLength = 32
	pendingTimeout = 15 * time.Minute
)

// Options configures the OIDC identity provider client.
type Options struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// HTTPClient overrides the transport used for the provider's account
	// management endpoints (create/delete/update). Defaults to a client with
	// a 10s timeout.
	HTTPClient *http.Client
}

type pendingFederated struct {
	nonce     string
	verifier  string
	createdAt time.Time
	done      chan federatedResult
}

type federatedResult struct {
	ident *Identity
	err   error
}

// OidcClient implements Client against an OIDC provider. Credential sign-in
// uses the resource-owner password grant; federated sign-in uses the
// authorization-code flow with PKCE.
type OidcClient struct {
	issuerURL  string
	provider   *oidc.Provider
	oauthCfg   *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client

	mu          sync.Mutex
	pending     map[string]*pendingFederated // state -> in-flight federated flow
	subscribers map[int]SessionChangeFunc
	nextSubID   int
	current     *Identity
	token       *oauth2.Token
}

var _ Client = (*OidcClient)(nil)

// NewOidcClient discovers the provider's endpoints and builds the client.
func NewOidcClient(ctx context.Context, opts Options) (*OidcClient, error) {
	provider, err := oidc.NewProvider(ctx, opts.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOidcClient] oidc provider discovery")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &OidcClient{
		issuerURL:   strings.TrimRight(opts.IssuerURL, "/"),
		provider:    provider,
		oauthCfg:    oauthCfg,
		verifier:    provider.Verifier(&oidc.Config{ClientID: opts.ClientID}),
		httpClient:  httpClient,
		pending:     make(map[string]*pendingFederated),
		subscribers: make(map[int]SessionChangeFunc),
	}, nil
}

// CreateIdentity registers a credential identity via the provider's account
// endpoint.
func (c *OidcClient) CreateIdentity(ctx context.Context, email, password string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, errors.Wrap(err, "[OidcClient.CreateIdentity] marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL(""), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "[OidcClient.CreateIdentity] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.oauthCfg.ClientID, c.oauthCfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrNetwork, "[OidcClient.CreateIdentity] "+err.Error())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return nil, errors.Wrap(apperrors.ErrDuplicateAccount, "[OidcClient.CreateIdentity] email already registered at provider")
	case http.StatusBadRequest:
		return nil, errors.Wrap(apperrors.ErrWeakCredential, "[OidcClient.CreateIdentity] provider rejected credential")
	default:
		return nil, errors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("[OidcClient.CreateIdentity] unexpected status %d", resp.StatusCode))
	}

	var created struct {
		Sub string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, errors.Wrap(err, "[OidcClient.CreateIdentity] decode response")
	}

	return &Identity{Subject: created.Sub, Email: email}, nil
}

// SignIn authenticates with the resource-owner password grant and verifies the
// returned ID token.
func (c *OidcClient) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	token, err := c.oauthCfg.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		if retrieveErr, ok := err.(*oauth2.RetrieveError); ok && retrieveErr.Response != nil && retrieveErr.Response.StatusCode < 500 {
			return nil, errors.Wrap(apperrors.ErrInvalidCredentials, "[OidcClient.SignIn] password grant rejected")
		}
		return nil, errors.Wrap(apperrors.ErrNetwork, "[OidcClient.SignIn] "+err.Error())
	}

	ident, err := c.identityFromToken(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "[OidcClient.SignIn] identityFromToken")
	}

	c.setCurrent(ident, token)
	return ident, nil
}

// BeginFederated starts an authorization-code + PKCE flow and returns the URL
// the user agent must visit. The flow is completed by CompleteFederated with
// the state and code delivered to the redirect URL.
func (c *OidcClient) BeginFederated(ctx context.Context) (authURL, state string, err error) {
	authURL, state, _, err = c.beginFederated(ctx)
	return authURL, state, err
}

// beginFederated registers a new pending flow and hands back its handle so the
// caller can wait on it without looking the state up again.
func (c *OidcClient) beginFederated(ctx context.Context) (authURL, state string, flow *pendingFederated, err error) {
	state, err = randomString(stateLength)
	if err != nil {
		return "", "", nil, errors.Wrap(err, "[OidcClient.beginFederated] state generation")
	}
	nonce, err := randomString(stateLength)
	if err != nil {
		return "", "", nil, errors.Wrap(err, "[OidcClient.beginFederated] nonce generation")
	}
	codeVerifier, err := randomString(verifierLength)
	if err != nil {
		return "", "", nil, errors.Wrap(err, "[OidcClient.beginFederated] verifier generation")
	}

	flow = &pendingFederated{
		nonce:     nonce,
		verifier:  codeVerifier,
		createdAt: time.Now(),
		done:      make(chan federatedResult, 1),
	}
	c.mu.Lock()
	c.expirePendingLocked()
	c.pending[state] = flow
	c.mu.Unlock()

	challenge := base64.RawURLEncoding.EncodeToString(func() []byte {
		h := sha256.Sum256([]byte(codeVerifier))
		return h[:]
	}())

	authURL = c.oauthCfg.AuthCodeURL(state,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	return authURL, state, flow, nil
}

// CompleteFederated exchanges the authorization code, verifies the ID token
// and nonce, and resolves any SignInFederated call waiting on this state.
func (c *OidcClient) CompleteFederated(ctx context.Context, state, code string) (*Identity, error) {
	c.mu.Lock()
	flow, ok := c.pending[state]
	if ok {
		delete(c.pending, state)
	}
	c.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(apperrors.ErrFederatedCancelled, "[OidcClient.CompleteFederated] unknown or expired state")
	}

	ident, err := c.exchangeAndVerify(ctx, flow, code)
	flow.done <- federatedResult{ident: ident, err: err}
	if err != nil {
		return nil, errors.Wrap(err, "[OidcClient.CompleteFederated] exchangeAndVerify")
	}
	return ident, nil
}

// SignInFederated blocks until the federated flow started here is completed
// via CompleteFederated, or the context is cancelled.
func (c *OidcClient) SignInFederated(ctx context.Context) (*Identity, error) {
	_, state, flow, err := c.beginFederated(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[OidcClient.SignInFederated] beginFederated")
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, state)
		c.mu.Unlock()
		return nil, errors.Wrap(apperrors.ErrFederatedCancelled, "[OidcClient.SignInFederated] context done")
	case result := <-flow.done:
		if result.err != nil {
			return nil, errors.Wrap(result.err, "[OidcClient.SignInFederated] flow failed")
		}
		return result.ident, nil
	}
}

func (c *OidcClient) exchangeAndVerify(ctx context.Context, flow *pendingFederated, code string) (*Identity, error) {
	oauth2Token, err := c.oauthCfg.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", flow.verifier))
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrNetwork, "[exchangeAndVerify] token exchange: "+err.Error())
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[exchangeAndVerify] no ID token in response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[exchangeAndVerify] ID token verification")
	}

	var claims struct {
		Nonce string `json:"nonce"`
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[exchangeAndVerify] extract claims")
	}

	// Validate nonce to prevent replay attacks
	if claims.Nonce != flow.nonce {
		return nil, errors.New("[exchangeAndVerify] invalid nonce")
	}

	ident := &Identity{Subject: claims.Sub, Email: claims.Email, Name: claims.Name}
	c.setCurrent(ident, oauth2Token)
	return ident, nil
}

// SignOut revokes the provider session. Best-effort: failures are returned for
// logging but the local identity is dropped regardless.
func (c *OidcClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.current = nil
	c.token = nil
	c.mu.Unlock()

	c.notify(nil)

	if token == nil {
		return nil
	}

	form := url.Values{"token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.issuerURL+"/logout", strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[OidcClient.SignOut] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.oauthCfg.ClientID, c.oauthCfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(apperrors.ErrNetwork, "[OidcClient.SignOut] "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("[OidcClient.SignOut] unexpected status %d", resp.StatusCode))
	}
	return nil
}

// DeleteIdentity removes the provider account for the given identity.
func (c *OidcClient) DeleteIdentity(ctx context.Context, ident *Identity) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.accountsURL(ident.Subject), nil)
	if err != nil {
		return errors.Wrap(err, "[OidcClient.DeleteIdentity] build request")
	}
	req.SetBasicAuth(c.oauthCfg.ClientID, c.oauthCfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(apperrors.ErrNetwork, "[OidcClient.DeleteIdentity] "+err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(apperrors.ErrIdentityNotFound, "[OidcClient.DeleteIdentity] no such identity")
	case resp.StatusCode >= 400:
		return errors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("[OidcClient.DeleteIdentity] unexpected status %d", resp.StatusCode))
	}
	return nil
}

// UpdateProfile pushes changed attributes to the provider account endpoint.
func (c *OidcClient) UpdateProfile(ctx context.Context, ident *Identity, update ProfileUpdate) error {
	attrs := map[string]string{}
	if update.Email != nil {
		attrs["email"] = *update.Email
	}
	if update.DisplayName != nil {
		attrs["name"] = *update.DisplayName
	}
	if len(attrs) == 0 {
		return nil
	}

	body, err := json.Marshal(attrs)
	if err != nil {
		return errors.Wrap(err, "[OidcClient.UpdateProfile] marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.accountsURL(ident.Subject), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[OidcClient.UpdateProfile] build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.oauthCfg.ClientID, c.oauthCfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(apperrors.ErrNetwork, "[OidcClient.UpdateProfile] "+err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(apperrors.ErrIdentityNotFound, "[OidcClient.UpdateProfile] no such identity")
	case resp.StatusCode >= 400:
		return errors.Wrap(apperrors.ErrNetwork, fmt.Sprintf("[OidcClient.UpdateProfile] unexpected status %d", resp.StatusCode))
	}
	return nil
}

// OnSessionChange registers a session-change subscriber.
func (c *OidcClient) OnSessionChange(fn SessionChangeFunc) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *OidcClient) setCurrent(ident *Identity, token *oauth2.Token) {
	c.mu.Lock()
	c.current = ident
	c.token = token
	c.mu.Unlock()
	c.notify(ident)
}

func (c *OidcClient) notify(ident *Identity) {
	c.mu.Lock()
	fns := make([]SessionChangeFunc, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}

func (c *OidcClient) identityFromToken(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	if rawIDToken, ok := token.Extra("id_token").(string); ok {
		idToken, err := c.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "[identityFromToken] ID token verification")
		}
		var claims struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "[identityFromToken] extract claims")
		}
		return &Identity{Subject: claims.Sub, Email: claims.Email, Name: claims.Name}, nil
	}

	// Some providers omit the ID token on the password grant; fall back to the
	// UserInfo endpoint.
	info, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrNetwork, "[identityFromToken] userinfo: "+err.Error())
	}
	var claims struct {
		Name string `json:"name"`
	}
	_ = info.Claims(&claims)
	return &Identity{Subject: info.Subject, Email: info.Email, Name: claims.Name}, nil
}

func (c *OidcClient) accountsURL(subject string) string {
	if subject == "" {
		return c.issuerURL + "/accounts"
	}
	return c.issuerURL + "/accounts/" + url.PathEscape(subject)
}

// expirePendingLocked drops federated flows that were never completed.
// Callers must hold c.mu.
func (c *OidcClient) expirePendingLocked() {
	cutoff := time.Now().Add(-pendingTimeout)
	for state, flow := range c.pending {
		if flow.createdAt.Before(cutoff) {
			delete(c.pending, state)
		}
	}
}

func randomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

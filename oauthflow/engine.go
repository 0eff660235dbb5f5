// Package oauthflow implements the OAuth2 grants a form can be configured
// with: authorization-code with PKCE, client-credentials, and silent
// refresh. Flows are stateless per call; the only shared state is the
// process-wide callback listener a code flow borrows while it waits for the
// browser redirect.
package oauthflow

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/formdeck/formdeck/callback"
	"github.com/formdeck/formdeck/internal/errors"
)

// Engine runs OAuth2 grant flows on behalf of consumer surfaces.
type Engine struct {
	listener   *callback.Listener
	httpClient *http.Client
	openURL    func(url string) error
	log        zerolog.Logger
	nowTime    func() time.Time
}

// Option defines a function type to modify the Engine instance.
type Option func(*Engine)

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = client
	}
}

// WithBrowserOpener sets the function used to hand the authorization URL to
// the user's browser.
func WithBrowserOpener(open func(url string) error) Option {
	return func(e *Engine) {
		e.openURL = open
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(e *Engine) {
		e.nowTime = nowFunc
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

// NewEngine creates an Engine bound to the process-wide callback listener.
func NewEngine(listener *callback.Listener, options ...Option) (*Engine, error) {
	if listener == nil {
		return nil, errors.Wrapf(errors.ErrInternal, "[NewEngine] listener is required")
	}

	e := &Engine{
		listener:   listener,
		httpClient: http.DefaultClient,
		openURL:    OpenBrowser,
		log:        zerolog.Nop(),
		nowTime:    time.Now,
	}

	for _, opt := range options {
		opt(e)
	}

	return e, nil
}

// CodeChallenge derives the S256 PKCE challenge for a verifier:
// base64url(sha256(verifier)) with padding stripped.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// StartAuthorizationCode runs the full authorization-code + PKCE flow: it
// acquires the callback listener, opens the authorization URL in the user's
// browser, waits for the redirect, validates state, and exchanges the code.
// Returns the token and the redirect URL the flow was bound to.
func (e *Engine) StartAuthorizationCode(ctx context.Context, p Params) (TokenRecord, string, error) {
	if err := p.validateAuthCode(); err != nil {
		return TokenRecord{}, "", err
	}

	verifier := oauth2.GenerateVerifier()

	redirectURL, state, results, err := e.listener.Start(callback.NewState())
	if err != nil {
		return TokenRecord{}, "", err
	}

	cfg := p.config(redirectURL)
	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	if err := e.openURL(authURL); err != nil {
		return TokenRecord{}, redirectURL, errors.Wrapf(err, "[StartAuthorizationCode] open browser")
	}

	var res callback.Result
	var ok bool
	select {
	case res, ok = <-results:
		if !ok {
			return TokenRecord{}, redirectURL, errors.ErrListenerStopped
		}
	case <-ctx.Done():
		return TokenRecord{}, redirectURL, ctx.Err()
	}

	// The listener already rejects mismatched callbacks with a 400; this is
	// the flow's own check against the state it handed out.
	if res.State != state {
		return TokenRecord{}, redirectURL, errors.ErrInvalidState
	}
	if res.Code == "" {
		return TokenRecord{}, redirectURL, errors.ErrMissingCode
	}

	exchangeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_verifier", verifier),
	}
	if p.Scope != "" {
		exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam("scope", p.Scope))
	}

	tok, err := cfg.Exchange(e.clientContext(ctx), res.Code, exchangeOpts...)
	if err != nil {
		return TokenRecord{}, redirectURL, errors.Wrapf(err, "[StartAuthorizationCode] token exchange")
	}

	return recordFromToken(tok, p), redirectURL, nil
}

// ClientCredentialsToken runs the client-credentials grant. No browser, no
// callback listener.
func (e *Engine) ClientCredentialsToken(ctx context.Context, p Params) (TokenRecord, error) {
	if err := p.validateToken(); err != nil {
		return TokenRecord{}, err
	}

	cc := &clientcredentials.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		TokenURL:     p.TokenURL,
		Scopes:       p.scopes(),
		AuthStyle:    p.Placement.authStyle(),
	}

	tok, err := cc.Token(e.clientContext(ctx))
	if err != nil {
		return TokenRecord{}, errors.Wrapf(err, "[ClientCredentialsToken] token request")
	}

	return recordFromToken(tok, p), nil
}

// RefreshIfNeeded silently refreshes rec when it is expired (with skew) and
// carries a refresh token. A refresh failure is never fatal: the original
// record comes back unchanged and the caller proceeds with it, letting the
// remote side surface the eventual 401.
func (e *Engine) RefreshIfNeeded(ctx context.Context, p Params, rec TokenRecord) TokenRecord {
	if !rec.Refreshable() || p.TokenURL == "" || !rec.Expired(e.nowTime()) {
		return rec
	}

	cfg := p.config("")
	stale := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		TokenType:    rec.TokenType,
		RefreshToken: rec.RefreshToken,
		Expiry:       time.Unix(1, 0), // force the token source to refresh
	}

	tok, err := cfg.TokenSource(e.clientContext(ctx), stale).Token()
	if err != nil {
		e.log.Warn().Err(err).Msg("token refresh failed, keeping existing token")
		return rec
	}

	fresh := recordFromToken(tok, p)
	if fresh.RefreshToken == "" && p.RetainRefreshToken {
		// Servers that do not rotate refresh tokens omit them on refresh.
		fresh.RefreshToken = rec.RefreshToken
	}
	return fresh
}

// StartCallbackServer exposes the listener to surfaces that drive an
// authorization flow themselves. Idempotent while a listener is active.
func (e *Engine) StartCallbackServer(expectedState string) (string, string, error) {
	redirectURL, state, _, err := e.listener.Start(expectedState)
	return redirectURL, state, err
}

// StopCallbackServer stops the listener if one is running.
func (e *Engine) StopCallbackServer() {
	e.listener.Stop()
}

func (e *Engine) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

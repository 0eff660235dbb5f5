// Package bridge is the consumer-surface boundary: it fans routed events out
// to registered surfaces and exposes the narrow set of operations a surface
// may call back into the core with (form submission, transport sends,
// settings queries, OAuth flows, opening external URLs).
package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/formdeck/formdeck/callback"
	"github.com/formdeck/formdeck/forms"
	"github.com/formdeck/formdeck/internal/errors"
	"github.com/formdeck/formdeck/oauthflow"
	"github.com/formdeck/formdeck/registry"
	"github.com/formdeck/formdeck/router"
	"github.com/formdeck/formdeck/transport"
)

// TrayState is the connection state a tray menu reflects. Presentation is
// the GUI layer's business; this is the data behind it.
type TrayState struct {
	Connected  bool   `json:"connected"`
	Port       string `json:"port"`
	PluginUUID string `json:"pluginUUID"`
}

type registration struct {
	surface Surface
	role    Role
}

// Bridge wires the registry, transport, router, OAuth engine and form
// submitter together and owns the set of registered surfaces.
type Bridge struct {
	reg       *registry.Registry
	conn      *transport.Connector
	engine    *oauthflow.Engine
	submitter *forms.Submitter
	rt        *router.Router
	openURL   func(url string) error
	log       zerolog.Logger

	mu           sync.RWMutex
	surfaces     map[string]registration
	setupContext string // context currently bound for editing, "" when unbound
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the bridge's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bridge) {
		b.log = logger
	}
}

// WithURLOpener sets the function used by OpenExternalURL.
func WithURLOpener(open func(url string) error) Option {
	return func(b *Bridge) {
		b.openURL = open
	}
}

// New creates a Bridge and its router, and hooks the callback listener's
// results into surface dispatch.
func New(
	reg *registry.Registry,
	conn *transport.Connector,
	engine *oauthflow.Engine,
	listener *callback.Listener,
	submitter *forms.Submitter,
	options ...Option,
) (*Bridge, error) {
	if reg == nil {
		return nil, fmt.Errorf("[bridge.New] registry is required")
	}
	if conn == nil {
		return nil, fmt.Errorf("[bridge.New] connector is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("[bridge.New] engine is required")
	}
	if listener == nil {
		return nil, fmt.Errorf("[bridge.New] listener is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("[bridge.New] submitter is required")
	}

	b := &Bridge{
		reg:       reg,
		conn:      conn,
		engine:    engine,
		submitter: submitter,
		openURL:   func(string) error { return fmt.Errorf("no URL opener configured") },
		log:       zerolog.Nop(),
		surfaces:  make(map[string]registration),
	}
	for _, opt := range options {
		opt(b)
	}

	rt, err := router.New(reg, conn, b, router.WithLogger(b.log))
	if err != nil {
		return nil, err
	}
	b.rt = rt

	listener.OnResult(func(res callback.Result) {
		b.dispatchOAuthToken(res.Code, res.State)
	})

	return b, nil
}

// Router returns the bridge's event router, for wiring into the transport's
// message handler.
func (b *Bridge) Router() *router.Router {
	return b.rt
}

// RegisterSurface adds a surface under the given role and returns its
// registration id.
func (b *Bridge) RegisterSurface(role Role, s Surface) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.surfaces[id] = registration{surface: s, role: role}
	b.mu.Unlock()
	return id
}

// UnregisterSurface removes a surface. Unknown ids are a no-op.
func (b *Bridge) UnregisterSurface(id string) {
	b.mu.Lock()
	delete(b.surfaces, id)
	b.mu.Unlock()
}

func (b *Bridge) withRole(role Role, fn func(Surface)) {
	b.mu.RLock()
	targets := make([]Surface, 0, len(b.surfaces))
	for _, reg := range b.surfaces {
		if reg.role == role {
			targets = append(targets, reg.surface)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		fn(s)
	}
}

// ShowForm implements router.Sink.
func (b *Bridge) ShowForm(settings registry.Settings) {
	b.withRole(RolePrimary, func(s Surface) {
		s.FormSettings(settings)
	})
	b.Diagnostic("form button pressed")
}

// OpenSetup implements router.Sink: binds the setup surface to contextID and
// hands it the context's data plus the global settings snapshot.
func (b *Bridge) OpenSetup(contextID string, record *registry.Record) {
	b.mu.Lock()
	b.setupContext = contextID
	b.mu.Unlock()

	global := b.rt.GlobalSettings()
	b.withRole(RoleSetup, func(s Surface) {
		s.SetupContextData(contextID, record, global)
	})
	b.Diagnostic("setup opened for context " + contextID)
}

// SettingsUpdated implements router.Sink: forwards fresh settings to the
// setup surface iff it is currently editing that context.
func (b *Bridge) SettingsUpdated(contextID string, settings registry.Settings) {
	b.mu.RLock()
	bound := b.setupContext
	b.mu.RUnlock()

	if bound == "" || bound != contextID {
		return
	}
	b.withRole(RoleSetup, func(s Surface) {
		s.SetupSettingsUpdate(contextID, settings)
	})
}

func (b *Bridge) dispatchOAuthToken(code, state string) {
	b.mu.RLock()
	targets := make([]Surface, 0, len(b.surfaces))
	for _, reg := range b.surfaces {
		targets = append(targets, reg.surface)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.OAuthToken(code, state)
	}
}

// Diagnostic sends a log line to diagnostic surfaces and mirrors it to the
// host's log display. Send failures here are expected around shutdown and
// only logged.
func (b *Bridge) Diagnostic(message string) {
	b.withRole(RoleDiagnostic, func(s Surface) {
		s.Diagnostic(message)
	})
	if err := b.rt.LogMessage(message); err != nil {
		b.log.Debug().Err(err).Msg("logMessage not delivered")
	}
}

// SubmitForm executes a form submission on behalf of a surface.
func (b *Bridge) SubmitForm(ctx context.Context, req forms.Request) (*forms.Response, error) {
	return b.submitter.Submit(ctx, req)
}

// SendToStreamDeck forwards an already-serialized frame to the transport.
func (b *Bridge) SendToStreamDeck(raw []byte) error {
	return b.conn.SendRaw(raw)
}

// GetSettings returns the registry's record for contextID, or
// ErrContextNotFound when the context is not present.
func (b *Bridge) GetSettings(contextID string) (registry.Record, error) {
	rec, ok := b.reg.Get(contextID)
	if !ok {
		return registry.Record{}, errors.ErrContextNotFound
	}
	return rec, nil
}

// RequestSettings asks the host to push its current settings for contextID;
// the reply arrives as a didReceiveSettings frame.
func (b *Bridge) RequestSettings(contextID string) error {
	return b.rt.GetSettings(contextID)
}

// SetSettings persists settings for contextID on the host.
func (b *Bridge) SetSettings(action, contextID string, payload any) error {
	return b.rt.SetSettings(action, contextID, payload)
}

// OAuthStartAuthCode runs the full authorization-code + PKCE flow.
func (b *Bridge) OAuthStartAuthCode(ctx context.Context, p oauthflow.Params) (oauthflow.TokenRecord, string, error) {
	return b.engine.StartAuthorizationCode(ctx, p)
}

// OAuthClientCredentialsToken runs the client-credentials grant.
func (b *Bridge) OAuthClientCredentialsToken(ctx context.Context, p oauthflow.Params) (oauthflow.TokenRecord, error) {
	return b.engine.ClientCredentialsToken(ctx, p)
}

// OAuthStartCallbackServer starts (or reuses) the callback listener.
func (b *Bridge) OAuthStartCallbackServer(expectedState string) (string, string, error) {
	return b.engine.StartCallbackServer(expectedState)
}

// OAuthStopCallbackServer stops the callback listener if one is running.
func (b *Bridge) OAuthStopCallbackServer() {
	b.engine.StopCallbackServer()
}

// OpenExternalURL hands url to the system browser opener.
func (b *Bridge) OpenExternalURL(url string) error {
	return b.openURL(url)
}

// TrayState returns the state a tray menu should reflect.
func (b *Bridge) TrayState() TrayState {
	return TrayState{
		Connected:  b.conn.Connected(),
		Port:       b.conn.Port(),
		PluginUUID: b.conn.Identity(),
	}
}

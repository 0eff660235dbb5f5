package bridge

import "github.com/formdeck/formdeck/registry"

// Role identifies the kind of consumer surface.
type Role string

const (
	// RolePrimary is the form window shown on a button press.
	RolePrimary Role = "primary"
	// RoleSetup is the full-configuration window bound to one context.
	RoleSetup Role = "setup"
	// RoleDiagnostic receives the diagnostic log stream.
	RoleDiagnostic Role = "diagnostic"
)

// Surface is the contract every GUI surface implements to receive routed
// events. Dispatch to a surface that has since gone away must be a no-op on
// the surface's side; the bridge does not track surface liveness beyond
// explicit unregistration.
type Surface interface {
	// FormSettings delivers the settings the primary form should render.
	FormSettings(settings registry.Settings)
	// SetupContextData opens the setup surface bound to contextID. record
	// is nil when the context has no registry entry; global is the current
	// plugin-wide settings snapshot.
	SetupContextData(contextID string, record *registry.Record, global registry.Settings)
	// SetupSettingsUpdate forwards a host-side settings change for the
	// context the setup surface is currently editing.
	SetupSettingsUpdate(contextID string, settings registry.Settings)
	// OAuthToken delivers a received authorization callback.
	OAuthToken(code, state string)
	// Diagnostic delivers one diagnostic log line.
	Diagnostic(message string)
}

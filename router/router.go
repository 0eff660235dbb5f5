// Package router is the bridge's core: it classifies inbound transport
// frames, drives the session registry, and dispatches to whatever consumer
// surfaces are currently interested. All inbound frames arrive on the
// transport's single read goroutine, so registry mutation is naturally
// serialized in arrival order.
package router

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/formdeck/formdeck/registry"
)

// Inbound event tags consumed from the transport.
const (
	eventWillAppear                = "willAppear"
	eventWillDisappear             = "willDisappear"
	eventDidReceiveSettings        = "didReceiveSettings"
	eventDidReceiveGlobalSettings  = "didReceiveGlobalSettings"
	eventKeyUp                     = "keyUp"
	eventSendToPlugin              = "sendToPlugin"
	sendToPluginActionOpenFullForm = "openFullSetup"
)

// Sender writes outbound frames to the transport.
type Sender interface {
	Send(v any) error
}

// Sink receives routed commands. The bridge implements this and fans out to
// its registered consumer surfaces.
type Sink interface {
	// ShowForm asks the primary surface to present the form described by
	// settings.
	ShowForm(settings registry.Settings)
	// OpenSetup asks the setup surface to open bound to contextID. record
	// is nil when the context is not (yet) in the registry.
	OpenSetup(contextID string, record *registry.Record)
	// SettingsUpdated reports that the host pushed fresh settings for
	// contextID.
	SettingsUpdated(contextID string, settings registry.Settings)
}

type frame struct {
	Event   string       `json:"event"`
	Action  string       `json:"action"`
	Context string       `json:"context"`
	Device  string       `json:"device"`
	Payload framePayload `json:"payload"`
}

type framePayload struct {
	Settings    registry.Settings     `json:"settings"`
	Coordinates *registry.Coordinates `json:"coordinates"`
	Action      string                `json:"action"`
}

// Router consumes inbound frames and issues outbound requests.
type Router struct {
	reg    *registry.Registry
	sender Sender
	sink   Sink
	log    zerolog.Logger

	globalMu       sync.RWMutex
	globalSettings registry.Settings
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.log = logger
	}
}

// New creates a Router.
func New(reg *registry.Registry, sender Sender, sink Sink, options ...Option) (*Router, error) {
	if reg == nil {
		return nil, fmt.Errorf("[router.New] registry is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("[router.New] sender is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("[router.New] sink is required")
	}

	r := &Router{
		reg:    reg,
		sender: sender,
		sink:   sink,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// HandleRaw processes one inbound frame. A frame that fails to parse is
// logged and dropped; it never terminates the process.
func (r *Router) HandleRaw(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		r.log.Error().Err(err).Msg("dropping malformed frame")
		return
	}

	switch f.Event {
	case eventWillAppear:
		r.upsert(f)
		r.log.Debug().Str("context", f.Context).Str("device", f.Device).Msg("action appeared")

	case eventWillDisappear:
		r.reg.Remove(f.Context)
		r.log.Debug().Str("context", f.Context).Msg("action disappeared")

	case eventDidReceiveSettings:
		r.upsert(f)
		r.sink.SettingsUpdated(f.Context, f.Payload.Settings)

	case eventDidReceiveGlobalSettings:
		r.globalMu.Lock()
		r.globalSettings = f.Payload.Settings
		r.globalMu.Unlock()
		r.log.Debug().Msg("global settings received")

	case eventKeyUp:
		rec, ok := r.reg.Get(f.Context)
		if !ok {
			// A press for a context we never saw appear. Nothing to show.
			return
		}
		r.sink.ShowForm(rec.Settings)

	case eventSendToPlugin:
		if f.Payload.Action == sendToPluginActionOpenFullForm {
			var rec *registry.Record
			if got, ok := r.reg.Get(f.Context); ok {
				rec = &got
			}
			r.sink.OpenSetup(f.Context, rec)
		} else {
			r.log.Debug().Str("action", f.Payload.Action).Msg("sendToPlugin action ignored")
		}

	default:
		r.log.Debug().Str("event", f.Event).Msg("unhandled event")
	}
}

func (r *Router) upsert(f frame) {
	err := r.reg.Upsert(f.Context, registry.Patch{
		Device:      f.Device,
		Action:      f.Action,
		Settings:    f.Payload.Settings,
		Coordinates: f.Payload.Coordinates,
	})
	if err != nil {
		r.log.Error().Err(err).Str("event", f.Event).Msg("registry upsert failed")
	}
}

// GlobalSettings returns the last global-settings snapshot pushed by the
// host.
func (r *Router) GlobalSettings() registry.Settings {
	r.globalMu.RLock()
	defer r.globalMu.RUnlock()
	return r.globalSettings
}

// SetSettings persists settings for a context on the host. The confirmation
// arrives asynchronously as a didReceiveSettings frame.
func (r *Router) SetSettings(action, contextID string, payload any) error {
	return r.sender.Send(map[string]any{
		"action":  action,
		"event":   "setSettings",
		"context": contextID,
		"payload": payload,
	})
}

// GetSettings requests the host's current settings for a context.
func (r *Router) GetSettings(contextID string) error {
	return r.sender.Send(map[string]any{
		"event":   "getSettings",
		"context": contextID,
	})
}

// GetGlobalSettings requests the plugin-wide settings snapshot.
func (r *Router) GetGlobalSettings(pluginUUID string) error {
	return r.sender.Send(map[string]any{
		"event":   "getGlobalSettings",
		"context": pluginUUID,
	})
}

// LogMessage forwards a diagnostic line to the host's log display.
func (r *Router) LogMessage(message string) error {
	return r.sender.Send(map[string]any{
		"event": "logMessage",
		"payload": map[string]any{
			"message": message,
		},
	})
}

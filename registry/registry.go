// Package registry maps button-context identifiers to their last-known
// device/action/settings snapshot. A record exists for a context iff the
// host currently shows that context; lookups for an absent context report
// not-found explicitly rather than returning a zero record.
package registry

import (
	"sync"

	"github.com/formdeck/formdeck/internal/errors"
)

// Settings is an opaque JSON-compatible blob. The registry never interprets
// its contents.
type Settings map[string]any

// Coordinates is the button's row/column position on the device.
type Coordinates struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Record is the last-known state of one button context.
type Record struct {
	Device      string
	Action      string
	Settings    Settings
	Coordinates *Coordinates
}

// Patch carries the fields of an inbound lifecycle event. Zero-valued fields
// leave the existing record untouched.
type Patch struct {
	Device      string
	Action      string
	Settings    Settings
	Coordinates *Coordinates
}

// Registry is a thread-safe in-memory map of context id to Record.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}

// Upsert merges patch into the record for contextID, creating it if absent.
func (r *Registry) Upsert(contextID string, patch Patch) error {
	if contextID == "" {
		return errors.ErrEmptyContext
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[contextID]
	if !exists {
		rec = &Record{}
		r.records[contextID] = rec
	}

	if patch.Device != "" {
		rec.Device = patch.Device
	}
	if patch.Action != "" {
		rec.Action = patch.Action
	}
	if patch.Settings != nil {
		rec.Settings = cloneSettings(patch.Settings)
	}
	if patch.Coordinates != nil {
		c := *patch.Coordinates
		rec.Coordinates = &c
	}

	return nil
}

// Remove deletes the record for contextID. Removing an absent context is a
// no-op.
func (r *Registry) Remove(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, contextID)
}

// Get returns a copy of the record for contextID, or false if the context is
// not currently present.
func (r *Registry) Get(contextID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[contextID]
	if !exists {
		return Record{}, false
	}
	return copyRecord(rec), true
}

// Len returns the number of present contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Contexts returns the identifiers of all present contexts.
func (r *Registry) Contexts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	return ids
}

func copyRecord(rec *Record) Record {
	out := Record{
		Device:   rec.Device,
		Action:   rec.Action,
		Settings: cloneSettings(rec.Settings),
	}
	if rec.Coordinates != nil {
		c := *rec.Coordinates
		out.Coordinates = &c
	}
	return out
}

func cloneSettings(s Settings) Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

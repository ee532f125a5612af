// Package hass is the boundary to the Home Assistant instance: live entity
// state, service calls, and calendar queries. The pipeline only ever talks to
// the Service interface so tests can substitute a fake platform.
package hass

import (
	"context"
	"time"
)

// EntityState is one entity from the live state registry.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Domain returns the entity's domain, the part before the first dot.
func (e EntityState) Domain() string {
	for i := 0; i < len(e.EntityID); i++ {
		if e.EntityID[i] == '.' {
			return e.EntityID[:i]
		}
	}
	return e.EntityID
}

// FriendlyName returns the friendly_name attribute, falling back to the
// entity id when unset.
func (e EntityState) FriendlyName() string {
	if name, ok := e.Attributes["friendly_name"].(string); ok && name != "" {
		return name
	}
	return e.EntityID
}

// ShoppingItem is one entry of the platform shopping list.
type ShoppingItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Complete bool   `json:"complete"`
}

// CalendarEvent is one event returned by a calendar query.
type CalendarEvent struct {
	Summary     string `json:"summary"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
}

// Service is the platform service boundary.
type Service interface {
	// CallService invokes domain.service with the given service data.
	CallService(ctx context.Context, domain, service string, data map[string]any) error

	// States returns a fresh snapshot of all entity states. Never cached:
	// stale state would directly cause wrong entity selection.
	States(ctx context.Context) ([]EntityState, error)

	// CalendarEvents returns events of one calendar entity in [start, end).
	CalendarEvents(ctx context.Context, entityID string, start, end time.Time) ([]CalendarEvent, error)

	// ShoppingItems returns the current shopping list.
	ShoppingItems(ctx context.Context) ([]ShoppingItem, error)
}

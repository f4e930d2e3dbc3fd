package events

import "time"

// Event is the standard payload shape for every domain event in the system.
// It is constructed once by the producing service and never mutated.
type Event struct {
	Name       string         `json:"event"`
	SchoolID   *int64         `json:"school_id,omitempty"`
	UserID     *int64         `json:"user_id,omitempty"`
	Entity     string         `json:"entity,omitempty"`
	EntityID   *int64         `json:"entity_id,omitempty"`
	Data       map[string]any `json:"data"`
	IP         string         `json:"ip,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Options carries the optional fields of an event.
type Options struct {
	SchoolID *int64
	UserID   *int64
	Entity   string
	EntityID *int64
	Data     map[string]any
	IP       string
}

// New builds an event with OccurredAt set at construction time.
func New(name string, opts Options) Event {
	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Name:       name,
		SchoolID:   opts.SchoolID,
		UserID:     opts.UserID,
		Entity:     opts.Entity,
		EntityID:   opts.EntityID,
		Data:       data,
		IP:         opts.IP,
		OccurredAt: time.Now().UTC(),
	}
}

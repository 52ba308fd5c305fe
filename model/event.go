package model

import "time"

// EventType identifies a store or editor notification.
type EventType string

const (
	EventLoaded          EventType = "loaded"
	EventReloaded        EventType = "reloaded"
	EventLoadFailed      EventType = "load_failed"
	EventSaved           EventType = "saved"
	EventDeleted         EventType = "deleted"
	EventDraftsDiscarded EventType = "drafts_discarded"
	EventProjectChanged  EventType = "project_changed"
)

// Event is published to subscribers of the content service.
type Event struct {
	ID         string           `json:"id"`
	Type       EventType        `json:"type"`
	Collection Collection       `json:"collection,omitempty"`
	EntityID   string           `json:"entity_id,omitempty"`
	Changed    []string         `json:"changed,omitempty"`
	Discarded  []DiscardedDraft `json:"discarded,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
	At         time.Time        `json:"at"`
}

// DiscardedDraft identifies an unsaved edit that a reload threw away.
type DiscardedDraft struct {
	SessionID  string     `json:"session_id"`
	Collection Collection `json:"collection"`
	EntityID   string     `json:"entity_id"`
}

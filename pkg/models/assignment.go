// Package models provides domain types for the character version
// assignment service.
package models

import "time"

// Assignment is the sticky mapping from a user to a version of a base
// character. It is created once per (user, character) pair and never
// changes except through an explicit reassignment.
type Assignment struct {
	// UserID identifies the end user (typically an email address).
	UserID string `json:"user_id"`

	// CharacterID identifies the base character family (e.g. "plato").
	CharacterID string `json:"character_id"`

	// VersionID is the assigned variant (e.g. "base", "enhanced").
	VersionID string `json:"version_id"`

	// StrategyUsed records which strategy kind produced the assignment.
	StrategyUsed string `json:"strategy_used"`

	// AssignedAt is when the assignment was created or last reassigned.
	AssignedAt time.Time `json:"assigned_at"`
}

// Key returns the store key for the (user, character) pair.
func (a *Assignment) Key() string {
	return a.UserID + "|" + a.CharacterID
}

// Clone returns a copy so callers cannot mutate stored records.
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	dup := *a
	return &dup
}

// AssignmentEventType identifies the kind of assignment event.
type AssignmentEventType = string

const (
	// EventAssignmentCreated is emitted when a sticky assignment is first
	// created for a (user, character) pair.
	EventAssignmentCreated AssignmentEventType = "assignment_created"

	// EventReassigned is emitted when an operator explicitly overrides an
	// existing assignment.
	EventReassigned AssignmentEventType = "reassigned"

	// EventMessageSent is the usage event the host runtime logs after
	// routing a message to the assigned character version.
	EventMessageSent AssignmentEventType = "message_sent"
)

// AssignmentEvent is an append-only log entry tying a user interaction to
// the character version it was served by. Events are never mutated after
// creation.
type AssignmentEvent struct {
	// ID is a unique event identifier (uuid).
	ID string `json:"id"`

	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
	VersionID   string `json:"version_id"`

	// EventType is e.g. "assignment_created" or "message_sent".
	EventType AssignmentEventType `json:"event_type"`

	Timestamp time.Time `json:"timestamp"`

	// Metadata carries open auxiliary fields (latency, message length, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy with its own metadata map.
func (e *AssignmentEvent) Clone() *AssignmentEvent {
	if e == nil {
		return nil
	}
	dup := *e
	if e.Metadata != nil {
		dup.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

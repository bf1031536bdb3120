package models

import (
	"testing"
	"time"
)

func TestEventType_Constants(t *testing.T) {
	tests := []struct {
		constant string
		expected string
	}{
		{EventAssignmentCreated, "assignment_created"},
		{EventReassigned, "reassigned"},
		{EventMessageSent, "message_sent"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestAssignment_Key(t *testing.T) {
	a := &Assignment{UserID: "user@example.com", CharacterID: "plato"}
	if got, want := a.Key(), "user@example.com|plato"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestAssignment_Clone(t *testing.T) {
	original := &Assignment{
		UserID:       "user@example.com",
		CharacterID:  "plato",
		VersionID:    "enhanced",
		StrategyUsed: "weighted",
		AssignedAt:   time.Now(),
	}

	clone := original.Clone()
	clone.VersionID = "base"

	if original.VersionID != "enhanced" {
		t.Errorf("Clone() shares state: original.VersionID = %q", original.VersionID)
	}

	var nilAssignment *Assignment
	if nilAssignment.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestAssignmentEvent_Clone(t *testing.T) {
	original := &AssignmentEvent{
		ID:          "ev-1",
		UserID:      "user@example.com",
		CharacterID: "plato",
		VersionID:   "enhanced",
		EventType:   EventMessageSent,
		Timestamp:   time.Now(),
		Metadata:    map[string]any{"latency_ms": 88},
	}

	clone := original.Clone()
	clone.Metadata["latency_ms"] = 999

	if original.Metadata["latency_ms"] != 88 {
		t.Errorf("Clone() shares metadata: got %v", original.Metadata["latency_ms"])
	}
}

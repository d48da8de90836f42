// internal/stream/event.go
package stream

import (
	"encoding/json"
	"fmt"

	"devopus/internal/snapshot"
)

// Event is one decoded record from the generation stream. Stage is the
// required discriminant; every other field is optional and stage-specific.
type Event struct {
	Stage     string                `json:"stage"`
	Message   string                `json:"message,omitempty"`
	Plan      string                `json:"plan,omitempty"`
	Architect string                `json:"architect,omitempty"`
	Diagram   string                `json:"diagram,omitempty"`
	Files     snapshot.FileSnapshot `json:"files,omitempty"`
	Review    string                `json:"review,omitempty"`
	Summary   string                `json:"summary,omitempty"`
	ProjectID string                `json:"project_id,omitempty"`
}

// ParseEvent decodes a record payload into an Event. A payload that is not a
// JSON object, or that lacks the stage discriminant, is an error the caller
// logs and drops; it never aborts the stream.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("parse record: %w", err)
	}
	if ev.Stage == "" {
		return Event{}, fmt.Errorf("record missing stage discriminant")
	}
	return ev, nil
}

// Package eventbus provides the in-process publish/subscribe mechanism
// that fans out graph and run change notifications to subscribers (UI
// event streams, agent workers). Delivery is FIFO per project for each
// subscriber and at-least-once to active subscribers; events are not
// persisted, so late subscribers recover state by re-fetching.
package eventbus

import (
	"github.com/google/uuid"

	"github.com/atelier-ai/atelier-engine/pkg/models"
)

// Event type constants.
const (
	EventTypeGraphChanged = "graph_changed"
	EventTypeRunChanged   = "run_changed"
)

// Event is a notification scoped to a single project.
type Event interface {
	// EventType returns the wire tag for the event.
	EventType() string
	// Project returns the project the event belongs to.
	Project() uuid.UUID
}

// GraphChanged signals that a project's entities, nodes, or edges were
// mutated. Subscribers re-fetch the graph snapshot; the event itself
// carries no delta.
type GraphChanged struct {
	ProjectID uuid.UUID `json:"project_id"`
}

func (e GraphChanged) EventType() string  { return EventTypeGraphChanged }
func (e GraphChanged) Project() uuid.UUID { return e.ProjectID }

// RunChanged signals a run status transition.
type RunChanged struct {
	RunID     uuid.UUID        `json:"run_id"`
	ProjectID uuid.UUID        `json:"project_id"`
	OldStatus models.RunStatus `json:"old_status"`
	NewStatus models.RunStatus `json:"new_status"`
}

func (e RunChanged) EventType() string  { return EventTypeRunChanged }
func (e RunChanged) Project() uuid.UUID { return e.ProjectID }

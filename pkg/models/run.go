package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Run Status
// ============================================================================

// RunStatus represents the lifecycle state of an agent-proposed run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRejected  RunStatus = "rejected"
)

// ValidRunStatuses contains all valid run status values.
var ValidRunStatuses = []RunStatus{
	RunStatusPending,
	RunStatusRunning,
	RunStatusCompleted,
	RunStatusFailed,
	RunStatusRejected,
}

// IsValidRunStatus checks if the given status is valid.
func IsValidRunStatus(s RunStatus) bool {
	for _, v := range ValidRunStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the run status is terminal. Runs are never
// deleted; they only reach a terminal status.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusRejected
}

// CanTransitionTo reports whether moving from s to next is a legal
// transition: pending to running or rejected, running to completed or
// failed. Everything else is illegal.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusRejected
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusFailed
	}
	return false
}

// ============================================================================
// Run Type
// ============================================================================

// RunType tags the kind of work an agent proposed.
type RunType string

const (
	RunTypeAnalysis   RunType = "analysis"
	RunTypeSWE        RunType = "swe"
	RunTypeExtraction RunType = "extraction"
)

// ValidRunTypes contains all valid run type values.
var ValidRunTypes = []RunType{
	RunTypeAnalysis,
	RunTypeSWE,
	RunTypeExtraction,
}

// IsValidRunType checks if the given type is valid.
func IsValidRunType(t RunType) bool {
	for _, v := range ValidRunTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Run
// ============================================================================

// Run is an asynchronous, agent-proposed unit of work. It is created in
// pending status as a proposal, gated by user accept/reject, executed by
// an external worker, and mutates the graph only through its completion
// commit.
type Run struct {
	ID                  uuid.UUID    `json:"id"`
	ProjectID           uuid.UUID    `json:"project_id"`
	Type                RunType      `json:"type"`
	Status              RunStatus    `json:"status"`
	RunName             string       `json:"run_name"`
	PlanDescription     string       `json:"plan_description"`
	QuestionsForUser    *string      `json:"questions_for_user,omitempty"`
	ConfigDefaultsDescr *string      `json:"configuration_defaults_description,omitempty"`
	FailureReason       *string      `json:"failure_reason,omitempty"`
	InputRefs           EntityRefSet `json:"input_refs"`
	OutputRefs          EntityRefSet `json:"output_refs"`
	LastHeartbeat       *time.Time   `json:"last_heartbeat,omitempty"`
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// RunDescriptor is the agent-supplied description of a proposed run,
// shown to the user in the approval queue.
type RunDescriptor struct {
	RunName             string  `json:"run_name"`
	PlanDescription     string  `json:"plan_description"`
	QuestionsForUser    *string `json:"questions_for_user,omitempty"`
	ConfigDefaultsDescr *string `json:"configuration_defaults_description,omitempty"`
}

// ============================================================================
// Run Outputs
// ============================================================================

// RunOutputEntity is one entity a completing run asks the engine to
// create or update. The worker assigns the id so output edges can refer
// to entities created in the same commit; a zero id means "assign one".
// Every output entity gets a graph node (created or kept), optionally at
// the given position.
type RunOutputEntity struct {
	ID      uuid.UUID      `json:"id"`
	Kind    EntityKind     `json:"kind"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
	X       *float64       `json:"x,omitempty"`
	Y       *float64       `json:"y,omitempty"`
}

// RunOutputEdge is one derivation edge a completing run asks the engine
// to create, expressed entity-to-entity. Endpoints are resolved to graph
// nodes at commit time; both entities must have nodes in the run's project
// (either pre-existing or created by the same commit).
type RunOutputEdge struct {
	SourceEntityID uuid.UUID `json:"source_entity_id"`
	TargetEntityID uuid.UUID `json:"target_entity_id"`
}

// RunOutputs is the full output set of a completing run, applied
// atomically together with the transition to completed.
type RunOutputs struct {
	Entities []RunOutputEntity `json:"entities,omitempty"`
	Edges    []RunOutputEdge   `json:"edges,omitempty"`
}

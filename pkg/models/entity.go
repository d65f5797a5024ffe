// Package models contains domain types for atelier-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies the type of a project entity.
type EntityKind string

const (
	EntityKindDataSource        EntityKind = "data_source"
	EntityKindDataset           EntityKind = "dataset"
	EntityKindModelInstantiated EntityKind = "model_instantiated"
	EntityKindPipeline          EntityKind = "pipeline"
	EntityKindAnalysis          EntityKind = "analysis"
)

// ValidEntityKinds contains all valid entity kind values.
var ValidEntityKinds = []EntityKind{
	EntityKindDataSource,
	EntityKindDataset,
	EntityKindModelInstantiated,
	EntityKindPipeline,
	EntityKindAnalysis,
}

// IsValidEntityKind checks if the given kind is valid.
func IsValidEntityKind(k EntityKind) bool {
	for _, v := range ValidEntityKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Entity is a named, typed object owned by a project: a data source,
// dataset, instantiated model, pipeline, or analysis. The payload carries
// kind-specific configuration and is opaque to the engine.
type Entity struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID uuid.UUID      `json:"project_id"`
	Kind      EntityKind     `json:"kind"`
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EntityRef points at an entity by kind and id. GraphNodes and run
// references use it as a tagged variant instead of one nullable foreign
// key per kind.
type EntityRef struct {
	Kind     EntityKind `json:"kind"`
	EntityID uuid.UUID  `json:"entity_id"`
}

// EntityRefSet holds entity ids partitioned by kind. Run input/output
// references and conversation context selections share this shape.
type EntityRefSet struct {
	DataSourceIDs        []uuid.UUID `json:"data_source_ids,omitempty"`
	DatasetIDs           []uuid.UUID `json:"dataset_ids,omitempty"`
	ModelInstantiatedIDs []uuid.UUID `json:"model_instantiated_ids,omitempty"`
	PipelineIDs          []uuid.UUID `json:"pipeline_ids,omitempty"`
	AnalysisIDs          []uuid.UUID `json:"analysis_ids,omitempty"`
}

func (s *EntityRefSet) idsFor(kind EntityKind) *[]uuid.UUID {
	switch kind {
	case EntityKindDataSource:
		return &s.DataSourceIDs
	case EntityKindDataset:
		return &s.DatasetIDs
	case EntityKindModelInstantiated:
		return &s.ModelInstantiatedIDs
	case EntityKindPipeline:
		return &s.PipelineIDs
	case EntityKindAnalysis:
		return &s.AnalysisIDs
	}
	return nil
}

// IDs returns the ids stored for the given kind.
func (s *EntityRefSet) IDs(kind EntityKind) []uuid.UUID {
	ids := s.idsFor(kind)
	if ids == nil {
		return nil
	}
	return *ids
}

// Contains reports whether the set holds the given id under the given kind.
func (s *EntityRefSet) Contains(kind EntityKind, id uuid.UUID) bool {
	for _, existing := range s.IDs(kind) {
		if existing == id {
			return true
		}
	}
	return false
}

// Add inserts the id under the given kind. Adding an id that is already
// present is a no-op; the return value reports whether the set changed.
func (s *EntityRefSet) Add(kind EntityKind, id uuid.UUID) bool {
	ids := s.idsFor(kind)
	if ids == nil {
		return false
	}
	if s.Contains(kind, id) {
		return false
	}
	*ids = append(*ids, id)
	return true
}

// Remove deletes the id from the given kind's partition. Removing an
// absent id is a no-op; the return value reports whether the set changed.
func (s *EntityRefSet) Remove(kind EntityKind, id uuid.UUID) bool {
	ids := s.idsFor(kind)
	if ids == nil {
		return false
	}
	for i, existing := range *ids {
		if existing == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the total number of ids across all kinds.
func (s *EntityRefSet) Len() int {
	total := 0
	for _, kind := range ValidEntityKinds {
		total += len(s.IDs(kind))
	}
	return total
}

// Clone returns a deep copy of the set.
func (s *EntityRefSet) Clone() EntityRefSet {
	var out EntityRefSet
	for _, kind := range ValidEntityKinds {
		src := s.IDs(kind)
		if len(src) == 0 {
			continue
		}
		dst := out.idsFor(kind)
		*dst = append([]uuid.UUID(nil), src...)
	}
	return out
}

// Refs flattens the set into a list of entity references.
func (s *EntityRefSet) Refs() []EntityRef {
	var refs []EntityRef
	for _, kind := range ValidEntityKinds {
		for _, id := range s.IDs(kind) {
			refs = append(refs, EntityRef{Kind: kind, EntityID: id})
		}
	}
	return refs
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Project owns entities, graph placements, and runs. The engine keeps a
// minimal registry row per project; naming, membership, and billing live
// upstream.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

package models

import (
	"github.com/google/uuid"
)

// ContextSelection is the per-conversation set of entities a user has
// scoped into a chat or agent invocation. It lives for the conversation
// only and is read synchronously when a prompt is submitted.
type ContextSelection struct {
	ProjectID      uuid.UUID    `json:"project_id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	Refs           EntityRefSet `json:"refs"`
}

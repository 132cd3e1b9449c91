package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationStatus is the lifecycle state of a conversation. The only
// transition is Active -> Expired; expired conversations never reactivate.
type ConversationStatus string

const (
	ConversationActive  ConversationStatus = "active"
	ConversationExpired ConversationStatus = "expired"
)

// ConversationTurn is one utterance within a multi-turn exchange. TurnIndex
// is assigned at append time, strictly increasing per conversation and never
// reused.
type ConversationTurn struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	TurnIndex      int       `json:"turn_index"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// ChatResult is the outcome of one orchestrated exchange.
type ChatResult struct {
	Response       string             `json:"response"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Sources        []*RetrievalResult `json:"sources,omitempty"`
	// Degraded marks a best-effort response produced without the generation
	// collaborator. Degraded exchanges are not recorded in memory.
	Degraded bool `json:"degraded,omitempty"`
}

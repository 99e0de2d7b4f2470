package core

import (
	"time"

	"github.com/google/uuid"
)

// Query is the immutable input of one orchestration run. It is created once
// per request and never mutated; all evolving data lives on WorkflowState.
type Query struct {
	// Text is the raw natural-language query.
	Text string `json:"text"`

	// Namespace identifies the tenant/product partition. It scopes vector
	// search and the relational schema so no data crosses tenants.
	Namespace string `json:"namespace"`

	// UserID identifies the requesting user.
	UserID string `json:"user_id"`

	// ConversationID links the query to a conversation for cross-turn
	// context. Empty means a fresh single-turn query.
	ConversationID string `json:"conversation_id,omitempty"`

	// ReceivedAt is the query entry timestamp.
	ReceivedAt time.Time `json:"received_at"`
}

// NewQuery constructs a Query stamping the entry time. ConversationID may be
// empty; callers wanting continuity pass the id of an existing conversation.
func NewQuery(text, namespace, userID, conversationID string) Query {
	return Query{
		Text:           text,
		Namespace:      namespace,
		UserID:         userID,
		ConversationID: conversationID,
		ReceivedAt:     time.Now(),
	}
}

// NewWorkflowID returns a unique identifier for a workflow instance.
func NewWorkflowID() string { return uuid.NewString() }

// ConversationKey identifies one conversation record: a single user's thread
// within a tenant namespace.
type ConversationKey struct {
	Namespace      string `json:"namespace"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// ConversationKeyFor derives the key for a query's conversation.
func ConversationKeyFor(q Query) ConversationKey {
	return ConversationKey{Namespace: q.Namespace, UserID: q.UserID, ConversationID: q.ConversationID}
}

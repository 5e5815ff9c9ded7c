package models

import "github.com/google/uuid"

// Ledger event kinds.
const (
	EventAgentRegistered   = "agent.registered"
	EventAgentUpdated      = "agent.updated"
	EventAgentSettled      = "agent.settled"
	EventClientInitialized = "client.initialized"
	EventBountyCreated     = "bounty.created"
	EventBountyClaimed     = "bounty.claimed"
	EventBountyDelivered   = "bounty.delivered"
	EventBountyCompleted   = "bounty.completed"
	EventBountyDisputed    = "bounty.disputed"
	EventBountyCancelled   = "bounty.cancelled"
	EventReviewCreated     = "review.created"
)

// Event is appended in the same transaction as the change it describes.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Kind       string            `json:"kind"`
	Subject    uuid.UUID         `json:"subject"`
	Actor      uuid.UUID         `json:"actor"`
	OccurredAt int64             `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(kind string, subject, actor uuid.UUID, at int64, attrs map[string]string) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		Subject:    subject,
		Actor:      actor,
		OccurredAt: at,
		Attributes: attrs,
	}
}

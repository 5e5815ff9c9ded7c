package models

import "github.com/google/uuid"

// Review is the client's rating of the agent on a completed bounty.
type Review struct {
	Address    uuid.UUID `json:"address"`
	Bounty     uuid.UUID `json:"bounty"`
	Reviewer   uuid.UUID `json:"reviewer"`
	Agent      uuid.UUID `json:"agent"`
	Rating     uint64    `json:"rating"`
	CommentURI string    `json:"comment_uri"`
	CreatedAt  int64     `json:"created_at"`
}

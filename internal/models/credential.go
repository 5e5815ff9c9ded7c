package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential authenticates an HTTP caller. ID is the identity every ledger
// operation sees as the caller.
type Credential struct {
	ID           uuid.UUID `json:"id"`
	Handle       string    `json:"handle"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

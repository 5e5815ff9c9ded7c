package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Bounty lifecycle states.
type BountyStatus uint8

const (
	BountyOpen      BountyStatus = 0
	BountyClaimed   BountyStatus = 1
	BountyDelivered BountyStatus = 2
	BountyCompleted BountyStatus = 3
	BountyDisputed  BountyStatus = 4
	BountyCancelled BountyStatus = 5
)

var bountyStatusNames = [...]string{"open", "claimed", "delivered", "completed", "disputed", "cancelled"}

func (s BountyStatus) Valid() bool { return int(s) < len(bountyStatusNames) }

func (s BountyStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", uint8(s))
	}
	return bountyStatusNames[s]
}

func (s BountyStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid bounty status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *BountyStatus) UnmarshalText(b []byte) error {
	v, err := ParseBountyStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseBountyStatus accepts the lowercase name of a status.
func ParseBountyStatus(v string) (BountyStatus, error) {
	for i, n := range bountyStatusNames {
		if n == v {
			return BountyStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bounty status %q", v)
}

// ClientCounter hands out per-client bounty sequence numbers.
type ClientCounter struct {
	Address     uuid.UUID `json:"address"`
	Owner       uuid.UUID `json:"owner"`
	BountyCount uint64    `json:"bounty_count"`
}

// Bounty is an escrow-backed work contract.
type Bounty struct {
	Address        uuid.UUID    `json:"address"`
	Client         uuid.UUID    `json:"client"`
	BountyID       uint64       `json:"bounty_id"`
	MetadataURI    string       `json:"metadata_uri"`
	Budget         uint64       `json:"budget"`
	Deadline       int64        `json:"deadline"`
	Status         BountyStatus `json:"status"`
	Claims         uint64       `json:"claims"`
	AssignedAgent  *uuid.UUID   `json:"assigned_agent,omitempty"`
	DeliverableURI string       `json:"deliverable_uri"`
	Vault          uuid.UUID    `json:"vault"`
	Asset          string       `json:"asset"`
	CreatedAt      int64        `json:"created_at"`
	Version        int64        `json:"-"`
}

// IsAssigned reports whether agent holds the claim on b.
func (b *Bounty) IsAssigned(agent uuid.UUID) bool {
	return b.AssignedAgent != nil && *b.AssignedAgent == agent
}

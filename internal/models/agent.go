package models

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxURILen bounds every metadata, deliverable and comment URI in bytes.
const MaxURILen = 200

// MaxRating is the upper bound of a review rating and of agent reputation
// (5.00 stars, fixed-point ×100).
const MaxRating = 500

// Availability of an agent for new work.
type Availability uint8

const (
	AvailabilityAvailable Availability = 0
	AvailabilityBusy      Availability = 1
	AvailabilityOffline   Availability = 2
)

var availabilityNames = [...]string{"available", "busy", "offline"}

func (a Availability) Valid() bool { return int(a) < len(availabilityNames) }

func (a Availability) String() string {
	if !a.Valid() {
		return fmt.Sprintf("availability(%d)", uint8(a))
	}
	return availabilityNames[a]
}

func (a Availability) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid availability %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Availability) UnmarshalText(b []byte) error {
	v, err := ParseAvailability(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAvailability accepts the lowercase name of an availability.
func ParseAvailability(s string) (Availability, error) {
	for i, n := range availabilityNames {
		if n == s {
			return Availability(i), nil
		}
	}
	return 0, fmt.Errorf("unknown availability %q", s)
}

// AgentRecord is an agent's public profile and settled reputation.
type AgentRecord struct {
	Address           uuid.UUID    `json:"address"`
	Owner             uuid.UUID    `json:"owner"`
	MetadataURI       string       `json:"metadata_uri"`
	HourlyRate        uint64       `json:"hourly_rate"`
	Reputation        uint64       `json:"reputation"`
	BountiesCompleted uint64       `json:"bounties_completed"`
	TotalEarned       uint64       `json:"total_earned"`
	Availability      Availability `json:"availability"`
	CreatedAt         int64        `json:"created_at"`
}

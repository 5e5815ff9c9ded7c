package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
	"github.com/bountyboard/backend/internal/store/memory"
)

var fixedNow = time.Unix(1_750_000_000, 0)

func newTestService() (*service, *memory.Store) {
	st := memory.New(nil)
	return NewService(st, WithClock(func() time.Time { return fixedNow })), st
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_Defaults(t *testing.T) {
	s, st := newTestService()
	owner := uuid.New()

	rec, err := s.Register(context.Background(), owner, "ipfs://agent", 150)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rec.Address != address.Agent(owner) || rec.Owner != owner {
		t.Errorf("wrong identity: %+v", rec)
	}
	if rec.Reputation != 0 || rec.BountiesCompleted != 0 || rec.TotalEarned != 0 {
		t.Errorf("counters not zero: %+v", rec)
	}
	if rec.Availability != models.AvailabilityAvailable || rec.CreatedAt != fixedNow.Unix() {
		t.Errorf("availability/created_at: %+v", rec)
	}
	evs := st.Events()
	if len(evs) != 1 || evs[0].Kind != models.EventAgentRegistered {
		t.Errorf("events: %+v", evs)
	}
}

func TestRegister_Validation(t *testing.T) {
	s, _ := newTestService()
	tests := []struct {
		name string
		uri  string
		rate uint64
	}{
		{"zero rate", "ipfs://x", 0},
		{"uri too long", strings.Repeat("a", models.MaxURILen+1), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), uuid.New(), tt.uri, tt.rate)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected InvalidInput, got %v", err)
			}
		})
	}
}

func TestRegister_URIAtLimit(t *testing.T) {
	s, _ := newTestService()
	if _, err := s.Register(context.Background(), uuid.New(), strings.Repeat("a", models.MaxURILen), 1); err != nil {
		t.Fatalf("200-byte uri rejected: %v", err)
	}
}

func TestRegister_Twice(t *testing.T) {
	s, _ := newTestService()
	owner := uuid.New()
	if _, err := s.Register(context.Background(), owner, "a", 1); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.Register(context.Background(), owner, "b", 2); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdate_PartialFields(t *testing.T) {
	s, _ := newTestService()
	owner := uuid.New()
	rec, _ := s.Register(context.Background(), owner, "ipfs://v1", 100)

	got, err := s.Update(context.Background(), owner, rec.Address, UpdateParams{
		Availability: ptr(models.AvailabilityBusy),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Availability != models.AvailabilityBusy || got.MetadataURI != "ipfs://v1" || got.HourlyRate != 100 {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestUpdate_NotOwner(t *testing.T) {
	s, _ := newTestService()
	owner := uuid.New()
	rec, _ := s.Register(context.Background(), owner, "ipfs://v1", 100)

	_, err := s.Update(context.Background(), uuid.New(), rec.Address, UpdateParams{HourlyRate: ptr(uint64(5))})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestUpdate_BadFieldRejectsWholeUpdate(t *testing.T) {
	s, st := newTestService()
	owner := uuid.New()
	rec, _ := s.Register(context.Background(), owner, "ipfs://v1", 100)

	_, err := s.Update(context.Background(), owner, rec.Address, UpdateParams{
		MetadataURI: ptr("ipfs://v2"),
		HourlyRate:  ptr(uint64(0)),
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	cur, _ := st.GetAgent(context.Background(), rec.Address)
	if cur.MetadataURI != "ipfs://v1" {
		t.Errorf("partial write: metadata_uri = %q", cur.MetadataURI)
	}

	_, err = s.Update(context.Background(), owner, rec.Address, UpdateParams{Availability: ptr(models.Availability(9))})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("bad availability: expected InvalidInput, got %v", err)
	}
}

func TestUpdate_Unregistered(t *testing.T) {
	s, _ := newTestService()
	owner := uuid.New()
	_, err := s.Update(context.Background(), owner, address.Agent(owner), UpdateParams{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestGetAndList(t *testing.T) {
	s, _ := newTestService()
	a, b := uuid.New(), uuid.New()
	_, _ = s.Register(context.Background(), a, "a", 1)
	recB, _ := s.Register(context.Background(), b, "b", 1)
	_, _ = s.Update(context.Background(), b, recB.Address, UpdateParams{Availability: ptr(models.AvailabilityOffline)})

	got, err := s.Get(context.Background(), a)
	if err != nil || got.Owner != a {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get unknown: %v", err)
	}

	all, _ := s.List(context.Background(), store.AgentFilter{})
	if len(all) != 2 {
		t.Errorf("list all: %d", len(all))
	}
	off, _ := s.List(context.Background(), store.AgentFilter{Availability: ptr(models.AvailabilityOffline)})
	if len(off) != 1 || off[0].Owner != b {
		t.Errorf("list offline: %+v", off)
	}
}

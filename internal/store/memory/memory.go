// Package memory is a process-local implementation of store.Store.
// Transactions are serialized and run against a private copy of the state
// that replaces the live state only on commit.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// CommitHook receives the events of every committed transaction.
type CommitHook func(ctx context.Context, events []models.Event)

// Store is safe for concurrent use.
type Store struct {
	txMu   sync.Mutex // serializes writers
	mu     sync.RWMutex
	cur    *state
	events []models.Event
	hook   CommitHook
}

var _ store.Store = (*Store)(nil)

// New returns an empty store. hook may be nil.
func New(hook CommitHook) *Store {
	return &Store{cur: newState(), hook: hook}
}

func (s *Store) Ping(context.Context) error { return nil }

// InTx runs fn against a copy of the current state and publishes the copy
// if fn returns nil. The commit hook runs after the writer lock is
// released, so a slow hook delays only its own caller.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	events, err := s.commit(ctx, fn)
	if err != nil {
		return err
	}
	if s.hook != nil && len(events) > 0 {
		s.hook(ctx, events)
	}
	return nil
}

func (s *Store) commit(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) ([]models.Event, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.cur.clone()
	s.mu.RUnlock()

	t := &tx{state: work}
	if err := fn(ctx, t); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cur = work
	s.events = append(s.events, t.events...)
	s.mu.Unlock()
	return slices.Clone(t.events), nil
}

// Events returns every committed event in commit order.
func (s *Store) Events() []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Committed states are never mutated, so readers only hold the lock long
// enough to grab the pointer.

func (s *Store) GetAgent(ctx context.Context, addr uuid.UUID) (*models.AgentRecord, error) {
	return s.snapshot().GetAgent(ctx, addr)
}

func (s *Store) ListAgents(ctx context.Context, f store.AgentFilter) ([]*models.AgentRecord, error) {
	return s.snapshot().ListAgents(ctx, f)
}

func (s *Store) GetClient(ctx context.Context, addr uuid.UUID) (*models.ClientCounter, error) {
	return s.snapshot().GetClient(ctx, addr)
}

func (s *Store) GetBounty(ctx context.Context, addr uuid.UUID) (*models.Bounty, error) {
	return s.snapshot().GetBounty(ctx, addr)
}

func (s *Store) ListBounties(ctx context.Context, f store.BountyFilter) ([]*models.Bounty, error) {
	return s.snapshot().ListBounties(ctx, f)
}

func (s *Store) GetReview(ctx context.Context, addr uuid.UUID) (*models.Review, error) {
	return s.snapshot().GetReview(ctx, addr)
}

func (s *Store) ListReviewsByAgent(ctx context.Context, agent uuid.UUID, limit, offset int) ([]*models.Review, error) {
	return s.snapshot().ListReviewsByAgent(ctx, agent, limit, offset)
}

func (s *Store) GetTokenAccount(ctx context.Context, addr uuid.UUID) (*models.TokenAccount, error) {
	return s.snapshot().GetTokenAccount(ctx, addr)
}

func (s *Store) ListTransfers(ctx context.Context, f store.TransferFilter) ([]*models.Transfer, error) {
	return s.snapshot().ListTransfers(ctx, f)
}

func (s *Store) GetCredentialByHandle(ctx context.Context, handle string) (*models.Credential, error) {
	return s.snapshot().GetCredentialByHandle(ctx, handle)
}

// ---------------------------------------------------------------------------
// state
// ---------------------------------------------------------------------------

type state struct {
	agents      map[uuid.UUID]models.AgentRecord
	clients     map[uuid.UUID]models.ClientCounter
	bounties    map[uuid.UUID]models.Bounty
	reviews     map[uuid.UUID]models.Review
	accounts    map[uuid.UUID]models.TokenAccount
	credentials map[string]models.Credential
	transfers   []models.Transfer
}

func newState() *state {
	return &state{
		agents:      make(map[uuid.UUID]models.AgentRecord),
		clients:     make(map[uuid.UUID]models.ClientCounter),
		bounties:    make(map[uuid.UUID]models.Bounty),
		reviews:     make(map[uuid.UUID]models.Review),
		accounts:    make(map[uuid.UUID]models.TokenAccount),
		credentials: make(map[string]models.Credential),
	}
}

// clone copies every table. Rows are stored by value so a map copy is a
// deep enough copy; pointer fields inside rows are replaced, never mutated.
func (st *state) clone() *state {
	return &state{
		agents:      maps.Clone(st.agents),
		clients:     maps.Clone(st.clients),
		bounties:    maps.Clone(st.bounties),
		reviews:     maps.Clone(st.reviews),
		accounts:    maps.Clone(st.accounts),
		credentials: maps.Clone(st.credentials),
		transfers:   slices.Clone(st.transfers),
	}
}

func (st *state) GetAgent(_ context.Context, addr uuid.UUID) (*models.AgentRecord, error) {
	a, ok := st.agents[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (st *state) ListAgents(_ context.Context, f store.AgentFilter) ([]*models.AgentRecord, error) {
	var out []*models.AgentRecord
	for _, a := range st.agents {
		if f.Availability != nil && a.Availability != *f.Availability {
			continue
		}
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].Address, out[j].Address)
	})
	return page(out, f.Limit, f.Offset), nil
}

func (st *state) GetClient(_ context.Context, addr uuid.UUID) (*models.ClientCounter, error) {
	c, ok := st.clients[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (st *state) GetBounty(_ context.Context, addr uuid.UUID) (*models.Bounty, error) {
	b, ok := st.bounties[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (st *state) ListBounties(_ context.Context, f store.BountyFilter) ([]*models.Bounty, error) {
	var out []*models.Bounty
	for _, b := range st.bounties {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.Client != nil && b.Client != *f.Client {
			continue
		}
		if f.Agent != nil && !b.IsAssigned(*f.Agent) {
			continue
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].Address, out[j].Address)
	})
	return page(out, f.Limit, f.Offset), nil
}

func (st *state) GetReview(_ context.Context, addr uuid.UUID) (*models.Review, error) {
	r, ok := st.reviews[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (st *state) ListReviewsByAgent(_ context.Context, agent uuid.UUID, limit, offset int) ([]*models.Review, error) {
	var out []*models.Review
	for _, r := range st.reviews {
		if r.Agent == agent {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].Address, out[j].Address)
	})
	return page(out, limit, offset), nil
}

func (st *state) GetTokenAccount(_ context.Context, addr uuid.UUID) (*models.TokenAccount, error) {
	a, ok := st.accounts[addr]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (st *state) ListTransfers(_ context.Context, f store.TransferFilter) ([]*models.Transfer, error) {
	var out []*models.Transfer
	for i := len(st.transfers) - 1; i >= 0; i-- {
		t := st.transfers[i]
		if f.Account != nil && t.To != *f.Account && (t.From == nil || *t.From != *f.Account) {
			continue
		}
		if f.Bounty != nil && (t.Bounty == nil || *t.Bounty != *f.Bounty) {
			continue
		}
		out = append(out, &t)
	}
	return page(out, f.Limit, f.Offset), nil
}

func (st *state) GetCredentialByHandle(_ context.Context, handle string) (*models.Credential, error) {
	c, ok := st.credentials[handle]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func newerFirst(ai, aj int64, ki, kj uuid.UUID) bool {
	if ai != aj {
		return ai > aj
	}
	return ki.String() < kj.String()
}

func page[T any](in []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if n := store.Limit(limit); len(in) > n {
		in = in[:n]
	}
	return in
}

package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// tx mutates its private state copy. Row locks are implicit because
// transactions never overlap.
type tx struct {
	*state
	events []models.Event
}

var _ store.Tx = (*tx)(nil)

func (t *tx) InsertAgent(_ context.Context, a *models.AgentRecord) error {
	if _, ok := t.agents[a.Address]; ok {
		return store.ErrAlreadyExists
	}
	t.agents[a.Address] = *a
	return nil
}

func (t *tx) GetAgentForUpdate(ctx context.Context, addr uuid.UUID) (*models.AgentRecord, error) {
	return t.GetAgent(ctx, addr)
}

func (t *tx) UpdateAgent(_ context.Context, a *models.AgentRecord) error {
	if _, ok := t.agents[a.Address]; !ok {
		return store.ErrNotFound
	}
	t.agents[a.Address] = *a
	return nil
}

func (t *tx) InsertClient(_ context.Context, c *models.ClientCounter) error {
	if _, ok := t.clients[c.Address]; ok {
		return store.ErrAlreadyExists
	}
	t.clients[c.Address] = *c
	return nil
}

func (t *tx) GetClientForUpdate(ctx context.Context, addr uuid.UUID) (*models.ClientCounter, error) {
	return t.GetClient(ctx, addr)
}

func (t *tx) UpdateClient(_ context.Context, c *models.ClientCounter) error {
	if _, ok := t.clients[c.Address]; !ok {
		return store.ErrNotFound
	}
	t.clients[c.Address] = *c
	return nil
}

func (t *tx) InsertBounty(_ context.Context, b *models.Bounty) error {
	if _, ok := t.bounties[b.Address]; ok {
		return store.ErrAlreadyExists
	}
	b.Version = 1
	t.bounties[b.Address] = *b
	return nil
}

func (t *tx) GetBountyForUpdate(ctx context.Context, addr uuid.UUID) (*models.Bounty, error) {
	return t.GetBounty(ctx, addr)
}

func (t *tx) UpdateBounty(_ context.Context, b *models.Bounty) error {
	cur, ok := t.bounties[b.Address]
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != b.Version {
		return store.ErrConflict
	}
	b.Version++
	t.bounties[b.Address] = *b
	return nil
}

func (t *tx) InsertReview(_ context.Context, r *models.Review) error {
	if _, ok := t.reviews[r.Address]; ok {
		return store.ErrAlreadyExists
	}
	t.reviews[r.Address] = *r
	return nil
}

func (t *tx) InsertTokenAccount(_ context.Context, a *models.TokenAccount) error {
	if _, ok := t.accounts[a.Address]; ok {
		return store.ErrAlreadyExists
	}
	t.accounts[a.Address] = *a
	return nil
}

func (t *tx) GetTokenAccountForUpdate(ctx context.Context, addr uuid.UUID) (*models.TokenAccount, error) {
	return t.GetTokenAccount(ctx, addr)
}

func (t *tx) EnsureTokenAccount(_ context.Context, a *models.TokenAccount) (*models.TokenAccount, error) {
	if cur, ok := t.accounts[a.Address]; ok {
		return &cur, nil
	}
	t.accounts[a.Address] = *a
	out := *a
	return &out, nil
}

func (t *tx) UpdateTokenBalance(_ context.Context, addr uuid.UUID, balance uint64) error {
	a, ok := t.accounts[addr]
	if !ok {
		return store.ErrNotFound
	}
	a.Balance = balance
	t.accounts[addr] = a
	return nil
}

func (t *tx) DeleteTokenAccount(_ context.Context, addr uuid.UUID) error {
	if _, ok := t.accounts[addr]; !ok {
		return store.ErrNotFound
	}
	delete(t.accounts, addr)
	return nil
}

func (t *tx) InsertTransfer(_ context.Context, tr *models.Transfer) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	t.transfers = append(t.transfers, *tr)
	return nil
}

func (t *tx) InsertCredential(_ context.Context, c *models.Credential) error {
	if _, ok := t.credentials[c.Handle]; ok {
		return store.ErrAlreadyExists
	}
	t.credentials[c.Handle] = *c
	return nil
}

func (t *tx) AppendEvent(_ context.Context, e models.Event) error {
	t.events = append(t.events, e)
	return nil
}

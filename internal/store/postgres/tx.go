package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

type tx struct {
	reader
	tx   pgx.Tx
	sink EventSink
}

var _ store.Tx = (*tx)(nil)

func (t *tx) exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return mapErr(err)
}

// execOne fails with ErrNotFound when no row was touched.
func (t *tx) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) InsertAgent(ctx context.Context, a *models.AgentRecord) error {
	return t.exec(ctx, `
		INSERT INTO agents (address, owner, metadata_uri, hourly_rate, reputation,
			bounties_completed, total_earned, availability, created_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric, $8, $9)
	`, a.Address, a.Owner, a.MetadataURI, num(a.HourlyRate), num(a.Reputation),
		num(a.BountiesCompleted), num(a.TotalEarned), int16(a.Availability), a.CreatedAt)
}

func (t *tx) GetAgentForUpdate(ctx context.Context, addr uuid.UUID) (*models.AgentRecord, error) {
	return scanAgent(t.tx.QueryRow(ctx, `SELECT `+agentCols+` FROM agents WHERE address = $1 FOR UPDATE`, addr))
}

func (t *tx) UpdateAgent(ctx context.Context, a *models.AgentRecord) error {
	return t.execOne(ctx, `
		UPDATE agents SET metadata_uri = $2, hourly_rate = $3::text::numeric, reputation = $4::text::numeric,
			bounties_completed = $5::text::numeric, total_earned = $6::text::numeric, availability = $7
		WHERE address = $1
	`, a.Address, a.MetadataURI, num(a.HourlyRate), num(a.Reputation),
		num(a.BountiesCompleted), num(a.TotalEarned), int16(a.Availability))
}

func (t *tx) InsertClient(ctx context.Context, c *models.ClientCounter) error {
	return t.exec(ctx, `
		INSERT INTO clients (address, owner, bounty_count) VALUES ($1, $2, $3::text::numeric)
	`, c.Address, c.Owner, num(c.BountyCount))
}

func (t *tx) GetClientForUpdate(ctx context.Context, addr uuid.UUID) (*models.ClientCounter, error) {
	return scanClient(t.tx.QueryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE address = $1 FOR UPDATE`, addr))
}

func (t *tx) UpdateClient(ctx context.Context, c *models.ClientCounter) error {
	return t.execOne(ctx, `UPDATE clients SET bounty_count = $2::text::numeric WHERE address = $1`,
		c.Address, num(c.BountyCount))
}

func (t *tx) InsertBounty(ctx context.Context, b *models.Bounty) error {
	b.Version = 1
	return t.exec(ctx, `
		INSERT INTO bounties (address, client, bounty_id, metadata_uri, budget, deadline, status,
			claims, assigned_agent, deliverable_uri, vault, asset, created_at, version)
		VALUES ($1, $2, $3::text::numeric, $4, $5::text::numeric, $6, $7, $8::text::numeric, $9, $10, $11, $12, $13, $14)
	`, b.Address, b.Client, num(b.BountyID), b.MetadataURI, num(b.Budget), b.Deadline, int16(b.Status),
		num(b.Claims), b.AssignedAgent, b.DeliverableURI, b.Vault, b.Asset, b.CreatedAt, b.Version)
}

func (t *tx) GetBountyForUpdate(ctx context.Context, addr uuid.UUID) (*models.Bounty, error) {
	return scanBounty(t.tx.QueryRow(ctx, `SELECT `+bountyCols+` FROM bounties WHERE address = $1 FOR UPDATE`, addr))
}

func (t *tx) UpdateBounty(ctx context.Context, b *models.Bounty) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bounties SET status = $3, claims = $4::text::numeric, assigned_agent = $5,
			deliverable_uri = $6, version = version + 1
		WHERE address = $1 AND version = $2
	`, b.Address, b.Version, int16(b.Status), num(b.Claims), b.AssignedAgent, b.DeliverableURI)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	b.Version++
	return nil
}

func (t *tx) InsertReview(ctx context.Context, r *models.Review) error {
	return t.exec(ctx, `
		INSERT INTO reviews (address, bounty, reviewer, agent, rating, comment_uri, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)
	`, r.Address, r.Bounty, r.Reviewer, r.Agent, num(r.Rating), r.CommentURI, r.CreatedAt)
}

func (t *tx) InsertTokenAccount(ctx context.Context, a *models.TokenAccount) error {
	return t.exec(ctx, `
		INSERT INTO token_accounts (address, owner, owner_kind, asset, balance, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6)
	`, a.Address, a.Owner, a.OwnerKind, a.Asset, num(a.Balance), a.CreatedAt)
}

// EnsureTokenAccount waits out a concurrent insert of the same address
// instead of failing on the primary key.
func (t *tx) EnsureTokenAccount(ctx context.Context, a *models.TokenAccount) (*models.TokenAccount, error) {
	if err := t.exec(ctx, `
		INSERT INTO token_accounts (address, owner, owner_kind, asset, balance, created_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6)
		ON CONFLICT (address) DO NOTHING
	`, a.Address, a.Owner, a.OwnerKind, a.Asset, num(a.Balance), a.CreatedAt); err != nil {
		return nil, err
	}
	return t.GetTokenAccountForUpdate(ctx, a.Address)
}

func (t *tx) GetTokenAccountForUpdate(ctx context.Context, addr uuid.UUID) (*models.TokenAccount, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountCols+` FROM token_accounts WHERE address = $1 FOR UPDATE`, addr))
}

func (t *tx) UpdateTokenBalance(ctx context.Context, addr uuid.UUID, balance uint64) error {
	return t.execOne(ctx, `UPDATE token_accounts SET balance = $2::text::numeric WHERE address = $1`, addr, num(balance))
}

func (t *tx) DeleteTokenAccount(ctx context.Context, addr uuid.UUID) error {
	return t.execOne(ctx, `DELETE FROM token_accounts WHERE address = $1`, addr)
}

func (t *tx) InsertTransfer(ctx context.Context, tr *models.Transfer) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	return t.exec(ctx, `
		INSERT INTO transfers (id, from_acct, to_acct, amount, kind, bounty, created_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)
	`, tr.ID, tr.From, tr.To, num(tr.Amount), tr.Kind, tr.Bounty, tr.CreatedAt)
}

func (t *tx) InsertCredential(ctx context.Context, c *models.Credential) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO credentials (id, handle, password_hash) VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.Handle, c.PasswordHash).Scan(&c.CreatedAt)
	return mapErr(err)
}

func (t *tx) AppendEvent(ctx context.Context, e models.Event) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal event attributes: %w", err)
	}
	if e.Attributes == nil {
		attrs = []byte("{}")
	}
	if err := t.exec(ctx, `
		INSERT INTO ledger_events (id, kind, subject, actor, occurred_at, attributes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Kind, e.Subject, e.Actor, e.OccurredAt, attrs); err != nil {
		return err
	}
	if t.sink == nil {
		return nil
	}
	return t.sink(ctx, t.tx, e)
}

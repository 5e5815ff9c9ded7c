package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

const (
	agentCols = `address, owner, metadata_uri, hourly_rate::text, reputation::text,
		bounties_completed::text, total_earned::text, availability, created_at`
	clientCols = `address, owner, bounty_count::text`
	bountyCols = `address, client, bounty_id::text, metadata_uri, budget::text, deadline, status,
		claims::text, assigned_agent, deliverable_uri, vault, asset, created_at, version`
	reviewCols   = `address, bounty, reviewer, agent, rating::text, comment_uri, created_at`
	accountCols  = `address, owner, owner_kind, asset, balance::text, created_at`
	transferCols = `id, from_acct, to_acct, amount::text, kind, bounty, created_at`
)

type reader struct {
	q querier
}

func scanAgent(row pgx.Row) (*models.AgentRecord, error) {
	var a models.AgentRecord
	var avail int16
	err := row.Scan(&a.Address, &a.Owner, &a.MetadataURI, (*u64)(&a.HourlyRate), (*u64)(&a.Reputation),
		(*u64)(&a.BountiesCompleted), (*u64)(&a.TotalEarned), &avail, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	a.Availability = models.Availability(avail)
	return &a, nil
}

func scanClient(row pgx.Row) (*models.ClientCounter, error) {
	var c models.ClientCounter
	if err := row.Scan(&c.Address, &c.Owner, (*u64)(&c.BountyCount)); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func scanBounty(row pgx.Row) (*models.Bounty, error) {
	var b models.Bounty
	var status int16
	err := row.Scan(&b.Address, &b.Client, (*u64)(&b.BountyID), &b.MetadataURI, (*u64)(&b.Budget), &b.Deadline, &status,
		(*u64)(&b.Claims), &b.AssignedAgent, &b.DeliverableURI, &b.Vault, &b.Asset, &b.CreatedAt, &b.Version)
	if err != nil {
		return nil, mapErr(err)
	}
	b.Status = models.BountyStatus(status)
	return &b, nil
}

func scanReview(row pgx.Row) (*models.Review, error) {
	var r models.Review
	err := row.Scan(&r.Address, &r.Bounty, &r.Reviewer, &r.Agent, (*u64)(&r.Rating), &r.CommentURI, &r.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func scanAccount(row pgx.Row) (*models.TokenAccount, error) {
	var a models.TokenAccount
	err := row.Scan(&a.Address, &a.Owner, &a.OwnerKind, &a.Asset, (*u64)(&a.Balance), &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &a, nil
}

func scanTransfer(row pgx.Row) (*models.Transfer, error) {
	var t models.Transfer
	err := row.Scan(&t.ID, &t.From, &t.To, (*u64)(&t.Amount), &t.Kind, &t.Bounty, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r reader) GetAgent(ctx context.Context, addr uuid.UUID) (*models.AgentRecord, error) {
	return scanAgent(r.q.QueryRow(ctx, `SELECT `+agentCols+` FROM agents WHERE address = $1`, addr))
}

func (r reader) ListAgents(ctx context.Context, f store.AgentFilter) ([]*models.AgentRecord, error) {
	w := where{}
	if f.Availability != nil {
		w.add("availability = $%d", int16(*f.Availability))
	}
	sql := `SELECT ` + agentCols + ` FROM agents` + w.String() +
		fmt.Sprintf(` ORDER BY created_at DESC, address LIMIT %d OFFSET %d`, store.Limit(f.Limit), max(f.Offset, 0))
	rows, err := r.q.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAgent)
}

func (r reader) GetClient(ctx context.Context, addr uuid.UUID) (*models.ClientCounter, error) {
	return scanClient(r.q.QueryRow(ctx, `SELECT `+clientCols+` FROM clients WHERE address = $1`, addr))
}

func (r reader) GetBounty(ctx context.Context, addr uuid.UUID) (*models.Bounty, error) {
	return scanBounty(r.q.QueryRow(ctx, `SELECT `+bountyCols+` FROM bounties WHERE address = $1`, addr))
}

func (r reader) ListBounties(ctx context.Context, f store.BountyFilter) ([]*models.Bounty, error) {
	w := where{}
	if f.Status != nil {
		w.add("status = $%d", int16(*f.Status))
	}
	if f.Client != nil {
		w.add("client = $%d", *f.Client)
	}
	if f.Agent != nil {
		w.add("assigned_agent = $%d", *f.Agent)
	}
	sql := `SELECT ` + bountyCols + ` FROM bounties` + w.String() +
		fmt.Sprintf(` ORDER BY created_at DESC, address LIMIT %d OFFSET %d`, store.Limit(f.Limit), max(f.Offset, 0))
	rows, err := r.q.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBounty)
}

func (r reader) GetReview(ctx context.Context, addr uuid.UUID) (*models.Review, error) {
	return scanReview(r.q.QueryRow(ctx, `SELECT `+reviewCols+` FROM reviews WHERE address = $1`, addr))
}

func (r reader) ListReviewsByAgent(ctx context.Context, agent uuid.UUID, limit, offset int) ([]*models.Review, error) {
	rows, err := r.q.Query(ctx, `SELECT `+reviewCols+` FROM reviews WHERE agent = $1
		ORDER BY created_at DESC, address LIMIT $2 OFFSET $3`, agent, store.Limit(limit), max(offset, 0))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanReview)
}

func (r reader) GetTokenAccount(ctx context.Context, addr uuid.UUID) (*models.TokenAccount, error) {
	return scanAccount(r.q.QueryRow(ctx, `SELECT `+accountCols+` FROM token_accounts WHERE address = $1`, addr))
}

func (r reader) ListTransfers(ctx context.Context, f store.TransferFilter) ([]*models.Transfer, error) {
	w := where{}
	if f.Account != nil {
		n := w.next(*f.Account)
		w.clauses = append(w.clauses, fmt.Sprintf("(from_acct = $%d OR to_acct = $%d)", n, n))
	}
	if f.Bounty != nil {
		w.add("bounty = $%d", *f.Bounty)
	}
	sql := `SELECT ` + transferCols + ` FROM transfers` + w.String() +
		fmt.Sprintf(` ORDER BY seq DESC LIMIT %d OFFSET %d`, store.Limit(f.Limit), max(f.Offset, 0))
	rows, err := r.q.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTransfer)
}

func (r reader) GetCredentialByHandle(ctx context.Context, handle string) (*models.Credential, error) {
	var c models.Credential
	err := r.q.QueryRow(ctx, `
		SELECT id, handle, password_hash, created_at FROM credentials WHERE handle = $1
	`, handle).Scan(&c.ID, &c.Handle, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// where accumulates positional filter clauses.
type where struct {
	clauses []string
	args    []any
}

func (w *where) next(arg any) int {
	w.args = append(w.args, arg)
	return len(w.args)
}

func (w *where) add(format string, arg any) {
	w.clauses = append(w.clauses, fmt.Sprintf(format, w.next(arg)))
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Package bounty is the bounty ledger: the escrow-backed lifecycle
// Open → Claimed → Delivered → Completed, with Cancelled and Disputed exits,
// and the client's review of completed work.
package bounty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
	"github.com/bountyboard/backend/internal/telemetry"
	"github.com/bountyboard/backend/internal/token"
)

// ProgramID is the ledger's own identity. The agent record store trusts
// settlement calls presented under it.
var ProgramID = address.Program("bounty-ledger")

// Substrate moves escrow. Every call joins the caller's transaction.
type Substrate interface {
	Asset() string
	WalletAddress(owner uuid.UUID) uuid.UUID
	EnsureWalletAccount(ctx context.Context, tx store.Tx, owner uuid.UUID) (*models.TokenAccount, error)
	OpenVault(ctx context.Context, tx store.Tx, vault uuid.UUID) (*models.TokenAccount, error)
	Transfer(ctx context.Context, tx store.Tx, p token.TransferParams) error
	CloseAccount(ctx context.Context, tx store.Tx, addr uuid.UUID, auth token.Authorization) error
	Balance(ctx context.Context, r store.Reader, addr uuid.UUID) (uint64, error)
}

// Settlement credits agent records for completed work.
type Settlement interface {
	SettleReputation(ctx context.Context, tx store.Tx, caller, agent uuid.UUID, rating uint64) error
	AddEarnings(ctx context.Context, tx store.Tx, caller, agent uuid.UUID, amount uint64) error
}

// VaultSigner authorizes debits from vaults the ledger owns.
type VaultSigner interface {
	Sign(vault uuid.UUID) token.Authorization
}

type Service interface {
	InitClient(ctx context.Context, owner uuid.UUID) (*models.ClientCounter, error)
	CreateBounty(ctx context.Context, client uuid.UUID, p CreateParams) (*models.Bounty, error)
	Claim(ctx context.Context, agent, bounty uuid.UUID) (*models.Bounty, error)
	Submit(ctx context.Context, agent, bounty uuid.UUID, deliverableURI string) (*models.Bounty, error)
	Approve(ctx context.Context, client, bounty uuid.UUID) (*models.Bounty, error)
	Dispute(ctx context.Context, caller, bounty uuid.UUID) (*models.Bounty, error)
	Cancel(ctx context.Context, client, bounty uuid.UUID) (*models.Bounty, error)
	LeaveReview(ctx context.Context, client, bounty uuid.UUID, rating uint64, commentURI string) (*models.Review, error)

	Get(ctx context.Context, bounty uuid.UUID) (*models.Bounty, error)
	List(ctx context.Context, f store.BountyFilter) ([]*models.Bounty, error)
	VaultBalance(ctx context.Context, b *models.Bounty) (uint64, error)
	GetClient(ctx context.Context, owner uuid.UUID) (*models.ClientCounter, error)
	GetReview(ctx context.Context, bounty uuid.UUID) (*models.Review, error)
	ListReviews(ctx context.Context, agent uuid.UUID, limit, offset int) ([]*models.Review, error)
}

// CreateParams describes a new bounty. Deadline is unix seconds.
type CreateParams struct {
	MetadataURI string
	Budget      uint64
	Deadline    int64
}

type Option func(*service)

func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *service) { s.log = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *service) { s.metrics = m } }

type service struct {
	store   store.Store
	tokens  Substrate
	settle  Settlement
	signer  VaultSigner
	now     func() time.Time
	log     *slog.Logger
	metrics *telemetry.Metrics
}

func NewService(st store.Store, tokens Substrate, settle Settlement, signer VaultSigner, opts ...Option) *service {
	s := &service{
		store:  st,
		tokens: tokens,
		settle: settle,
		signer: signer,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Service = (*service)(nil)

func (s *service) lockBounty(ctx context.Context, tx store.Tx, addr uuid.UUID) (*models.Bounty, error) {
	b, err := tx.GetBountyForUpdate(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("bounty %s not found", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("lock bounty: %w", err)
	}
	return b, nil
}

func (s *service) saveBounty(ctx context.Context, tx store.Tx, b *models.Bounty) error {
	err := tx.UpdateBounty(ctx, b)
	if errors.Is(err, store.ErrConflict) {
		return apperr.New(apperr.CodeConcurrentUpdate, "bounty %s changed concurrently", b.Address)
	}
	if err != nil {
		return fmt.Errorf("update bounty: %w", err)
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx store.Tx, kind string, subject, actor uuid.UUID, attrs map[string]string) error {
	return tx.AppendEvent(ctx, models.NewEvent(kind, subject, actor, s.now().Unix(), attrs))
}

func validateURI(field, uri string) error {
	if len(uri) > models.MaxURILen {
		return apperr.InvalidInput("%s exceeds %d bytes", field, models.MaxURILen)
	}
	return nil
}

// --- reads ---

func (s *service) Get(ctx context.Context, addr uuid.UUID) (*models.Bounty, error) {
	b, err := s.store.GetBounty(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("bounty %s not found", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("get bounty: %w", err)
	}
	return b, nil
}

func (s *service) List(ctx context.Context, f store.BountyFilter) ([]*models.Bounty, error) {
	list, err := s.store.ListBounties(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bounties: %w", err)
	}
	return list, nil
}

func (s *service) VaultBalance(ctx context.Context, b *models.Bounty) (uint64, error) {
	return s.tokens.Balance(ctx, s.store, b.Vault)
}

func (s *service) GetClient(ctx context.Context, owner uuid.UUID) (*models.ClientCounter, error) {
	c, err := s.store.GetClient(ctx, address.Client(owner))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("client %s not initialized", owner)
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

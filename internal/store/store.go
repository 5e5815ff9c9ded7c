// Package store defines the transactional persistence port shared by the
// ledger services. Implementations live in store/postgres and store/memory.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: version conflict")
)

// DefaultListLimit applies when a filter leaves Limit at zero. MaxListLimit
// caps any page.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// AgentFilter narrows ListAgents.
type AgentFilter struct {
	Availability *models.Availability
	Limit        int
	Offset       int
}

// BountyFilter narrows ListBounties. Zero-valued fields match everything.
type BountyFilter struct {
	Status *models.BountyStatus
	Client *uuid.UUID
	Agent  *uuid.UUID
	Limit  int
	Offset int
}

// TransferFilter narrows ListTransfers to movements touching Account.
type TransferFilter struct {
	Account *uuid.UUID
	Bounty  *uuid.UUID
	Limit   int
	Offset  int
}

// Reader is the read side of the store, usable inside or outside a
// transaction.
type Reader interface {
	GetAgent(ctx context.Context, addr uuid.UUID) (*models.AgentRecord, error)
	ListAgents(ctx context.Context, f AgentFilter) ([]*models.AgentRecord, error)
	GetClient(ctx context.Context, addr uuid.UUID) (*models.ClientCounter, error)
	GetBounty(ctx context.Context, addr uuid.UUID) (*models.Bounty, error)
	ListBounties(ctx context.Context, f BountyFilter) ([]*models.Bounty, error)
	GetReview(ctx context.Context, addr uuid.UUID) (*models.Review, error)
	ListReviewsByAgent(ctx context.Context, agent uuid.UUID, limit, offset int) ([]*models.Review, error)
	GetTokenAccount(ctx context.Context, addr uuid.UUID) (*models.TokenAccount, error)
	ListTransfers(ctx context.Context, f TransferFilter) ([]*models.Transfer, error)
	GetCredentialByHandle(ctx context.Context, handle string) (*models.Credential, error)
}

// Tx is a unit of work. Every ForUpdate read locks the row until the
// transaction ends; Update methods on versioned rows return ErrConflict
// when the row changed since it was read.
type Tx interface {
	Reader

	InsertAgent(ctx context.Context, a *models.AgentRecord) error
	GetAgentForUpdate(ctx context.Context, addr uuid.UUID) (*models.AgentRecord, error)
	UpdateAgent(ctx context.Context, a *models.AgentRecord) error

	InsertClient(ctx context.Context, c *models.ClientCounter) error
	GetClientForUpdate(ctx context.Context, addr uuid.UUID) (*models.ClientCounter, error)
	UpdateClient(ctx context.Context, c *models.ClientCounter) error

	InsertBounty(ctx context.Context, b *models.Bounty) error
	GetBountyForUpdate(ctx context.Context, addr uuid.UUID) (*models.Bounty, error)
	// UpdateBounty writes b if its Version still matches and bumps Version.
	UpdateBounty(ctx context.Context, b *models.Bounty) error

	InsertReview(ctx context.Context, r *models.Review) error

	InsertTokenAccount(ctx context.Context, a *models.TokenAccount) error
	GetTokenAccountForUpdate(ctx context.Context, addr uuid.UUID) (*models.TokenAccount, error)
	// EnsureTokenAccount inserts a unless an account already exists at
	// a.Address, and returns the stored row locked for update. Concurrent
	// callers for the same address all succeed.
	EnsureTokenAccount(ctx context.Context, a *models.TokenAccount) (*models.TokenAccount, error)
	UpdateTokenBalance(ctx context.Context, addr uuid.UUID, balance uint64) error
	DeleteTokenAccount(ctx context.Context, addr uuid.UUID) error
	InsertTransfer(ctx context.Context, t *models.Transfer) error

	InsertCredential(ctx context.Context, c *models.Credential) error

	// AppendEvent queues e for delivery once the transaction commits.
	AppendEvent(ctx context.Context, e models.Event) error
}

// Store runs transactions. A non-nil error from fn rolls the transaction
// back and is returned unchanged.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Limit resolves a caller supplied page size.
func Limit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}

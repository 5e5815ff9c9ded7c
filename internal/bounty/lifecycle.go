package bounty

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
	"github.com/bountyboard/backend/internal/token"
)

func (s *service) InitClient(ctx context.Context, owner uuid.UUID) (*models.ClientCounter, error) {
	c := &models.ClientCounter{Address: address.Client(owner), Owner: owner}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertClient(ctx, c); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return apperr.New(apperr.CodeAlreadyExists, "client %s already initialized", owner)
			}
			return fmt.Errorf("insert client: %w", err)
		}
		return s.emit(ctx, tx, models.EventClientInitialized, c.Address, owner, nil)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateBounty takes the next sequence number from the client's counter,
// opens the vault and locks the budget into it in one transaction.
func (s *service) CreateBounty(ctx context.Context, client uuid.UUID, p CreateParams) (*models.Bounty, error) {
	if err := validateURI("metadata_uri", p.MetadataURI); err != nil {
		return nil, err
	}
	if p.Budget == 0 {
		return nil, apperr.InvalidInput("budget must be > 0")
	}
	now := s.now().Unix()
	if p.Deadline <= now {
		return nil, apperr.New(apperr.CodeDeadlinePassed, "deadline %d is not after now (%d)", p.Deadline, now)
	}

	var b *models.Bounty
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		counter, err := tx.GetClientForUpdate(ctx, address.Client(client))
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("client %s not initialized", client)
		}
		if err != nil {
			return fmt.Errorf("lock client: %w", err)
		}
		if counter.BountyCount == math.MaxUint64 {
			return apperr.New(apperr.CodeOverflow, "client %s bounty counter exhausted", client)
		}
		seq := counter.BountyCount
		addr := address.Bounty(client, seq)
		b = &models.Bounty{
			Address:     addr,
			Client:      client,
			BountyID:    seq,
			MetadataURI: p.MetadataURI,
			Budget:      p.Budget,
			Deadline:    p.Deadline,
			Status:      models.BountyOpen,
			Vault:       address.Vault(addr),
			Asset:       s.tokens.Asset(),
			CreatedAt:   now,
		}
		if err := tx.InsertBounty(ctx, b); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return apperr.New(apperr.CodeAlreadyExists, "bounty %s already exists", addr)
			}
			return fmt.Errorf("insert bounty: %w", err)
		}
		if _, err := s.tokens.OpenVault(ctx, tx, b.Vault); err != nil {
			return err
		}
		err = s.tokens.Transfer(ctx, tx, token.TransferParams{
			From:   s.tokens.WalletAddress(client),
			To:     b.Vault,
			Amount: p.Budget,
			Auth:   token.Wallet(client),
			Kind:   models.TransferEscrowLock,
			Bounty: &addr,
		})
		if err != nil {
			return err
		}
		counter.BountyCount = seq + 1
		if err := tx.UpdateClient(ctx, counter); err != nil {
			return fmt.Errorf("update client: %w", err)
		}
		return s.emit(ctx, tx, models.EventBountyCreated, addr, client, map[string]string{
			"bounty_id": strconv.FormatUint(seq, 10),
			"budget":    strconv.FormatUint(p.Budget, 10),
			"deadline":  strconv.FormatInt(p.Deadline, 10),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BountyCreated(ctx)
	s.metrics.Escrow(ctx, models.TransferEscrowLock, b.Budget)
	s.log.Info("bounty created", "bounty", b.Address, "client", client, "bounty_id", b.BountyID, "budget", b.Budget)
	return b, nil
}

func (s *service) Claim(ctx context.Context, agent, addr uuid.UUID) (*models.Bounty, error) {
	var b *models.Bounty
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = s.lockBounty(ctx, tx, addr); err != nil {
			return err
		}
		if b.Status != models.BountyOpen {
			return apperr.New(apperr.CodeNotOpen, "bounty %s is %s", addr, b.Status)
		}
		b.AssignedAgent = &agent
		b.Status = models.BountyClaimed
		b.Claims++
		if err := s.saveBounty(ctx, tx, b); err != nil {
			return err
		}
		return s.emit(ctx, tx, models.EventBountyClaimed, addr, agent, nil)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BountyClaimed(ctx)
	s.log.Info("bounty claimed", "bounty", addr, "agent", agent)
	return b, nil
}

func (s *service) Submit(ctx context.Context, agent, addr uuid.UUID, deliverableURI string) (*models.Bounty, error) {
	if err := validateURI("deliverable_uri", deliverableURI); err != nil {
		return nil, err
	}
	var b *models.Bounty
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = s.lockBounty(ctx, tx, addr); err != nil {
			return err
		}
		if b.Status != models.BountyClaimed {
			return apperr.New(apperr.CodeNotClaimed, "bounty %s is %s", addr, b.Status)
		}
		if !b.IsAssigned(agent) {
			return apperr.New(apperr.CodeNotAssignedAgent, "caller %s is not the assigned agent", agent)
		}
		b.DeliverableURI = deliverableURI
		b.Status = models.BountyDelivered
		if err := s.saveBounty(ctx, tx, b); err != nil {
			return err
		}
		return s.emit(ctx, tx, models.EventBountyDelivered, addr, agent, map[string]string{
			"deliverable_uri": deliverableURI,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("work submitted", "bounty", addr, "agent", agent)
	return b, nil
}

// Approve releases the whole vault to the assigned agent's wallet and
// credits the agent record's earnings when the agent has one.
func (s *service) Approve(ctx context.Context, client, addr uuid.UUID) (*models.Bounty, error) {
	var b *models.Bounty
	var released uint64
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = s.lockBounty(ctx, tx, addr); err != nil {
			return err
		}
		if b.Client != client {
			return apperr.Unauthorized("caller %s is not the client of bounty %s", client, addr)
		}
		if b.Status != models.BountyDelivered || b.AssignedAgent == nil {
			return apperr.New(apperr.CodeNotDelivered, "bounty %s is %s", addr, b.Status)
		}
		agent := *b.AssignedAgent

		if released, err = s.tokens.Balance(ctx, tx, b.Vault); err != nil {
			return err
		}
		if released > 0 {
			dst, err := s.tokens.EnsureWalletAccount(ctx, tx, agent)
			if err != nil {
				return err
			}
			err = s.tokens.Transfer(ctx, tx, token.TransferParams{
				From:   b.Vault,
				To:     dst.Address,
				Amount: released,
				Auth:   s.signer.Sign(b.Vault),
				Kind:   models.TransferEscrowRelease,
				Bounty: &addr,
			})
			if err != nil {
				return err
			}
		}

		switch _, err := tx.GetAgent(ctx, address.Agent(agent)); {
		case err == nil:
			if err := s.settle.AddEarnings(ctx, tx, ProgramID, address.Agent(agent), released); err != nil {
				return err
			}
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("get agent: %w", err)
		}

		b.Status = models.BountyCompleted
		if err := s.saveBounty(ctx, tx, b); err != nil {
			return err
		}
		return s.emit(ctx, tx, models.EventBountyCompleted, addr, client, map[string]string{
			"agent":    agent.String(),
			"released": strconv.FormatUint(released, 10),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BountyCompleted(ctx)
	s.metrics.Escrow(ctx, models.TransferEscrowRelease, released)
	s.log.Info("bounty completed", "bounty", addr, "client", client, "agent", *b.AssignedAgent, "released", released)
	return b, nil
}

// Dispute freezes a claimed or delivered bounty. Funds stay in the vault.
func (s *service) Dispute(ctx context.Context, caller, addr uuid.UUID) (*models.Bounty, error) {
	var b *models.Bounty
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = s.lockBounty(ctx, tx, addr); err != nil {
			return err
		}
		if caller != b.Client && !b.IsAssigned(caller) {
			return apperr.Unauthorized("caller %s is not a party to bounty %s", caller, addr)
		}
		if b.Status != models.BountyClaimed && b.Status != models.BountyDelivered {
			return apperr.New(apperr.CodeCannotDispute, "bounty %s is %s", addr, b.Status)
		}
		b.Status = models.BountyDisputed
		if err := s.saveBounty(ctx, tx, b); err != nil {
			return err
		}
		return s.emit(ctx, tx, models.EventBountyDisputed, addr, caller, nil)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BountyDisputed(ctx)
	s.log.Warn("bounty disputed", "bounty", addr, "caller", caller)
	return b, nil
}

// Cancel refunds an open bounty's vault to the client and closes it.
func (s *service) Cancel(ctx context.Context, client, addr uuid.UUID) (*models.Bounty, error) {
	var b *models.Bounty
	var refunded uint64
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if b, err = s.lockBounty(ctx, tx, addr); err != nil {
			return err
		}
		if b.Client != client {
			return apperr.Unauthorized("caller %s is not the client of bounty %s", client, addr)
		}
		if b.Status != models.BountyOpen {
			return apperr.New(apperr.CodeNotOpen, "bounty %s is %s", addr, b.Status)
		}
		if refunded, err = s.tokens.Balance(ctx, tx, b.Vault); err != nil {
			return err
		}
		auth := s.signer.Sign(b.Vault)
		if refunded > 0 {
			dst, err := s.tokens.EnsureWalletAccount(ctx, tx, client)
			if err != nil {
				return err
			}
			err = s.tokens.Transfer(ctx, tx, token.TransferParams{
				From:   b.Vault,
				To:     dst.Address,
				Amount: refunded,
				Auth:   auth,
				Kind:   models.TransferEscrowRefund,
				Bounty: &addr,
			})
			if err != nil {
				return err
			}
		}
		if err := s.tokens.CloseAccount(ctx, tx, b.Vault, auth); err != nil {
			return err
		}
		b.Status = models.BountyCancelled
		if err := s.saveBounty(ctx, tx, b); err != nil {
			return err
		}
		return s.emit(ctx, tx, models.EventBountyCancelled, addr, client, map[string]string{
			"refunded": strconv.FormatUint(refunded, 10),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BountyCancelled(ctx)
	s.metrics.Escrow(ctx, models.TransferEscrowRefund, refunded)
	s.log.Info("bounty cancelled", "bounty", addr, "client", client, "refunded", refunded)
	return b, nil
}

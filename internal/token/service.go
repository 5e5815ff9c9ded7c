// Package token is the value transfer substrate: custodial token accounts
// and authorized, journaled transfers between them. Every operation runs in
// the caller's store transaction so balance moves commit together with the
// ledger change that caused them.
package token

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// TransferParams describes one debit/credit pair.
type TransferParams struct {
	From   uuid.UUID
	To     uuid.UUID
	Amount uint64
	Auth   Authorization
	Kind   string
	Bounty *uuid.UUID
}

// Service moves one settlement asset.
type Service struct {
	asset    string
	verifier *Signer
	now      func() time.Time
}

// NewService returns a substrate for asset. verifier checks proofs on
// program-owned accounts.
func NewService(asset string, verifier *Signer) *Service {
	return &Service{asset: asset, verifier: verifier, now: time.Now}
}

// Asset is the settlement asset identifier.
func (s *Service) Asset() string { return s.asset }

// WalletAddress is owner's wallet account address for the asset.
func (s *Service) WalletAddress(owner uuid.UUID) uuid.UUID {
	return address.TokenAccount(owner, s.asset)
}

// EnsureWalletAccount returns owner's wallet account, creating it empty if
// it does not exist.
func (s *Service) EnsureWalletAccount(ctx context.Context, tx store.Tx, owner uuid.UUID) (*models.TokenAccount, error) {
	acct, err := tx.EnsureTokenAccount(ctx, &models.TokenAccount{
		Address:   s.WalletAddress(owner),
		Owner:     owner,
		OwnerKind: models.OwnerWallet,
		Asset:     s.asset,
		CreatedAt: s.now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("ensure wallet account: %w", err)
	}
	return acct, nil
}

// OpenVault creates the program-owned account at vault. The vault is its
// own authority.
func (s *Service) OpenVault(ctx context.Context, tx store.Tx, vault uuid.UUID) (*models.TokenAccount, error) {
	acct := &models.TokenAccount{
		Address:   vault,
		Owner:     vault,
		OwnerKind: models.OwnerProgram,
		Asset:     s.asset,
		CreatedAt: s.now().Unix(),
	}
	if err := tx.InsertTokenAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperr.New(apperr.CodeAlreadyExists, "vault %s already exists", vault)
		}
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return acct, nil
}

// Transfer debits p.From and credits p.To by p.Amount.
func (s *Service) Transfer(ctx context.Context, tx store.Tx, p TransferParams) error {
	if p.Amount == 0 {
		return apperr.InvalidInput("transfer amount must be positive")
	}
	if p.From == p.To {
		return apperr.InvalidInput("transfer source and destination are the same account")
	}

	// Lock in address order so opposing transfers cannot deadlock.
	var src, dst *models.TokenAccount
	var err error
	if bytes.Compare(p.From[:], p.To[:]) < 0 {
		if src, err = s.lockSource(ctx, tx, p.From); err == nil {
			dst, err = s.lockDest(ctx, tx, p.To)
		}
	} else {
		if dst, err = s.lockDest(ctx, tx, p.To); err == nil {
			src, err = s.lockSource(ctx, tx, p.From)
		}
	}
	if err != nil {
		return err
	}

	if !s.authorized(src, p.Auth) {
		return apperr.Unauthorized("authority %s may not debit account %s", p.Auth.Authority, src.Address)
	}
	if src.Asset != dst.Asset {
		return apperr.InvalidInput("asset mismatch: %s -> %s", src.Asset, dst.Asset)
	}
	if src.Balance < p.Amount {
		return apperr.New(apperr.CodeInsufficientFunds, "account %s holds %d, needs %d", src.Address, src.Balance, p.Amount)
	}
	if dst.Balance > math.MaxUint64-p.Amount {
		return apperr.New(apperr.CodeOverflow, "credit to %s overflows", dst.Address)
	}

	if err := tx.UpdateTokenBalance(ctx, src.Address, src.Balance-p.Amount); err != nil {
		return fmt.Errorf("debit %s: %w", src.Address, err)
	}
	if err := tx.UpdateTokenBalance(ctx, dst.Address, dst.Balance+p.Amount); err != nil {
		return fmt.Errorf("credit %s: %w", dst.Address, err)
	}
	from := src.Address
	return tx.InsertTransfer(ctx, &models.Transfer{
		From:      &from,
		To:        dst.Address,
		Amount:    p.Amount,
		Kind:      p.Kind,
		Bounty:    p.Bounty,
		CreatedAt: s.now().Unix(),
	})
}

// A missing source holds nothing.
func (s *Service) lockSource(ctx context.Context, tx store.Tx, addr uuid.UUID) (*models.TokenAccount, error) {
	acct, err := tx.GetTokenAccountForUpdate(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeInsufficientFunds, "account %s does not exist", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("lock source: %w", err)
	}
	return acct, nil
}

func (s *Service) lockDest(ctx context.Context, tx store.Tx, addr uuid.UUID) (*models.TokenAccount, error) {
	acct, err := tx.GetTokenAccountForUpdate(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("account %s does not exist", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("lock destination: %w", err)
	}
	return acct, nil
}

func (s *Service) authorized(acct *models.TokenAccount, auth Authorization) bool {
	switch acct.OwnerKind {
	case models.OwnerWallet:
		return auth.Authority == acct.Owner
	case models.OwnerProgram:
		return auth.Authority == acct.Owner && s.verifier.Verify(acct.Address, auth)
	default:
		return false
	}
}

// CloseAccount removes an empty account.
func (s *Service) CloseAccount(ctx context.Context, tx store.Tx, addr uuid.UUID, auth Authorization) error {
	acct, err := tx.GetTokenAccountForUpdate(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("account %s does not exist", addr)
	}
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	if !s.authorized(acct, auth) {
		return apperr.Unauthorized("authority %s may not close account %s", auth.Authority, addr)
	}
	if acct.Balance != 0 {
		return apperr.InvalidInput("account %s still holds %d", addr, acct.Balance)
	}
	return tx.DeleteTokenAccount(ctx, addr)
}

// Mint credits owner's wallet from nothing. Development faucet only.
func (s *Service) Mint(ctx context.Context, tx store.Tx, owner uuid.UUID, amount uint64) (*models.TokenAccount, error) {
	if amount == 0 {
		return nil, apperr.InvalidInput("mint amount must be positive")
	}
	acct, err := s.EnsureWalletAccount(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	if acct.Balance > math.MaxUint64-amount {
		return nil, apperr.New(apperr.CodeOverflow, "mint to %s overflows", acct.Address)
	}
	acct.Balance += amount
	if err := tx.UpdateTokenBalance(ctx, acct.Address, acct.Balance); err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	err = tx.InsertTransfer(ctx, &models.Transfer{
		To:        acct.Address,
		Amount:    amount,
		Kind:      models.TransferFaucet,
		CreatedAt: s.now().Unix(),
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// MintCapped is Mint bounded by perDay, the faucet total owner may receive
// since UTC midnight. The wallet row is locked before the day's credits are
// counted, so concurrent requests for one owner see each other's mints.
// A zero perDay disables the cap.
func (s *Service) MintCapped(ctx context.Context, tx store.Tx, owner uuid.UUID, amount, perDay uint64) (*models.TokenAccount, error) {
	if perDay == 0 {
		return s.Mint(ctx, tx, owner, amount)
	}
	if amount == 0 {
		return nil, apperr.InvalidInput("mint amount must be positive")
	}
	if _, err := s.EnsureWalletAccount(ctx, tx, owner); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	spent, err := s.MintedSince(ctx, tx, owner, midnight)
	if err != nil {
		return nil, fmt.Errorf("faucet daily total: %w", err)
	}
	if spent >= perDay || amount > perDay-spent {
		return nil, apperr.New(apperr.CodeFaucetLimit, "minted %d today, amount %d exceeds daily limit %d", spent, amount, perDay)
	}
	return s.Mint(ctx, tx, owner, amount)
}

// Balance returns the balance at addr; absent accounts hold zero.
func (s *Service) Balance(ctx context.Context, r store.Reader, addr uuid.UUID) (uint64, error) {
	acct, err := r.GetTokenAccount(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get token account: %w", err)
	}
	return acct.Balance, nil
}

// MintedSince sums faucet credits to owner's wallet at or after since.
func (s *Service) MintedSince(ctx context.Context, r store.Reader, owner uuid.UUID, since time.Time) (uint64, error) {
	addr := s.WalletAddress(owner)
	cutoff := since.Unix()
	var total uint64
	for offset := 0; ; offset += store.MaxListLimit {
		page, err := r.ListTransfers(ctx, store.TransferFilter{Account: &addr, Limit: store.MaxListLimit, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("list transfers: %w", err)
		}
		for _, t := range page {
			if t.CreatedAt < cutoff {
				return total, nil
			}
			if t.Kind == models.TransferFaucet && t.To == addr {
				if total > math.MaxUint64-t.Amount {
					return math.MaxUint64, nil
				}
				total += t.Amount
			}
		}
		if len(page) < store.MaxListLimit {
			return total, nil
		}
	}
}

package models

import "github.com/google/uuid"

// Token account owner kinds.
const (
	OwnerWallet  = "wallet"
	OwnerProgram = "program"
)

// Transfer kinds recorded in the transfer journal.
const (
	TransferEscrowLock    = "escrow_lock"
	TransferEscrowRelease = "escrow_release"
	TransferEscrowRefund  = "escrow_refund"
	TransferFaucet        = "faucet"
)

// TokenAccount holds a balance of one asset in minor units.
type TokenAccount struct {
	Address   uuid.UUID `json:"address"`
	Owner     uuid.UUID `json:"owner"`
	OwnerKind string    `json:"owner_kind"`
	Asset     string    `json:"asset"`
	Balance   uint64    `json:"balance"`
	CreatedAt int64     `json:"created_at"`
}

// Transfer is one journaled balance movement. From is nil for faucet mints.
type Transfer struct {
	ID        uuid.UUID  `json:"id"`
	From      *uuid.UUID `json:"from,omitempty"`
	To        uuid.UUID  `json:"to"`
	Amount    uint64     `json:"amount"`
	Kind      string     `json:"kind"`
	Bounty    *uuid.UUID `json:"bounty,omitempty"`
	CreatedAt int64      `json:"created_at"`
}

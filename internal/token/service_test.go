package token

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
	"github.com/bountyboard/backend/internal/store/memory"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var testSecret = []byte("0123456789abcdef-test")

func newTestService() (*Service, *Signer, *memory.Store) {
	signer := NewSigner(testSecret)
	return NewService("usdc", signer), signer, memory.New(nil)
}

func mint(t *testing.T, svc *Service, st store.Store, owner uuid.UUID, amount uint64) {
	t.Helper()
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := svc.Mint(ctx, tx, owner, amount)
		return err
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func balance(t *testing.T, svc *Service, st store.Store, addr uuid.UUID) uint64 {
	t.Helper()
	b, err := svc.Balance(context.Background(), st, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func transfer(svc *Service, st store.Store, p TransferParams) error {
	return st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.Transfer(ctx, tx, p)
	})
}

// ---------------------------------------------------------------------------
// Wallet transfers
// ---------------------------------------------------------------------------

func TestTransfer_WalletToWallet(t *testing.T) {
	svc, _, st := newTestService()
	alice, bob := uuid.New(), uuid.New()
	mint(t, svc, st, alice, 100)
	_ = st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := svc.EnsureWalletAccount(ctx, tx, bob)
		return err
	})

	err := transfer(svc, st, TransferParams{
		From: svc.WalletAddress(alice), To: svc.WalletAddress(bob),
		Amount: 40, Auth: Wallet(alice), Kind: models.TransferEscrowLock,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := balance(t, svc, st, svc.WalletAddress(alice)); got != 60 {
		t.Errorf("alice balance = %d, want 60", got)
	}
	if got := balance(t, svc, st, svc.WalletAddress(bob)); got != 40 {
		t.Errorf("bob balance = %d, want 40", got)
	}
}

func TestTransfer_WrongAuthority(t *testing.T) {
	svc, _, st := newTestService()
	alice, mallory := uuid.New(), uuid.New()
	mint(t, svc, st, alice, 100)
	mint(t, svc, st, mallory, 1)

	err := transfer(svc, st, TransferParams{
		From: svc.WalletAddress(alice), To: svc.WalletAddress(mallory),
		Amount: 10, Auth: Wallet(mallory),
	})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if got := balance(t, svc, st, svc.WalletAddress(alice)); got != 100 {
		t.Errorf("alice balance moved to %d", got)
	}
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	svc, _, st := newTestService()
	alice, bob := uuid.New(), uuid.New()
	mint(t, svc, st, alice, 5)
	mint(t, svc, st, bob, 1)

	err := transfer(svc, st, TransferParams{
		From: svc.WalletAddress(alice), To: svc.WalletAddress(bob),
		Amount: 6, Auth: Wallet(alice),
	})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestTransfer_MissingSourceIsInsufficient(t *testing.T) {
	svc, _, st := newTestService()
	nobody, bob := uuid.New(), uuid.New()
	mint(t, svc, st, bob, 1)

	err := transfer(svc, st, TransferParams{
		From: svc.WalletAddress(nobody), To: svc.WalletAddress(bob),
		Amount: 1, Auth: Wallet(nobody),
	})
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
}

func TestTransfer_MissingDestination(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	mint(t, svc, st, alice, 10)

	err := transfer(svc, st, TransferParams{
		From: svc.WalletAddress(alice), To: uuid.New(),
		Amount: 1, Auth: Wallet(alice),
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestTransfer_RejectsZeroAndSelf(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	mint(t, svc, st, alice, 10)
	addr := svc.WalletAddress(alice)

	if err := transfer(svc, st, TransferParams{From: addr, To: uuid.New(), Auth: Wallet(alice)}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("zero amount: %v", err)
	}
	if err := transfer(svc, st, TransferParams{From: addr, To: addr, Amount: 1, Auth: Wallet(alice)}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("self transfer: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Vaults
// ---------------------------------------------------------------------------

func TestVault_LockReleaseClose(t *testing.T) {
	svc, signer, st := newTestService()
	client, agent := uuid.New(), uuid.New()
	vault := address.Vault(uuid.New())
	mint(t, svc, st, client, 500)
	mint(t, svc, st, agent, 1)

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := svc.OpenVault(ctx, tx, vault); err != nil {
			return err
		}
		return svc.Transfer(ctx, tx, TransferParams{
			From: svc.WalletAddress(client), To: vault, Amount: 500,
			Auth: Wallet(client), Kind: models.TransferEscrowLock,
		})
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if got := balance(t, svc, st, vault); got != 500 {
		t.Fatalf("vault balance = %d, want 500", got)
	}

	// The client cannot pull funds back without the program signer.
	err = transfer(svc, st, TransferParams{From: vault, To: svc.WalletAddress(client), Amount: 500, Auth: Wallet(client)})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("client debit of vault: expected Unauthorized, got %v", err)
	}
	forged := Authorization{Authority: vault, Proof: []byte("forged")}
	err = transfer(svc, st, TransferParams{From: vault, To: svc.WalletAddress(client), Amount: 500, Auth: forged})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("forged proof: expected Unauthorized, got %v", err)
	}

	err = st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := svc.Transfer(ctx, tx, TransferParams{
			From: vault, To: svc.WalletAddress(agent), Amount: 500,
			Auth: signer.Sign(vault), Kind: models.TransferEscrowRelease,
		}); err != nil {
			return err
		}
		return svc.CloseAccount(ctx, tx, vault, signer.Sign(vault))
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := balance(t, svc, st, svc.WalletAddress(agent)); got != 501 {
		t.Errorf("agent balance = %d, want 501", got)
	}
	if _, err := st.GetTokenAccount(context.Background(), vault); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("vault not closed: %v", err)
	}
}

func TestCloseAccount_NonZeroBalance(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	mint(t, svc, st, alice, 3)

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return svc.CloseAccount(ctx, tx, svc.WalletAddress(alice), Wallet(alice))
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestSigner_DifferentSecretRejected(t *testing.T) {
	addr := uuid.New()
	auth := NewSigner([]byte("another-secret-value")).Sign(addr)
	if NewSigner(testSecret).Verify(addr, auth) {
		t.Error("proof from a different secret verified")
	}
	if !NewSigner(testSecret).Verify(addr, NewSigner(testSecret).Sign(addr)) {
		t.Error("valid proof rejected")
	}
	if NewSigner(testSecret).Verify(uuid.New(), NewSigner(testSecret).Sign(addr)) {
		t.Error("proof for another address verified")
	}
}

// ---------------------------------------------------------------------------
// Faucet
// ---------------------------------------------------------------------------

func TestMint_Overflow(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	mint(t, svc, st, alice, math.MaxUint64)

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := svc.Mint(ctx, tx, alice, 1)
		return err
	})
	if !errors.Is(err, apperr.ErrOverflow) {
		t.Fatalf("expected Overflow, got %v", err)
	}
}

func TestBalance_AbsentAccountIsZero(t *testing.T) {
	svc, _, st := newTestService()
	if got := balance(t, svc, st, uuid.New()); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestMintedSince(t *testing.T) {
	svc, _, st := newTestService()
	alice, bob := uuid.New(), uuid.New()

	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now.Add(-48 * time.Hour) }
	mint(t, svc, st, alice, 1000)
	svc.now = func() time.Time { return now }
	mint(t, svc, st, alice, 30)
	mint(t, svc, st, alice, 12)
	mint(t, svc, st, bob, 7)
	if err := transfer(svc, st, TransferParams{
		From: svc.WalletAddress(alice), To: svc.WalletAddress(bob), Amount: 5, Auth: Wallet(alice),
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	got, err := svc.MintedSince(context.Background(), st, alice, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("MintedSince: %v", err)
	}
	if got != 42 {
		t.Errorf("minted = %d, want 42", got)
	}
}

func TestMintCapped_DailyCap(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now.Add(-24 * time.Hour) }
	mint(t, svc, st, alice, 5000)
	svc.now = func() time.Time { return now }

	capped := func(amount uint64) error {
		return st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, err := svc.MintCapped(ctx, tx, alice, amount, 1000)
			return err
		})
	}
	if err := capped(900); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	if err := capped(101); !errors.Is(err, apperr.ErrFaucetLimit) {
		t.Fatalf("over the cap: expected FaucetLimit, got %v", err)
	}
	if err := capped(100); err != nil {
		t.Fatalf("exactly at the cap: %v", err)
	}
	if err := capped(1); !errors.Is(err, apperr.ErrFaucetLimit) {
		t.Fatalf("cap reached: expected FaucetLimit, got %v", err)
	}
	if got := balance(t, svc, st, svc.WalletAddress(alice)); got != 6000 {
		t.Errorf("balance = %d, want 6000", got)
	}
}

func TestMintCapped_ZeroCapDisables(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := svc.MintCapped(ctx, tx, alice, math.MaxUint64, 0)
		return err
	})
	if err != nil {
		t.Fatalf("uncapped mint: %v", err)
	}
}

func TestMintCapped_ConcurrentRequestsShareTheCap(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()

	var (
		mu       sync.Mutex
		ok, deny int
		wg       sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				_, err := svc.MintCapped(ctx, tx, alice, 300, 1000)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrFaucetLimit):
				deny++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 3 || deny != 7 {
		t.Errorf("ok=%d deny=%d, want 3 and 7", ok, deny)
	}
	if got := balance(t, svc, st, svc.WalletAddress(alice)); got != 900 {
		t.Errorf("balance = %d, want 900", got)
	}
}

func TestEnsureWalletAccount_KeepsBalance(t *testing.T) {
	svc, _, st := newTestService()
	alice := uuid.New()
	mint(t, svc, st, alice, 70)

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		acct, err := svc.EnsureWalletAccount(ctx, tx, alice)
		if err != nil {
			return err
		}
		if acct.Balance != 70 || acct.OwnerKind != models.OwnerWallet {
			t.Errorf("ensured account: %+v", acct)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
}

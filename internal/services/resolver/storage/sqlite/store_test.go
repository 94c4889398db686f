package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	"lukechampine.com/uint128"
)

var testProgramID = address.Address{0x42, 0x17}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	now := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"), testProgramID, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func putTestVault(t *testing.T, store *Store, house address.Address) storage.Vault {
	t.Helper()
	vaultAddr, bump, err := bet.DeriveVault(house, testProgramID)
	if err != nil {
		t.Fatalf("derive vault: %v", err)
	}
	vault := storage.Vault{House: house, Address: vaultAddr, Bump: bump}
	if err := store.PutVault(context.Background(), vault); err != nil {
		t.Fatalf("put vault: %v", err)
	}
	return vault
}

func TestOpenRequiresPathAndProgram(t *testing.T) {
	t.Parallel()

	if _, err := Open("", testProgramID); err == nil {
		t.Fatal("expected empty path error")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "x.db"), address.Zero); err == nil {
		t.Fatal("expected missing program id error")
	}
}

func TestCreditAndTransfer(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	alice := address.Address{1}
	bob := address.Address{2}

	if err := store.Credit(ctx, alice, 500, storage.ReasonFaucet); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.Transfer(ctx, storage.TransferRequest{From: alice, To: bob, Amount: 200, Reason: storage.ReasonStake}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got, _ := store.Balance(ctx, alice); got != 300 {
		t.Fatalf("alice balance = %d, want 300", got)
	}
	if got, _ := store.Balance(ctx, bob); got != 200 {
		t.Fatalf("bob balance = %d, want 200", got)
	}

	transfers, err := store.ListTransfers(ctx, alice, 10)
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("transfers = %d, want 2", len(transfers))
	}
	if transfers[0].Reason != storage.ReasonStake || transfers[0].To != bob || transfers[0].Amount != 200 {
		t.Fatalf("newest transfer = %+v", transfers[0])
	}
	if transfers[1].From != address.Zero || transfers[1].Reason != storage.ReasonFaucet {
		t.Fatalf("faucet transfer = %+v", transfers[1])
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	alice := address.Address{1}
	if err := store.Credit(ctx, alice, 10, storage.ReasonFaucet); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := store.Transfer(ctx, storage.TransferRequest{From: alice, To: address.Address{2}, Amount: 11})
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("transfer error = %v, want %v", err, storage.ErrInsufficientFunds)
	}
	if got, _ := store.Balance(ctx, alice); got != 10 {
		t.Fatalf("alice balance = %d, want 10", got)
	}
}

func TestCreditRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	alice := address.Address{1}
	if err := store.Credit(ctx, alice, math.MaxUint64, storage.ReasonFaucet); !errors.Is(err, storage.ErrAmountOutOfRange) {
		t.Fatalf("credit error = %v, want %v", err, storage.ErrAmountOutOfRange)
	}
	if err := store.Credit(ctx, alice, math.MaxInt64, storage.ReasonFaucet); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.Credit(ctx, alice, 1, storage.ReasonFaucet); !errors.Is(err, storage.ErrAmountOutOfRange) {
		t.Fatalf("credit error = %v, want %v", err, storage.ErrAmountOutOfRange)
	}
}

func TestVaultDebitRequiresDerivingSigner(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	house := address.Address{9}
	player := address.Address{1}
	vault := putTestVault(t, store, house)
	if err := store.Credit(ctx, vault.Address, 1_000, storage.ReasonVault); err != nil {
		t.Fatalf("credit vault: %v", err)
	}

	tcs := []struct {
		name   string
		signer *storage.Signer
		want   error
	}{
		{name: "missing signer", signer: nil, want: storage.ErrSignerMismatch},
		{name: "wrong bump", signer: &storage.Signer{Seeds: bet.VaultSeeds(house), Bump: vault.Bump - 1}, want: storage.ErrSignerMismatch},
		{name: "wrong house", signer: &storage.Signer{Seeds: bet.VaultSeeds(player), Bump: vault.Bump}, want: storage.ErrSignerMismatch},
		{name: "derives vault", signer: &storage.Signer{Seeds: bet.VaultSeeds(house), Bump: vault.Bump}, want: nil},
	}
	for _, tc := range tcs {
		err := store.Transfer(ctx, storage.TransferRequest{From: vault.Address, To: player, Amount: 100, Signer: tc.signer})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: transfer error = %v, want %v", tc.name, err, tc.want)
		}
	}
	if got, _ := store.Balance(ctx, player); got != 100 {
		t.Fatalf("player balance = %d, want 100", got)
	}
}

func TestVaultRoundTripAndDuplicate(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	house := address.Address{9}
	vault := putTestVault(t, store, house)

	got, err := store.GetVault(ctx, house)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if got.Address != vault.Address || got.Bump != vault.Bump {
		t.Fatalf("vault = %+v, want %+v", got, vault)
	}
	if err := store.PutVault(ctx, vault); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("put vault error = %v, want %v", err, storage.ErrAlreadyExists)
	}
	if _, err := store.GetVault(ctx, address.Address{8}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get vault error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestBetLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	vault := putTestVault(t, store, address.Address{9})
	seed := uint128.New(7, 1<<63)
	record := storage.Bet{
		Address: address.Address{0xbe},
		Vault:   vault.Address,
		Commitment: bet.Commitment{
			Player: address.Address{1},
			Seed:   seed,
			Slot:   1_772_539_200,
			Amount: 2_500,
			Target: 50,
			Bump:   253,
		},
	}
	if err := store.InsertBet(ctx, record); err != nil {
		t.Fatalf("insert bet: %v", err)
	}
	if err := store.InsertBet(ctx, record); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("insert bet error = %v, want %v", err, storage.ErrAlreadyExists)
	}

	got, err := store.GetBet(ctx, record.Address)
	if err != nil {
		t.Fatalf("get bet: %v", err)
	}
	if got.Commitment != record.Commitment {
		t.Fatalf("commitment = %+v, want %+v", got.Commitment, record.Commitment)
	}
	if got.Vault != vault.Address {
		t.Fatalf("vault = %s, want %s", got.Vault, vault.Address)
	}

	if err := store.DeleteBet(ctx, record.Address); err != nil {
		t.Fatalf("delete bet: %v", err)
	}
	if err := store.DeleteBet(ctx, record.Address); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("delete bet error = %v, want %v", err, storage.ErrNotFound)
	}
	if _, err := store.GetBet(ctx, record.Address); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get bet error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestInsertBetValidatesCommitment(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	vault := putTestVault(t, store, address.Address{9})
	record := storage.Bet{
		Address:    address.Address{0xbe},
		Vault:      vault.Address,
		Commitment: bet.Commitment{Player: address.Address{1}, Amount: 10, Target: 1},
	}
	if err := store.InsertBet(context.Background(), record); !errors.Is(err, bet.ErrInvalidTarget) {
		t.Fatalf("insert bet error = %v, want %v", err, bet.ErrInvalidTarget)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	alice := address.Address{1}
	boom := errors.New("boom")

	err := store.InTx(ctx, func(l storage.Ledger) error {
		if err := l.Credit(ctx, alice, 50, storage.ReasonFaucet); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want %v", err, boom)
	}
	if got, _ := store.Balance(ctx, alice); got != 0 {
		t.Fatalf("alice balance = %d, want 0 after rollback", got)
	}
	transfers, err := store.ListTransfers(ctx, alice, 5)
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(transfers) != 0 {
		t.Fatalf("transfers = %d, want 0 after rollback", len(transfers))
	}
}

func TestAuditEvents(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	betAddr := address.Address{0xbe}
	events := []storage.AuditEvent{
		{BetAddress: betAddr, EventType: "bet.resolution_rejected", Severity: "WARN", State: "Rejected", ErrorCode: "VERIFICATION_MESSAGE_MISMATCH"},
		{BetAddress: betAddr, EventType: "bet.resolved", Severity: "INFO", State: "Paid", Roll: 17, Payout: math.MaxUint64},
	}
	for _, evt := range events {
		if err := store.AppendAuditEvent(ctx, evt); err != nil {
			t.Fatalf("append audit event: %v", err)
		}
	}
	if err := store.AppendAuditEvent(ctx, storage.AuditEvent{BetAddress: betAddr}); err == nil {
		t.Fatal("expected missing event type error")
	}

	got, err := store.ListAuditEvents(ctx, betAddr)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].ErrorCode != "VERIFICATION_MESSAGE_MISMATCH" || got[0].ID == "" {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].Roll != 17 || got[1].Payout != math.MaxUint64 || got[1].State != "Paid" {
		t.Fatalf("second event = %+v", got[1])
	}
}

package domain

import (
	"context"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/louisbranch/fairroll/internal/platform/errors"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/engine"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/payout"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/louisbranch/fairroll/internal/services/resolver/observability/audit"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	ledgersqlite "github.com/louisbranch/fairroll/internal/services/resolver/storage/sqlite"
	"lukechampine.com/uint128"
)

var testProgramID = address.Address{0x50, 0x52, 0x4f, 0x47}

type fixture struct {
	svc    *Service
	store  *ledgersqlite.Store
	key    ed25519.PrivateKey
	house  address.Address
	player address.Address
	now    time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	house, _ := address.FromBytes(pub)

	f := &fixture{key: key, house: house, player: address.Address{0x77, 1}}
	f.now = time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return f.now }

	store, err := ledgersqlite.Open(filepath.Join(t.TempDir(), "ledger.db"), testProgramID, ledgersqlite.WithClock(clock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	f.store = store

	cfg.Authority = house
	cfg.ProgramID = testProgramID
	cfg.FaucetEnabled = true
	svc, err := NewService(store, cfg, WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

// fundVault seeds the house and player and initializes a vault holding vaultAmount.
func (f *fixture) fundVault(t *testing.T, vaultAmount, playerAmount uint64) storage.Vault {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Fund(ctx, f.house, vaultAmount); err != nil {
		t.Fatalf("fund house: %v", err)
	}
	if _, err := f.svc.Fund(ctx, f.player, playerAmount); err != nil {
		t.Fatalf("fund player: %v", err)
	}
	vault, err := f.svc.InitializeVault(ctx, vaultAmount)
	if err != nil {
		t.Fatalf("initialize vault: %v", err)
	}
	return vault
}

// placeSigned places a bet whose signed roll satisfies accept and returns the
// bet with its proof.
func (f *fixture) placeSigned(t *testing.T, vault storage.Vault, target uint8, amount uint64, accept func(uint8) bool) (storage.Bet, ResolveBetInput) {
	t.Helper()
	for i := uint64(1); i < 10_000; i++ {
		seed := uint128.From64(i)
		betAddr, bump, err := bet.DeriveAddress(vault.Address, seed, testProgramID)
		if err != nil {
			t.Fatalf("derive bet: %v", err)
		}
		commitment := bet.Commitment{Player: f.player, Seed: seed, Slot: uint64(f.now.Unix()), Amount: amount, Target: target, Bump: bump}
		record, sig := f.sign(t, commitment)
		if !accept(payout.Roll(sig)) {
			continue
		}
		placed, err := f.svc.PlaceBet(context.Background(), PlaceBetInput{Player: f.player, Seed: seed, Target: target, Amount: amount})
		if err != nil {
			t.Fatalf("place bet: %v", err)
		}
		if placed.Address != betAddr || placed.Commitment != commitment {
			t.Fatalf("placed = %+v, want address %s commitment %+v", placed, betAddr, commitment)
		}
		return placed, ResolveBetInput{Bet: betAddr, Signature: sig, Records: []sigverify.Instruction{record}}
	}
	t.Fatal("no seed produced an acceptable roll")
	return storage.Bet{}, ResolveBetInput{}
}

func (f *fixture) sign(t *testing.T, c bet.Commitment) (sigverify.Instruction, []byte) {
	t.Helper()
	record, err := sigverify.BuildInstruction(f.key, c.Encode())
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	sig, err := sigverify.SignatureFromInstruction(record)
	if err != nil {
		t.Fatalf("read signature: %v", err)
	}
	return record, sig
}

func (f *fixture) balance(t *testing.T, account address.Address) uint64 {
	t.Helper()
	got, err := f.svc.Balance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return got
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if got := apperrors.GetCode(err); got != want {
		t.Fatalf("error code = %s (%v), want %s", got, err, want)
	}
}

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(nil, Config{}); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestInitializeVaultMovesFunds(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 10_000, 0)

	wantAddr, wantBump, _ := bet.DeriveVault(f.house, testProgramID)
	if vault.Address != wantAddr || vault.Bump != wantBump {
		t.Fatalf("vault = %+v, want %s/%d", vault, wantAddr, wantBump)
	}
	if got := f.balance(t, f.house); got != 0 {
		t.Fatalf("house balance = %d, want 0", got)
	}
	_, vaultBalance, err := f.svc.Vault(context.Background())
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vaultBalance != 10_000 {
		t.Fatalf("vault balance = %d, want 10000", vaultBalance)
	}

	_, err = f.svc.InitializeVault(context.Background(), 0)
	assertCode(t, err, apperrors.CodeLedgerVaultExists)
}

func TestFundRequiresFaucet(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.cfg.FaucetEnabled = false
	_, err := f.svc.Fund(context.Background(), f.player, 1)
	assertCode(t, err, apperrors.CodeLedgerFaucetDisabled)
}

func TestPlaceBetValidation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.PlaceBet(ctx, PlaceBetInput{Player: f.player, Target: 50, Amount: 10})
	assertCode(t, err, apperrors.CodeLedgerVaultMissing)

	f.fundVault(t, 1_000, 100)
	tcs := []struct {
		name string
		in   PlaceBetInput
		want apperrors.Code
	}{
		{name: "target one", in: PlaceBetInput{Player: f.player, Target: 1, Amount: 10}, want: apperrors.CodeBetInvalidTarget},
		{name: "target past range", in: PlaceBetInput{Player: f.player, Target: 101, Amount: 10}, want: apperrors.CodeBetInvalidTarget},
		{name: "zero amount", in: PlaceBetInput{Player: f.player, Target: 50}, want: apperrors.CodeBetInvalidAmount},
		{name: "no player", in: PlaceBetInput{Target: 50, Amount: 10}, want: apperrors.CodeInvalidAddress},
		{name: "insufficient funds", in: PlaceBetInput{Player: f.player, Target: 50, Amount: 101}, want: apperrors.CodeLedgerInsufficientFunds},
	}
	for _, tc := range tcs {
		_, err := f.svc.PlaceBet(ctx, tc.in)
		if got := apperrors.GetCode(err); got != tc.want {
			t.Fatalf("%s: code = %s (%v), want %s", tc.name, got, err, tc.want)
		}
	}

	var appErr *apperrors.Error
	_, err = f.svc.PlaceBet(ctx, PlaceBetInput{Player: f.player, Target: 1, Amount: 10})
	if !errors.As(err, &appErr) || appErr.Metadata["Min"] != "2" || appErr.Metadata["Max"] != "100" {
		t.Fatalf("metadata = %+v, want target range", appErr)
	}
	if got := f.balance(t, f.player); got != 100 {
		t.Fatalf("player balance = %d, want untouched 100", got)
	}
}

func TestPlaceBetStakesAndRejectsDuplicateSeed(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 1_000, 100)
	ctx := context.Background()

	in := PlaceBetInput{Player: f.player, Seed: uint128.From64(42), Target: 50, Amount: 40}
	placed, err := f.svc.PlaceBet(ctx, in)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if placed.Commitment.Slot != uint64(f.now.Unix()) {
		t.Fatalf("slot = %d, want %d", placed.Commitment.Slot, f.now.Unix())
	}
	if got := f.balance(t, f.player); got != 60 {
		t.Fatalf("player balance = %d, want 60", got)
	}
	if got := f.balance(t, vault.Address); got != 1_040 {
		t.Fatalf("vault balance = %d, want 1040", got)
	}

	_, err = f.svc.PlaceBet(ctx, in)
	assertCode(t, err, apperrors.CodeBetAlreadyExists)
	if got := f.balance(t, f.player); got != 60 {
		t.Fatalf("player balance = %d, want 60 after duplicate", got)
	}

	fetched, err := f.svc.GetBet(ctx, placed.Address)
	if err != nil {
		t.Fatalf("get bet: %v", err)
	}
	if fetched.Commitment != placed.Commitment {
		t.Fatalf("fetched = %+v, want %+v", fetched.Commitment, placed.Commitment)
	}
}

func TestResolveBetPaysWinnerOnce(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 100_000, 1_000)
	ctx := context.Background()

	placed, proof := f.placeSigned(t, vault, 50, 1_000, func(roll uint8) bool { return roll < 50 })
	res, err := f.svc.ResolveBet(ctx, proof)
	if err != nil {
		t.Fatalf("resolve bet: %v", err)
	}
	wantPayout, _ := payout.Payout(1_000, 50)
	if res.Resolution.State != engine.StatePaid || res.Resolution.Outcome.Payout != wantPayout {
		t.Fatalf("resolution = %+v, want paid %d", res.Resolution, wantPayout)
	}
	if got := f.balance(t, f.player); got != wantPayout {
		t.Fatalf("player balance = %d, want %d", got, wantPayout)
	}
	if got := f.balance(t, vault.Address); got != 101_000-wantPayout {
		t.Fatalf("vault balance = %d, want %d", got, 101_000-wantPayout)
	}

	history, err := f.svc.Transfers(ctx, f.player, 0)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("transfers = %+v, want faucet, stake and payout", history)
	}
	if history[0].Reason != storage.ReasonPayout || history[0].From != vault.Address || history[0].Amount != wantPayout {
		t.Fatalf("newest transfer = %+v, want payout of %d", history[0], wantPayout)
	}
	if history[1].Reason != storage.ReasonStake || history[2].Reason != storage.ReasonFaucet {
		t.Fatalf("older transfers = %+v", history[1:])
	}
	if page, err := f.svc.Transfers(ctx, f.player, 1); err != nil || len(page) != 1 || page[0].ID != history[0].ID {
		t.Fatalf("page = %+v (%v), want only the payout", page, err)
	}

	_, err = f.svc.ResolveBet(ctx, proof)
	assertCode(t, err, apperrors.CodeBetNotFound)
	if got := f.balance(t, f.player); got != wantPayout {
		t.Fatalf("player balance = %d after replay, want %d", got, wantPayout)
	}

	events, err := f.store.ListAuditEvents(ctx, placed.Address)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("audit events = %d, want 2", len(events))
	}
	if events[0].EventType != audit.EventBetResolved || events[0].State != "Paid" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].EventType != audit.EventBetRejected || events[1].ErrorCode != string(apperrors.CodeBetNotFound) {
		t.Fatalf("second event = %+v", events[1])
	}
}

func TestResolveBetSettlesLoser(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 10_000, 1_000)
	ctx := context.Background()

	placed, proof := f.placeSigned(t, vault, 2, 1_000, func(roll uint8) bool { return roll >= 2 })
	res, err := f.svc.ResolveBet(ctx, proof)
	if err != nil {
		t.Fatalf("resolve bet: %v", err)
	}
	if res.Resolution.State != engine.StateSettled || res.Resolution.Outcome.Won {
		t.Fatalf("resolution = %+v, want settled loss", res.Resolution)
	}
	if got := f.balance(t, vault.Address); got != 11_000 {
		t.Fatalf("vault balance = %d, want 11000", got)
	}
	if _, err := f.svc.GetBet(ctx, placed.Address); apperrors.GetCode(err) != apperrors.CodeBetNotFound {
		t.Fatalf("get bet error = %v, want bet closed", err)
	}
}

func TestResolveBetRejectsForeignSigner(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 10_000, 1_000)
	ctx := context.Background()

	placed, _ := f.placeSigned(t, vault, 50, 1_000, func(uint8) bool { return true })
	_, otherKey, _ := ed25519.GenerateKey(nil)
	record, err := sigverify.BuildInstruction(otherKey, placed.Commitment.Encode())
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	sig, _ := sigverify.SignatureFromInstruction(record)

	_, err = f.svc.ResolveBet(ctx, ResolveBetInput{Bet: placed.Address, Signature: sig, Records: []sigverify.Instruction{record}})
	assertCode(t, err, apperrors.CodeVerificationPublicKeyMismatch)
	if _, err := f.svc.GetBet(ctx, placed.Address); err != nil {
		t.Fatalf("bet should stay open: %v", err)
	}
	if got := f.balance(t, vault.Address); got != 11_000 {
		t.Fatalf("vault balance = %d, want 11000", got)
	}
}

func TestResolveBetRejectsTamperedRecord(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 10_000, 1_000)

	placed, proof := f.placeSigned(t, vault, 50, 1_000, func(uint8) bool { return true })
	proof.Records[0].Data[len(proof.Records[0].Data)-1] ^= 0xff

	_, err := f.svc.ResolveBet(context.Background(), proof)
	assertCode(t, err, apperrors.CodeVerificationNativeFailed)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %T, want *apperrors.Error", err)
	}
	if appErr.Metadata["Bet"] != placed.Address.String() {
		t.Fatalf("metadata = %v, want Bet %s", appErr.Metadata, placed.Address)
	}
	if account, ok := appErr.Metadata["Account"]; ok {
		t.Fatalf("metadata Account = %q before the bet was loaded", account)
	}

	events, _ := f.store.ListAuditEvents(context.Background(), placed.Address)
	if len(events) != 1 || events[0].ErrorCode != string(apperrors.CodeVerificationNativeFailed) {
		t.Fatalf("audit events = %+v", events)
	}
}

func TestResolveBetRollsBackWhenVaultCannotPay(t *testing.T) {
	f := newFixture(t, Config{})
	vault := f.fundVault(t, 0, 1_000)
	ctx := context.Background()

	placed, proof := f.placeSigned(t, vault, 2, 1_000, func(roll uint8) bool { return roll == 1 })
	_, err := f.svc.ResolveBet(ctx, proof)
	assertCode(t, err, apperrors.CodeTransferFailed)
	if !errors.Is(err, storage.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want insufficient funds cause", err)
	}
	if _, err := f.svc.GetBet(ctx, placed.Address); err != nil {
		t.Fatalf("bet should stay open: %v", err)
	}
	if got := f.balance(t, vault.Address); got != 1_000 {
		t.Fatalf("vault balance = %d, want 1000", got)
	}
}

func TestRefundBet(t *testing.T) {
	f := newFixture(t, Config{RefundAfter: time.Hour})
	vault := f.fundVault(t, 10_000, 500)
	ctx := context.Background()

	placed, err := f.svc.PlaceBet(ctx, PlaceBetInput{Player: f.player, Seed: uint128.From64(9), Target: 30, Amount: 200})
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	_, err = f.svc.RefundBet(ctx, placed.Address)
	assertCode(t, err, apperrors.CodeBetRefundTooEarly)

	f.now = f.now.Add(time.Hour)
	res, err := f.svc.RefundBet(ctx, placed.Address)
	if err != nil {
		t.Fatalf("refund bet: %v", err)
	}
	if res.Refunded != 200 {
		t.Fatalf("refunded = %d, want 200", res.Refunded)
	}
	if got := f.balance(t, f.player); got != 500 {
		t.Fatalf("player balance = %d, want 500", got)
	}
	if got := f.balance(t, vault.Address); got != 10_000 {
		t.Fatalf("vault balance = %d, want 10000", got)
	}
	_, err = f.svc.RefundBet(ctx, placed.Address)
	assertCode(t, err, apperrors.CodeBetNotFound)
}

func TestFailureMetadataNamesVaultOnlyForLoadedBets(t *testing.T) {
	f := newFixture(t, Config{RefundAfter: time.Hour})
	vault := f.fundVault(t, 10_000, 500)
	ctx := context.Background()

	_, err := f.svc.RefundBet(ctx, address.Address{0x42})
	assertCode(t, err, apperrors.CodeBetNotFound)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %T, want *apperrors.Error", err)
	}
	if _, ok := appErr.Metadata["Account"]; ok {
		t.Fatalf("metadata = %v, want no Account for a missing bet", appErr.Metadata)
	}

	placed, err := f.svc.PlaceBet(ctx, PlaceBetInput{Player: f.player, Seed: uint128.From64(3), Target: 40, Amount: 100})
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	_, err = f.svc.RefundBet(ctx, placed.Address)
	assertCode(t, err, apperrors.CodeBetRefundTooEarly)
	if !errors.As(err, &appErr) || appErr.Metadata["Account"] != vault.Address.String() {
		t.Fatalf("error = %v, want Account %s", err, vault.Address)
	}
}

func TestTransfersClampsLimit(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	for i := 0; i < MaxTransferPage+5; i++ {
		if _, err := f.svc.Fund(ctx, f.player, 1); err != nil {
			t.Fatalf("fund %d: %v", i, err)
		}
	}

	all, err := f.svc.Transfers(ctx, f.player, MaxTransferPage+100)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(all) != MaxTransferPage {
		t.Fatalf("len = %d, want %d", len(all), MaxTransferPage)
	}
	page, err := f.svc.Transfers(ctx, f.player, -1)
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(page) != DefaultTransferPage {
		t.Fatalf("len = %d, want %d", len(page), DefaultTransferPage)
	}
}

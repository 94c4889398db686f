// Package domain runs the resolver's bet lifecycle against the ledger: vault
// setup, wagers, resolution and refunds.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/fairroll/internal/platform/errors"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/engine"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/louisbranch/fairroll/internal/services/resolver/observability/audit"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"lukechampine.com/uint128"
)

const tracerName = "github.com/louisbranch/fairroll/internal/services/resolver/domain"

// Transfer history page sizes.
const (
	DefaultTransferPage = 20
	MaxTransferPage     = 200
)

// Config binds a Service to one house.
type Config struct {
	// Authority is the house key that signs bet commitments and owns the vault.
	Authority address.Address
	// ProgramID namespaces vault and bet address derivation.
	ProgramID address.Address
	// RefundAfter is how long a bet must stay open before its player may
	// reclaim the stake.
	RefundAfter time.Duration
	// FaucetEnabled allows Fund to mint balances.
	FaucetEnabled bool
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the service clock, which stamps bet slots.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// Service implements the resolver operations.
type Service struct {
	store  storage.Store
	audit  *audit.Emitter
	cfg    Config
	clock  func() time.Time
	tracer trace.Tracer
}

// NewService creates a Service over store.
func NewService(store storage.Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Authority.IsZero() {
		return nil, errors.New("authority is required")
	}
	if cfg.ProgramID.IsZero() {
		return nil, errors.New("program id is required")
	}
	if cfg.RefundAfter < 0 {
		return nil, errors.New("refund delay must not be negative")
	}
	s := &Service{
		store:  store,
		audit:  audit.NewEmitter(store),
		cfg:    cfg,
		clock:  time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authority returns the house key this service resolves for.
func (s *Service) Authority() address.Address {
	return s.cfg.Authority
}

// PlaceBetInput describes a new wager.
type PlaceBetInput struct {
	Player address.Address
	Seed   uint128.Uint128
	Target uint8
	Amount uint64
}

// ResolveBetInput carries the authority's proof for one bet.
type ResolveBetInput struct {
	Bet       address.Address
	Signature []byte
	Records   []sigverify.Instruction
}

// ResolveBetResult reports a committed resolution.
type ResolveBetResult struct {
	Bet        storage.Bet
	Resolution engine.Resolution
}

// RefundBetResult reports a committed refund.
type RefundBetResult struct {
	Bet      storage.Bet
	Refunded uint64
}

// InitializeVault derives and records the house vault, then moves amount from
// the authority's balance into it.
func (s *Service) InitializeVault(ctx context.Context, amount uint64) (storage.Vault, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.InitializeVault")
	defer span.End()

	vaultAddr, bump, err := bet.DeriveVault(s.cfg.Authority, s.cfg.ProgramID)
	if err != nil {
		return storage.Vault{}, s.fail(span, toAppError(err, nil))
	}
	vault := storage.Vault{House: s.cfg.Authority, Address: vaultAddr, Bump: bump, CreatedAt: s.clock().UTC()}
	err = s.store.InTx(ctx, func(l storage.Ledger) error {
		if err := l.PutVault(ctx, vault); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperrors.Wrap(apperrors.CodeLedgerVaultExists, "", err)
			}
			return err
		}
		return l.Transfer(ctx, storage.TransferRequest{
			From:   s.cfg.Authority,
			To:     vaultAddr,
			Amount: amount,
			Reason: storage.ReasonVault,
		})
	})
	if err != nil {
		return storage.Vault{}, s.fail(span, toAppError(err, map[string]string{"Account": s.cfg.Authority.String()}))
	}
	span.SetAttributes(attribute.String("fairroll.vault", vaultAddr.String()))
	log.Printf("vault %s initialized for house %s with %d", vaultAddr, s.cfg.Authority, amount)
	return vault, nil
}

// Fund credits amount to account when the faucet is enabled and returns the
// new balance.
func (s *Service) Fund(ctx context.Context, account address.Address, amount uint64) (uint64, error) {
	if !s.cfg.FaucetEnabled {
		return 0, apperrors.New(apperrors.CodeLedgerFaucetDisabled, "faucet is disabled")
	}
	if account.IsZero() {
		return 0, apperrors.New(apperrors.CodeInvalidAddress, "account is required").
			WithMetadata(map[string]string{"Field": "account"})
	}
	var balance uint64
	err := s.store.InTx(ctx, func(l storage.Ledger) error {
		if err := l.Credit(ctx, account, amount, storage.ReasonFaucet); err != nil {
			return err
		}
		var err error
		balance, err = l.Balance(ctx, account)
		return err
	})
	if err != nil {
		return 0, toAppError(err, nil)
	}
	return balance, nil
}

// PlaceBet validates a wager, stakes the player's amount into the vault and
// records the bet under its derived address.
func (s *Service) PlaceBet(ctx context.Context, in PlaceBetInput) (storage.Bet, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.PlaceBet", trace.WithAttributes(
		attribute.String("fairroll.player", in.Player.String()),
		attribute.Int("fairroll.target", int(in.Target)),
	))
	defer span.End()

	commitment := bet.Commitment{
		Player: in.Player,
		Seed:   in.Seed,
		Slot:   uint64(s.clock().Unix()),
		Amount: in.Amount,
		Target: in.Target,
	}
	if err := commitment.Validate(); err != nil {
		return storage.Bet{}, s.fail(span, toAppError(err, map[string]string{"Field": "player"}))
	}

	var record storage.Bet
	err := s.store.InTx(ctx, func(l storage.Ledger) error {
		vault, err := l.GetVault(ctx, s.cfg.Authority)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.Wrap(apperrors.CodeLedgerVaultMissing, "", err)
			}
			return err
		}
		betAddr, bump, err := bet.DeriveAddress(vault.Address, in.Seed, s.cfg.ProgramID)
		if err != nil {
			return err
		}
		commitment.Bump = bump
		record = storage.Bet{Address: betAddr, Vault: vault.Address, Commitment: commitment, CreatedAt: s.clock().UTC()}
		if err := l.InsertBet(ctx, record); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return apperrors.Wrap(apperrors.CodeBetAlreadyExists, "", err)
			}
			return err
		}
		return l.Transfer(ctx, storage.TransferRequest{
			From:   in.Player,
			To:     vault.Address,
			Amount: in.Amount,
			Reason: storage.ReasonStake,
		})
	})
	if err != nil {
		return storage.Bet{}, s.fail(span, toAppError(err, map[string]string{"Account": in.Player.String()}))
	}
	span.SetAttributes(attribute.String("fairroll.bet", record.Address.String()))
	log.Printf("bet %s placed: player=%s target=%d amount=%d", record.Address, in.Player, in.Target, in.Amount)
	return record, nil
}

// ResolveBet verifies the authority's proof for one open bet, pays a winner
// from the vault and closes the bet, all in one ledger transaction. Any
// failure leaves the ledger untouched and is audited.
func (s *Service) ResolveBet(ctx context.Context, in ResolveBetInput) (ResolveBetResult, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.ResolveBet", trace.WithAttributes(
		attribute.String("fairroll.bet", in.Bet.String()),
	))
	defer span.End()

	var (
		record storage.Bet
		res    engine.Resolution
	)
	err := sigverify.ExecuteNative(in.Records)
	if err == nil {
		err = s.store.InTx(ctx, func(l storage.Ledger) error {
			var err error
			record, err = l.GetBet(ctx, in.Bet)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return apperrors.Wrap(apperrors.CodeBetNotFound, "", err)
				}
				return err
			}
			vault, err := l.GetVault(ctx, s.cfg.Authority)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return apperrors.Wrap(apperrors.CodeLedgerVaultMissing, "", err)
				}
				return err
			}
			if vault.Address != record.Vault {
				return apperrors.New(apperrors.CodeLedgerSignerMismatch, "bet is escrowed by another vault")
			}

			res, err = engine.New(ledgerTransferer(l)).Resolve(ctx, engine.Request{
				Bet:       record.Commitment,
				Authority: s.cfg.Authority,
				Signature: in.Signature,
				Records:   in.Records,
				Escrow:    vault.Address,
				Signer:    engine.Signer{Seeds: bet.VaultSeeds(s.cfg.Authority), Bump: vault.Bump},
			})
			if err != nil {
				return err
			}
			if !res.State.Terminal() {
				return fmt.Errorf("resolution stopped in %s", res.State)
			}
			return l.DeleteBet(ctx, in.Bet)
		})
	}
	if err != nil {
		appErr := toAppError(err, betMetadata(in.Bet, record))
		if auditErr := s.audit.EmitResolution(ctx, in.Bet, res, appErr); auditErr != nil {
			log.Printf("audit bet %s rejection: %v", in.Bet, auditErr)
		}
		log.Printf("bet %s resolution rejected: %v", in.Bet, err)
		return ResolveBetResult{}, s.fail(span, appErr)
	}

	span.SetAttributes(
		attribute.String("fairroll.state", res.State.String()),
		attribute.Int("fairroll.roll", int(res.Outcome.Roll)),
		attribute.String("fairroll.payout", strconv.FormatUint(res.Outcome.Payout, 10)),
	)
	if auditErr := s.audit.EmitResolution(ctx, in.Bet, res, nil); auditErr != nil {
		log.Printf("audit bet %s resolution: %v", in.Bet, auditErr)
	}
	log.Printf("bet %s resolved: roll=%d state=%s payout=%d", in.Bet, res.Outcome.Roll, res.State, res.Outcome.Payout)
	return ResolveBetResult{Bet: record, Resolution: res}, nil
}

// RefundBet returns the stake of a bet that stayed open for RefundAfter and
// closes it.
func (s *Service) RefundBet(ctx context.Context, betAddress address.Address) (RefundBetResult, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.RefundBet", trace.WithAttributes(
		attribute.String("fairroll.bet", betAddress.String()),
	))
	defer span.End()

	var record storage.Bet
	err := s.store.InTx(ctx, func(l storage.Ledger) error {
		var err error
		record, err = l.GetBet(ctx, betAddress)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.Wrap(apperrors.CodeBetNotFound, "", err)
			}
			return err
		}
		refundableAt := time.Unix(int64(record.Commitment.Slot), 0).Add(s.cfg.RefundAfter)
		if s.clock().Before(refundableAt) {
			return apperrors.New(apperrors.CodeBetRefundTooEarly, fmt.Sprintf("bet refundable at %s", refundableAt.UTC().Format(time.RFC3339))).
				WithMetadata(map[string]string{"RefundableAt": refundableAt.UTC().Format(time.RFC3339)})
		}
		vault, err := l.GetVault(ctx, s.cfg.Authority)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.Wrap(apperrors.CodeLedgerVaultMissing, "", err)
			}
			return err
		}
		if err := l.Transfer(ctx, storage.TransferRequest{
			From:   record.Vault,
			To:     record.Commitment.Player,
			Amount: record.Commitment.Amount,
			Reason: storage.ReasonRefund,
			Signer: &storage.Signer{Seeds: bet.VaultSeeds(s.cfg.Authority), Bump: vault.Bump},
		}); err != nil {
			return err
		}
		return l.DeleteBet(ctx, betAddress)
	})
	if err != nil {
		return RefundBetResult{}, s.fail(span, toAppError(err, betMetadata(betAddress, record)))
	}
	if auditErr := s.audit.EmitRefund(ctx, betAddress, record.Commitment.Amount); auditErr != nil {
		log.Printf("audit bet %s refund: %v", betAddress, auditErr)
	}
	log.Printf("bet %s refunded %d to %s", betAddress, record.Commitment.Amount, record.Commitment.Player)
	return RefundBetResult{Bet: record, Refunded: record.Commitment.Amount}, nil
}

// GetBet returns one open bet.
func (s *Service) GetBet(ctx context.Context, betAddress address.Address) (storage.Bet, error) {
	record, err := s.store.GetBet(ctx, betAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Bet{}, apperrors.Wrap(apperrors.CodeBetNotFound, "", err).
				WithMetadata(map[string]string{"Bet": betAddress.String()})
		}
		return storage.Bet{}, toAppError(err, nil)
	}
	return record, nil
}

// Balance returns the balance of account.
func (s *Service) Balance(ctx context.Context, account address.Address) (uint64, error) {
	balance, err := s.store.Balance(ctx, account)
	if err != nil {
		return 0, toAppError(err, nil)
	}
	return balance, nil
}

// Vault returns the house vault and its balance.
func (s *Service) Vault(ctx context.Context) (storage.Vault, uint64, error) {
	var (
		vault   storage.Vault
		balance uint64
	)
	err := s.store.InTx(ctx, func(l storage.Ledger) error {
		var err error
		vault, err = l.GetVault(ctx, s.cfg.Authority)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.Wrap(apperrors.CodeLedgerVaultMissing, "", err)
			}
			return err
		}
		balance, err = l.Balance(ctx, vault.Address)
		return err
	})
	if err != nil {
		return storage.Vault{}, 0, toAppError(err, nil)
	}
	return vault, balance, nil
}

// Transfers returns the newest ledger movements touching account. limit is
// clamped to (0, MaxTransferPage]; zero selects DefaultTransferPage.
func (s *Service) Transfers(ctx context.Context, account address.Address, limit int) ([]storage.Transfer, error) {
	switch {
	case limit <= 0:
		limit = DefaultTransferPage
	case limit > MaxTransferPage:
		limit = MaxTransferPage
	}
	transfers, err := s.store.ListTransfers(ctx, account, limit)
	if err != nil {
		return nil, toAppError(err, map[string]string{"Account": account.String()})
	}
	return transfers, nil
}

// betMetadata names the bet and, once its record was loaded, the vault that
// escrows it.
func betMetadata(betAddress address.Address, record storage.Bet) map[string]string {
	metadata := map[string]string{"Bet": betAddress.String()}
	if !record.Address.IsZero() {
		metadata["Account"] = record.Vault.String()
	}
	return metadata
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, string(apperrors.GetCode(err)))
	return err
}

// ledgerTransferer binds the engine's payout to the open ledger transaction.
func ledgerTransferer(l storage.Ledger) engine.Transferer {
	return engine.TransferFunc(func(ctx context.Context, req engine.TransferRequest) error {
		return l.Transfer(ctx, storage.TransferRequest{
			From:   req.From,
			To:     req.To,
			Amount: req.Amount,
			Reason: storage.ReasonPayout,
			Signer: &storage.Signer{Seeds: req.Signer.Seeds, Bump: req.Signer.Bump},
		})
	})
}

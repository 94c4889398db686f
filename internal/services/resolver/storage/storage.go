// Package storage defines persistence contracts for the resolver's ledger:
// account balances, vaults, open bets, the transfer log and audit events.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
)

var (
	// ErrNotFound indicates a requested ledger record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrInsufficientFunds indicates a debit larger than the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSignerMismatch indicates a vault debit whose signer seeds do not
	// re-derive the vault address.
	ErrSignerMismatch = errors.New("signer does not derive the source vault")
	// ErrAmountOutOfRange indicates an amount or balance the ledger cannot hold.
	ErrAmountOutOfRange = errors.New("amount out of ledger range")
)

// Transfer reasons recorded in the transfer log.
const (
	ReasonFaucet = "faucet"
	ReasonVault  = "vault_funding"
	ReasonStake  = "stake"
	ReasonPayout = "payout"
	ReasonRefund = "refund"
)

// Vault is the escrow account of one house authority.
type Vault struct {
	House     address.Address
	Address   address.Address
	Bump      uint8
	CreatedAt time.Time
}

// Bet is an open wager awaiting resolution or refund.
type Bet struct {
	Address    address.Address
	Vault      address.Address
	Commitment bet.Commitment
	CreatedAt  time.Time
}

// Signer authorizes a debit from a vault by re-deriving its address.
type Signer struct {
	Seeds [][]byte
	Bump  uint8
}

// TransferRequest moves Amount between two accounts.
type TransferRequest struct {
	From   address.Address
	To     address.Address
	Amount uint64
	Reason string
	// Signer is required when From is a vault.
	Signer *Signer
}

// Transfer is one entry in the transfer log.
type Transfer struct {
	ID        string
	From      address.Address
	To        address.Address
	Amount    uint64
	Reason    string
	CreatedAt time.Time
}

// AuditEvent records one terminal resolution outcome.
type AuditEvent struct {
	ID         string
	BetAddress address.Address
	EventType  string
	Severity   string
	State      string
	Roll       uint8
	Payout     uint64
	ErrorCode  string
	Message    string
	Timestamp  time.Time
}

// Ledger holds the balance and bet operations that must compose atomically.
type Ledger interface {
	Balance(ctx context.Context, account address.Address) (uint64, error)
	Credit(ctx context.Context, account address.Address, amount uint64, reason string) error
	Transfer(ctx context.Context, req TransferRequest) error

	GetVault(ctx context.Context, house address.Address) (Vault, error)
	PutVault(ctx context.Context, vault Vault) error

	GetBet(ctx context.Context, betAddress address.Address) (Bet, error)
	InsertBet(ctx context.Context, record Bet) error
	DeleteBet(ctx context.Context, betAddress address.Address) error
}

// AuditEventStore persists audit events.
type AuditEventStore interface {
	AppendAuditEvent(ctx context.Context, evt AuditEvent) error
	ListAuditEvents(ctx context.Context, betAddress address.Address) ([]AuditEvent, error)
}

// Store is the full resolver persistence surface. Ledger methods called on
// the Store run in their own transaction; InTx composes several.
type Store interface {
	Ledger
	AuditEventStore
	InTx(ctx context.Context, fn func(Ledger) error) error
	ListTransfers(ctx context.Context, account address.Address, limit int) ([]Transfer, error)
	Close() error
}

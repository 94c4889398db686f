// Package sqlite provides the SQLite-backed resolver ledger.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitemigrate "github.com/louisbranch/fairroll/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/fairroll/internal/platform/timeouts"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists the resolver ledger in SQLite.
type Store struct {
	sqlDB     *sql.DB
	programID address.Address
	clock     func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the ledger at path and applies embedded migrations. programID is
// the namespace vault signers must derive under.
func Open(path string, programID address.Address, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if programID.IsZero() {
		return nil, fmt.Errorf("program id is required")
	}
	dsn := fmt.Sprintf(
		"%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		filepath.Clean(path), timeouts.SQLiteBusy.Milliseconds(),
	)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps balance checks and bet deletion serialized.
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, programID: programID, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// InTx runs fn inside one transaction, committing only when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(storage.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&ledger{q: tx, store: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

// Balance returns an account balance; unknown accounts hold zero.
func (s *Store) Balance(ctx context.Context, account address.Address) (uint64, error) {
	var balance uint64
	err := s.InTx(ctx, func(l storage.Ledger) error {
		var err error
		balance, err = l.Balance(ctx, account)
		return err
	})
	return balance, err
}

// Credit mints amount into account.
func (s *Store) Credit(ctx context.Context, account address.Address, amount uint64, reason string) error {
	return s.InTx(ctx, func(l storage.Ledger) error {
		return l.Credit(ctx, account, amount, reason)
	})
}

// Transfer moves funds between accounts.
func (s *Store) Transfer(ctx context.Context, req storage.TransferRequest) error {
	return s.InTx(ctx, func(l storage.Ledger) error {
		return l.Transfer(ctx, req)
	})
}

// GetVault returns house's vault.
func (s *Store) GetVault(ctx context.Context, house address.Address) (storage.Vault, error) {
	var vault storage.Vault
	err := s.InTx(ctx, func(l storage.Ledger) error {
		var err error
		vault, err = l.GetVault(ctx, house)
		return err
	})
	return vault, err
}

// PutVault records a new vault.
func (s *Store) PutVault(ctx context.Context, vault storage.Vault) error {
	return s.InTx(ctx, func(l storage.Ledger) error {
		return l.PutVault(ctx, vault)
	})
}

// GetBet returns one open bet.
func (s *Store) GetBet(ctx context.Context, betAddress address.Address) (storage.Bet, error) {
	var record storage.Bet
	err := s.InTx(ctx, func(l storage.Ledger) error {
		var err error
		record, err = l.GetBet(ctx, betAddress)
		return err
	})
	return record, err
}

// InsertBet records a new open bet.
func (s *Store) InsertBet(ctx context.Context, record storage.Bet) error {
	return s.InTx(ctx, func(l storage.Ledger) error {
		return l.InsertBet(ctx, record)
	})
}

// DeleteBet removes an open bet.
func (s *Store) DeleteBet(ctx context.Context, betAddress address.Address) error {
	return s.InTx(ctx, func(l storage.Ledger) error {
		return l.DeleteBet(ctx, betAddress)
	})
}

// ListTransfers returns the newest transfers touching account, newest first.
func (s *Store) ListTransfers(ctx context.Context, account address.Address, limit int) ([]storage.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, from_address, to_address, amount, reason, created_at
		   FROM transfers
		  WHERE from_address = ? OR to_address = ?
		  ORDER BY created_at DESC, rowid DESC
		  LIMIT ?`,
		account.String(), account.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []storage.Transfer
	for rows.Next() {
		var (
			t         storage.Transfer
			from, to  string
			amount    int64
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &from, &to, &amount, &t.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("list transfers: %w", err)
		}
		if t.From, err = address.Parse(from); err != nil {
			return nil, fmt.Errorf("list transfers: %w", err)
		}
		if t.To, err = address.Parse(to); err != nil {
			return nil, fmt.Errorf("list transfers: %w", err)
		}
		t.Amount = uint64(amount)
		t.CreatedAt = fromMillis(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return out, nil
}

// AppendAuditEvent records one audit event, assigning an id when missing.
func (s *Store) AppendAuditEvent(ctx context.Context, evt storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evt.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO audit_events (
		   id, bet_address, event_type, severity, state,
		   roll, payout, error_code, message, timestamp
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID,
		evt.BetAddress.String(),
		evt.EventType,
		evt.Severity,
		evt.State,
		int64(evt.Roll),
		fmt.Sprintf("%d", evt.Payout),
		evt.ErrorCode,
		evt.Message,
		toMillis(evt.Timestamp),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the audit trail of one bet, oldest first.
func (s *Store) ListAuditEvents(ctx context.Context, betAddress address.Address) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, event_type, severity, state, roll, payout, error_code, message, timestamp
		   FROM audit_events
		  WHERE bet_address = ?
		  ORDER BY timestamp ASC, rowid ASC`,
		betAddress.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []storage.AuditEvent
	for rows.Next() {
		var (
			evt       storage.AuditEvent
			roll      int64
			payout    string
			timestamp int64
		)
		if err := rows.Scan(&evt.ID, &evt.EventType, &evt.Severity, &evt.State, &roll, &payout, &evt.ErrorCode, &evt.Message, &timestamp); err != nil {
			return nil, fmt.Errorf("list audit events: %w", err)
		}
		if _, err := fmt.Sscanf(payout, "%d", &evt.Payout); err != nil {
			return nil, fmt.Errorf("list audit events: payout %q: %w", payout, err)
		}
		evt.BetAddress = betAddress
		evt.Roll = uint8(roll)
		evt.Timestamp = fromMillis(timestamp)
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ledger runs Ledger operations against one open transaction.
type ledger struct {
	q     querier
	store *Store
}

func (l *ledger) Balance(ctx context.Context, account address.Address) (uint64, error) {
	balance, err := l.balance(ctx, account)
	return uint64(balance), err
}

func (l *ledger) balance(ctx context.Context, account address.Address) (int64, error) {
	var balance int64
	err := l.q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE address = ?`, account.String()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (l *ledger) setBalance(ctx context.Context, account address.Address, balance int64) error {
	_, err := l.q.ExecContext(
		ctx,
		`INSERT INTO accounts (address, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		account.String(), balance, toMillis(l.store.clock()),
	)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// add credits amount to account, refusing balances past the int64 range.
func (l *ledger) add(ctx context.Context, account address.Address, amount int64) error {
	balance, err := l.balance(ctx, account)
	if err != nil {
		return err
	}
	if balance > math.MaxInt64-amount {
		return storage.ErrAmountOutOfRange
	}
	return l.setBalance(ctx, account, balance+amount)
}

func (l *ledger) logTransfer(ctx context.Context, from, to address.Address, amount int64, reason string) error {
	_, err := l.q.ExecContext(
		ctx,
		`INSERT INTO transfers (id, from_address, to_address, amount, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), from.String(), to.String(), amount, reason, toMillis(l.store.clock()),
	)
	if err != nil {
		return fmt.Errorf("log transfer: %w", err)
	}
	return nil
}

func (l *ledger) Credit(ctx context.Context, account address.Address, amount uint64, reason string) error {
	if account.IsZero() {
		return fmt.Errorf("account is required")
	}
	if amount == 0 {
		return nil
	}
	if amount > math.MaxInt64 {
		return storage.ErrAmountOutOfRange
	}
	if err := l.add(ctx, account, int64(amount)); err != nil {
		return err
	}
	return l.logTransfer(ctx, address.Zero, account, int64(amount), reason)
}

func (l *ledger) Transfer(ctx context.Context, req storage.TransferRequest) error {
	if req.From.IsZero() || req.To.IsZero() {
		return fmt.Errorf("transfer endpoints are required")
	}
	if req.Amount == 0 {
		return nil
	}
	if req.Amount > math.MaxInt64 {
		return storage.ErrAmountOutOfRange
	}
	if err := l.authorize(ctx, req); err != nil {
		return err
	}

	amount := int64(req.Amount)
	balance, err := l.balance(ctx, req.From)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", storage.ErrInsufficientFunds, req.From, balance, amount)
	}
	if err := l.setBalance(ctx, req.From, balance-amount); err != nil {
		return err
	}
	if err := l.add(ctx, req.To, amount); err != nil {
		return err
	}
	return l.logTransfer(ctx, req.From, req.To, amount, req.Reason)
}

// authorize requires vault debits to carry seeds that re-derive the vault.
func (l *ledger) authorize(ctx context.Context, req storage.TransferRequest) error {
	var house string
	err := l.q.QueryRowContext(ctx, `SELECT house FROM vaults WHERE address = ?`, req.From.String()).Scan(&house)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup vault: %w", err)
	}
	if req.Signer == nil {
		return storage.ErrSignerMismatch
	}
	derived, err := address.CreateProgramAddress(bet.WithBump(req.Signer.Seeds, req.Signer.Bump), l.store.programID)
	if err != nil || derived != req.From {
		return storage.ErrSignerMismatch
	}
	return nil
}

func (l *ledger) GetVault(ctx context.Context, house address.Address) (storage.Vault, error) {
	var (
		vaultAddr string
		bump      int64
		createdAt int64
	)
	err := l.q.QueryRowContext(
		ctx,
		`SELECT address, bump, created_at FROM vaults WHERE house = ?`,
		house.String(),
	).Scan(&vaultAddr, &bump, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Vault{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Vault{}, fmt.Errorf("get vault: %w", err)
	}
	parsed, err := address.Parse(vaultAddr)
	if err != nil {
		return storage.Vault{}, fmt.Errorf("get vault: %w", err)
	}
	return storage.Vault{House: house, Address: parsed, Bump: uint8(bump), CreatedAt: fromMillis(createdAt)}, nil
}

func (l *ledger) PutVault(ctx context.Context, vault storage.Vault) error {
	if vault.House.IsZero() || vault.Address.IsZero() {
		return fmt.Errorf("vault house and address are required")
	}
	createdAt := vault.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.store.clock()
	}
	_, err := l.q.ExecContext(
		ctx,
		`INSERT INTO vaults (house, address, bump, created_at) VALUES (?, ?, ?, ?)`,
		vault.House.String(), vault.Address.String(), int64(vault.Bump), toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("put vault: %w", err)
	}
	return nil
}

func (l *ledger) GetBet(ctx context.Context, betAddress address.Address) (storage.Bet, error) {
	var (
		vault, player, seed string
		slot, amount        int64
		target, bump        int64
		createdAt           int64
	)
	err := l.q.QueryRowContext(
		ctx,
		`SELECT vault, player, seed, slot, amount, target, bump, created_at
		   FROM bets
		  WHERE address = ?`,
		betAddress.String(),
	).Scan(&vault, &player, &seed, &slot, &amount, &target, &bump, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Bet{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Bet{}, fmt.Errorf("get bet: %w", err)
	}

	record := storage.Bet{Address: betAddress, CreatedAt: fromMillis(createdAt)}
	if record.Vault, err = address.Parse(vault); err != nil {
		return storage.Bet{}, fmt.Errorf("get bet: %w", err)
	}
	if record.Commitment.Player, err = address.Parse(player); err != nil {
		return storage.Bet{}, fmt.Errorf("get bet: %w", err)
	}
	if record.Commitment.Seed, err = bet.ParseSeed(seed); err != nil {
		return storage.Bet{}, fmt.Errorf("get bet: %w", err)
	}
	record.Commitment.Slot = uint64(slot)
	record.Commitment.Amount = uint64(amount)
	record.Commitment.Target = uint8(target)
	record.Commitment.Bump = uint8(bump)
	return record, nil
}

func (l *ledger) InsertBet(ctx context.Context, record storage.Bet) error {
	if record.Address.IsZero() || record.Vault.IsZero() {
		return fmt.Errorf("bet and vault addresses are required")
	}
	c := record.Commitment
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Amount > math.MaxInt64 || c.Slot > math.MaxInt64 {
		return storage.ErrAmountOutOfRange
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.store.clock()
	}
	_, err := l.q.ExecContext(
		ctx,
		`INSERT INTO bets (address, vault, player, seed, slot, amount, target, bump, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Address.String(),
		record.Vault.String(),
		c.Player.String(),
		c.Seed.String(),
		int64(c.Slot),
		int64(c.Amount),
		int64(c.Target),
		int64(c.Bump),
		toMillis(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

func (l *ledger) DeleteBet(ctx context.Context, betAddress address.Address) error {
	result, err := l.q.ExecContext(ctx, `DELETE FROM bets WHERE address = ?`, betAddress.String())
	if err != nil {
		return fmt.Errorf("delete bet: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bet: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Ledger = (*ledger)(nil)
)

// Package engine resolves a single bet: it verifies the authority's signature
// record, derives the outcome and, on a win, asks the escrow to pay out.
//
// Resolution is all or nothing. The engine itself holds no state between
// calls; callers that need atomicity with their own bookkeeping run the
// transfer inside the same transaction as the bet record's removal.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/payout"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
)

var (
	// ErrTransferFailed indicates the escrow could not pay the player.
	ErrTransferFailed = errors.New("payout transfer failed")
	// ErrMissingTransferer indicates an engine without a transfer capability.
	ErrMissingTransferer = errors.New("transfer capability is required")
)

// Signer carries the seeds and bump that re-derive the escrow address, which
// is how the escrow authorizes its own outgoing transfers.
type Signer struct {
	Seeds [][]byte
	Bump  uint8
}

// TransferRequest moves Amount from the escrow to a player.
type TransferRequest struct {
	From   address.Address
	To     address.Address
	Amount uint64
	Signer Signer
}

// Transferer is the external value-transfer capability.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) error
}

// TransferFunc adapts a function to Transferer.
type TransferFunc func(ctx context.Context, req TransferRequest) error

// Transfer implements Transferer.
func (fn TransferFunc) Transfer(ctx context.Context, req TransferRequest) error {
	return fn(ctx, req)
}

// Request is everything one resolution needs.
type Request struct {
	Bet       bet.Commitment
	Authority address.Address
	Signature []byte
	// Records is the ordered verification record list; the proof must sit
	// at sigverify.RecordIndex.
	Records []sigverify.Instruction
	Escrow  address.Address
	Signer  Signer
}

// Resolution reports where a resolution ended.
type Resolution struct {
	State   State
	Outcome payout.Outcome
	// Path lists every state visited, Pending first.
	Path []State
}

// Engine resolves bets against a transfer capability.
type Engine struct {
	transferer Transferer
}

// New creates an engine.
func New(transferer Transferer) *Engine {
	return &Engine{transferer: transferer}
}

// Resolve verifies, computes and pays out one bet. A non-nil error always
// comes with State == StateRejected and no transfer performed.
func (e *Engine) Resolve(ctx context.Context, req Request) (Resolution, error) {
	res := Resolution{State: StatePending, Path: []State{StatePending}}
	if e == nil || e.transferer == nil {
		return res.reject(ErrMissingTransferer)
	}

	res.advance(StateVerifying)
	if err := sigverify.Verify(req.Authority, req.Bet.Encode(), req.Records, req.Signature); err != nil {
		return res.reject(err)
	}
	res.advance(StateVerified)

	res.advance(StateComputing)
	outcome, err := payout.Resolve(req.Bet, req.Signature)
	res.Outcome = outcome
	if err != nil {
		return res.reject(err)
	}
	if !outcome.Won {
		res.advance(StateLost)
		res.advance(StateSettled)
		return res, nil
	}

	res.advance(StateWon)
	if outcome.Payout > 0 {
		err := e.transferer.Transfer(ctx, TransferRequest{
			From:   req.Escrow,
			To:     req.Bet.Player,
			Amount: outcome.Payout,
			Signer: req.Signer,
		})
		if err != nil {
			return res.reject(fmt.Errorf("%w: %w", ErrTransferFailed, err))
		}
	}
	res.advance(StatePaid)
	return res, nil
}

func (r *Resolution) advance(next State) {
	if !CanTransition(r.State, next) {
		panic(fmt.Sprintf("illegal resolution transition %s -> %s", r.State, next))
	}
	r.State = next
	r.Path = append(r.Path, next)
}

func (r Resolution) reject(err error) (Resolution, error) {
	r.State = StateRejected
	r.Path = append(r.Path, StateRejected)
	return r, err
}

// Package audit persists the outcome of every bet resolution attempt.
//
// Tracing lives in internal/platform/otel; audit events are the durable
// record operators query when a player disputes a result.
package audit

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/louisbranch/fairroll/internal/platform/errors"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/engine"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
)

// Severity describes the audit severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event types.
const (
	EventBetResolved = "bet.resolved"
	EventBetRejected = "bet.resolution_rejected"
	EventBetRefunded = "bet.refunded"
)

// Emitter records audit events.
type Emitter struct {
	store storage.AuditEventStore
	clock func() time.Time
}

// NewEmitter creates an emitter writing to store.
func NewEmitter(store storage.AuditEventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records evt, stamping it when no timestamp is set. It is a no-op
// without a store.
func (e *Emitter) Emit(ctx context.Context, evt storage.AuditEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		clock := e.clock
		if clock == nil {
			clock = time.Now
		}
		evt.Timestamp = clock().UTC()
	}
	return e.store.AppendAuditEvent(ctx, evt)
}

// EmitResolution records the terminal state of one resolution. resolveErr is
// the error returned alongside res, if any.
func (e *Emitter) EmitResolution(ctx context.Context, betAddress address.Address, res engine.Resolution, resolveErr error) error {
	evt := storage.AuditEvent{
		BetAddress: betAddress,
		EventType:  EventBetResolved,
		Severity:   string(SeverityInfo),
		State:      res.State.String(),
		Roll:       res.Outcome.Roll,
		Payout:     res.Outcome.Payout,
	}
	if resolveErr != nil {
		evt.EventType = EventBetRejected
		evt.Severity = string(SeverityWarn)
		evt.State = engine.StateRejected.String()
		evt.Payout = 0
		evt.ErrorCode = string(apperrors.GetCode(resolveErr))
		evt.Message = resolveErr.Error()
		evt.Severity = string(rejectionSeverity(resolveErr))
	}
	return e.Emit(ctx, evt)
}

// rejectionSeverity rates a failed resolution. A malformed proof is a client
// mistake; a well-formed proof of the wrong key, signature or message is a
// forged or misrouted resolution and is raised as an error, like any failure
// that carries no code.
func rejectionSeverity(err error) Severity {
	switch {
	case apperrors.GetCode(err) == apperrors.CodeUnknown:
		return SeverityError
	case sigverify.IsStructural(err):
		return SeverityWarn
	case errors.Is(err, sigverify.ErrVerification), errors.Is(err, sigverify.ErrNativeVerificationFailed):
		return SeverityError
	default:
		return SeverityWarn
	}
}

// EmitRefund records a refunded stake.
func (e *Emitter) EmitRefund(ctx context.Context, betAddress address.Address, amount uint64) error {
	return e.Emit(ctx, storage.AuditEvent{
		BetAddress: betAddress,
		EventType:  EventBetRefunded,
		Severity:   string(SeverityInfo),
		State:      "Refunded",
		Payout:     amount,
	})
}

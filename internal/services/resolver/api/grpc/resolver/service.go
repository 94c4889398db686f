package resolver

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/louisbranch/fairroll/internal/platform/errors"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// LocaleMetadataKey carries the caller's preferred locale for error messages.
const LocaleMetadataKey = "accept-language"

// Resolver is the application surface the gRPC service adapts.
type Resolver interface {
	Authority() address.Address
	InitializeVault(ctx context.Context, amount uint64) (storage.Vault, error)
	Fund(ctx context.Context, account address.Address, amount uint64) (uint64, error)
	PlaceBet(ctx context.Context, in domain.PlaceBetInput) (storage.Bet, error)
	ResolveBet(ctx context.Context, in domain.ResolveBetInput) (domain.ResolveBetResult, error)
	RefundBet(ctx context.Context, betAddress address.Address) (domain.RefundBetResult, error)
	GetBet(ctx context.Context, betAddress address.Address) (storage.Bet, error)
	Balance(ctx context.Context, account address.Address) (uint64, error)
	Vault(ctx context.Context) (storage.Vault, uint64, error)
	Transfers(ctx context.Context, account address.Address, limit int) ([]storage.Transfer, error)
}

// Service exposes fairroll.resolver.v1 gRPC operations.
type Service struct {
	resolver Resolver
}

// NewService creates a gRPC service backed by resolver.
func NewService(resolver Resolver) *Service {
	return &Service{resolver: resolver}
}

// InitializeVault creates the house vault and funds it from the authority.
func (s *Service) InitializeVault(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	amount, err := uintField(in, "amount")
	if err != nil {
		return nil, respond(ctx, err)
	}
	if _, err := s.resolver.InitializeVault(ctx, amount); err != nil {
		return nil, respond(ctx, err)
	}
	vault, balance, err := s.resolver.Vault(ctx)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return vaultToStruct(Vault{House: vault.House, Address: vault.Address, Bump: vault.Bump, Balance: balance}), nil
}

// Fund credits a development balance.
func (s *Service) Fund(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	account, err := addressField(in, "account")
	if err != nil {
		return nil, respond(ctx, err)
	}
	amount, err := uintField(in, "amount")
	if err != nil {
		return nil, respond(ctx, err)
	}
	balance, err := s.resolver.Fund(ctx, account, amount)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return balanceToStruct(account, balance), nil
}

// PlaceBet stakes a new wager.
func (s *Service) PlaceBet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	var (
		req domain.PlaceBetInput
		err error
	)
	if req.Player, err = addressField(in, "player"); err != nil {
		return nil, respond(ctx, err)
	}
	if req.Seed, err = seedField(in, "seed"); err != nil {
		return nil, respond(ctx, apperrors.Wrap(apperrors.CodeBetInvalidSeed, "", err))
	}
	if req.Target, err = byteField(in, "target"); err != nil {
		return nil, respond(ctx, err)
	}
	if req.Amount, err = uintField(in, "amount"); err != nil {
		return nil, respond(ctx, err)
	}
	record, err := s.resolver.PlaceBet(ctx, req)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return betToStruct(betFromRecord(record)), nil
}

// GetBet returns one open bet.
func (s *Service) GetBet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	betAddr, err := addressField(in, "bet")
	if err != nil {
		return nil, respond(ctx, err)
	}
	record, err := s.resolver.GetBet(ctx, betAddr)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return betToStruct(betFromRecord(record)), nil
}

// ResolveBet verifies the authority's proof and settles the bet.
func (s *Service) ResolveBet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	var (
		req domain.ResolveBetInput
		err error
	)
	if req.Bet, err = addressField(in, "bet"); err != nil {
		return nil, respond(ctx, err)
	}
	if req.Signature, err = bytesField(in, "signature"); err != nil {
		return nil, respond(ctx, err)
	}
	if req.Records, err = recordsFromStruct(in, "records"); err != nil {
		return nil, respond(ctx, err)
	}
	result, err := s.resolver.ResolveBet(ctx, req)
	if err != nil {
		return nil, respond(ctx, err)
	}
	res := result.Resolution
	path := make([]string, 0, len(res.Path))
	for _, state := range res.Path {
		path = append(path, state.String())
	}
	return resolutionToStruct(Resolution{
		Bet:    req.Bet,
		State:  res.State.String(),
		Roll:   res.Outcome.Roll,
		Won:    res.Outcome.Won,
		Payout: res.Outcome.Payout,
		Path:   path,
	}), nil
}

// RefundBet returns an expired bet's stake.
func (s *Service) RefundBet(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	betAddr, err := addressField(in, "bet")
	if err != nil {
		return nil, respond(ctx, err)
	}
	result, err := s.resolver.RefundBet(ctx, betAddr)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"bet":      structpb.NewStringValue(betAddr.String()),
		"player":   structpb.NewStringValue(result.Bet.Commitment.Player.String()),
		"refunded": uintValue(result.Refunded),
	}}, nil
}

// GetBalance returns an account balance.
func (s *Service) GetBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	account, err := addressField(in, "account")
	if err != nil {
		return nil, respond(ctx, err)
	}
	balance, err := s.resolver.Balance(ctx, account)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return balanceToStruct(account, balance), nil
}

// GetVault returns the house vault and its balance.
func (s *Service) GetVault(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	vault, balance, err := s.resolver.Vault(ctx)
	if err != nil {
		return nil, respond(ctx, err)
	}
	return vaultToStruct(Vault{House: vault.House, Address: vault.Address, Bump: vault.Bump, Balance: balance}), nil
}

// GetTransfers returns the newest ledger movements touching an account. The
// optional limit is clamped by the resolver.
func (s *Service) GetTransfers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	account, err := addressField(in, "account")
	if err != nil {
		return nil, respond(ctx, err)
	}
	limit := 0
	if _, ok := in.GetFields()["limit"]; ok {
		v, err := uintField(in, "limit")
		if err != nil {
			return nil, respond(ctx, err)
		}
		limit = int(min(v, domain.MaxTransferPage))
	}
	transfers, err := s.resolver.Transfers(ctx, account, limit)
	if err != nil {
		return nil, respond(ctx, err)
	}
	out := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, Transfer{ID: t.ID, From: t.From, To: t.To, Amount: t.Amount, Reason: t.Reason, CreatedAt: t.CreatedAt})
	}
	return transfersToStruct(account, out), nil
}

func (s *Service) check(in *structpb.Struct) error {
	if in == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	if s == nil || s.resolver == nil {
		return status.Error(codes.Internal, "resolver is not configured")
	}
	return nil
}

func balanceToStruct(account address.Address, balance uint64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"account": structpb.NewStringValue(account.String()),
		"balance": uintValue(balance),
	}}
}

// respond converts err into a gRPC status localized for the caller.
func respond(ctx context.Context, err error) error {
	var fe *fieldError
	switch {
	case errors.As(err, new(*apperrors.Error)):
	case errors.Is(err, address.ErrInvalidAddress):
		field, _, _ := strings.Cut(err.Error(), ":")
		err = apperrors.Wrap(apperrors.CodeInvalidAddress, "", err).
			WithMetadata(map[string]string{"Field": field})
	case errors.As(err, &fe):
		err = apperrors.Wrap(apperrors.CodeInvalidRequest, "", err).
			WithMetadata(map[string]string{"Reason": fe.Error()})
	}
	return apperrors.HandleError(err, localeFromContext(ctx))
}

func localeFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(LocaleMetadataKey); len(values) > 0 {
		return values[0]
	}
	return ""
}

var (
	_ ResolverServiceServer = (*Service)(nil)
	_ Resolver              = (*domain.Service)(nil)
)

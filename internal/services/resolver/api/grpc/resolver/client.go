package resolver

import (
	"context"

	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/mr-tron/base58"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
	"lukechampine.com/uint128"
)

// Client is a typed client for the resolver service.
type Client struct {
	cc     grpc.ClientConnInterface
	locale string
}

// NewClient creates a client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithLocale returns a copy of c that asks for error messages in locale.
func (c *Client) WithLocale(locale string) *Client {
	clone := *c
	clone.locale = locale
	return &clone
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if c.locale != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, LocaleMetadataKey, c.locale)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// InitializeVault creates the house vault holding amount.
func (c *Client) InitializeVault(ctx context.Context, amount uint64, opts ...grpc.CallOption) (Vault, error) {
	out, err := c.invoke(ctx, MethodInitializeVault, &structpb.Struct{Fields: map[string]*structpb.Value{
		"amount": uintValue(amount),
	}}, opts...)
	if err != nil {
		return Vault{}, err
	}
	return vaultFromStruct(out)
}

// Fund credits account and returns its new balance.
func (c *Client) Fund(ctx context.Context, account address.Address, amount uint64, opts ...grpc.CallOption) (uint64, error) {
	out, err := c.invoke(ctx, MethodFund, &structpb.Struct{Fields: map[string]*structpb.Value{
		"account": structpb.NewStringValue(account.String()),
		"amount":  uintValue(amount),
	}}, opts...)
	if err != nil {
		return 0, err
	}
	return uintField(out, "balance")
}

// PlaceBet stakes amount on rolls below target.
func (c *Client) PlaceBet(ctx context.Context, player address.Address, seed uint128.Uint128, target uint8, amount uint64, opts ...grpc.CallOption) (Bet, error) {
	out, err := c.invoke(ctx, MethodPlaceBet, &structpb.Struct{Fields: map[string]*structpb.Value{
		"player": structpb.NewStringValue(player.String()),
		"seed":   structpb.NewStringValue(seed.String()),
		"target": structpb.NewNumberValue(float64(target)),
		"amount": uintValue(amount),
	}}, opts...)
	if err != nil {
		return Bet{}, err
	}
	return betFromStruct(out)
}

// GetBet fetches an open bet.
func (c *Client) GetBet(ctx context.Context, betAddress address.Address, opts ...grpc.CallOption) (Bet, error) {
	out, err := c.invoke(ctx, MethodGetBet, &structpb.Struct{Fields: map[string]*structpb.Value{
		"bet": structpb.NewStringValue(betAddress.String()),
	}}, opts...)
	if err != nil {
		return Bet{}, err
	}
	return betFromStruct(out)
}

// ResolveBet submits the authority's signature and records for a bet.
func (c *Client) ResolveBet(ctx context.Context, betAddress address.Address, signature []byte, records []sigverify.Instruction, opts ...grpc.CallOption) (Resolution, error) {
	out, err := c.invoke(ctx, MethodResolveBet, &structpb.Struct{Fields: map[string]*structpb.Value{
		"bet":       structpb.NewStringValue(betAddress.String()),
		"signature": structpb.NewStringValue(base58.Encode(signature)),
		"records":   recordsToValue(records),
	}}, opts...)
	if err != nil {
		return Resolution{}, err
	}
	return resolutionFromStruct(out)
}

// RefundBet reclaims an expired bet's stake and returns the refunded amount.
func (c *Client) RefundBet(ctx context.Context, betAddress address.Address, opts ...grpc.CallOption) (uint64, error) {
	out, err := c.invoke(ctx, MethodRefundBet, &structpb.Struct{Fields: map[string]*structpb.Value{
		"bet": structpb.NewStringValue(betAddress.String()),
	}}, opts...)
	if err != nil {
		return 0, err
	}
	return uintField(out, "refunded")
}

// GetBalance returns account's balance.
func (c *Client) GetBalance(ctx context.Context, account address.Address, opts ...grpc.CallOption) (uint64, error) {
	out, err := c.invoke(ctx, MethodGetBalance, &structpb.Struct{Fields: map[string]*structpb.Value{
		"account": structpb.NewStringValue(account.String()),
	}}, opts...)
	if err != nil {
		return 0, err
	}
	return uintField(out, "balance")
}

// GetVault returns the house vault.
func (c *Client) GetVault(ctx context.Context, opts ...grpc.CallOption) (Vault, error) {
	out, err := c.invoke(ctx, MethodGetVault, &structpb.Struct{}, opts...)
	if err != nil {
		return Vault{}, err
	}
	return vaultFromStruct(out)
}

// GetTransfers lists the newest ledger movements for account. A zero limit
// selects the server default.
func (c *Client) GetTransfers(ctx context.Context, account address.Address, limit uint64, opts ...grpc.CallOption) ([]Transfer, error) {
	fields := map[string]*structpb.Value{"account": structpb.NewStringValue(account.String())}
	if limit > 0 {
		fields["limit"] = uintValue(limit)
	}
	out, err := c.invoke(ctx, MethodGetTransfers, &structpb.Struct{Fields: fields}, opts...)
	if err != nil {
		return nil, err
	}
	return transfersFromStruct(out)
}

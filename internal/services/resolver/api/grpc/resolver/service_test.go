package resolver

import (
	"context"
	"crypto/ed25519"
	"net"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/louisbranch/fairroll/internal/platform/errors"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/payout"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
	"github.com/louisbranch/fairroll/internal/services/resolver/storage"
	ledgersqlite "github.com/louisbranch/fairroll/internal/services/resolver/storage/sqlite"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"lukechampine.com/uint128"
)

var testProgramID = address.Address{0x50, 0x52, 0x4f, 0x47}

type harness struct {
	client *Client
	key    ed25519.PrivateKey
	house  address.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pub, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	house, _ := address.FromBytes(pub)

	store, err := ledgersqlite.Open(filepath.Join(t.TempDir(), "ledger.db"), testProgramID)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc, err := domain.NewService(store, domain.Config{
		Authority:     house,
		ProgramID:     testProgramID,
		RefundAfter:   time.Hour,
		FaucetEnabled: true,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterResolverServiceServer(server, NewService(svc))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &harness{client: NewClient(conn), key: key, house: house}
}

func sign(t *testing.T, key ed25519.PrivateKey, b Bet) ([]byte, []sigverify.Instruction) {
	t.Helper()
	record, err := sigverify.BuildInstruction(key, b.Commitment().Encode())
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	sig, err := sigverify.SignatureFromInstruction(record)
	if err != nil {
		t.Fatalf("read signature: %v", err)
	}
	return sig, []sigverify.Instruction{record}
}

func localizedMessage(err error) *errdetails.LocalizedMessage {
	st, _ := status.FromError(err)
	for _, detail := range st.Details() {
		if msg, ok := detail.(*errdetails.LocalizedMessage); ok {
			return msg
		}
	}
	return nil
}

func TestResolverRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	player := address.Address{0x77, 1}

	if _, err := h.client.Fund(ctx, h.house, 1_000_000); err != nil {
		t.Fatalf("fund house: %v", err)
	}
	balance, err := h.client.Fund(ctx, player, 5_000)
	if err != nil {
		t.Fatalf("fund player: %v", err)
	}
	if balance != 5_000 {
		t.Fatalf("player balance = %d, want 5000", balance)
	}
	vault, err := h.client.InitializeVault(ctx, 1_000_000)
	if err != nil {
		t.Fatalf("initialize vault: %v", err)
	}
	if vault.House != h.house || vault.Balance != 1_000_000 {
		t.Fatalf("vault = %+v", vault)
	}

	placed, err := h.client.PlaceBet(ctx, player, uint128.New(5, 9), 60, 1_000)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if placed.Vault != vault.Address || placed.Seed != uint128.New(5, 9) || placed.Target != 60 {
		t.Fatalf("placed = %+v", placed)
	}
	fetched, err := h.client.GetBet(ctx, placed.Address)
	if err != nil {
		t.Fatalf("get bet: %v", err)
	}
	if fetched != placed {
		t.Fatalf("fetched = %+v, want %+v", fetched, placed)
	}

	sig, records := sign(t, h.key, fetched)
	res, err := h.client.ResolveBet(ctx, placed.Address, sig, records)
	if err != nil {
		t.Fatalf("resolve bet: %v", err)
	}
	roll := payout.Roll(sig)
	if res.Roll != roll || res.Won != payout.Wins(60, roll) {
		t.Fatalf("resolution = %+v, want roll %d", res, roll)
	}
	wantPlayer := uint64(4_000)
	if res.Won {
		want, _ := payout.Payout(1_000, 60)
		if res.Payout != want || res.State != "Paid" {
			t.Fatalf("resolution = %+v, want paid %d", res, want)
		}
		wantPlayer += want
	} else if res.State != "Settled" || res.Payout != 0 {
		t.Fatalf("resolution = %+v, want settled", res)
	}
	if len(res.Path) == 0 || res.Path[0] != "Pending" || res.Path[len(res.Path)-1] != res.State {
		t.Fatalf("path = %v", res.Path)
	}
	if got, _ := h.client.GetBalance(ctx, player); got != wantPlayer {
		t.Fatalf("player balance = %d, want %d", got, wantPlayer)
	}

	_, err = h.client.ResolveBet(ctx, placed.Address, sig, records)
	if status.Code(err) != codes.NotFound || apperrors.ReasonFromStatus(err) != apperrors.CodeBetNotFound {
		t.Fatalf("replay error = %v, want BET_NOT_FOUND", err)
	}
}

func TestInitializeVaultReportsLedgerBalance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	vaultAddr, _, err := bet.DeriveVault(h.house, testProgramID)
	if err != nil {
		t.Fatalf("derive vault: %v", err)
	}
	if _, err := h.client.Fund(ctx, vaultAddr, 700); err != nil {
		t.Fatalf("prefund vault: %v", err)
	}
	if _, err := h.client.Fund(ctx, h.house, 10_000); err != nil {
		t.Fatalf("fund house: %v", err)
	}
	vault, err := h.client.InitializeVault(ctx, 10_000)
	if err != nil {
		t.Fatalf("initialize vault: %v", err)
	}
	if vault.Address != vaultAddr || vault.Balance != 10_700 {
		t.Fatalf("vault = %+v, want %s with 10700", vault, vaultAddr)
	}
	fetched, err := h.client.GetVault(ctx)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if fetched.Balance != vault.Balance {
		t.Fatalf("get vault balance = %d, want %d", fetched.Balance, vault.Balance)
	}
}

func TestGetTransfersListsNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	player := address.Address{0x77, 2}

	if _, err := h.client.Fund(ctx, h.house, 50_000); err != nil {
		t.Fatalf("fund house: %v", err)
	}
	if _, err := h.client.Fund(ctx, player, 2_000); err != nil {
		t.Fatalf("fund player: %v", err)
	}
	vault, err := h.client.InitializeVault(ctx, 50_000)
	if err != nil {
		t.Fatalf("initialize vault: %v", err)
	}
	if _, err := h.client.PlaceBet(ctx, player, uint128.From64(3), 50, 500); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	transfers, err := h.client.GetTransfers(ctx, player, 0)
	if err != nil {
		t.Fatalf("get transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("transfers = %+v, want 2", transfers)
	}
	stake, faucet := transfers[0], transfers[1]
	if stake.From != player || stake.To != vault.Address || stake.Amount != 500 || stake.Reason != storage.ReasonStake {
		t.Fatalf("stake = %+v", stake)
	}
	if !faucet.From.IsZero() || faucet.To != player || faucet.Amount != 2_000 || faucet.Reason != storage.ReasonFaucet {
		t.Fatalf("faucet = %+v", faucet)
	}
	if stake.ID == "" || stake.CreatedAt.IsZero() {
		t.Fatalf("stake missing id or timestamp: %+v", stake)
	}

	limited, err := h.client.GetTransfers(ctx, player, 1)
	if err != nil {
		t.Fatalf("get transfers with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != stake.ID {
		t.Fatalf("limited = %+v, want only %s", limited, stake.ID)
	}
}

func TestResolverLocalizedErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	player := address.Address{0x77, 1}
	if _, err := h.client.Fund(ctx, h.house, 10); err != nil {
		t.Fatalf("fund house: %v", err)
	}
	if _, err := h.client.InitializeVault(ctx, 10); err != nil {
		t.Fatalf("initialize vault: %v", err)
	}

	_, err := h.client.WithLocale("pt-BR").PlaceBet(ctx, player, uint128.From64(1), 1, 10)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
	if apperrors.ReasonFromStatus(err) != apperrors.CodeBetInvalidTarget {
		t.Fatalf("reason = %s, want %s", apperrors.ReasonFromStatus(err), apperrors.CodeBetInvalidTarget)
	}
	msg := localizedMessage(err)
	if msg == nil || msg.GetLocale() != "pt-BR" || msg.GetMessage() != "O alvo deve estar entre 2 e 100" {
		t.Fatalf("localized = %v", msg)
	}
}

func TestResolverRejectsMalformedRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tcs := []struct {
		name   string
		method string
		in     *structpb.Struct
		reason apperrors.Code
	}{
		{
			name:   "bad address",
			method: MethodGetBalance,
			in:     &structpb.Struct{Fields: map[string]*structpb.Value{"account": structpb.NewStringValue("not-base58-0OIl")}},
			reason: apperrors.CodeInvalidAddress,
		},
		{
			name:   "missing bet",
			method: MethodGetBet,
			in:     &structpb.Struct{},
			reason: apperrors.CodeInvalidRequest,
		},
		{
			name:   "missing transfers account",
			method: MethodGetTransfers,
			in:     &structpb.Struct{},
			reason: apperrors.CodeInvalidRequest,
		},
		{
			name:   "fractional amount",
			method: MethodFund,
			in: &structpb.Struct{Fields: map[string]*structpb.Value{
				"account": structpb.NewStringValue(h.house.String()),
				"amount":  structpb.NewNumberValue(1.5),
			}},
			reason: apperrors.CodeInvalidRequest,
		},
		{
			name:   "bad seed",
			method: MethodPlaceBet,
			in: &structpb.Struct{Fields: map[string]*structpb.Value{
				"player": structpb.NewStringValue(h.house.String()),
				"seed":   structpb.NewStringValue("-1"),
			}},
			reason: apperrors.CodeBetInvalidSeed,
		},
	}
	for _, tc := range tcs {
		_, err := h.client.invoke(ctx, tc.method, tc.in)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("%s: code = %v (%v), want %v", tc.name, status.Code(err), err, codes.InvalidArgument)
		}
		if got := apperrors.ReasonFromStatus(err); got != tc.reason {
			t.Fatalf("%s: reason = %s, want %s", tc.name, got, tc.reason)
		}
	}
}

func TestServiceRejectsNilRequest(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.GetVault(context.Background(), nil)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
	_, err = svc.GetVault(context.Background(), &structpb.Struct{})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.Internal)
	}
}

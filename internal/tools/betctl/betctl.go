// Package betctl implements the operator CLI for a resolver: key generation,
// funding, placing bets and signing resolutions as the house authority.
package betctl

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"lukechampine.com/uint128"

	entrypoint "github.com/louisbranch/fairroll/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/fairroll/internal/platform/grpc"
	"github.com/louisbranch/fairroll/internal/platform/timeouts"
	"github.com/louisbranch/fairroll/internal/random"
	resolverservice "github.com/louisbranch/fairroll/internal/services/resolver/api/grpc/resolver"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/bet"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/payout"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/sigverify"
)

// Config holds global betctl settings. Command and Args name the subcommand
// and its own flags.
type Config struct {
	Addr         string        `env:"BETCTL_RESOLVER_ADDR" envDefault:"localhost:8090"`
	AuthorityKey string        `env:"BETCTL_AUTHORITY_KEY"`
	Locale       string        `env:"BETCTL_LOCALE"`
	Timeout      time.Duration `env:"BETCTL_TIMEOUT"`
	Command      string
	Args         []string
}

// Resolver is the slice of the resolver client betctl drives.
type Resolver interface {
	InitializeVault(ctx context.Context, amount uint64) (resolverservice.Vault, error)
	Fund(ctx context.Context, account address.Address, amount uint64) (uint64, error)
	PlaceBet(ctx context.Context, player address.Address, seed uint128.Uint128, target uint8, amount uint64) (resolverservice.Bet, error)
	GetBet(ctx context.Context, betAddress address.Address) (resolverservice.Bet, error)
	ResolveBet(ctx context.Context, betAddress address.Address, signature []byte, records []sigverify.Instruction) (resolverservice.Resolution, error)
	RefundBet(ctx context.Context, betAddress address.Address) (uint64, error)
	GetBalance(ctx context.Context, account address.Address) (uint64, error)
	GetVault(ctx context.Context) (resolverservice.Vault, error)
	GetTransfers(ctx context.Context, account address.Address, limit uint64) ([]resolverservice.Transfer, error)
}

type command struct {
	usage  string
	remote bool
	run    func(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error
}

type runEnv struct {
	cfg     Config
	out     io.Writer
	entropy io.Reader
	client  Resolver
}

var commands = map[string]command{
	"keygen":     {usage: "generate an authority keypair", run: runKeygen},
	"quote":      {usage: "show the payout for a winning bet", run: runQuote},
	"fund":       {usage: "mint balance into an account", remote: true, run: runFund},
	"init-vault": {usage: "create and fund the house vault", remote: true, run: runInitVault},
	"vault":      {usage: "show the house vault", remote: true, run: runVault},
	"balance":    {usage: "show an account balance", remote: true, run: runBalance},
	"history":    {usage: "list an account's newest transfers", remote: true, run: runHistory},
	"place":      {usage: "stake a bet", remote: true, run: runPlace},
	"bet":        {usage: "show an open bet", remote: true, run: runShowBet},
	"sign":       {usage: "sign an open bet's commitment without submitting", remote: true, run: runSign},
	"resolve":    {usage: "sign and resolve an open bet", remote: true, run: runResolve},
	"refund":     {usage: "reclaim an expired bet's stake", remote: true, run: runRefund},
}

// ParseConfig parses environment defaults and global flags. The first
// positional argument selects the subcommand.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.Request
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "resolver gRPC address")
	fs.StringVar(&cfg.AuthorityKey, "key", cfg.AuthorityKey, "base58 authority private key used by sign and resolve")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for server error messages")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-command deadline")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: betctl [flags] <command> [command flags]\n\ncommands:\n")
		names := make([]string, 0, len(commands))
		for name := range commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(fs.Output(), "  %-11s %s\n", name, commands[name].usage)
		}
		fmt.Fprintln(fs.Output(), "\nflags:")
		fs.PrintDefaults()
	}
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, errors.New("command is required")
	}
	if _, ok := commands[rest[0]]; !ok {
		return Config{}, fmt.Errorf("unknown command %q", rest[0])
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]
	return cfg, nil
}

// Run dials the resolver when the command needs it and executes cfg.Command.
func Run(ctx context.Context, cfg Config, out io.Writer, entropy io.Reader) error {
	cmd, ok := commands[cfg.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
	if !cmd.remote {
		return Execute(ctx, cfg, nil, out, entropy)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeouts.Dial)
	defer cancel()
	conn, err := platformgrpc.Dial(dialCtx, cfg.Addr, log.Printf)
	if err != nil {
		return fmt.Errorf("dial resolver at %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	client := resolverservice.NewClient(conn)
	if cfg.Locale != "" {
		client = client.WithLocale(cfg.Locale)
	}
	return Execute(ctx, cfg, clientAdapter{client}, out, entropy)
}

// Execute runs cfg.Command against client, which may be nil for commands
// that do not talk to a resolver.
func Execute(ctx context.Context, cfg Config, client Resolver, out io.Writer, entropy io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	cmd, ok := commands[cfg.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
	if cmd.remote && client == nil {
		return fmt.Errorf("%s requires a resolver client", cfg.Command)
	}
	if entropy == nil {
		entropy = rand.Reader
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	fs := flag.NewFlagSet(cfg.Command, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return cmd.run(ctx, &runEnv{cfg: cfg, out: out, entropy: entropy, client: client}, fs, cfg.Args)
}

func runKeygen(_ context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	pub, priv, err := ed25519.GenerateKey(env.entropy)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	_, err = fmt.Fprintf(env.out, "FAIRROLL_AUTHORITY_PUBLIC_KEY=%s\nFAIRROLL_BETCTL_AUTHORITY_KEY=%s\n",
		base58.Encode(pub), base58.Encode(priv))
	return err
}

func runQuote(_ context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	target := fs.Uint("target", 50, "winning rolls are strictly below target")
	amount := fs.Uint64("amount", 0, "stake")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseTarget(*target)
	if err != nil {
		return err
	}
	won, err := payout.Payout(*amount, t)
	if err != nil {
		return err
	}
	c := bet.Commitment{Target: t}
	_, err = fmt.Fprintf(env.out, "target=%d win_chance_bps=%d payout=%d\n", t, c.WinProbabilityBasisPoints(), won)
	return err
}

func runFund(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	account := addressFlag(fs, "account", "account to credit")
	amount := fs.Uint64("amount", 0, "amount to mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("account", *account); err != nil {
		return err
	}
	balance, err := env.client.Fund(ctx, *account, *amount)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "account=%s balance=%d\n", account, balance)
	return err
}

func runInitVault(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	amount := fs.Uint64("amount", 0, "initial vault funding drawn from the house account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	vault, err := env.client.InitializeVault(ctx, *amount)
	if err != nil {
		return err
	}
	return printVault(env.out, vault)
}

func runVault(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	vault, err := env.client.GetVault(ctx)
	if err != nil {
		return err
	}
	return printVault(env.out, vault)
}

func runBalance(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	account := addressFlag(fs, "account", "account to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("account", *account); err != nil {
		return err
	}
	balance, err := env.client.GetBalance(ctx, *account)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "account=%s balance=%d\n", account, balance)
	return err
}

func runHistory(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	account := addressFlag(fs, "account", "account to inspect")
	limit := fs.Uint64("limit", 20, "maximum transfers to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("account", *account); err != nil {
		return err
	}
	transfers, err := env.client.GetTransfers(ctx, *account, *limit)
	if err != nil {
		return err
	}
	for _, t := range transfers {
		if _, err := fmt.Fprintf(env.out, "id=%s from=%s to=%s amount=%d reason=%s at=%s\n",
			t.ID, t.From, t.To, t.Amount, t.Reason, t.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func runPlace(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	player := addressFlag(fs, "player", "player account staking the bet")
	seedText := fs.String("seed", "", "decimal u128 seed; random when empty")
	target := fs.Uint("target", 50, "winning rolls are strictly below target")
	amount := fs.Uint64("amount", 0, "stake")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("player", *player); err != nil {
		return err
	}
	t, err := parseTarget(*target)
	if err != nil {
		return err
	}
	seed, err := seedOrRandom(*seedText, env.entropy)
	if err != nil {
		return err
	}
	placed, err := env.client.PlaceBet(ctx, *player, seed, t, *amount)
	if err != nil {
		return err
	}
	return printBet(env.out, placed)
}

func runShowBet(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	betAddr := addressFlag(fs, "bet", "bet address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("bet", *betAddr); err != nil {
		return err
	}
	open, err := env.client.GetBet(ctx, *betAddr)
	if err != nil {
		return err
	}
	return printBet(env.out, open)
}

func runSign(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	betAddr := addressFlag(fs, "bet", "bet address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("bet", *betAddr); err != nil {
		return err
	}
	open, record, signature, err := signBet(ctx, env, *betAddr)
	if err != nil {
		return err
	}
	c := open.Commitment()
	_, err = fmt.Fprintf(env.out, "bet=%s signature=%s record=%s roll=%d player=%s seed=%s slot=%d amount=%d target=%d\n",
		betAddr, base58.Encode(signature), base58.Encode(record.Data), payout.Roll(signature),
		c.Player, c.Seed, c.Slot, c.Amount, c.Target)
	return err
}

func runResolve(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	betAddr := addressFlag(fs, "bet", "bet address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("bet", *betAddr); err != nil {
		return err
	}
	_, record, signature, err := signBet(ctx, env, *betAddr)
	if err != nil {
		return err
	}
	res, err := env.client.ResolveBet(ctx, *betAddr, signature, []sigverify.Instruction{record})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "bet=%s state=%s roll=%d won=%t payout=%d path=%s\n",
		res.Bet, res.State, res.Roll, res.Won, res.Payout, strings.Join(res.Path, ">"))
	return err
}

func runRefund(ctx context.Context, env *runEnv, fs *flag.FlagSet, args []string) error {
	betAddr := addressFlag(fs, "bet", "bet address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("bet", *betAddr); err != nil {
		return err
	}
	refunded, err := env.client.RefundBet(ctx, *betAddr)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "bet=%s refunded=%d\n", betAddr, refunded)
	return err
}

// signBet fetches the open bet and signs its encoded commitment with the
// configured authority key.
func signBet(ctx context.Context, env *runEnv, betAddr address.Address) (resolverservice.Bet, sigverify.Instruction, []byte, error) {
	key, err := ParseAuthorityKey(env.cfg.AuthorityKey)
	if err != nil {
		return resolverservice.Bet{}, sigverify.Instruction{}, nil, err
	}
	open, err := env.client.GetBet(ctx, betAddr)
	if err != nil {
		return resolverservice.Bet{}, sigverify.Instruction{}, nil, err
	}
	record, err := sigverify.BuildInstruction(key, open.Commitment().Encode())
	if err != nil {
		return resolverservice.Bet{}, sigverify.Instruction{}, nil, err
	}
	if err := checkSignedCommitment(record, open.Commitment()); err != nil {
		return resolverservice.Bet{}, sigverify.Instruction{}, nil, err
	}
	signature, err := sigverify.SignatureFromInstruction(record)
	if err != nil {
		return resolverservice.Bet{}, sigverify.Instruction{}, nil, err
	}
	return open, record, signature, nil
}

// checkSignedCommitment decodes the message carried by record and requires it
// to match want.
func checkSignedCommitment(record sigverify.Instruction, want bet.Commitment) error {
	entries, err := sigverify.ParseSignatures(record.Data)
	if err != nil {
		return err
	}
	if len(entries) != 1 {
		return fmt.Errorf("signature record carries %d entries, want 1", len(entries))
	}
	got, err := bet.Decode(entries[0].Message)
	if err != nil {
		return fmt.Errorf("decode signed commitment: %w", err)
	}
	if got != want {
		return fmt.Errorf("signed commitment %+v does not match bet %+v", got, want)
	}
	return nil
}

// ParseAuthorityKey decodes a base58 ed25519 private key or 32-byte seed.
func ParseAuthorityKey(value string) (ed25519.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("authority key is required: set -key or FAIRROLL_BETCTL_AUTHORITY_KEY")
	}
	raw, err := base58.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("decode authority key: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("authority key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

func addressFlag(fs *flag.FlagSet, name, usage string) *address.Address {
	var addr address.Address
	fs.TextVar(&addr, name, address.Zero, usage)
	return &addr
}

func required(name string, addr address.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}

func parseTarget(value uint) (uint8, error) {
	if value < bet.MinTarget || value > bet.MaxTarget {
		return 0, fmt.Errorf("target must be between %d and %d, got %d", bet.MinTarget, bet.MaxTarget, value)
	}
	return uint8(value), nil
}

func seedOrRandom(value string, r io.Reader) (uint128.Uint128, error) {
	if value != "" {
		return bet.ParseSeed(value)
	}
	return random.NewSeedFrom(r)
}

func printVault(out io.Writer, vault resolverservice.Vault) error {
	_, err := fmt.Fprintf(out, "vault=%s house=%s bump=%d balance=%d\n", vault.Address, vault.House, vault.Bump, vault.Balance)
	return err
}

func printBet(out io.Writer, b resolverservice.Bet) error {
	_, err := fmt.Fprintf(out, "bet=%s vault=%s player=%s seed=%s slot=%d amount=%d target=%d bump=%d\n",
		b.Address, b.Vault, b.Player, b.Seed, b.Slot, b.Amount, b.Target, b.Bump)
	return err
}

// clientAdapter drops the variadic call options so *resolverservice.Client
// satisfies Resolver.
type clientAdapter struct {
	c *resolverservice.Client
}

func (a clientAdapter) InitializeVault(ctx context.Context, amount uint64) (resolverservice.Vault, error) {
	return a.c.InitializeVault(ctx, amount)
}

func (a clientAdapter) Fund(ctx context.Context, account address.Address, amount uint64) (uint64, error) {
	return a.c.Fund(ctx, account, amount)
}

func (a clientAdapter) PlaceBet(ctx context.Context, player address.Address, seed uint128.Uint128, target uint8, amount uint64) (resolverservice.Bet, error) {
	return a.c.PlaceBet(ctx, player, seed, target, amount)
}

func (a clientAdapter) GetBet(ctx context.Context, betAddress address.Address) (resolverservice.Bet, error) {
	return a.c.GetBet(ctx, betAddress)
}

func (a clientAdapter) ResolveBet(ctx context.Context, betAddress address.Address, signature []byte, records []sigverify.Instruction) (resolverservice.Resolution, error) {
	return a.c.ResolveBet(ctx, betAddress, signature, records)
}

func (a clientAdapter) RefundBet(ctx context.Context, betAddress address.Address) (uint64, error) {
	return a.c.RefundBet(ctx, betAddress)
}

func (a clientAdapter) GetBalance(ctx context.Context, account address.Address) (uint64, error) {
	return a.c.GetBalance(ctx, account)
}

func (a clientAdapter) GetVault(ctx context.Context) (resolverservice.Vault, error) {
	return a.c.GetVault(ctx)
}

func (a clientAdapter) GetTransfers(ctx context.Context, account address.Address, limit uint64) ([]resolverservice.Transfer, error) {
	return a.c.GetTransfers(ctx, account, limit)
}

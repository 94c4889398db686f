// Package resolver parses resolver service flags and launches the service.
package resolver

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/fairroll/internal/platform/cmd"
	server "github.com/louisbranch/fairroll/internal/services/resolver/app"
	"github.com/louisbranch/fairroll/internal/services/resolver/domain/address"
)

// Config holds resolver command configuration.
type Config struct {
	Port          int             `env:"RESOLVER_PORT" envDefault:"8090"`
	DBPath        string          `env:"RESOLVER_DB_PATH" envDefault:"data/resolver.db"`
	Authority     address.Address `env:"AUTHORITY_PUBLIC_KEY"`
	ProgramID     address.Address `env:"PROGRAM_ID"`
	RefundAfter   time.Duration   `env:"REFUND_AFTER" envDefault:"24h"`
	FaucetEnabled bool            `env:"FAUCET_ENABLED" envDefault:"false"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The resolver gRPC server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the resolver ledger database")
	fs.TextVar(&cfg.Authority, "authority", cfg.Authority, "Base58 public key of the house authority")
	fs.TextVar(&cfg.ProgramID, "program", cfg.ProgramID, "Base58 program id used to derive vault and bet addresses")
	fs.DurationVar(&cfg.RefundAfter, "refund-after", cfg.RefundAfter, "How long a bet stays open before the player may reclaim the stake")
	fs.BoolVar(&cfg.FaucetEnabled, "faucet", cfg.FaucetEnabled, "Allow Fund to mint balances")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Authority.IsZero() {
		return Config{}, errors.New("authority public key is required")
	}
	if cfg.RefundAfter < 0 {
		return Config{}, fmt.Errorf("refund-after must not be negative, got %s", cfg.RefundAfter)
	}
	return cfg, nil
}

// Run starts the resolver gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceResolver, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:          fmt.Sprintf(":%d", cfg.Port),
			DBPath:        cfg.DBPath,
			Authority:     cfg.Authority,
			ProgramID:     cfg.ProgramID,
			RefundAfter:   cfg.RefundAfter,
			FaucetEnabled: cfg.FaucetEnabled,
		})
	})
}

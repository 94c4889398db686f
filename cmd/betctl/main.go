package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	entrypoint "github.com/louisbranch/fairroll/internal/platform/cmd"
	"github.com/louisbranch/fairroll/internal/platform/config"
	"github.com/louisbranch/fairroll/internal/tools/betctl"
)

func main() {
	log.SetPrefix(entrypoint.LogPrefix(entrypoint.ServiceBetctl))
	cfg, err := betctl.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := betctl.Run(ctx, cfg, os.Stdout, nil); err != nil {
		config.Exitf("%s: %v", cfg.Command, err)
	}
}

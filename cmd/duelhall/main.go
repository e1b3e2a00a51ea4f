// Package main starts the duelhall session coordinator and handles
// termination.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	duelhallcmd "github.com/louisbranch/duelhall/internal/cmd/duelhall"
	"github.com/louisbranch/duelhall/internal/platform/config"
)

func main() {
	cfg, err := duelhallcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf(config.ExitCodeConfig, "parse config: %v", err)
	}
	log.SetPrefix("[DUELHALL] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Probe {
		if err := duelhallcmd.Probe(ctx, cfg); err != nil {
			log.Fatalf("probe: %v", err)
		}
		return
	}
	if err := duelhallcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

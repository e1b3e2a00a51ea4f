// Package duelhall parses coordinator command flags and composes the match
// server entrypoint.
package duelhall

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	entrypoint "github.com/louisbranch/duelhall/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/duelhall/internal/platform/grpc"
	"github.com/louisbranch/duelhall/internal/platform/timeouts"
	server "github.com/louisbranch/duelhall/internal/services/match/app"
)

// Config holds duelhall command configuration. Env names carry the
// DUELHALL_ prefix.
type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR"      envDefault:":8090"`
	GRPCAddr      string `env:"GRPC_ADDR"`
	JournalPath   string `env:"JOURNAL_PATH"`
	JournalBuffer int    `env:"JOURNAL_BUFFER" envDefault:"256"`
	SendBuffer    int    `env:"SEND_BUFFER"    envDefault:"64"`
	StrictMoves   bool   `env:"STRICT_MOVES"   envDefault:"false"`

	// Probe checks a running instance's gRPC health and exits.
	Probe bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP/WebSocket listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.JournalPath, "journal-path", cfg.JournalPath, "SQLite lifecycle journal path (empty disables)")
	fs.IntVar(&cfg.JournalBuffer, "journal-buffer", cfg.JournalBuffer, "queued journal events before drops")
	fs.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "per-connection outbound frame queue")
	fs.BoolVar(&cfg.StrictMoves, "strict-moves", cfg.StrictMoves, "drop moves and closes from non-participants")
	fs.BoolVar(&cfg.Probe, "probe", false, "check gRPC health at -grpc-addr and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.JournalBuffer < 0 || cfg.SendBuffer < 0 {
		return Config{}, fmt.Errorf("buffer sizes must not be negative")
	}
	return cfg, nil
}

// Run serves the match server until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMatch, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:         cfg.HTTPAddr,
			GRPCAddr:         cfg.GRPCAddr,
			JournalPath:      cfg.JournalPath,
			JournalBuffer:    cfg.JournalBuffer,
			SendBuffer:       cfg.SendBuffer,
			StrictMembership: cfg.StrictMoves,
		}); err != nil {
			return fmt.Errorf("serve duelhall: %w", err)
		}
		return nil
	})
}

// Probe reports whether the instance at cfg.GRPCAddr is serving.
func Probe(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.GRPCAddr)
	if addr == "" {
		return fmt.Errorf("grpc address is required for probe")
	}
	conn, err := platformgrpc.DialWithHealth(ctx, addr, server.HealthService, timeouts.GRPCDial, log.Printf, platformgrpc.DefaultClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, err)
	}
	return conn.Close()
}

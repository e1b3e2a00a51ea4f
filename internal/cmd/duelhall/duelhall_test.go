package duelhall

import (
	"context"
	"errors"
	"flag"
	"net"
	"testing"
	"time"

	platformgrpc "github.com/louisbranch/duelhall/internal/platform/grpc"
	server "github.com/louisbranch/duelhall/internal/services/match/app"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("duelhall", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != ":8090" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != "" || cfg.JournalPath != "" {
		t.Fatalf("expected optional surfaces off, got grpc=%q journal=%q", cfg.GRPCAddr, cfg.JournalPath)
	}
	if cfg.JournalBuffer != 256 || cfg.SendBuffer != 64 {
		t.Fatalf("unexpected buffers journal=%d send=%d", cfg.JournalBuffer, cfg.SendBuffer)
	}
	if cfg.StrictMoves || cfg.Probe {
		t.Fatal("expected permissive, non-probe defaults")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("DUELHALL_HTTP_ADDR", "env-http")
	t.Setenv("DUELHALL_GRPC_ADDR", "env-grpc")
	t.Setenv("DUELHALL_STRICT_MOVES", "true")
	t.Setenv("DUELHALL_SEND_BUFFER", "8")

	fs := flag.NewFlagSet("duelhall", flag.ContinueOnError)
	args := []string{
		"-http-addr", "flag-http",
		"-journal-path", "/tmp/journal.sqlite",
	}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != "env-grpc" {
		t.Fatalf("expected env grpc addr, got %q", cfg.GRPCAddr)
	}
	if cfg.JournalPath != "/tmp/journal.sqlite" {
		t.Fatalf("expected flag journal path, got %q", cfg.JournalPath)
	}
	if !cfg.StrictMoves || cfg.SendBuffer != 8 {
		t.Fatalf("expected env strict moves and send buffer, got %v %d", cfg.StrictMoves, cfg.SendBuffer)
	}
}

func TestParseConfigRejectsNegativeBuffer(t *testing.T) {
	fs := flag.NewFlagSet("duelhall", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-send-buffer", "-1"}); err == nil {
		t.Fatal("expected error for negative buffer")
	}
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("DUELHALL_JOURNAL_BUFFER", "many")
	fs := flag.NewFlagSet("duelhall", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected env parse error")
	}
}

func TestProbeRequiresAddress(t *testing.T) {
	if err := Probe(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without grpc address")
	}
}

func TestProbeReportsServing(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	health := platformgrpc.NewHealthServer(server.HealthService)
	go func() {
		_ = health.Serve(listener)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		health.Stop(ctx)
	})

	health.SetServing(true)
	if err := Probe(context.Background(), Config{GRPCAddr: listener.Addr().String()}); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestProbeReportsNotServing(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	health := platformgrpc.NewHealthServer(server.HealthService)
	go func() {
		_ = health.Serve(listener)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		health.Stop(ctx)
	})

	err = Probe(context.Background(), Config{GRPCAddr: listener.Addr().String()})
	var dialErr *platformgrpc.DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != platformgrpc.DialStageHealth {
		t.Fatalf("probe err = %v, want health stage dial error", err)
	}
}

func TestRunRejectsNilContext(t *testing.T) {
	if err := Run(nil, Config{HTTPAddr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error for nil context")
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/duelhall/internal/platform/grpc"
	"github.com/louisbranch/duelhall/internal/platform/timeouts"
	"github.com/louisbranch/duelhall/internal/services/match/coordinator"
	"github.com/louisbranch/duelhall/internal/services/match/journal"
	"github.com/louisbranch/duelhall/internal/services/match/storage/sqlite"
)

// HealthService is the name reported by the gRPC health server.
const HealthService = "duelhall.match"

// Config defines the inputs for the match transport boundary.
type Config struct {
	HTTPAddr string
	// GRPCAddr enables the grpc.health.v1 server when set.
	GRPCAddr string
	// JournalPath enables the SQLite lifecycle journal when set.
	JournalPath   string
	JournalBuffer int
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer       int
	StrictMembership bool

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the match HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	grpcAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	service         *matchService
	health          *platformgrpc.HealthServer
	journal         *journal.Journal
	store           *sqlite.Store
}

// NewServer builds a configured match server. The journal store is opened
// here so a bad path fails before anything listens.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	var (
		store   *sqlite.Store
		journ   *journal.Journal
		options = coordinator.Options{StrictMembership: config.StrictMembership}
	)
	if path := strings.TrimSpace(config.JournalPath); path != "" {
		opened, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open journal store: %w", err)
		}
		store = opened
		journ = journal.Start(store, config.JournalBuffer)
		options.Recorder = journ
	}

	service := newMatchService(config.SendBuffer, options)
	server := &Server{
		httpAddr:        httpAddr,
		grpcAddr:        strings.TrimSpace(config.GRPCAddr),
		shutdownTimeout: config.ShutdownTimeout,
		httpServer: &http.Server{
			Addr:              httpAddr,
			Handler:           newHandler(service),
			ReadHeaderTimeout: config.ReadHeaderTimeout,
		},
		service: service,
		journal: journ,
		store:   store,
	}
	if server.grpcAddr != "" {
		server.health = platformgrpc.NewHealthServer(HealthService)
	}
	return server, nil
}

// Run creates and serves a match server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init match server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve match: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, and the health server when
// configured, until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("match server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	httpListener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.httpAddr, err)
	}

	serveErr := make(chan error, 2)
	if s.health != nil {
		grpcListener, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("listen grpc %s: %w", s.grpcAddr, err)
		}
		log.Printf("match health server listening on %s", grpcListener.Addr())
		go func() {
			if err := s.health.Serve(grpcListener); err != nil {
				serveErr <- err
			}
		}()
	}

	log.Printf("match server listening on %s", httpListener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(httpListener)
	}()
	if s.health != nil {
		s.health.SetServing(true)
	}

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-serveErr:
		_ = s.shutdown()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if s.health != nil {
		s.health.SetServing(false)
	}
	err := s.httpServer.Shutdown(shutdownCtx)
	// Hijacked WebSocket connections are not tracked by http.Server.
	s.service.transport.closeAll()
	if s.health != nil {
		s.health.Stop(shutdownCtx)
	}

	stats := s.service.coordinator.Stats()
	log.Printf("match server stopped open_sessions=%d full_sessions=%d seated_connections=%d",
		stats.OpenSessions, stats.FullSessions, stats.SeatedConnections)
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close releases server resources, flushing the journal first.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.journal != nil {
		s.journal.Close()
		if dropped := s.journal.Dropped(); dropped > 0 {
			log.Printf("match: journal dropped %d events", dropped)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close journal store: %v", err)
		}
	}
}

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/duelhall/internal/services/match/coordinator"
)

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerRejectsUnopenableJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "journal.sqlite")
	if _, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", JournalPath: path}); err == nil {
		t.Fatal("expected error for journal in a missing directory")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestCloseNilServer(t *testing.T) {
	var s *Server
	s.Close()
}

func TestNewHandlerUpEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/up", nil)

	NewHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if strings.TrimSpace(rr.Body.String()) != "OK" {
		t.Fatalf("body = %q, want OK", rr.Body.String())
	}
}

func TestNewHandlerWSEndpointRejectsPost(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ws", nil)

	NewHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestNewHandlerStatsEndpointRejectsPost(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stats", nil)

	NewHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := NewServer(Config{
		HTTPAddr:    "127.0.0.1:0",
		GRPCAddr:    "127.0.0.1:0",
		JournalPath: filepath.Join(t.TempDir(), "journal.sqlite"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}

func TestListenAndServeReportsBusyAddress(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	server, err := NewServer(Config{HTTPAddr: listener.Addr().String()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected listen error for busy address")
	}
}

func TestServerJournalsLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0", JournalPath: path})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	roomID := server.service.coordinator.CreateSession("a")
	server.service.coordinator.CloseSession("a", roomID)
	server.journal.Close()

	events, err := server.store.ListSessionEvents(context.Background(), roomID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Kind != coordinator.KindCreated || events[1].Kind != coordinator.KindClosed {
		t.Fatalf("events = %+v", events)
	}
	server.Close()
}

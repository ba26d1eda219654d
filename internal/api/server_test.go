package api

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	rerrors "card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestServer_RunAndShutdown(t *testing.T) {
	log, _ := logger.NewLoggerWithWriter(logger.DefaultConfig(), &bytes.Buffer{})
	addr := freeAddr(t)
	srv := NewServer(ServerConfig{Addr: addr, ShutdownTimeout: time.Second},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }), log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	defer l.Close()

	log, _ := logger.NewLoggerWithWriter(logger.DefaultConfig(), &bytes.Buffer{})
	srv := NewServer(ServerConfig{Addr: l.Addr().String()}, http.NotFoundHandler(), log)

	err = srv.Run(context.Background())
	rerr, ok := rerrors.AsReconcilerError(err)
	if !ok || rerr.Category != rerrors.CategoryNetwork {
		t.Errorf("expected a network error, got %v", err)
	}
}

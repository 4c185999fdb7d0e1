// Command sandterm-server serves the sandterm HTTP API and command channel
// on one address and the interactive PTY bridge on a second one.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/choonkeat/sandterm/internal/config"
	"github.com/choonkeat/sandterm/internal/sandbox"
	"github.com/choonkeat/sandterm/internal/server"
	"github.com/choonkeat/sandterm/internal/session"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		addr       = flag.String("addr", "", "API listen address (overrides config)")
		ptyAddr    = flag.String("pty-addr", "", "PTY bridge listen address (overrides config)")
		dataDir    = flag.String("data-dir", "", "sandbox data directory (overrides config)")
		production = flag.Bool("production", false, "enable production protections")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[server] config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *ptyAddr != "" {
		cfg.PTYAddr = *ptyAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *production {
		cfg.Production = true
	}

	manager := sandbox.NewManager(cfg.DataDir)
	srv := server.New(cfg, session.NewMemoryStore(), manager)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := &http.Server{Addr: cfg.Addr, Handler: srv.Router()}
	pty := &http.Server{Addr: cfg.PTYAddr, Handler: srv.PTYRouter()}

	errc := make(chan error, 2)
	go func() {
		log.Printf("[server] API listening on %s", cfg.Addr)
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()
	go func() {
		log.Printf("[server] PTY bridge listening on %s", cfg.PTYAddr)
		if err := pty.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("[server] shutting down")
	case err := <-errc:
		log.Printf("[server] listen: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] API shutdown: %v", err)
	}
	if err := pty.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] PTY shutdown: %v", err)
	}
	manager.DestroyAll()
}

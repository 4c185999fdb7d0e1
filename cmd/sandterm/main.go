// Command sandterm is the terminal client: a prompt that runs commands in a
// remote sandbox, streams long-running output, and attaches a full PTY for
// interactive programs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/choonkeat/sandterm/internal/client"
	"github.com/choonkeat/sandterm/internal/config"
	"github.com/choonkeat/sandterm/internal/lineedit"
)

// wsBaseURL maps the HTTP API base to its WebSocket scheme.
func wsBaseURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		serverURL  = flag.String("server", "", "API base URL (overrides config)")
		ptyURL     = flag.String("pty", "", "PTY bridge WebSocket URL (overrides config)")
		reset      = flag.Bool("reset", false, "forget the stored session id and exit")
		skipWarmup = flag.Bool("skip-warmup", false, "skip the immediate warmup ping")
	)
	flag.Parse()

	if *reset {
		if err := client.ClearState(); err != nil {
			log.Fatalf("[session] %v", err)
		}
		fmt.Println("session state cleared")
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *ptyURL != "" {
		cfg.PTYURL = *ptyURL
	}

	sessionID, err := client.LoadSessionID()
	if err != nil {
		log.Fatalf("[session] %v", err)
	}
	tabID := client.NewTabID()

	runner := client.NewRunner(cfg.ServerURL, sessionID,
		cfg.StreamingCommands, cfg.InteractiveCommands)

	conn := client.NewConn(
		wsBaseURL(strings.TrimRight(cfg.ServerURL, "/"))+"/api/ws?sessionId="+sessionID,
		client.ConnOptions{
			ReconnectDelay: cfg.ReconnectDelay.Std(),
			PingInterval:   cfg.PingInterval.Std(),
			ConnectTimeout: cfg.ConnectTimeout.Std(),
		})
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopWarmup := client.StartWarmup(ctx, func(ctx context.Context) error {
		return runner.Warmup(ctx, tabID)
	}, client.WarmupOptions{
		Interval:      cfg.WarmupInterval.Std(),
		SkipImmediate: *skipWarmup,
		OnFirstFailure: func(err error) {
			fmt.Fprintf(os.Stderr, "warning: sandbox warmup failed: %v\n", err)
		},
	})
	defer stopWarmup()

	// A tab that exits cleanly releases its hold on the sandbox.
	defer runner.Release(tabID)

	r := &repl{
		conn:           conn,
		runner:         runner,
		ptyURL:         cfg.PTYURL,
		commandTimeout: cfg.CommandTimeout.Std() + 5*time.Second, // a little past the server's own limit
		line:           lineedit.NewLine(),
		out:            os.Stdout,
	}
	if err := r.run(ctx); err != nil {
		log.Fatalf("[repl] %v", err)
	}
}

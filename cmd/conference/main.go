// Conference server
//
// Serves the conference page, websocket signaling and the media forwarding
// unit. Every room at /<name> is created on first join.
//
// Usage:
//
//	go run ./cmd/conference -config meet.yaml
//	MEET_ADDR=:9000 go run ./cmd/conference
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/thesyncim/meet/cmd/conference/server"
	"github.com/thesyncim/meet/internal/config"
)

// options are the settings main runs the server with.
type options struct {
	cfg           *config.Config
	signalingOnly bool
}

// loadOptions reads .env, then the flags in args, then the config file.
// .env goes first so MEET_CONFIG can come from it.
func loadOptions(args []string) (options, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	fs := flag.NewFlagSet("conference", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("MEET_CONFIG"), "YAML config file")
	signalingOnly := fs.Bool("signaling-only", false, "Relay presence without media (no PeerConnections)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return options{}, err
	}
	return options{cfg: cfg, signalingOnly: *signalingOnly}, nil
}

func main() {
	opts, err := loadOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := opts.cfg

	srv, err := server.NewServer(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ICEServers:   cfg.Server.ICEServers,
		DisableMedia: opts.signalingOnly,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	addr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}

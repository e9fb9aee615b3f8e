// Stop video suite runner
//
// Launches two Chrome sessions into one conference room and checks that
// camera mute and unmute on either side shows up on the other.
//
// Usage:
//
//	go run ./cmd/stopvideo -url http://localhost:8080 -room stopvideotest
//	go run ./cmd/stopvideo -headless=false   # watch the browsers
//
// Exits non-zero when any step fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/thesyncim/meet/internal/config"
	"github.com/thesyncim/meet/pkg/meet/fixture"
	"github.com/thesyncim/meet/pkg/meet/stopvideo"
	"github.com/thesyncim/meet/pkg/meet/testutil"
)

func main() {
	os.Exit(run())
}

// loadConfig reads .env, the flags in args and the config they point at.
// .env is loaded before the flags are defined: the -config default comes
// from MEET_CONFIG.
func loadConfig(args []string) (*config.Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("stopvideo", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("MEET_CONFIG"), "YAML config file")
	baseURL := fs.String("url", "", "Conference base URL (overrides config)")
	room := fs.String("room", "", "Room name (overrides config)")
	headless := fs.Bool("headless", true, "Run Chrome headless")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *baseURL != "" {
		cfg.Suite.BaseURL = *baseURL
	}
	if *room != "" {
		cfg.Suite.Room = *room
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			cfg.Browser.Headless = *headless
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run() int {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 2
	}

	fmt.Printf("Stop Video Suite\n")
	fmt.Printf("================\n")
	fmt.Printf("Room: %s\n\n", cfg.Suite.RoomURL())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	launch := testutil.Launch(testutil.BrowserConfig{
		Headless: cfg.Browser.Headless,
		Timeout:  cfg.Browser.Timeout,
		Bin:      cfg.Browser.Bin,
	})
	fx := fixture.New(fixture.Config{
		RoomURL:     cfg.Suite.RoomURL(),
		JoinTimeout: cfg.Suite.JoinTimeout,
		ICETimeout:  cfg.Suite.ICETimeout,
	}, launch)
	defer func() {
		if err := fx.Teardown(); err != nil {
			log.Printf("Teardown: %v", err)
		}
	}()

	if err := fx.Setup(ctx); err != nil {
		log.Printf("Setup failed: %v", err)
		return 1
	}

	report := stopvideo.Run(ctx, &stopvideo.TestContext{Fixture: fx, Logf: log.Printf}, stopvideo.Steps())
	fmt.Printf("\n%s", report)
	if report.Failed() {
		return 1
	}
	return 0
}

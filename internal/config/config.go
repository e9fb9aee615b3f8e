// Package config loads settings shared by the conference server and the
// stop-video suite runner.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// MEET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates every configurable section.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Suite   SuiteConfig   `yaml:"suite"`
}

// ServerConfig describes the conference HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ICEServers   []string      `yaml:"ice_servers"`
}

// BrowserConfig describes how browser sessions are launched.
type BrowserConfig struct {
	Headless bool          `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`
	Bin      string        `yaml:"bin"`
}

// SuiteConfig describes where the stop-video suite points its sessions.
type SuiteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Room        string        `yaml:"room"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
	ICETimeout  time.Duration `yaml:"ice_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  30 * time.Second,
		},
		Suite: SuiteConfig{
			BaseURL:     "http://localhost:8080",
			Room:        "stopvideotest",
			JoinTimeout: 10 * time.Second,
			ICETimeout:  10 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := env("MEET_ADDR"); v != "" {
		cfg.Server.Addr = v
	} else if port := env("PORT"); port != "" {
		// Accept both "8080" and ":8080".
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		cfg.Server.Addr = port
	}
	if v := env("MEET_ICE_SERVERS"); v != "" {
		cfg.Server.ICEServers = splitList(v)
	}
	if v := env("MEET_BROWSER_BIN"); v != "" {
		cfg.Browser.Bin = v
	}
	if v := env("MEET_BASE_URL"); v != "" {
		cfg.Suite.BaseURL = strings.TrimRight(v, "/")
	}
	if v := env("MEET_ROOM"); v != "" {
		cfg.Suite.Room = v
	}

	if v := env("MEET_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEET_HEADLESS: %w", err)
		}
		cfg.Browser.Headless = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"MEET_READ_TIMEOUT", &cfg.Server.ReadTimeout},
		{"MEET_WRITE_TIMEOUT", &cfg.Server.WriteTimeout},
		{"MEET_BROWSER_TIMEOUT", &cfg.Browser.Timeout},
		{"MEET_JOIN_TIMEOUT", &cfg.Suite.JoinTimeout},
		{"MEET_ICE_TIMEOUT", &cfg.Suite.ICETimeout},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate rejects configurations the server or suite cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Suite.Room == "" {
		errs = append(errs, errors.New("suite.room is required"))
	}
	if strings.ContainsAny(c.Suite.Room, "/?# ") {
		errs = append(errs, fmt.Errorf("suite.room %q contains reserved characters", c.Suite.Room))
	}
	if c.Browser.Timeout <= 0 {
		errs = append(errs, errors.New("browser.timeout must be positive"))
	}
	if c.Suite.JoinTimeout <= 0 || c.Suite.ICETimeout <= 0 {
		errs = append(errs, errors.New("suite timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// RoomURL returns the absolute URL of the configured room.
func (s SuiteConfig) RoomURL() string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + s.Room
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

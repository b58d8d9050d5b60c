// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// periscope is the terminal viewer for a remote IDE session. It
// mirrors the remote surface into the terminal as half-block cells,
// overlays the interactive zones, and forwards clicks and keystrokes
// back to the host. Chat input goes through a direct-submit overlay
// instead of per-key forwarding.
//
// State arrives on a push stream when the host is reachable over TCP;
// otherwise the viewer degrades to polling the HTTP API. All outbound
// input travels over the HTTP API.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/periscope-project/periscope/input"
	"github.com/periscope-project/periscope/lib/config"
	"github.com/periscope-project/periscope/lib/version"
	"github.com/periscope-project/periscope/render"
	"github.com/periscope-project/periscope/session"
	"github.com/periscope-project/periscope/snapshot"
	"github.com/periscope-project/periscope/statesync"
	"github.com/periscope-project/periscope/zone"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		apiURL      string
		pushAddress string
		logLevel    string
		logOutput   string
	)

	flagSet := pflag.NewFlagSet("periscope", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config YAML (default: $PERISCOPE_CONFIG)")
	flagSet.StringVar(&apiURL, "api-url", "", "host API base URL (overrides config)")
	flagSet.StringVar(&pushAddress, "push-address", "", "host push stream address (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error (overrides config)")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file (overrides config)")

	// Handle --version before flag parsing to match other Periscope
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("periscope")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if apiURL != "" {
		cfg.Host.APIURL = apiURL
	}
	if pushAddress != "" {
		cfg.Host.PushAddress = pushAddress
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logOutput != "" {
		cfg.Log.Output = logOutput
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := statesync.NewClient(statesync.Config{
		APIURL:         cfg.Host.APIURL,
		PushAddress:    cfg.Host.PushAddress,
		Dialer:         &statesync.TCPDialer{Timeout: cfg.Transport.ConnectTimeout.Std()},
		Logger:         logger,
		ConnectTimeout: cfg.Transport.ConnectTimeout.Std(),
		InitialBackoff: cfg.Transport.InitialBackoff.Std(),
		MaxBackoff:     cfg.Transport.MaxBackoff.Std(),
		MaxAttempts:    cfg.Transport.MaxAttempts,
		PollInterval:   cfg.Transport.PollInterval.Std(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	dispatcher, err := input.NewDispatcher(input.Config{
		Sender: client,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	modes := make(chan session.Mode, 8)
	controller, err := session.NewController(session.Config{
		Dispatcher: dispatcher,
		Logger:     logger,
		OnModeChange: func(mode session.Mode) {
			select {
			case modes <- mode:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		cols, rows = 80, 24
	}

	mapper := zone.NewMapper(snapshot.Size{})
	target := render.NewTerminalTarget(cols, max(rows-chromeRows, 1))
	renderErrs := make(chan error, 8)
	renderer, err := render.NewRenderer(render.Config{
		Target: target,
		Mapper: mapper,
		Logger: logger,
		OnError: func(err error) {
			select {
			case renderErrs <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	lipgloss.SetColorProfile(termenv.ColorProfile())

	model := newModel(modelConfig{
		client:     client,
		controller: controller,
		dispatcher: dispatcher,
		renderer:   renderer,
		target:     target,
		mapper:     mapper,
		logger:     logger,
		host:       cfg.Host.APIURL,
		modes:      modes,
		renderErrs: renderErrs,
	})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = program.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// newLogger builds the viewer's logger. The TUI owns the terminal, so
// records go to the configured file as JSON, or nowhere.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}

	if cfg.Log.Output == "" {
		handler := slog.NewJSONHandler(io.Discard, nil)
		return slog.New(handler), func() {}, nil
	}

	file, err := os.OpenFile(cfg.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("started", time.Now().Format(time.RFC3339))
	return logger, func() { file.Close() }, nil
}

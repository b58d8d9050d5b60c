// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// periscope-mockide is a synthetic IDE host for development and
// integration testing. It serves the viewer API and push stream
// against a generated workbench scene (editor, chat panel, terminal)
// with no real IDE behind it, so the viewer can be exercised end to
// end on a single machine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/periscope-project/periscope/internal/mockide"
	"github.com/periscope-project/periscope/lib/version"
	"github.com/periscope-project/periscope/snapshot"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		apiAddress  string
		pushAddress string
		width       int
		height      int
		compression string
		logLevel    string
	)

	flagSet := pflag.NewFlagSet("periscope-mockide", pflag.ContinueOnError)
	flagSet.StringVar(&apiAddress, "listen-api", ":7430", "HTTP API listen address")
	flagSet.StringVar(&pushAddress, "listen-push", ":7431", "push stream listen address")
	flagSet.IntVar(&width, "width", 1280, "synthetic viewport width in pixels")
	flagSet.IntVar(&height, "height", 800, "synthetic viewport height in pixels")
	flagSet.StringVar(&compression, "compression", "lz4", "frame compression: none, lz4, or zstd")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")

	// Handle --version before flag parsing to match the viewer binary.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("periscope-mockide")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	tag, err := parseCompression(compression)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := mockide.NewServer(mockide.Config{
		Viewport:    snapshot.Size{Width: width, Height: height},
		Compression: tag,
		Logger:      logger,
	})

	pushListener, err := net.Listen("tcp", pushAddress)
	if err != nil {
		return fmt.Errorf("listen push %s: %w", pushAddress, err)
	}
	defer pushListener.Close()

	apiServer := &http.Server{
		Addr:         apiAddress,
		Handler:      host.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		apiServer.Shutdown(shutdownCtx)
	}()

	errs := make(chan error, 2)
	go func() {
		logger.Info("API listening", "address", apiAddress)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("api server: %w", err)
			return
		}
		errs <- nil
	}()
	go func() {
		logger.Info("push stream listening", "address", pushListener.Addr())
		if err := host.ServePush(ctx, pushListener); err != nil {
			errs <- fmt.Errorf("push server: %w", err)
			return
		}
		errs <- nil
	}()

	if err := <-errs; err != nil {
		return err
	}
	<-ctx.Done()
	return <-errs
}

func parseCompression(name string) (snapshot.CompressionTag, error) {
	switch name {
	case "none":
		return snapshot.CompressionNone, nil
	case "lz4":
		return snapshot.CompressionLZ4, nil
	case "zstd":
		return snapshot.CompressionZstd, nil
	default:
		return 0, fmt.Errorf("invalid --compression %q: want none, lz4, or zstd", name)
	}
}

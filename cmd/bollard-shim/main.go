// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// bollard-shim runs one task: it resolves a bundle, compiles its
// component, serves the declared triggers, and exits with the task's
// aggregated outcome. SIGTERM and SIGINT are forwarded to the task;
// a second signal escalates to an immediate forced shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bollard-runtime/bollard/artifact"
	"github.com/bollard-runtime/bollard/bridge"
	"github.com/bollard-runtime/bollard/engine"
	"github.com/bollard-runtime/bollard/lib/clock"
	"github.com/bollard-runtime/bollard/lib/config"
	"github.com/bollard-runtime/bollard/lib/process"
)

const version = "0.1.0"

func main() {
	code, err := run()
	if err != nil {
		process.Fatal(err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var (
		bundlePath  = pflag.String("bundle", "", "task bundle directory (required)")
		taskID      = pflag.String("task-id", "", "task identifier (default: bundle directory name)")
		configPath  = pflag.String("config", "", "shim configuration file")
		showVersion = pflag.Bool("version", false, "print version and exit")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Println("bollard-shim " + version)
		return 0, nil
	}
	if *bundlePath == "" {
		return 0, fmt.Errorf("--bundle is required")
	}
	if *taskID == "" {
		*taskID = filepath.Base(filepath.Clean(*bundlePath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return 0, err
	}
	logger := newLogger(cfg.Logging)
	ctx := context.Background()

	wazeroEngine, err := engine.NewWazero(ctx, engine.WazeroConfig{
		Logger:         logger,
		CacheDirectory: cfg.Cache.Directory,
	})
	if err != nil {
		return 0, err
	}
	factory := engine.NewFactory(engine.FactoryConfig{
		Engine:         wazeroEngine,
		Logger:         logger,
		CacheDirectory: cfg.Cache.Directory,
	})
	defer factory.Close(ctx)

	taskBridge := bridge.New(bridge.Config{
		Logger:      logger,
		Clock:       clock.Real(),
		GracePeriod: cfg.Task.GracePeriod.Std(),
		Resolver:    &artifact.Resolver{Logger: logger},
		Factory:     factory,
	})

	if err := taskBridge.Create(ctx, *taskID, *bundlePath); err != nil {
		return 0, err
	}
	if err := taskBridge.Start(ctx, *taskID); err != nil {
		// The task is Stopped with the failure attributed; surface
		// the startup error and its exit code.
		if exit, waitErr := taskBridge.Wait(ctx, *taskID); waitErr == nil {
			logger.Error("task failed to start", "error", err)
			return exit.Code, nil
		}
		return 0, err
	}

	exits := make(chan bridge.Exit, 1)
	go func() {
		exit, err := taskBridge.Wait(ctx, *taskID)
		if err != nil {
			logger.Error("waiting for task", "error", err)
			return
		}
		exits <- exit
	}()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, unix.SIGTERM, unix.SIGINT)
	defer signal.Stop(signals)

	delivered := false
	for {
		select {
		case exit := <-exits:
			if err := taskBridge.Delete(ctx, *taskID); err != nil {
				logger.Warn("deleting task", "error", err)
			}
			return exit.Code, nil

		case received := <-signals:
			forwarded, ok := received.(syscall.Signal)
			if !ok {
				continue
			}
			if delivered {
				// Second signal: stop waiting for graceful
				// shutdown.
				forwarded = unix.SIGKILL
			}
			if err := taskBridge.Kill(ctx, *taskID, forwarded); err != nil {
				logger.Warn("forwarding signal", "signal", received.String(), "error", err)
			}
			delivered = true
		}
	}
}

// newLogger builds the shim's structured logger from configuration.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

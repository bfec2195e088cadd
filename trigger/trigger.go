// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

// Package trigger defines the closed set of trigger kinds a Bollard
// task can run, the uniform executor contract the supervisor drives
// them through, and the executors themselves.
//
// A trigger is an independent event source (HTTP listener, Redis
// channel consumer, cron schedule, one-shot command) that invokes
// exported functionality of the loaded component. Executors share one
// compiled module through the Invoker interface and are otherwise
// fully independent: they start, run, and fail on their own schedules.
//
// The kind set is closed. Adding a kind means adding a Config variant,
// an executor implementing Executor, and a row in Constructors — the
// supervisor never changes.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bollard-runtime/bollard/lib/clock"
	"github.com/bollard-runtime/bollard/manifest"
)

// Kind identifies a trigger implementation.
type Kind string

// The closed set of trigger kinds.
const (
	KindHTTP    Kind = "http"
	KindRedis   Kind = "redis"
	KindCron    Kind = "cron"
	KindCommand Kind = "command"
)

// ErrUnsupported reports a declared trigger kind with no executor
// implementation in this shim.
var ErrUnsupported = errors.New("unsupported trigger kind")

// Config is a tagged variant over the trigger kinds. Exactly the
// field matching Kind is non-nil.
type Config struct {
	// Kind selects the variant.
	Kind Kind

	// ID names the trigger within the application. Failure
	// attribution in the task outcome uses it.
	ID string

	// Export is the component export this trigger invokes.
	Export string

	HTTP    *HTTPConfig
	Redis   *RedisConfig
	Cron    *CronConfig
	Command *CommandConfig
}

// HTTPConfig configures an HTTP listener trigger.
type HTTPConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:8080".
	Address string

	// Routes maps URL paths to exports. Requests matching no route
	// invoke the trigger's default export.
	Routes []RouteConfig
}

// RouteConfig maps one URL path to a component export.
type RouteConfig struct {
	Path   string
	Export string
}

// RedisConfig configures a Redis channel consumer trigger.
type RedisConfig struct {
	// Address is a redis:// URL.
	Address string

	// Channel is the pub/sub channel to subscribe to.
	Channel string
}

// CronConfig configures a scheduled trigger.
type CronConfig struct {
	// Schedule is a standard 5-field cron expression (UTC).
	Schedule string

	// Args are passed to each scheduled invocation.
	Args []string
}

// CommandConfig configures a one-shot command trigger: the export is
// invoked once when the task starts, and the executor completes when
// the invocation returns.
type CommandConfig struct {
	Args []string
}

// ParseConfigs converts a validated application descriptor's trigger
// declarations into typed configs. It rejects kinds outside the
// closed set with an error wrapping ErrUnsupported, and declarations
// missing kind-required fields with a *manifest.ValidationError.
func ParseConfigs(application *manifest.Application) ([]Config, error) {
	configs := make([]Config, 0, len(application.Triggers))
	var issues []string

	for _, declared := range application.Triggers {
		config := Config{
			Kind:   Kind(declared.Type),
			ID:     declared.ID,
			Export: declared.ExportFor(),
		}

		switch config.Kind {
		case KindHTTP:
			if declared.Address == "" {
				issues = append(issues, fmt.Sprintf("trigger %q: http requires address", declared.ID))
				continue
			}
			routes := make([]RouteConfig, 0, len(declared.Routes))
			for _, route := range declared.Routes {
				if route.Path == "" || route.Export == "" {
					issues = append(issues, fmt.Sprintf("trigger %q: http route requires path and export", declared.ID))
					continue
				}
				routes = append(routes, RouteConfig{Path: route.Path, Export: route.Export})
			}
			config.HTTP = &HTTPConfig{Address: declared.Address, Routes: routes}

		case KindRedis:
			if declared.Address == "" || declared.Channel == "" {
				issues = append(issues, fmt.Sprintf("trigger %q: redis requires address and channel", declared.ID))
				continue
			}
			config.Redis = &RedisConfig{Address: declared.Address, Channel: declared.Channel}

		case KindCron:
			if declared.Schedule == "" {
				issues = append(issues, fmt.Sprintf("trigger %q: cron requires schedule", declared.ID))
				continue
			}
			config.Cron = &CronConfig{Schedule: declared.Schedule, Args: declared.Args}

		case KindCommand:
			config.Command = &CommandConfig{Args: declared.Args}

		default:
			return nil, fmt.Errorf("trigger %q: %w: %q", declared.ID, ErrUnsupported, declared.Type)
		}

		configs = append(configs, config)
	}

	if len(issues) > 0 {
		return nil, &manifest.ValidationError{Issues: issues}
	}
	return configs, nil
}

// Invocation is one call into the loaded component. The component is
// instantiated fresh for each invocation: the export name arrives as
// argv[0], extra arguments follow, the environment carries the
// application variables plus trigger-specific context, and the
// payload is presented on stdin.
type Invocation struct {
	Export  string
	Args    []string
	Env     map[string]string
	Payload []byte
}

// InvokeResult is the output of one invocation.
type InvokeResult struct {
	Stdout []byte
	Stderr []byte
}

// Invoker runs invocations against the shared compiled artifact. It
// must be safe for concurrent use: every executor of a task invokes
// through the same Invoker. The engine's compiled module implements
// it.
type Invoker interface {
	Invoke(ctx context.Context, call Invocation) (InvokeResult, error)
}

// Executor is the uniform contract the supervisor drives triggers
// through.
//
// Start acquires the trigger's external resources (listener sockets,
// broker connections) and validates runtime configuration like
// schedule expressions; its errors are startup errors that roll the
// whole task back. Run serves events until the context is cancelled
// or the trigger fails internally; it must return the context's error
// on cooperative shutdown. Close force-releases resources so that Run
// unblocks even when its own shutdown logic hangs; it must be
// idempotent.
type Executor interface {
	Name() string
	Start(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
}

// Deps carries what every executor constructor needs.
type Deps struct {
	// Invoker is the shared compiled artifact.
	Invoker Invoker

	// Variables is the application's resolved variable map, passed
	// into every invocation's environment.
	Variables map[string]string

	// Logger for executor events.
	Logger *slog.Logger

	// Clock drives all timing (cron schedules). Tests inject a fake.
	Clock clock.Clock
}

// Constructor builds an executor from its config variant.
type Constructor func(config Config, deps Deps) (Executor, error)

// Constructors returns the executor constructor for every kind in the
// closed set. The supervisor looks up constructors here; the returned
// map is fresh on each call so callers may override entries in tests.
func Constructors() map[Kind]Constructor {
	return map[Kind]Constructor{
		KindHTTP:    newHTTPExecutor,
		KindRedis:   newRedisExecutor,
		KindCron:    newCronExecutor,
		KindCommand: newCommandExecutor,
	}
}

// invocationEnv merges the application variables with
// trigger-specific context. Trigger context wins on collision.
func invocationEnv(variables map[string]string, extra map[string]string) map[string]string {
	env := make(map[string]string, len(variables)+len(extra))
	for key, value := range variables {
		env[key] = value
	}
	for key, value := range extra {
		env[key] = value
	}
	return env
}

// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisExecutor consumes a Redis pub/sub channel and invokes the
// trigger's export once per message, with the message payload on
// stdin.
//
// Invocation failures for individual messages are logged and do not
// terminate the executor: a malformed message must not take the
// consumer down. Losing the broker connection is terminal.
type redisExecutor struct {
	id      string
	export  string
	config  *RedisConfig
	deps    Deps
	options *redis.Options

	client *redis.Client
	pubsub *redis.PubSub

	closeOnce sync.Once
	closeErr  error
}

func newRedisExecutor(config Config, deps Deps) (Executor, error) {
	if config.Redis == nil {
		return nil, fmt.Errorf("trigger %q: redis config missing", config.ID)
	}
	options, err := redis.ParseURL(config.Redis.Address)
	if err != nil {
		return nil, fmt.Errorf("trigger %q: parsing redis address: %w", config.ID, err)
	}
	return &redisExecutor{
		id:      config.ID,
		export:  config.Export,
		config:  config.Redis,
		deps:    deps,
		options: options,
	}, nil
}

func (e *redisExecutor) Name() string { return e.id }

// Start connects to the broker and confirms the subscription.
// Connection failures are startup errors that abort the whole task
// start.
func (e *redisExecutor) Start(ctx context.Context) error {
	client := redis.NewClient(e.options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("trigger %q: connecting to %s: %w", e.id, e.config.Address, err)
	}

	pubsub := client.Subscribe(ctx, e.config.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return fmt.Errorf("trigger %q: subscribing to %q: %w", e.id, e.config.Channel, err)
	}

	e.client = client
	e.pubsub = pubsub
	e.deps.Logger.Info("redis trigger subscribed", "trigger", e.id, "channel", e.config.Channel)
	return nil
}

func (e *redisExecutor) Run(ctx context.Context) error {
	messages := e.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case message, ok := <-messages:
			if !ok {
				// The channel closes when the subscription is torn
				// down: cooperative shutdown or a dead broker
				// connection that exhausted the client's retries.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("trigger %q: subscription to %q closed", e.id, e.config.Channel)
			}

			if _, err := e.deps.Invoker.Invoke(ctx, Invocation{
				Export:  e.export,
				Payload: []byte(message.Payload),
				Env: invocationEnv(e.deps.Variables, map[string]string{
					"REDIS_CHANNEL": message.Channel,
				}),
			}); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.deps.Logger.Error("invocation failed",
					"trigger", e.id, "channel", message.Channel, "error", err)
			}
		}
	}
}

// Close tears down the subscription and the client connection, which
// also unblocks Run. Idempotent.
func (e *redisExecutor) Close() error {
	e.closeOnce.Do(func() {
		if e.pubsub != nil {
			e.closeErr = e.pubsub.Close()
		}
		if e.client != nil {
			if err := e.client.Close(); err != nil && e.closeErr == nil {
				e.closeErr = err
			}
		}
	})
	return e.closeErr
}

// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestRedisRejectsMalformedAddress(t *testing.T) {
	_, err := newRedisExecutor(Config{
		Kind:   KindRedis,
		ID:     "events",
		Export: "handle-message",
		Redis:  &RedisConfig{Address: "not a url", Channel: "orders"},
	}, testDeps(&fakeInvoker{}))
	if err == nil {
		t.Fatal("newRedisExecutor = nil error for a malformed address")
	}
}

func TestRedisStartFailsWithoutBroker(t *testing.T) {
	// Reserve a port, then close the listener so nothing is
	// accepting on it.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()

	executor, err := newRedisExecutor(Config{
		Kind:   KindRedis,
		ID:     "events",
		Export: "handle-message",
		Redis:  &RedisConfig{Address: "redis://" + address, Channel: "orders"},
	}, testDeps(&fakeInvoker{}))
	if err != nil {
		t.Fatalf("newRedisExecutor: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := executor.Start(ctx); err == nil {
		executor.Close()
		t.Fatal("Start = nil error with no broker listening")
	}
}

func TestRedisCloseBeforeStartIsIdempotent(t *testing.T) {
	executor, err := newRedisExecutor(Config{
		Kind:   KindRedis,
		ID:     "events",
		Export: "handle-message",
		Redis:  &RedisConfig{Address: "redis://127.0.0.1:6399", Channel: "orders"},
	}, testDeps(&fakeInvoker{}))
	if err != nil {
		t.Fatalf("newRedisExecutor: %v", err)
	}
	if err := executor.Close(); err != nil {
		t.Errorf("Close before Start: %v", err)
	}
	if err := executor.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

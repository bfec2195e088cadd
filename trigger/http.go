// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// maxRequestBody bounds how much of a request body is forwarded to an
// invocation. Larger bodies are rejected with 413 rather than
// buffered.
const maxRequestBody = 32 << 20

// httpExecutor serves HTTP requests by invoking component exports.
// Each request becomes one invocation: the matched route's export,
// the request body as payload, method and path in the environment.
type httpExecutor struct {
	id     string
	export string
	config *HTTPConfig
	deps   Deps

	listener net.Listener
	server   *http.Server

	closeOnce sync.Once
	closeErr  error
}

func newHTTPExecutor(config Config, deps Deps) (Executor, error) {
	if config.HTTP == nil {
		return nil, fmt.Errorf("trigger %q: http config missing", config.ID)
	}
	return &httpExecutor{
		id:     config.ID,
		export: config.Export,
		config: config.HTTP,
		deps:   deps,
	}, nil
}

func (e *httpExecutor) Name() string { return e.id }

// Start binds the listener. Bind failures are startup errors that
// abort the whole task start.
func (e *httpExecutor) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.config.Address)
	if err != nil {
		return fmt.Errorf("trigger %q: binding %s: %w", e.id, e.config.Address, err)
	}
	e.listener = listener

	router := mux.NewRouter()
	for _, route := range e.config.Routes {
		router.HandleFunc(route.Path, e.handler(route.Export))
	}
	router.PathPrefix("/").HandlerFunc(e.handler(e.export))

	e.server = &http.Server{Handler: router}

	e.deps.Logger.Info("http trigger listening",
		"trigger", e.id, "address", listener.Addr().String(), "routes", len(e.config.Routes))
	return nil
}

// Run serves until the context is cancelled (graceful: in-flight
// requests drain) or the server fails. The supervisor's forced abort
// path goes through Close, which drops in-flight requests.
func (e *httpExecutor) Run(ctx context.Context) error {
	serveDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Graceful drain, unbounded here: the grace period
			// is enforced by the supervisor calling Close.
			_ = e.server.Shutdown(context.WithoutCancel(ctx))
		case <-serveDone:
		}
	}()

	err := e.server.Serve(e.listener)
	close(serveDone)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("trigger %q: serve: %w", e.id, err)
	}
	return fmt.Errorf("trigger %q: server stopped unexpectedly", e.id)
}

// Close force-closes the server and listener, dropping in-flight
// requests. Idempotent.
func (e *httpExecutor) Close() error {
	e.closeOnce.Do(func() {
		if e.server != nil {
			e.closeErr = e.server.Close()
		} else if e.listener != nil {
			e.closeErr = e.listener.Close()
		}
	})
	return e.closeErr
}

// Addr returns the bound listen address. Valid after Start; tests use
// it when the configured address is ":0".
func (e *httpExecutor) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

func (e *httpExecutor) handler(export string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			http.Error(w, "reading request body", http.StatusBadRequest)
			return
		}
		if len(body) > maxRequestBody {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		result, err := e.deps.Invoker.Invoke(r.Context(), Invocation{
			Export:  export,
			Payload: body,
			Env: invocationEnv(e.deps.Variables, map[string]string{
				"HTTP_METHOD": r.Method,
				"HTTP_PATH":   r.URL.Path,
				"HTTP_QUERY":  r.URL.RawQuery,
			}),
		})
		if err != nil {
			e.deps.Logger.Error("invocation failed",
				"trigger", e.id, "export", export, "path", r.URL.Path, "error", err)
			http.Error(w, "invocation failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Stdout)
	}
}

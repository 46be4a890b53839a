// Package server exposes the relay over HTTP: the inbound webhook, the
// consumer poll/ack surface, the session management plane and a websocket
// telemetry feed. Auth is a single shared bearer token on everything except
// /health and the webhook, which uses its own shared key.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
	"github.com/tinyland-inc/relayclaw/pkg/store"
)

type Options struct {
	Addr         string
	APIToken     string
	WebhookKey   string
	DefaultBatch int
	MaxBatch     int
}

type Server struct {
	broker   *relay.Broker
	archiver store.Archiver
	opts     Options
	httpSrv  *http.Server
	started  time.Time
}

// New builds the server. archiver may be nil; archiving is then skipped.
func New(broker *relay.Broker, archiver store.Archiver, opts Options) *Server {
	if archiver == nil {
		archiver = store.NopArchiver{}
	}
	s := &Server{
		broker:   broker,
		archiver: archiver,
		opts:     opts,
	}
	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook/inbound", s.requireWebhookKey(s.handleInbound))

	mux.HandleFunc("GET /claude/poll/{sessionId}", s.requireBearer(s.handlePoll))
	mux.HandleFunc("POST /claude/ack/{messageId}", s.requireBearer(s.handleAck))

	mux.HandleFunc("POST /api/sessions/{sessionId}", s.requireBearer(s.handleSessionStart))
	mux.HandleFunc("DELETE /api/sessions/{sessionId}", s.requireBearer(s.handleSessionStop))
	mux.HandleFunc("POST /api/sessions/{sessionId}/heartbeat", s.requireBearer(s.handleHeartbeat))
	mux.HandleFunc("POST /api/sessions/{sessionId}/bind", s.requireBearer(s.handleBind))

	mux.HandleFunc("DELETE /api/replies/{sessionId}", s.requireBearer(s.handleClearReplies))

	mux.HandleFunc("GET /debug/events", s.requireBearer(s.handleEvents))

	return mux
}

// Start begins serving and blocks until the listener fails or Stop is
// called. http.ErrServerClosed is swallowed as a clean shutdown.
func (s *Server) Start() error {
	s.started = time.Now()
	logger.InfoCF("server", "HTTP server listening", map[string]any{
		"addr": s.opts.Addr,
	})
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/controlhub/realtime-gateway/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options tunes the websocket server.
type Options struct {
	// Path the upgrade endpoint is mounted on, e.g. "/ws".
	Path string

	// AuthTimeout force-closes sessions that stay unauthenticated this
	// long after opening. Zero disables the timeout.
	AuthTimeout time.Duration
}

// Server accepts websocket connections and runs one Session per client.
type Server struct {
	opts        Options
	registry    *Registry
	broadcaster *Broadcaster
	verifier    TokenVerifier
	feed        func(ctx context.Context)
	logger      *zap.Logger
	upgrader    websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires the session machinery together. feed is started once
// per open session, scoped to that session's lifetime; pass nil to run
// without a synthetic source.
func NewServer(
	opts Options,
	registry *Registry,
	broadcaster *Broadcaster,
	verifier TokenVerifier,
	feed func(ctx context.Context),
	logger *zap.Logger,
) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:        opts,
		registry:    registry,
		broadcaster: broadcaster,
		verifier:    verifier,
		feed:        feed,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Handler returns the HTTP mux with the upgrade endpoint and a health
// probe reporting the live connection count.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	path := s.opts.Path
	if path == "" {
		path = "/ws"
	}
	mux.HandleFunc(path, s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"clients": s.registry.Count(),
		})
	})
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.New().String()
	sess := newSession(id, conn, s.registry, s.broadcaster, s.verifier, s.feed, s.opts.AuthTimeout,
		logging.WithClientID(s.logger, id))

	// The read loop runs inside the handler; returning would let the
	// HTTP server cancel the hijacked connection's context.
	sess.run(s.ctx)
}

// Close cancels every session feed and stops accepting new work.
func (s *Server) Close() {
	s.cancel()
	s.registry.ForEach(func(p Peer) {
		p.Close()
	})
}

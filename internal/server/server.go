// Package server is the websocket transport in front of the chat core. One
// goroutine pair per connection, gorilla pumps, adaptive delivery on slow
// links.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hsg8-commits/ripple/internal/chat"
	"github.com/hsg8-commits/ripple/internal/metrics"
)

// Server owns the HTTP listener and upgrades /ws connections.
type Server struct {
	addr   string
	router *Router
	log    *zap.Logger

	upgrader websocket.Upgrader
	http     *http.Server
}

// New builds the transport in front of the engine.
func New(addr string, engine *chat.Engine, log *zap.Logger) *Server {
	s := &Server{
		addr:   addr,
		router: NewRouter(engine, log),
		log:    log.With(zap.String("module", "server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", zap.String("addr", s.addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Error during server shutdown", zap.Error(err))
		return err
	}
	s.log.Info("Server gracefully stopped.")
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), conn, s.router, s.log)
	metrics.ConnectionsActive.Inc()
	s.log.Info("Client connected", zap.String("conn", client.ID()), zap.String("remote", r.RemoteAddr))

	// The request context dies when this handler returns; the hijacked
	// connection lives on.
	go client.writePump()
	go client.readPump(context.Background())
}

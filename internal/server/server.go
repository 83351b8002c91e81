// Package server assembles the HTTP surface: the REST API under /api and the
// websocket stream endpoint, served by one gin engine.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"clusterfeed/internal/hub"
	"clusterfeed/internal/transport/http/trading"
	"clusterfeed/internal/transport/ws"

	"github.com/gin-gonic/gin"
)

type Config struct {
	Addr     string
	WSPath   string
	Hub      *hub.Hub
	WSRouter *ws.Router
}

type Server struct {
	addr   string
	router *gin.Engine
}

func New(cfg Config) (*Server, error) {
	if cfg.Hub == nil || cfg.WSRouter == nil {
		return nil, errors.New("hub and ws router are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	trading.NewRouter(cfg.Hub).Register(router.Group("/api"))
	router.GET(cfg.WSPath, gin.WrapH(cfg.WSRouter))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the assembled engine (used by tests).
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the server until ctx is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"arbwatch/internal/application/usecase/monitor"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// StatusProvider exposes the latest monitor view.
type StatusProvider interface {
	Status() monitor.Status
}

// Server is a read-only status surface over the running monitor.
type Server struct {
	addr   string
	engine *gin.Engine
	status StatusProvider
}

func NewServer(addr string, status StatusProvider) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:   addr,
		engine: gin.New(),
		status: status,
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)
	s.engine.GET("/state", s.getState)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("http status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown failed")
		}
		return nil
	}
}

func (s *Server) getHealth(c *gin.Context) {
	st := s.status.Status()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"phase":  st.Phase,
	})
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

// Package statusserver exposes a minimal read-only HTTP view of the running
// grid engine, for an operator dashboard or a health-check probe — it has
// no write path, matching the process's single-owner rule on order state.
package statusserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusSource is the read-only surface statusserver needs from the Grid
// Engine. grid.Strategy implements this directly.
type StatusSource interface {
	Status() []string
	Instruments() []string
}

// Server is a tiny gin router with one background goroutine: http.Server's
// own graceful Shutdown.
type Server struct {
	src  StatusSource
	http *http.Server
}

// New builds a Server bound to addr (e.g. ":8090"), reading from src on
// every request — there is no polling loop, each request is live.
func New(addr string, src StatusSource) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"instruments": src.Instruments(),
			"lines":       src.Status(),
		})
	})

	return &Server{
		src:  src,
		http: &http.Server{Addr: addr, Handler: r},
	}
}

// Run starts serving and blocks until Shutdown is called or the listener
// fails for a reason other than a clean close.
func (s *Server) Run() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// DefaultShutdownTimeout is a sane default for callers wiring Shutdown into
// pkg/shutdown.Manager.
const DefaultShutdownTimeout = 5 * time.Second

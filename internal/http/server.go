package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"questbot.io/questbot/internal/config"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
	"questbot.io/questbot/pkg/log/middleware"
)

// Backlog reports how much engine work is still queued.
type Backlog interface {
	Pending() int64
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server is the liveness endpoint hosts use to keep the bot process alive.
type Server struct {
	port    int
	backlog Backlog
	deps    map[string]Pinger
	srv     *http.Server
}

func NewServer(backlog Backlog, deps map[string]Pinger) *Server {
	return &Server{backlog: backlog, deps: deps}
}

func (s *Server) Apply(c *config.Configuration) {
	s.port = c.HTTP.Port
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.TimeoutHTTP(5*time.Second))
	router.GET("/", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "Discord bot ok")
	})
	router.GET("/healthz", s.healthz)
	return router
}

func (s *Server) healthz(ctx *gin.Context) {
	status := http.StatusOK
	deps := make(map[string]string, len(s.deps))
	for name, p := range s.deps {
		if err := p.Ping(ctx.Request.Context()); err != nil {
			log.Warnf("health check of %v: %v", name, err)
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	var pending int64
	if s.backlog != nil {
		pending = s.backlog.Pending()
	}
	ctx.JSON(status, gin.H{"pending": pending, "deps": deps})
}

// Start serves in the background until ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("http server listening on %v", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(errors.WrapAndReport(err, "http server"))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown http server: %v", err)
	}
}

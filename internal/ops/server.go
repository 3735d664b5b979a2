// Package ops exposes the operational HTTP surface of a worker process:
// health probes, Prometheus metrics, build info and a small stats view.
package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crowdsense/streamd/internal/config"
	"github.com/crowdsense/streamd/internal/domain"
	"github.com/crowdsense/streamd/internal/redis"
	"github.com/crowdsense/streamd/internal/version"
)

// pinger is a minimal health-check dependency.
type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	redis     pinger
	search    pinger
	source    domain.ProjectSource
	inbound   *redis.ListQueue
	counts    *redis.DailyCounts
	clock     clockwork.Clock
	startTime time.Time
}

// NewServer builds the ops server. search may be nil when the cluster
// check should be skipped.
func NewServer(cfg *config.Config, redisClient pinger, search pinger, source domain.ProjectSource, inbound *redis.ListQueue, counts *redis.DailyCounts, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		redis:     redisClient,
		search:    search,
		source:    source,
		inbound:   inbound,
		counts:    counts,
		clock:     clock,
		startTime: clock.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz/live", s.handleLiveness)
	s.echo.GET("/healthz/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Now().Sub(s.startTime).Seconds()
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := []struct {
		name string
		dep  pinger
	}{
		{"redis", s.redis},
		{"elasticsearch", s.search},
	}

	for _, check := range checks {
		if check.dep == nil {
			continue
		}
		if err := check.dep.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":       "unhealthy",
				"failed_check": check.name,
				"error":        err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}

// handleStats reports the inbound backlog and today's per-project counts.
func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	backlog, err := s.inbound.Len(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	today := s.clock.Now().UTC().Format("2006-01-02")
	perProject := map[string]int64{}
	descriptors, err := s.source.Projects(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	for _, d := range descriptors {
		n, err := s.counts.Get(ctx, d.Slug, today)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		perProject[d.Slug] = n
	}

	return c.JSON(http.StatusOK, map[string]any{
		"inbound_backlog": backlog,
		"counts_today":    perProject,
	})
}

// Package statusapi exposes a small read-only HTTP surface over a
// Tracker's resources: bytes transferred, total size, and local file
// path, for a UI or monitoring agent to poll. The response's state
// field is not filled in. Each /status request reads the local file
// path through GetCacheFile, so it answers only once the resource has
// reached a terminal state. It is deliberately
// separate from the download path — the rate limit here bounds how
// often a client may poll status, never how fast a resource
// transfers, which the engine leaves unshaped per its non-goals.
package statusapi

import (
	stdContext "context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"

	"github.com/corvusflow/rescache/internal/domain"
	"github.com/corvusflow/rescache/internal/infra/logger"
	"github.com/corvusflow/rescache/internal/tracker"
)

// Server wraps an echo instance bound to a single Tracker.
type Server struct {
	echo    *echo.Echo
	tracker *tracker.Tracker
}

// New builds the status API, gating every route behind a token-bucket
// limiter (ratePerSecond, burst) so a misbehaving poller cannot starve
// other work on the same process.
func New(t *tracker.Tracker, log *logger.Logger, ratePerSecond float64, burst int) *Server {
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			c.Set("request_id", ksuid.New().String())
			return next(c)
		}
	})
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("status-api[%s] %s %s -> %d", c.Get("request_id"), c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.RateLimiter(newLimiterStore(ratePerSecond, burst)))

	s := &Server{echo: e, tracker: t}
	e.GET("/health", s.health)
	e.GET("/status", s.status)
	return s
}

// Start blocks serving on addr until the process exits or ListenAndServe
// errors.
func (s *Server) Start(addr string) error {
	sc := echo.StartConfig{Address: addr, HideBanner: true}
	ctx, cancel := signal.NotifyContext(stdContext.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return sc.Start(ctx, s.echo)
}

func (s *Server) health(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type statusResponse struct {
	URL         string `json:"url"`
	State       string `json:"state"`
	Transferred int64  `json:"transferred"`
	Total       int64  `json:"total"`
	LocalFile   string `json:"local_file,omitempty"`
}

func (s *Server) status(c *echo.Context) error {
	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "missing url query parameter"})
	}

	transferred, err := s.tracker.AmountRead(rawURL)
	if err != nil {
		return respondError(c, err)
	}
	total, err := s.tracker.TotalSize(rawURL)
	if err != nil {
		return respondError(c, err)
	}
	path, err := s.tracker.GetCacheFile(c.Request().Context(), rawURL)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, statusResponse{
		URL:         rawURL,
		Transferred: transferred,
		Total:       total,
		LocalFile:   path,
	})
}

func respondError(c *echo.Context, err error) error {
	switch {
	case err == domain.ErrInvalidDescriptor || err == domain.ErrIllegalURL:
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
}

// limiterStore is the smallest RateLimiterStore implementation that
// satisfies echo/v5's middleware: one shared bucket for the whole
// process, since status polling is a low-value, low-cardinality
// surface that does not need per-client buckets.
type limiterStore struct {
	limiter *rate.Limiter
}

func newLimiterStore(ratePerSecond float64, burst int) *limiterStore {
	return &limiterStore{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (l *limiterStore) Allow(identifier string) (bool, error) {
	return l.limiter.Allow(), nil
}

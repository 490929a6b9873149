package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type readingJSON struct {
	Command string    `json:"command"`
	Sensor  string    `json:"sensor"`
	Value   float64   `json:"value"`
	Time    time.Time `json:"time"`
}

type latestJSON struct {
	Address      int           `json:"address"`
	Session      string        `json:"session"`
	Readings     []readingJSON `json:"readings"`
	LastPoll     *time.Time    `json:"last_poll,omitempty"`
	LastDuration string        `json:"last_duration,omitempty"`
	LastSkipped  []string      `json:"last_skipped,omitempty"`
}

type pollJSON struct {
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/latest", s.LatestHandler)
	e.POST("/poll", s.PollNowHandler)
	e.GET("/ws", s.hub.Handler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) LatestHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetLatestReadingsRequest{}, 5*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetLatestReadingsResponse)
	if !ok || response.HasResponseError() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "meter not available")
	}
	if len(response.Readings) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no readings available yet",
		})
	}

	out := latestJSON{
		Address: response.Address,
		Session: response.Session,
	}
	for _, r := range response.Readings {
		out.Readings = append(out.Readings, readingJSON{
			Command: r.Command,
			Sensor:  r.Output,
			Value:   r.Value,
			Time:    r.Time,
		})
	}
	if report := response.LastReport; report != nil {
		out.LastPoll = &report.Started
		out.LastDuration = report.Duration.String()
		for _, skipped := range report.Skipped {
			out.LastSkipped = append(out.LastSkipped, skipped.Command)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) PollNowHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.PollNowRequest{Source: "http"}, 30*time.Second).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.PollNowResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	out := pollJSON{
		Updated: response.Updated,
		Skipped: response.Skipped,
	}
	if err := response.GetResponseError(); err != nil {
		out.Error = err.Error()
		s.logger.Warn("manual poll failed", zap.Error(err))
		if errors.Is(err, sem.ErrCycleInProgress) {
			return c.JSON(http.StatusConflict, out)
		}
		return c.JSON(http.StatusBadGateway, out)
	}
	return c.JSON(http.StatusOK, out)
}

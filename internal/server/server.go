// Package server exposes recording control and analysis events over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/petems/consult-recorder/internal/analysis"
	"github.com/petems/consult-recorder/internal/app"
	"github.com/petems/consult-recorder/internal/audio"
	"github.com/petems/consult-recorder/internal/consultation"
)

// Controller is the recording surface the HTTP API drives.
type Controller interface {
	StartSession() (string, error)
	PauseSession(id string) error
	ResumeSession(id string) error
	StopSession(id string) error
	Sessions() []app.SessionInfo
	Subscribe() (<-chan app.Event, func())
	LastResult() *analysis.Result
}

// History lists saved consultations.
type History interface {
	Recent(ctx context.Context, limit int) ([]consultation.Entry, error)
}

type Config struct {
	Listen     string
	Controller Controller
	History    History             // Optional
	Gatherer   prometheus.Gatherer // Optional
	Logger     zerolog.Logger
	// Heartbeat is the idle interval between SSE comments. Defaults to 30s.
	Heartbeat time.Duration
}

type Server struct {
	echo      *echo.Echo
	listen    string
	ctrl      Controller
	history   History
	log       zerolog.Logger
	heartbeat time.Duration
}

func New(cfg Config) *Server {
	s := &Server{
		echo:      echo.New(),
		listen:    cfg.Listen,
		ctrl:      cfg.Controller,
		history:   cfg.History,
		log:       cfg.Logger.With().Str("component", "server").Logger(),
		heartbeat: cfg.Heartbeat,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 30 * time.Second
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogRemoteIP: true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := s.log.Debug()
			if v.Error != nil {
				ev = s.log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("remote", v.RemoteIP).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.initRoutes(cfg.Gatherer)
	return s
}

func (s *Server) initRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")
	api.POST("/sessions", s.startSession)
	api.GET("/sessions", s.listSessions)
	api.POST("/sessions/:id/pause", s.pauseSession)
	api.POST("/sessions/:id/resume", s.resumeSession)
	api.POST("/sessions/:id/stop", s.stopSession)
	api.GET("/events", s.events)
	api.GET("/results/latest", s.latestResult)
	api.GET("/consultations", s.consultations)

	if gatherer != nil {
		h := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})
		s.echo.GET("/metrics", echo.WrapHandler(h))
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.listen).Msg("HTTP server listening")
		errChan <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// API: POST /api/sessions
func (s *Server) startSession(c echo.Context) error {
	id, err := s.ctrl.StartSession()
	if err != nil {
		return controlError(err)
	}
	return c.JSON(http.StatusCreated, s.sessionInfo(id))
}

// API: GET /api/sessions
func (s *Server) listSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Sessions())
}

// API: POST /api/sessions/:id/pause
func (s *Server) pauseSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.ctrl.PauseSession(id); err != nil {
		return controlError(err)
	}
	return c.JSON(http.StatusOK, s.sessionInfo(id))
}

// API: POST /api/sessions/:id/resume
func (s *Server) resumeSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.ctrl.ResumeSession(id); err != nil {
		return controlError(err)
	}
	return c.JSON(http.StatusOK, s.sessionInfo(id))
}

// API: POST /api/sessions/:id/stop
// The analysis result arrives later on /api/events.
func (s *Server) stopSession(c echo.Context) error {
	id := c.Param("id")
	if err := s.ctrl.StopSession(id); err != nil {
		return controlError(err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"id": id, "state": "stopped"})
}

// sessionInfo returns the registered session, or just its id when it has
// already left the registry.
func (s *Server) sessionInfo(id string) app.SessionInfo {
	for _, info := range s.ctrl.Sessions() {
		if info.ID == id {
			return info
		}
	}
	return app.SessionInfo{ID: id}
}

// API: GET /api/results/latest
func (s *Server) latestResult(c echo.Context) error {
	res := s.ctrl.LastResult()
	if res == nil {
		return echo.NewHTTPError(http.StatusNotFound, "No analysis available")
	}
	return c.JSON(http.StatusOK, res)
}

// API: GET /api/consultations?limit=N
func (s *Server) consultations(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Consultation history is not enabled")
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	entries, err := s.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list consultations: "+err.Error())
	}
	if entries == nil {
		entries = []consultation.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// API: GET /api/events
// Streams audio_level, state and audio_analysis events as Server-Sent Events.
func (s *Server) events(c echo.Context) error {
	events, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Warn().Err(err).Str("type", e.Type).Msg("Failed to encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return nil
			}
			w.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func controlError(err error) error {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, audio.ErrDeviceUnavailable), errors.Is(err, app.ErrShuttingDown):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Package server exposes the debug and observability surface: health,
// prometheus metrics, session snapshots, and the last plan/prompt per
// session.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/groupparrot/bot/orchestrator"
	"github.com/hrygo/groupparrot/internal/version"
)

// Server is the HTTP debug server. It carries no conversational state;
// everything it shows is read from the engine.
type Server struct {
	echoServer *echo.Echo
	engine     *orchestrator.Engine
	addr       string
	logger     *slog.Logger
}

// New builds the debug server and registers its routes.
func New(engine *orchestrator.Engine, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echoServer: e,
		engine:     engine,
		addr:       addr,
		logger:     logger,
	}

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	debugGroup := e.Group("/api/v1/debug")
	debugGroup.GET("/sessions", s.listSessions)
	debugGroup.GET("/sessions/:key", s.sessionDetail)
	debugGroup.GET("/plans/:key", s.lastPlan)
	debugGroup.GET("/prompt/:key", s.lastPrompt)

	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("debug server listening", slog.String("addr", s.addr))
	if err := s.echoServer.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoServer.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

type sessionListItem struct {
	Key          string `json:"key"`
	PendingTasks int    `json:"pending_tasks"`
	Turns        int    `json:"turns"`
}

func (s *Server) listSessions(c echo.Context) error {
	sessions := s.engine.Sessions()
	keys := sessions.Keys()
	items := make([]sessionListItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, sessionListItem{
			Key:          k,
			PendingTasks: sessions.PendingTasks(k),
			Turns:        s.engine.ConversationLog().Len(k),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sessions":         items,
		"pending_debounce": s.engine.PendingDebounce(),
		"energy":           s.engine.Energy().Value(),
	})
}

func (s *Server) sessionDetail(c echo.Context) error {
	key := c.Param("key")
	return c.JSON(http.StatusOK, s.engine.Sessions().SnapshotOf(key))
}

func (s *Server) lastPlan(c echo.Context) error {
	key := c.Param("key")
	rec, ok := s.engine.Debug().LastPlan(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no plan recorded for session")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) lastPrompt(c echo.Context) error {
	key := c.Param("key")
	rec, ok := s.engine.Debug().LastPrompt(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no prompt recorded for session")
	}
	return c.JSON(http.StatusOK, rec)
}

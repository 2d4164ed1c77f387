package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reposync/internal/logger"
	"reposync/internal/model"
	"reposync/internal/registry"
	"reposync/internal/repository"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo     *echo.Echo
	session  *Session
	registry *registry.Registry
	histRepo *repository.HistoryRepository
	port     int
	stopCh   chan struct{}
}

func NewServer(session *Session, reg *registry.Registry, histRepo *repository.HistoryRepository, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		session:  session,
		registry: reg,
		histRepo: histRepo,
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)

	// Connection
	s.echo.POST("/connect", s.handleConnect)
	s.echo.POST("/disconnect", s.handleDisconnect)
	s.echo.PUT("/settings/auto-sync", s.handleAutoSync)

	// Sync
	s.echo.POST("/sync", s.handleSync)
	s.echo.POST("/sync/:direction", s.handleSync)
	s.echo.GET("/files", s.handleFiles)
	s.echo.GET("/history", s.handleHistory)
	s.echo.GET("/history/stats", s.handleHistoryStats)

	// Local module data
	g := s.echo.Group("/modules")
	g.GET("", s.handleModules)
	g.GET("/:name", s.handleGetModule)
	g.PUT("/:name", s.handlePutModule)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func jsonError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrAccessDenied):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleConnect(c echo.Context) error {
	var req model.ConnectionProfile
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid profile"})
	}

	res, err := s.session.Connect(c.Request().Context(), req)
	if errors.Is(err, ErrAccessDenied) {
		return c.JSON(http.StatusUnauthorized, map[string]any{"error": res.Message, "access": res})
	}
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"access":  res,
		"session": s.session.Snapshot(),
	})
}

func (s *Server) handleDisconnect(c echo.Context) error {
	if err := s.session.Disconnect(); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleAutoSync(c echo.Context) error {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "enabled required"})
	}

	s.session.SetAutoSync(*req.Enabled)
	return c.JSON(http.StatusOK, map[string]bool{"auto_sync": *req.Enabled})
}

func (s *Server) handleSync(c echo.Context) error {
	dir, err := ParseDirection(c.Param("direction"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}

	report, err := s.session.Sync(c.Request().Context(), dir)
	if err != nil {
		return jsonError(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleFiles(c echo.Context) error {
	files, err := s.session.Files(c.Request().Context())
	if err != nil {
		return jsonError(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, files)
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil {
			n = max(parsed, 1)
		}
	}

	var (
		histories []model.History
		err       error
	)
	if failed, _ := strconv.ParseBool(c.QueryParam("failed")); failed {
		histories, err = s.histRepo.GetFailed(n)
	} else {
		histories, err = s.histRepo.GetRecent(n)
	}
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, histories)
}

func (s *Server) handleHistoryStats(c echo.Context) error {
	stats, err := s.histRepo.GetStats()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleModules(c echo.Context) error {
	statuses, err := s.session.Statuses(c.Request().Context())
	if err != nil {
		return jsonError(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, statuses)
}

func (s *Server) handleGetModule(c echo.Context) error {
	m, ok := s.registry.Get(c.Param("name"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown module"})
	}

	data, err := m.ReadLocal()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handlePutModule(c echo.Context) error {
	m, ok := s.registry.Get(c.Param("name"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown module"})
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 16<<20))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err)
	}
	if !json.Valid(body) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "body must be JSON"})
	}

	if err := m.WriteLocal(body); err != nil {
		return jsonError(c, http.StatusInternalServerError, err)
	}

	return c.NoContent(http.StatusNoContent)
}

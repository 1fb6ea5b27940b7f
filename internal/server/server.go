// Package server exposes the synthesis engine over HTTP.
package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mperelman/chronicle/internal/engine"
	"github.com/mperelman/chronicle/models"
)

type QueryRequest struct {
	Question string `json:"question"`
}

type QueryResponse struct {
	Answer   string                   `json:"answer"`
	Criteria []models.CriterionResult `json:"criteria,omitempty"`
}

// New builds the echo instance with all routes registered. Separated from Run
// so tests can drive handlers without a listener.
func New(eng *engine.Engine, logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/readyz", func(c echo.Context) error {
		if !eng.Ready() {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "term index not loaded")
		}
		return c.String(http.StatusOK, "ready")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(eng.Registry, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.POST("/query", func(c echo.Context) error {
		var req QueryRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Question) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "question is required")
		}
		answer, err := eng.Query(c.Request().Context(), req.Question)
		if err != nil {
			if errors.Is(err, models.ErrIndexUnavailable) {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "term index not available; run build-index first")
			}
			return err
		}
		return c.JSON(http.StatusOK, QueryResponse{Answer: answer.Text, Criteria: answer.Criteria})
	})

	return e
}

// Run starts the HTTP listener and blocks.
func Run(eng *engine.Engine, addr string, logger *log.Logger) error {
	e := New(eng, logger)
	if addr == "" {
		addr = ":10001"
	}
	logger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// Package server exposes the assistant over HTTP: the conversation endpoint,
// the memory key-value API, health and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/semaphore"

	"github.com/hauswart/hauswart/ai/memory"
	"github.com/hauswart/hauswart/ai/metrics"
	"github.com/hauswart/hauswart/internal/profile"
	"github.com/hauswart/hauswart/internal/version"
)

// Concurrent utterances beyond this wait at the semaphore; a local LLM server
// serializes generations anyway, so more in-flight requests only add latency.
const maxConcurrentConversations = 4

// Converser handles one conversational turn. Implemented by the pipeline.
type Converser interface {
	Process(ctx context.Context, utterance string) string
}

// MemoryStore is the slice of the memory API the HTTP layer needs.
type MemoryStore interface {
	Read(ctx context.Context, key string) (string, error)
	Write(ctx context.Context, key, value string) error
	List(ctx context.Context, prefix string) ([]memory.Entry, error)
}

// Server is the HTTP front of the assistant.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile

	converser Converser
	memory    MemoryStore
	collector *metrics.Collector
	sem       *semaphore.Weighted
}

// New assembles the HTTP server. memoryStore and collector may be nil; the
// corresponding endpoints then answer 503 / default metrics.
func New(p *profile.Profile, converser Converser, memoryStore MemoryStore, collector *metrics.Collector) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{
		echoServer: e,
		profile:    p,
		converser:  converser,
		memory:     memoryStore,
		collector:  collector,
		sem:        semaphore.NewWeighted(maxConcurrentConversations),
	}

	e.GET("/healthz", s.healthz)
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	apiV1 := e.Group("/api/v1")
	apiV1.POST("/converse", s.converse)
	apiV1.GET("/memory", s.listMemory)
	apiV1.GET("/memory/:key", s.readMemory)
	apiV1.PUT("/memory/:key", s.writeMemory)

	return s
}

// Start begins serving and blocks until the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server: listening", "address", address, "mode", s.profile.Mode)

	if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echoServer.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

type converseRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
}

type converseResponse struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
}

func (s *Server) converse(c echo.Context) error {
	var req converseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = shortuuid.New()
	}

	ctx := c.Request().Context()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server busy")
	}
	defer s.sem.Release(1)

	started := time.Now()
	response := s.converser.Process(ctx, req.Text)

	slog.Info("server: conversation turn",
		"conversation_id", conversationID,
		"duration", time.Since(started).Round(time.Millisecond))

	return c.JSON(http.StatusOK, converseResponse{
		ConversationID: conversationID,
		Response:       response,
	})
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

type memoryEntryResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type memoryWriteRequest struct {
	Value string `json:"value"`
}

func (s *Server) readMemory(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}
	key := c.Param("key")
	if !memory.ValidKey(key) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid memory key")
	}

	value, err := s.memory.Read(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "key not found")
	}
	return c.JSON(http.StatusOK, memoryEntryResponse{Key: key, Value: value})
}

func (s *Server) writeMemory(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}
	key := c.Param("key")
	if !memory.ValidKey(key) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid memory key")
	}

	var req memoryWriteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.memory.Write(c.Request().Context(), key, req.Value); err != nil {
		slog.Error("server: memory write failed", "key", key, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to write memory")
	}
	return c.JSON(http.StatusOK, memoryEntryResponse{Key: key, Value: req.Value})
}

func (s *Server) listMemory(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store not configured")
	}

	entries, err := s.memory.List(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		slog.Error("server: memory list failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list memory")
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("server: request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status)
			return nil
		},
	})
}

// Package api is the HTTP surface of spec.md §6: a thin gin layer over
// internal/runtime.Controller. codeready-toolchain/tarsy's own tree is
// inconsistent between an older gin-based pkg/api/handlers.go and a
// newer echo-based pkg/api/server.go; since go.mod only declares gin,
// this package follows handlers.go for the framework and server.go for
// the Set*/ValidateWiring wiring idiom.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surveyrt/runtime/internal/runtime"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	controller *runtime.Controller
}

// NewServer builds the gin engine and registers every route up front,
// mirroring pkg/api/server.go's NewServer/setupRoutes split.
func NewServer(controller *runtime.Controller) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, controller: controller}
	s.setupRoutes()
	return s
}

// ValidateWiring checks that the server was constructed with everything
// it needs to serve traffic. Call this after NewServer and before
// Start/StartWithListener, so a wiring gap fails at startup instead of
// surfacing as a panic on the first request.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.controller == nil {
		errs = append(errs, fmt.Errorf("controller not set (pass to NewServer)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/runtime")
	v1.POST("/start", s.startHandler)
	v1.GET("/:sessionId/pages/:pageId/layout", s.layoutHandler)
	v1.POST("/:sessionId/answers", s.submitAnswersHandler)
	v1.POST("/:sessionId/complete", s.completeHandler)
	v1.POST("/:sessionId/terminate", s.terminateHandler)
	v1.GET("/:sessionId/resume", s.resumeHandler)
	v1.GET("/:sessionId/status", s.statusHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// for tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the gin engine for tests that want to drive requests
// through httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.engine }

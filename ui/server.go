// Package ui serves the JSON HTTP API the authoring front end talks to.
package ui

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stacingest/internal"
	"stacingest/internal/auth"
	"stacingest/internal/session"
	"stacingest/internal/validation"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	sessions   *session.Manager
	validator  *validation.Validator
	authorizer *auth.Authorizer
	logger     *internal.Logger
}

// ServerDeps are the components the API exposes
type ServerDeps struct {
	Sessions   *session.Manager
	Validator  *validation.Validator
	Authorizer *auth.Authorizer
	Logger     *internal.Logger
}

// NewServer creates a new server instance with its routes registered
func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		router:     router,
		sessions:   deps.Sessions,
		validator:  deps.Validator,
		authorizer: deps.Authorizer,
		logger:     deps.Logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api", s.identify())
	api.POST("/validate", s.handleValidate)

	read := api.Group("/sessions")
	read.GET("", s.handleListSessions)
	read.GET("/:id", s.withSession(s.handleGetSession))

	write := api.Group("/sessions", s.requireScope(auth.ScopeWrite))
	write.POST("", s.handleCreateSession)
	write.DELETE("/:id", s.withSession(s.handleDeleteSession))
	write.POST("/:id/load", s.withSession(s.handleLoadExisting))

	write.PATCH("/:id/form", s.withSession(s.handleFormChange))
	write.PUT("/:id/raw", s.withSession(s.handleRawChange))
	write.PUT("/:id/additional", s.withSession(s.handleAdditionalChange))
	write.PUT("/:id/strict", s.withSession(s.handleSetStrict))

	write.PUT("/:id/summaries", s.withSession(s.handleReplaceSummaries))
	write.POST("/:id/summaries", s.withSession(s.handleAddSummary))
	write.DELETE("/:id/summaries/:key", s.withSession(s.handleRemoveSummary))

	write.POST("/:id/extensions", s.withSession(s.handleAddExtension))
	write.PATCH("/:id/extensions", s.withSession(s.handleExtensionValues))
	write.DELETE("/:id/extensions", s.withSession(s.handleRemoveExtension))

	write.POST("/:id/submit", s.withSession(s.handleSubmit))
	write.POST("/:id/continue", s.withSession(s.handleContinue))
	write.POST("/:id/cancel", s.withSession(s.handleCancel))
	write.POST("/:id/confirm", s.withSession(s.handleConfirm))
	write.POST("/:id/reset", s.withSession(s.handleReset))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chefassist/internal/capability"
	"chefassist/internal/conversation"
	"chefassist/internal/logger"
	"chefassist/internal/monitoring"
	"chefassist/internal/session"
	"chefassist/internal/stream"
)

// Assistant runs one assistant session; *session.Orchestrator implements it.
type Assistant interface {
	Handle(ctx context.Context, req session.Request, out *stream.Emitter) session.Outcome
}

// Conversations is the part of the conversation store the API exposes.
type Conversations interface {
	StartNewConversation(ctx context.Context, sc conversation.Scope) (conversation.Thread, error)
	ActiveThread(ctx context.Context, sc conversation.Scope) (conversation.Thread, error)
	History(ctx context.Context, threadID string) ([]conversation.Turn, error)
	Threads(ctx context.Context, sc conversation.Scope) ([]conversation.Thread, error)
}

// Deps are the collaborators the server is wired with.
type Deps struct {
	Assistant     Assistant
	Conversations Conversations
	Registry      *capability.Registry
	Monitor       *monitoring.Monitor
	Logger        *logger.Logger
	JWTSecret     string
	StreamBuffer  int
}

// Server is the assistant's HTTP surface.
type Server struct {
	router *gin.Engine
	deps   Deps
	log    *logger.Logger
}

// NewServer builds the router; nil Logger and Monitor get no-op defaults.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Monitor == nil {
		deps.Monitor = monitoring.NewMonitor()
	}
	if deps.StreamBuffer <= 0 {
		deps.StreamBuffer = stream.DefaultBuffer
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(deps.Logger))

	s := &Server{router: router, deps: deps, log: deps.Logger.With("component", "api")}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1/assistant")
	v1.GET("/ws", AuthMiddleware(s.deps.JWTSecret, true), s.handleWebSocket)

	// the monitor snapshot carries per-channel counters, so it needs a caller
	s.router.GET("/api/metrics", AuthMiddleware(s.deps.JWTSecret, false), s.handleMetrics)

	authed := v1.Group("", AuthMiddleware(s.deps.JWTSecret, false))
	{
		authed.POST("/messages", s.handleMessage)
		authed.POST("/conversations", s.handleStartConversation)
		authed.GET("/conversations", s.handleListConversations)
		authed.GET("/history", s.handleHistory)
		authed.GET("/tools", s.handleListTools)
	}
}

// Router returns the Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Monitor.GetMetrics())
}

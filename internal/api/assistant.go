package api

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"chefassist/internal/apierr"
	"chefassist/internal/channel"
	"chefassist/internal/conversation"
	"chefassist/internal/session"
	"chefassist/internal/stream"
)

const maxMessageRunes = 4000

type messageRequest struct {
	Message     string `json:"message"`
	ContextID   string `json:"contextId"`
	ContextType string `json:"contextType"`
}

type scopeRequest struct {
	ContextID   string `json:"contextId" form:"contextId"`
	ContextType string `json:"contextType" form:"contextType"`
}

func (r scopeRequest) validate() error {
	if r.ContextID != "" && r.ContextType == "" {
		return apierr.BadRequest("invalid_request", "contextType is required with contextId")
	}
	return nil
}

func (r scopeRequest) scope(chefID string, c channel.Channel) conversation.Scope {
	return conversation.Scope{ChefID: chefID, ContextType: r.ContextType, ContextID: r.ContextID, Channel: c}
}

func (r messageRequest) validate() error {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		return apierr.BadRequest("invalid_request", "message is required")
	}
	if utf8.RuneCountInString(msg) > maxMessageRunes {
		return apierr.BadRequest("message_too_long", "message is too long")
	}
	return scopeRequest{ContextID: r.ContextID, ContextType: r.ContextType}.validate()
}

func (r messageRequest) session(chefID string, c channel.Channel) session.Request {
	return session.Request{
		ChefID:      chefID,
		Channel:     c,
		ContextType: r.ContextType,
		ContextID:   r.ContextID,
		Message:     strings.TrimSpace(r.Message),
	}
}

// handleMessage runs one session and streams its frames as server-sent events.
// A client disconnect cancels the request context, which cancels the session.
func (s *Server) handleMessage(c *gin.Context) {
	var body messageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, apierr.BadRequest("invalid_request", "request body must be JSON"))
		return
	}
	if err := body.validate(); err != nil {
		RespondError(c, err)
		return
	}
	chefID, ch := caller(c)

	ctx := c.Request.Context()
	out := stream.NewEmitter(s.deps.StreamBuffer)
	done := make(chan session.Outcome, 1)
	go func() {
		done <- s.deps.Assistant.Handle(ctx, body.session(chefID, ch), out)
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	for f := range out.Frames() {
		c.SSEvent(string(f.Type), f)
		c.Writer.Flush()
	}

	<-done
}

func (s *Server) handleStartConversation(c *gin.Context) {
	var body scopeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			RespondError(c, apierr.BadRequest("invalid_request", "request body must be JSON"))
			return
		}
	}
	if err := body.validate(); err != nil {
		RespondError(c, err)
		return
	}
	chefID, ch := caller(c)

	thread, err := s.deps.Conversations.StartNewConversation(c.Request.Context(), body.scope(chefID, ch))
	if err != nil {
		s.log.Error("failed to start conversation", "error", err)
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"threadId": thread.ID})
}

type threadResponse struct {
	ThreadID  string    `json:"threadId"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleListConversations lists the scope's threads, newest first, including
// the archived ones.
func (s *Server) handleListConversations(c *gin.Context) {
	var query scopeRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondError(c, apierr.BadRequest("invalid_request", "invalid query"))
		return
	}
	if err := query.validate(); err != nil {
		RespondError(c, err)
		return
	}
	chefID, ch := caller(c)

	threads, err := s.deps.Conversations.Threads(c.Request.Context(), query.scope(chefID, ch))
	if err != nil {
		s.log.Error("failed to list threads", "error", err)
		RespondError(c, err)
		return
	}
	out := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadResponse{ThreadID: t.ID, Active: t.Active, CreatedAt: t.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"conversations": out})
}

type turnResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleHistory(c *gin.Context) {
	var query scopeRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		RespondError(c, apierr.BadRequest("invalid_request", "invalid query"))
		return
	}
	if err := query.validate(); err != nil {
		RespondError(c, err)
		return
	}
	chefID, ch := caller(c)
	ctx := c.Request.Context()

	thread, err := s.deps.Conversations.ActiveThread(ctx, query.scope(chefID, ch))
	if errors.Is(err, conversation.ErrNoActiveThread) {
		c.JSON(http.StatusOK, gin.H{"threadId": "", "turns": []turnResponse{}})
		return
	}
	if err != nil {
		s.log.Error("failed to load active thread", "error", err)
		RespondError(c, err)
		return
	}
	turns, err := s.deps.Conversations.History(ctx, thread.ID)
	if err != nil {
		s.log.Error("failed to load history", "error", err, "thread_id", thread.ID)
		RespondError(c, err)
		return
	}

	out := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnResponse{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"threadId": thread.ID, "turns": out})
}

type toolResponse struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (s *Server) handleListTools(c *gin.Context) {
	_, ch := caller(c)
	descs := s.deps.Registry.ToolsFor(ch)
	out := make([]toolResponse, 0, len(descs))
	for _, d := range descs {
		out = append(out, toolResponse{Name: string(d.ID), Category: string(d.Category), Description: d.Description})
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch.String(), "tools": out})
}

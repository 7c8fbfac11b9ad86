package handlers

import (
	"context"
	"net/http"

	"psyconsult-chat/internal/middleware"
	"psyconsult-chat/internal/session"
	"psyconsult-chat/internal/utils"

	"github.com/gin-gonic/gin"
)

// SessionTerminator ends sessions.
type SessionTerminator interface {
	Teardown(ctx context.Context, id string) error
}

// SessionHandler exposes the signed-in session.
type SessionHandler struct {
	Sessions SessionTerminator
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionTerminator) *SessionHandler {
	return &SessionHandler{Sessions: sessions}
}

// GetSession returns the current session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	utils.Success(c, "Session retrieved successfully", s)
}

// Logout tears the current session down and releases its chat state.
func (h *SessionHandler) Logout(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := h.Sessions.Teardown(c.Request.Context(), s.ID); err != nil {
		utils.Error(c, http.StatusInternalServerError, "Failed to end session: "+err.Error())
		return
	}
	utils.Success(c, "Session ended", nil)
}

func currentSession(c *gin.Context) (*session.Session, bool) {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		utils.Unauthorized(c, "Session not found")
		return nil, false
	}
	return s, true
}

package handlers

import (
	"psyconsult-chat/internal/chat"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/utils"

	"github.com/gin-gonic/gin"
)

// ChatHandler handles conversation threads.
type ChatHandler struct {
	Workspaces *chat.Registry
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(workspaces *chat.Registry) *ChatHandler {
	return &ChatHandler{Workspaces: workspaces}
}

// StartChatRequest opens a thread with a contact, or for an explicit pair.
type StartChatRequest struct {
	ContactID      string `json:"contactId" validate:"required_without_all=PsychologistID PatientID"`
	PsychologistID string `json:"psychologistId" validate:"required_with=PatientID"`
	PatientID      string `json:"patientId" validate:"required_with=PsychologistID"`
}

// UpdateStatusRequest changes the status of a thread.
type UpdateStatusRequest struct {
	Status models.ChatStatus `json:"status" validate:"required,oneof=active archived blocked"`
}

// ListChats returns the user's threads, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}
	views, err := ws.Threads(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Chats retrieved successfully", views)
}

// StartChat returns the thread with a contact, creating it on first use.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req StartChatRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}

	var (
		view chat.ThreadView
		err  error
	)
	if req.ContactID != "" {
		view, err = ws.StartConversation(c.Request.Context(), req.ContactID)
	} else {
		view, err = ws.CreateOrGet(c.Request.Context(), req.PsychologistID, req.PatientID)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Chat ready", view)
}

// GetChat returns one thread as seen by the user.
func (h *ChatHandler) GetChat(c *gin.Context) {
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}
	view, err := ws.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Chat retrieved successfully", view)
}

// UpdateStatus archives or blocks a thread.
func (h *ChatHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}
	view, err := ws.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Chat status updated", view)
}

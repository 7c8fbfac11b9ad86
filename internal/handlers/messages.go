package handlers

import (
	"errors"
	"io"
	"net/http"

	"psyconsult-chat/internal/api"
	"psyconsult-chat/internal/chat"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/utils"

	"github.com/gin-gonic/gin"
)

// MessageHandler handles the messages of a thread.
type MessageHandler struct {
	Workspaces *chat.Registry
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(workspaces *chat.Registry) *MessageHandler {
	return &MessageHandler{Workspaces: workspaces}
}

// ListMessagesRequest represents the query params for listing messages.
// With Since set only the messages after that id are returned.
type ListMessagesRequest struct {
	Page  int    `form:"page" validate:"omitempty,min=1"`
	Limit int    `form:"limit" validate:"omitempty,min=1,max=200"`
	Order string `form:"order" validate:"omitempty,oneof=ASC DESC asc desc"`
	Since string `form:"since"`
}

// SendMessageRequest represents the request body for sending a text message.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// ListMessages returns a page of messages, or the messages after ?since=.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	var req ListMessagesRequest
	if !utils.BindQueryAndValidate(c, &req) {
		return
	}
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}

	var (
		msgs []models.Message
		err  error
	)
	if req.Since != "" {
		msgs, err = ws.MessagesSince(c.Request.Context(), c.Param("id"), req.Since)
	} else {
		page := chat.Page{Page: req.Page, Limit: req.Limit, Order: api.OrderAsc}
		if req.Order == "DESC" || req.Order == "desc" {
			page.Order = api.OrderDesc
		}
		msgs, err = ws.LoadMessages(c.Request.Context(), c.Param("id"), page)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	utils.Success(c, "Messages retrieved successfully", msgs)
}

// SendMessage handles sending a text message.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}
	msg, err := ws.SendText(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Message sent successfully", msg)
}

// SendFile handles a multipart upload in the "archivo" field.
func (h *MessageHandler) SendFile(c *gin.Context) {
	// File limit plus room for the multipart envelope.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, chat.MaxFileSize+1<<20)

	fh, err := c.FormFile("archivo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(c, &models.ValidationError{Field: "archivo", Err: models.ErrFileTooLarge})
			return
		}
		utils.BadRequest(c, "File is required in field 'archivo'")
		return
	}

	f, err := fh.Open()
	if err != nil {
		utils.BadRequest(c, "Failed to read file: "+err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, chat.MaxFileSize+1))
	if err != nil {
		utils.BadRequest(c, "Failed to read file: "+err.Error())
		return
	}

	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}
	msg, err := ws.SendFile(c.Request.Context(), c.Param("id"), chat.File{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "File sent successfully", msg)
}

// DeleteMessage deletes one of the user's own messages.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}
	if err := ws.DeleteMessage(c.Request.Context(), c.Param("id"), c.Param("messageId")); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Message deleted successfully", nil)
}

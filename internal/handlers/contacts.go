package handlers

import (
	"psyconsult-chat/internal/chat"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/utils"

	"github.com/gin-gonic/gin"
)

// ContactHandler lists the people a user may talk to.
type ContactHandler struct {
	Workspaces *chat.Registry
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(workspaces *chat.Registry) *ContactHandler {
	return &ContactHandler{Workspaces: workspaces}
}

// ContactsResponse is the body of GET /contacts. Failures names the sources
// that could not be loaded when the list is partial.
type ContactsResponse struct {
	Contacts []models.Contact  `json:"contacts"`
	Partial  bool              `json:"partial"`
	Failures map[string]string `json:"failures,omitempty"`
}

// GetContacts resolves the contacts of the signed-in user.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	ws, ok := workspaceFor(c, h.Workspaces)
	if !ok {
		return
	}

	res, err := ws.Contacts(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	resp := ContactsResponse{Contacts: res.Contacts}
	if resp.Contacts == nil {
		resp.Contacts = []models.Contact{}
	}
	if res.Partial != nil && !res.Partial.Empty() {
		resp.Partial = true
		resp.Failures = make(map[string]string, len(res.Partial.Failures))
		for source, err := range res.Partial.Failures {
			resp.Failures[source] = err.Error()
		}
	}
	utils.Success(c, "Contacts retrieved successfully", resp)
}

func workspaceFor(c *gin.Context, workspaces *chat.Registry) (*chat.Workspace, bool) {
	s, ok := currentSession(c)
	if !ok {
		return nil, false
	}
	return workspaces.For(s), true
}

package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"psyconsult-chat/internal/models"
)

// SortOrder is the createdAt ordering of a message page.
type SortOrder string

const (
	OrderAsc  SortOrder = "ASC"
	OrderDesc SortOrder = "DESC"
)

// MessageQuery selects a page of messages.
type MessageQuery struct {
	Page  int
	Limit int
	Order SortOrder
}

func (q MessageQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Order != "" {
		v.Set("order", string(q.Order))
	}
	return v
}

// ListChats fetches the threads of the authenticated user.
func (c *Client) ListChats(ctx context.Context) ([]models.ChatThread, error) {
	var dtos []ThreadDTO
	if err := c.getJSON(ctx, "list chats", "/chat", &dtos); err != nil {
		return nil, err
	}
	threads := make([]models.ChatThread, 0, len(dtos))
	for _, d := range dtos {
		threads = append(threads, d.toModel())
	}
	return threads, nil
}

// GetChat fetches one thread with both participants expanded.
func (c *Client) GetChat(ctx context.Context, chatID string) (models.ChatThread, error) {
	var dto ThreadDTO
	if err := c.getJSON(ctx, "get chat", "/chat/"+url.PathEscape(chatID), &dto); err != nil {
		return models.ChatThread{}, err
	}
	return dto.toModel(), nil
}

type createChatRequest struct {
	IDPsicologo string `json:"idPsicologo"`
	IDPaciente  string `json:"idPaciente"`
}

// CreateChat creates the thread for a pair, or returns the existing one.
func (c *Client) CreateChat(ctx context.Context, psychologistID, patientID string) (models.ChatThread, error) {
	var dto ThreadDTO
	req := createChatRequest{IDPsicologo: psychologistID, IDPaciente: patientID}
	if err := c.sendJSON(ctx, "create chat", http.MethodPost, "/chat", req, &dto); err != nil {
		return models.ChatThread{}, err
	}
	return dto.toModel(), nil
}

type updateStatusRequest struct {
	Estado string `json:"estado"`
}

// UpdateChatStatus changes the status of a thread.
func (c *Client) UpdateChatStatus(ctx context.Context, chatID string, status models.ChatStatus) (models.ChatThread, error) {
	var dto ThreadDTO
	req := updateStatusRequest{Estado: StatusToWire(status)}
	path := "/chat/" + url.PathEscape(chatID) + "/status"
	if err := c.sendJSON(ctx, "update chat status", http.MethodPut, path, req, &dto); err != nil {
		return models.ChatThread{}, err
	}
	return dto.toModel(), nil
}

// ListMessages fetches a page of messages of a thread.
func (c *Client) ListMessages(ctx context.Context, chatID string, q MessageQuery) ([]models.Message, error) {
	path := "/chat/" + url.PathEscape(chatID) + "/messages"
	if qs := q.values().Encode(); qs != "" {
		path += "?" + qs
	}
	var dtos []MessageDTO
	if err := c.getJSON(ctx, "list messages", path, &dtos); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(dtos))
	for _, d := range dtos {
		msgs = append(msgs, d.toModel())
	}
	return msgs, nil
}

type sendTextRequest struct {
	IDChat      string `json:"idChat"`
	Contenido   string `json:"contenido"`
	TipoMensaje string `json:"tipoMensaje"`
}

// SendText posts a text message.
func (c *Client) SendText(ctx context.Context, chatID, content string) (models.Message, error) {
	var dto MessageDTO
	req := sendTextRequest{IDChat: chatID, Contenido: content, TipoMensaje: KindToWire(models.MessageKindText)}
	if err := c.sendJSON(ctx, "send message", http.MethodPost, "/chat/messages", req, &dto); err != nil {
		return models.Message{}, err
	}
	return dto.toModel(), nil
}

// SendFile uploads a file message as multipart/form-data.
func (c *Client) SendFile(ctx context.Context, chatID, filename, mimeType string, data []byte) (models.Message, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("idChat", chatID); err != nil {
		return models.Message{}, fmt.Errorf("send file: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="archivo"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return models.Message{}, fmt.Errorf("send file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return models.Message{}, fmt.Errorf("send file: %w", err)
	}
	if err := w.Close(); err != nil {
		return models.Message{}, fmt.Errorf("send file: %w", err)
	}

	var dto MessageDTO
	path := "/chat/" + url.PathEscape(chatID) + "/messages/file"
	if err := c.do(ctx, "send file", http.MethodPost, path, &buf, w.FormDataContentType(), &dto); err != nil {
		return models.Message{}, err
	}
	return dto.toModel(), nil
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/chat/messages/" + url.PathEscape(messageID)
	return c.do(ctx, "delete message", http.MethodDelete, path, nil, "", nil)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

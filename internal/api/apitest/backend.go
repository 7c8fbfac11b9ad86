// Package apitest provides an in-memory fake of the remote REST backend for
// tests. It records every request so callers can assert that a code path
// made no network call.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"psyconsult-chat/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Epoch is the timestamp of the first message created by the fake.
var Epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Backend is a fake of the remote chat backend.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	psychologists []api.ProfileDTO
	patients      map[string]api.ProfileDTO
	tokens        map[string]string
	threads       []*api.ThreadDTO
	messages      map[string][]api.MessageDTO
	requests      []string
	failures      map[string]int
	seq           int
	reverse       bool
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Backend {
	gin.SetMode(gin.TestMode)
	b := &Backend{
		patients: make(map[string]api.ProfileDTO),
		tokens:   make(map[string]string),
		messages: make(map[string][]api.MessageDTO),
		failures: make(map[string]int),
	}
	b.Server = httptest.NewServer(b.router())
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the API base URL, including the /api prefix.
func (b *Backend) URL() string { return b.Server.URL + "/api" }

// Client returns an api.Client bound to the given user's token.
func (b *Backend) Client(userID string) *api.Client {
	return api.NewClient(b.URL(), 0, nil).WithToken(b.Token(userID))
}

// Token registers and returns a bearer token for userID.
func (b *Backend) Token(userID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	token := "token-" + userID
	b.tokens[token] = userID
	return token
}

// AddPsychologist registers a psychologist.
func (b *Backend) AddPsychologist(id, firstName, lastName, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.psychologists = append(b.psychologists, api.ProfileDTO{
		ID: api.WireID(id), FirstName: firstName, LastName: lastName, Email: email,
	})
}

// AddPatient registers a patient assigned to psychologistID (may be empty).
func (b *Backend) AddPatient(id, firstName, lastName, email, psychologistID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patients[id] = api.ProfileDTO{
		ID: api.WireID(id), FirstName: firstName, LastName: lastName, Email: email,
		IDPsicologo: api.WireID(psychologistID),
	}
}

// AddThread seeds an existing thread and returns its id.
func (b *Backend) AddThread(psychologistID, patientID, status string, lastActivity time.Time) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	th := b.newThreadLocked(psychologistID, patientID)
	th.Estado = status
	th.UltimaActividad = &lastActivity
	return string(th.ID)
}

// Fail makes the given route ("GET /psicologos", "POST /chat/messages", ...)
// answer with status until cleared with status 0.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// Requests returns the requests received so far as "METHOD route".
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// RequestCount returns how many requests were received.
func (b *Backend) RequestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// ThreadCount returns the number of stored threads.
func (b *Backend) ThreadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.threads)
}

// MessageCount returns the number of stored messages of a thread.
func (b *Backend) MessageCount(chatID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[chatID])
}

// ReverseMessages makes message pages come back in the opposite order of
// the one requested.
func (b *Backend) ReverseMessages(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reverse = on
}

// PostMessage stores a text message as if sent from another device.
func (b *Backend) PostMessage(chatID, senderID, content string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg := b.newMessageLocked(chatID, senderID, "texto", &content, nil)
	return string(msg.ID)
}

func (b *Backend) router() *gin.Engine {
	r := gin.New()
	g := r.Group("/api", b.record, b.authenticate)
	{
		g.GET("/psicologos", b.listPsychologists)
		g.GET("/psicologos/:id/pacientes", b.listPatients)
		g.GET("/pacientes/:id", b.getPatient)

		g.GET("/chat", b.listChats)
		g.POST("/chat", b.createChat)
		g.GET("/chat/:id", b.getChat)
		g.PUT("/chat/:id/status", b.updateStatus)
		g.GET("/chat/:id/messages", b.listMessages)
		g.POST("/chat/messages", b.sendText)
		g.POST("/chat/:id/messages/file", b.sendFile)
		g.DELETE("/chat/messages/:messageId", b.deleteMessage)
	}
	return r
}

func (b *Backend) record(c *gin.Context) {
	route := c.Request.Method + " " + strings.TrimPrefix(c.FullPath(), "/api")
	b.mu.Lock()
	b.requests = append(b.requests, route)
	status, failing := b.failures[route]
	b.mu.Unlock()

	if failing {
		c.AbortWithStatusJSON(status, gin.H{"message": "injected failure"})
		return
	}
	c.Next()
}

func (b *Backend) authenticate(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	b.mu.Lock()
	userID, ok := b.tokens[token]
	b.mu.Unlock()
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}
	c.Set("userID", userID)
	c.Next()
}

func (b *Backend) listPsychologists(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"data": b.psychologists})
}

func (b *Backend) listPatients(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []api.ProfileDTO{}
	for _, p := range b.patients {
		if string(p.IDPsicologo) == c.Param("id") {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getPatient(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.patients[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "patient not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (b *Backend) listChats(c *gin.Context) {
	userID := c.GetString("userID")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []api.ThreadDTO{}
	for _, th := range b.threads {
		if string(th.IDPsicologo) == userID || string(th.IDPaciente) == userID {
			out = append(out, *th)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getChat(c *gin.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	th := b.findThreadLocked(c.Param("id"))
	if th == nil || !b.participantLocked(th, c.GetString("userID")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, th)
}

func (b *Backend) createChat(c *gin.Context) {
	var req struct {
		IDPsicologo string `json:"idPsicologo"`
		IDPaciente  string `json:"idPaciente"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	userID := c.GetString("userID")
	if userID != req.IDPsicologo && userID != req.IDPaciente {
		c.JSON(http.StatusForbidden, gin.H{"message": "not a participant"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, th := range b.threads {
		if string(th.IDPsicologo) == req.IDPsicologo && string(th.IDPaciente) == req.IDPaciente {
			c.JSON(http.StatusOK, th)
			return
		}
	}
	th := b.newThreadLocked(req.IDPsicologo, req.IDPaciente)
	c.JSON(http.StatusCreated, th)
}

func (b *Backend) updateStatus(c *gin.Context) {
	var req struct {
		Estado string `json:"estado"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	th := b.findThreadLocked(c.Param("id"))
	if th == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "chat not found"})
		return
	}
	if string(th.IDPsicologo) != c.GetString("userID") {
		c.JSON(http.StatusForbidden, gin.H{"message": "only the psychologist may change status"})
		return
	}
	th.Estado = req.Estado
	c.JSON(http.StatusOK, th)
}

func (b *Backend) listMessages(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	order := strings.ToUpper(c.DefaultQuery("order", "ASC"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	th := b.findThreadLocked(c.Param("id"))
	if th == nil || !b.participantLocked(th, c.GetString("userID")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "chat not found"})
		return
	}

	all := append([]api.MessageDTO(nil), b.messages[c.Param("id")]...)
	sort.SliceStable(all, func(i, j int) bool {
		if order == "DESC" {
			return all[i].FechaEnvio.After(all[j].FechaEnvio)
		}
		return all[i].FechaEnvio.Before(all[j].FechaEnvio)
	})

	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := all[start:end]
	if b.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (b *Backend) sendText(c *gin.Context) {
	var req struct {
		IDChat      string `json:"idChat"`
		Contenido   string `json:"contenido"`
		TipoMensaje string `json:"tipoMensaje"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	th := b.findThreadLocked(req.IDChat)
	if th == nil || !b.participantLocked(th, c.GetString("userID")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "chat not found"})
		return
	}
	if th.Estado != "" && th.Estado != "activo" {
		c.JSON(http.StatusConflict, gin.H{"message": "chat is not active"})
		return
	}
	msg := b.newMessageLocked(req.IDChat, c.GetString("userID"), req.TipoMensaje, &req.Contenido, nil)
	c.JSON(http.StatusCreated, msg)
}

func (b *Backend) sendFile(c *gin.Context) {
	fh, err := c.FormFile("archivo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "archivo is required"})
		return
	}
	chatID := c.PostForm("idChat")
	if chatID != c.Param("id") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "idChat mismatch"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	th := b.findThreadLocked(chatID)
	if th == nil || !b.participantLocked(th, c.GetString("userID")) {
		c.JSON(http.StatusNotFound, gin.H{"message": "chat not found"})
		return
	}
	mimeType := fh.Header.Get("Content-Type")
	kind := "archivo"
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		kind = "imagen"
	case mimeType == "application/pdf":
		kind = "pdf"
	}
	att := &api.AttachmentDTO{
		Ruta:     fmt.Sprintf("/uploads/chat/%s/%s", chatID, fh.Filename),
		Nombre:   fh.Filename,
		Tamano:   fh.Size,
		TipoMime: mimeType,
	}
	msg := b.newMessageLocked(chatID, c.GetString("userID"), kind, nil, att)
	c.JSON(http.StatusCreated, msg)
}

func (b *Backend) deleteMessage(c *gin.Context) {
	id := c.Param("messageId")
	userID := c.GetString("userID")
	b.mu.Lock()
	defer b.mu.Unlock()
	for chatID, msgs := range b.messages {
		for i, m := range msgs {
			if string(m.ID) != id {
				continue
			}
			if string(m.IDRemitente) != userID {
				c.JSON(http.StatusForbidden, gin.H{"message": "not the sender"})
				return
			}
			b.messages[chatID] = append(msgs[:i:i], msgs[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "message not found"})
}

func (b *Backend) newThreadLocked(psychologistID, patientID string) *api.ThreadDTO {
	created := Epoch
	th := &api.ThreadDTO{
		ID:            api.WireID(uuid.NewString()),
		Estado:        "activo",
		IDPsicologo:   api.WireID(psychologistID),
		IDPaciente:    api.WireID(patientID),
		FechaCreacion: &created,
	}
	for i := range b.psychologists {
		if string(b.psychologists[i].ID) == psychologistID {
			p := b.psychologists[i]
			th.Psicologo = &p
		}
	}
	if p, ok := b.patients[patientID]; ok {
		th.Paciente = &p
	}
	b.threads = append(b.threads, th)
	return th
}

func (b *Backend) newMessageLocked(chatID, senderID, kind string, content *string, att *api.AttachmentDTO) api.MessageDTO {
	b.seq++
	msg := api.MessageDTO{
		ID:          api.WireID(strconv.Itoa(b.seq)),
		IDChat:      api.WireID(chatID),
		IDRemitente: api.WireID(senderID),
		TipoMensaje: kind,
		Contenido:   content,
		Archivo:     att,
		FechaEnvio:  Epoch.Add(time.Duration(b.seq) * time.Minute),
	}
	b.messages[chatID] = append(b.messages[chatID], msg)

	if th := b.findThreadLocked(chatID); th != nil {
		at := msg.FechaEnvio
		th.UltimaActividad = &at
		th.UltimoMensaje = &api.LastMessageDTO{TipoMensaje: kind, Contenido: content, Archivo: att}
	}
	return msg
}

func (b *Backend) findThreadLocked(id string) *api.ThreadDTO {
	for _, th := range b.threads {
		if string(th.ID) == id {
			return th
		}
	}
	return nil
}

func (b *Backend) participantLocked(th *api.ThreadDTO, userID string) bool {
	return string(th.IDPsicologo) == userID || string(th.IDPaciente) == userID
}

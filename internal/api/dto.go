package api

import (
	"bytes"
	"encoding/json"
	"time"

	"psyconsult-chat/internal/models"
)

// WireID accepts identifiers encoded either as JSON strings or numbers.
type WireID string

func (id *WireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = WireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = WireID(n.String())
	return nil
}

// ProfileDTO is a user summary as the backend sends it.
type ProfileDTO struct {
	ID          WireID `json:"id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	IDPsicologo WireID `json:"idPsicologo,omitempty"`
}

func (p ProfileDTO) toModel() models.Profile {
	return models.Profile{
		ID:                     string(p.ID),
		FirstName:              p.FirstName,
		LastName:               p.LastName,
		Name:                   p.Name,
		Email:                  p.Email,
		AssignedPsychologistID: string(p.IDPsicologo),
	}
}

// AttachmentDTO is the file metadata of a message.
type AttachmentDTO struct {
	Ruta     string `json:"ruta"`
	Nombre   string `json:"nombre"`
	Tamano   int64  `json:"tamano"`
	TipoMime string `json:"tipoMime"`
}

// MessageDTO is a chat message as the backend sends it.
type MessageDTO struct {
	ID          WireID         `json:"id"`
	IDChat      WireID         `json:"idChat"`
	IDRemitente WireID         `json:"idRemitente"`
	TipoMensaje string         `json:"tipoMensaje"`
	Contenido   *string        `json:"contenido"`
	Archivo     *AttachmentDTO `json:"archivo,omitempty"`
	FechaEnvio  time.Time      `json:"fechaEnvio"`
}

func (m MessageDTO) toModel() models.Message {
	msg := models.Message{
		ID:        string(m.ID),
		ChatID:    string(m.IDChat),
		SenderID:  string(m.IDRemitente),
		Content:   m.Contenido,
		CreatedAt: m.FechaEnvio,
	}
	if m.Archivo != nil {
		msg.Attachment = &models.Attachment{
			Path:      m.Archivo.Ruta,
			Filename:  m.Archivo.Nombre,
			SizeBytes: m.Archivo.Tamano,
			MIMEType:  m.Archivo.TipoMime,
		}
	}
	msg.Kind = kindFromWire(m.TipoMensaje, msg.Attachment)
	return msg
}

// LastMessageDTO is the denormalized summary embedded in a thread.
type LastMessageDTO struct {
	TipoMensaje string         `json:"tipoMensaje"`
	Contenido   *string        `json:"contenido"`
	Archivo     *AttachmentDTO `json:"archivo,omitempty"`
}

// ThreadDTO is a conversation as the backend sends it. Participants may be
// expanded objects or bare ids depending on the endpoint.
type ThreadDTO struct {
	ID               WireID          `json:"id"`
	Estado           string          `json:"estado"`
	IDPsicologo      WireID          `json:"idPsicologo"`
	IDPaciente       WireID          `json:"idPaciente"`
	Psicologo        *ProfileDTO     `json:"psicologo,omitempty"`
	Paciente         *ProfileDTO     `json:"paciente,omitempty"`
	UltimaActividad  *time.Time      `json:"ultimaActividad,omitempty"`
	FechaCreacion    *time.Time      `json:"fechaCreacion,omitempty"`
	UltimoMensaje    *LastMessageDTO `json:"ultimoMensaje,omitempty"`
	MensajesNoLeidos int             `json:"mensajesNoLeidos"`
}

func (t ThreadDTO) toModel() models.ChatThread {
	thread := models.ChatThread{
		ID:          string(t.ID),
		Status:      statusFromWire(t.Estado),
		UnreadCount: t.MensajesNoLeidos,
	}
	if thread.UnreadCount < 0 {
		thread.UnreadCount = 0
	}

	if t.Psicologo != nil {
		thread.Psychologist = t.Psicologo.toModel()
	}
	if thread.Psychologist.ID == "" {
		thread.Psychologist.ID = string(t.IDPsicologo)
	}
	if t.Paciente != nil {
		thread.Patient = t.Paciente.toModel()
	}
	if thread.Patient.ID == "" {
		thread.Patient.ID = string(t.IDPaciente)
	}

	switch {
	case t.UltimaActividad != nil:
		thread.LastActivityAt = *t.UltimaActividad
	case t.FechaCreacion != nil:
		thread.LastActivityAt = *t.FechaCreacion
	}

	if t.UltimoMensaje != nil {
		last := models.Message{Content: t.UltimoMensaje.Contenido}
		if a := t.UltimoMensaje.Archivo; a != nil {
			last.Attachment = &models.Attachment{Path: a.Ruta, Filename: a.Nombre, SizeBytes: a.Tamano, MIMEType: a.TipoMime}
		}
		last.Kind = kindFromWire(t.UltimoMensaje.TipoMensaje, last.Attachment)
		thread.LastMessage = models.PreviewOf(last)
	}
	return thread
}

var statusWire = map[models.ChatStatus]string{
	models.ChatStatusActive:   "activo",
	models.ChatStatusArchived: "archivado",
	models.ChatStatusBlocked:  "bloqueado",
}

// StatusToWire renders a status the way the backend expects it.
func StatusToWire(s models.ChatStatus) string {
	return statusWire[s]
}

func statusFromWire(s string) models.ChatStatus {
	switch s {
	case "archivado", "archived":
		return models.ChatStatusArchived
	case "bloqueado", "blocked":
		return models.ChatStatusBlocked
	}
	// New threads come back without an explicit status.
	return models.ChatStatusActive
}

var kindWire = map[models.MessageKind]string{
	models.MessageKindText:     "texto",
	models.MessageKindImage:    "imagen",
	models.MessageKindPDF:      "pdf",
	models.MessageKindDocument: "documento",
	models.MessageKindFile:     "archivo",
}

// KindToWire renders a message kind the way the backend expects it.
func KindToWire(k models.MessageKind) string {
	return kindWire[k]
}

func kindFromWire(s string, attachment *models.Attachment) models.MessageKind {
	for kind, wire := range kindWire {
		if s == wire || s == string(kind) {
			return kind
		}
	}
	if attachment != nil {
		return models.KindForMIME(attachment.MIMEType)
	}
	return models.MessageKindText
}

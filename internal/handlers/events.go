package handlers

import (
	"context"
	"time"

	"psyconsult-chat/internal/chat"
	"psyconsult-chat/internal/events"
	"psyconsult-chat/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	eventWriteTimeout = 10 * time.Second
	pingInterval      = 25 * time.Second
)

// EventHandler streams the events of a thread over a websocket.
type EventHandler struct {
	Workspaces *chat.Registry
	Bus        *events.Bus
	// OriginPatterns are the hosts allowed to open a cross-origin stream.
	OriginPatterns []string
	Log            *zap.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(workspaces *chat.Registry, bus *events.Bus, originPatterns []string, log *zap.Logger) *EventHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventHandler{Workspaces: workspaces, Bus: bus, OriginPatterns: originPatterns, Log: log.Named("stream")}
}

// Stream pushes thread events to the client until it disconnects. The thread
// is polled for changes made elsewhere while the stream is open, and the
// session's workspace stays alive for as long as the stream does.
func (h *EventHandler) Stream(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	ws, release := h.Workspaces.Acquire(s)
	defer release()
	chatID := c.Param("id")

	// Resolve the thread before upgrading so errors are plain HTTP.
	stop, err := ws.Watch(c.Request.Context(), chatID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	defer stop()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		// Accept already wrote the response.
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Push-only: CloseRead still processes control frames.
	ctx := conn.CloseRead(c.Request.Context())

	evs, err := h.Bus.Subscribe(ctx, chatID)
	if err != nil {
		h.Log.Error("subscribe", zap.String("chat_id", chatID), zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}

	log := h.Log.With(zap.String("chat_id", chatID), zap.String("user_id", ws.Viewer().ID))
	log.Debug("stream opened")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("stream closed by client")
			return
		case <-ws.Done():
			log.Debug("workspace closed")
			_ = conn.Close(websocket.StatusGoingAway, "session ended")
			return
		case ev, ok := <-evs:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ctx, conn, ev); err != nil {
				log.Warn("write event", zap.String("type", string(ev.Type)), zap.Error(err))
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/claimd/internal/events"
	"github.com/memohai/claimd/internal/handle"
)

const eventWriteTimeout = 5 * time.Second

// EventsHandler streams EVENT_JSON lines over a websocket.
type EventsHandler struct {
	hub    *events.Hub
	logger *slog.Logger
}

func NewEventsHandler(log *slog.Logger, hub *events.Hub) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: log.With(slog.String("handler", "events")),
	}
}

func (h *EventsHandler) Register(e *echo.Echo) {
	e.GET("/events", h.Stream)
}

// Stream subscribes to one handle (?platform=&handle=) or to every handle when none is given.
func (h *EventsHandler) Stream(c echo.Context) error {
	key := events.AllHandles
	platform, name := strings.TrimSpace(c.QueryParam("platform")), strings.TrimSpace(c.QueryParam("handle"))
	if platform != "" || name != "" {
		hd := handle.New(platform, name)
		if err := hd.Validate(); err != nil {
			return httpError(err)
		}
		key = hd.Key()
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.Any("error", err))
		return nil
	}
	defer func() { _ = conn.CloseNow() }()

	streamID, stream, cancel := h.hub.Subscribe(key, events.DefaultBufferSize)
	defer cancel()
	logger := h.logger.With(slog.String("stream", streamID))
	logger.Debug("event stream opened")

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx := conn.CloseRead(c.Request().Context())
	for {
		select {
		case <-ctx.Done():
			logger.Debug("event stream closed")
			return nil
		case n, ok := <-stream:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return nil
			}
			line, err := n.Line()
			if err != nil {
				logger.Error("event dropped", slog.Any("error", err))
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, []byte(line))
			cancelWrite()
			if err != nil {
				logger.Debug("event stream write failed", slog.Any("error", err))
				return nil
			}
		}
	}
}

// ws.go — WebSocket endpoint для доставки событий в реальном времени.
//
// Клиент подключается после аутентификации, регистрируется в реестре
// подключений и получает события (file_received) в формате JSON.
// Канал от клиента к серверу не используется: чтение нужно только
// для обнаружения закрытия соединения.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apierrors "github.com/UtviklerenSiteAS/FlashFiles/internal/api/errors"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/api/middleware"
	"github.com/UtviklerenSiteAS/FlashFiles/internal/realtime"
)

// wsWriteTimeout — предельное время записи одного события в сокет.
const wsWriteTimeout = 5 * time.Second

// wsEnvelope — формат события на проводе.
type wsEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// WSHandler — обработчик WebSocket подключений.
type WSHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

// NewWSHandler создаёт обработчик WebSocket подключений.
func NewWSHandler(hub *realtime.Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger.With(slog.String("component", "ws_handler")),
	}
}

// Serve обрабатывает GET /ws: рукопожатие, регистрация сессии,
// цикл доставки событий до закрытия соединения любой стороной.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept сам пишет ответ при ошибке рукопожатия
		h.logger.Warn("Ошибка WebSocket рукопожатия",
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.CloseNow()

	sess := h.hub.Register(principalID)
	defer h.hub.Unregister(sess)

	h.logger.Info("WebSocket сессия открыта",
		slog.String("principal_id", principalID),
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Читающая горутина: входящие сообщения игнорируются, чтение
	// завершается при закрытии соединения клиентом.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket сессия закрыта",
				slog.String("principal_id", principalID),
			)
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event, open := <-sess.Events():
			if !open {
				// Реестр закрыл сессию (shutdown)
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}

			writeCtx, writeCancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, wsEnvelope{
				Event:   event.Name,
				Payload: event.Payload,
			})
			writeCancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Warn("Ошибка записи в WebSocket",
						slog.String("principal_id", principalID),
						slog.String("error", err.Error()),
					)
				}
				return
			}
		}
	}
}

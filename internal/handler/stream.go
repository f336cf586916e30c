package handler

import (
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/support-service/internal/chat"
	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/model"
	"github.com/psds-microservice/support-service/internal/push"
	"github.com/psds-microservice/support-service/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Идентичность и права уже проверены шлюзом и самим хендлером.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsEvent — кадр сервер→клиент: history при открытии, затем message на
// каждую live-вставку; error для отклонённой отправки.
type wsEvent struct {
	Type     string          `json:"type"`
	Messages []model.Message `json:"messages,omitempty"`
	Message  *model.Message  `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// wsCommand — кадр клиент→сервер; поддерживается только send.
type wsCommand struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

type StreamHandler struct {
	tickets  service.TicketServicer
	messages service.MessageServicer
	feed     chat.Feed
	hub      *push.Hub
}

func NewStreamHandler(tickets service.TicketServicer, messages service.MessageServicer, feed chat.Feed, hub *push.Hub) *StreamHandler {
	return &StreamHandler{tickets: tickets, messages: messages, feed: feed, hub: hub}
}

// wsConn сериализует запись в сокет: пишут и цикл live-событий, и
// читатель команд (ответы об ошибках отправки).
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *wsConn) writeClose(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

// Stream — вебсокет-таймлайн одного тикета: кадр history, затем live.
// Закрытие сокета снимает подписку; обрыв подписки закрывает сокет
// кадром going-away, чтобы клиент видел, что live-обновления кончились.
func (h *StreamHandler) Stream(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	viewer := viewerID(c)
	if viewer == "" {
		mapError(c, errs.ErrNotAuthenticated)
		return
	}
	t, err := h.tickets.GetByID(c.Request.Context(), id)
	if err != nil {
		mapError(c, err)
		return
	}
	if t.UserID != viewer && !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}

	tl, err := chat.OpenTimeline(c.Request.Context(), h.messages, h.feed, *t, viewer)
	if err != nil {
		mapError(c, err)
		return
	}
	defer tl.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("stream: upgrade: %v", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	// Кадр истории — снимок на момент открытия таймлайна: вставка,
	// попавшая в окно между открытием и апгрейдом сокета, уйдёт только
	// live-кадром и не задвоится.
	if err := ws.writeJSON(wsEvent{Type: "history", Messages: tl.History()}); err != nil {
		return
	}

	// Читатель команд: send-кадры и детект закрытия со стороны клиента.
	go func() {
		defer tl.Close()
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Type != "send" {
				continue
			}
			if _, err := tl.Send(c.Request.Context(), cmd.Body); err != nil {
				// Черновик остаётся у клиента; сообщаем причину.
				_ = ws.writeJSON(wsEvent{Type: "error", Error: err.Error()})
			}
		}
	}()

	for m := range tl.Live() {
		msg := m
		if err := ws.writeJSON(wsEvent{Type: "message", Message: &msg}); err != nil {
			return
		}
	}
	if tl.Err() != nil {
		ws.writeClose(websocket.CloseGoingAway, "stream interrupted")
	}
}

// StreamAll — лента вставок по всем тикетам для панели сотрудников.
func (h *StreamHandler) StreamAll(c *gin.Context) {
	if !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}
	sub := h.hub.SubscribeAll()
	defer sub.Cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("stream: upgrade: %v", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{conn: conn}

	// Детект закрытия со стороны клиента.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m := <-sub.Events():
			if err := ws.writeJSON(wsEvent{Type: "message", Message: &m}); err != nil {
				return
			}
		case <-sub.Done():
			ws.writeClose(websocket.CloseGoingAway, "stream interrupted")
			return
		case <-gone:
			return
		}
	}
}

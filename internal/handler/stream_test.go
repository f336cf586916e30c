package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/psds-microservice/support-service/internal/model"
)

func dialStream(t *testing.T, srv *httptest.Server, path, user, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	hdr := http.Header{}
	hdr.Set(headerUserID, user)
	if role != "" {
		hdr.Set(headerUserRole, role)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestStreamHistoryThenLive(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/support/tickets/resolve", "u1", "", nil)
	e.do(t, http.MethodPost, "/api/v1/support/tickets/1/messages", "u1", "", map[string]string{"body": "hello"})

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	conn := dialStream(t, srv, "/api/v1/support/tickets/1/stream", "u1", "")

	history := readEvent(t, conn)
	if history.Type != "history" || len(history.Messages) != 1 || history.Messages[0].Body != "hello" {
		t.Fatalf("history frame = %+v, want one message %q", history, "hello")
	}

	// Live-вставка (ответ сотрудника через REST) долетает кадром message.
	e.do(t, http.MethodPost, "/api/v1/support/tickets/1/messages", "s1", "admin", map[string]string{"body": "hi"})
	live := readEvent(t, conn)
	if live.Type != "message" || live.Message == nil || live.Message.Body != "hi" {
		t.Fatalf("live frame = %+v, want message %q", live, "hi")
	}
}

func TestStreamOpenWindowInsertDeliveredOnce(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/support/tickets/resolve", "u1", "", nil)
	e.do(t, http.MethodPost, "/api/v1/support/tickets/1/messages", "u1", "", map[string]string{"body": "hello"})

	// Ответ сотрудника попадает в окно между чтением истории и отдачей
	// её клиенту: такая строка обязана долететь ровно одним live-кадром.
	e.messages.onList = func() {
		e.messages.onList = nil
		_ = e.messages.Insert(context.Background(), &model.Message{TicketID: 1, SenderID: "s1", Body: "hi"})
	}

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	conn := dialStream(t, srv, "/api/v1/support/tickets/1/stream", "u1", "")

	history := readEvent(t, conn)
	if history.Type != "history" || len(history.Messages) != 1 || history.Messages[0].Body != "hello" {
		t.Fatalf("history frame = %+v, want only %q", history, "hello")
	}
	live := readEvent(t, conn)
	if live.Type != "message" || live.Message == nil || live.Message.Body != "hi" {
		t.Fatalf("frame = %+v, want live %q", live, "hi")
	}

	// Контрольный кадр: между "hi" и ним повторной доставки быть не должно.
	e.do(t, http.MethodPost, "/api/v1/support/tickets/1/messages", "u1", "", map[string]string{"body": "again"})
	if next := readEvent(t, conn); next.Message == nil || next.Message.Body != "again" {
		t.Fatalf("frame = %+v, want %q", next, "again")
	}
}

func TestStreamSendCommand(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/support/tickets/resolve", "u1", "", nil)

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	conn := dialStream(t, srv, "/api/v1/support/tickets/1/stream", "u1", "")

	if ev := readEvent(t, conn); ev.Type != "history" || len(ev.Messages) != 0 {
		t.Fatalf("history frame = %+v, want empty history", ev)
	}

	// Пустое тело отклоняется кадром error, вставки нет.
	if err := conn.WriteJSON(wsCommand{Type: "send", Body: "   "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Fatalf("frame = %+v, want error", ev)
	}

	// Валидная отправка возвращается собственным кадром message — один раз.
	if err := conn.WriteJSON(wsCommand{Type: "send", Body: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "message" || ev.Message == nil || ev.Message.Body != "hello" {
		t.Fatalf("frame = %+v, want own message %q", ev, "hello")
	}
	if ev.Message.SenderID != "u1" {
		t.Fatalf("sender = %q, want u1", ev.Message.SenderID)
	}
}

func TestStreamForbidden(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/support/tickets/resolve", "u1", "", nil)

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/support/tickets/1/stream"
	hdr := http.Header{}
	hdr.Set(headerUserID, "u2")
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		t.Fatal("foreign viewer must not open the stream")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %v, want 403", resp)
	}
}

func TestStreamAllFirehose(t *testing.T) {
	e := newEnv()
	e.do(t, http.MethodPost, "/api/v1/support/tickets/resolve", "u1", "", nil)
	e.do(t, http.MethodPost, "/api/v1/support/tickets/resolve", "u2", "", nil)

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	conn := dialStream(t, srv, "/api/v1/support/stream", "s1", "admin")

	e.do(t, http.MethodPost, "/api/v1/support/tickets/1/messages", "u1", "", map[string]string{"body": "from u1"})
	e.do(t, http.MethodPost, "/api/v1/support/tickets/2/messages", "u2", "", map[string]string{"body": "from u2"})

	first := readEvent(t, conn)
	second := readEvent(t, conn)
	if first.Message == nil || second.Message == nil {
		t.Fatalf("frames = %+v / %+v, want two messages", first, second)
	}
	if first.Message.TicketID != 1 || second.Message.TicketID != 2 {
		t.Fatalf("ticket ids = %d, %d, want 1, 2", first.Message.TicketID, second.Message.TicketID)
	}

	// Остановка хаба делает обрыв наблюдаемым: сокет закрывается going-away.
	e.hub.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wsEvent
	err := conn.ReadJSON(&ev)
	if err == nil {
		t.Fatalf("expected close, got frame %+v", ev)
	}
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("close error = %v, want going-away", err)
	}
}

package chat

import (
	"testing"
	"time"

	"github.com/psds-microservice/support-service/internal/model"
)

func TestIsUnread(t *testing.T) {
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	staffReply := &model.Message{SenderID: "s1", CreatedAt: seen.Add(time.Minute)}

	cases := []struct {
		name       string
		tail       *model.Message
		viewerID   string
		lastSeenAt time.Time
		want       bool
	}{
		{"no messages", nil, "u1", seen, false},
		{"own message in tail", &model.Message{SenderID: "u1", CreatedAt: seen.Add(time.Minute)}, "u1", seen, false},
		{"staff reply after last visit", staffReply, "u1", seen, true},
		{"staff reply already seen", staffReply, "u1", seen.Add(2 * time.Minute), false},
		{"staff reply seen exactly at its timestamp", staffReply, "u1", staffReply.CreatedAt, false},
		{"never opened the chat", staffReply, "u1", time.Time{}, true},
		{"staff viewing its own reply", staffReply, "s1", time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUnread(tc.tail, tc.viewerID, tc.lastSeenAt); got != tc.want {
				t.Fatalf("IsUnread = %v, want %v", got, tc.want)
			}
		})
	}
}

// Вход в чат сдвигает lastSeenAt на "сейчас": тот же хвост перестаёт
// считаться непрочитанным без каких-либо изменений в таймлайне.
func TestUnreadClearsOnEntry(t *testing.T) {
	tail := &model.Message{SenderID: "s1", CreatedAt: time.Now().Add(-time.Minute)}
	var lastSeenAt time.Time

	if !IsUnread(tail, "u1", lastSeenAt) {
		t.Fatal("staff reply must be unread before entry")
	}
	lastSeenAt = time.Now()
	if IsUnread(tail, "u1", lastSeenAt) {
		t.Fatal("entry must clear the indicator for the same tail")
	}
}

package chat

import (
	"time"

	"github.com/psds-microservice/support-service/internal/model"
)

// IsUnread — чистая функция индикатора непрочитанного: хвост таймлайна
// существует, написан не зрителем и позже момента последнего входа в чат.
// Вход в чат сдвигает lastSeenAt на "сейчас" у вызывающего — ровно один
// раз за вход, сколько бы сообщений ни накопилось.
func IsUnread(tail *model.Message, viewerID string, lastSeenAt time.Time) bool {
	if tail == nil {
		return false
	}
	if tail.SenderID == viewerID {
		return false
	}
	return tail.CreatedAt.After(lastSeenAt)
}

// Package chat реализует протокол диалога поддержки: выбор активного
// тикета, append-only таймлайн сообщений с live-догрузкой и вывод
// индикатора непрочитанного. Пакет не ходит в I/O сам: хранилище и
// push-канал передаются интерфейсами, идентичность зрителя — значением.
package chat

import (
	"context"

	"github.com/psds-microservice/support-service/internal/model"
)

// TicketStore — часть хранилища тикетов, нужная резолверу.
type TicketStore interface {
	// FindActive возвращает единственный активный (open или in_progress)
	// тикет владельца; errs.ErrTicketNotFound, если такого нет.
	FindActive(ctx context.Context, userID string) (*model.Ticket, error)
	Create(ctx context.Context, t *model.Ticket) error
}

// MessageStore — часть хранилища сообщений, нужная таймлайну.
type MessageStore interface {
	// ListByTicket возвращает все сообщения тикета по возрастанию времени.
	ListByTicket(ctx context.Context, ticketID uint64) ([]model.Message, error)
	Insert(ctx context.Context, m *model.Message) error
}

// Subscription — одна живая подписка на вставки сообщений.
// Cancel обязателен при закрытии таймлайна, иначе подписка течёт.
type Subscription interface {
	Events() <-chan model.Message
	// Done закрывается, когда канал оборвался со стороны хаба
	// (подписчик перестал вычитывать или хаб остановлен).
	Done() <-chan struct{}
	Cancel()
}

// Feed — push-канал вставок сообщений, отфильтрованный по тикету.
type Feed interface {
	Subscribe(ticketID uint64) Subscription
}

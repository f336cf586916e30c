// Package push — внутрипроцессный канал доставки вставленных сообщений
// подписчикам (вебсокет-сессиям и таймлайнам). Заменяет realtime-фид
// Supabase из исходного приложения: вставка публикуется после commit'а
// и веером расходится по подпискам с фильтром по тикету.
package push

import (
	"log"
	"sync"

	"github.com/psds-microservice/support-service/internal/chat"
	"github.com/psds-microservice/support-service/internal/model"
)

// Subscription — одна подписка. Канал событий буферизован; подписчик,
// переставший вычитывать, отцепляется хабом, и его Done закрывается —
// обрыв наблюдаем, а не тихая потеря сообщений.
type Subscription struct {
	hub      *Hub
	ticketID uint64 // 0 — события всех тикетов (лента админки)
	events   chan model.Message
	done     chan struct{}
}

func (s *Subscription) Events() <-chan model.Message { return s.events }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel снимает подписку. Повторные вызовы безопасны.
func (s *Subscription) Cancel() { s.hub.remove(s, false) }

// Hub держит все живые подписки процесса.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: 64,
	}
}

// Subscribe возвращает подписку на вставки сообщений тикета ticketID.
func (h *Hub) Subscribe(ticketID uint64) *Subscription {
	s := &Subscription{
		hub:      h,
		ticketID: ticketID,
		events:   make(chan model.Message, h.buffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.done)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// SubscribeAll — подписка на сообщения всех тикетов (лента админки).
func (h *Hub) SubscribeAll() *Subscription { return h.Subscribe(0) }

// Publish доставляет вставленное сообщение всем подходящим подпискам.
// Доставка неблокирующая: переполненный подписчик отцепляется.
func (h *Hub) Publish(m model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if s.ticketID != 0 && s.ticketID != m.TicketID {
			continue
		}
		select {
		case s.events <- m:
		default:
			log.Printf("push: dropping slow subscriber (ticket %d)", s.ticketID)
			h.drop(s)
		}
	}
}

// Subscribers — число живых подписок (для тестов и /health).
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close обрывает все подписки; новые подписки рождаются оборванными.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		h.drop(s)
	}
}

// drop вызывается под h.mu.
func (h *Hub) drop(s *Subscription) {
	delete(h.subs, s)
	close(s.done)
}

func (h *Hub) remove(s *Subscription, interrupted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	if interrupted {
		close(s.done)
	}
}

// Feed адаптирует хаб к chat.Feed.
type Feed struct {
	Hub *Hub
}

func (f Feed) Subscribe(ticketID uint64) chat.Subscription {
	return f.Hub.Subscribe(ticketID)
}

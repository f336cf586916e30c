package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/model"
)

// Timeline — проекция сообщений одного тикета у одного зрителя:
// префикс из bulk read плюс live-события из подписки, без дублей и
// без пересортировки. Живёт, пока открыт просмотр; Close обязателен.
type Timeline struct {
	ticket   model.Ticket
	viewerID string
	store    MessageStore
	sub      Subscription

	history []model.Message

	live chan model.Message
	quit chan struct{}

	mu     sync.Mutex
	seq    []model.Message
	seen   map[uint64]struct{}
	err    error
	closed bool
}

// OpenTimeline выполняет bulk read истории и подписывается на вставки.
// Подписка ставится до чтения: событие, пришедшее для строки, которая
// уже попала в выборку, отсеивается дедупликацией по id. При ошибке
// чтения подписка снимается и таймлайн не создаётся (вызывающий может
// повторить OpenTimeline).
func OpenTimeline(ctx context.Context, store MessageStore, feed Feed, ticket model.Ticket, viewerID string) (*Timeline, error) {
	sub := feed.Subscribe(ticket.ID)
	history, err := store.ListByTicket(ctx, ticket.ID)
	if err != nil {
		sub.Cancel()
		return nil, fmt.Errorf("%w: %v", errs.ErrLoadFailed, err)
	}

	t := &Timeline{
		ticket:   ticket,
		viewerID: viewerID,
		store:    store,
		sub:      sub,
		history:  history,
		live:     make(chan model.Message, 16),
		quit:     make(chan struct{}),
		seen:     make(map[uint64]struct{}, len(history)),
	}
	for _, m := range history {
		t.seq = append(t.seq, m)
		t.seen[m.ID] = struct{}{}
	}
	go t.run()
	return t, nil
}

// run перекачивает события подписки в таймлайн. Прошедшие слияние
// сообщения дополнительно отдаются в Live для потребителя.
func (t *Timeline) run() {
	defer close(t.live)
	for {
		select {
		case m, ok := <-t.sub.Events():
			if !ok {
				t.interrupt()
				return
			}
			if !t.apply(m) {
				continue
			}
			select {
			case t.live <- m:
			case <-t.quit:
				return
			}
		case <-t.sub.Done():
			t.interrupt()
			return
		case <-t.quit:
			return
		}
	}
}

// apply — правило слияния: чужой тикет и уже известные id игнорируются,
// остальное дописывается в хвост. Префикс никогда не пересортировывается.
func (t *Timeline) apply(m model.Message) bool {
	if m.TicketID != t.ticket.ID {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[m.ID]; dup {
		return false
	}
	t.seen[m.ID] = struct{}{}
	t.seq = append(t.seq, m)
	return true
}

func (t *Timeline) interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil && !t.closed {
		t.err = errs.ErrStreamInterrupted
	}
}

// Send вставляет сообщение от имени зрителя в открытый тикет.
// Пустое (после трима) тело отклоняется до обращения к хранилищу;
// при ошибке вставки вызывающий сохраняет черновик и может повторить.
// Локального эха нет: строку вернёт push-канал, дубль отсеет apply.
func (t *Timeline) Send(ctx context.Context, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errs.ErrEmptyMessage
	}
	m := &model.Message{
		TicketID: t.ticket.ID,
		SenderID: t.viewerID,
		Body:     body,
	}
	if err := t.store.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrSendFailed, err)
	}
	return m, nil
}

// History — снимок истории на момент открытия. Каждый его id уже
// засеян в дедупликацию, поэтому пара «кадр History плюс события Live»
// не содержит дублей: всё, что пришло после открытия, отдаёт только
// Live. Поздний снимок Messages таким свойством не обладает.
func (t *Timeline) History() []model.Message {
	return t.history
}

// Messages возвращает снимок текущей последовательности.
func (t *Timeline) Messages() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.seq))
	copy(out, t.seq)
	return out
}

// Tail возвращает последнее сообщение или nil для пустого таймлайна.
func (t *Timeline) Tail() *model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.seq) == 0 {
		return nil
	}
	m := t.seq[len(t.seq)-1]
	return &m
}

// Live отдаёт только новые сообщения, прошедшие слияние. Канал
// закрывается при Close или обрыве подписки (см. Err).
func (t *Timeline) Live() <-chan model.Message {
	return t.live
}

// Err — errs.ErrStreamInterrupted после обрыва push-канала, иначе nil.
// Переоткрытие — забота вызывающего: таймлайн сам не переподключается.
func (t *Timeline) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Timeline) Ticket() model.Ticket { return t.ticket }

func (t *Timeline) ViewerID() string { return t.viewerID }

// Close снимает подписку. Повторные вызовы безопасны.
func (t *Timeline) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	close(t.quit)
	t.sub.Cancel()
}

package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/kafka"
	"github.com/psds-microservice/support-service/internal/model"
	"gorm.io/gorm"
)

// MessageServicer — интерфейс сервиса сообщений для хендлеров (DI).
type MessageServicer interface {
	ListByTicket(ctx context.Context, ticketID uint64) ([]model.Message, error)
	Insert(ctx context.Context, m *model.Message) error
	Latest(ctx context.Context, ticketID uint64) (*model.Message, error)
}

// MessagePublisher — внутрипроцессный фан-аут вставленных сообщений
// (реализуется push.Hub).
type MessagePublisher interface {
	Publish(m model.Message)
}

type MessageService struct {
	db       *gorm.DB
	tickets  *TicketService
	hub      MessagePublisher
	producer kafka.SupportEventProducer
}

func NewMessageService(db *gorm.DB, tickets *TicketService, hub MessagePublisher, producer kafka.SupportEventProducer) *MessageService {
	return &MessageService{db: db, tickets: tickets, hub: hub, producer: producer}
}

// ListByTicket — вся история тикета по возрастанию времени; ключ
// сортировки один — серверный created_at, равные метки разруливает id.
func (s *MessageService) ListByTicket(ctx context.Context, ticketID uint64) ([]model.Message, error) {
	var items []model.Message
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Insert вставляет сообщение и раздаёт его: push-хаб (realtime для
// открытых таймлайнов), last_activity родительского тикета, событие в
// Kafka. Touch идёт отдельным запросом после вставки; атомарности между
// ними нет — при падении между запросами рассинхрон last_activity
// наблюдаем и чинится следующим сообщением.
func (s *MessageService) Insert(ctx context.Context, m *model.Message) error {
	body, err := normalizeBody(m.Body)
	if err != nil {
		return err
	}
	m.Body = body
	t, err := s.tickets.GetByID(ctx, m.TicketID)
	if err != nil {
		return err
	}
	if t.Status == model.TicketStatusClosed {
		return errs.ErrTicketClosed
	}
	m.CreatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	if err := s.tickets.Touch(ctx, m.TicketID); err != nil {
		log.Printf("service: touch ticket %d: %v", m.TicketID, err)
	}
	s.hub.Publish(*m)
	s.producer.ProduceSupportEvent(ctx, "message.sent", map[string]interface{}{
		"ticket_id":  int64(m.TicketID),
		"message_id": int64(m.ID),
		"sender_id":  m.SenderID,
	})
	return nil
}

// normalizeBody приводит тело к хранимому виду: обрезает пробельное
// обрамление и отклоняет пустой остаток. Тот же вид хранит и таймлайн,
// поэтому оба пути отправки кладут в базу одинаковую строку.
func normalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", errs.ErrEmptyMessage
	}
	return body, nil
}

// Latest — последнее сообщение тикета (хвост для индикатора
// непрочитанного); errs.ErrNoMessages, если сообщений ещё нет.
func (s *MessageService) Latest(ctx context.Context, ticketID uint64) (*model.Message, error) {
	var m model.Message
	err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNoMessages
		}
		return nil, err
	}
	return &m, nil
}

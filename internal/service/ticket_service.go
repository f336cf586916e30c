package service

import (
	"context"
	"errors"
	"time"

	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/kafka"
	"github.com/psds-microservice/support-service/internal/model"
	"github.com/psds-microservice/support-service/internal/searchindex"
	"gorm.io/gorm"
)

// TicketServicer — интерфейс сервиса тикетов для хендлеров (DI).
type TicketServicer interface {
	FindActive(ctx context.Context, userID string) (*model.Ticket, error)
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]TicketWithRequester, int64, error)
	Update(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error)
	Join(ctx context.Context, id uint64, adminID string) (*model.Ticket, error)
	CloseTicket(ctx context.Context, id uint64) (*model.Ticket, error)
}

// TicketWithRequester — тикет плюс отображаемое имя владельца из profiles
// (список тикетов в админке).
type TicketWithRequester struct {
	model.Ticket  `gorm:"embedded"`
	RequesterName string `json:"requester_name"`
}

type TicketService struct {
	db       *gorm.DB
	producer kafka.SupportEventProducer
	search   *searchindex.Client
}

func NewTicketService(db *gorm.DB, producer kafka.SupportEventProducer, search *searchindex.Client) *TicketService {
	return &TicketService{db: db, producer: producer, search: search}
}

// FindActive возвращает активный тикет владельца; если хранилище вопреки
// инварианту держит несколько, берётся последний по активности.
func (s *TicketService) FindActive(ctx context.Context, userID string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []model.TicketStatus{model.TicketStatusOpen, model.TicketStatusInProgress}).
		Order("last_activity DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) Create(ctx context.Context, t *model.Ticket) error {
	if t.Status == "" {
		t.Status = model.TicketStatusOpen
	}
	now := time.Now()
	t.CreatedAt = now
	t.LastActivity = now
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return err
	}
	s.producer.ProduceSupportEvent(ctx, "ticket.created", eventPayload(t))
	s.search.IndexTicketAsync(t)
	return nil
}

func (s *TicketService) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *TicketService) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]TicketWithRequester, int64, error) {
	var items []TicketWithRequester
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{})
	for k, v := range filter {
		tx = tx.Where(k, v)
	}
	// Count total before pagination
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	err := tx.
		Select("support_tickets.*, COALESCE(profiles.display_name, '') AS requester_name").
		Joins("LEFT JOIN profiles ON profiles.user_id = support_tickets.user_id").
		Order("last_activity DESC").
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *TicketService) Update(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&t).Updates(changes).Error; err != nil {
		return nil, err
	}
	s.producer.ProduceSupportEvent(ctx, "ticket.updated", eventPayload(&t))
	s.search.IndexTicketAsync(&t)
	return &t, nil
}

// Join — первое вовлечение сотрудника: назначение и перевод в in_progress.
// Уже назначенный in_progress тикет не трогаем, чтобы второй админ не
// перехватывал диалог молча.
func (s *TicketService) Join(ctx context.Context, id uint64, adminID string) (*model.Ticket, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TicketStatusClosed {
		return nil, errs.ErrTicketClosed
	}
	if t.AdminID != "" && t.Status == model.TicketStatusInProgress {
		return t, nil
	}
	changes := map[string]interface{}{
		"admin_id":      adminID,
		"status":        model.TicketStatusInProgress,
		"last_activity": time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(t).Updates(changes).Error; err != nil {
		return nil, err
	}
	s.producer.ProduceSupportEvent(ctx, "ticket.assigned", eventPayload(t))
	s.search.IndexTicketAsync(t)
	return t, nil
}

func (s *TicketService) CloseTicket(ctx context.Context, id uint64) (*model.Ticket, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == model.TicketStatusClosed {
		return t, nil
	}
	now := time.Now()
	changes := map[string]interface{}{
		"status":    model.TicketStatusClosed,
		"closed_at": &now,
	}
	if err := s.db.WithContext(ctx).Model(t).Updates(changes).Error; err != nil {
		return nil, err
	}
	s.producer.ProduceSupportEvent(ctx, "ticket.closed", eventPayload(t))
	s.search.IndexTicketAsync(t)
	return t, nil
}

// Touch сдвигает last_activity тикета (после каждого нового сообщения).
func (s *TicketService) Touch(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("id = ?", id).
		Update("last_activity", time.Now()).Error
}

func eventPayload(t *model.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"ticket_id": int64(t.ID),
		"user_id":   t.UserID,
		"admin_id":  t.AdminID,
		"subject":   t.Subject,
		"status":    string(t.Status),
	}
}

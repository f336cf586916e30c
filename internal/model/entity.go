package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// Active — true для статусов, в которых тикет считается активным диалогом.
func (s TicketStatus) Active() bool {
	return s == TicketStatusOpen || s == TicketStatusInProgress
}

// Ticket — один тред поддержки: владелец (пользователь портфолио-приложения),
// опциональный назначенный админ, статус жизненного цикла.
type Ticket struct {
	ID      uint64       `gorm:"primaryKey" json:"id"`
	UserID  string       `gorm:"index;not null" json:"user_id"`
	AdminID string       `gorm:"index" json:"admin_id,omitempty"`
	Status  TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Subject string       `gorm:"type:varchar(255)" json:"subject,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `gorm:"index" json:"last_activity"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

func (Ticket) TableName() string { return "support_tickets" }

// Message — одна реплика диалога. После вставки не изменяется:
// таймлайн клиента строится как append-only лог по CreatedAt.
type Message struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	TicketID uint64 `gorm:"index;not null" json:"ticket_id"`
	SenderID string `gorm:"index;not null" json:"sender_id"`
	Body     string `gorm:"type:text;not null" json:"body"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Message) TableName() string { return "support_messages" }

// Profile — отображаемое имя и роль пользователя (для списка тикетов в админке).
type Profile struct {
	UserID      string `gorm:"primaryKey" json:"user_id"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
	Role        string `gorm:"type:varchar(32);index" json:"role,omitempty"`
}

func (Profile) TableName() string { return "profiles" }

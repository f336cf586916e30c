package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-service/internal/chat"
	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/model"
	"github.com/psds-microservice/support-service/internal/service"
)

type MessageHandler struct {
	tickets  service.TicketServicer
	messages service.MessageServicer
}

func NewMessageHandler(tickets service.TicketServicer, messages service.MessageServicer) *MessageHandler {
	return &MessageHandler{tickets: tickets, messages: messages}
}

// ticketForViewer загружает тикет и проверяет, что зритель — владелец
// или сотрудник.
func (h *MessageHandler) ticketForViewer(c *gin.Context) (*model.Ticket, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	t, err := h.tickets.GetByID(c.Request.Context(), id)
	if err != nil {
		mapError(c, err)
		return nil, false
	}
	if t.UserID != viewerID(c) && !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return nil, false
	}
	return t, true
}

// List — bulk read истории тикета по возрастанию времени.
func (h *MessageHandler) List(c *gin.Context) {
	t, ok := h.ticketForViewer(c)
	if !ok {
		return
	}
	items, err := h.messages.ListByTicket(c.Request.Context(), t.ID)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": items})
}

type sendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// Send вставляет реплику от имени зрителя. Пустое после трима тело —
// 422 до обращения к хранилищу.
func (h *MessageHandler) Send(c *gin.Context) {
	t, ok := h.ticketForViewer(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	m := &model.Message{
		TicketID: t.ID,
		SenderID: viewerID(c),
		Body:     req.Body,
	}
	if err := h.messages.Insert(c.Request.Context(), m); err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Unread — индикатор непрочитанного для активного тикета зрителя.
// lastSeenAt зритель отслеживает сам и передаёт параметром seen_at
// (RFC3339); без параметра сравнение идёт с нулевым временем, то есть
// любая чужая реплика в хвосте считается непрочитанной.
func (h *MessageHandler) Unread(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		mapError(c, errs.ErrNotAuthenticated)
		return
	}
	var lastSeenAt time.Time
	if v := c.Query("seen_at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seen_at"})
			return
		}
		lastSeenAt = parsed
	}

	t, err := h.tickets.FindActive(c.Request.Context(), viewer)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusOK, gin.H{"unread": false})
			return
		}
		mapError(c, err)
		return
	}
	tail, err := h.messages.Latest(c.Request.Context(), t.ID)
	if err != nil && !errors.Is(err, errs.ErrNoMessages) {
		mapError(c, err)
		return
	}
	resp := gin.H{
		"unread":    chat.IsUnread(tail, viewer, lastSeenAt),
		"ticket_id": t.ID,
	}
	if tail != nil {
		resp["last_message_at"] = tail.CreatedAt
	}
	c.JSON(http.StatusOK, resp)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-service/internal/chat"
	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/model"
	"github.com/psds-microservice/support-service/internal/service"
)

type TicketHandler struct {
	svc      service.TicketServicer
	resolver *chat.Resolver
}

func NewTicketHandler(svc service.TicketServicer, resolver *chat.Resolver) *TicketHandler {
	return &TicketHandler{svc: svc, resolver: resolver}
}

// Resolve — единственная точка входа зрителя в диалог: вернуть активный
// тикет или создать новый. 200 для существующего, 201 для созданного.
func (h *TicketHandler) Resolve(c *gin.Context) {
	t, created, err := h.resolver.ResolveActiveTicket(c.Request.Context(), viewerID(c))
	if err != nil {
		mapError(c, err)
		return
	}
	if created {
		c.JSON(http.StatusCreated, t)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		mapError(c, err)
		return
	}
	if t.UserID != viewerID(c) && !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	if !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}
	filter := make(map[string]interface{})
	if v := c.Query("user_id"); v != "" {
		filter["support_tickets.user_id = ?"] = v
	}
	if v := c.Query("admin_id"); v != "" {
		filter["support_tickets.admin_id = ?"] = v
	}
	if v := c.Query("status"); v != "" {
		filter["support_tickets.status = ?"] = v
	}

	limit := 0
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}

type updateTicketRequest struct {
	Status  *string `json:"status,omitempty"`
	Subject *string `json:"subject,omitempty"`
}

func (h *TicketHandler) Update(c *gin.Context) {
	if !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	changes := make(map[string]interface{})
	if req.Status != nil {
		s := model.TicketStatus(*req.Status)
		if s != model.TicketStatusOpen && s != model.TicketStatusInProgress && s != model.TicketStatusClosed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		changes["status"] = *req.Status
	}
	if req.Subject != nil {
		changes["subject"] = *req.Subject
	}
	if len(changes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty update"})
		return
	}
	t, err := h.svc.Update(c.Request.Context(), id, changes)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Join — сотрудник берёт тикет в работу: назначение + in_progress.
func (h *TicketHandler) Join(c *gin.Context) {
	if !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.svc.Join(c.Request.Context(), id, viewerID(c))
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Close переводит тикет в терминальный статус. Доступно сотруднику и
// владельцу тикета.
func (h *TicketHandler) Close(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		mapError(c, err)
		return
	}
	if t.UserID != viewerID(c) && !isAdmin(c) {
		mapError(c, errs.ErrForbidden)
		return
	}
	t, err = h.svc.CloseTicket(c.Request.Context(), id)
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

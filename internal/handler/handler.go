package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/support-service/internal/errs"
)

// Идентичность приходит из заголовков шлюза флота: X-User-ID и
// X-User-Role. Сервис доверяет им и сам аутентификацию не делает.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	roleAdmin = "admin"
)

func viewerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(headerUserID))
}

func isAdmin(c *gin.Context) bool {
	return strings.EqualFold(strings.TrimSpace(c.GetHeader(headerUserRole)), roleAdmin)
}

// mapError переводит доменные ошибки в HTTP-статусы. Ошибки не
// глотаются; ретраи — политика клиента.
func mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrEmptyMessage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrTicketClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrStoreUnavailable), errors.Is(err, errs.ErrLoadFailed), errors.Is(err, errs.ErrSendFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

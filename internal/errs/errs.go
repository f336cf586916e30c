package errs

import "errors"

// Доменные ошибки support-service. Сравнивать через errors.Is:
// обёртки (fmt.Errorf с %w) сохраняют sentinel.
var (
	ErrNotAuthenticated  = errors.New("viewer is not authenticated")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrLoadFailed        = errors.New("load messages failed")
	ErrSendFailed        = errors.New("send message failed")
	ErrStreamInterrupted = errors.New("push stream interrupted")

	ErrTicketNotFound = errors.New("ticket not found")
	ErrNoMessages     = errors.New("ticket has no messages")
	ErrTicketClosed   = errors.New("ticket is closed")
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrForbidden      = errors.New("operation not allowed for this role")
)

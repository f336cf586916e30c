package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/psds-microservice/support-service/internal/errs"
	"github.com/psds-microservice/support-service/internal/model"
)

// Resolver находит или создаёт единственный активный тикет зрителя.
type Resolver struct {
	tickets TicketStore
}

func NewResolver(tickets TicketStore) *Resolver {
	return &Resolver{tickets: tickets}
}

// ResolveActiveTicket — read-then-create: сначала ищем открытый или
// взятый в работу тикет владельца, только при его отсутствии создаём
// новый со статусом open. Существующие тикеты никогда не мутируются.
// Второе значение — true, если тикет был создан этим вызовом.
// Гонку двух одновременных resolve закрывает частичный уникальный
// индекс в хранилище: проигравший insert перечитывает чужой тикет.
func (r *Resolver) ResolveActiveTicket(ctx context.Context, viewerID string) (*model.Ticket, bool, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, false, errs.ErrNotAuthenticated
	}

	t, err := r.tickets.FindActive(ctx, viewerID)
	if err == nil {
		return t, false, nil
	}
	if !errors.Is(err, errs.ErrTicketNotFound) {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}

	created := &model.Ticket{
		UserID: viewerID,
		Status: model.TicketStatusOpen,
	}
	if err := r.tickets.Create(ctx, created); err != nil {
		// Вероятно, параллельный resolve успел первым: перечитываем.
		if existing, rerr := r.tickets.FindActive(ctx, viewerID); rerr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	return created, true, nil
}
